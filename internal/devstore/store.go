// Package devstore is a reference remote store for local development and
// tests. It implements the upload contract the widget speaks:
//
//	POST /upload         multipart "file", X-Name: <content id>  → 201 new, 200 existing
//	GET  /upload/{id}    stored content
//	POST /delete         {"ids": [...]}                          → 204
//
// Objects are kept as plain files named by content id in one directory.
package devstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rescale/rescale-intake/internal/constants"
	"github.com/rescale/rescale-intake/internal/contentid"
	"github.com/rescale/rescale-intake/internal/diskspace"
	"github.com/rescale/rescale-intake/internal/logging"
	"github.com/rescale/rescale-intake/internal/util/buffers"
	"github.com/rescale/rescale-intake/internal/validation"
)

// Store serves uploads into a directory.
type Store struct {
	dir     string
	maxSize int64
	logger  *logging.Logger

	mu sync.Mutex // Serializes exists-check and rename per store

	checkSpace func(path string, size int64) error
}

// New creates a store rooted at dir, creating it if needed. Uploads larger
// than maxSize are refused; zero means constants.DefaultMaxFileSize.
func New(dir string, maxSize int64, logger *logging.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("devstore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("devstore: create %s: %w", dir, err)
	}
	if maxSize <= 0 {
		maxSize = constants.DefaultMaxFileSize
	}
	s := &Store{
		dir:     dir,
		maxSize: maxSize,
		logger:  logging.OrNop(logger).Named("devstore"),
	}
	s.checkSpace = func(path string, size int64) error {
		return diskspace.CheckAvailableSpace(path, size, constants.DiskSpaceSafetyMargin)
	}
	return s, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Router returns the HTTP handler for the store.
func (s *Store) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Post(constants.UploadPath, s.handleUpload)
	r.Get(constants.UploadPath+"/{id}", s.handleGet)
	r.Post(constants.DeletePath, s.handleDelete)
	return r
}

func (s *Store) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("elapsed", time.Since(start)).
			Msg("Request served")
	})
}

// path resolves a content id to its file, rejecting anything that could
// leave the store directory.
func (s *Store) path(id string) (string, error) {
	if err := validation.ValidateFilename(id); err != nil {
		return "", err
	}
	if !contentid.Valid(id) {
		return "", fmt.Errorf("not a content id: %q", id)
	}
	p := filepath.Join(s.dir, id)
	if err := validation.ValidatePathInDirectory(p, s.dir); err != nil {
		return "", err
	}
	return p, nil
}

func (s *Store) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(constants.HeaderName)
	dst, err := s.path(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxSize+1<<20)
	file, header, err := r.FormFile(constants.UploadFormField)
	if err != nil {
		http.Error(w, fmt.Sprintf("missing %q part: %v", constants.UploadFormField, err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > s.maxSize {
		http.Error(w, fmt.Sprintf("file exceeds %s", humanize.IBytes(uint64(s.maxSize))), http.StatusRequestEntityTooLarge)
		return
	}

	if err := s.checkSpace(filepath.Join(s.dir, id), header.Size); err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("Refusing upload")
		http.Error(w, err.Error(), http.StatusInsufficientStorage)
		return
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create temp file")
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())

	hash := md5.New()
	buf := buffers.GetCopyBuffer()
	n, err := io.CopyBuffer(io.MultiWriter(tmp, hash), file, *buf)
	buffers.PutCopyBuffer(buf)
	closeErr := tmp.Close()
	if err != nil || closeErr != nil {
		s.logger.Error().Err(errors.Join(err, closeErr)).Str("id", id).Msg("Failed to store upload")
		http.Error(w, "storage failed", http.StatusInternalServerError)
		return
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	if !strings.HasPrefix(id, digest+".") {
		http.Error(w, "content does not match "+constants.HeaderName, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(dst); err == nil {
		s.logger.Info().Str("id", id).Msg("Upload already stored")
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		s.logger.Error().Err(err).Str("id", id).Msg("Failed to commit upload")
		http.Error(w, "storage failed", http.StatusInternalServerError)
		return
	}
	s.logger.Info().Str("id", id).Str("size", humanize.IBytes(uint64(n))).Msg("Upload stored")
	w.WriteHeader(http.StatusCreated)
}

func (s *Store) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.path(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := os.Stat(p); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, p)
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

func (s *Store) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range req.IDs {
		p, err := s.path(id)
		if err != nil {
			s.logger.Warn().Err(err).Str("id", id).Msg("Skipping invalid id in delete request")
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Error().Err(err).Str("id", id).Msg("Failed to delete object")
			http.Error(w, "delete failed", http.StatusInternalServerError)
			return
		}
		s.logger.Info().Str("id", id).Msg("Object deleted")
	}
	w.WriteHeader(http.StatusNoContent)
}

// Has reports whether id is stored.
func (s *Store) Has(id string) bool {
	p, err := s.path(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Serve listens on addr until ctx is cancelled.
func (s *Store) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", addr).Str("dir", s.dir).Msg("Serving upload store")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("devstore: serve %s: %w", addr, err)
	}
	return nil
}
