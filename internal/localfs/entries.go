package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/rescale/rescale-intake/internal/constants"
	"github.com/rescale/rescale-intake/internal/traverse"
)

// Entry is a traverse.Entry backed by an fs.FS.
type Entry struct {
	fsys  fs.FS
	path  string // Slash-separated path within fsys
	isDir bool
	opts  ListOptions
}

// NewEntry stats name within fsys and wraps it as an entry.
func NewEntry(fsys fs.FS, name string, opts ListOptions) (*Entry, error) {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	return &Entry{fsys: fsys, path: name, isDir: info.IsDir(), opts: opts}, nil
}

// FromPath wraps a path on the local disk.
func FromPath(p string, opts ListOptions) (*Entry, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
	}
	return NewEntry(os.DirFS(filepath.Dir(abs)), filepath.Base(abs), opts)
}

// FromPaths wraps each path, skipping hidden ones unless opts.IncludeHidden is set.
// The first path that cannot be resolved aborts with an error.
func FromPaths(paths []string, opts ListOptions) ([]traverse.Entry, error) {
	out := make([]traverse.Entry, 0, len(paths))
	for _, p := range paths {
		if !opts.IncludeHidden && IsHidden(p) {
			continue
		}
		e, err := FromPath(p, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Name returns the base name of the entry.
func (e *Entry) Name() string { return path.Base(e.path) }

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return e.isDir }

// Path returns the entry's path within its filesystem.
func (e *Entry) Path() string { return e.path }

// File resolves the entry into a traverse.File.
func (e *Entry) File(ctx context.Context) (traverse.File, error) {
	info, err := fs.Stat(e.fsys, e.path)
	if err != nil {
		return traverse.File{}, fmt.Errorf("failed to stat %s: %w", e.path, err)
	}
	if !info.Mode().IsRegular() {
		return traverse.File{}, fmt.Errorf("%s is not a regular file", e.path)
	}
	fsys, name := e.fsys, e.path
	return traverse.NewFile(info.Name(), e.path, info.Size(), func() (io.ReadCloser, error) {
		return fsys.Open(name)
	}), nil
}

// Reader returns a paginated reader over the directory's children.
func (e *Entry) Reader() traverse.DirReader {
	return &dirReader{entry: e}
}

type dirReader struct {
	entry *Entry
	file  fs.ReadDirFile
	done  bool
}

// ReadEntries returns the next page of children. Hidden children are
// filtered, so a page may be shorter than PageSize; only an empty page
// signals the end.
func (r *dirReader) ReadEntries(ctx context.Context) ([]traverse.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.done {
		return nil, nil
	}

	if r.file == nil {
		f, err := r.entry.fsys.Open(r.entry.path)
		if err != nil {
			r.done = true
			return nil, fmt.Errorf("failed to open directory %s: %w", r.entry.path, err)
		}
		rdf, ok := f.(fs.ReadDirFile)
		if !ok {
			f.Close()
			r.done = true
			return nil, fmt.Errorf("%s does not support directory reads", r.entry.path)
		}
		r.file = rdf
	}

	pageSize := r.entry.opts.PageSize
	if pageSize <= 0 {
		pageSize = constants.DefaultDirPageSize
	}

	for {
		dirents, err := r.file.ReadDir(pageSize)
		if err != nil && !errors.Is(err, io.EOF) {
			r.close()
			return nil, fmt.Errorf("failed to read directory %s: %w", r.entry.path, err)
		}

		page := make([]traverse.Entry, 0, len(dirents))
		for _, d := range dirents {
			if !r.entry.opts.IncludeHidden && IsHiddenName(d.Name()) {
				continue
			}
			page = append(page, &Entry{
				fsys:  r.entry.fsys,
				path:  path.Join(r.entry.path, d.Name()),
				isDir: d.IsDir(),
				opts:  r.entry.opts,
			})
		}

		if len(dirents) == 0 || errors.Is(err, io.EOF) {
			r.close()
		}
		// A page made only of hidden names must not look like the end
		if len(page) > 0 || r.done {
			return page, nil
		}
	}
}

func (r *dirReader) close() {
	r.done = true
	if r.file != nil {
		r.file.Close()
	}
}
