// Package traverse flattens a dropped payload of file and directory entries
// into a stream of files.
package traverse

import (
	"context"
	"fmt"
	"io"

	"github.com/rescale/rescale-intake/internal/logging"
)

// File is a resolved file ready for intake.
type File struct {
	Name string // Base name
	Path string // Path within the dropped payload, for logging
	Size int64
	open func() (io.ReadCloser, error)
}

// NewFile creates a File whose content is produced by open.
func NewFile(name, path string, size int64, open func() (io.ReadCloser, error)) File {
	return File{Name: name, Path: path, Size: size, open: open}
}

// Open returns the file content.
func (f File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("file %s has no content source", f.Path)
	}
	return f.open()
}

// ReadAll reads the whole file.
func (f File) ReadAll() ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
	}
	return data, nil
}

// Entry is one node of a dropped payload.
type Entry interface {
	Name() string
	IsDir() bool
	// File resolves a file entry. Only called when IsDir is false.
	File(ctx context.Context) (File, error)
	// Reader lists a directory entry. Only called when IsDir is true.
	Reader() DirReader
}

// DirReader pages through a directory's children. An empty page means the
// directory is exhausted.
type DirReader interface {
	ReadEntries(ctx context.Context) ([]Entry, error)
}

// Walker expands entries with an explicit worklist, so nesting depth is
// bounded only by memory.
type Walker struct {
	logger *logging.Logger
}

// NewWalker creates a walker. Resolution failures are logged to logger and skipped.
func NewWalker(logger *logging.Logger) *Walker {
	return &Walker{logger: logging.OrNop(logger)}
}

// Walk emits every file reachable from entries exactly once. With single set
// only the first top-level entry is expanded. It returns the number of files
// emitted, and ctx.Err() if the walk was cancelled.
func (w *Walker) Walk(ctx context.Context, entries []Entry, single bool, emit func(File)) (int, error) {
	if single && len(entries) > 1 {
		entries = entries[:1]
	}

	// Stack of pending entries; pushed in reverse so siblings pop in order
	stack := make([]Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		stack = append(stack, entries[i])
	}

	emitted := 0
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return emitted, err
		}

		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if e == nil {
			continue
		}

		if !e.IsDir() {
			f, err := e.File(ctx)
			if err != nil {
				w.logger.Warn().Err(err).Str("entry", e.Name()).Msg("Skipping unreadable entry")
				continue
			}
			emit(f)
			emitted++
			continue
		}

		children, err := readAll(ctx, e.Reader())
		if err != nil {
			w.logger.Warn().Err(err).Str("entry", e.Name()).Msg("Skipping unreadable directory")
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return emitted, nil
}

// readAll drains r page by page. Children read before a failing page are kept.
func readAll(ctx context.Context, r DirReader) ([]Entry, error) {
	if r == nil {
		return nil, nil
	}
	var all []Entry
	for {
		page, err := r.ReadEntries(ctx)
		if err != nil {
			return all, err
		}
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
	}
}
