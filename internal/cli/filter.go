package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rescale/rescale-intake/internal/traverse"
	"github.com/rescale/rescale-intake/internal/util/filter"
)

// filterFlags are the --include/--exclude/--path flags.
type filterFlags struct {
	include string
	exclude string
	paths   string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.include, "include", "", "Only take files whose name matches one of these globs (comma-separated)")
	cmd.Flags().StringVar(&f.exclude, "exclude", "", "Skip files whose name or path matches one of these globs (comma-separated)")
	cmd.Flags().StringVar(&f.paths, "path", "", "Only take files whose path below the given root matches (comma-separated, ** allowed)")
}

func (f *filterFlags) config() filter.Config {
	return filter.Config{
		Include:     filter.ParsePatternList(f.include),
		Exclude:     filter.ParsePatternList(f.exclude),
		PathInclude: filter.ParsePatternList(f.paths),
	}
}

// applyFilter wraps entries so files rejected by cfg are never listed.
// Paths are matched relative to each top-level entry; a top-level file is
// matched by its name.
func applyFilter(entries []traverse.Entry, cfg filter.Config) []traverse.Entry {
	if cfg.IsEmpty() {
		return entries
	}
	out := make([]traverse.Entry, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && !cfg.Match(e.Name()) {
			continue
		}
		out = append(out, &filteredEntry{Entry: e, cfg: cfg})
	}
	return out
}

// filteredEntry is a directory entry whose listing is filtered. rel is the
// path below the top-level entry ("" for the top level itself).
type filteredEntry struct {
	traverse.Entry
	cfg filter.Config
	rel string
}

func (e *filteredEntry) Reader() traverse.DirReader {
	return &filteredReader{next: e.Entry.Reader(), cfg: e.cfg, rel: e.rel}
}

type filteredReader struct {
	next traverse.DirReader
	cfg  filter.Config
	rel  string
}

// ReadEntries filters one page. A page whose children are all rejected is
// skipped rather than returned empty, since an empty page ends the listing.
func (r *filteredReader) ReadEntries(ctx context.Context) ([]traverse.Entry, error) {
	for {
		page, err := r.next.ReadEntries(ctx)
		if len(page) == 0 {
			return nil, err
		}

		kept := make([]traverse.Entry, 0, len(page))
		for _, child := range page {
			rel := child.Name()
			if r.rel != "" {
				rel = r.rel + "/" + rel
			}
			if child.IsDir() {
				kept = append(kept, &filteredEntry{Entry: child, cfg: r.cfg, rel: rel})
				continue
			}
			if r.cfg.Match(rel) {
				kept = append(kept, child)
			}
		}
		if len(kept) > 0 || err != nil {
			return kept, err
		}
	}
}
