package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/rescale/rescale-intake/internal/constants"
	"github.com/rescale/rescale-intake/internal/events"
	"github.com/rescale/rescale-intake/internal/localfs"
	"github.com/rescale/rescale-intake/internal/logging"
	"github.com/rescale/rescale-intake/internal/registry"
	"github.com/rescale/rescale-intake/internal/traverse"
	"github.com/rescale/rescale-intake/internal/util/filter"
)

func newWatchCmd() *cobra.Command {
	flags := &intakeFlags{}
	var settle time.Duration
	var skipExisting bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Upload files as they appear in a directory",
		Long: `Watch a directory and upload every file created or rewritten in it.

A path is picked up once it has been quiet for --settle. Deleting or
renaming a file detaches the attachment of the same name. Only the top
level of the directory is watched; a new subdirectory is uploaded as a
whole when it settles.

Runs until interrupted, then prints the resulting attachments.

Examples:
  rescale-intake watch ./inbox -m
  rescale-intake watch ./inbox --settle 2s --skip-existing`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			info, err := os.Stat(dir)
			if err != nil {
				return fmt.Errorf("cannot watch %s: %w", dir, err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cfg)

			log := GetLogger()
			ctx := GetContext()
			s, err := newSession(ctx, cfg, flags, log)
			if err != nil {
				return err
			}

			if !skipExisting {
				if err := dropExisting(s, dir); err != nil {
					log.Warn().Err(err).Msg("Failed to upload existing files")
				}
			}

			fw := newFolderWatcher(dir, s.widget, s.bus, s.listOpts, settle, log)
			fw.filter = s.filter
			log.Info().Str("dir", dir).Msg("Watching for new files, press Ctrl+C to stop")
			runErr := fw.Run(ctx)

			value := s.finish()
			if runErr != nil {
				return runErr
			}
			return printValue(cmd.OutOrStdout(), value, flags.output)
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&settle, "settle", constants.WatchSettleDelay, "Quiet period before a new path is uploaded")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Do not upload files already in the directory")
	return cmd
}

func dropExisting(s *session, dir string) error {
	children, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(children))
	for _, c := range children {
		paths = append(paths, filepath.Join(dir, c.Name()))
	}
	entries, err := localfs.FromPaths(paths, s.listOpts)
	if err != nil {
		return err
	}
	entries = applyFilter(entries, s.filter)
	if len(entries) == 0 {
		return nil
	}
	return s.widget.Drop(entries)
}

// watchTarget is the part of the widget the folder watcher drives.
type watchTarget interface {
	ID() string
	Drop(entries []traverse.Entry) error
	Records() []registry.Record
}

// folderWatcher turns filesystem events in one directory into drops and
// detach requests.
type folderWatcher struct {
	dir    string
	target watchTarget
	bus    *events.EventBus
	opts   localfs.ListOptions
	filter filter.Config
	settle time.Duration
	logger *logging.Logger

	mu      sync.Mutex
	pending map[string]time.Time // path → last event
}

func newFolderWatcher(dir string, target watchTarget, bus *events.EventBus, opts localfs.ListOptions, settle time.Duration, logger *logging.Logger) *folderWatcher {
	if settle <= 0 {
		settle = constants.WatchSettleDelay
	}
	return &folderWatcher{
		dir:     dir,
		target:  target,
		bus:     bus,
		opts:    opts,
		settle:  settle,
		logger:  logging.OrNop(logger),
		pending: make(map[string]time.Time),
	}
}

// Run watches until ctx is cancelled.
func (fw *folderWatcher) Run(ctx context.Context) error {
	w, err := fw.open()
	if err != nil {
		return err
	}
	fw.loop(ctx, w)
	return nil
}

func (fw *folderWatcher) open() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(fw.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", fw.dir, err)
	}
	return w, nil
}

func (fw *folderWatcher) loop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()

	ticker := time.NewTicker(fw.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			fw.handle(ev, time.Now())
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			fw.logger.Warn().Err(err).Str("dir", fw.dir).Msg("Watcher error")
		case now := <-ticker.C:
			fw.flush(now)
		}
	}
}

func (fw *folderWatcher) handle(ev fsnotify.Event, now time.Time) {
	if !fw.opts.IncludeHidden && localfs.IsHiddenName(filepath.Base(ev.Name)) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		fw.mu.Lock()
		fw.pending[ev.Name] = now
		fw.mu.Unlock()
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		fw.mu.Lock()
		delete(fw.pending, ev.Name)
		fw.mu.Unlock()
		fw.detachByName(filepath.Base(ev.Name))
	}
}

// flush drops every pending path that has been quiet for the settle delay.
func (fw *folderWatcher) flush(now time.Time) {
	fw.mu.Lock()
	var ready []string
	for p, seen := range fw.pending {
		if now.Sub(seen) >= fw.settle {
			ready = append(ready, p)
			delete(fw.pending, p)
		}
	}
	fw.mu.Unlock()

	if len(ready) == 0 {
		return
	}
	sort.Strings(ready)

	entries := make([]traverse.Entry, 0, len(ready))
	for _, p := range ready {
		e, err := localfs.FromPath(p, fw.opts)
		if err != nil {
			fw.logger.Debug().Err(err).Str("path", p).Msg("Path vanished before upload")
			continue
		}
		entries = append(entries, e)
	}
	entries = applyFilter(entries, fw.filter)
	if len(entries) == 0 {
		return
	}
	if err := fw.target.Drop(entries); err != nil {
		fw.logger.Warn().Err(err).Msg("Failed to hand files to the widget")
	}
}

// detachByName asks the widget to detach every attachment named name.
func (fw *folderWatcher) detachByName(name string) {
	for _, rec := range fw.target.Records() {
		if rec.Name != name {
			continue
		}
		fw.logger.Info().Str("file", name).Str("id", rec.ContentID).Msg("File removed, detaching")
		fw.bus.PublishDetachRequest(fw.target.ID(), rec.ContentID, "watch")
	}
}
