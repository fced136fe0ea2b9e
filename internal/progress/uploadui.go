package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/rescale/rescale-intake/internal/constants"
	"github.com/rescale/rescale-intake/internal/registry"
)

// UploadUI is a terminal Gallery: one mpb bar per uploading file, and a
// line per attachment once it is bound.
type UploadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	bound      sync.Map // content id -> *FileBar
	isTerminal bool
	started    int32 // Atomic counter for preview index (1, 2, 3, ...)
}

// FileBar is a single file's preview
type FileBar struct {
	bar        *mpb.Bar
	ui         *UploadUI
	index      int
	name       string
	kind       PreviewKind
	size       int64
	startTime  time.Time
	done       atomic.Bool

	mu         sync.Mutex // Guards lastUpdate and lastBytes
	lastUpdate time.Time
	lastBytes  int64
}

// NewUploadUI creates a terminal gallery on stderr. Bars are disabled when
// stderr is not a terminal and plain lines are printed instead.
func NewUploadUI() *UploadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		// Enable ANSI escape sequences on Windows for proper progress bar rendering
		enableANSIOnWindows(os.Stderr)

		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(constants.ProgressRefreshRate),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UploadUI{
		progress:   p,
		out:        os.Stdout,
		isTerminal: isTerminal,
	}
}

// NewPreview creates a bar for a file about to upload
func (u *UploadUI) NewPreview(name string, kind PreviewKind, size int64) Preview {
	index := int(atomic.AddInt32(&u.started, 1))
	label := truncatePath(name, 2)

	fb := &FileBar{
		ui:         u,
		index:      index,
		name:       name,
		kind:       kind,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("[%d] %s %s (%s)", index, kindTag(kind), label, humanize.IBytes(uint64(size))), decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Uploading [%d]: %s %s (%s)\n", index, kindTag(kind), label, humanize.IBytes(uint64(size)))
	}

	return fb
}

// RenderExisting lists attachments present at construction
func (u *UploadUI) RenderExisting(recs []registry.Record) {
	for _, rec := range recs {
		u.print(fmt.Sprintf("• %s %s (%s)\n", kindTag(KindOf(rec.Name)), rec.DisplayName, rec.ContentID))
	}
}

// Remove reports a detached attachment
func (u *UploadUI) Remove(contentID string) {
	name := contentID
	if v, ok := u.bound.LoadAndDelete(contentID); ok {
		name = v.(*FileBar).name
	}
	u.print(fmt.Sprintf("− %s detached (%s)\n", truncatePath(name, 2), contentID))
}

// Clear drops every entry
func (u *UploadUI) Clear() {
	u.bound.Range(func(k, _ any) bool {
		u.bound.Delete(k)
		return true
	})
	u.print("− attachments cleared\n")
}

// UpdateProgress updates the bar based on a fraction (0.0 to 1.0).
// Updates are throttled to the refresh rate.
func (f *FileBar) UpdateProgress(fraction float64) {
	if f.bar == nil || f.done.Load() {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(f.lastUpdate)
	currentBytes := int64(fraction * float64(f.size))

	if elapsed >= constants.ProgressRefreshRate || fraction >= 1 {
		f.bar.EwmaIncrBy(int(currentBytes-f.lastBytes), elapsed)
		f.lastBytes = currentBytes
		f.lastUpdate = now
	}
}

// Bind completes the bar and prints the attachment
func (f *FileBar) Bind(rec registry.Record) {
	if !f.done.CompareAndSwap(false, true) {
		return
	}
	elapsed := time.Since(f.startTime)

	if f.bar != nil {
		f.bar.SetCurrent(f.size)
		f.bar.SetTotal(f.size, true)
	}
	f.ui.bound.Store(rec.ContentID, f)

	f.ui.print(fmt.Sprintf("✓ %s → %s (%s, %s, %s)\n",
		truncatePath(f.name, 2),
		rec.ContentID,
		humanize.IBytes(uint64(f.size)),
		rec.Provenance,
		elapsed.Round(time.Millisecond)))
}

// Discard aborts the bar
func (f *FileBar) Discard() {
	if !f.done.CompareAndSwap(false, true) {
		return
	}
	if f.bar != nil {
		f.bar.Abort(true)
	}
	f.ui.print(fmt.Sprintf("✗ %s not attached\n", truncatePath(f.name, 2)))
}

// print writes through mpb's writer when bars are active so output lands above them
func (u *UploadUI) print(msg string) {
	if u.isTerminal && u.progress != nil {
		_, _ = u.progress.Write([]byte(msg))
		return
	}
	fmt.Fprint(u.out, msg)
}

// Wait blocks until all progress bars complete
func (u *UploadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that safely prints above the progress bars
func (u *UploadUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return os.Stderr
}

// IsTerminal returns true if output is to a terminal (progress bars are active).
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

func kindTag(k PreviewKind) string {
	if k.Image {
		return "[img]"
	}
	if k.Label == "" {
		return "[file]"
	}
	return "[" + strings.ToLower(k.Label) + "]"
}

// truncatePath truncates a file path to show only the last N components
// Example: truncatePath("/a/b/c/d/file.txt", 3) → "…/c/d/file.txt"
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}

// enableANSIOnWindows enables Virtual Terminal processing on Windows for ANSI escape sequences
func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}
