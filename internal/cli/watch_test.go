package cli

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rescale/rescale-intake/internal/events"
	"github.com/rescale/rescale-intake/internal/localfs"
	"github.com/rescale/rescale-intake/internal/registry"
	"github.com/rescale/rescale-intake/internal/traverse"
)

type fakeTarget struct {
	mu      sync.Mutex
	dropped []string
	records []registry.Record
}

func (f *fakeTarget) ID() string { return "widget-1" }

func (f *fakeTarget) Drop(entries []traverse.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		f.dropped = append(f.dropped, e.Name())
	}
	return nil
}

func (f *fakeTarget) Records() []registry.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]registry.Record(nil), f.records...)
}

func (f *fakeTarget) droppedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dropped...)
}

func TestFolderWatcherSettles(t *testing.T) {
	fw := newFolderWatcher("/inbox", &fakeTarget{}, events.NewEventBus(0), localfs.ListOptions{}, time.Second, nil)
	target := fw.target.(*fakeTarget)

	dir := t.TempDir()
	path := filepath.Join(dir, "scan.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	fw.handle(fsnotify.Event{Name: path, Op: fsnotify.Create}, start)
	fw.handle(fsnotify.Event{Name: filepath.Join(dir, ".partial"), Op: fsnotify.Create}, start)

	fw.flush(start.Add(500 * time.Millisecond))
	if got := target.droppedNames(); len(got) != 0 {
		t.Fatalf("dropped before settling: %v", got)
	}

	// A write restarts the quiet period.
	fw.handle(fsnotify.Event{Name: path, Op: fsnotify.Write}, start.Add(800*time.Millisecond))
	fw.flush(start.Add(1500 * time.Millisecond))
	if got := target.droppedNames(); len(got) != 0 {
		t.Fatalf("dropped while still being written: %v", got)
	}

	fw.flush(start.Add(2 * time.Second))
	got := target.droppedNames()
	if len(got) != 1 || got[0] != "scan.pdf" {
		t.Errorf("dropped = %v, want [scan.pdf]", got)
	}

	fw.flush(start.Add(3 * time.Second))
	if got := target.droppedNames(); len(got) != 1 {
		t.Errorf("path dropped twice: %v", got)
	}
}

func TestFolderWatcherVanishedPath(t *testing.T) {
	target := &fakeTarget{}
	fw := newFolderWatcher("/inbox", target, events.NewEventBus(0), localfs.ListOptions{}, time.Second, nil)

	now := time.Now()
	fw.handle(fsnotify.Event{Name: filepath.Join(t.TempDir(), "gone.txt"), Op: fsnotify.Create}, now)
	fw.flush(now.Add(2 * time.Second))

	if got := target.droppedNames(); len(got) != 0 {
		t.Errorf("dropped = %v, want nothing", got)
	}
}

func TestFolderWatcherRemoveDetaches(t *testing.T) {
	bus := events.NewEventBus(0)
	defer bus.Close()
	requests := bus.Subscribe(events.EventDetachRequested)

	target := &fakeTarget{records: []registry.Record{
		{ContentID: "0123456789abcdef0123456789abcdef.txt", Name: "notes.txt"},
		{ContentID: "fedcba9876543210fedcba9876543210.txt", Name: "other.txt"},
	}}
	fw := newFolderWatcher("/inbox", target, bus, localfs.ListOptions{}, time.Second, nil)

	fw.handle(fsnotify.Event{Name: "/inbox/notes.txt", Op: fsnotify.Remove}, time.Now())

	select {
	case ev := <-requests:
		req := ev.(*events.DetachRequestEvent)
		if req.Target != "widget-1" {
			t.Errorf("target = %q, want widget-1", req.Target)
		}
		if req.ContentID != "0123456789abcdef0123456789abcdef.txt" {
			t.Errorf("content id = %q", req.ContentID)
		}
	case <-time.After(time.Second):
		t.Fatal("no detach request published")
	}

	select {
	case ev := <-requests:
		t.Errorf("unexpected second request: %+v", ev)
	default:
	}
}

func TestFolderWatcherRun(t *testing.T) {
	dir := t.TempDir()
	target := &fakeTarget{}
	fw := newFolderWatcher(dir, target, events.NewEventBus(0), localfs.ListOptions{}, 50*time.Millisecond, nil)

	w, err := fw.open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fw.loop(ctx, w)
		close(done)
	}()

	if err := os.WriteFile(filepath.Join(dir, "photo.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(target.droppedNames()) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done

	got := target.droppedNames()
	if len(got) != 1 || got[0] != "photo.png" {
		t.Errorf("dropped = %v, want [photo.png]", got)
	}
}

func TestFolderWatcherMissingDir(t *testing.T) {
	fw := newFolderWatcher(filepath.Join(t.TempDir(), "missing"), &fakeTarget{}, events.NewEventBus(0), localfs.ListOptions{}, 0, nil)
	if err := fw.Run(context.Background()); err == nil {
		t.Error("Run on a missing directory should fail")
	}
}
