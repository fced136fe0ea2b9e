package registry

import (
	"fmt"
	"sync"
	"testing"
)

func TestTryAttach(t *testing.T) {
	r := New()

	if got := r.TryAttach("a.png", "a.png", StatusCreated); got != Accepted {
		t.Fatalf("first attach = %v, want accepted", got)
	}
	if got := r.TryAttach("a.png", "other name.png", StatusConfirmed); got != DuplicateRejected {
		t.Fatalf("second attach = %v, want duplicate", got)
	}

	rec, ok := r.Get("a.png")
	if !ok {
		t.Fatal("record missing after attach")
	}
	if rec.Name != "a.png" || rec.Status != StatusCreated || rec.Provenance != NewlyAdded {
		t.Errorf("duplicate attach mutated record: %+v", rec)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestProvenanceFromStatus(t *testing.T) {
	tests := []struct {
		status Status
		want   Provenance
		newly  int
	}{
		{StatusCreated, NewlyAdded, 1},
		{StatusConfirmed, PreExisting, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(int(tt.status)), func(t *testing.T) {
			r := New()
			r.TryAttach("x.txt", "x.txt", tt.status)
			rec, _ := r.Get("x.txt")
			if rec.Provenance != tt.want {
				t.Errorf("Provenance = %v, want %v", rec.Provenance, tt.want)
			}
			if got := len(r.NewlyAdded()); got != tt.newly {
				t.Errorf("len(NewlyAdded()) = %d, want %d", got, tt.newly)
			}
		})
	}
}

func TestSeeded(t *testing.T) {
	r := NewSeeded(map[string]string{"b.pdf": "report.pdf", "a.png": "cat.png"})

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if ids := r.NewlyAdded(); ids != nil {
		t.Errorf("seeds reported as newly added: %v", ids)
	}
	recs := r.Records()
	if recs[0].ContentID != "a.png" || recs[1].ContentID != "b.pdf" {
		t.Errorf("Records() order = %v", recs)
	}
	for _, rec := range recs {
		if rec.Status != StatusConfirmed {
			t.Errorf("seed %s status = %d, want 200", rec.ContentID, rec.Status)
		}
	}
	if got := r.TryAttach("a.png", "cat.png", StatusCreated); got != DuplicateRejected {
		t.Errorf("attach of seeded id = %v, want duplicate", got)
	}
}

func TestDetach(t *testing.T) {
	r := New()
	r.TryAttach("a.png", "a.png", StatusCreated)
	r.TryAttach("b.png", "b.png", StatusConfirmed)

	rec, ok := r.Detach("a.png")
	if !ok || rec.Status != StatusCreated {
		t.Fatalf("Detach(a.png) = %+v, %v", rec, ok)
	}
	if r.Has("a.png") {
		t.Error("a.png still attached")
	}
	if ids := r.NewlyAdded(); len(ids) != 0 {
		t.Errorf("NewlyAdded() after detach = %v", ids)
	}
	if _, ok := r.Detach("a.png"); ok {
		t.Error("second Detach reported a removal")
	}
	if got := r.Snapshot(); len(got) != 1 || got["b.png"] != "b.png" {
		t.Errorf("Snapshot() = %v", got)
	}
}

func TestSnapshotEmptyIsNil(t *testing.T) {
	r := New()
	if got := r.Snapshot(); got != nil {
		t.Errorf("Snapshot() of empty registry = %v, want nil", got)
	}
	r.TryAttach("a.png", "a.png", StatusCreated)
	r.Detach("a.png")
	if got := r.Snapshot(); got != nil {
		t.Errorf("Snapshot() after detaching everything = %v, want nil", got)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	r := New()
	r.TryAttach("a.png", "a.png", StatusCreated)
	snap := r.Snapshot()
	snap["z.png"] = "z.png"
	if r.Has("z.png") {
		t.Error("mutating the snapshot changed the registry")
	}
}

func TestClearBumpsEpoch(t *testing.T) {
	r := New()
	epoch := r.Epoch()
	r.TryAttach("a.png", "a.png", StatusCreated)
	r.Clear()

	if r.Len() != 0 || r.NewlyAdded() != nil {
		t.Error("Clear left records behind")
	}
	if r.Epoch() == epoch {
		t.Error("Clear did not change epoch")
	}
	if got := r.TryAttachAt(epoch, "b.png", "b.png", StatusCreated); got != Stale {
		t.Errorf("TryAttachAt(old epoch) = %v, want stale", got)
	}
	if r.Has("b.png") {
		t.Error("stale attach was recorded")
	}
	if got := r.TryAttachAt(r.Epoch(), "b.png", "b.png", StatusCreated); got != Accepted {
		t.Errorf("TryAttachAt(current epoch) = %v, want accepted", got)
	}
}

func TestDrain(t *testing.T) {
	r := New()
	r.TryAttach("b.png", "b.png", StatusCreated)
	r.TryAttach("a.png", "a.png", StatusCreated)
	r.TryAttach("c.png", "c.png", StatusConfirmed)

	ids := r.Drain()
	if len(ids) != 2 || ids[0] != "a.png" || ids[1] != "b.png" {
		t.Errorf("Drain() = %v, want [a.png b.png]", ids)
	}
	if r.Len() != 0 {
		t.Errorf("Len() after Drain = %d", r.Len())
	}
	if ids := r.Drain(); ids != nil {
		t.Errorf("second Drain() = %v, want nil", ids)
	}
}

func TestConcurrentAttachSameID(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	results := make(chan Result, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- r.TryAttach("same.png", "same.png", StatusCreated)
		}()
	}
	wg.Wait()
	close(results)

	accepted := 0
	for res := range results {
		if res == Accepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Errorf("%d concurrent attaches accepted, want exactly 1", accepted)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}
