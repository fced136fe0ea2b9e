// Package registry holds the authoritative set of files attached to one
// intake widget, keyed by content id.
package registry

import (
	"sort"
	"sync"

	"github.com/rescale/rescale-intake/internal/contentid"
)

// Provenance records where an attachment came from.
type Provenance int

const (
	// PreExisting attachments were supplied at construction or already existed remotely.
	PreExisting Provenance = iota
	// NewlyAdded attachments were created remotely during this session.
	NewlyAdded
)

func (p Provenance) String() string {
	if p == NewlyAdded {
		return "newly-added"
	}
	return "pre-existing"
}

// Status is the remote status of an attachment, expressed as the HTTP status
// the upload endpoint answered with.
type Status int

const (
	StatusPending   Status = 0
	StatusConfirmed Status = 200 // Remote object already existed
	StatusCreated   Status = 201 // Remote object was created by this upload
)

// Result is the outcome of an attach attempt.
type Result int

const (
	Accepted Result = iota
	DuplicateRejected
	// Stale means the registry was cleared after the attempt began.
	Stale
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case DuplicateRejected:
		return "duplicate"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Record is one attached file.
type Record struct {
	ContentID   string
	Name        string // Original file name
	DisplayName string // Name sanitized for display
	Provenance  Provenance
	Status      Status
}

// Registry is the attachment set of one widget. Safe for concurrent use;
// every operation is a single critical section with no I/O inside.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
	order   []string // Attachment order, for stable rendering
	newly   map[string]struct{}
	epoch   uint64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[string]Record),
		newly:   make(map[string]struct{}),
	}
}

// NewSeeded creates a registry pre-populated with already persisted files.
// Seeds are recorded as PreExisting with StatusConfirmed.
func NewSeeded(seed map[string]string) *Registry {
	r := New()
	ids := make([]string, 0, len(seed))
	for id := range seed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r.attachLocked(id, seed[id], StatusConfirmed)
	}
	return r
}

// TryAttach records id if it is not already present.
// StatusCreated marks the record NewlyAdded.
func (r *Registry) TryAttach(id, name string, status Status) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tryAttachLocked(id, name, status)
}

// TryAttachAt behaves like TryAttach but refuses with Stale when the registry
// has been cleared since epoch was observed.
func (r *Registry) TryAttachAt(epoch uint64, id, name string, status Status) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != epoch {
		return Stale
	}
	return r.tryAttachLocked(id, name, status)
}

func (r *Registry) tryAttachLocked(id, name string, status Status) Result {
	if _, ok := r.records[id]; ok {
		return DuplicateRejected
	}
	r.attachLocked(id, name, status)
	return Accepted
}

func (r *Registry) attachLocked(id, name string, status Status) {
	rec := Record{
		ContentID:   id,
		Name:        name,
		DisplayName: contentid.DisplayName(name),
		Provenance:  PreExisting,
		Status:      status,
	}
	if status == StatusCreated {
		rec.Provenance = NewlyAdded
		r.newly[id] = struct{}{}
	}
	r.records[id] = rec
	r.order = append(r.order, id)
}

// Detach removes id and returns the record it held. Detaching an absent id
// is a no-op returning false.
func (r *Registry) Detach(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	delete(r.records, id)
	delete(r.newly, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return rec, true
}

// Clear empties the registry and starts a new epoch.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

// Drain atomically clears the registry and returns the NewlyAdded ids it held.
func (r *Registry) Drain() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.newlyLocked()
	r.clearLocked()
	return ids
}

func (r *Registry) clearLocked() {
	r.records = make(map[string]Record)
	r.newly = make(map[string]struct{})
	r.order = nil
	r.epoch++
}

// Snapshot returns a copy of the id → original name mapping, or nil when
// nothing is attached.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.records) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.records))
	for id, rec := range r.records {
		out[id] = rec.Name
	}
	return out
}

// Records returns the attached records in attachment order.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out
}

// Get returns the record for id.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// Has reports whether id is attached.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[id]
	return ok
}

// Len returns the number of attachments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// NewlyAdded returns the ids created remotely during this session, sorted.
func (r *Registry) NewlyAdded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.newlyLocked()
}

func (r *Registry) newlyLocked() []string {
	if len(r.newly) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.newly))
	for id := range r.newly {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Epoch returns the current epoch. It changes on every Clear and Drain.
func (r *Registry) Epoch() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.epoch
}
