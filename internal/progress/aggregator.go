package progress

import "sync"

// SlotRef identifies one upload's slot within a batch.
type SlotRef struct {
	batch uint64
	index int
}

// Batch returns the generation of the batch the slot belongs to.
func (s SlotRef) Batch() uint64 { return s.batch }

// Aggregator folds concurrent per-file upload percentages into one figure
// for the current batch. A batch starts when the first slot is added and ends
// when the aggregate reaches exactly 100.
//
// The aggregate is the mean of the slots the batch knows about. Reporter
// calls are made while holding the aggregator's lock, so reporters must not
// block.
type Aggregator struct {
	mu       sync.Mutex
	reporter Reporter
	batch    uint64 // Generation; bumped on every begin and reset
	active   bool
	slots    []float64
	percent  float64
}

// NewAggregator creates an aggregator rendering through r. A nil r discards output.
func NewAggregator(r Reporter) *Aggregator {
	if r == nil {
		r = NewNoOpReporter()
	}
	return &Aggregator{reporter: r}
}

// BeginBatch starts a batch and shows the indicator. Calling it while a
// batch is active does nothing.
func (a *Aggregator) BeginBatch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.beginLocked()
}

func (a *Aggregator) beginLocked() {
	if a.active {
		return
	}
	a.batch++
	a.active = true
	a.slots = nil
	a.percent = 0
	a.reporter.Show()
}

// AddSlot registers a new upload at 0% in the current batch, starting a
// batch if none is active.
func (a *Aggregator) AddSlot() SlotRef {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.beginLocked()
	a.slots = append(a.slots, 0)
	ref := SlotRef{batch: a.batch, index: len(a.slots) - 1}
	a.recomputeLocked()
	return ref
}

// UpdateSlot records percent for ref and re-reports the aggregate. Values are
// clamped to [0,100]. Updates for a batch that already ended are ignored.
func (a *Aggregator) UpdateSlot(ref SlotRef, percent float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active || ref.batch != a.batch || ref.index >= len(a.slots) {
		return
	}
	switch {
	case percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	a.slots[ref.index] = percent
	a.recomputeLocked()

	if a.percent == 100 {
		a.endLocked()
	}
}

func (a *Aggregator) recomputeLocked() {
	if len(a.slots) == 0 {
		a.percent = 0
		return
	}
	var sum float64
	for _, p := range a.slots {
		sum += p
	}
	a.percent = sum / float64(len(a.slots))
	a.reporter.Update(a.percent, len(a.slots))
}

func (a *Aggregator) endLocked() {
	a.active = false
	a.slots = nil
	a.reporter.Hide()
}

// EndBatchIfIdle ends an active batch that never acquired a slot, which
// happens when every file in it was rejected before uploading.
func (a *Aggregator) EndBatchIfIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active && len(a.slots) == 0 {
		a.endLocked()
	}
}

// Reset abandons the current batch. Outstanding slot refs become stale.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		a.endLocked()
	}
	a.batch++
	a.percent = 0
}

// Percent returns the last reported aggregate.
func (a *Aggregator) Percent() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.percent
}

// Active reports whether a batch is visible.
func (a *Aggregator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Slots returns the number of slots in the active batch.
func (a *Aggregator) Slots() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots)
}

// PercentOf converts a byte count into a percentage. A non-positive total
// counts as complete.
func PercentOf(loaded, total int64) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(loaded) * 100 / float64(total)
	if p > 100 {
		return 100
	}
	return p
}
