package intake

import (
	"context"
	"sync"
	"time"

	"github.com/rescale/rescale-intake/internal/constants"
	"github.com/rescale/rescale-intake/internal/contentid"
	"github.com/rescale/rescale-intake/internal/events"
	"github.com/rescale/rescale-intake/internal/logging"
	"github.com/rescale/rescale-intake/internal/metrics"
	"github.com/rescale/rescale-intake/internal/progress"
	"github.com/rescale/rescale-intake/internal/registry"
	"github.com/rescale/rescale-intake/internal/remote"
	"github.com/rescale/rescale-intake/internal/traverse"
	"github.com/rescale/rescale-intake/internal/validation"
)

// coordinator runs the per-file state machine against the widget's registry
// and aggregator:
//
//	validate → replace (single mode) → hash → duplicate check → gate →
//	observe → preview → upload → attach
//
// mu serializes the replacement decision with the in-flight count and the
// epoch capture, so a file either supersedes its predecessors or is
// superseded by its successor, never both.
type coordinator struct {
	source    string
	multiple  bool
	registry  *registry.Registry
	agg       *progress.Aggregator
	gallery   progress.Gallery
	validator validation.Validator
	uploader  Uploader
	deleter   *remote.AsyncDeleter
	hooks     hooks
	bus       *events.EventBus
	metrics   metrics.Recorder
	logger    *logging.Logger

	mu       sync.Mutex
	inflight int
}

// process takes one file through the state machine and reports where it ended.
func (c *coordinator) process(ctx context.Context, f traverse.File) metrics.Outcome {
	outcome := c.run(ctx, f)
	c.metrics.RecordOutcome(outcome)
	c.logger.Debug().Str("file", f.Name).Str("outcome", string(outcome)).Msg("File processed")
	return outcome
}

func (c *coordinator) run(ctx context.Context, f traverse.File) metrics.Outcome {
	ext := contentid.Extension(f.Name)
	if !c.validator.Valid(f.Size, ext) {
		return metrics.OutcomeInvalid
	}

	epoch := c.admit()
	defer c.release()

	c.agg.BeginBatch()

	data, err := f.ReadAll()
	if err != nil {
		c.logger.Warn().Err(err).Str("file", f.Path).Msg("Failed to read file")
		return metrics.OutcomeReadFailed
	}
	id := contentid.Of(data, f.Name)

	if c.registry.Has(id) {
		c.notifyDuplicate(id)
		return metrics.OutcomeDuplicate
	}

	if ctx.Err() != nil || !c.hooks.allow(ctx, id) {
		return metrics.OutcomeVetoed
	}
	c.hooks.observe(data, id, f.Name)

	preview := c.gallery.NewPreview(f.Name, progress.KindOf(f.Name), int64(len(data)))
	slot := c.agg.AddSlot()
	// The slot always finishes, whatever the outcome.
	defer c.agg.UpdateSlot(slot, 100)

	start := time.Now()
	status, err := c.uploader.Upload(ctx, id, f.Name, data, func(sent, total int64) {
		pct := progress.PercentOf(sent, total)
		c.agg.UpdateSlot(slot, pct)
		preview.UpdateProgress(pct / 100)
	})
	c.metrics.ObserveUpload(status, int64(len(data)), time.Since(start))

	if err != nil {
		c.logger.Warn().Err(err).Str("file", f.Name).Str("id", id).Msg("Upload failed")
		preview.Discard()
		return metrics.OutcomeFailed
	}
	if !remote.Accepted(status) {
		c.logger.Warn().Int("status", status).Str("file", f.Name).Str("id", id).Msg("Upload rejected")
		preview.Discard()
		return metrics.OutcomeFailed
	}

	switch c.registry.TryAttachAt(epoch, id, f.Name, registry.Status(status)) {
	case registry.Accepted:
		rec, _ := c.registry.Get(id)
		preview.Bind(rec)
		c.publishAttachment(events.EventAttached, rec)
		return metrics.OutcomeAccepted
	case registry.DuplicateRejected:
		preview.Discard()
		c.notifyDuplicate(id)
		return metrics.OutcomeDuplicate
	default:
		// Superseded by a reset or a single-mode replacement while uploading.
		// An object the store created for it is referenced by nothing.
		c.logger.Info().Str("id", id).Int("status", status).Msg("Upload completed after reset, not attached")
		preview.Discard()
		if registry.Status(status) == registry.StatusCreated && !c.registry.Has(id) {
			c.deleter.Enqueue([]string{id})
		}
		return metrics.OutcomeStale
	}
}

// admit registers a file as in flight and returns the epoch its attach must
// match. In single mode an earlier attachment or in-flight file is replaced:
// NewlyAdded ids are sent for deletion once, then the registry, batch and
// gallery are cleared.
func (c *coordinator) admit() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.multiple && (c.registry.Len() > 0 || c.inflight > 0) {
		ids := c.registry.Drain()
		c.deleter.Enqueue(ids)
		c.agg.Reset()
		c.gallery.Clear()
		c.logger.Debug().Strs("deleted", ids).Msg("Replacing previous attachment")
	}
	c.inflight++
	return c.registry.Epoch()
}

func (c *coordinator) release() {
	c.mu.Lock()
	c.inflight--
	c.mu.Unlock()
}

// reset clears attachments and progress without notifying the remote store.
func (c *coordinator) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry.Clear()
	c.agg.Reset()
	c.gallery.Clear()
}

// detach removes id. Records created during this session are sent for deletion.
func (c *coordinator) detach(id string) bool {
	rec, ok := c.registry.Detach(id)
	if !ok {
		return false
	}
	c.gallery.Remove(id)
	if rec.Status == registry.StatusCreated {
		c.deleter.Enqueue([]string{id})
	}
	c.publishAttachment(events.EventDetached, rec)
	return true
}

func (c *coordinator) inFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}

func (c *coordinator) notifyDuplicate(id string) {
	c.logger.Debug().Str("id", id).Msg("File already attached")
	if c.bus != nil {
		c.bus.PublishNotify(events.WarnLevel, constants.DuplicateMessage, c.source)
	}
}

func (c *coordinator) publishAttachment(t events.EventType, rec registry.Record) {
	if c.bus != nil {
		c.bus.PublishAttachment(t, rec.ContentID, rec.Name, int(rec.Status), c.source)
	}
}
