package intake

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rescale/rescale-intake/internal/events"
	"github.com/rescale/rescale-intake/internal/logging"
	"github.com/rescale/rescale-intake/internal/progress"
	"github.com/rescale/rescale-intake/internal/registry"
	"github.com/rescale/rescale-intake/internal/remote"
	"github.com/rescale/rescale-intake/internal/traverse"
)

// Widget owns the attachments of one record. Select and Drop hand files to
// it and return immediately; Wait blocks until they have been processed.
type Widget struct {
	id            string
	coord         *coordinator
	walker        *traverse.Walker
	hooks         hooks
	deleter       *remote.AsyncDeleter
	scope         *events.Scope
	logger        *logging.Logger
	maxConcurrent int

	ctx      context.Context
	cancel   context.CancelFunc
	intakes  sync.WaitGroup // Select and Drop goroutines
	listener sync.WaitGroup

	mu        sync.Mutex // Guards intakes.Add against Destroy
	destroyed atomic.Bool
}

// New creates a widget. Seeded files are attached as PreExisting and
// rendered into the gallery.
func New(opts Options) (*Widget, error) {
	if opts.Uploader == nil {
		return nil, ErrNoUploader
	}
	opts.applyDefaults()

	id := uuid.NewString()
	logger := opts.Logger.Named("intake")
	rec := opts.Metrics

	reg := registry.NewSeeded(opts.Seed)
	deleter := remote.NewAsyncDeleter(opts.Deleter, logger, func(ids []string, err error) {
		rec.RecordDeletion(len(ids), err)
	})

	parent := opts.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	w := &Widget{
		id:            id,
		walker:        traverse.NewWalker(logger),
		hooks:         discoverHooks(opts.Hooks, logger),
		deleter:       deleter,
		logger:        logger,
		maxConcurrent: opts.MaxConcurrent,
		ctx:           ctx,
		cancel:        cancel,
	}
	w.coord = &coordinator{
		source:    id,
		multiple:  opts.Multiple,
		registry:  reg,
		agg:       progress.NewAggregator(opts.Reporter),
		gallery:   opts.Gallery,
		validator: opts.Validator,
		uploader:  opts.Uploader,
		deleter:   deleter,
		hooks:     w.hooks,
		bus:       opts.Bus,
		metrics:   rec,
		logger:    logger,
	}

	if reg.Len() > 0 {
		opts.Gallery.RenderExisting(reg.Records())
	}

	if opts.Bus != nil {
		w.scope = opts.Bus.NewScope(id)
		w.listen(w.scope.Subscribe(events.EventDetachRequested))
	}

	logger.Debug().Str("widget", id).Bool("multiple", opts.Multiple).Int("seeded", reg.Len()).Msg("Widget created")
	return w, nil
}

// ID returns the instance handle used to address this widget on the bus.
func (w *Widget) ID() string {
	return w.id
}

// listen serves detach requests addressed to this widget until the scope
// releases the subscription.
func (w *Widget) listen(ch <-chan events.Event) {
	w.listener.Add(1)
	go func() {
		defer w.listener.Done()
		for ev := range ch {
			req, ok := ev.(*events.DetachRequestEvent)
			if !ok || req.Target != w.id {
				continue
			}
			w.RequestDetach(req.ContentID)
		}
	}()
}

// Select hands explicitly chosen files to the widget. In single mode only
// the first file is taken.
func (w *Widget) Select(files []traverse.File) error {
	n := len(files)
	if !w.coord.multiple && len(files) > 1 {
		files = files[:1]
	}
	return w.start(n, func(ctx context.Context, emit func(traverse.File)) {
		for _, f := range files {
			if ctx.Err() != nil {
				return
			}
			emit(f)
		}
	})
}

// Drop hands a drop payload to the widget. Directories are expanded; in
// single mode only the first top-level entry is taken.
func (w *Widget) Drop(entries []traverse.Entry) error {
	return w.start(len(entries), func(ctx context.Context, emit func(traverse.File)) {
		if _, err := w.walker.Walk(ctx, entries, !w.coord.multiple, emit); err != nil {
			w.logger.Warn().Err(err).Msg("Drop traversal stopped")
		}
	})
}

// start runs one intake in the background. produce emits files; each is
// processed with bounded concurrency.
func (w *Widget) start(items int, produce func(ctx context.Context, emit func(traverse.File))) error {
	w.mu.Lock()
	if w.destroyed.Load() {
		w.mu.Unlock()
		return ErrDestroyed
	}
	w.intakes.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.intakes.Done()

		var g errgroup.Group
		g.SetLimit(w.maxConcurrent)

		produce(w.ctx, func(f traverse.File) {
			g.Go(func() error {
				w.coord.process(w.ctx, f)
				return nil
			})
		})
		w.hooks.afterIntake(items)

		_ = g.Wait()
		w.coord.agg.EndBatchIfIdle()
	}()
	return nil
}

// RequestDetach removes id from the attachments. Files created by this
// widget are sent for remote deletion. Unknown ids are ignored.
func (w *Widget) RequestDetach(id string) bool {
	return w.coord.detach(id)
}

// Value returns the attached files (content id → original name), or nil
// when nothing is attached.
func (w *Widget) Value() map[string]string {
	return w.coord.registry.Snapshot()
}

// Records returns the attachments in attachment order.
func (w *Widget) Records() []registry.Record {
	return w.coord.registry.Records()
}

// NewlyAdded returns the ids the remote store created during this session.
func (w *Widget) NewlyAdded() []string {
	return w.coord.registry.NewlyAdded()
}

// Progress returns the aggregate percentage of the current batch and whether
// a batch is active.
func (w *Widget) Progress() (float64, bool) {
	return w.coord.agg.Percent(), w.coord.agg.Active()
}

// Reset clears attachments, progress and the gallery. Attachments are not
// deleted remotely; uploads still in flight complete without attaching, and
// objects they created are sent for deletion.
func (w *Widget) Reset() {
	w.coord.reset()
}

// Wait blocks until every Select and Drop handed in so far is processed.
func (w *Widget) Wait() {
	w.intakes.Wait()
}

// Destroy releases the widget's bus subscriptions, cancels in-flight work,
// waits for it to stop and sends the NewlyAdded ids for deletion. Pending
// deletion notifications are delivered before it returns. Safe to call more
// than once.
func (w *Widget) Destroy() {
	w.teardown(true)
}

// Commit tears the widget down like Destroy but keeps every attachment on
// the remote store. Owners call it once Value has been persisted.
func (w *Widget) Commit() {
	w.teardown(false)
}

func (w *Widget) teardown(deleteNewly bool) {
	w.mu.Lock()
	if !w.destroyed.CompareAndSwap(false, true) {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	if w.scope != nil {
		w.scope.Close()
	}
	w.cancel()
	w.intakes.Wait()
	w.listener.Wait()

	ids := w.coord.registry.Drain()
	if deleteNewly {
		w.deleter.Enqueue(ids)
	}
	w.deleter.Close()

	w.coord.agg.Reset()
	w.logger.Debug().Str("widget", w.id).Bool("deleted", deleteNewly).Int("newly_added", len(ids)).Msg("Widget torn down")
}

// Destroyed reports whether Destroy has been called.
func (w *Widget) Destroyed() bool {
	return w.destroyed.Load()
}
