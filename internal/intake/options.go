// Package intake implements the file-intake widget: files arrive by
// selection or drop, are deduplicated by content id, uploaded with progress
// feedback, and reconciled with the remote store's answer.
package intake

import (
	"context"
	"errors"

	"github.com/rescale/rescale-intake/internal/constants"
	"github.com/rescale/rescale-intake/internal/events"
	"github.com/rescale/rescale-intake/internal/logging"
	"github.com/rescale/rescale-intake/internal/metrics"
	"github.com/rescale/rescale-intake/internal/progress"
	"github.com/rescale/rescale-intake/internal/remote"
	"github.com/rescale/rescale-intake/internal/validation"
)

// ErrNoUploader is returned by New when Options.Uploader is nil.
var ErrNoUploader = errors.New("intake: uploader is required")

// ErrDestroyed is returned when a destroyed widget is asked to take files.
var ErrDestroyed = errors.New("intake: widget destroyed")

// Uploader sends one file to the remote store and returns the HTTP status.
// remote.Client satisfies it.
type Uploader interface {
	Upload(ctx context.Context, contentID, name string, data []byte, onProgress func(sent, total int64)) (int, error)
}

// Options configures a Widget. Only Uploader is required.
type Options struct {
	// Context is the parent of the widget's context. Cancelling it stops
	// traversal and in-flight uploads as Destroy does, without tearing the
	// widget down.
	Context context.Context

	// Multiple allows more than one attachment. When false every new file
	// replaces whatever is attached or in flight.
	Multiple bool

	// Seed lists files already persisted for the record (content id → name).
	Seed map[string]string

	Validator validation.Validator
	Uploader  Uploader
	Deleter   remote.Deleter
	Gallery   progress.Gallery
	Reporter  progress.Reporter

	// Hooks may implement Gate, HashObserver and IntakeObserver.
	Hooks any

	Bus     *events.EventBus
	Logger  *logging.Logger
	Metrics metrics.Recorder

	// MaxConcurrent bounds the files processed at once per Select or Drop.
	MaxConcurrent int
}

func (o *Options) applyDefaults() {
	if o.Validator == nil {
		o.Validator = validation.AllowAll{}
	}
	if o.Deleter == nil {
		o.Deleter = remote.NoOpDeleter{}
	}
	if o.Gallery == nil {
		o.Gallery = progress.NoOpGallery{}
	}
	if o.Reporter == nil {
		o.Reporter = progress.NewNoOpReporter()
	}
	o.Logger = logging.OrNop(o.Logger)
	o.Metrics = metrics.OrNoOp(o.Metrics)

	switch {
	case o.MaxConcurrent < constants.MinMaxConcurrent:
		o.MaxConcurrent = constants.DefaultMaxConcurrent
	case o.MaxConcurrent > constants.MaxMaxConcurrent:
		o.MaxConcurrent = constants.MaxMaxConcurrent
	}
}
