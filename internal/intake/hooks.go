package intake

import (
	"context"
	"fmt"

	"github.com/rescale/rescale-intake/internal/logging"
)

// Gate decides whether a hashed file may be uploaded. Returning false, or an
// error, vetoes the upload.
type Gate interface {
	BeforeUpload(ctx context.Context, contentID string) (bool, error)
}

// HashObserver receives the bytes and content id of every file that passed
// the gate.
type HashObserver interface {
	ObserveHash(data []byte, contentID, name string)
}

// IntakeObserver is told how many items were handed to the widget, once per
// Select or Drop.
type IntakeObserver interface {
	AfterIntake(n int)
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, contentID string) (bool, error)

func (f GateFunc) BeforeUpload(ctx context.Context, contentID string) (bool, error) {
	return f(ctx, contentID)
}

// hooks holds the capabilities discovered on Options.Hooks.
type hooks struct {
	gate     Gate
	observer HashObserver
	intake   IntakeObserver
	logger   *logging.Logger
}

func discoverHooks(v any, logger *logging.Logger) hooks {
	h := hooks{logger: logger}
	if v == nil {
		return h
	}
	h.gate, _ = v.(Gate)
	h.observer, _ = v.(HashObserver)
	h.intake, _ = v.(IntakeObserver)
	return h
}

// allow runs the gate. A panicking gate counts as a veto.
func (h hooks) allow(ctx context.Context, id string) (ok bool) {
	if h.gate == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Str("id", id).Msg(fmt.Sprintf("Upload gate panicked: %v", r))
			ok = false
		}
	}()

	ok, err := h.gate.BeforeUpload(ctx, id)
	if err != nil {
		h.logger.Warn().Err(err).Str("id", id).Msg("Upload gate failed, skipping file")
		return false
	}
	return ok
}

func (h hooks) observe(data []byte, id, name string) {
	if h.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Str("id", id).Msg(fmt.Sprintf("Hash observer panicked: %v", r))
		}
	}()
	h.observer.ObserveHash(data, id, name)
}

func (h hooks) afterIntake(n int) {
	if h.intake == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Msg(fmt.Sprintf("Intake observer panicked: %v", r))
		}
	}()
	h.intake.AfterIntake(n)
}
