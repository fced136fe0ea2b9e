// Package progress provides batch progress aggregation and its renderers
// for CLI (progress bars) and embedded (event bus) modes.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/rescale/rescale-intake/internal/events"
)

// Reporter renders the aggregate indicator of a batch.
type Reporter interface {
	Show()
	Update(percent float64, slots int)
	Hide()
}

// BarReporter renders the aggregate as a single terminal progress bar.
type BarReporter struct {
	mu          sync.Mutex
	out         io.Writer
	description string
	bar         *progressbar.ProgressBar
}

// NewBarReporter creates a bar reporter writing to out (os.Stderr when nil).
func NewBarReporter(out io.Writer, description string) *BarReporter {
	if out == nil {
		out = os.Stderr
	}
	return &BarReporter{out: out, description: description}
}

// Show creates the bar at 0%.
func (p *BarReporter) Show() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.bar = progressbar.NewOptions(100,
		progressbar.OptionSetDescription(p.description),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the bar to percent.
func (p *BarReporter) Update(percent float64, slots int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil {
		_ = p.bar.Set(int(percent))
	}
}

// Hide finishes the bar.
func (p *BarReporter) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

// EventReporter publishes batch progress on the event bus for an embedding program.
type EventReporter struct {
	eventBus *events.EventBus
	source   string
	mu       sync.Mutex
	batch    uint64
}

// NewEventReporter creates a reporter tagging its events with source.
func NewEventReporter(eventBus *events.EventBus, source string) *EventReporter {
	return &EventReporter{
		eventBus: eventBus,
		source:   source,
	}
}

// Show publishes EventBatchShown.
func (p *EventReporter) Show() {
	p.mu.Lock()
	p.batch++
	batch := p.batch
	p.mu.Unlock()

	p.eventBus.Publish(p.batchEvent(events.EventBatchShown, batch))
}

// Update publishes a progress event.
func (p *EventReporter) Update(percent float64, slots int) {
	p.eventBus.PublishProgress(percent, slots, p.source)
}

// Hide publishes EventBatchHidden.
func (p *EventReporter) Hide() {
	p.mu.Lock()
	batch := p.batch
	p.mu.Unlock()

	p.eventBus.Publish(p.batchEvent(events.EventBatchHidden, batch))
}

func (p *EventReporter) batchEvent(t events.EventType, batch uint64) *events.BatchEvent {
	return &events.BatchEvent{
		BaseEvent: events.BaseEvent{EventType: t, Time: time.Now(), Source: p.source},
		Batch:     batch,
	}
}

// NoOpReporter is a reporter that does nothing (for quiet operation).
type NoOpReporter struct{}

// NewNoOpReporter creates a new no-op reporter.
func NewNoOpReporter() *NoOpReporter {
	return &NoOpReporter{}
}

func (p *NoOpReporter) Show()                             {}
func (p *NoOpReporter) Update(percent float64, slots int) {}
func (p *NoOpReporter) Hide()                             {}

// ProgressReader wraps an io.Reader to report bytes consumed.
type ProgressReader struct {
	reader     io.Reader
	total      int64
	current    int64
	onProgress func(current, total int64)
}

// NewProgressReader creates a new progress-reporting reader.
func NewProgressReader(reader io.Reader, total int64, onProgress func(current, total int64)) *ProgressReader {
	return &ProgressReader{
		reader:     reader,
		total:      total,
		onProgress: onProgress,
	}
}

// Read implements io.Reader interface with progress reporting.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.current += int64(n)
		if pr.onProgress != nil {
			pr.onProgress(pr.current, pr.total)
		}
	}
	return n, err
}
