package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/rescale-intake/internal/constants"
	"github.com/rescale/rescale-intake/internal/events"
	"github.com/rescale/rescale-intake/internal/logging"
)

// Deleter asks the remote store to remove files it created for a session.
type Deleter interface {
	Delete(ctx context.Context, ids []string) error
}

// DeleterFunc adapts a function to Deleter.
type DeleterFunc func(ctx context.Context, ids []string) error

func (f DeleterFunc) Delete(ctx context.Context, ids []string) error { return f(ctx, ids) }

// retryLogger implements the retryablehttp.LeveledLogger interface on top of zerolog
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// deleteRequest is the JSON body posted to the deletion endpoint.
type deleteRequest struct {
	IDs []string `json:"ids"`
}

// HTTPDeleter posts deletion notifications to an HTTP endpoint with retries.
type HTTPDeleter struct {
	client   *nethttp.Client
	endpoint string
}

// NewHTTPDeleter creates a deleter posting to endpoint. httpClient carries the
// proxy configuration and may be nil.
func NewHTTPDeleter(httpClient *nethttp.Client, endpoint string, logger *logging.Logger) *HTTPDeleter {
	retryClient := retryablehttp.NewClient()
	if httpClient != nil {
		retryClient.HTTPClient = httpClient
	}
	retryClient.RetryMax = constants.DeleteRetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = &retryLogger{logger: logging.OrNop(logger).Named("delete")}

	return &HTTPDeleter{
		client:   retryClient.StandardClient(),
		endpoint: endpoint,
	}
}

// Delete posts {"ids": [...]} to the endpoint. Any 2xx answer is success.
func (d *HTTPDeleter) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	payload, err := json.Marshal(deleteRequest{IDs: ids})
	if err != nil {
		return fmt.Errorf("failed to marshal delete request: %w", err)
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(constants.HeaderRequestedWith, constants.RequestedWithValue)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("delete request failed: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// BusDeleter publishes deletion requests on the event bus and leaves the
// actual removal to whoever subscribes to EventDeleteRequested.
type BusDeleter struct {
	bus    *events.EventBus
	source string
}

// NewBusDeleter creates a deleter publishing on bus, tagged with source.
func NewBusDeleter(bus *events.EventBus, source string) *BusDeleter {
	return &BusDeleter{bus: bus, source: source}
}

func (d *BusDeleter) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	d.bus.PublishDelete(ids, d.source)
	return nil
}

// NoOpDeleter discards deletion requests.
type NoOpDeleter struct{}

func (NoOpDeleter) Delete(ctx context.Context, ids []string) error { return nil }

// AsyncDeleter makes deletions fire-and-forget: Enqueue never blocks the
// caller, and a single worker delivers requests in order.
type AsyncDeleter struct {
	next    Deleter
	logger  *logging.Logger
	timeout time.Duration
	queue   chan []string
	onDone  func(ids []string, err error)

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncDeleter starts a worker delivering to next. onDone, if set, is
// called after each delivery attempt.
func NewAsyncDeleter(next Deleter, logger *logging.Logger, onDone func(ids []string, err error)) *AsyncDeleter {
	if next == nil {
		next = NoOpDeleter{}
	}
	a := &AsyncDeleter{
		next:    next,
		logger:  logging.OrNop(logger).Named("delete"),
		timeout: constants.DeleteTimeout,
		queue:   make(chan []string, constants.DeleteQueueSize),
		onDone:  onDone,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *AsyncDeleter) run() {
	defer a.wg.Done()
	for ids := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.next.Delete(ctx, ids)
		cancel()

		if err != nil {
			a.logger.Warn().Err(err).Strs("ids", ids).Msg("Deletion notification failed")
		} else {
			a.logger.Debug().Strs("ids", ids).Msg("Deletion notification sent")
		}
		if a.onDone != nil {
			a.onDone(ids, err)
		}
	}
}

// Enqueue schedules deletion of ids. Requests made after Close, or while the
// queue is full, are dropped and logged.
func (a *AsyncDeleter) Enqueue(ids []string) {
	if len(ids) == 0 {
		return
	}
	cp := make([]string, len(ids))
	copy(cp, ids)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.logger.Warn().Strs("ids", cp).Msg("Deletion requested after close, dropped")
		return
	}
	select {
	case a.queue <- cp:
	default:
		a.logger.Warn().Strs("ids", cp).Msg("Deletion queue full, dropped")
	}
}

// Delete implements Deleter by enqueueing; it never fails.
func (a *AsyncDeleter) Delete(ctx context.Context, ids []string) error {
	a.Enqueue(ids)
	return nil
}

// Close stops accepting requests and waits for queued ones to be delivered.
func (a *AsyncDeleter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
}
