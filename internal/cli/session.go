package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/spf13/cobra"

	"github.com/rescale/rescale-intake/internal/config"
	"github.com/rescale/rescale-intake/internal/contentid"
	"github.com/rescale/rescale-intake/internal/events"
	inthttp "github.com/rescale/rescale-intake/internal/http"
	"github.com/rescale/rescale-intake/internal/intake"
	"github.com/rescale/rescale-intake/internal/localfs"
	"github.com/rescale/rescale-intake/internal/logging"
	"github.com/rescale/rescale-intake/internal/metrics"
	"github.com/rescale/rescale-intake/internal/progress"
	"github.com/rescale/rescale-intake/internal/remote"
	"github.com/rescale/rescale-intake/internal/util/filter"
	"github.com/rescale/rescale-intake/internal/validation"
)

// UI modes
const (
	uiBars      = "bars"      // One bar per file (mpb)
	uiAggregate = "aggregate" // A single batch bar (progressbar)
	uiQuiet     = "quiet"     // No bars; progress goes to the debug log
)

// intakeFlags are the flags shared by commands that run a widget.
type intakeFlags struct {
	multiple      bool
	existing      string
	ui            string
	output        string
	metricsAddr   string
	maxConcurrent int
	includeHidden bool
	discard       bool
	filters       filterFlags
}

func (f *intakeFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.multiple, "multiple", "m", false, "Keep every file instead of replacing the previous one")
	cmd.Flags().StringVar(&f.existing, "existing", "", "JSON file of already attached files (content id → name)")
	cmd.Flags().StringVar(&f.ui, "ui", uiBars, "Progress display: bars, aggregate, quiet")
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "Result format: text, json")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().IntVar(&f.maxConcurrent, "max-concurrent", 0, "Files uploaded at once (default from config)")
	cmd.Flags().BoolVar(&f.includeHidden, "include-hidden", false, "Include hidden files and directories")
	cmd.Flags().BoolVar(&f.discard, "discard", false, "Delete files created by this run from the store on exit")
	f.filters.register(cmd)
}

// apply folds the flags into cfg. Flags only ever widen the config.
func (f *intakeFlags) apply(cfg *config.Config) {
	if f.multiple {
		cfg.Multiple = true
	}
	if f.metricsAddr != "" {
		cfg.MetricsAddr = f.metricsAddr
	}
	if f.maxConcurrent > 0 {
		cfg.MaxConcurrent = f.maxConcurrent
	}
	if f.includeHidden {
		cfg.IncludeHidden = true
	}
}

// session is one widget plus the collaborators the CLI wires around it.
type session struct {
	widget    *intake.Widget
	bus       *events.EventBus
	ui        *progress.UploadUI
	collector *metrics.Collector
	listOpts  localfs.ListOptions
	filter    filter.Config
	logger    *logging.Logger
	discard   bool

	relay sync.WaitGroup
	scope *events.Scope
}

func newSession(ctx context.Context, cfg *config.Config, flags *intakeFlags, logger *logging.Logger) (*session, error) {
	seed, err := loadSeed(flags.existing, logger)
	if err != nil {
		return nil, err
	}

	bus := events.NewEventBus(0)
	s := &session{
		bus:       bus,
		collector: metrics.NewCollector(),
		listOpts:  localfs.ListOptions{IncludeHidden: cfg.IncludeHidden, PageSize: cfg.PageSize},
		filter:    flags.filters.config(),
		logger:    logger,
		discard:   flags.discard,
	}

	// Loggers derived below inherit the output chosen here.
	var gallery progress.Gallery = progress.NoOpGallery{}
	var reporter progress.Reporter
	switch flags.ui {
	case uiBars:
		s.ui = progress.NewUploadUI()
		gallery = s.ui
		logger.SetOutput(s.ui.Writer())
	case uiAggregate:
		reporter = progress.NewBarReporter(os.Stderr, "Uploading")
	case uiQuiet:
		reporter = progress.NewEventReporter(bus, "cli")
	default:
		return nil, fmt.Errorf("unknown --ui mode %q (want bars, aggregate or quiet)", flags.ui)
	}

	httpClient, err := inthttp.CreateOptimizedClient(cfg, logger)
	if err != nil {
		s.closeUI()
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	deleter, err := remote.NewDeleterFromConfig(ctx, cfg, httpClient, bus, logger)
	if err != nil {
		s.closeUI()
		return nil, err
	}

	s.startRelay()

	w, err := intake.New(intake.Options{
		Context:       ctx,
		Multiple:      cfg.Multiple,
		Seed:          seed,
		Validator:     validation.NewRules(cfg.MaxFileSize, cfg.AllowedExtensions),
		Uploader:      remote.NewClient(httpClient, cfg.BaseURL, logger),
		Deleter:       deleter,
		Gallery:       gallery,
		Reporter:      reporter,
		Bus:           bus,
		Logger:        logger,
		Metrics:       s.collector,
		MaxConcurrent: cfg.MaxConcurrent,
	})
	if err != nil {
		s.stopRelay()
		s.closeUI()
		return nil, err
	}
	s.widget = w

	if cfg.MetricsAddr != "" {
		go func() {
			if err := s.collector.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	return s, nil
}

// startRelay logs what the widget publishes on the bus: user
// notifications, deletion requests (bus backend) and quiet-mode progress.
func (s *session) startRelay() {
	s.scope = s.bus.NewScope("cli")
	notes := s.scope.Subscribe(events.EventNotify)
	deletes := s.scope.Subscribe(events.EventDeleteRequested)
	batches := s.scope.Subscribe(events.EventProgress)

	s.relay.Add(1)
	go func() {
		defer s.relay.Done()
		for notes != nil || deletes != nil || batches != nil {
			select {
			case ev, ok := <-notes:
				if !ok {
					notes = nil
					continue
				}
				n := ev.(*events.NotifyEvent)
				s.logger.Warn().Msg(n.Message)
			case ev, ok := <-deletes:
				if !ok {
					deletes = nil
					continue
				}
				d := ev.(*events.DeleteEvent)
				s.logger.Info().Strs("ids", d.ContentIDs).Msg("Deletion requested")
			case ev, ok := <-batches:
				if !ok {
					batches = nil
					continue
				}
				p := ev.(*events.ProgressEvent)
				s.logger.Debug().Float64("percent", p.Percent).Int("files", p.Slots).Msg("Upload progress")
			}
		}
	}()
}

func (s *session) closeUI() {
	if s.ui != nil {
		s.ui.Wait()
		s.logger.SetOutput(os.Stdout)
	}
}

func (s *session) stopRelay() {
	s.scope.Close()
	s.relay.Wait()
}

// finish tears the widget down (keeping or discarding what it created) and
// returns the attachments it held.
func (s *session) finish() map[string]string {
	s.widget.Wait()
	value := s.widget.Value()

	if s.discard {
		s.widget.Destroy()
	} else {
		s.widget.Commit()
	}
	s.closeUI()
	s.stopRelay()
	s.bus.Close()
	return value
}

// loadSeed reads a JSON object of content id → original name.
func loadSeed(path string, logger *logging.Logger) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	logger = logging.OrNop(logger)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing attachments: %w", err)
	}
	var seed map[string]string
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse existing attachments %s: %w", path, err)
	}
	for id := range seed {
		if !contentid.Valid(id) {
			logger.Warn().Str("id", id).Msg("Existing attachment is not a content id, keeping it anyway")
		}
	}
	return seed, nil
}

// printValue writes the attachments as sorted "id<TAB>name" lines or as JSON.
func printValue(out io.Writer, value map[string]string, format string) error {
	switch format {
	case "json":
		if value == nil {
			value = map[string]string{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case "text", "":
		ids := make([]string, 0, len(value))
		for id := range value {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(out, "%s\t%s\n", id, value[id])
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text or json)", format)
	}
}
