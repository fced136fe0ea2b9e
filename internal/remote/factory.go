package remote

import (
	"context"
	"fmt"
	nethttp "net/http"

	"github.com/rescale/rescale-intake/internal/config"
	"github.com/rescale/rescale-intake/internal/events"
	"github.com/rescale/rescale-intake/internal/logging"
)

// NewDeleterFromConfig builds the deletion notifier selected by cfg.DeleteBackend.
func NewDeleterFromConfig(ctx context.Context, cfg *config.Config, httpClient *nethttp.Client, bus *events.EventBus, logger *logging.Logger) (Deleter, error) {
	switch cfg.DeleteBackend {
	case config.DeleteNone, "":
		return NoOpDeleter{}, nil
	case config.DeleteHTTP:
		return NewHTTPDeleter(httpClient, cfg.DeleteEndpoint(), logger), nil
	case config.DeleteS3:
		return NewS3DeleterFromEnv(ctx, httpClient, cfg.S3Region, cfg.S3Bucket, cfg.ObjectPrefix, logger)
	case config.DeleteAzure:
		return NewAzureDeleterFromURL(cfg.AzureContainerURL, cfg.ObjectPrefix, httpClient, logger)
	case config.DeleteBus:
		if bus == nil {
			return nil, fmt.Errorf("delete_backend=bus requires an event bus")
		}
		return NewBusDeleter(bus, "intake"), nil
	default:
		return nil, fmt.Errorf("unsupported delete backend: %s", cfg.DeleteBackend)
	}
}
