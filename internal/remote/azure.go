package remote

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	inthttp "github.com/rescale/rescale-intake/internal/http"
	"github.com/rescale/rescale-intake/internal/logging"
)

// blobAPI is the subset of the azblob client the deleter needs.
type blobAPI interface {
	DeleteBlob(ctx context.Context, containerName, blobName string, o *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error)
}

// AzureDeleter removes blobs named prefix/<content id> from a container.
type AzureDeleter struct {
	client    blobAPI
	container string
	prefix    string
	retry     inthttp.RetryConfig
	logger    *logging.Logger
}

// NewAzureDeleter wraps an existing blob client.
func NewAzureDeleter(client blobAPI, container, prefix string, logger *logging.Logger) *AzureDeleter {
	return &AzureDeleter{
		client:    client,
		container: container,
		prefix:    strings.Trim(prefix, "/"),
		retry:     inthttp.DefaultRetryConfig(),
		logger:    logging.OrNop(logger).Named("azure"),
	}
}

// NewAzureDeleterFromURL builds a deleter from a container URL such as
// https://acct.blob.core.windows.net/attachments?<sas>. The SAS, if any,
// authorizes the requests.
func NewAzureDeleterFromURL(containerURL, prefix string, httpClient *nethttp.Client, logger *logging.Logger) (*AzureDeleter, error) {
	serviceURL, container, err := splitContainerURL(containerURL)
	if err != nil {
		return nil, err
	}

	opts := &azblob.ClientOptions{}
	if httpClient != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: httpClient}
	}
	client, err := azblob.NewClientWithNoCredential(serviceURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return NewAzureDeleter(client, container, prefix, logger), nil
}

// splitContainerURL separates a container URL into the service URL (keeping
// the SAS query) and the container name.
func splitContainerURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid azure container URL: %w", err)
	}
	container := strings.Trim(u.Path, "/")
	if u.Scheme == "" || u.Host == "" || container == "" || strings.Contains(container, "/") {
		return "", "", fmt.Errorf("invalid azure container URL %q: want https://<account>.blob.core.windows.net/<container>", raw)
	}
	service := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/", RawQuery: u.RawQuery}
	return service.String(), container, nil
}

// BlobName returns the blob name for a content id.
func (d *AzureDeleter) BlobName(id string) string {
	if d.prefix == "" {
		return id
	}
	return path.Join(d.prefix, id)
}

// Delete removes each blob. Blobs that are already gone count as deleted.
// Every id is attempted; the failures are joined.
func (d *AzureDeleter) Delete(ctx context.Context, ids []string) error {
	retry := d.retry
	retry.OnRetry = func(attempt int, err error, errorType inthttp.ErrorType) {
		d.logger.Warn().Err(err).Int("attempt", attempt).Str("class", errorType.String()).Msg("Retrying blob delete")
	}

	var errs []error
	for _, id := range ids {
		name := d.BlobName(id)
		err := inthttp.ExecuteWithRetry(ctx, retry, func() error {
			_, err := d.client.DeleteBlob(ctx, d.container, name, nil)
			if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
				return fmt.Errorf("delete blob %s: %w", name, err)
			}
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
