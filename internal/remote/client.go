// Package remote talks to the remote attachment store: multipart uploads
// and deletion notifications.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"strings"

	"github.com/rescale/rescale-intake/internal/constants"
	"github.com/rescale/rescale-intake/internal/logging"
	"github.com/rescale/rescale-intake/internal/progress"
)

// Client uploads files to the remote store.
type Client struct {
	httpClient *nethttp.Client
	baseURL    string
	logger     *logging.Logger
}

// NewClient creates an upload client for the store at baseURL.
// A nil httpClient uses nethttp.DefaultClient.
func NewClient(httpClient *nethttp.Client, baseURL string, logger *logging.Logger) *Client {
	if httpClient == nil {
		httpClient = nethttp.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logging.OrNop(logger).Named("remote"),
	}
}

// UploadURL returns the endpoint uploads are posted to.
func (c *Client) UploadURL() string {
	return c.baseURL + constants.UploadPath
}

// Upload posts data as a single multipart file part named "file", announcing
// the content id in the X-Name header. onProgress receives request body
// bytes sent so far. The response status code is returned as-is; a non-nil
// error means the request never produced a response.
func (c *Client) Upload(ctx context.Context, contentID, name string, data []byte, onProgress func(sent, total int64)) (int, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(constants.UploadFormField, name)
	if err != nil {
		return 0, fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return 0, fmt.Errorf("failed to write multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("failed to close multipart body: %w", err)
	}

	total := int64(body.Len())
	reader := progress.NewProgressReader(bytes.NewReader(body.Bytes()), total, onProgress)

	ctx, cancel := context.WithTimeout(ctx, constants.UploadTimeout)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.UploadURL(), reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(constants.HeaderName, contentID)
	req.Header.Set(constants.HeaderRequestedWith, constants.RequestedWithValue)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("upload of %s failed: %w", name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug().
		Str("content_id", contentID).
		Int("status", resp.StatusCode).
		Int64("bytes", total).
		Msg("Upload finished")

	return resp.StatusCode, nil
}

// Accepted reports whether an upload status means the store holds the file.
func Accepted(status int) bool {
	return status == nethttp.StatusOK || status == nethttp.StatusCreated
}
