// Package http builds the HTTP clients used to talk to the remote store.
package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/rescale/rescale-intake/internal/config"
	"github.com/rescale/rescale-intake/internal/logging"
)

// CreateOptimizedClient creates the upload client: proxy settings from cfg,
// no overall timeout (uploads bound themselves by context), compression off,
// and HTTP/2 unless DISABLE_HTTP2=true or a proxy is in the path.
//
// A nil cfg yields a client with default proxy handling from the environment.
func CreateOptimizedClient(cfg *config.Config, logger *logging.Logger) (*nethttp.Client, error) {
	if cfg == nil {
		cfg = &config.Config{ProxyMode: "system"}
	}

	baseClient, err := ConfigureHTTPClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	baseClient.Timeout = 0

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in a negotiator; leave it as-is
		return baseClient, nil
	}

	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	disable := os.Getenv("DISABLE_HTTP2") == "true"
	// Proxies often break HTTP/2 multiplexing mid-transfer
	if proxyActive(cfg, os.Getenv) && os.Getenv("FORCE_HTTP2") != "true" {
		disable = true
	}
	if disable {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	return baseClient, nil
}
