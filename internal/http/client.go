package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"
	"time"

	"golang.org/x/net/http2"

	"github.com/nshenoy/megadl/internal/config"
)

// CreateOptimizedClient builds an HTTP client tuned for the sustained,
// often-parallel chunk fetches a mega.nz download makes: a larger
// connection pool than Go's defaults, HTTP/2 multiplexing, and no
// overall client timeout (each operation sets its own via context).
//
// cfg provides proxy settings; its zero value behaves like "no-proxy".
func CreateOptimizedClient(cfg config.ProxyConfig) (*nethttp.Client, error) {
	baseClient, err := ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		return baseClient, nil
	}

	tr.MaxIdleConns = 512
	tr.MaxIdleConnsPerHost = 64
	tr.MaxConnsPerHost = 64
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 30 * time.Second
	tr.ExpectContinueTimeout = 1 * time.Second
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true

	_ = http2.ConfigureTransport(tr)

	if os.Getenv("MEGADL_DISABLE_HTTP2") == "true" {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	baseClient.Timeout = 0

	return baseClient, nil
}
