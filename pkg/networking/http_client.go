package networking

import (
	"net/http"
	"time"
)

// HttpTimeout is the default timeout for outgoing HTTP requests
const HttpTimeout = 30 * time.Second

const (
	// DefaultMaxResponseSize is the maximum response body size read from
	// providers and backends (1MB).
	DefaultMaxResponseSize = 1024 * 1024

	// DefaultErrorPreviewSize is the maximum size of an error body preview.
	DefaultErrorPreviewSize = 1024

	// ContentTypeJSON is the JSON content type.
	ContentTypeJSON = "application/json"

	// ContentTypeFormURLEncoded is the form-urlencoded content type.
	ContentTypeFormURLEncoded = "application/x-www-form-urlencoded"
)

// HTTPClient is the interface used for making HTTP requests.
// *http.Client satisfies it; tests substitute stubs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HttpClientBuilder provides a fluent interface for building HTTP clients
type HttpClientBuilder struct {
	clientTimeout         time.Duration
	tlsHandshakeTimeout   time.Duration
	responseHeaderTimeout time.Duration
}

// NewHttpClientBuilder returns a new HttpClientBuilder with bounded defaults
func NewHttpClientBuilder() *HttpClientBuilder {
	return &HttpClientBuilder{
		clientTimeout:         HttpTimeout,
		tlsHandshakeTimeout:   10 * time.Second,
		responseHeaderTimeout: 10 * time.Second,
	}
}

// WithTimeout sets the overall client timeout
func (b *HttpClientBuilder) WithTimeout(timeout time.Duration) *HttpClientBuilder {
	b.clientTimeout = timeout
	return b
}

// WithResponseHeaderTimeout sets the response header timeout
func (b *HttpClientBuilder) WithResponseHeaderTimeout(timeout time.Duration) *HttpClientBuilder {
	b.responseHeaderTimeout = timeout
	return b
}

// Build creates the configured *http.Client
func (b *HttpClientBuilder) Build() *http.Client {
	return &http.Client{
		Timeout: b.clientTimeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   b.tlsHandshakeTimeout,
			ResponseHeaderTimeout: b.responseHeaderTimeout,
		},
	}
}
