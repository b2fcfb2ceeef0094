package httpclient

import (
	"crypto/tls"
	"net/http"
	"time"
)

const (
	DefaultTimeout         = 60 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 4
	UserAgent              = "iptv-extract/1.0"
)

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: MaxIdleConnsPerHost,
			IdleConnTimeout:     DefaultIdleConnTimeout,
			TLSHandshakeTimeout: 15 * time.Second,
		},
	}
}

// Default returns the shared client used for catalog, playlist and guide fetches.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout and a clone of the Default transport.
func WithTimeout(timeout time.Duration) *http.Client {
	t, ok := defaultClient.Transport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: t.Clone(),
	}
}

// Insecure returns a copy of base that skips certificate verification. Only the
// optional guide source uses it, and only when explicitly enabled.
func Insecure(base *http.Client) *http.Client {
	if base == nil {
		base = defaultClient
	}
	var t *http.Transport
	if bt, ok := base.Transport.(*http.Transport); ok && bt != nil {
		t = bt.Clone()
	} else {
		t = http.DefaultTransport.(*http.Transport).Clone()
	}
	if t.TLSClientConfig == nil {
		t.TLSClientConfig = &tls.Config{}
	}
	t.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // opt-in EPG fallback
	return &http.Client{Timeout: base.Timeout, Transport: t}
}
