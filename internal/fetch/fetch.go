// Package fetch retrieves catalog, playlist and guide documents over HTTP with
// bounded retries and classifies failures.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/snapetech/iptvextract/internal/httpclient"
)

// Document is a fetched response body.
type Document struct {
	URL         string
	ContentType string
	Body        []byte
	FetchedAt   time.Time
	Size        int
}

// Fetcher retrieves sources. The zero value is usable: default client, 60s
// timeout, no retries, no pacing.
type Fetcher struct {
	Client    *http.Client
	Timeout   time.Duration // per attempt
	Retries   int
	Backoff   time.Duration
	Limiter   *rate.Limiter
	UserAgent string

	// InsecureEPGFallback allows one extra guide fetch without certificate
	// verification after a TLS failure. Primary sources never fall back.
	InsecureEPGFallback bool
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return httpclient.Default()
}

func (f *Fetcher) policy() httpclient.RetryPolicy {
	p := httpclient.DefaultRetryPolicy
	p.Retries = f.Retries
	p.Backoff = f.Backoff
	p.Limiter = f.Limiter
	return p
}

// Fetch GETs rawURL. Timeouts, connection failures, 429 and 5xx are retried
// up to f.Retries times; TLS failures and other statuses are not. The error,
// when non-nil, is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	var (
		doc  *Document
		last *FetchError
	)
	attempts, err := httpclient.Retry(ctx, f.policy(), func(ctx context.Context) (bool, http.Header, error) {
		d, header, ferr := f.once(ctx, rawURL)
		if ferr == nil {
			doc = d
			return false, nil, nil
		}
		last = ferr
		log.WithFields(log.Fields{
			"source": rawURL,
			"kind":   ferr.Kind.String(),
		}).WithError(ferr.Err).Debug("fetch attempt failed")
		return ferr.retryable(), header, ferr
	})
	if err == nil {
		return doc, nil
	}
	if last == nil {
		// Limiter wait or context cancellation before any attempt ran.
		last = &FetchError{Kind: classify(err), Source: rawURL, Err: err}
	}
	last.Attempts = attempts
	return nil, last
}

func (f *Fetcher) once(ctx context.Context, rawURL string) (*Document, http.Header, *FetchError) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = httpclient.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, &FetchError{Kind: KindConnection, Source: rawURL, Err: err}
	}
	ua := f.UserAgent
	if ua == "" {
		ua = httpclient.UserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Encoding", httpclient.AcceptEncoding)

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, nil, &FetchError{Kind: classify(err), Source: rawURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, resp.Header, &FetchError{Kind: KindHTTPStatus, Source: rawURL, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, httpclient.MaxBodySize+1))
	if err != nil {
		return nil, resp.Header, &FetchError{Kind: classify(err), Source: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(raw) > httpclient.MaxBodySize {
		return nil, nil, &FetchError{Kind: KindConnection, Source: rawURL, Err: errors.New("response body too large")}
	}
	body, err := httpclient.Decode(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, resp.Header, &FetchError{Kind: KindConnection, Source: rawURL, Err: err}
	}
	return &Document{
		URL:         rawURL,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now().UTC(),
		Size:        len(body),
	}, nil, nil
}
