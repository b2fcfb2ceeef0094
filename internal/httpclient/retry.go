package httpclient

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// RetryPolicy controls Retry. Delays grow linearly: Backoff, 2*Backoff, ...
type RetryPolicy struct {
	Retries    int           // retries after the first attempt
	Backoff    time.Duration // base delay
	Max429Wait time.Duration // cap on a Retry-After delay
	Limiter    *rate.Limiter // optional pacing applied before every attempt
}

// DefaultRetryPolicy: two retries, 2s linear backoff, Retry-After honoured up to 60s.
var DefaultRetryPolicy = RetryPolicy{
	Retries:    2,
	Backoff:    2 * time.Second,
	Max429Wait: 60 * time.Second,
}

// Attempt performs one try. retry reports whether a failure is transient;
// header (may be nil) is the response header, used for Retry-After.
type Attempt func(ctx context.Context) (retry bool, header http.Header, err error)

// Retry runs attempt until it succeeds, reports a permanent failure, or the
// policy's retries are used up. It returns the number of attempts made and the
// last error.
func Retry(ctx context.Context, p RetryPolicy, attempt Attempt) (int, error) {
	for n := 1; ; n++ {
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return n - 1, err
			}
		}
		retry, header, err := attempt(ctx)
		if err == nil {
			return n, nil
		}
		if !retry || n > p.Retries {
			return n, err
		}
		select {
		case <-ctx.Done():
			return n, err
		case <-time.After(p.Delay(n, header)):
		}
	}
}

// Delay is the wait before retry number n (1-based). A Retry-After header,
// when present, is used if it is longer than the linear delay.
func (p RetryPolicy) Delay(n int, header http.Header) time.Duration {
	d := p.Backoff * time.Duration(n)
	if header != nil {
		if ra := header.Get("Retry-After"); ra != "" {
			max := p.Max429Wait
			if max <= 0 {
				max = DefaultRetryPolicy.Max429Wait
			}
			if w := parseRetryAfter(ra, max); w > d {
				d = w
			}
		}
	}
	return d
}

// RetryableStatus reports whether an HTTP status is worth retrying: 429 and 5xx.
// Other 4xx are permanent.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// parseRetryAfter parses Retry-After (seconds or HTTP-date); returns duration capped at max.
func parseRetryAfter(s string, max time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1 * time.Second
	}
	if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
		d := time.Duration(sec) * time.Second
		if d > max {
			return max
		}
		return d
	}
	// RFC 1123 date
	t, err := time.Parse(time.RFC1123, s)
	if err != nil {
		return 1 * time.Second
	}
	until := time.Until(t)
	if until <= 0 {
		return 0
	}
	if until > max {
		return max
	}
	return until
}
