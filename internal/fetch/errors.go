package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/snapetech/iptvextract/internal/httpclient"
)

// Kind classifies a fetch failure.
type Kind int

const (
	KindConnection Kind = iota
	KindTimeout
	KindHTTPStatus
	KindTLS
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	case KindTLS:
		return "tls"
	default:
		return "connection"
	}
}

// FetchError is the terminal failure for one source after retries are used up.
type FetchError struct {
	Kind     Kind
	Source   string
	Status   int // set for KindHTTPStatus
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	what := e.Kind.String()
	if e.Kind == KindHTTPStatus {
		what = "HTTP " + strconv.Itoa(e.Status)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s after %d attempt(s)", e.Source, what, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.Source, what, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// retryable reports whether another attempt could plausibly succeed.
func (e *FetchError) retryable() bool {
	switch e.Kind {
	case KindTLS:
		return false
	case KindHTTPStatus:
		return httpclient.RetryableStatus(e.Status)
	default:
		return true
	}
}

func classify(err error) Kind {
	if isTLSError(err) {
		return KindTLS
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindConnection
}

func isTLSError(err error) bool {
	var (
		verify   *tls.CertificateVerificationError
		unknown  x509.UnknownAuthorityError
		hostname x509.HostnameError
		invalid  x509.CertificateInvalidError
		header   tls.RecordHeaderError
		alert    tls.AlertError
	)
	return errors.As(err, &verify) ||
		errors.As(err, &unknown) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid) ||
		errors.As(err, &header) ||
		errors.As(err, &alert)
}
