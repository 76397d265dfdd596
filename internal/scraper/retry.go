package scraper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Backoff defaults.
const (
	initialInterval = 500 * time.Millisecond
	maxInterval     = 8 * time.Second
	backoffFactor   = 2.0
	maxRetryAfter   = 30 * time.Second
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	Code       int
	URL        string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.Code)
}

// StatusCode returns the HTTP status.
func (e *HTTPError) StatusCode() int { return e.Code }

// RetryAfterDelay returns the server's requested delay, if any.
func (e *HTTPError) RetryAfterDelay() time.Duration { return e.RetryAfter }

// statusCoder is implemented by errors that carry an HTTP status, both here
// and in the source clients.
type statusCoder interface {
	StatusCode() int
}

type retryAfterer interface {
	RetryAfterDelay() time.Duration
}

// Retryable reports whether err is worth another attempt: timeouts, network
// failures, HTTP 429 and 5xx.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, context.Canceled) {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code == http.StatusTooManyRequests || code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return transientNetErr(err)
}

// transientNetErr reports timeouts and dropped or refused connections.
// Certificate failures, redirect loops and unresolvable hosts fail the same
// way on every attempt.
func transientNetErr(err error) bool {
	var certErr *tls.CertificateVerificationError
	var unknownCA x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var invalidCert x509.CertificateInvalidError
	if errors.As(err, &certErr) || errors.As(err, &unknownCA) ||
		errors.As(err, &hostErr) || errors.As(err, &invalidCert) {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "read" || opErr.Op == "write")
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. The result is capped.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = t.Sub(now)
	}
	if d < 0 {
		return 0
	}
	return min(d, maxRetryAfter)
}

// honourRetryAfter lets an operation override the next backoff delay with
// the server's Retry-After.
type honourRetryAfter struct {
	backoff.BackOff

	mu   sync.Mutex
	next time.Duration
}

func (h *honourRetryAfter) set(d time.Duration) {
	h.mu.Lock()
	h.next = d
	h.mu.Unlock()
}

func (h *honourRetryAfter) NextBackOff() time.Duration {
	d := h.BackOff.NextBackOff()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.next > 0 && d != backoff.Stop {
		d, h.next = h.next, 0
	}
	return d
}

// retry runs op with bounded exponential backoff. Non-retryable errors stop
// immediately.
func (s *Scraper) retry(ctx context.Context, name string, op func() (*Result, error)) (*Result, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.initialInterval
	exp.MaxInterval = s.maxInterval
	exp.Multiplier = backoffFactor
	exp.MaxElapsedTime = 0
	exp.Reset()

	h := &honourRetryAfter{BackOff: exp}
	var b backoff.BackOff = h
	if s.maxAttempts > 1 {
		b = backoff.WithMaxRetries(h, uint64(s.maxAttempts-1))
	} else {
		b = &backoff.StopBackOff{}
	}

	wrapped := func() (*Result, error) {
		res, err := op()
		if err == nil {
			return res, nil
		}
		if !Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		var ra retryAfterer
		if errors.As(err, &ra) {
			h.set(ra.RetryAfterDelay())
		}
		return nil, err
	}

	notify := func(err error, d time.Duration) {
		zap.S().Debugw("scraper: retrying", "strategy", name, "delay", d, "err", err)
	}
	return backoff.RetryNotifyWithData(wrapped, backoff.WithContext(b, ctx), notify)
}
