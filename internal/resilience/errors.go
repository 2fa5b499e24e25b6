package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that may succeed on the next run (429, 5xx,
// network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"transport connection broken",
}

// IsTransient reports whether err (or anything in its chain) is a
// TransientError or a network timeout, reset or refusal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether statusCode is worth retrying on a
// later run.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Error codes recorded against a domain.
const (
	CodeTimeout   = "timeout"
	CodeNetwork   = "network"
	CodeDNS       = "dns"
	CodeCircuit   = "circuit_open"
	CodeCancelled = "cancelled"
	CodeUnknown   = "error"
)

type coder interface {
	Code() string
}

// Code maps a fetch error to the short code stored in domain_policy.
func Code(err error) string {
	if err == nil {
		return ""
	}

	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	if errors.Is(err, ErrCircuitOpen) {
		return CodeCircuit
	}
	if errors.Is(err, context.Canceled) {
		return CodeCancelled
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || strings.Contains(strings.ToLower(err.Error()), "no such host") {
		return CodeDNS
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return CodeTimeout
	}
	if IsTransient(err) {
		return CodeNetwork
	}
	return CodeUnknown
}
