package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("server overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("rate limited"), 429)
	if !IsTransient(fmt.Errorf("fetch failed: %w", inner)) {
		t.Error("expected wrapped TransientError to be transient")
	}
	if !IsTransient(eris.Wrap(inner, "enrich: fetch")) {
		t.Error("expected eris-wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_NetworkErrors(t *testing.T) {
	cases := []error{
		&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED},
		syscall.ECONNRESET,
		context.DeadlineExceeded,
		errors.New("read tcp: i/o timeout"),
	}
	for _, err := range cases {
		if !IsTransient(err) {
			t.Errorf("expected %v to be transient", err)
		}
	}
}

func TestIsTransient_Permanent(t *testing.T) {
	if IsTransient(errors.New("invalid html")) {
		t.Error("plain errors are not transient")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("%d should be transient", code)
		}
	}
	for _, code := range []int{200, 301, 400, 403, 404, 410} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("%d should not be transient", code)
		}
	}
}

type codedErr struct{ code string }

func (e codedErr) Error() string { return "coded" }
func (e codedErr) Code() string  { return e.code }

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"coded", codedErr{"http_404"}, "http_404"},
		{"wrapped coded", NewTransientError(codedErr{"http_503"}, 503), "http_503"},
		{"circuit", eris.Wrap(ErrCircuitOpen, "resilience: domain x"), CodeCircuit},
		{"cancelled", eris.Wrap(context.Canceled, "fetch"), CodeCancelled},
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"dns", &net.DNSError{Err: "no such host", Name: "x.invalid", IsNotFound: true}, CodeDNS},
		{"reset", syscall.ECONNRESET, CodeNetwork},
		{"other", errors.New("boom"), CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %q, want %q", got, tt.want)
			}
		})
	}
}
