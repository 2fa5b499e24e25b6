// Package resilience classifies fetch failures and stops a run from hammering
// a domain that keeps failing.
package resilience

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a domain's breaker.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests for the rest of the run.
	CircuitOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because its domain's
// breaker is open.
var ErrCircuitOpen = eris.New("resilience: circuit breaker is open")

// DefaultFailureThreshold is the number of consecutive failures that opens a
// domain's breaker.
const DefaultFailureThreshold = 3

// BreakerConfig controls breaker behavior.
type BreakerConfig struct {
	FailureThreshold int

	// ShouldTrip decides which errors count as failures. Nil counts every
	// error except context cancellation.
	ShouldTrip func(err error) bool

	// OnTrip is called once when a domain's breaker opens.
	OnTrip func(domain string)
}

type domainState struct {
	state               CircuitState
	consecutiveFailures int
}

// DomainBreakers holds one breaker per domain key. A DomainBreakers is meant
// to live for a single run; nothing is persisted and nothing half-opens.
type DomainBreakers struct {
	cfg     BreakerConfig
	mu      sync.Mutex
	domains map[string]*domainState
}

// NewDomainBreakers creates an empty set of breakers.
func NewDomainBreakers(cfg BreakerConfig) *DomainBreakers {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	return &DomainBreakers{cfg: cfg, domains: make(map[string]*domainState)}
}

// Allow reports whether a request to domain may proceed.
func (b *DomainBreakers) Allow(domain string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.domains[domain]
	return !ok || d.state == CircuitClosed
}

// Record updates domain's breaker with the outcome of one request.
func (b *DomainBreakers) Record(domain string, err error) {
	b.mu.Lock()
	d, ok := b.domains[domain]
	if !ok {
		d = &domainState{}
		b.domains[domain] = d
	}

	if err == nil || !b.shouldTrip(err) {
		if d.state == CircuitClosed {
			d.consecutiveFailures = 0
		}
		b.mu.Unlock()
		return
	}

	d.consecutiveFailures++
	tripped := d.state == CircuitClosed && d.consecutiveFailures >= b.cfg.FailureThreshold
	if tripped {
		d.state = CircuitOpen
	}
	b.mu.Unlock()

	if tripped && b.cfg.OnTrip != nil {
		b.cfg.OnTrip(domain)
	}
}

func (b *DomainBreakers) shouldTrip(err error) bool {
	if b.cfg.ShouldTrip != nil {
		return b.cfg.ShouldTrip(err)
	}
	return !eris.Is(err, context.Canceled)
}

// State returns domain's current state.
func (b *DomainBreakers) State(domain string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.domains[domain]; ok {
		return d.state
	}
	return CircuitClosed
}

// Open returns the domains whose breakers are open, sorted.
func (b *DomainBreakers) Open() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k, d := range b.domains {
		if d.state == CircuitOpen {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Execute runs fn unless domain's breaker is open, then records the result.
func Execute[T any](ctx context.Context, b *DomainBreakers, domain string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !b.Allow(domain) {
		return zero, eris.Wrapf(ErrCircuitOpen, "resilience: domain %s", domain)
	}
	val, err := fn(ctx)
	b.Record(domain, err)
	return val, err
}
