// Package resilience provides the circuit breaker and provider failover
// primitives used around search engines and speech/LLM providers.
//
// [Breaker] is a classic three-state breaker (closed → open → half-open).
// [Chain] composes multiple instances of any provider type with per-entry
// breakers so a failing primary is bypassed in favour of healthy fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] when the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed is the normal state. Calls are forwarded.
	Closed State = iota

	// Open means the breaker has tripped. Calls fail fast with [ErrOpen]
	// until the cooldown elapses.
	Open

	// HalfOpen is the probe state entered after the cooldown. A bounded
	// number of calls are let through; success closes the breaker, any
	// failure re-opens it.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Settings tunes a [Breaker]. Zero-value fields get defaults.
type Settings struct {
	// Name labels the breaker in log output.
	Name string

	// FailureThreshold is the number of consecutive failures that trips
	// the breaker. Default: 5.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before probing again.
	// Default: 30s.
	Cooldown time.Duration

	// ProbeQuota is how many calls the half-open state admits before the
	// breaker decides to close or re-open. Default: 3.
	ProbeQuota int
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.ProbeQuota <= 0 {
		s.ProbeQuota = 3
	}
	return s
}

// Breaker implements the three-state circuit breaker pattern.
type Breaker struct {
	settings Settings
	now      func() time.Time

	mu         sync.Mutex
	state      State
	failures   int
	openedAt   time.Time
	probes     int
	probeFails int
}

// NewBreaker creates a [Breaker] with the supplied settings.
func NewBreaker(settings Settings) *Breaker {
	return &Breaker{
		settings: settings.withDefaults(),
		now:      time.Now,
		state:    Closed,
	}
}

// Do runs fn if the breaker admits the call. In the open state it returns
// [ErrOpen] without calling fn. In the half-open state only a bounded number
// of probe calls are admitted.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.settings.Cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.probes = 0
		b.probeFails = 0
		slog.Info("circuit half-open", "breaker", b.settings.Name)

	case HalfOpen:
		if b.probes >= b.settings.ProbeQuota {
			b.mu.Unlock()
			return ErrOpen
		}
	}
	probing := b.state == HalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.openedAt = b.now()
	if probing {
		b.probeFails++
		b.state = Open
		b.failures = b.settings.FailureThreshold
		slog.Warn("circuit re-opened", "breaker", b.settings.Name)
		return
	}
	b.failures++
	if b.failures >= b.settings.FailureThreshold {
		b.state = Open
		slog.Warn("circuit opened",
			"breaker", b.settings.Name,
			"consecutive_failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probes-b.probeFails >= b.settings.ProbeQuota {
			b.state = Closed
			b.failures = 0
			b.probes = 0
			b.probeFails = 0
			slog.Info("circuit closed", "breaker", b.settings.Name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's state. An open breaker whose cooldown has
// elapsed reports [HalfOpen]; the transition itself happens on the next
// [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [Closed] and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
}
