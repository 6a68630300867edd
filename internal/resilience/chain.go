package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAllFailed is returned when every entry in a [Chain] fails or has an open
// breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// chainEntry pairs a provider value with its dedicated breaker.
type chainEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain wraps a primary and zero or more fallback instances of the same
// provider type. When the primary fails (or its breaker is open), the next
// healthy fallback is tried in registration order.
//
// Chain is safe for concurrent use once assembled; [Chain.Add] is not meant to
// be called after the chain is in service.
type Chain[T any] struct {
	mu       sync.RWMutex
	entries  []chainEntry[T]
	settings Settings
}

// NewChain creates a [Chain] with primary as its first entry. The settings are
// applied to every per-entry breaker; the Name field is overridden per entry.
func NewChain[T any](primaryName string, primary T, settings Settings) *Chain[T] {
	c := &Chain[T]{settings: settings}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback provider. Fallbacks are tried in the order added,
// after the primary.
func (c *Chain[T]) Add(name string, value T) {
	settings := c.settings
	settings.Name = name
	c.mu.Lock()
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(settings),
	})
	c.mu.Unlock()
}

// Names returns the entry names in trial order.
func (c *Chain[T]) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}

// Do tries fn against each entry in order until one succeeds. Entries with an
// open breaker are skipped. If every entry fails, the last error is wrapped in
// [ErrAllFailed].
func (c *Chain[T]) Do(fn func(T) error) error {
	c.mu.RLock()
	entries := c.entries
	c.mu.RUnlock()

	var lastErr error
	for i := range entries {
		entry := &entries[i]
		err := entry.breaker.Do(func() error {
			return fn(entry.value)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping provider, circuit open", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// DoWithResult tries fn against each entry in c until one succeeds, returning
// the result. A package-level function because Go methods cannot introduce
// type parameters.
func DoWithResult[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		result R
		zero   R
	)
	err := c.Do(func(v T) error {
		var innerErr error
		result, innerErr = fn(v)
		return innerErr
	})
	if err != nil {
		return zero, err
	}
	return result, nil
}
