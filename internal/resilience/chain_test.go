package resilience

import (
	"errors"
	"testing"
	"time"
)

// fakeProvider is a stand-in for any provider type in chain tests.
type fakeProvider struct {
	name string
	err  error
}

func TestChain_PrimaryFirst(t *testing.T) {
	c := NewChain("primary", &fakeProvider{name: "primary"}, Settings{})
	c.Add("fallback", &fakeProvider{name: "fallback"})

	var used string
	err := c.Do(func(p *fakeProvider) error {
		used = p.name
		return p.err
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if used != "primary" {
		t.Fatalf("used provider %q, want primary", used)
	}
}

func TestChain_FallsBackOnFailure(t *testing.T) {
	c := NewChain("primary", &fakeProvider{name: "primary", err: errBoom}, Settings{})
	c.Add("fallback", &fakeProvider{name: "fallback"})

	var order []string
	err := c.Do(func(p *fakeProvider) error {
		order = append(order, p.name)
		return p.err
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if len(order) != 2 || order[0] != "primary" || order[1] != "fallback" {
		t.Fatalf("trial order = %v, want [primary fallback]", order)
	}
}

func TestChain_AllFailed(t *testing.T) {
	c := NewChain("a", &fakeProvider{name: "a", err: errBoom}, Settings{})
	c.Add("b", &fakeProvider{name: "b", err: errBoom})

	err := c.Do(func(p *fakeProvider) error { return p.err })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("Do() = %v, want ErrAllFailed", err)
	}
}

func TestChain_SkipsOpenBreaker(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errBoom}
	c := NewChain("primary", primary, Settings{FailureThreshold: 2, Cooldown: time.Hour})
	c.Add("fallback", &fakeProvider{name: "fallback"})

	// Trip the primary's breaker.
	for i := 0; i < 2; i++ {
		if err := c.Do(func(p *fakeProvider) error { return p.err }); err != nil {
			t.Fatalf("Do() %d = %v, want nil (fallback succeeds)", i, err)
		}
	}

	var trials []string
	if err := c.Do(func(p *fakeProvider) error {
		trials = append(trials, p.name)
		return p.err
	}); err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if len(trials) != 1 || trials[0] != "fallback" {
		t.Fatalf("trials = %v, want only fallback while primary is open", trials)
	}
}

func TestDoWithResult(t *testing.T) {
	c := NewChain("primary", &fakeProvider{name: "primary", err: errBoom}, Settings{})
	c.Add("fallback", &fakeProvider{name: "fallback"})

	got, err := DoWithResult(c, func(p *fakeProvider) (string, error) {
		return p.name, p.err
	})
	if err != nil {
		t.Fatalf("DoWithResult() = %v, want nil", err)
	}
	if got != "fallback" {
		t.Fatalf("DoWithResult() = %q, want fallback", got)
	}

	if got := c.Names(); len(got) != 2 || got[0] != "primary" {
		t.Fatalf("Names() = %v", got)
	}
}
