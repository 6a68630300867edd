// Package budget tracks API spend per session, day, and month against
// configured limits. Crossing the alert threshold fires a callback once per
// accounting period; crossing the limit fires the stop callback and makes
// further spend attempts in that scope fail with [ErrExceeded], which the
// learning engine treats as a session halt.
//
// The ledger is append-only JSON lines, replayed on startup to rebuild the
// running totals, so spend survives restarts within the same day or month.
package budget

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/setsuna-project/setsuna/internal/observe"
)

// ErrExceeded is returned by [Manager.RecordCost] when the session, daily,
// or monthly limit was already reached before the call.
var ErrExceeded = errors.New("budget: limit exceeded")

// Period selects an accounting scope for [Manager.UsageSummary].
type Period string

const (
	PeriodSession Period = "session"
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// Record is one ledger entry.
type Record struct {
	ID        string    `json:"cost_id"`
	SessionID string    `json:"session_id"`
	APIType   string    `json:"api_type"`
	Operation string    `json:"operation"`
	Tokens    int       `json:"tokens"`
	Cost      float64   `json:"cost"`
	At        time.Time `json:"at"`
}

// Limits holds the spend bounds in the account currency. A zero limit
// means unlimited for that scope.
type Limits struct {
	PerSession float64 `yaml:"per_session"`
	Daily      float64 `yaml:"daily"`
	Monthly    float64 `yaml:"monthly"`

	// AlertRatio is the fraction of a limit at which the alert callback
	// fires. Defaults to 0.8 when zero.
	AlertRatio float64 `yaml:"alert_ratio"`
}

// Summary reports usage against one scope's limit.
type Summary struct {
	Period       Period  `json:"period"`
	CurrentUsage float64 `json:"current_usage"`
	Limit        float64 `json:"limit"`
	Remaining    float64 `json:"remaining"`
	Ratio        float64 `json:"ratio"`
	Records      int     `json:"records"`
}

// AlertFunc receives the scope label ("session:<id>", "daily", "monthly"),
// the current usage, and the limit.
type AlertFunc func(scope string, usage, limit float64)

// Manager is the budget safety manager. All exported methods are safe for
// concurrent use.
type Manager struct {
	path    string
	limits  Limits
	onAlert AlertFunc
	onStop  AlertFunc
	metrics *observe.Metrics

	mu         sync.Mutex
	perSession map[string]float64
	perDay     map[string]float64 // keyed "2006-01-02"
	perMonth   map[string]float64 // keyed "2006-01"
	records    int
	alerted    map[string]bool
	stopped    map[string]bool

	now func() time.Time
}

// Option configures a [Manager].
type Option func(*Manager)

// WithAlertFunc sets the callback fired once per scope when usage crosses
// the alert ratio.
func WithAlertFunc(fn AlertFunc) Option {
	return func(m *Manager) { m.onAlert = fn }
}

// WithStopFunc sets the callback fired once per scope when usage reaches
// the limit.
func WithStopFunc(fn AlertFunc) Option {
	return func(m *Manager) { m.onStop = fn }
}

// WithMetrics reports accepted spend on met, broken down by api_type.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// NewManager creates a Manager writing its ledger to path and replays any
// existing ledger to rebuild totals.
func NewManager(path string, limits Limits, opts ...Option) (*Manager, error) {
	if limits.AlertRatio <= 0 {
		limits.AlertRatio = 0.8
	}
	m := &Manager{
		path:       path,
		limits:     limits,
		perSession: make(map[string]float64),
		perDay:     make(map[string]float64),
		perMonth:   make(map[string]float64),
		alerted:    make(map[string]bool),
		stopped:    make(map[string]bool),
		now:        time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	if err := m.replay(); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordCost appends a spend record. The call that crosses a limit is still
// accepted (the spend already happened); every later call in that scope
// returns [ErrExceeded].
func (m *Manager) RecordCost(sessionID, apiType, operation string, tokens int, cost float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if scope, usage, limit, ok := m.exceededScopeLocked(sessionID); ok {
		return "", fmt.Errorf("budget: %s at %.4f of %.4f: %w", scope, usage, limit, ErrExceeded)
	}

	rec := Record{
		ID:        "cost_" + uuid.NewString(),
		SessionID: sessionID,
		APIType:   apiType,
		Operation: operation,
		Tokens:    tokens,
		Cost:      cost,
		At:        m.now().UTC(),
	}
	if err := m.appendLocked(rec); err != nil {
		return "", err
	}
	m.applyLocked(rec)
	m.checkThresholdsLocked(sessionID)
	m.metrics.RecordSpend(context.Background(), apiType, cost)
	return rec.ID, nil
}

// SessionSpend returns the accumulated cost for one session.
func (m *Manager) SessionSpend(sessionID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perSession[sessionID]
}

// UsageSummary reports usage for the given period. For PeriodSession,
// sessionID selects the session; it is ignored otherwise.
func (m *Manager) UsageSummary(period Period, sessionID string) Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	var usage, limit float64
	switch period {
	case PeriodSession:
		usage, limit = m.perSession[sessionID], m.limits.PerSession
	case PeriodDaily:
		usage, limit = m.perDay[m.dayKeyLocked()], m.limits.Daily
	case PeriodMonthly:
		usage, limit = m.perMonth[m.monthKeyLocked()], m.limits.Monthly
	}

	s := Summary{
		Period:       period,
		CurrentUsage: usage,
		Limit:        limit,
		Records:      m.records,
	}
	if limit > 0 {
		s.Remaining = max(0, limit-usage)
		s.Ratio = usage / limit
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals (callers hold m.mu)
// ─────────────────────────────────────────────────────────────────────────────

func (m *Manager) dayKeyLocked() string   { return m.now().UTC().Format("2006-01-02") }
func (m *Manager) monthKeyLocked() string { return m.now().UTC().Format("2006-01") }

// exceededScopeLocked reports the first scope already at or over its limit.
func (m *Manager) exceededScopeLocked(sessionID string) (scope string, usage, limit float64, ok bool) {
	if l := m.limits.PerSession; l > 0 && m.perSession[sessionID] >= l {
		return "session:" + sessionID, m.perSession[sessionID], l, true
	}
	if l := m.limits.Daily; l > 0 && m.perDay[m.dayKeyLocked()] >= l {
		return "daily", m.perDay[m.dayKeyLocked()], l, true
	}
	if l := m.limits.Monthly; l > 0 && m.perMonth[m.monthKeyLocked()] >= l {
		return "monthly", m.perMonth[m.monthKeyLocked()], l, true
	}
	return "", 0, 0, false
}

func (m *Manager) applyLocked(rec Record) {
	m.perSession[rec.SessionID] += rec.Cost
	m.perDay[rec.At.Format("2006-01-02")] += rec.Cost
	m.perMonth[rec.At.Format("2006-01")] += rec.Cost
	m.records++
}

// checkThresholdsLocked fires alert/stop callbacks, each once per scope.
func (m *Manager) checkThresholdsLocked(sessionID string) {
	type scoped struct {
		key   string
		usage float64
		limit float64
	}
	scopes := []scoped{
		{"session:" + sessionID, m.perSession[sessionID], m.limits.PerSession},
		{"daily:" + m.dayKeyLocked(), m.perDay[m.dayKeyLocked()], m.limits.Daily},
		{"monthly:" + m.monthKeyLocked(), m.perMonth[m.monthKeyLocked()], m.limits.Monthly},
	}
	for _, s := range scopes {
		if s.limit <= 0 {
			continue
		}
		if s.usage >= s.limit && !m.stopped[s.key] {
			m.stopped[s.key] = true
			slog.Warn("budget limit reached", "scope", s.key, "usage", s.usage, "limit", s.limit)
			if m.onStop != nil {
				m.onStop(s.key, s.usage, s.limit)
			}
			continue
		}
		if s.usage >= s.limit*m.limits.AlertRatio && !m.alerted[s.key] {
			m.alerted[s.key] = true
			slog.Warn("budget alert threshold crossed", "scope", s.key, "usage", s.usage, "limit", s.limit)
			if m.onAlert != nil {
				m.onAlert(s.key, s.usage, s.limit)
			}
		}
	}
}

// appendLocked writes one ledger line.
func (m *Manager) appendLocked(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("budget: marshal record: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("budget: open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("budget: write ledger: %w", err)
	}
	return nil
}

// replay rebuilds totals from the ledger file. A missing ledger is a fresh
// start; a malformed line aborts with an error naming the line number.
func (m *Manager) replay() error {
	f, err := os.Open(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("budget: open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return fmt.Errorf("budget: ledger line %d: %w", line, err)
		}
		m.applyLocked(rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("budget: read ledger: %w", err)
	}
	return nil
}
