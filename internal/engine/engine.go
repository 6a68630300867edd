// Package engine implements the activity learning engine: the orchestrator
// that turns a research theme into stored knowledge.
//
// A session runs as one synchronous loop: generate queries for the theme,
// fan each query out through the search layer, convert hits into raw
// knowledge items, extract entities and co-occurrence relations, and record
// the API spend. The loop stops when the query list is exhausted, the
// session's time limit (a context deadline) expires, or the budget manager
// rejects further spend.
//
// Callers that need a non-blocking start run [Engine.StartSession] in their
// own goroutine and follow progress via [Engine.Events] and
// [Engine.SessionStatus].
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/setsuna-project/setsuna/internal/budget"
	"github.com/setsuna-project/setsuna/internal/observe"
	"github.com/setsuna-project/setsuna/internal/search"
	"github.com/setsuna-project/setsuna/internal/session"
	"github.com/setsuna-project/setsuna/pkg/knowledge"
)

// ErrUnknownSession is returned by status lookups for session ids the engine
// never ran.
var ErrUnknownSession = errors.New("engine: unknown session")

// EventType classifies an [Event].
type EventType string

const (
	EventStarted  EventType = "started"
	EventQuery    EventType = "query"
	EventStored   EventType = "stored"
	EventFinished EventType = "finished"
)

// Event is a progress notification emitted while a session runs. Events are
// best-effort: when no consumer keeps up they are dropped, never blocking
// the learning loop.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// SessionRequest describes one learning session to run.
type SessionRequest struct {
	// Theme is the research theme. Required.
	Theme string `json:"theme"`

	// LearningType selects the query strategy (概要, 深掘り, 実用).
	LearningType string `json:"learning_type"`

	// DepthLevel ranges 1-5 and feeds relationship classification.
	DepthLevel int `json:"depth_level"`

	// TimeLimit bounds the session wall-clock time. Zero means the
	// configured default.
	TimeLimit time.Duration `json:"time_limit"`

	// Tags are free-form labels merged into the session's focus areas.
	Tags []string `json:"tags,omitempty"`

	// Parent optionally names the session this one continues.
	Parent string `json:"parent,omitempty"`
}

// SessionState is the lifecycle state of a run.
type SessionState string

const (
	StateRunning  SessionState = "running"
	StateFinished SessionState = "finished"
)

// Status is a snapshot of one session run. It doubles as the on-disk session
// file format under DataDir/sessions.
type Status struct {
	ID           string       `json:"session_id"`
	Theme        string       `json:"theme"`
	LearningType string       `json:"learning_type"`
	DepthLevel   int          `json:"depth_level"`
	Tags         []string     `json:"tags,omitempty"`
	Parent       string       `json:"parent,omitempty"`
	State        SessionState `json:"state"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at,omitzero"`
	Queries      int          `json:"queries_run"`
	Items        int          `json:"items_stored"`
	Entities     int          `json:"entities_stored"`
	Relations    int          `json:"relations_stored"`
	ItemIDs      []string     `json:"item_ids,omitempty"`
	Spend        float64      `json:"total_cost"`
	StopReason   string       `json:"stop_reason,omitempty"`
}

// Config tunes the engine. Zero-value fields get defaults.
type Config struct {
	// DataDir is the root of the on-disk layout; session files are written
	// to DataDir/sessions.
	DataDir string

	// QueriesPerSession caps generated queries per session. Default: 5.
	QueriesPerSession int

	// ResultsPerQuery caps hits stored per query. Default: 5.
	ResultsPerQuery int

	// CostPerSearch is the accounting cost of one multi-engine query batch.
	// Default: 0.005.
	CostPerSearch float64

	// DefaultTimeLimit applies when a request carries none. Default: 5m.
	DefaultTimeLimit time.Duration

	// Metrics receives session and item counters. Optional.
	Metrics *observe.Metrics
}

func (c Config) withDefaults() Config {
	if c.QueriesPerSession <= 0 {
		c.QueriesPerSession = 5
	}
	if c.ResultsPerQuery <= 0 {
		c.ResultsPerQuery = 5
	}
	if c.CostPerSearch <= 0 {
		c.CostPerSearch = 0.005
	}
	if c.DefaultTimeLimit <= 0 {
		c.DefaultTimeLimit = 5 * time.Minute
	}
	return c
}

// Engine orchestrates learning sessions across the search, knowledge,
// session and budget subsystems.
type Engine struct {
	cfg       Config
	store     knowledge.Store
	relations *session.Manager
	budget    *budget.Manager
	searcher  search.Engine
	queryGen  *search.QueryGenerator

	events chan Event
	now    func() time.Time

	mu     sync.Mutex
	status map[string]*Status
}

// New creates an engine. All collaborators are required; queryGen may lack
// an LLM backing, in which case query generation degrades to templates.
func New(cfg Config, store knowledge.Store, relations *session.Manager, budgetMgr *budget.Manager, searcher search.Engine, queryGen *search.QueryGenerator) (*Engine, error) {
	if store == nil || relations == nil || budgetMgr == nil || searcher == nil || queryGen == nil {
		return nil, fmt.Errorf("engine: all collaborators must be non-nil")
	}
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "sessions"), 0o755); err != nil {
		return nil, fmt.Errorf("engine: create sessions dir: %w", err)
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		relations: relations,
		budget:    budgetMgr,
		searcher:  searcher,
		queryGen:  queryGen,
		events:    make(chan Event, 64),
		now:       time.Now,
		status:    make(map[string]*Status),
	}, nil
}

// Events returns the progress event stream. Consumers that fall behind lose
// events rather than stalling sessions.
func (e *Engine) Events() <-chan Event { return e.events }

// StartSession runs one learning session to completion and returns its id.
// Budget exhaustion and time-limit expiry are normal terminations recorded
// in the session's StopReason, not errors.
func (e *Engine) StartSession(ctx context.Context, req SessionRequest) (string, error) {
	if req.Theme == "" {
		return "", fmt.Errorf("engine: theme must not be empty")
	}
	if req.LearningType == "" {
		req.LearningType = search.LearnOverview
	}
	if req.DepthLevel <= 0 {
		req.DepthLevel = 1
	}
	if req.TimeLimit <= 0 {
		req.TimeLimit = e.cfg.DefaultTimeLimit
	}

	id := e.newSessionID()
	meta := session.Meta{
		Theme:        req.Theme,
		LearningType: req.LearningType,
		DepthLevel:   req.DepthLevel,
		Tags:         req.Tags,
	}
	if err := e.relations.Create(ctx, id, meta, req.Parent); err != nil {
		return "", fmt.Errorf("engine: register session: %w", err)
	}
	if rel, err := e.relations.Get(id); err == nil {
		e.cfg.Metrics.RecordSessionCreated(ctx, string(rel.Type))
	}

	st := &Status{
		ID:           id,
		Theme:        req.Theme,
		LearningType: req.LearningType,
		DepthLevel:   req.DepthLevel,
		Tags:         req.Tags,
		Parent:       req.Parent,
		State:        StateRunning,
		StartedAt:    e.now(),
	}
	e.mu.Lock()
	e.status[id] = st
	e.mu.Unlock()

	e.emit(Event{Type: EventStarted, SessionID: id, Detail: req.Theme})
	slog.Info("learning session started",
		"session", id, "theme", req.Theme, "type", req.LearningType)

	e.cfg.Metrics.SessionStarted(ctx)
	runCtx, cancel := context.WithTimeout(ctx, req.TimeLimit)
	defer cancel()
	e.run(runCtx, st)
	e.cfg.Metrics.SessionEnded(ctx)

	e.mu.Lock()
	st.State = StateFinished
	st.FinishedAt = e.now()
	st.Spend = e.budget.SessionSpend(id)
	snapshot := *st
	e.mu.Unlock()

	if err := e.writeSessionFile(snapshot); err != nil {
		slog.Error("write session file", "session", id, "error", err)
	}
	e.emit(Event{Type: EventFinished, SessionID: id, Detail: snapshot.StopReason})
	slog.Info("learning session finished",
		"session", id,
		"items", snapshot.Items,
		"entities", snapshot.Entities,
		"cost", snapshot.Spend,
		"reason", snapshot.StopReason)
	return id, nil
}

// run executes the query loop. It mutates st under e.mu and sets StopReason.
func (e *Engine) run(ctx context.Context, st *Status) {
	queries := e.queryGen.Generate(ctx, st.Theme, st.LearningType, e.cfg.QueriesPerSession)

	newConcepts := make(map[string]bool)
	for _, q := range queries {
		if ctx.Err() != nil {
			e.setStop(st, "time_limit")
			break
		}
		if _, err := e.budget.RecordCost(st.ID, "search", q, 0, e.cfg.CostPerSearch); err != nil {
			if errors.Is(err, budget.ErrExceeded) {
				e.setStop(st, "budget_exceeded")
				break
			}
			slog.Error("record search cost", "session", st.ID, "error", err)
		}

		e.emit(Event{Type: EventQuery, SessionID: st.ID, Detail: q})
		res, err := e.searcher.Search(ctx, q, e.cfg.ResultsPerQuery)
		e.mu.Lock()
		st.Queries++
		e.mu.Unlock()
		if err != nil {
			slog.Warn("query produced no results",
				"session", st.ID, "query", q, "error", err)
			continue
		}

		e.storeHits(ctx, st, q, res.Items, newConcepts)
	}

	if len(newConcepts) > 0 {
		evo := session.Evolution{NewConcepts: sortedKeys(newConcepts)}
		if err := e.relations.RecordEvolution(st.ID, evo); err != nil {
			slog.Error("record knowledge evolution", "session", st.ID, "error", err)
		}
	}
	e.setStop(st, "completed")
}

// storeHits converts search hits into knowledge items, entities and
// co-occurrence relations.
func (e *Engine) storeHits(ctx context.Context, st *Status, query string, hits []search.Item, newConcepts map[string]bool) {
	for _, hit := range hits {
		content := hit.Title
		if hit.Snippet != "" && hit.Snippet != hit.Title {
			content = hit.Title + ": " + hit.Snippet
		}
		entities := ExtractEntities(hit.Title + " " + hit.Snippet)

		itemID, err := e.store.StoreItem(ctx, knowledge.ItemParams{
			SessionID: st.ID,
			Layer:     knowledge.LayerRaw,
			Content:   content,
			SourceURL: hit.URL,
			Keywords:  splitQueryTerms(query),
			Entities:  entities,
		})
		if err != nil {
			slog.Error("store knowledge item", "session", st.ID, "error", err)
			continue
		}

		e.mu.Lock()
		st.Items++
		st.ItemIDs = append(st.ItemIDs, itemID)
		e.mu.Unlock()
		e.cfg.Metrics.RecordItemStored(ctx, string(knowledge.LayerRaw))
		e.emit(Event{Type: EventStored, SessionID: st.ID, Detail: itemID})

		for _, name := range entities {
			if _, err := e.store.StoreEntity(ctx, knowledge.EntityParams{
				Name:      name,
				Type:      "term",
				SessionID: st.ID,
			}); err != nil {
				slog.Error("store entity",
					"session", st.ID, "entity", name, "error", err)
				continue
			}
			newConcepts[name] = true
			e.mu.Lock()
			st.Entities++
			e.mu.Unlock()
		}

		// Entities extracted from the same hit are weakly related.
		for i := 0; i < len(entities); i++ {
			for j := i + 1; j < len(entities); j++ {
				if _, err := e.store.StoreRelation(ctx, knowledge.RelationParams{
					Source:    entities[i],
					Target:    entities[j],
					Type:      "co_occurrence",
					Strength:  0.3,
					SessionID: st.ID,
				}); err != nil {
					slog.Error("store relation", "session", st.ID, "error", err)
					continue
				}
				e.mu.Lock()
				st.Relations++
				e.mu.Unlock()
			}
		}
	}
}

// SessionStatus returns a snapshot of one run.
func (e *Engine) SessionStatus(id string) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.status[id]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return *st, nil
}

// ListSessions returns snapshots of every run this process has seen, oldest
// first.
func (e *Engine) ListSessions() []Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Status, 0, len(e.status))
	for _, st := range e.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (e *Engine) emit(ev Event) {
	ev.At = e.now()
	select {
	case e.events <- ev:
	default:
	}
}

// setStop records the first stop reason; later calls are no-ops.
func (e *Engine) setStop(st *Status, reason string) {
	e.mu.Lock()
	if st.StopReason == "" {
		st.StopReason = reason
	}
	e.mu.Unlock()
}

// newSessionID builds ids like session_20260830_153012_a1b2.
func (e *Engine) newSessionID() string {
	return fmt.Sprintf("session_%s_%s",
		e.now().Format("20060102_150405"), uuid.NewString()[:4])
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
