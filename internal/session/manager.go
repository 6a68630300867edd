// Package session maintains the relationship graph between learning
// sessions: which session spawned which, which earlier sessions a new one
// resembles, what knowledge it inherits, and which follow-up sessions look
// worthwhile.
//
// One [Relationship] record exists per session; records are created once
// and never deleted. Lineage trees grow append-only, so traversals need no
// cycle protection. State is persisted as pretty-printed JSON under the
// relationships data directory (session_tree.json, knowledge_links.json)
// and reloaded on startup.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"
)

// ErrExists is returned by [Manager.Create] when the session already has a
// relationship record. Creation is one-shot; a second call is rejected, not
// merged.
var ErrExists = errors.New("session: relationship already exists")

// ErrUnknownSession is returned when an operation names a session with no
// relationship record.
var ErrUnknownSession = errors.New("session: unknown session")

const (
	treeFile  = "session_tree.json"
	linksFile = "knowledge_links.json"

	defaultRecommendations = 3

	deepDiveValue    = 0.8
	explorationValue = 0.6
	practicalValue   = 0.9
)

// KnowledgeLister is the slice of the knowledge store the manager needs to
// identify inheritable items.
type KnowledgeLister interface {
	ItemsBySession(ctx context.Context, sessionID string) ([]string, error)
}

// Manager owns the session relationship records and lineage trees.
// All exported methods are safe for concurrent use; a single mutex makes
// the manager the sole writer of its two JSON files.
type Manager struct {
	dir       string
	policy    Policy
	knowledge KnowledgeLister

	mu       sync.Mutex
	records  map[string]*Relationship
	lineages map[string]*Lineage
	// links mirrors each session's inherited knowledge item ids; persisted
	// separately so report tools can read it without the full tree.
	links map[string][]string

	now func() time.Time
}

// treeState is the on-disk shape of session_tree.json.
type treeState struct {
	Sessions map[string]*Relationship `json:"sessions"`
	Lineages map[string]*Lineage      `json:"lineages"`
}

// NewManager creates a Manager persisting under dir, loading any existing
// state. knowledge may be nil, in which case sessions inherit nothing.
func NewManager(dir string, policy Policy, knowledge KnowledgeLister) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create dir %q: %w", dir, err)
	}
	m := &Manager{
		dir:       dir,
		policy:    policy.withDefaults(),
		knowledge: knowledge,
		records:   make(map[string]*Relationship),
		lineages:  make(map[string]*Lineage),
		links:     make(map[string][]string),
		now:       time.Now,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Create registers the relationship record for a new session. parent may be
// empty for an independent session. Returns [ErrExists] when the session
// already has a record; the existing record is left untouched.
func (m *Manager) Create(ctx context.Context, sessionID string, meta Meta, parent string) error {
	if sessionID == "" {
		return fmt.Errorf("session: create: session id must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[sessionID]; ok {
		return fmt.Errorf("session: create %q: %w", sessionID, ErrExists)
	}

	now := m.now().UTC()
	related := m.findRelatedLocked(meta, sessionID, now)
	relType := m.classifyLocked(meta, parent, related)
	inherited := m.inheritLocked(ctx, parent, related)
	focus := focusAreas(meta)
	avoided := m.avoidedDuplicatesLocked(meta, parent)

	rec := &Relationship{
		SessionID:          sessionID,
		ParentSession:      parent,
		Related:            related,
		Type:               relType,
		RelevanceScore:     bestScore(related),
		InheritedKnowledge: inherited,
		FocusAreas:         focus,
		AvoidedDuplicates:  avoided,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	m.records[sessionID] = rec
	m.links[sessionID] = inherited

	if parent != "" {
		if p, ok := m.records[parent]; ok {
			if !slices.Contains(p.ChildSessions, sessionID) {
				p.ChildSessions = append(p.ChildSessions, sessionID)
				p.UpdatedAt = now
			}
		} else {
			slog.Warn("parent session has no relationship record", "parent", parent, "session", sessionID)
		}
	}

	m.updateLineageLocked(sessionID, parent, now)

	if err := m.persistLocked(); err != nil {
		return err
	}
	slog.Info("session relationship created",
		"session_id", sessionID,
		"type", relType,
		"parent", parent,
		"related", len(related),
		"inherited", len(inherited),
	)
	return nil
}

// Get returns a copy of the relationship record for sessionID.
func (m *Manager) Get(sessionID string) (Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sessionID]
	if !ok {
		return Relationship{}, fmt.Errorf("session: get %q: %w", sessionID, ErrUnknownSession)
	}
	return cloneRecord(rec), nil
}

// RecordEvolution updates the knowledge-evolution summary of an existing
// record in place.
func (m *Manager) RecordEvolution(sessionID string, evo Evolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sessionID]
	if !ok {
		return fmt.Errorf("session: evolution %q: %w", sessionID, ErrUnknownSession)
	}
	rec.Evolution = evo
	rec.UpdatedAt = m.now().UTC()
	return m.persistLocked()
}

// Sessions returns all known session ids, oldest record first.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.records[ids[i]].CreatedAt.Before(m.records[ids[j]].CreatedAt)
	})
	return ids
}

// ─────────────────────────────────────────────────────────────────────────────
// Creation pipeline (callers hold m.mu)
// ─────────────────────────────────────────────────────────────────────────────

// findRelatedLocked scores every record inside the related window against
// the new session and keeps the best matches above the threshold.
func (m *Manager) findRelatedLocked(meta Meta, selfID string, now time.Time) []Related {
	var related []Related
	for id, rec := range m.records {
		if id == selfID || !m.policy.withinWindow(rec.CreatedAt, now) {
			continue
		}
		score := m.policy.similarity(meta, rec)
		if score >= m.policy.RelatedThreshold {
			related = append(related, Related{SessionID: id, Score: score})
		}
	}
	sort.Slice(related, func(i, j int) bool { return related[i].Score > related[j].Score })
	if len(related) > m.policy.MaxRelated {
		related = related[:m.policy.MaxRelated]
	}
	return related
}

// classifyLocked decides the relationship type. A child session is
// classified against the parent depth baseline; a parentless session is
// parallel research when a related score clears the parallel threshold,
// related when anything matched, independent otherwise.
func (m *Manager) classifyLocked(meta Meta, parent string, related []Related) RelationshipType {
	if parent != "" {
		switch {
		case meta.DepthLevel > m.policy.ParentDepthBaseline:
			return TypeDeepDive
		case meta.DepthLevel == m.policy.ParentDepthBaseline:
			return TypeContinuation
		default:
			return TypeRelated
		}
	}
	if bestScore(related) > m.policy.ParallelThreshold {
		return TypeParallelResearch
	}
	if len(related) > 0 {
		return TypeRelated
	}
	return TypeIndependent
}

// inheritLocked gathers knowledge item ids from the parent session and from
// related sessions whose score clears the inherit threshold, capped at
// MaxInherited.
func (m *Manager) inheritLocked(ctx context.Context, parent string, related []Related) []string {
	if m.knowledge == nil {
		return nil
	}
	var inherited []string
	add := func(sessionID string) {
		if len(inherited) >= m.policy.MaxInherited {
			return
		}
		ids, err := m.knowledge.ItemsBySession(ctx, sessionID)
		if err != nil {
			slog.Warn("could not list session knowledge for inheritance", "session", sessionID, "err", err)
			return
		}
		for _, id := range ids {
			if len(inherited) >= m.policy.MaxInherited {
				return
			}
			if !slices.Contains(inherited, id) {
				inherited = append(inherited, id)
			}
		}
	}
	if parent != "" {
		add(parent)
	}
	for _, r := range related {
		if r.Score > m.policy.InheritThreshold {
			add(r.SessionID)
		}
	}
	return inherited
}

// avoidedDuplicatesLocked marks focus phrases already covered by the parent
// plus the deep-dive learning type itself.
func (m *Manager) avoidedDuplicatesLocked(meta Meta, parent string) []string {
	var avoided []string
	if p, ok := m.records[parent]; ok && parent != "" {
		for _, phrase := range m.policy.CoveredBasics {
			if slices.Contains(p.FocusAreas, phrase) {
				avoided = append(avoided, phrase)
			}
		}
	}
	if meta.LearningType == m.policy.DeepDiveType {
		for _, phrase := range m.policy.CoveredBasics {
			if !slices.Contains(avoided, phrase) {
				avoided = append(avoided, phrase)
			}
		}
	}
	return avoided
}

// focusAreas is theme + learning type + tags, deduplicated.
func focusAreas(meta Meta) []string {
	return focusTerms(meta)
}

// updateLineageLocked places the session in a lineage tree: a new root for
// parentless sessions, otherwise a branch appended under the parent in the
// root's tree.
func (m *Manager) updateLineageLocked(sessionID, parent string, now time.Time) {
	if parent == "" {
		m.lineages[sessionID] = &Lineage{
			RootSession:   sessionID,
			Depth:         1,
			TotalSessions: 1,
			Tree:          &LineageNode{SessionID: sessionID},
			CreatedAt:     now,
			LastUpdated:   now,
		}
		return
	}

	root := m.rootOfLocked(parent)
	lin, ok := m.lineages[root]
	if !ok {
		// The parent predates lineage tracking; start a tree at the parent.
		lin = &Lineage{
			RootSession:   root,
			Depth:         1,
			TotalSessions: 1,
			Tree:          &LineageNode{SessionID: root},
			CreatedAt:     now,
			LastUpdated:   now,
		}
		m.lineages[root] = lin
	}

	node := findNode(lin.Tree, parent)
	if node == nil {
		// Parent missing from the tree (partial state); attach to the root.
		node = lin.Tree
	}
	node.Children = append(node.Children, &LineageNode{SessionID: sessionID})
	if len(node.Children) == 2 && !slices.Contains(lin.BranchPoints, node.SessionID) {
		lin.BranchPoints = append(lin.BranchPoints, node.SessionID)
	}
	lin.TotalSessions++
	if d := depthOf(lin.Tree, sessionID, 1); d > lin.Depth {
		lin.Depth = d
	}
	lin.LastUpdated = now
}

// rootOfLocked walks parent links to the lineage root.
func (m *Manager) rootOfLocked(sessionID string) string {
	current := sessionID
	for {
		rec, ok := m.records[current]
		if !ok || rec.ParentSession == "" {
			return current
		}
		current = rec.ParentSession
	}
}

// bestScore is the highest score among related sessions, 0 when empty.
// related is sorted descending by the time this is called, but recomputing
// keeps the helper safe to use on unsorted input.
func bestScore(related []Related) float64 {
	best := 0.0
	for _, r := range related {
		if r.Score > best {
			best = r.Score
		}
	}
	return best
}

func cloneRecord(rec *Relationship) Relationship {
	out := *rec
	out.ChildSessions = slices.Clone(rec.ChildSessions)
	out.Related = slices.Clone(rec.Related)
	out.InheritedKnowledge = slices.Clone(rec.InheritedKnowledge)
	out.FocusAreas = slices.Clone(rec.FocusAreas)
	out.AvoidedDuplicates = slices.Clone(rec.AvoidedDuplicates)
	return out
}

// findNode locates sessionID in the tree, depth-first.
func findNode(node *LineageNode, sessionID string) *LineageNode {
	if node == nil {
		return nil
	}
	if node.SessionID == sessionID {
		return node
	}
	for _, child := range node.Children {
		if found := findNode(child, sessionID); found != nil {
			return found
		}
	}
	return nil
}

// depthOf returns the depth of sessionID in the tree, 0 when absent.
func depthOf(node *LineageNode, sessionID string, depth int) int {
	if node == nil {
		return 0
	}
	if node.SessionID == sessionID {
		return depth
	}
	for _, child := range node.Children {
		if d := depthOf(child, sessionID, depth+1); d > 0 {
			return d
		}
	}
	return 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Persistence
// ─────────────────────────────────────────────────────────────────────────────

// persistLocked writes both JSON files. Caller holds m.mu.
func (m *Manager) persistLocked() error {
	state := treeState{Sessions: m.records, Lineages: m.lineages}
	if err := writeJSON(filepath.Join(m.dir, treeFile), state); err != nil {
		return err
	}
	return writeJSON(filepath.Join(m.dir, linksFile), m.links)
}

// load restores state from disk. Missing files mean a fresh start;
// undecodable files are reported as errors rather than silently ignored.
func (m *Manager) load() error {
	var state treeState
	if err := readJSON(filepath.Join(m.dir, treeFile), &state); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if state.Sessions != nil {
		m.records = state.Sessions
	}
	if state.Lineages != nil {
		m.lineages = state.Lineages
	}

	var links map[string][]string
	if err := readJSON(filepath.Join(m.dir, linksFile), &links); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	} else if links != nil {
		m.links = links
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal %q: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("session: write %q: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("session: rename %q: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("session: read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("session: decode %q: %w", path, err)
	}
	return nil
}
