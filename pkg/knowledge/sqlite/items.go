package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/setsuna-project/setsuna/pkg/knowledge"
)

const (
	defaultReliability = 0.7
	defaultImportance  = 0.5
	defaultSearchLimit = 10

	// cleanupImportanceBound: only items strictly below this importance are
	// eligible for age-based removal.
	cleanupImportanceBound = 0.3

	contentMatchScore = 0.8
	keywordMatchScore = 0.6
	entityMatchScore  = 0.7
)

// StoreItem implements [knowledge.Store]. The item id is deterministic from
// (layer, content); storing known content is a no-op that returns the
// existing id and leaves every field untouched, including the owning
// session; the first discovering session wins.
func (s *Store) StoreItem(ctx context.Context, p knowledge.ItemParams) (string, error) {
	if !p.Layer.IsValid() {
		return "", fmt.Errorf("knowledge sqlite: store item: invalid layer %q", p.Layer)
	}
	if p.Content == "" {
		return "", fmt.Errorf("knowledge sqlite: store item: content must not be empty")
	}
	if p.Reliability == 0 {
		p.Reliability = defaultReliability
	}
	if p.Importance == 0 {
		p.Importance = defaultImportance
	}

	id := knowledge.ItemID(p.Layer, p.Content)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; ok {
		slog.Debug("knowledge item already stored", "item_id", id, "session_id", p.SessionID)
		return id, nil
	}

	now := s.now().UTC()
	it := &knowledge.Item{
		ID:          id,
		SessionID:   p.SessionID,
		Layer:       p.Layer,
		Content:     p.Content,
		SourceURL:   p.SourceURL,
		Reliability: p.Reliability,
		Importance:  p.Importance,
		Categories:  slices.Clone(p.Categories),
		Keywords:    slices.Clone(p.Keywords),
		Entities:    slices.Clone(p.Entities),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_items
			(item_id, session_id, layer, content, source_url,
			 reliability_score, importance_score, categories, keywords, entities,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.SessionID, string(it.Layer), it.Content, it.SourceURL,
		it.Reliability, it.Importance,
		encodeStrings(it.Categories), encodeStrings(it.Keywords), encodeStrings(it.Entities),
		encodeTime(it.CreatedAt), encodeTime(it.UpdatedAt))
	if err != nil {
		return "", fmt.Errorf("knowledge sqlite: insert item: %w", err)
	}

	s.items[id] = it
	return id, nil
}

// GetItem implements [knowledge.Store].
func (s *Store) GetItem(ctx context.Context, id string) (knowledge.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return knowledge.Item{}, fmt.Errorf("knowledge sqlite: item %q: %w", id, knowledge.ErrNotFound)
	}
	return *it, nil
}

// Search implements [knowledge.Store]. Content matching is case-sensitive;
// keyword and entity matching is lower-cased. Relevance contributions are
// additive and unbounded, ranking uses relevance * importance descending.
func (s *Store) Search(ctx context.Context, query string, opts knowledge.SearchOpts) ([]knowledge.SearchResult, error) {
	if query == "" {
		return []knowledge.SearchResult{}, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	lowerQuery := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]knowledge.SearchResult, 0, limit)
	for _, it := range s.items {
		if opts.Layer != "" && it.Layer != opts.Layer {
			continue
		}
		if it.Importance < opts.MinImportance {
			continue
		}
		if len(opts.Categories) > 0 && !hasAnyCategory(it.Categories, opts.Categories) {
			continue
		}

		relevance := 0.0
		if strings.Contains(it.Content, query) {
			relevance += contentMatchScore
		}
		for _, kw := range it.Keywords {
			if strings.Contains(strings.ToLower(kw), lowerQuery) {
				relevance += keywordMatchScore
			}
		}
		for _, ent := range it.Entities {
			if strings.Contains(strings.ToLower(ent), lowerQuery) {
				relevance += entityMatchScore
			}
		}
		if relevance == 0 {
			continue
		}
		results = append(results, knowledge.SearchResult{Item: *it, Relevance: relevance})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance*results[i].Item.Importance >
			results[j].Relevance*results[j].Item.Importance
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ItemsBySession implements [knowledge.Store].
func (s *Store) ItemsBySession(ctx context.Context, sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type dated struct {
		id string
		at time.Time
	}
	var found []dated
	for _, it := range s.items {
		if it.SessionID == sessionID {
			found = append(found, dated{it.ID, it.CreatedAt})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })

	ids := make([]string, 0, len(found))
	for _, d := range found {
		ids = append(ids, d.id)
	}
	return ids, nil
}

// SessionSummary implements [knowledge.Store]. The aggregation is a linear
// scan over all rows, which is fine at the corpus sizes this store sees.
func (s *Store) SessionSummary(ctx context.Context, sessionID string) (knowledge.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := knowledge.SessionSummary{
		SessionID:    sessionID,
		ItemsByLayer: make(map[knowledge.Layer]int),
	}
	var totalImportance, totalReliability float64
	categories := make(map[string]struct{})

	for _, it := range s.items {
		if it.SessionID != sessionID {
			continue
		}
		sum.ItemCount++
		sum.ItemsByLayer[it.Layer]++
		totalImportance += it.Importance
		totalReliability += it.Reliability
		for _, c := range it.Categories {
			categories[c] = struct{}{}
		}
	}
	for _, e := range s.entities {
		if slices.Contains(e.RelatedSessions, sessionID) {
			sum.EntityCount++
		}
	}
	for _, r := range s.relations {
		if r.DiscoveredIn == sessionID || slices.Contains(r.ReinforcedIn, sessionID) {
			sum.RelationCount++
		}
	}

	if sum.ItemCount == 0 && sum.EntityCount == 0 && sum.RelationCount == 0 {
		return knowledge.SessionSummary{}, fmt.Errorf("knowledge sqlite: session %q: %w", sessionID, knowledge.ErrNotFound)
	}
	if sum.ItemCount > 0 {
		sum.AvgImportance = totalImportance / float64(sum.ItemCount)
		sum.AvgReliability = totalReliability / float64(sum.ItemCount)
	}
	sum.Categories = make([]string, 0, len(categories))
	for c := range categories {
		sum.Categories = append(sum.Categories, c)
	}
	sort.Strings(sum.Categories)
	return sum, nil
}

// Cleanup implements [knowledge.Store]. An item is removed only when it is
// strictly older than the cutoff AND its importance is strictly below 0.3;
// an item sitting exactly at 0.3 survives regardless of age.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	var doomed []string
	for id, it := range s.items {
		if it.CreatedAt.Before(cutoff) && it.Importance < cleanupImportanceBound {
			doomed = append(doomed, id)
		}
	}
	for _, id := range doomed {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_items WHERE item_id = ?`, id); err != nil {
			return 0, fmt.Errorf("knowledge sqlite: cleanup delete %s: %w", id, err)
		}
		delete(s.items, id)
	}
	if len(doomed) > 0 {
		slog.Info("knowledge cleanup removed items", "count", len(doomed), "cutoff", cutoff)
	}
	return len(doomed), nil
}

// hasAnyCategory reports whether have contains at least one of want.
func hasAnyCategory(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}
