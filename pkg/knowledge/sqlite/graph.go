package sqlite

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/setsuna-project/setsuna/pkg/knowledge"
)

const (
	defaultConfidence = 0.8

	// reinforceFactor: each re-observation grows strength by 10% of its
	// current value, capped at 1.0.
	reinforceFactor = 0.1
)

// StoreEntity implements [knowledge.Store]. Entity identity is resolved by
// case-insensitive match against existing names and aliases; a hit merges
// (frequency +1, description overwritten last-writer-wins, session appended
// to related sessions at most once) instead of creating a new record.
func (s *Store) StoreEntity(ctx context.Context, p knowledge.EntityParams) (string, error) {
	if p.Name == "" {
		return "", fmt.Errorf("knowledge sqlite: store entity: name must not be empty")
	}
	if p.Importance == 0 {
		p.Importance = defaultImportance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()

	if e := s.findEntityLocked(p.Name); e != nil {
		// Merge into a copy; the in-memory record is only replaced once
		// the row write succeeds, keeping view and database in step.
		upd := *e
		upd.RelatedSessions = slices.Clone(e.RelatedSessions)
		upd.Categories = slices.Clone(e.Categories)
		upd.Frequency++
		upd.Description = p.Description
		upd.LastUpdated = p.SessionID
		if p.SessionID != "" && !slices.Contains(upd.RelatedSessions, p.SessionID) {
			upd.RelatedSessions = append(upd.RelatedSessions, p.SessionID)
		}
		for _, c := range p.Categories {
			if !slices.Contains(upd.Categories, c) {
				upd.Categories = append(upd.Categories, c)
			}
		}
		upd.UpdatedAt = now
		if err := s.writeEntity(ctx, &upd); err != nil {
			return "", err
		}
		s.entities[upd.ID] = &upd
		return upd.ID, nil
	}

	e := &knowledge.Entity{
		ID:              knowledge.EntityID(p.Name),
		Name:            p.Name,
		Type:            p.Type,
		Description:     p.Description,
		Aliases:         slices.Clone(p.Aliases),
		FirstDiscovered: p.SessionID,
		LastUpdated:     p.SessionID,
		Frequency:       1,
		Importance:      p.Importance,
		Categories:      slices.Clone(p.Categories),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if p.SessionID != "" {
		e.RelatedSessions = []string{p.SessionID}
	}
	if err := s.writeEntity(ctx, e); err != nil {
		return "", err
	}
	s.entities[e.ID] = e
	return e.ID, nil
}

// StoreRelation implements [knowledge.Store]. A repeated (source, target,
// type) triple reinforces the existing edge rather than duplicating it.
func (s *Store) StoreRelation(ctx context.Context, p knowledge.RelationParams) (string, error) {
	if p.Source == "" || p.Target == "" || p.Type == "" {
		return "", fmt.Errorf("knowledge sqlite: store relation: source, target, and type are required")
	}
	if p.Confidence == 0 {
		p.Confidence = defaultConfidence
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()

	for _, r := range s.relations {
		if r.Source != p.Source || r.Target != p.Target || r.Type != p.Type {
			continue
		}
		upd := *r
		upd.ReinforcedIn = slices.Clone(r.ReinforcedIn)
		upd.Strength = min(1.0, upd.Strength+upd.Strength*reinforceFactor)
		if p.SessionID != "" && !slices.Contains(upd.ReinforcedIn, p.SessionID) {
			upd.ReinforcedIn = append(upd.ReinforcedIn, p.SessionID)
		}
		upd.UpdatedAt = now
		if err := s.writeRelation(ctx, &upd); err != nil {
			return "", err
		}
		s.relations[upd.ID] = &upd
		return upd.ID, nil
	}

	r := &knowledge.Relation{
		ID:           knowledge.RelationID(p.Source, p.Target, p.Type),
		Source:       p.Source,
		Target:       p.Target,
		Type:         p.Type,
		Strength:     min(1.0, p.Strength),
		DiscoveredIn: p.SessionID,
		Confidence:   p.Confidence,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.writeRelation(ctx, r); err != nil {
		return "", err
	}
	s.relations[r.ID] = r
	return r.ID, nil
}

// EntityGraph implements [knowledge.Store]. The depth parameter is part of
// the interface but expansion stops at the direct neighbourhood; multi-hop
// traversal has not been needed by any caller yet.
func (s *Store) EntityGraph(ctx context.Context, entityName string, depth int) (knowledge.GraphView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	center := s.findEntityLocked(entityName)
	if center == nil {
		return knowledge.GraphView{}, fmt.Errorf("knowledge sqlite: entity %q: %w", entityName, knowledge.ErrNotFound)
	}

	view := knowledge.GraphView{Center: *center}
	seen := map[string]struct{}{strings.ToLower(center.Name): {}}

	for _, r := range s.relations {
		var other string
		switch {
		case strings.EqualFold(r.Source, center.Name):
			other = r.Target
		case strings.EqualFold(r.Target, center.Name):
			other = r.Source
		default:
			continue
		}
		view.Relations = append(view.Relations, *r)

		key := strings.ToLower(other)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if e := s.findEntityLocked(other); e != nil {
			view.Entities = append(view.Entities, *e)
		}
	}
	return view, nil
}

// writeEntity upserts an entity row. Caller holds the write lock.
func (s *Store) writeEntity(ctx context.Context, e *knowledge.Entity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities
			(entity_id, name, type, description, aliases,
			 first_discovered, last_updated, frequency, importance_score,
			 categories, related_sessions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_id) DO UPDATE SET
			description      = excluded.description,
			aliases          = excluded.aliases,
			last_updated     = excluded.last_updated,
			frequency        = excluded.frequency,
			importance_score = excluded.importance_score,
			categories       = excluded.categories,
			related_sessions = excluded.related_sessions,
			updated_at       = excluded.updated_at`,
		e.ID, e.Name, e.Type, e.Description, encodeStrings(e.Aliases),
		e.FirstDiscovered, e.LastUpdated, e.Frequency, e.Importance,
		encodeStrings(e.Categories), encodeStrings(e.RelatedSessions),
		encodeTime(e.CreatedAt), encodeTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("knowledge sqlite: upsert entity %s: %w", e.ID, err)
	}
	return nil
}

// writeRelation upserts a relationship row. Caller holds the write lock.
func (s *Store) writeRelation(ctx context.Context, r *knowledge.Relation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships
			(relationship_id, source_entity, target_entity, relationship_type,
			 strength, discovered_in, reinforced_in, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (relationship_id) DO UPDATE SET
			strength      = excluded.strength,
			reinforced_in = excluded.reinforced_in,
			updated_at    = excluded.updated_at`,
		r.ID, r.Source, r.Target, r.Type, r.Strength,
		r.DiscoveredIn, encodeStrings(r.ReinforcedIn), r.Confidence,
		encodeTime(r.CreatedAt), encodeTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("knowledge sqlite: upsert relationship %s: %w", r.ID, err)
	}
	return nil
}

// findEntityLocked resolves a name against entity names and aliases,
// case-insensitively. Caller holds at least the read lock.
func (s *Store) findEntityLocked(name string) *knowledge.Entity {
	for _, e := range s.entities {
		if strings.EqualFold(e.Name, name) {
			return e
		}
		for _, alias := range e.Aliases {
			if strings.EqualFold(alias, name) {
				return e
			}
		}
	}
	return nil
}
