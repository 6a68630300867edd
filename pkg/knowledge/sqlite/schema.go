package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/setsuna-project/setsuna/pkg/knowledge"
)

// schema creates the three tables. Set-valued fields (categories, keywords,
// entities, aliases, related sessions) are stored as JSON text columns, not
// normalised; all scanning happens against the in-memory view.
const schema = `
CREATE TABLE IF NOT EXISTS knowledge_items (
	item_id           TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL,
	layer             TEXT NOT NULL,
	content           TEXT NOT NULL,
	source_url        TEXT NOT NULL DEFAULT '',
	reliability_score REAL NOT NULL,
	importance_score  REAL NOT NULL,
	categories        TEXT NOT NULL DEFAULT '[]',
	keywords          TEXT NOT NULL DEFAULT '[]',
	entities          TEXT NOT NULL DEFAULT '[]',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_session ON knowledge_items(session_id);
CREATE INDEX IF NOT EXISTS idx_items_layer   ON knowledge_items(layer);

CREATE TABLE IF NOT EXISTS entities (
	entity_id        TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	type             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	aliases          TEXT NOT NULL DEFAULT '[]',
	first_discovered TEXT NOT NULL,
	last_updated     TEXT NOT NULL,
	frequency        INTEGER NOT NULL DEFAULT 1,
	importance_score REAL NOT NULL,
	categories       TEXT NOT NULL DEFAULT '[]',
	related_sessions TEXT NOT NULL DEFAULT '[]',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

CREATE TABLE IF NOT EXISTS relationships (
	relationship_id   TEXT PRIMARY KEY,
	source_entity     TEXT NOT NULL,
	target_entity     TEXT NOT NULL,
	relationship_type TEXT NOT NULL,
	strength          REAL NOT NULL,
	discovered_in     TEXT NOT NULL,
	reinforced_in     TEXT NOT NULL DEFAULT '[]',
	confidence        REAL NOT NULL,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships(source_entity);
CREATE INDEX IF NOT EXISTS idx_rel_target ON relationships(target_entity);
`

// migrate applies the schema. All statements are idempotent.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("knowledge sqlite: migrate: %w", err)
	}
	return nil
}

// load reads every row into the in-memory view. Called once from Open.
func (s *Store) load() error {
	if err := s.loadItems(); err != nil {
		return err
	}
	if err := s.loadEntities(); err != nil {
		return err
	}
	return s.loadRelations()
}

func (s *Store) loadItems() error {
	rows, err := s.db.Query(`
		SELECT item_id, session_id, layer, content, source_url,
		       reliability_score, importance_score,
		       categories, keywords, entities, created_at, updated_at
		FROM knowledge_items`)
	if err != nil {
		return fmt.Errorf("knowledge sqlite: load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it                 knowledge.Item
			cats, kws, ents    string
			createdAt, updated string
		)
		if err := rows.Scan(&it.ID, &it.SessionID, &it.Layer, &it.Content, &it.SourceURL,
			&it.Reliability, &it.Importance, &cats, &kws, &ents, &createdAt, &updated); err != nil {
			return fmt.Errorf("knowledge sqlite: scan item: %w", err)
		}
		var decErr error
		it.Categories, decErr = decodeStrings(cats)
		if decErr == nil {
			it.Keywords, decErr = decodeStrings(kws)
		}
		if decErr == nil {
			it.Entities, decErr = decodeStrings(ents)
		}
		if decErr == nil {
			it.CreatedAt, decErr = decodeTime(createdAt)
		}
		if decErr == nil {
			it.UpdatedAt, decErr = decodeTime(updated)
		}
		if decErr != nil {
			return fmt.Errorf("knowledge sqlite: item %s: %w: %v", it.ID, knowledge.ErrCorrupt, decErr)
		}
		s.items[it.ID] = &it
	}
	return rows.Err()
}

func (s *Store) loadEntities() error {
	rows, err := s.db.Query(`
		SELECT entity_id, name, type, description, aliases,
		       first_discovered, last_updated, frequency, importance_score,
		       categories, related_sessions, created_at, updated_at
		FROM entities`)
	if err != nil {
		return fmt.Errorf("knowledge sqlite: load entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                    knowledge.Entity
			aliases, cats, sess  string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.Description, &aliases,
			&e.FirstDiscovered, &e.LastUpdated, &e.Frequency, &e.Importance,
			&cats, &sess, &createdAt, &updatedAt); err != nil {
			return fmt.Errorf("knowledge sqlite: scan entity: %w", err)
		}
		var decErr error
		e.Aliases, decErr = decodeStrings(aliases)
		if decErr == nil {
			e.Categories, decErr = decodeStrings(cats)
		}
		if decErr == nil {
			e.RelatedSessions, decErr = decodeStrings(sess)
		}
		if decErr == nil {
			e.CreatedAt, decErr = decodeTime(createdAt)
		}
		if decErr == nil {
			e.UpdatedAt, decErr = decodeTime(updatedAt)
		}
		if decErr != nil {
			return fmt.Errorf("knowledge sqlite: entity %s: %w: %v", e.ID, knowledge.ErrCorrupt, decErr)
		}
		s.entities[e.ID] = &e
	}
	return rows.Err()
}

func (s *Store) loadRelations() error {
	rows, err := s.db.Query(`
		SELECT relationship_id, source_entity, target_entity, relationship_type,
		       strength, discovered_in, reinforced_in, confidence, created_at, updated_at
		FROM relationships`)
	if err != nil {
		return fmt.Errorf("knowledge sqlite: load relationships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r                    knowledge.Relation
			reinforced           string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&r.ID, &r.Source, &r.Target, &r.Type, &r.Strength,
			&r.DiscoveredIn, &reinforced, &r.Confidence, &createdAt, &updatedAt); err != nil {
			return fmt.Errorf("knowledge sqlite: scan relationship: %w", err)
		}
		var decErr error
		r.ReinforcedIn, decErr = decodeStrings(reinforced)
		if decErr == nil {
			r.CreatedAt, decErr = decodeTime(createdAt)
		}
		if decErr == nil {
			r.UpdatedAt, decErr = decodeTime(updatedAt)
		}
		if decErr != nil {
			return fmt.Errorf("knowledge sqlite: relationship %s: %w: %v", r.ID, knowledge.ErrCorrupt, decErr)
		}
		s.relations[r.ID] = &r
	}
	return rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Column encoding helpers
// ─────────────────────────────────────────────────────────────────────────────

func encodeStrings(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	data, err := json.Marshal(v)
	if err != nil {
		// []string cannot fail to marshal.
		return "[]"
	}
	return string(data)
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}
