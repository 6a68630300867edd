package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Layer is the coarse processing stage of a knowledge item.
type Layer string

const (
	// LayerRaw is unprocessed material as discovered (search snippets,
	// transcript fragments).
	LayerRaw Layer = "raw"

	// LayerStructured contains facts extracted from raw material.
	LayerStructured Layer = "structured"

	// LayerIntegrated contains knowledge synthesised across sessions.
	LayerIntegrated Layer = "integrated"
)

// IsValid reports whether l is a recognised layer.
func (l Layer) IsValid() bool {
	switch l {
	case LayerRaw, LayerStructured, LayerIntegrated:
		return true
	}
	return false
}

// Item is a single unit of stored knowledge, discovered during a learning
// session. Its identity is derived from (Layer, Content), so identical
// content stored twice in the same layer resolves to one record.
type Item struct {
	// ID is the deterministic identifier, see [ItemID].
	ID string `json:"item_id"`

	// SessionID is the learning session that discovered this item.
	// On a duplicate store the original discovering session is kept.
	SessionID string `json:"session_id"`

	// Layer is the processing stage of this item.
	Layer Layer `json:"layer"`

	// Content is the knowledge text itself.
	Content string `json:"content"`

	// SourceURL points at the origin of the content, when known.
	SourceURL string `json:"source_url,omitempty"`

	// Reliability estimates how trustworthy the source is (0.0–1.0).
	Reliability float64 `json:"reliability_score"`

	// Importance estimates how valuable the item is (0.0–1.0). Items below
	// the cleanup threshold are eligible for age-based removal.
	Importance float64 `json:"importance_score"`

	// Categories are coarse topic labels.
	Categories []string `json:"categories,omitempty"`

	// Keywords are search terms associated with the content.
	Keywords []string `json:"keywords,omitempty"`

	// Entities names the concepts mentioned in the content.
	Entities []string `json:"entities,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entity is a named concept (technology, person, product) recognised across
// sessions and accumulated over time. Identity is by case-insensitive name
// or alias match; re-discovery increments Frequency and overwrites
// Description (last writer wins).
type Entity struct {
	// ID is the deterministic identifier, see [EntityID].
	ID string `json:"entity_id"`

	// Name is the canonical display name.
	Name string `json:"name"`

	// Type classifies the entity (e.g. "technology", "person", "product").
	Type string `json:"type"`

	// Description is the most recent description stored for this entity.
	Description string `json:"description"`

	// Aliases are alternative names that resolve to this entity
	// (case-insensitive).
	Aliases []string `json:"aliases,omitempty"`

	// FirstDiscovered is the session that first stored this entity.
	FirstDiscovered string `json:"first_discovered"`

	// LastUpdated is the session that most recently touched this entity.
	LastUpdated string `json:"last_updated"`

	// Frequency counts how many times the entity has been stored.
	Frequency int `json:"frequency"`

	// Importance estimates how central the entity is (0.0–1.0).
	Importance float64 `json:"importance_score"`

	// Categories are coarse topic labels.
	Categories []string `json:"categories,omitempty"`

	// RelatedSessions lists every session that mentioned this entity,
	// without duplicates.
	RelatedSessions []string `json:"related_sessions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Relation is a typed edge between two entities. A second observation of
// the same (Source, Target, Type) triple reinforces the existing edge
// instead of duplicating it.
type Relation struct {
	// ID is the deterministic identifier, see [RelationID].
	ID string `json:"relationship_id"`

	// Source is the name of the originating entity.
	Source string `json:"source_entity"`

	// Target is the name of the destination entity.
	Target string `json:"target_entity"`

	// Type is the semantic label of the relationship (e.g. "uses",
	// "competes_with", "created_by").
	Type string `json:"relationship_type"`

	// Strength grows by 10% of its current value on each reinforcement,
	// capped at 1.0.
	Strength float64 `json:"strength"`

	// DiscoveredIn is the session that first observed this relation.
	DiscoveredIn string `json:"discovered_in"`

	// ReinforcedIn lists the sessions that re-observed the relation.
	ReinforcedIn []string `json:"reinforced_in,omitempty"`

	// Confidence is the extractor's confidence at first observation.
	Confidence float64 `json:"confidence"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchResult pairs a retrieved item with its relevance to the query.
// Relevance is additive and unbounded; ranking uses Relevance * Importance.
type SearchResult struct {
	Item      Item
	Relevance float64
}

// GraphView is the neighbourhood of one entity: the centre entity, its
// directly connected entities, and the relations between them.
type GraphView struct {
	Center    Entity
	Entities  []Entity
	Relations []Relation
}

// SessionSummary aggregates what a single session contributed to the store.
type SessionSummary struct {
	SessionID      string         `json:"session_id"`
	ItemCount      int            `json:"item_count"`
	ItemsByLayer   map[Layer]int  `json:"items_by_layer"`
	EntityCount    int            `json:"entity_count"`
	RelationCount  int            `json:"relation_count"`
	AvgImportance  float64        `json:"avg_importance"`
	AvgReliability float64        `json:"avg_reliability"`
	Categories     []string       `json:"categories"`
}

// ItemID derives the deterministic item identifier from layer and content:
// "know_<layer>_" + the first 16 hex characters of sha256(content).
func ItemID(layer Layer, content string) string {
	sum := sha256.Sum256([]byte(content))
	return "know_" + string(layer) + "_" + hex.EncodeToString(sum[:])[:16]
}

// EntityID derives the deterministic entity identifier from the lower-cased
// name: "ent_" + the first 12 hex characters of sha256(lower(name)).
func EntityID(name string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(name)))
	return "ent_" + hex.EncodeToString(sum[:])[:12]
}

// RelationID derives the deterministic relation identifier from the triple.
func RelationID(source, target, relType string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + target + "\x00" + relType))
	return "rel_" + hex.EncodeToString(sum[:])[:16]
}
