// Package knowledge defines the durable knowledge store used by the Setsuna
// activity learning subsystem: knowledge items discovered per session, an
// entity graph accumulated across sessions, and keyword search over both.
//
// Identity is content-derived (see [ItemID], [EntityID], [RelationID]), so
// storing the same fact twice converges on one record instead of growing the
// store. The interface is public so external packages can supply alternative
// backends; the canonical implementation is the SQLite store in the sqlite
// subpackage.
//
// Every implementation must be safe for concurrent use.
package knowledge

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup names a session, item, or entity
// that does not exist in the store.
var ErrNotFound = errors.New("knowledge: not found")

// ErrCorrupt is returned when persisted data cannot be decoded. It signals
// storage damage rather than absence; callers should not retry.
var ErrCorrupt = errors.New("knowledge: corrupt record")

// ItemParams carries the caller-supplied fields for [Store.StoreItem].
type ItemParams struct {
	SessionID string
	Layer     Layer
	Content   string
	SourceURL string

	// Reliability defaults to 0.7 when zero.
	Reliability float64

	// Importance defaults to 0.5 when zero.
	Importance float64

	Categories []string
	Keywords   []string
	Entities   []string
}

// EntityParams carries the caller-supplied fields for [Store.StoreEntity].
type EntityParams struct {
	Name        string
	Type        string
	Description string
	SessionID   string
	Aliases     []string
	Categories  []string

	// Importance defaults to 0.5 when zero.
	Importance float64
}

// RelationParams carries the caller-supplied fields for [Store.StoreRelation].
type RelationParams struct {
	Source    string
	Target    string
	Type      string
	Strength  float64
	SessionID string

	// Confidence defaults to 0.8 when zero.
	Confidence float64
}

// SearchOpts narrows a [Store.Search] call. Zero-value fields are ignored.
type SearchOpts struct {
	// Layer restricts results to a single processing layer.
	Layer Layer

	// Categories restricts results to items carrying at least one of the
	// given categories.
	Categories []string

	// MinImportance excludes items whose importance is below the bound.
	MinImportance float64

	// Limit caps the number of results. Zero means the default of 10.
	Limit int
}

// Store is the durable knowledge store.
//
// Mutating operations converge on existing records rather than erroring on
// duplicates: StoreItem is a no-op for known content, StoreEntity merges,
// StoreRelation reinforces. See the method comments for the exact rules.
type Store interface {
	// StoreItem persists a knowledge item. The returned id is deterministic
	// from (Layer, Content); when an item with that id already exists the
	// call returns the existing id without updating any field, including
	// the owning session.
	StoreItem(ctx context.Context, p ItemParams) (string, error)

	// StoreEntity persists an entity. A case-insensitive match on an
	// existing entity's name or aliases merges instead of creating:
	// Frequency is incremented, Description is overwritten, and the session
	// is appended to RelatedSessions at most once.
	StoreEntity(ctx context.Context, p EntityParams) (string, error)

	// StoreRelation persists a typed edge between two entities. A second
	// observation of the same (Source, Target, Type) triple strengthens the
	// existing edge by 10% of its current strength, capped at 1.0, and
	// appends the session to ReinforcedIn.
	StoreRelation(ctx context.Context, p RelationParams) (string, error)

	// GetItem retrieves an item by id. Returns [ErrNotFound] when absent.
	GetItem(ctx context.Context, id string) (Item, error)

	// Search ranks stored items against a free-text query. Relevance is
	// additive: 0.8 for a content substring match, 0.6 per keyword hit and
	// 0.7 per entity hit; results are ordered by relevance * importance
	// descending.
	Search(ctx context.Context, query string, opts SearchOpts) ([]SearchResult, error)

	// EntityGraph returns the neighbourhood of the named entity. The depth
	// parameter is accepted for interface stability but expansion is
	// currently a single hop. Returns [ErrNotFound] for unknown entities.
	EntityGraph(ctx context.Context, entityName string, depth int) (GraphView, error)

	// SessionSummary aggregates the contribution of one session.
	// Returns [ErrNotFound] when the session stored nothing.
	SessionSummary(ctx context.Context, sessionID string) (SessionSummary, error)

	// ItemsBySession returns the ids of all items discovered by a session,
	// oldest first. Returns an empty (non-nil) slice for unknown sessions.
	ItemsBySession(ctx context.Context, sessionID string) ([]string, error)

	// Cleanup removes items created before now-olderThan whose importance
	// is strictly below 0.3. Both conditions are required. It reports the
	// number of removed items.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// ExportSnapshot writes a pretty-printed JSON snapshot of the whole
	// store (items, entities, relationships, categories) into dir for
	// backup purposes. The database remains the source of truth.
	ExportSnapshot(ctx context.Context, dir string) error

	// Close releases underlying resources.
	Close() error
}
