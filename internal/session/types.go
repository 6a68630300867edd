package session

import "time"

// RelationshipType classifies how a session relates to the sessions that
// came before it.
type RelationshipType string

const (
	// TypeIndependent marks a session with no meaningful predecessor.
	TypeIndependent RelationshipType = "independent"

	// TypeDeepDive marks a child session that digs deeper than its parent.
	TypeDeepDive RelationshipType = "deep_dive"

	// TypeContinuation marks a child session at the same depth as its parent.
	TypeContinuation RelationshipType = "continuation"

	// TypeRelated marks a session similar to earlier ones without a direct
	// parent link, or a child shallower than its parent.
	TypeRelated RelationshipType = "related"

	// TypeParallelResearch marks a session strongly similar (> the parallel
	// threshold) to a concurrent line of research.
	TypeParallelResearch RelationshipType = "parallel_research"
)

// Related pairs a previously seen session with its similarity score against
// the session being created.
type Related struct {
	SessionID string  `json:"session_id"`
	Score     float64 `json:"score"`
}

// Evolution tracks how a session changed the knowledge base relative to its
// predecessors.
type Evolution struct {
	NewConcepts        []string `json:"new_concepts,omitempty"`
	UpdatedConcepts    []string `json:"updated_concepts,omitempty"`
	DeprecatedConcepts []string `json:"deprecated_concepts,omitempty"`
}

// Relationship is the bookkeeping record kept for every learning session:
// its position in the lineage tree, the sessions it resembles, the
// knowledge it inherits, and the focus areas it covers. Exactly one record
// exists per session id.
type Relationship struct {
	SessionID      string           `json:"session_id"`
	ParentSession  string           `json:"parent_session,omitempty"`
	ChildSessions  []string         `json:"child_sessions,omitempty"`
	Related        []Related        `json:"related_sessions,omitempty"`
	Type           RelationshipType `json:"relationship_type"`
	RelevanceScore float64          `json:"relevance_score"`

	// InheritedKnowledge lists knowledge item ids carried over from the
	// parent and strongly related sessions.
	InheritedKnowledge []string `json:"inherited_knowledge,omitempty"`

	// FocusAreas is the deduplicated union of theme, learning type, and tags.
	FocusAreas []string `json:"focus_areas,omitempty"`

	// AvoidedDuplicates lists focus phrases already covered by ancestors
	// that this session should not repeat.
	AvoidedDuplicates []string `json:"avoided_duplicates,omitempty"`

	Evolution Evolution `json:"knowledge_evolution"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LineageNode is one session in a lineage tree.
type LineageNode struct {
	SessionID string         `json:"session_id"`
	Children  []*LineageNode `json:"children,omitempty"`
}

// Lineage is the tree of sessions rooted at an independent session,
// maintained append-only as children are created.
type Lineage struct {
	RootSession   string       `json:"root_session"`
	Depth         int          `json:"lineage_depth"`
	TotalSessions int          `json:"total_sessions"`
	BranchPoints  []string     `json:"branch_points,omitempty"`
	Tree          *LineageNode `json:"lineage_tree"`
	CreatedAt     time.Time    `json:"created_at"`
	LastUpdated   time.Time    `json:"last_updated"`
}

// Meta carries the session metadata the manager needs to place a new
// session in the graph. It is owned by the orchestrator; the manager only
// reads it.
type Meta struct {
	// Theme is the research theme (e.g. "AI音楽生成技術調査").
	Theme string `json:"theme"`

	// LearningType is the session mode (e.g. "概要", "深掘り", "実用").
	LearningType string `json:"learning_type"`

	// DepthLevel ranges 1–5; compared against the parent depth baseline to
	// classify child sessions.
	DepthLevel int `json:"depth_level"`

	// Tags are free-form labels that feed into the focus areas.
	Tags []string `json:"tags,omitempty"`
}

// Recommendation is a suggested follow-up session.
type Recommendation struct {
	// Kind is one of "deep_dive", "related_exploration",
	// "practical_application".
	Kind string `json:"kind"`

	// Theme is the suggested session theme.
	Theme string `json:"theme"`

	// BasedOn names the focus area or topic that produced the suggestion.
	BasedOn string `json:"based_on"`

	// EstimatedValue is a fixed per-kind score used for ranking; it is not
	// learned from outcomes.
	EstimatedValue float64 `json:"estimated_value"`
}

// LineageView is a flattened lineage tree for external rendering.
type LineageView struct {
	RootSession string          `json:"root_session"`
	Nodes       []LineageVertex `json:"nodes"`
	Edges       []LineageEdge   `json:"edges"`
	MaxDepth    int             `json:"max_depth"`
	Total       int             `json:"total_sessions"`
}

// LineageVertex is one node of a [LineageView].
type LineageVertex struct {
	SessionID string `json:"session_id"`
	Depth     int    `json:"depth"`
}

// LineageEdge is one parent-to-child edge of a [LineageView].
type LineageEdge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}
