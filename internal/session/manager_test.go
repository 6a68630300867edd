package session

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

// mockLister is a test double for KnowledgeLister.
type mockLister struct {
	items map[string][]string
	err   error
}

func (m *mockLister) ItemsBySession(_ context.Context, sessionID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.items[sessionID], nil
}

func newTestManager(t *testing.T, lister KnowledgeLister) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "relationships"), Policy{}, lister)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestCreate_RejectsDuplicate(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	meta := Meta{Theme: "AI音楽生成技術調査", LearningType: "概要", DepthLevel: 2}
	if err := m.Create(ctx, "session_a", meta, ""); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	before, err := m.Get("session_a")
	if err != nil {
		t.Fatal(err)
	}

	err = m.Create(ctx, "session_a", Meta{Theme: "different theme"}, "")
	if !errors.Is(err, ErrExists) {
		t.Fatalf("second Create: got %v, want ErrExists", err)
	}

	after, err := m.Get("session_a")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(before.FocusAreas, after.FocusAreas) || before.Type != after.Type {
		t.Error("rejected Create must not mutate the existing record")
	}
}

func TestCreate_ParentChildBackLink(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	if err := m.Create(ctx, "parent", Meta{Theme: "AI音楽生成技術調査", DepthLevel: 2}, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(ctx, "child", Meta{Theme: "AI音楽生成の深掘り", DepthLevel: 4}, "parent"); err != nil {
		t.Fatal(err)
	}

	parent, err := m.Get("parent")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(parent.ChildSessions, "child") {
		t.Errorf("parent child_sessions = %v, want to contain \"child\"", parent.ChildSessions)
	}
	child, err := m.Get("child")
	if err != nil {
		t.Fatal(err)
	}
	if child.ParentSession != "parent" {
		t.Errorf("child parent = %q", child.ParentSession)
	}
}

func TestClassify_DepthAgainstBaseline(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		want  RelationshipType
	}{
		{"deeper than baseline", 4, TypeDeepDive},
		{"at baseline", 3, TypeContinuation},
		{"shallower than baseline", 2, TypeRelated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, nil)
			ctx := context.Background()
			if err := m.Create(ctx, "parent", Meta{Theme: "テーマ", DepthLevel: 3}, ""); err != nil {
				t.Fatal(err)
			}
			if err := m.Create(ctx, "child", Meta{Theme: "テーマ", DepthLevel: tt.depth}, "parent"); err != nil {
				t.Fatal(err)
			}
			rec, err := m.Get("child")
			if err != nil {
				t.Fatal(err)
			}
			if rec.Type != tt.want {
				t.Errorf("type = %q, want %q", rec.Type, tt.want)
			}
		})
	}
}

func TestCreate_IndependentWhenNothingMatches(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	if err := m.Create(ctx, "solo", Meta{Theme: "量子コンピュータ入門", DepthLevel: 1}, ""); err != nil {
		t.Fatal(err)
	}
	rec, err := m.Get("solo")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Type != TypeIndependent {
		t.Errorf("type = %q, want independent", rec.Type)
	}
	if len(rec.Related) != 0 {
		t.Errorf("related = %v, want empty", rec.Related)
	}
}

func TestCreate_FindsRelatedSessions(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	if err := m.Create(ctx, "first", Meta{Theme: "AI音楽生成技術調査", LearningType: "概要", DepthLevel: 2}, ""); err != nil {
		t.Fatal(err)
	}
	// Near-identical theme, no parent link: must be picked up as related.
	if err := m.Create(ctx, "second", Meta{Theme: "AI音楽生成技術調査の続き", LearningType: "概要", DepthLevel: 2}, ""); err != nil {
		t.Fatal(err)
	}
	rec, err := m.Get("second")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Related) == 0 {
		t.Fatal("expected the earlier session to be found as related")
	}
	if rec.Related[0].SessionID != "first" {
		t.Errorf("related[0] = %q, want \"first\"", rec.Related[0].SessionID)
	}
	if rec.Type == TypeIndependent {
		t.Errorf("type = %q, want non-independent", rec.Type)
	}
}

func TestCreate_OldSessionsOutsideWindowIgnored(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	if err := m.Create(ctx, "stale", Meta{Theme: "AI音楽生成技術調査", DepthLevel: 2}, ""); err != nil {
		t.Fatal(err)
	}

	m.now = func() time.Time { return base.Add(40 * 24 * time.Hour) }
	if err := m.Create(ctx, "fresh", Meta{Theme: "AI音楽生成技術調査", DepthLevel: 2}, ""); err != nil {
		t.Fatal(err)
	}
	rec, err := m.Get("fresh")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Related) != 0 {
		t.Errorf("sessions outside the 30-day window must be ignored, got %v", rec.Related)
	}
}

func TestCreate_InheritsKnowledgeFromParent(t *testing.T) {
	lister := &mockLister{items: map[string][]string{
		"parent": {"know_raw_0000000000000001", "know_raw_0000000000000002"},
	}}
	m := newTestManager(t, lister)
	ctx := context.Background()

	if err := m.Create(ctx, "parent", Meta{Theme: "AI音楽生成技術調査", DepthLevel: 2}, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(ctx, "child", Meta{Theme: "生成モデルの深掘り", DepthLevel: 4}, "parent"); err != nil {
		t.Fatal(err)
	}
	rec, err := m.Get("child")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.InheritedKnowledge) != 2 {
		t.Errorf("inherited = %v, want both parent items", rec.InheritedKnowledge)
	}
}

func TestCreate_InheritanceCap(t *testing.T) {
	many := make([]string, 25)
	for i := range many {
		many[i] = string(rune('a' + i))
	}
	lister := &mockLister{items: map[string][]string{"parent": many}}
	m := newTestManager(t, lister)
	ctx := context.Background()

	if err := m.Create(ctx, "parent", Meta{Theme: "テーマ", DepthLevel: 2}, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(ctx, "child", Meta{Theme: "テーマ", DepthLevel: 4}, "parent"); err != nil {
		t.Fatal(err)
	}
	rec, err := m.Get("child")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.InheritedKnowledge) != 10 {
		t.Errorf("inherited %d items, want the cap of 10", len(rec.InheritedKnowledge))
	}
}

func TestAvoidedDuplicates(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	// Parent covered the basics via its tags.
	if err := m.Create(ctx, "parent", Meta{
		Theme: "AI音楽生成技術調査", DepthLevel: 2, Tags: []string{"基本概念"},
	}, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(ctx, "child", Meta{
		Theme: "AI音楽生成の応用", LearningType: "深掘り", DepthLevel: 4,
	}, "parent"); err != nil {
		t.Fatal(err)
	}
	rec, err := m.Get("child")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(rec.AvoidedDuplicates, "基本概念") {
		t.Errorf("avoided = %v, want to contain 基本概念", rec.AvoidedDuplicates)
	}
}

func TestRecommendNext(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	if err := m.Create(ctx, "session_a", Meta{
		Theme: "AI音楽生成技術調査", LearningType: "概要", DepthLevel: 2,
	}, ""); err != nil {
		t.Fatal(err)
	}

	recs, err := m.RecommendNext("session_a", 10)
	if err != nil {
		t.Fatalf("RecommendNext: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("expected recommendations")
	}

	var deepDive, exploration bool
	for _, r := range recs {
		if r.Kind == "deep_dive" && r.BasedOn == "AI音楽生成技術調査" {
			deepDive = true
		}
		if r.Kind == "related_exploration" {
			exploration = true
		}
	}
	if !deepDive {
		t.Error("expected a deep_dive recommendation based on the theme")
	}
	// Theme contains both 音楽 and AI, so the topic map must fire.
	if !exploration {
		t.Error("expected related_exploration from the topic map")
	}
	// Ranking is by estimated value descending.
	for i := 1; i < len(recs); i++ {
		if recs[i].EstimatedValue > recs[i-1].EstimatedValue {
			t.Errorf("recommendations not sorted: %v before %v", recs[i-1], recs[i])
		}
	}
}

func TestRecommendNext_PracticalApplicationForDeepDive(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	if err := m.Create(ctx, "parent", Meta{Theme: "テーマ", DepthLevel: 3}, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(ctx, "dive", Meta{Theme: "テーマの深掘り", DepthLevel: 5}, "parent"); err != nil {
		t.Fatal(err)
	}

	recs, err := m.RecommendNext("dive", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Kind != "practical_application" {
		t.Errorf("top recommendation = %+v, want practical_application (value 0.9)", recs)
	}
}

func TestLineageView(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	if err := m.Create(ctx, "root", Meta{Theme: "テーマ", DepthLevel: 2}, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(ctx, "child1", Meta{Theme: "テーマ", DepthLevel: 4}, "root"); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(ctx, "child2", Meta{Theme: "テーマ", DepthLevel: 4}, "root"); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(ctx, "grandchild", Meta{Theme: "テーマ", DepthLevel: 5}, "child1"); err != nil {
		t.Fatal(err)
	}

	view, err := m.LineageView("root")
	if err != nil {
		t.Fatalf("LineageView: %v", err)
	}
	if len(view.Nodes) != 4 {
		t.Errorf("nodes = %d, want 4", len(view.Nodes))
	}
	if len(view.Edges) != 3 {
		t.Errorf("edges = %d, want 3", len(view.Edges))
	}
	if view.MaxDepth != 3 {
		t.Errorf("max depth = %d, want 3", view.MaxDepth)
	}
	if view.Total != 4 {
		t.Errorf("total = %d, want 4", view.Total)
	}
}

func TestPersistence_SurvivesReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "relationships")
	ctx := context.Background()

	m, err := NewManager(dir, Policy{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Create(ctx, "root", Meta{Theme: "AI音楽生成技術調査", DepthLevel: 2}, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(ctx, "child", Meta{Theme: "深掘り調査", DepthLevel: 4}, "root"); err != nil {
		t.Fatal(err)
	}

	m2, err := NewManager(dir, Policy{}, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	rec, err := m2.Get("child")
	if err != nil {
		t.Fatalf("record lost across reload: %v", err)
	}
	if rec.Type != TypeDeepDive {
		t.Errorf("type = %q after reload, want deep_dive", rec.Type)
	}
	if _, err := m2.LineageView("root"); err != nil {
		t.Errorf("lineage lost across reload: %v", err)
	}
}

// End-to-end shape of the core scenario: an overview session with stored
// knowledge, then a deeper child session.
func TestScenario_OverviewThenDeepDive(t *testing.T) {
	lister := &mockLister{items: map[string][]string{
		"session_a": {"know_raw_aaaaaaaaaaaaaaaa", "know_raw_bbbbbbbbbbbbbbbb"},
	}}
	m := newTestManager(t, lister)
	ctx := context.Background()

	if err := m.Create(ctx, "session_a", Meta{
		Theme: "AI音楽生成技術調査", LearningType: "概要", DepthLevel: 2,
	}, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(ctx, "session_b", Meta{
		Theme: "AI音楽生成モデルの深掘り", LearningType: "深掘り", DepthLevel: 4,
	}, "session_a"); err != nil {
		t.Fatal(err)
	}

	b, err := m.Get("session_b")
	if err != nil {
		t.Fatal(err)
	}
	if b.Type != TypeDeepDive {
		t.Errorf("child type = %q, want deep_dive (depth 4 > baseline 3)", b.Type)
	}
	if len(b.InheritedKnowledge) != 2 {
		t.Errorf("child must inherit parent knowledge, got %v", b.InheritedKnowledge)
	}

	recs, err := m.RecommendNext("session_a", 5)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, r := range recs {
		if r.Kind == "deep_dive" && r.BasedOn == "AI音楽生成技術調査" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a deep_dive recommendation referencing the session theme, got %+v", recs)
	}
}
