package session

import (
	"fmt"
	"sort"
	"strings"
)

// RecommendNext suggests follow-up sessions for the given session: one deep
// dive per focus area, a related exploration per topic-map hit, and a
// practical-application follow-up when the session itself was a deep dive.
// Suggestions are ranked by their fixed estimated value; limit <= 0 means
// the default of 3.
func (m *Manager) RecommendNext(sessionID string, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = defaultRecommendations
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sessionID]
	if !ok {
		return nil, fmt.Errorf("session: recommend %q: %w", sessionID, ErrUnknownSession)
	}

	var out []Recommendation
	for _, area := range rec.FocusAreas {
		out = append(out, Recommendation{
			Kind:           "deep_dive",
			Theme:          area + "の深掘り調査",
			BasedOn:        area,
			EstimatedValue: deepDiveValue,
		})
	}
	for _, area := range rec.FocusAreas {
		for key, themes := range m.policy.TopicMap {
			if !strings.Contains(area, key) {
				continue
			}
			for _, theme := range themes {
				out = append(out, Recommendation{
					Kind:           "related_exploration",
					Theme:          theme,
					BasedOn:        area,
					EstimatedValue: explorationValue,
				})
			}
		}
	}
	if rec.Type == TypeDeepDive {
		out = append(out, Recommendation{
			Kind:           "practical_application",
			Theme:          firstOr(rec.FocusAreas, sessionID) + "の実践応用",
			BasedOn:        sessionID,
			EstimatedValue: practicalValue,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EstimatedValue > out[j].EstimatedValue
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LineageView flattens the lineage tree rooted at rootSession into node and
// edge lists for external rendering. The tree is append-only, so the walk
// needs no cycle protection.
func (m *Manager) LineageView(rootSession string) (LineageView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lin, ok := m.lineages[rootSession]
	if !ok {
		return LineageView{}, fmt.Errorf("session: lineage %q: %w", rootSession, ErrUnknownSession)
	}

	view := LineageView{
		RootSession: rootSession,
		Total:       lin.TotalSessions,
	}
	var walk func(node *LineageNode, depth int)
	walk = func(node *LineageNode, depth int) {
		if node == nil {
			return
		}
		view.Nodes = append(view.Nodes, LineageVertex{SessionID: node.SessionID, Depth: depth})
		if depth > view.MaxDepth {
			view.MaxDepth = depth
		}
		for _, child := range node.Children {
			view.Edges = append(view.Edges, LineageEdge{Parent: node.SessionID, Child: child.SessionID})
			walk(child, depth+1)
		}
	}
	walk(lin.Tree, 1)
	return view, nil
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
