package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/setsuna-project/setsuna/pkg/knowledge"
)

// ExportSnapshot implements [knowledge.Store]. It writes pretty-printed
// UTF-8 JSON files (items.json, entities.json, relationships.json,
// categories.json) into dir, creating it if needed. The snapshot is taken
// under the read lock so it is internally consistent; the database stays
// the source of truth.
func (s *Store) ExportSnapshot(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("knowledge sqlite: export: create %q: %w", dir, err)
	}

	s.mu.RLock()
	items := make([]knowledge.Item, 0, len(s.items))
	for _, it := range s.items {
		items = append(items, *it)
	}
	entities := make([]knowledge.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, *e)
	}
	relations := make([]knowledge.Relation, 0, len(s.relations))
	for _, r := range s.relations {
		relations = append(relations, *r)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	sort.Slice(relations, func(i, j int) bool { return relations[i].ID < relations[j].ID })

	// category -> item ids, the index the report tools read.
	categories := make(map[string][]string)
	for _, it := range items {
		for _, c := range it.Categories {
			categories[c] = append(categories[c], it.ID)
		}
	}

	files := map[string]any{
		"items.json":         items,
		"entities.json":      entities,
		"relationships.json": relations,
		"categories.json":    categories,
	}
	for name, v := range files {
		if err := writeJSONFile(filepath.Join(dir, name), v); err != nil {
			return err
		}
	}
	return nil
}

// writeJSONFile writes v as pretty-printed JSON, replacing path atomically
// via a rename from a temp file in the same directory.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("knowledge sqlite: export marshal %q: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("knowledge sqlite: export write %q: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("knowledge sqlite: export rename %q: %w", path, err)
	}
	return nil
}
