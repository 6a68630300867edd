package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// sessionDir returns the directory holding per-session JSON files.
func sessionDir(dataDir string) string {
	return filepath.Join(dataDir, "sessions")
}

// writeSessionFile persists a finished session's snapshot. The file is the
// contract consumed by the sessionview CLI and the web report handlers.
func (e *Engine) writeSessionFile(st Status) error {
	path := filepath.Join(sessionDir(e.cfg.DataDir), st.ID+".json")
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("engine: marshal session file: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("engine: write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("engine: rename session file: %w", err)
	}
	return nil
}

// ReadSessionFile loads one persisted session snapshot from dataDir.
func ReadSessionFile(dataDir, sessionID string) (Status, error) {
	path := filepath.Join(sessionDir(dataDir), sessionID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return Status{}, fmt.Errorf("engine: read session file: %w", err)
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return Status{}, fmt.Errorf("engine: decode session file %s: %w", path, err)
	}
	return st, nil
}

// ListSessionFiles returns the ids of all persisted sessions in dataDir,
// sorted ascending (ids embed the start timestamp, so this is oldest first).
func ListSessionFiles(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(sessionDir(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("engine: list session files: %w", err)
	}
	var ids []string
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
