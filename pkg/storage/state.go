package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/seekerhq/seeker/pkg/models"
)

// StateFile is the session snapshot file name.
const StateFile = "state.json"

// Retention bounds applied to session snapshots before writing.
const (
	KnowledgeRetention = 50
	NoveltyRetention   = 20
)

// WriteJSONAtomic writes v as JSON to path via a sibling tempfile and
// a rename, so readers never observe a partial file.
func WriteJSONAtomic(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create tempfile in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// ReadJSON reads a JSON file into v.
func ReadJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// SaveState atomically persists a session snapshot with bounded
// retention of the knowledge window and novelty history.
func SaveState(dir string, state *models.SessionState) error {
	if len(state.Knowledge) > KnowledgeRetention {
		state.Knowledge = state.Knowledge[len(state.Knowledge)-KnowledgeRetention:]
	}
	if len(state.NoveltyHistory) > NoveltyRetention {
		state.NoveltyHistory = state.NoveltyHistory[len(state.NoveltyHistory)-NoveltyRetention:]
	}
	state.UpdatedAt = time.Now().UTC()
	return WriteJSONAtomic(filepath.Join(dir, StateFile), state)
}

// LoadState reads a session snapshot from dir.
func LoadState(dir string) (*models.SessionState, error) {
	var state models.SessionState
	if err := ReadJSON(filepath.Join(dir, StateFile), &state); err != nil {
		return nil, err
	}
	return &state, nil
}
