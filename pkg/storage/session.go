package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DBFile is the session database file name.
const DBFile = "session.db"

// Session bundles one session directory's persistence handles:
//
//	<data_dir>/<session_id>/
//	  state.json
//	  session.db
//	  raw.jsonl
//	  snippets.jsonl
//	  events.jsonl
type Session struct {
	ID      string
	Dir     string
	Store   *Store
	Streams *Streams
}

// OpenSession opens (creating if needed) a session directory and its
// database.
func OpenSession(dataDir, sessionID string) (*Session, error) {
	dir := filepath.Join(dataDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session dir %s: %w", dir, err)
	}
	store, err := OpenStore(filepath.Join(dir, DBFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return &Session{
		ID:      sessionID,
		Dir:     dir,
		Store:   store,
		Streams: NewStreams(dir),
	}, nil
}

// Close releases the session's database handle.
func (s *Session) Close() error {
	return s.Store.Close()
}

// ListSessions returns the session IDs present under dataDir.
func ListSessions(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read data dir %s: %w", dataDir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
