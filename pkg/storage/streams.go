package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/seekerhq/seeker/pkg/models"
)

// Stream file names inside a session directory.
const (
	RawStreamFile      = "raw.jsonl"
	SnippetsStreamFile = "snippets.jsonl"
	EventsStreamFile   = "events.jsonl"
)

// Streams appends documents, snippets, and events to the session's
// JSONL files. Appends are serialized; each record is one line.
type Streams struct {
	mu  sync.Mutex
	dir string
}

// NewStreams creates a stream writer rooted at dir.
func NewStreams(dir string) *Streams {
	return &Streams{dir: dir}
}

// AppendRaw appends a document to raw.jsonl.
func (s *Streams) AppendRaw(doc *models.Document) error {
	return s.append(RawStreamFile, doc)
}

// AppendSnippet appends a snippet to snippets.jsonl.
func (s *Streams) AppendSnippet(sn *models.Snippet) error {
	return s.append(SnippetsStreamFile, sn)
}

// AppendEvent appends an event to events.jsonl.
func (s *Streams) AppendEvent(ev models.IngestEvent) error {
	return s.append(EventsStreamFile, ev)
}

func (s *Streams) append(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("failed to append to %s: %w", name, err)
	}
	return nil
}
