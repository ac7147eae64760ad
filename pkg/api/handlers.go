package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seekerhq/seeker/pkg/models"
	"github.com/seekerhq/seeker/pkg/storage"
	"github.com/seekerhq/seeker/pkg/version"
)

const defaultPageLimit = 100

// SessionSummary is one row in the session listing. Kind is "ingest"
// for scheduler sessions (state.json) and "research" for research
// sessions (meta.json).
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Subject   string    `json:"subject"` // ingest topic or research query
	UpdatedAt time.Time `json:"updated_at"`
}

// researchMeta mirrors the research session meta.json shape.
type researchMeta struct {
	SessionID string    `json:"session_id"`
	Query     string    `json:"query"`
	Type      string    `json:"type"`
	Rounds    int       `json:"rounds"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Health handles GET /api/health.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version.Full()})
}

// ListSessions handles GET /api/sessions.
func (s *Server) ListSessions(c *gin.Context) {
	ids, err := storage.ListSessions(s.dataDir)
	if err != nil {
		s.log.Error("failed to list sessions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	summaries := make([]SessionSummary, 0, len(ids))
	for _, id := range ids {
		if sum, ok := s.summarize(id); ok {
			summaries = append(summaries, sum)
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

func (s *Server) summarize(id string) (SessionSummary, bool) {
	dir := filepath.Join(s.dataDir, id)

	var meta researchMeta
	if err := storage.ReadJSON(filepath.Join(dir, "meta.json"), &meta); err == nil {
		return SessionSummary{
			SessionID: id,
			Kind:      "research",
			Status:    meta.Status,
			Subject:   meta.Query,
			UpdatedAt: meta.UpdatedAt,
		}, true
	}

	state, err := storage.LoadState(dir)
	if err != nil {
		return SessionSummary{}, false
	}
	return SessionSummary{
		SessionID: id,
		Kind:      "ingest",
		Status:    string(state.Status),
		Subject:   state.Topic,
		UpdatedAt: state.UpdatedAt,
	}, true
}

// GetSession handles GET /api/sessions/:id. Research sessions return
// their meta; ingest sessions return the full state snapshot.
func (s *Server) GetSession(c *gin.Context) {
	id := c.Param("id")
	dir := filepath.Join(s.dataDir, id)

	var meta researchMeta
	if err := storage.ReadJSON(filepath.Join(dir, "meta.json"), &meta); err == nil {
		c.JSON(http.StatusOK, gin.H{"kind": "research", "session": meta})
		return
	}

	state, err := storage.LoadState(dir)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": "ingest", "session": state})
}

// ListDocuments handles GET /api/sessions/:id/documents?limit=N.
func (s *Server) ListDocuments(c *gin.Context) {
	store, ok := s.openStore(c)
	if !ok {
		return
	}
	defer store.Close()

	limit := queryLimit(c)
	docs := make([]*models.Document, 0, limit)
	err := store.IterDocuments(c.Request.Context(), func(d *models.Document) bool {
		docs = append(docs, d)
		return len(docs) < limit
	})
	if err != nil {
		s.log.Error("failed to read documents", "session_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read documents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// ListSnippets handles GET /api/sessions/:id/snippets?limit=N&entity=E.
func (s *Server) ListSnippets(c *gin.Context) {
	store, ok := s.openStore(c)
	if !ok {
		return
	}
	defer store.Close()

	limit := queryLimit(c)
	entity := c.Query("entity")
	snippets := make([]*models.Snippet, 0, limit)
	err := store.IterSnippets(c.Request.Context(), func(sn *models.Snippet) bool {
		if entity != "" && !hasEntity(sn, entity) {
			return true
		}
		snippets = append(snippets, sn)
		return len(snippets) < limit
	})
	if err != nil {
		s.log.Error("failed to read snippets", "session_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read snippets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snippets": snippets})
}

func hasEntity(sn *models.Snippet, entity string) bool {
	for _, e := range sn.Entities {
		if e == entity {
			return true
		}
	}
	return false
}

// ListEvents handles GET /api/sessions/:id/events?limit=N, returning
// the tail of events.jsonl.
func (s *Server) ListEvents(c *gin.Context) {
	id := c.Param("id")
	path := filepath.Join(s.dataDir, id, "events.jsonl")

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, gin.H{"events": []json.RawMessage{}})
			return
		}
		s.log.Error("failed to open events stream", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read events"})
		return
	}
	defer f.Close()

	limit := queryLimit(c)
	var events []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		events = append(events, json.RawMessage(append([]byte(nil), line...)))
		if len(events) > limit {
			events = events[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Error("failed to scan events stream", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// GetReport handles GET /api/sessions/:id/report, returning the
// rendered research report as Markdown.
func (s *Server) GetReport(c *gin.Context) {
	id := c.Param("id")
	path := filepath.Join(s.dataDir, id, "research", "report.md")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		s.log.Error("failed to read report", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read report"})
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", data)
}

// openStore opens the session database read path, replying 404 when the
// session does not exist.
func (s *Server) openStore(c *gin.Context) (*storage.Store, bool) {
	id := c.Param("id")
	path := filepath.Join(s.dataDir, id, storage.DBFile)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	store, err := storage.OpenStore(path)
	if err != nil {
		s.log.Error("failed to open session store", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open session"})
		return nil, false
	}
	return store, true
}

func queryLimit(c *gin.Context) int {
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultPageLimit
}
