// Package cleanup enforces session retention on the data directory.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/seekerhq/seeker/pkg/storage"
)

// Config controls the retention sweep.
type Config struct {
	// RetentionDays is how many days terminal sessions are kept.
	// 0 disables the sweep entirely.
	RetentionDays int

	// Interval is how often the sweep runs.
	Interval time.Duration
}

// Service periodically removes terminal sessions older than the
// retention window. Running sessions are never touched. All operations
// are idempotent.
type Service struct {
	dataDir string
	cfg     Config
	log     *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service over dataDir.
func NewService(dataDir string, cfg Config) *Service {
	return &Service{
		dataDir: dataDir,
		cfg:     cfg,
		log:     slog.With("component", "cleanup"),
	}
}

// Start launches the background sweep loop. No-op when retention is
// disabled or the service is already running.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil || s.cfg.RetentionDays <= 0 {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	s.log.Info("cleanup service started",
		"retention_days", s.cfg.RetentionDays, "interval", s.cfg.Interval)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if removed, err := s.Sweep(); err != nil {
			s.log.Warn("retention sweep failed", "error", err)
		} else if removed > 0 {
			s.log.Info("retention sweep removed sessions", "count", removed)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep removes expired terminal sessions once and returns how many
// were deleted.
func (s *Service) Sweep() (int, error) {
	ids, err := storage.ListSessions(s.dataDir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)

	removed := 0
	for _, id := range ids {
		dir := filepath.Join(s.dataDir, id)
		status, updated, ok := sessionInfo(dir)
		if !ok || !terminal(status) || updated.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn("failed to remove expired session", "session_id", id, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// sessionInfo reads a session's status and last-update time from
// either the research meta.json or the ingest state.json.
func sessionInfo(dir string) (string, time.Time, bool) {
	var meta struct {
		Status    string    `json:"status"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := storage.ReadJSON(filepath.Join(dir, "meta.json"), &meta); err == nil {
		return meta.Status, meta.UpdatedAt, true
	}
	state, err := storage.LoadState(dir)
	if err != nil {
		return "", time.Time{}, false
	}
	return string(state.Status), state.UpdatedAt, true
}

func terminal(status string) bool {
	switch status {
	case "completed", "error":
		return true
	}
	return false
}
