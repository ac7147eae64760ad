package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seekerhq/seeker/pkg/events"
	"github.com/seekerhq/seeker/pkg/llm"
	"github.com/seekerhq/seeker/pkg/models"
	"github.com/seekerhq/seeker/pkg/ratelimit"
	"github.com/seekerhq/seeker/pkg/storage"
)

// Score assigned to queries with no recorded yield history.
const unknownQueryScore = 0.2

// SchedulerConfig bounds a session run.
type SchedulerConfig struct {
	ParallelWorkers int
	MaxCostUSD      float64
	MaxDocuments    int

	SaturationWindow          int
	SaturationThreshold       float64
	SaturationMinEntities     int
	SaturationSignalDiversity int

	FailureThreshold int
	RecoveryTimeout  time.Duration

	DeepComments DeepComments

	// AssessmentModel classifies topic complexity; empty skips the
	// assessment and uses medium.
	AssessmentModel string

	// CostPer1KTokens converts extraction token usage into USD for the
	// cost stop condition.
	CostPer1KTokens float64
}

func (c *SchedulerConfig) applyDefaults() {
	if c.ParallelWorkers <= 0 {
		c.ParallelWorkers = 4
	}
	if c.SaturationWindow <= 0 {
		c.SaturationWindow = 5
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 5 * time.Minute
	}
	if c.DeepComments == "" {
		c.DeepComments = DeepCommentsAuto
	}
}

// Scheduler drives one ingestion session from seeding to completion.
// It owns the session state; all mutation happens on the Run goroutine.
type Scheduler struct {
	cfg       SchedulerConfig
	sources   map[string]Source
	client    llm.Client
	extractor *Extractor
	session   *storage.Session
	state     *models.SessionState
	emitter   *events.Emitter
	breakers  map[string]*ratelimit.Breaker
	tracker   *successTracker
	log       *slog.Logger

	// queryIndex maps dispatched task IDs to their normalized query so
	// refs discovered later can feed the yield counters.
	queryIndex map[string]string
}

// NewScheduler wires a scheduler over a session and its sources.
func NewScheduler(cfg SchedulerConfig, srcs []Source, client llm.Client, extractor *Extractor,
	session *storage.Session, state *models.SessionState, emitter *events.Emitter) *Scheduler {
	cfg.applyDefaults()
	byName := make(map[string]Source, len(srcs))
	for _, s := range srcs {
		byName[s.Name()] = s
	}
	return &Scheduler{
		cfg:        cfg,
		sources:    byName,
		client:     client,
		extractor:  extractor,
		session:    session,
		state:      state,
		emitter:    emitter,
		breakers:   map[string]*ratelimit.Breaker{},
		tracker:    newSuccessTracker(),
		log:        slog.With("component", "ingest.scheduler", "session_id", state.SessionID),
		queryIndex: map[string]string{},
	}
}

// Run executes iterations until a stop condition fires. Context
// cancellation pauses the session: state is persisted and Run returns
// nil so the session can resume later.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.prepare(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return s.pause()
		}
		if len(s.state.TaskQueue) == 0 {
			return s.finish("Task queue empty")
		}

		s.appendEvent(models.NewIngestEvent(models.EventIterationStarted,
			map[string]any{"iteration": s.state.Iteration, "queue_len": len(s.state.TaskQueue)}, nil))
		s.emitter.Emit(events.ProgressEvent{
			Stage:   "ingest",
			Current: s.state.Iteration,
			Total:   s.state.MaxIterations,
			Message: fmt.Sprintf("iteration %d, %d tasks queued", s.state.Iteration, len(s.state.TaskQueue)),
		})

		started := time.Now()
		refs := s.runIteration(ctx)
		s.processRefs(ctx, refs)

		s.state.Iteration++
		if err := storage.SaveState(s.session.Dir, s.state); err != nil {
			return fmt.Errorf("failed to persist session state: %w", err)
		}
		s.appendEvent(withDuration(models.NewIngestEvent(models.EventIterationCompleted,
			map[string]any{"iteration": s.state.Iteration - 1},
			map[string]any{"docs": s.state.Stats.DocsFetched, "snippets": s.state.Stats.SnippetsKept}), started))

		if ctx.Err() != nil {
			return s.pause()
		}
		if reason, stop := s.checkStop(); stop {
			return s.finish(reason)
		}
	}
}

// prepare seeds the queue and assesses complexity for fresh sessions.
func (s *Scheduler) prepare(ctx context.Context) error {
	if s.state.Status == models.SessionPaused {
		s.state.Status = models.SessionRunning
	}
	if s.state.Complexity == "" {
		complexity := models.ComplexityMedium
		if s.cfg.AssessmentModel != "" {
			assessed, err := AssessComplexity(ctx, s.client, s.cfg.AssessmentModel, s.state.Topic)
			if err != nil {
				return err
			}
			complexity = assessed
		}
		s.state.Complexity = complexity
		s.log.Info("assessed topic complexity", "complexity", complexity)
	}
	if s.state.MaxIterations == 0 {
		s.state.MaxIterations = IterationCapFor(s.state.Complexity)
	}
	if len(s.state.TaskQueue) == 0 && s.state.Iteration == 0 {
		if err := s.seed(ctx); err != nil {
			return err
		}
	}
	return storage.SaveState(s.session.Dir, s.state)
}

// seed asks every source to adapt the semantic query variants.
func (s *Scheduler) seed(ctx context.Context) error {
	queries := SeedQueries(s.state.Topic, &s.state.Stats)
	for _, src := range s.sourcesSorted() {
		tasks, err := src.AdaptQueries(ctx, queries, s.state.Topic)
		if err != nil {
			return fmt.Errorf("source %s failed to adapt queries: %w", src.Name(), err)
		}
		s.enqueue(tasks)
	}
	s.log.Info("seeded task queue", "tasks", len(s.state.TaskQueue))
	return nil
}

// enqueue adds tasks the session has not dispatched before.
func (s *Scheduler) enqueue(tasks []models.SearchTask) {
	for _, t := range tasks {
		key := taskKey(t)
		if s.state.VisitedTasks[key] {
			continue
		}
		s.state.VisitedTasks[key] = true
		s.state.TaskQueue = append(s.state.TaskQueue, t)
	}
}

type taskOutcome struct {
	task models.SearchTask
	page *models.Page
	err  error
}

// runIteration picks, gates, and dispatches one batch of tasks,
// returning the de-duplicated refs they discovered.
func (s *Scheduler) runIteration(ctx context.Context) []models.DocumentRef {
	picked := s.pickTasks(s.cfg.ParallelWorkers)

	// Gate by per-source breaker; open sources requeue their batch.
	var runnable []models.SearchTask
	for _, t := range picked {
		breaker := s.breakerFor(t.Source)
		if !breaker.CanExecute() {
			s.appendEvent(models.NewIngestEvent(models.EventCircuitOpen,
				map[string]any{"source": t.Source, "task_id": t.TaskID}, nil))
			s.log.Warn("circuit open, requeueing task", "source", t.Source, "task_id", t.TaskID)
			s.state.TaskQueue = append(s.state.TaskQueue, t)
			continue
		}
		runnable = append(runnable, t)
	}
	if len(runnable) == 0 {
		return nil
	}

	workers := s.tracker.EffectiveWorkers(s.cfg.ParallelWorkers)
	if workers < s.cfg.ParallelWorkers {
		s.log.Info("degraded success rate, reducing concurrency",
			"workers", workers, "success_rate", s.tracker.SuccessRate())
	}

	outcomes := make([]taskOutcome, len(runnable))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, task := range runnable {
		i, task := i, task
		s.queryIndex[task.TaskID] = normalizeQuery(task.Query)
		g.Go(func() error {
			s.appendEvent(models.NewIngestEvent(models.EventTaskDispatched,
				map[string]any{"task_id": task.TaskID, "source": task.Source, "query": task.Query}, nil))
			started := time.Now()
			page, err := s.sources[task.Source].Search(gctx, task)
			outcomes[i] = taskOutcome{task: task, page: page, err: err}
			if err != nil {
				s.appendEvent(withDuration(models.NewIngestEvent(models.EventTaskFailed,
					map[string]any{"task_id": task.TaskID, "source": task.Source},
					map[string]any{"error": err.Error(), "error_stage": "search"}), started))
			} else {
				s.appendEvent(withDuration(models.NewIngestEvent(models.EventTaskCompleted,
					map[string]any{"task_id": task.TaskID, "source": task.Source},
					map[string]any{"refs": len(page.Items), "exhausted": page.Exhausted}), started))
			}
			return nil
		})
	}
	_ = g.Wait()

	// Outcomes fold back into breakers, the tracker, and the queue on
	// this goroutine only.
	var refs []models.DocumentRef
	for _, out := range outcomes {
		breaker := s.breakerFor(out.task.Source)
		if out.err != nil {
			breaker.RecordFailure()
			s.tracker.Record(false)
			s.state.Stats.TasksFailed++
			s.log.Warn("task failed", "task_id", out.task.TaskID,
				"source", out.task.Source, "error", out.err)
			continue
		}
		breaker.RecordSuccess()
		s.tracker.Record(true)
		s.state.Stats.TasksCompleted++

		for _, ref := range out.page.Items {
			if s.state.VisitedDocs[ref.RefID] {
				continue
			}
			s.state.VisitedDocs[ref.RefID] = true
			refs = append(refs, ref)
		}
		if out.page.NextCursor != "" {
			cont := out.task
			cont.TaskID = out.task.TaskID + "+"
			cont.Cursor = out.page.NextCursor
			s.enqueue([]models.SearchTask{cont})
		}
	}
	return refs
}

// pickTasks removes up to n tasks from the queue, highest yield score
// first.
func (s *Scheduler) pickTasks(n int) []models.SearchTask {
	queue := s.state.TaskQueue
	sort.SliceStable(queue, func(i, j int) bool {
		return s.scoreTask(queue[i]) > s.scoreTask(queue[j])
	})
	if n > len(queue) {
		n = len(queue)
	}
	picked := queue[:n]
	s.state.TaskQueue = queue[n:]
	return picked
}

// scoreTask scores a task by its query's historical snippet yield.
func (s *Scheduler) scoreTask(t models.SearchTask) float64 {
	y, ok := s.state.Stats.QueryYield[normalizeQuery(t.Query)]
	if !ok || y.Docs == 0 {
		return unknownQueryScore
	}
	return float64(y.Snippets) / float64(y.Docs)
}

// processRefs fetches and extracts newly-discovered refs one by one.
func (s *Scheduler) processRefs(ctx context.Context, refs []models.DocumentRef) {
	for _, ref := range refs {
		if ctx.Err() != nil {
			return
		}
		if s.cfg.MaxDocuments > 0 && s.state.Stats.DocsFetched >= s.cfg.MaxDocuments {
			return
		}
		s.processRef(ctx, ref)
	}
}

func (s *Scheduler) processRef(ctx context.Context, ref models.DocumentRef) {
	src, ok := s.sources[ref.Source]
	if !ok {
		s.log.Warn("ref from unknown source", "ref_id", ref.RefID, "source", ref.Source)
		return
	}

	started := time.Now()
	doc, err := src.Fetch(ctx, ref, s.cfg.DeepComments)
	if err != nil {
		s.appendEvent(withDuration(models.NewIngestEvent(models.EventFetchFailed,
			map[string]any{"ref_id": ref.RefID, "source": ref.Source},
			map[string]any{"error": err.Error(), "error_stage": "fetch"}), started))
		s.log.Warn("fetch failed", "ref_id", ref.RefID, "error", err)
		return
	}
	if err := s.session.Store.SaveDocument(ctx, doc); err != nil {
		s.log.Error("failed to persist document", "doc_id", doc.DocID, "error", err)
		return
	}
	if err := s.session.Streams.AppendRaw(doc); err != nil {
		s.log.Error("failed to append raw document", "doc_id", doc.DocID, "error", err)
	}
	s.state.Stats.DocsFetched++
	s.recordYield(ref, 0, true)
	s.appendEvent(withDuration(models.NewIngestEvent(models.EventDocFetched,
		map[string]any{"ref_id": ref.RefID},
		map[string]any{"doc_id": doc.DocID, "title": doc.Title}), started))
	s.emitter.Emit(events.DocumentEvent{DocID: doc.DocID, Title: doc.Title, Source: doc.Source})

	s.extractDoc(ctx, ref, doc)
}

func (s *Scheduler) extractDoc(ctx context.Context, ref models.DocumentRef, doc *models.Document) {
	started := time.Now()
	result, err := s.extractor.Extract(ctx, s.state.Topic, doc, s.state.Knowledge)
	if err != nil {
		kind := "error"
		if result != nil && result.ErrorKind != "" {
			kind = result.ErrorKind
		}
		if result != nil {
			s.addCost(result.Usage)
		}
		s.recordExtraction(0, 0)
		s.appendEvent(withDuration(models.NewIngestEvent(models.EventExtractionFailed,
			map[string]any{"doc_id": doc.DocID},
			map[string]any{"error": err.Error(), "error_kind": kind}), started))
		s.log.Warn("extraction failed", "doc_id", doc.DocID, "error", err)
		return
	}
	s.addCost(result.Usage)

	if strings.HasPrefix(result.ErrorKind, "filtered:") {
		s.state.Stats.DocsFiltered++
		s.appendEvent(models.NewIngestEvent(models.EventDocFiltered,
			map[string]any{"doc_id": doc.DocID},
			map[string]any{"reason": strings.TrimPrefix(result.ErrorKind, "filtered:")}))
		return
	}

	for _, sn := range result.Snippets {
		if err := s.session.Store.SaveSnippet(ctx, sn); err != nil {
			s.log.Error("failed to persist snippet", "snippet_id", sn.SnippetID, "error", err)
			continue
		}
		if err := s.session.Streams.AppendSnippet(sn); err != nil {
			s.log.Error("failed to append snippet", "snippet_id", sn.SnippetID, "error", err)
		}
		s.state.Knowledge = append(s.state.Knowledge, sn.PainStatement)
		s.state.Stats.BySignalType[string(sn.SignalType)]++
		for _, entity := range sn.Entities {
			s.state.Stats.ByEntity[entity]++
		}
	}
	s.state.Stats.SnippetsKept += len(result.Snippets)
	s.state.Stats.SnippetsDropped += result.Dropped
	s.recordYield(ref, len(result.Snippets), false)
	s.recordExtraction(len(result.Snippets), result.Novelty)

	if len(result.FollowupQueries) > 0 {
		s.enqueueFollowups(ctx, result.FollowupQueries)
	}

	s.appendEvent(withDuration(models.NewIngestEvent(models.EventExtractionDone,
		map[string]any{"doc_id": doc.DocID},
		map[string]any{
			"snippets": len(result.Snippets),
			"dropped":  result.Dropped,
			"novelty":  result.Novelty,
		}), started))
}

// enqueueFollowups adapts extractor-suggested queries through each
// source, same as seeding.
func (s *Scheduler) enqueueFollowups(ctx context.Context, queries []string) {
	for _, src := range s.sourcesSorted() {
		tasks, err := src.AdaptQueries(ctx, queries, s.state.Topic)
		if err != nil {
			s.log.Warn("source failed to adapt follow-up queries",
				"source", src.Name(), "error", err)
			continue
		}
		s.enqueue(tasks)
	}
}

// recordYield updates the per-query yield counters used for scoring.
// docSeen increments the doc side; snippets add to the snippet side.
func (s *Scheduler) recordYield(ref models.DocumentRef, snippets int, docSeen bool) {
	query := s.queryForTask(ref.TaskID)
	if query == "" {
		return
	}
	y := s.state.Stats.QueryYield[query]
	if docSeen {
		y.Docs++
	}
	y.Snippets += snippets
	s.state.Stats.QueryYield[query] = y
}

// queryForTask is best-effort: continuation task IDs append "+" to
// their originating task's ID, so trailing markers strip off.
func (s *Scheduler) queryForTask(taskID string) string {
	if q, ok := s.queryIndex[taskID]; ok {
		return q
	}
	return s.queryIndex[strings.TrimRight(taskID, "+")]
}

// recordExtraction appends to the novelty history and the recent-empty
// window, both bounded by the saturation window.
func (s *Scheduler) recordExtraction(snippets int, novelty float64) {
	s.state.NoveltyHistory = append(s.state.NoveltyHistory, novelty)
	s.state.RecentEmpty = append(s.state.RecentEmpty, snippets == 0)
	if len(s.state.RecentEmpty) > s.cfg.SaturationWindow {
		s.state.RecentEmpty = s.state.RecentEmpty[len(s.state.RecentEmpty)-s.cfg.SaturationWindow:]
	}
}

func (s *Scheduler) addCost(usage llm.Usage) {
	s.state.Stats.TotalCostUSD += float64(usage.TotalTokens) / 1000.0 * s.cfg.CostPer1KTokens
}

// checkStop evaluates the post-iteration stop conditions.
func (s *Scheduler) checkStop() (string, bool) {
	if s.cfg.MaxCostUSD > 0 && s.state.Stats.TotalCostUSD >= s.cfg.MaxCostUSD {
		return "Cost budget exhausted", true
	}
	if s.state.Iteration >= s.state.MaxIterations {
		return "Max iterations reached", true
	}
	if s.cfg.MaxDocuments > 0 && s.state.Stats.DocsFetched >= s.cfg.MaxDocuments {
		return "Max documents reached", true
	}
	if s.saturated() {
		return "Saturation detected", true
	}
	return "", false
}

// saturated detects diminishing returns: a full novelty window where
// either every recent extraction was empty, or average novelty fell
// below the threshold while entity count and signal diversity show the
// topic is already well covered.
func (s *Scheduler) saturated() bool {
	window := s.cfg.SaturationWindow
	if len(s.state.NoveltyHistory) < window {
		return false
	}
	recent := s.state.NoveltyHistory[len(s.state.NoveltyHistory)-window:]

	allEmpty := len(s.state.RecentEmpty) >= window
	for _, empty := range s.state.RecentEmpty {
		if !empty {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		return true
	}

	var sum float64
	for _, n := range recent {
		sum += n
	}
	avg := sum / float64(window)
	return avg < s.cfg.SaturationThreshold &&
		len(s.state.Stats.ByEntity) >= s.cfg.SaturationMinEntities &&
		len(s.state.Stats.BySignalType) >= s.cfg.SaturationSignalDiversity
}

// finish marks the session completed, logs the stop decision, and
// persists the final snapshot.
func (s *Scheduler) finish(reason string) error {
	s.state.Status = models.SessionCompleted
	s.appendEvent(models.NewIngestEvent(models.EventStopDecision,
		map[string]any{"iteration": s.state.Iteration},
		map[string]any{"decision": reason}))
	s.emitter.Emit(events.ProgressEvent{Stage: "done", Current: s.state.Iteration, Message: reason})
	s.log.Info("session completed", "reason", reason,
		"docs", s.state.Stats.DocsFetched, "snippets", s.state.Stats.SnippetsKept)
	return storage.SaveState(s.session.Dir, s.state)
}

// pause persists a resumable snapshot after context cancellation.
func (s *Scheduler) pause() error {
	s.state.Status = models.SessionPaused
	s.log.Info("session paused", "iteration", s.state.Iteration)
	return storage.SaveState(s.session.Dir, s.state)
}

func (s *Scheduler) breakerFor(source string) *ratelimit.Breaker {
	b, ok := s.breakers[source]
	if !ok {
		b = ratelimit.NewBreaker(s.cfg.FailureThreshold, s.cfg.RecoveryTimeout)
		s.breakers[source] = b
	}
	return b
}

func (s *Scheduler) sourcesSorted() []Source {
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Source, 0, len(names))
	for _, name := range names {
		out = append(out, s.sources[name])
	}
	return out
}

// appendEvent writes to events.jsonl; stream failures log but never
// interrupt the iteration.
func (s *Scheduler) appendEvent(ev models.IngestEvent) {
	if err := s.session.Streams.AppendEvent(ev); err != nil {
		s.log.Error("failed to append event", "kind", ev.Kind, "error", err)
	}
}

func withDuration(ev models.IngestEvent, started time.Time) models.IngestEvent {
	ev.Metrics.DurationMS = time.Since(started).Milliseconds()
	if stage, ok := ev.Output["error_stage"].(string); ok {
		ev.Metrics.ErrorStage = stage
	}
	return ev
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

func taskKey(t models.SearchTask) string {
	return t.Source + "|" + string(t.Mode) + "|" + normalizeQuery(t.Query) + "|" + t.SourceEntity + "|" + t.Cursor
}
