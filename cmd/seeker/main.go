// Seeker server and runner — serves the session HTTP API, runs one-shot
// deep-research queries, and runs ingestion sessions.
//
// Usage:
//
//	seeker [flags] serve
//	seeker [flags] research <query>
//	seeker [flags] ingest <topic>
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/seekerhq/seeker/pkg/agent"
	"github.com/seekerhq/seeker/pkg/api"
	"github.com/seekerhq/seeker/pkg/cleanup"
	"github.com/seekerhq/seeker/pkg/config"
	"github.com/seekerhq/seeker/pkg/events"
	"github.com/seekerhq/seeker/pkg/ingest"
	"github.com/seekerhq/seeker/pkg/llm"
	"github.com/seekerhq/seeker/pkg/models"
	"github.com/seekerhq/seeker/pkg/ratelimit"
	"github.com/seekerhq/seeker/pkg/research"
	"github.com/seekerhq/seeker/pkg/storage"
	"github.com/seekerhq/seeker/pkg/tools"
	"github.com/seekerhq/seeker/pkg/version"
)

const promptVersion = "v1"

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	sessionID := flag.String("session", "",
		"Session ID (ingest: resume an existing session; default: new)")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	slog.Info("Starting seeker", "version", version.Full(), "config_dir", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"serve"}
	}

	switch args[0] {
	case "serve":
		err = runServe(ctx, cfg)
	case "research":
		if len(args) < 2 {
			err = fmt.Errorf("usage: seeker research <query>")
		} else {
			err = runResearch(ctx, cfg, args[1], *sessionID)
		}
	case "ingest":
		if len(args) < 2 {
			err = fmt.Errorf("usage: seeker ingest <topic>")
		} else {
			err = runIngest(ctx, cfg, args[1], *sessionID)
		}
	default:
		err = fmt.Errorf("unknown command %q (want serve, research, or ingest)", args[0])
	}
	if err != nil {
		slog.Error("Seeker exited with error", "error", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	sweeper := cleanup.NewService(cfg.Storage.DataDir, cleanup.Config{
		RetentionDays: cfg.Storage.SessionRetentionDays,
		Interval:      cfg.Storage.CleanupInterval,
	})
	sweeper.Start(ctx)
	defer sweeper.Stop()

	slog.Info("Starting seeker API server",
		"addr", cfg.Server.ListenAddr,
		"data_dir", cfg.Storage.DataDir)
	return api.NewServer(cfg.Storage.DataDir).Start(ctx, cfg.Server.ListenAddr)
}

// llmClientFor builds an LLM client for the named provider (empty means
// the configured default).
func llmClientFor(cfg *config.Config, name string) (llm.Client, config.LLMProviderConfig, error) {
	p, err := cfg.Provider(name)
	if err != nil {
		return nil, p, err
	}
	apiKey := os.Getenv(p.APIKeyEnv)
	return llm.NewOpenAIClient(apiKey, p.BaseURL), p, nil
}

// webBackend builds the shared Tavily search/extract client.
func webBackend(cfg *config.Config) *tools.TavilyClient {
	t := cfg.Tools.Tavily
	limiter := ratelimit.NewLimiter(t.RequestsPerMinute, t.MinInterval)
	return tools.NewTavilyClient(os.Getenv(t.APIKeyEnv), t.BaseURL, limiter)
}

// logEmitter logs coarse progress and errors; everything else already
// lands in the session's event stream.
func logEmitter(log *slog.Logger) *events.Emitter {
	return events.NewEmitter(func(ev events.Event) {
		switch e := ev.(type) {
		case events.ProgressEvent:
			log.Info("progress", "stage", e.Stage, "message", e.Message)
		case events.WorkerCompletedEvent:
			log.Info("worker completed", "task_id", e.TaskID, "success", e.Success,
				"citations", e.Citations, "duration_ms", e.DurationMS)
		case events.ErrorEvent:
			log.Warn("run error", "source", e.Source, "message", e.Message)
		}
	})
}

func runResearch(ctx context.Context, cfg *config.Config, query, sessionID string) error {
	log := slog.With("component", "cmd.research")
	client, provider, err := llmClientFor(cfg, cfg.Research.Provider)
	if err != nil {
		return err
	}

	tavily := webBackend(cfg)
	registry := tools.NewRegistry()
	tools.RegisterWebTools(registry, tavily, tavily)

	emitter := logEmitter(log)
	runner := agent.NewRunner(client, registry, emitter, agent.SubAgentOptions{
		Model:              provider.Model,
		MaxTokens:          provider.MaxTokens,
		MaxWebSearchCalls:  cfg.Research.MaxWebSearchCalls,
		MaxWebExtractCalls: cfg.Research.MaxWebExtractCalls,
	})

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	store, err := research.NewSessionStore(cfg.Storage.DataDir, sessionID)
	if err != nil {
		return err
	}
	log.Info("Starting research run", "session_id", sessionID, "query", query)

	rcfg := researchConfig(cfg, provider.Model)
	planner := research.NewPlanner(client, provider.Model)
	synth := research.NewSynthesizer(client, rcfg.Synthesis)
	orch := research.NewOrchestrator(rcfg, planner, synth, runner, emitter, store)

	var outcome *research.Outcome
	if cfg.Research.Strategy == "draft" {
		draft := research.NewDraftOrchestrator(orch, research.DraftConfig{
			MaxRounds:           cfg.Research.Draft.MaxRounds,
			MaxTasksTotal:       cfg.Research.Draft.MaxTasksTotal,
			SaturationThreshold: cfg.Research.Draft.SaturationThreshold,
			PlanMaxTasks:        cfg.Research.Draft.PlanMaxTasks,
		})
		outcome, err = draft.Run(ctx, query)
	} else {
		outcome, err = orch.Run(ctx, query)
	}
	if err != nil {
		return err
	}

	fmt.Println(outcome.Markdown)
	log.Info("Research run complete", "session_id", sessionID, "rounds", outcome.Rounds)
	return nil
}

// researchConfig maps file configuration onto the orchestrator config.
func researchConfig(cfg *config.Config, model string) research.Config {
	r := cfg.Research
	out := research.Config{
		Model:                    model,
		MinTasks:                 r.MinTasks,
		MaxTasks:                 r.MaxTasks,
		BestEffort:               r.BestEffort,
		Strict:                   r.Strict,
		RequireCitations:         r.RequireCitations,
		MinTotalCitations:        r.MinTotalCitations,
		MinTotalDomains:          r.MinTotalDomains,
		EnableRound2:             r.EnableRound2,
		Round2MaxTasks:           r.Round2MaxTasks,
		VerifyMaxTasks:           r.VerifyMaxTasks,
		EnableWorkerContinuation: r.EnableWorkerContinuation,
		EnableDeepRead:           r.EnableDeepRead,
		MaxWorkers:               r.MaxWorkers,
		Timeout:                  r.Timeout,
		MaxWebSearchCalls:        r.MaxWebSearchCalls,
		MaxWebExtractCalls:       r.MaxWebExtractCalls,
		ExtractMaxChars:          r.ExtractMaxChars,
		Synthesis: research.SynthesisConfig{
			Model:                model,
			MaxTokens:            r.Synthesis.MaxTokens,
			CoverageMode:         r.Synthesis.CoverageMode,
			MinTotalCitations:    r.Synthesis.MinTotalCitations,
			MinTotalDomains:      r.Synthesis.MinTotalDomains,
			PerFindingCitations:  r.Synthesis.PerFindingCitations,
			MultiPass:            r.Synthesis.MultiPass,
			RequireQuotePerClaim: r.Synthesis.RequireQuotePerClaim,
			ReportFindingsTarget: r.Synthesis.ReportFindingsTarget,
		},
	}
	if c := r.Curated; c != nil {
		out.Curated = &research.CurateConfig{
			MinPerTask:   c.MinPerTask,
			MaxTotal:     c.MaxTotal,
			MaxPerDomain: c.MaxPerDomain,
		}
	}
	return out
}

func runIngest(ctx context.Context, cfg *config.Config, topic, sessionID string) error {
	log := slog.With("component", "cmd.ingest")
	client, provider, err := llmClientFor(cfg, cfg.Ingest.Provider)
	if err != nil {
		return err
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	session, err := storage.OpenSession(cfg.Storage.DataDir, sessionID)
	if err != nil {
		return err
	}
	defer session.Close()

	// Resume a prior snapshot when one exists, otherwise start fresh.
	state, err := storage.LoadState(session.Dir)
	if err != nil {
		state = models.NewSessionState(sessionID, topic, promptVersion)
	} else {
		log.Info("Resuming ingestion session", "session_id", sessionID,
			"iteration", state.Iteration, "status", state.Status)
	}

	tavily := webBackend(cfg)
	extractor := ingest.NewExtractor(client, ingest.ExtractConfig{
		Model:             provider.Model,
		PromptVersion:     promptVersion,
		MinContentLength:  80,
		SkipDeletedAuthor: true,
		MinExcerptLen:     20,
		MinStatementLen:   10,
		MinConfidence:     0.3,
		MaxRetries:        3,
	})

	i := cfg.Ingest
	assessmentModel := i.AssessmentModel
	if assessmentModel == "" {
		assessmentModel = provider.Model
	}
	scheduler := ingest.NewScheduler(ingest.SchedulerConfig{
		ParallelWorkers:           i.ParallelWorkers,
		MaxCostUSD:                i.MaxCostUSD,
		MaxDocuments:              i.MaxDocuments,
		SaturationWindow:          i.SaturationWindow,
		SaturationThreshold:       i.SaturationThreshold,
		SaturationMinEntities:     i.MinEntities,
		SaturationSignalDiversity: i.SignalDiversity,
		FailureThreshold:          i.FailureThreshold,
		RecoveryTimeout:           i.RecoveryTimeout,
		DeepComments:              ingest.DeepComments(i.DeepComments),
		AssessmentModel:           assessmentModel,
		CostPer1KTokens:           i.CostPer1KTokens,
	}, []ingest.Source{
		ingest.NewWebSource(tavily, tavily, 0),
	}, client, extractor, session, state, logEmitter(log))

	log.Info("Starting ingestion run", "session_id", sessionID, "topic", topic)
	// A SIGINT/SIGTERM cancels ctx; the scheduler pauses the session,
	// persists the snapshot, and Run returns nil.
	if err := scheduler.Run(ctx); err != nil {
		return err
	}
	log.Info("Ingestion run finished", "session_id", sessionID,
		"status", state.Status, "iterations", state.Iteration,
		"docs", state.Stats.DocsFetched, "snippets", state.Stats.SnippetsKept)
	return nil
}
