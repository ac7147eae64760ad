package config

import "time"

// FileConfig is the complete seeker.yaml file structure. Zero values
// fall back to built-in defaults at load time.
type FileConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	LLM      LLMConfig      `yaml:"llm"`
	Tools    ToolsConfig    `yaml:"tools"`
	Research ResearchConfig `yaml:"research"`
	Ingest   IngestConfig   `yaml:"ingest"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StorageConfig holds on-disk layout settings.
type StorageConfig struct {
	// DataDir is the root of all session directories.
	DataDir string `yaml:"data_dir"`

	// RetainStateSnapshots bounds how many timestamped state.json
	// snapshots a session keeps.
	RetainStateSnapshots int `yaml:"retain_state_snapshots"`

	// SessionRetentionDays is how many days terminal sessions are kept
	// before the cleanup loop removes them. 0 disables cleanup.
	SessionRetentionDays int `yaml:"session_retention_days"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// LLMConfig selects providers from llm-providers.yaml.
type LLMConfig struct {
	// DefaultProvider names the provider used when a run does not
	// select one explicitly.
	DefaultProvider string `yaml:"default_provider"`
}

// LLMProviderConfig is one entry in llm-providers.yaml.
type LLMProviderConfig struct {
	// Type of the provider API. Only "openai" (OpenAI-compatible chat
	// completions) is supported.
	Type string `yaml:"type"`

	// Model name sent on every request (required).
	Model string `yaml:"model"`

	// APIKeyEnv is the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// BaseURL overrides the provider endpoint for compatible servers.
	BaseURL string `yaml:"base_url,omitempty"`

	// MaxTokens caps completion length for this provider.
	MaxTokens int `yaml:"max_tokens,omitempty"`
}

// ToolsConfig configures the built-in web tools.
type ToolsConfig struct {
	Tavily TavilyConfig `yaml:"tavily"`
}

// TavilyConfig configures the web search/extract backend.
type TavilyConfig struct {
	APIKeyEnv         string        `yaml:"api_key_env"`
	BaseURL           string        `yaml:"base_url,omitempty"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MinInterval       time.Duration `yaml:"min_interval"`
}

// ResearchConfig tunes the deep-research orchestrator.
type ResearchConfig struct {
	// Strategy selects the run shape: "rounds" (plan, fan-out, optional
	// gap/verify rounds) or "draft" (draft-centric loop).
	Strategy string `yaml:"strategy"`

	Provider string `yaml:"provider,omitempty"` // overrides llm.default_provider

	MinTasks   int  `yaml:"min_tasks"`
	MaxTasks   int  `yaml:"max_tasks"`
	MaxWorkers int  `yaml:"max_workers"`
	BestEffort bool `yaml:"best_effort"`

	Strict            bool `yaml:"strict"`
	RequireCitations  bool `yaml:"require_citations"`
	MinTotalCitations int  `yaml:"min_total_citations"`
	MinTotalDomains   int  `yaml:"min_total_domains"`

	EnableRound2   bool `yaml:"enable_round2"`
	Round2MaxTasks int  `yaml:"round2_max_tasks"`
	VerifyMaxTasks int  `yaml:"verify_max_tasks"`

	EnableWorkerContinuation bool `yaml:"enable_worker_continuation"`
	EnableDeepRead           bool `yaml:"enable_deep_read"`

	Timeout            time.Duration `yaml:"timeout"`
	MaxWebSearchCalls  int           `yaml:"max_web_search_calls"`
	MaxWebExtractCalls int           `yaml:"max_web_extract_calls"`
	ExtractMaxChars    int           `yaml:"extract_max_chars"`

	Curated   *CuratedConfig  `yaml:"curated,omitempty"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Draft     DraftConfig     `yaml:"draft"`
}

// CuratedConfig bounds curated-source selection for narrative runs.
// Absent means synthesis sees the full citation union.
type CuratedConfig struct {
	MinPerTask   int `yaml:"min_per_task"`
	MaxTotal     int `yaml:"max_total"`
	MaxPerDomain int `yaml:"max_per_domain"`
}

// SynthesisConfig tunes report synthesis.
type SynthesisConfig struct {
	MaxTokens            int    `yaml:"max_tokens"`
	CoverageMode         string `yaml:"coverage_mode"` // warn | error
	MinTotalCitations    int    `yaml:"min_total_citations"`
	MinTotalDomains      int    `yaml:"min_total_domains"`
	PerFindingCitations  int    `yaml:"per_finding_citations"`
	MultiPass            bool   `yaml:"multi_pass"`
	RequireQuotePerClaim bool   `yaml:"require_quote_per_claim"`
	ReportFindingsTarget int    `yaml:"report_findings_target"`
}

// DraftConfig tunes the draft-centric strategy.
type DraftConfig struct {
	MaxRounds int `yaml:"max_rounds"`
	// MaxTasksTotal bounds planned tasks across all rounds.
	MaxTasksTotal int `yaml:"max_tasks_total"`
	// SaturationThreshold is the new-citation floor per round. Distinct
	// from ingest.saturation_threshold, which is a novelty average.
	SaturationThreshold int `yaml:"saturation_threshold"`
	PlanMaxTasks        int `yaml:"plan_max_tasks"`
}

// IngestConfig tunes the ingestion scheduler.
type IngestConfig struct {
	Provider string `yaml:"provider,omitempty"` // overrides llm.default_provider

	ParallelWorkers int     `yaml:"parallel_workers"`
	MaxCostUSD      float64 `yaml:"max_cost_usd"`
	MaxDocuments    int     `yaml:"max_documents"`

	SaturationWindow    int     `yaml:"saturation_window"`
	SaturationThreshold float64 `yaml:"saturation_threshold"`
	MinEntities         int     `yaml:"min_entities"`
	SignalDiversity     int     `yaml:"signal_diversity"`

	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`

	// DeepComments is "auto", "always", or "never"; empty means auto.
	DeepComments string `yaml:"deep_comments,omitempty"`

	// AssessmentModel is the model used for the one-shot complexity
	// assessment. Empty skips assessment and assumes medium.
	AssessmentModel string  `yaml:"assessment_model,omitempty"`
	CostPer1KTokens float64 `yaml:"cost_per_1k_tokens"`
}

// Config is the validated, ready-to-use configuration.
type Config struct {
	configDir string

	Server    ServerConfig
	Storage   StorageConfig
	LLM       LLMConfig
	Tools     ToolsConfig
	Research  ResearchConfig
	Ingest    IngestConfig
	Providers map[string]LLMProviderConfig
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Provider returns the named provider, or the default when name is
// empty.
func (c *Config) Provider(name string) (LLMProviderConfig, error) {
	if name == "" {
		name = c.LLM.DefaultProvider
	}
	p, ok := c.Providers[name]
	if !ok {
		return LLMProviderConfig{}, NewConfigError("llm_provider", name, ErrProviderNotFound)
	}
	return p, nil
}
