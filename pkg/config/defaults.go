package config

import "time"

// DefaultFileConfig returns the built-in defaults that user YAML merges
// over. Every tunable the runtime reads has a workable default here, so
// a minimal seeker.yaml only needs to name a provider.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		Server: ServerConfig{
			ListenAddr: ":8175",
		},
		Storage: StorageConfig{
			DataDir:              "./data",
			RetainStateSnapshots: 5,
			SessionRetentionDays: 365,
			CleanupInterval:      12 * time.Hour,
		},
		Tools: ToolsConfig{
			Tavily: TavilyConfig{
				APIKeyEnv:         "TAVILY_API_KEY",
				RequestsPerMinute: 60,
				MinInterval:       200 * time.Millisecond,
			},
		},
		Research: ResearchConfig{
			Strategy:           "rounds",
			MinTasks:           3,
			MaxTasks:           6,
			MaxWorkers:         3,
			Timeout:            10 * time.Minute,
			MaxWebSearchCalls:  4,
			MaxWebExtractCalls: 3,
			ExtractMaxChars:    12000,
			Round2MaxTasks:     3,
			Synthesis: SynthesisConfig{
				MaxTokens:            4000,
				CoverageMode:         "warn",
				ReportFindingsTarget: 12,
			},
			Draft: DraftConfig{
				MaxRounds:           3,
				MaxTasksTotal:       12,
				SaturationThreshold: 2,
				PlanMaxTasks:        4,
			},
		},
		Ingest: IngestConfig{
			ParallelWorkers:     4,
			MaxCostUSD:          5,
			MaxDocuments:        200,
			SaturationWindow:    5,
			SaturationThreshold: 0.3,
			MinEntities:         5,
			SignalDiversity:     3,
			FailureThreshold:    3,
			RecoveryTimeout:     5 * time.Minute,
			CostPer1KTokens:     0.002,
		},
	}
}
