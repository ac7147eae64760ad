package config

import "fmt"

// validate checks the merged configuration, failing fast on the first
// problem. Providers validate first so cross-references resolve.
func validate(cfg *Config) error {
	if err := validateProviders(cfg); err != nil {
		return err
	}
	if err := validateResearch(&cfg.Research); err != nil {
		return err
	}
	if err := validateIngest(&cfg.Ingest); err != nil {
		return err
	}
	if cfg.Storage.DataDir == "" {
		return NewConfigError("storage", "data_dir", ErrMissingRequiredField)
	}
	if cfg.Server.ListenAddr == "" {
		return NewConfigError("server", "listen_addr", ErrMissingRequiredField)
	}
	return nil
}

func validateProviders(cfg *Config) error {
	if len(cfg.Providers) == 0 {
		return NewConfigError("llm_providers", "", fmt.Errorf("%w: at least one provider required", ErrMissingRequiredField))
	}
	for name, p := range cfg.Providers {
		if p.Model == "" {
			return NewConfigError("llm_provider", name, fmt.Errorf("%w: model", ErrMissingRequiredField))
		}
		if p.Type != "" && p.Type != "openai" {
			return NewConfigError("llm_provider", name, fmt.Errorf("%w: unsupported type %q", ErrInvalidValue, p.Type))
		}
	}

	def := cfg.LLM.DefaultProvider
	if def == "" {
		// A single configured provider becomes the default.
		if len(cfg.Providers) == 1 {
			for name := range cfg.Providers {
				cfg.LLM.DefaultProvider = name
			}
			return nil
		}
		return NewConfigError("llm", "default_provider", ErrMissingRequiredField)
	}
	if _, ok := cfg.Providers[def]; !ok {
		return NewConfigError("llm", "default_provider", fmt.Errorf("%w: %s", ErrProviderNotFound, def))
	}
	for _, ref := range []struct{ section, name string }{
		{"research", cfg.Research.Provider},
		{"ingest", cfg.Ingest.Provider},
	} {
		if ref.name == "" {
			continue
		}
		if _, ok := cfg.Providers[ref.name]; !ok {
			return NewConfigError(ref.section, "provider", fmt.Errorf("%w: %s", ErrProviderNotFound, ref.name))
		}
	}
	return nil
}

func validateResearch(r *ResearchConfig) error {
	switch r.Strategy {
	case "rounds", "draft":
	default:
		return NewConfigError("research", "strategy", fmt.Errorf("%w: %q (want rounds or draft)", ErrInvalidValue, r.Strategy))
	}
	if r.MinTasks < 1 {
		return NewConfigError("research", "min_tasks", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if r.MaxTasks < r.MinTasks {
		return NewConfigError("research", "max_tasks", fmt.Errorf("%w: below min_tasks", ErrInvalidValue))
	}
	if r.MaxWorkers < 1 {
		return NewConfigError("research", "max_workers", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	switch r.Synthesis.CoverageMode {
	case "warn", "error":
	default:
		return NewConfigError("research", "synthesis.coverage_mode", fmt.Errorf("%w: %q (want warn or error)", ErrInvalidValue, r.Synthesis.CoverageMode))
	}
	if c := r.Curated; c != nil {
		if c.MaxTotal < 1 {
			return NewConfigError("research", "curated.max_total", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
		}
		if c.MaxPerDomain < 1 {
			return NewConfigError("research", "curated.max_per_domain", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
		}
	}
	if r.Draft.MaxRounds < 1 {
		return NewConfigError("research", "draft.max_rounds", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if r.Draft.MaxTasksTotal < 1 {
		return NewConfigError("research", "draft.max_tasks_total", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	return nil
}

func validateIngest(i *IngestConfig) error {
	if i.ParallelWorkers < 1 {
		return NewConfigError("ingest", "parallel_workers", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if i.MaxCostUSD < 0 {
		return NewConfigError("ingest", "max_cost_usd", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if i.SaturationThreshold < 0 || i.SaturationThreshold > 1 {
		return NewConfigError("ingest", "saturation_threshold", fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
	if i.SaturationWindow < 1 {
		return NewConfigError("ingest", "saturation_window", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if i.FailureThreshold < 1 {
		return NewConfigError("ingest", "failure_threshold", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	switch i.DeepComments {
	case "", "auto", "always", "never":
	default:
		return NewConfigError("ingest", "deep_comments", fmt.Errorf("%w: must be auto, always, or never", ErrInvalidValue))
	}
	return nil
}
