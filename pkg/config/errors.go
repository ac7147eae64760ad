// Package config loads, merges, and validates the seeker configuration:
// seeker.yaml plus llm-providers.yaml from a config directory, with
// {{.VAR}} environment expansion and built-in defaults underneath.
//
// All validation happens at load time. A *Config returned by Initialize
// never produces configuration errors during a run.
package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates a configuration file was not found.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrProviderNotFound indicates an LLM provider is not configured.
	ErrProviderNotFound = errors.New("llm provider not found")

	// ErrMissingRequiredField indicates a required field is missing.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrInvalidValue indicates a field has an invalid value.
	ErrInvalidValue = errors.New("invalid field value")
)

// ConfigError reports one invalid configuration value with its location.
type ConfigError struct {
	Section string // config section (server, storage, research, ingest, llm_provider)
	Field   string // field name, optional
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field '%s': %v", e.Section, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Section, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a ConfigError for one section and field.
func NewConfigError(section, field string, err error) *ConfigError {
	return &ConfigError{Section: section, Field: field, Err: err}
}

// LoadError wraps a configuration loading failure with file context.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError creates a LoadError for one file.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}
