// Package models holds the shared value types persisted and passed between
// the ingestion scheduler, extraction pipeline, and storage layers.
package models

import "time"

// Document is a single fetched piece of content from a source.
// Immutable after the source's fetch persists it.
type Document struct {
	DocID        string         `json:"doc_id"`
	Source       string         `json:"source"`
	SourceEntity string         `json:"source_entity,omitempty"`
	URL          string         `json:"url"`
	Permalink    string         `json:"permalink,omitempty"`
	RetrievedAt  time.Time      `json:"retrieved_at"`
	PublishedAt  *time.Time     `json:"published_at,omitempty"`
	Title        string         `json:"title"`
	RawText      string         `json:"raw_text"`
	Author       string         `json:"author,omitempty"`
	Score        *int           `json:"score,omitempty"`
	CommentCount *int           `json:"comment_count,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// SignalType labels the kind of pain a snippet expresses.
type SignalType string

const (
	SignalComplaint   SignalType = "complaint"
	SignalWish        SignalType = "wish"
	SignalWorkaround  SignalType = "workaround"
	SignalSwitch      SignalType = "switch"
	SignalBug         SignalType = "bug"
	SignalPricing     SignalType = "pricing"
	SignalSupport     SignalType = "support"
	SignalIntegration SignalType = "integration"
	SignalWorkflow    SignalType = "workflow"
)

var signalTypes = map[SignalType]bool{
	SignalComplaint:   true,
	SignalWish:        true,
	SignalWorkaround:  true,
	SignalSwitch:      true,
	SignalBug:         true,
	SignalPricing:     true,
	SignalSupport:     true,
	SignalIntegration: true,
	SignalWorkflow:    true,
}

// CoerceSignalType maps unknown labels to SignalComplaint.
func CoerceSignalType(s string) SignalType {
	st := SignalType(s)
	if signalTypes[st] {
		return st
	}
	return SignalComplaint
}

// Snippet is one pain/opportunity observation extracted from a Document.
//
// Invariants: Intensity in [1,5], Confidence and QualityScore in [0,1],
// SignalType from the closed set (coerced to complaint otherwise).
type Snippet struct {
	SnippetID     string     `json:"snippet_id"`
	DocID         string     `json:"doc_id"`
	Excerpt       string     `json:"excerpt"`
	PainStatement string     `json:"pain_statement"`
	SignalType    SignalType `json:"signal_type"`
	Intensity     int        `json:"intensity"`
	Confidence    float64    `json:"confidence"`
	QualityScore  float64    `json:"quality_score"`
	Entities      []string   `json:"entities,omitempty"`
	ExtractorModel string    `json:"extractor_model"`
	PromptVersion  string    `json:"prompt_version"`
	ExtractedAt    time.Time `json:"extracted_at"`
}
