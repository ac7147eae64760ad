package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/seekerhq/seeker/pkg/llm"
	"github.com/seekerhq/seeker/pkg/models"
)

// Extraction pipeline bounds.
const (
	// ContentTruncationLimit caps how much raw text is shown to the
	// extractor model.
	ContentTruncationLimit = 6000

	// KnowledgeContextSize is how many recent knowledge items get
	// injected into the extraction prompt.
	KnowledgeContextSize = 10

	// MaxFollowupQueries caps follow-up queries per extraction.
	MaxFollowupQueries = 3
)

// deletedAuthor is the sentinel some sources use for removed accounts.
const deletedAuthor = "[deleted]"

// ExtractConfig tunes the extraction pipeline.
type ExtractConfig struct {
	Model         string
	PromptVersion string
	MaxTokens     int
	MaxRetries    int

	// Content-filter thresholds.
	MinContentLength  int
	MinScore          int
	SkipDeletedAuthor bool

	// Snippet-validation thresholds.
	MinExcerptLen   int
	MinStatementLen int
	MinConfidence   float64
}

// ExtractionResult is the pipeline output for one document.
type ExtractionResult struct {
	Snippets        []*models.Snippet
	Entities        []string
	FollowupQueries []string
	Novelty         float64
	Dropped         int
	ErrorKind       string
	Usage           llm.Usage
}

// Extractor runs the content filter and LLM extraction for documents.
type Extractor struct {
	client llm.Client
	cfg    ExtractConfig
}

// NewExtractor creates an extraction pipeline over an LLM client.
func NewExtractor(client llm.Client, cfg ExtractConfig) *Extractor {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	return &Extractor{client: client, cfg: cfg}
}

// Filter applies the content filter. A non-empty reason means the
// document is rejected before any LLM call.
func (e *Extractor) Filter(doc *models.Document) string {
	if len(doc.RawText) < e.cfg.MinContentLength {
		return fmt.Sprintf("content shorter than %d chars", e.cfg.MinContentLength)
	}
	if doc.Score != nil && *doc.Score < e.cfg.MinScore {
		return fmt.Sprintf("score %d below minimum %d", *doc.Score, e.cfg.MinScore)
	}
	if e.cfg.SkipDeletedAuthor && doc.Author == deletedAuthor {
		return "author deleted"
	}
	return ""
}

const extractionPromptV1 = `You extract user pain signals for market research on the topic: %s

Source: %s
Title: %s
URL: %s

Content:
%s
%s
Return a JSON object with this exact shape:
{
  "snippets": [
    {
      "excerpt": "<verbatim quote from the content>",
      "pain_statement": "<one-sentence normalized statement of the pain>",
      "signal_type": "<complaint|wish|workaround|switch|bug|pricing|support|integration|workflow>",
      "intensity": <1-5>,
      "confidence": <0.0-1.0>,
      "entities": ["<product or company names mentioned>"]
    }
  ],
  "entities": ["<all product/company names in the content>"],
  "followup_queries": ["<up to %d search queries worth running next>"],
  "novelty": <0.0-1.0, how much this adds beyond the known findings above>
}

Only include snippets expressing real user pain or unmet needs. Return raw JSON, no markdown.`

func (e *Extractor) buildPrompt(topic string, doc *models.Document, knowledge []string) string {
	text := doc.RawText
	if len(text) > ContentTruncationLimit {
		text = text[:ContentTruncationLimit]
	}
	source := doc.Source
	if doc.SourceEntity != "" {
		source = doc.Source + "/" + doc.SourceEntity
	}
	known := ""
	if len(knowledge) > 0 {
		recent := knowledge
		if len(recent) > KnowledgeContextSize {
			recent = recent[len(recent)-KnowledgeContextSize:]
		}
		known = "\nKnown findings so far:\n- " + strings.Join(recent, "\n- ") + "\n"
	}
	return fmt.Sprintf(extractionPromptV1, topic, source, doc.Title, doc.URL, text, known, MaxFollowupQueries)
}

// Extract runs the full pipeline for one document: filter, prompted
// extraction with bounded retries on malformed JSON, parsing, and
// snippet validation. Filter rejections return a result with an
// ErrorKind of "filtered:<reason>" and no snippets.
func (e *Extractor) Extract(ctx context.Context, topic string, doc *models.Document, knowledge []string) (*ExtractionResult, error) {
	if reason := e.Filter(doc); reason != "" {
		return &ExtractionResult{ErrorKind: "filtered:" + reason}, nil
	}

	prompt := e.buildPrompt(topic, doc, knowledge)
	var usage llm.Usage
	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		resp, err := e.client.Complete(ctx, &llm.Request{
			Model:       e.cfg.Model,
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
			Temperature: 0.0,
			MaxTokens:   e.cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("extraction call failed: %w", err)
		}
		usage.Add(resp.Usage)
		result, err := parseExtraction(resp.Content, doc, e.cfg)
		if err != nil {
			lastErr = err
			continue
		}
		result.Usage = usage
		return result, nil
	}
	return &ExtractionResult{ErrorKind: "json_decode", Usage: usage},
		fmt.Errorf("extraction produced invalid JSON after %d attempts: %w", e.cfg.MaxRetries, lastErr)
}
