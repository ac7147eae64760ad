package ingest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/seekerhq/seeker/pkg/jsonx"
	"github.com/seekerhq/seeker/pkg/models"
)

// rawExtraction mirrors the JSON shape the extraction prompt requests.
// Snippets stay raw so one malformed snippet drops alone instead of
// failing the whole response.
type rawExtraction struct {
	Snippets        []json.RawMessage `json:"snippets"`
	Entities        []string          `json:"entities"`
	FollowupQueries []string          `json:"followup_queries"`
	Novelty         float64           `json:"novelty"`
}

type rawSnippet struct {
	Excerpt       string   `json:"excerpt"`
	PainStatement string   `json:"pain_statement"`
	SignalType    string   `json:"signal_type"`
	Intensity     float64  `json:"intensity"`
	Confidence    float64  `json:"confidence"`
	Entities      []string `json:"entities"`
}

// parseExtraction decodes and validates an extraction response.
// Individual snippets that fail to parse or validate are dropped and
// counted; a response that is not JSON at all is an error.
func parseExtraction(content string, doc *models.Document, cfg ExtractConfig) (*ExtractionResult, error) {
	var raw rawExtraction
	if err := jsonx.DecodeLoose(content, &raw); err != nil {
		return nil, err
	}

	result := &ExtractionResult{
		Entities:        raw.Entities,
		FollowupQueries: raw.FollowupQueries,
		Novelty:         clamp01(raw.Novelty),
	}
	if len(result.FollowupQueries) > MaxFollowupQueries {
		result.FollowupQueries = result.FollowupQueries[:MaxFollowupQueries]
	}

	seen := map[string]bool{}
	now := time.Now().UTC()
	for _, cell := range raw.Snippets {
		var rs rawSnippet
		if err := json.Unmarshal(cell, &rs); err != nil {
			result.Dropped++
			continue
		}
		sn := buildSnippet(rs, doc, cfg, result.Novelty, now)
		if sn == nil {
			result.Dropped++
			continue
		}
		key := strings.ToLower(strings.TrimSpace(sn.PainStatement))
		if seen[key] {
			result.Dropped++
			continue
		}
		seen[key] = true
		result.Snippets = append(result.Snippets, sn)
	}
	return result, nil
}

// buildSnippet clamps and validates one raw snippet, or returns nil to
// drop it.
func buildSnippet(rs rawSnippet, doc *models.Document, cfg ExtractConfig, novelty float64, now time.Time) *models.Snippet {
	if len(rs.Excerpt) < cfg.MinExcerptLen || len(rs.PainStatement) < cfg.MinStatementLen {
		return nil
	}
	confidence := clamp01(rs.Confidence)
	if confidence < cfg.MinConfidence {
		return nil
	}
	intensity := int(rs.Intensity)
	if intensity < 1 {
		intensity = 1
	}
	if intensity > 5 {
		intensity = 5
	}
	quality := 0.4*(float64(intensity-1)/4.0) + 0.4*confidence + 0.2*novelty
	return &models.Snippet{
		SnippetID:      uuid.NewString(),
		DocID:          doc.DocID,
		Excerpt:        rs.Excerpt,
		PainStatement:  rs.PainStatement,
		SignalType:     models.CoerceSignalType(rs.SignalType),
		Intensity:      intensity,
		Confidence:     confidence,
		QualityScore:   clamp01(quality),
		Entities:       rs.Entities,
		ExtractorModel: cfg.Model,
		PromptVersion:  cfg.PromptVersion,
		ExtractedAt:    now,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
