package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerhq/seeker/pkg/models"
)

func parseCfg() ExtractConfig {
	return ExtractConfig{
		Model:           "test-model",
		PromptVersion:   "v1",
		MinExcerptLen:   5,
		MinStatementLen: 5,
		MinConfidence:   0.3,
	}
}

func testDoc() *models.Document {
	return &models.Document{DocID: "doc-1", Source: "web", Title: "t", URL: "https://example.com"}
}

func TestParseExtraction_ValidSnippet(t *testing.T) {
	content := `{
		"snippets": [{
			"excerpt": "the export constantly times out",
			"pain_statement": "exports time out on large projects",
			"signal_type": "bug",
			"intensity": 4,
			"confidence": 0.9,
			"entities": ["Acme"]
		}],
		"entities": ["Acme"],
		"followup_queries": ["acme export timeout"],
		"novelty": 0.5
	}`
	result, err := parseExtraction(content, testDoc(), parseCfg())
	require.NoError(t, err)
	require.Len(t, result.Snippets, 1)

	sn := result.Snippets[0]
	assert.Equal(t, "doc-1", sn.DocID)
	assert.Equal(t, models.SignalBug, sn.SignalType)
	assert.Equal(t, 4, sn.Intensity)
	assert.Equal(t, 0.9, sn.Confidence)
	// 0.4*(3/4) + 0.4*0.9 + 0.2*0.5
	assert.InDelta(t, 0.76, sn.QualityScore, 1e-9)
	assert.Equal(t, []string{"Acme"}, sn.Entities)
	assert.Equal(t, "test-model", sn.ExtractorModel)
	assert.Equal(t, "v1", sn.PromptVersion)
	assert.NotEmpty(t, sn.SnippetID)
}

func TestParseExtraction_ClampsAndCoerces(t *testing.T) {
	content := `{
		"snippets": [{
			"excerpt": "really hate this thing",
			"pain_statement": "users dislike the onboarding",
			"signal_type": "rant",
			"intensity": 9,
			"confidence": 1.7,
			"entities": []
		}],
		"novelty": 1.4
	}`
	result, err := parseExtraction(content, testDoc(), parseCfg())
	require.NoError(t, err)
	require.Len(t, result.Snippets, 1)

	sn := result.Snippets[0]
	assert.Equal(t, models.SignalComplaint, sn.SignalType)
	assert.Equal(t, 5, sn.Intensity)
	assert.Equal(t, 1.0, sn.Confidence)
	assert.Equal(t, 1.0, result.Novelty)
	assert.LessOrEqual(t, sn.QualityScore, 1.0)
}

func TestParseExtraction_DropsInvalidIndividually(t *testing.T) {
	content := `{
		"snippets": [
			{"excerpt": "good long excerpt here", "pain_statement": "valid statement one", "signal_type": "wish", "intensity": 3, "confidence": 0.8},
			{"excerpt": "x", "pain_statement": "too short excerpt", "signal_type": "wish", "intensity": 3, "confidence": 0.8},
			{"excerpt": "confidence below floor", "pain_statement": "low confidence item", "signal_type": "wish", "intensity": 3, "confidence": 0.1},
			"not an object"
		],
		"novelty": 0.3
	}`
	result, err := parseExtraction(content, testDoc(), parseCfg())
	require.NoError(t, err)
	assert.Len(t, result.Snippets, 1)
	assert.Equal(t, 3, result.Dropped)
}

func TestParseExtraction_DeduplicatesByPainStatement(t *testing.T) {
	content := `{
		"snippets": [
			{"excerpt": "first mention of it", "pain_statement": "Sync Keeps Failing", "signal_type": "bug", "intensity": 3, "confidence": 0.8},
			{"excerpt": "second mention of it", "pain_statement": "  sync keeps failing ", "signal_type": "bug", "intensity": 3, "confidence": 0.8}
		],
		"novelty": 0.3
	}`
	result, err := parseExtraction(content, testDoc(), parseCfg())
	require.NoError(t, err)
	assert.Len(t, result.Snippets, 1)
	assert.Equal(t, 1, result.Dropped)
}

func TestParseExtraction_CodeFencedJSON(t *testing.T) {
	content := "```json\n{\"snippets\":[],\"entities\":[\"Acme\"],\"novelty\":0.2}\n```"
	result, err := parseExtraction(content, testDoc(), parseCfg())
	require.NoError(t, err)
	assert.Empty(t, result.Snippets)
	assert.Equal(t, []string{"Acme"}, result.Entities)
}

func TestParseExtraction_CapsFollowupQueries(t *testing.T) {
	content := `{"snippets":[],"followup_queries":["a","b","c","d","e"],"novelty":0}`
	result, err := parseExtraction(content, testDoc(), parseCfg())
	require.NoError(t, err)
	assert.Len(t, result.FollowupQueries, MaxFollowupQueries)
}

func TestParseExtraction_InvalidJSON(t *testing.T) {
	_, err := parseExtraction("not json at all", testDoc(), parseCfg())
	require.Error(t, err)
}
