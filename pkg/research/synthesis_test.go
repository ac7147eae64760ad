package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizer_GroundingViolationFatalAfterRepair(t *testing.T) {
	// First response cites outside the allowed set; the repair pass
	// still does. That is fatal.
	offending := `{"title":"T","summary_bullets":["s"],"findings":[{"claim":"c","citations":["https://other.com/b"]}],"open_questions":[]}`
	client := &scriptClient{responses: []string{offending, offending}}
	synth := NewSynthesizer(client, SynthesisConfig{Model: "m"})

	_, err := synth.Narrative(context.Background(), SynthesisInput{
		Query:   "q",
		Allowed: []string{"https://example.com/a"},
	})
	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
	assert.Equal(t, "synthesize", synthErr.Stage)
	assert.Equal(t, 2, client.callCount())
}

func TestSynthesizer_RepairPassRecovers(t *testing.T) {
	offending := `{"title":"T","summary_bullets":["s"],"findings":[{"claim":"c","citations":["https://other.com/b"]}]}`
	repaired := `{"title":"T","summary_bullets":["s"],"findings":[{"claim":"c","citations":["https://example.com/a"]}]}`
	client := &scriptClient{responses: []string{offending, repaired}}
	synth := NewSynthesizer(client, SynthesisConfig{Model: "m"})

	report, err := synth.Narrative(context.Background(), SynthesisInput{
		Query:   "q",
		Allowed: []string{"https://example.com/a"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a"}, report.Findings[0].Citations)
}

func TestSynthesizer_RetriesInvalidJSONOnce(t *testing.T) {
	valid := `{"title":"T","summary_bullets":[],"findings":[{"claim":"c","citations":["https://example.com/a"]}]}`
	client := &scriptClient{responses: []string{"here's your report!", valid}}
	synth := NewSynthesizer(client, SynthesisConfig{Model: "m"})

	report, err := synth.Narrative(context.Background(), SynthesisInput{
		Query:   "q",
		Allowed: []string{"https://example.com/a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "T", report.Title)
	require.Equal(t, 2, client.callCount())
	// Retry runs at temperature zero.
	assert.Equal(t, 0.0, client.requests[1].Temperature)
}

func TestSynthesizer_InvalidJSONTwiceIsFatal(t *testing.T) {
	client := &scriptClient{responses: []string{"nope", "still nope"}}
	synth := NewSynthesizer(client, SynthesisConfig{Model: "m"})

	_, err := synth.Narrative(context.Background(), SynthesisInput{Query: "q", Allowed: []string{"https://example.com/a"}})
	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
}

func TestSynthesizer_CoverageModes(t *testing.T) {
	report := `{"title":"T","summary_bullets":[],"findings":[{"claim":"c","citations":["https://example.com/a"]}]}`
	in := SynthesisInput{Query: "q", Allowed: []string{"https://example.com/a"}}

	t.Run("warn mode passes", func(t *testing.T) {
		synth := NewSynthesizer(&scriptClient{responses: []string{report}}, SynthesisConfig{
			Model: "m", CoverageMode: CoverageWarn, MinTotalCitations: 5,
		})
		_, err := synth.Narrative(context.Background(), in)
		assert.NoError(t, err)
	})

	t.Run("error mode fails", func(t *testing.T) {
		synth := NewSynthesizer(&scriptClient{responses: []string{report}}, SynthesisConfig{
			Model: "m", CoverageMode: CoverageError, MinTotalCitations: 5,
		})
		_, err := synth.Narrative(context.Background(), in)
		var synthErr *SynthesisError
		require.ErrorAs(t, err, &synthErr)
	})
}

func TestSynthesizer_CatalogDropsUngroundedItemsAndQuotes(t *testing.T) {
	response := `{"title":"T","summary_bullets":[],"items":[
		{"name":"Good","website_url":"https://example.com/a","evidence":[
			{"url":"https://example.com/a","quote":"exactly   matching text"},
			{"url":"https://example.com/a","quote":"never said this"}
		]},
		{"name":"Bad","website_url":"https://rogue.com/x"}
	]}`
	client := &scriptClient{responses: []string{response}}
	synth := NewSynthesizer(client, SynthesisConfig{Model: "m"})

	report, err := synth.Catalog(context.Background(), SynthesisInput{
		Query:   "list 2 tools",
		Allowed: []string{"https://example.com/a"},
		Excerpt: map[string]string{"https://example.com/a": "page with exactly matching text inside"},
	}, &CatalogSpec{TargetItems: 2, RequiredFields: canonicalFields})
	require.NoError(t, err)
	require.Len(t, report.Items, 1)

	item := report.Items[0]
	assert.Equal(t, "Good", item.Name)
	require.Len(t, item.Evidence, 2)
	// Whitespace-normalized quote survives; the fabricated one is cleared.
	assert.Equal(t, "exactly   matching text", item.Evidence[0].Quote)
	assert.Empty(t, item.Evidence[1].Quote)
}

func TestQuoteMatches(t *testing.T) {
	assert.True(t, quoteMatches("a  b\nc", "x a b c y"))
	assert.False(t, quoteMatches("absent", "present text"))
	assert.False(t, quoteMatches("", "anything"))
	assert.False(t, quoteMatches("quote", ""))
}

func TestSynthesizer_MultiPassQuoteValidation(t *testing.T) {
	outline := `{"sections":[{"heading":"H","focus":"f"}]}`
	sections := `{"findings":[
		{"claim":"grounded","citations":["https://example.com/a"],"evidence":[{"url":"https://example.com/a","quote":"real quoted text"}]},
		{"claim":"fabricated quote","citations":["https://example.com/a"],"evidence":[{"url":"https://example.com/a","quote":"made up"}]}
	]}`
	summary := `{"title":"T","summary_bullets":["s"],"open_questions":[]}`
	client := &scriptClient{responses: []string{outline, sections, summary}}
	synth := NewSynthesizer(client, SynthesisConfig{
		Model: "m", MultiPass: true, RequireQuotePerClaim: true, ReportFindingsTarget: 10,
	})

	report, err := synth.Narrative(context.Background(), SynthesisInput{
		Query:   "q",
		Allowed: []string{"https://example.com/a"},
		Excerpt: map[string]string{"https://example.com/a": "some real quoted text here"},
	})
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "grounded", report.Findings[0].Claim)
	assert.Equal(t, "real quoted text", report.Findings[0].Quote)
	assert.Equal(t, "https://example.com/a", report.Findings[0].QuoteURL)
}
