package ingest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerhq/seeker/pkg/llm"
	"github.com/seekerhq/seeker/pkg/models"
)

// fakeLLM returns scripted responses in order, repeating the last one
// once the script runs out.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (f *fakeLLM) Complete(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return &llm.Response{
		Content: f.responses[idx],
		Usage:   llm.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
	}, nil
}

func (f *fakeLLM) Stream(_ context.Context, _ *llm.Request) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func intPtr(v int) *int { return &v }

func TestExtractor_Filter(t *testing.T) {
	ex := NewExtractor(nil, ExtractConfig{
		MinContentLength:  100,
		MinScore:          2,
		SkipDeletedAuthor: true,
	})

	tests := []struct {
		name string
		doc  *models.Document
		want string
	}{
		{"passes", &models.Document{RawText: string(make([]byte, 200)), Score: intPtr(5)}, ""},
		{"too short", &models.Document{RawText: "tiny"}, "content shorter than 100 chars"},
		{"low score", &models.Document{RawText: string(make([]byte, 200)), Score: intPtr(1)}, "score 1 below minimum 2"},
		{"deleted author", &models.Document{RawText: string(make([]byte, 200)), Author: "[deleted]"}, "author deleted"},
		{"nil score passes", &models.Document{RawText: string(make([]byte, 200))}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ex.Filter(tt.doc))
		})
	}
}

func TestExtractor_FilteredDocSkipsLLM(t *testing.T) {
	client := &fakeLLM{responses: []string{`{"snippets":[],"novelty":0}`}}
	ex := NewExtractor(client, ExtractConfig{MinContentLength: 100})

	result, err := ex.Extract(context.Background(), "topic",
		&models.Document{DocID: "d", RawText: "tiny"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "filtered:content shorter than 100 chars", result.ErrorKind)
	assert.Zero(t, client.calls)
}

func TestExtractor_RetriesOnBadJSON(t *testing.T) {
	client := &fakeLLM{responses: []string{
		"sorry, I cannot do that",
		`{"snippets":[],"entities":["Acme"],"novelty":0.4}`,
	}}
	ex := NewExtractor(client, ExtractConfig{MaxRetries: 2})

	result, err := ex.Extract(context.Background(), "topic",
		&models.Document{DocID: "d", RawText: "long enough content"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, []string{"Acme"}, result.Entities)
	assert.Equal(t, 300, result.Usage.TotalTokens)
}

func TestExtractor_ExhaustedRetries(t *testing.T) {
	client := &fakeLLM{responses: []string{"still not json"}}
	ex := NewExtractor(client, ExtractConfig{MaxRetries: 3})

	result, err := ex.Extract(context.Background(), "topic",
		&models.Document{DocID: "d", RawText: "long enough content"}, nil)
	require.Error(t, err)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, "json_decode", result.ErrorKind)
	assert.Empty(t, result.Snippets)
}

func TestExtractor_PromptBounds(t *testing.T) {
	ex := NewExtractor(nil, ExtractConfig{})

	long := make([]byte, ContentTruncationLimit+500)
	for i := range long {
		long[i] = 'x'
	}
	knowledge := make([]string, KnowledgeContextSize+5)
	for i := range knowledge {
		knowledge[i] = "known finding"
	}
	knowledge[len(knowledge)-1] = "newest finding"

	prompt := ex.buildPrompt("topic", &models.Document{
		Source: "web", SourceEntity: "forum", Title: "t", URL: "u", RawText: string(long),
	}, knowledge)

	assert.LessOrEqual(t, len(prompt), ContentTruncationLimit+2000)
	assert.Contains(t, prompt, "web/forum")
	assert.Contains(t, prompt, "newest finding")
}
