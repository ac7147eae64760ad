package research

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerhq/seeker/pkg/agent"
)

func resultWithScores(taskID string, hits ...agent.SearchResultMeta) *agent.WorkerResult {
	res := &agent.WorkerResult{TaskID: taskID, Success: true}
	for _, h := range hits {
		res.Citations = append(res.Citations, h.URL)
	}
	res.SearchTrace = []agent.SearchTraceEntry{{Query: taskID, Results: hits}}
	return res
}

func TestCurateSources_OrdersByScoreThenRank(t *testing.T) {
	res := resultWithScores("t",
		agent.SearchResultMeta{URL: "https://a.com/1", Score: 0.2},
		agent.SearchResultMeta{URL: "https://b.com/2", Score: 0.9},
		agent.SearchResultMeta{URL: "https://c.com/3", Score: 0.9},
	)
	got := CurateSources([]*agent.WorkerResult{res}, CurateConfig{MinPerTask: 3, MaxTotal: 10, MaxPerDomain: 2})
	// Score descending, tie broken by first-seen rank.
	assert.Equal(t, []string{"https://b.com/2", "https://c.com/3", "https://a.com/1"}, got)
}

func TestCurateSources_MinPerTaskBeforeFill(t *testing.T) {
	a := resultWithScores("a",
		agent.SearchResultMeta{URL: "https://a.com/1", Score: 0.9},
		agent.SearchResultMeta{URL: "https://a.com/2", Score: 0.8},
	)
	b := resultWithScores("b",
		agent.SearchResultMeta{URL: "https://b.com/1", Score: 0.1},
	)
	got := CurateSources([]*agent.WorkerResult{a, b}, CurateConfig{MinPerTask: 1, MaxTotal: 2, MaxPerDomain: 1})
	// Every task contributes its best URL before any filling happens.
	require.Len(t, got, 2)
	assert.Contains(t, got, "https://a.com/1")
	assert.Contains(t, got, "https://b.com/1")
}

func TestCurateSources_DomainCapInFillPass(t *testing.T) {
	res := resultWithScores("t",
		agent.SearchResultMeta{URL: "https://same.com/1", Score: 0.9},
		agent.SearchResultMeta{URL: "https://same.com/2", Score: 0.8},
		agent.SearchResultMeta{URL: "https://same.com/3", Score: 0.7},
		agent.SearchResultMeta{URL: "https://other.com/1", Score: 0.1},
	)
	got := CurateSources([]*agent.WorkerResult{res}, CurateConfig{MinPerTask: 0, MaxTotal: 10, MaxPerDomain: 2})
	assert.Equal(t, []string{"https://same.com/1", "https://same.com/2", "https://other.com/1"}, got)
}

func TestCurateSources_SkipsFailedWorkers(t *testing.T) {
	failed := &agent.WorkerResult{TaskID: "f", Success: false, Citations: []string{"https://x.com/1"}}
	got := CurateSources([]*agent.WorkerResult{failed}, CurateConfig{MinPerTask: 1, MaxTotal: 5})
	assert.Empty(t, got)
}

func TestSelectDiverseFindings(t *testing.T) {
	findings := []Finding{
		{Claim: "a", Citations: []string{"https://one.com/x"}},
		{Claim: "b", Citations: []string{"https://one.com/x"}}, // duplicates a
		{Claim: "c", Citations: []string{"https://two.com/y", "https://three.com/z"}},
		{Claim: "d", Citations: []string{"https://four.com/w"}},
	}
	got := SelectDiverseFindings(findings, 2)
	require.Len(t, got, 2)
	// Greedy picks the two-domain finding first, then any new domain.
	assert.Equal(t, "c", got[0].Claim)
	assert.NotEqual(t, "b", got[1].Claim)
}

func TestSelectDiverseFindings_NoTruncationNeeded(t *testing.T) {
	findings := []Finding{{Claim: "a"}, {Claim: "b"}}
	assert.Equal(t, findings, SelectDiverseFindings(findings, 5))
	assert.Equal(t, findings, SelectDiverseFindings(findings, 0))
}

func TestSelectDiverseFindings_FillsWithOriginalOrder(t *testing.T) {
	// Findings without URLs add no coverage; leftover slots fill in
	// original order.
	findings := []Finding{
		{Claim: "no-urls-1"},
		{Claim: "cited", Citations: []string{"https://one.com/x"}},
		{Claim: "no-urls-2"},
	}
	got := SelectDiverseFindings(findings, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "cited", got[0].Claim)
	assert.Equal(t, "no-urls-1", got[1].Claim)
}

func TestBuildMemo_Bounds(t *testing.T) {
	var results []*agent.WorkerResult
	res := &agent.WorkerResult{TaskID: "t", Success: true, Sources: map[string]agent.SourceMeta{}}
	// 5 domains x 5 URLs = 25 citations; one URL carries evidence.
	for d := 0; d < 5; d++ {
		for i := 0; i < 5; i++ {
			u := fmt.Sprintf("https://site%d.com/page%d", d, i)
			res.Citations = append(res.Citations, u)
		}
	}
	evidenceURL := "https://site4.com/page4"
	res.Evidence = []agent.Evidence{{URL: evidenceURL, Excerpt: "x"}}
	results = append(results, res)

	memo := BuildMemo("q", ReportNarrative, 1, results, 2)
	assert.Equal(t, 25, memo.UniqueCitations)
	assert.Equal(t, 5, memo.UniqueDomains)
	assert.Equal(t, 2, memo.TasksRemaining)
	assert.LessOrEqual(t, len(memo.Sources), memoMaxSources)

	perDomain := map[string]int{}
	for _, s := range memo.Sources {
		perDomain[agent.Domain(s.URL)]++
	}
	for d, n := range perDomain {
		assert.LessOrEqual(t, n, memoMaxPerDomain, "domain %s over cap", d)
	}
	// The evidence-bearing URL sorts first.
	assert.Equal(t, evidenceURL, memo.Sources[0].URL)
	assert.True(t, memo.Sources[0].Evidence)
}

func TestBuildMemo_SkipsFailedWorkers(t *testing.T) {
	memo := BuildMemo("q", ReportNarrative, 1, []*agent.WorkerResult{
		{TaskID: "f", Success: false, Citations: []string{"https://x.com/1"}},
	}, 0)
	assert.Zero(t, memo.TasksCompleted)
	assert.Zero(t, memo.UniqueCitations)
	assert.Empty(t, memo.Sources)
}
