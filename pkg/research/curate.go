package research

import (
	"sort"

	"github.com/seekerhq/seeker/pkg/agent"
)

// CurateConfig bounds the curated-sources selection.
type CurateConfig struct {
	MinPerTask   int
	MaxTotal     int
	MaxPerDomain int
}

// CurateSources picks the URL set the synthesizer may cite. Per task,
// candidates order by search score descending then first-seen rank. A
// two-pass round-robin first fulfills MinPerTask for every task, then
// fills to MaxTotal while enforcing MaxPerDomain.
func CurateSources(results []*agent.WorkerResult, cfg CurateConfig) []string {
	perTask := make([][]string, 0, len(results))
	for _, r := range results {
		if !r.Success || len(r.Citations) == 0 {
			continue
		}
		perTask = append(perTask, orderByScore(r))
	}
	if len(perTask) == 0 {
		return nil
	}

	var selected []string
	chosen := map[string]bool{}
	perDomain := map[string]int{}

	take := func(u string, enforceDomain bool) bool {
		if chosen[u] {
			return false
		}
		d := agent.Domain(u)
		if enforceDomain && cfg.MaxPerDomain > 0 && perDomain[d] >= cfg.MaxPerDomain {
			return false
		}
		chosen[u] = true
		perDomain[d]++
		selected = append(selected, u)
		return true
	}

	// Pass 1: MinPerTask from each task, round-robin.
	for pos := 0; pos < cfg.MinPerTask; pos++ {
		for _, urls := range perTask {
			if pos < len(urls) {
				take(urls[pos], false)
			}
		}
	}

	// Pass 2: fill to MaxTotal under the domain cap.
	for pos := 0; cfg.MaxTotal > 0 && len(selected) < cfg.MaxTotal; pos++ {
		progressed := false
		for _, urls := range perTask {
			if pos >= len(urls) {
				continue
			}
			progressed = true
			if take(urls[pos], true) && len(selected) >= cfg.MaxTotal {
				break
			}
		}
		if !progressed {
			break
		}
	}

	if cfg.MaxTotal > 0 && len(selected) > cfg.MaxTotal {
		selected = selected[:cfg.MaxTotal]
	}
	return selected
}

// orderByScore orders one worker's citations by their best search score
// descending, ties broken by first-seen rank.
func orderByScore(r *agent.WorkerResult) []string {
	scores := map[string]float64{}
	for _, entry := range r.SearchTrace {
		for _, hit := range entry.Results {
			if hit.Score > scores[hit.URL] {
				scores[hit.URL] = hit.Score
			}
		}
	}
	urls := append([]string(nil), r.Citations...)
	rank := map[string]int{}
	for i, u := range urls {
		rank[u] = i
	}
	sort.SliceStable(urls, func(i, j int) bool {
		si, sj := scores[urls[i]], scores[urls[j]]
		if si != sj {
			return si > sj
		}
		return rank[urls[i]] < rank[urls[j]]
	})
	return urls
}

// SelectDiverseFindings runs a greedy set cover over findings, each
// step picking the finding that adds the most uncovered URLs and
// domains, until target findings are chosen or nothing adds coverage.
// Leftover slots fill in original order.
func SelectDiverseFindings(findings []Finding, target int) []Finding {
	if target <= 0 || len(findings) <= target {
		return findings
	}

	coveredURL := map[string]bool{}
	coveredDomain := map[string]bool{}
	used := make([]bool, len(findings))
	var out []Finding

	gain := func(f Finding) int {
		g := 0
		for _, u := range findingURLs(f) {
			if !coveredURL[u] {
				g++
			}
			if d := agent.Domain(u); d != "" && !coveredDomain[d] {
				g += 2
			}
		}
		return g
	}

	for len(out) < target {
		best, bestGain := -1, 0
		for i, f := range findings {
			if used[i] {
				continue
			}
			if g := gain(f); g > bestGain {
				best, bestGain = i, g
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		out = append(out, findings[best])
		for _, u := range findingURLs(findings[best]) {
			coveredURL[u] = true
			if d := agent.Domain(u); d != "" {
				coveredDomain[d] = true
			}
		}
	}

	for i, f := range findings {
		if len(out) >= target {
			break
		}
		if !used[i] {
			used[i] = true
			out = append(out, f)
		}
	}
	return out
}

func findingURLs(f Finding) []string {
	urls := append([]string(nil), f.Citations...)
	if f.QuoteURL != "" {
		urls = append(urls, f.QuoteURL)
	}
	return urls
}
