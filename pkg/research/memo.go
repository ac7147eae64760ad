package research

import (
	"fmt"
	"strings"

	"github.com/seekerhq/seeker/pkg/agent"
)

// Memo source-summary bounds.
const (
	memoMaxSources   = 20
	memoMaxPerDomain = 3
)

// MemoSource is one bounded source line in a memo.
type MemoSource struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
	Evidence bool   `json:"evidence"`
}

// Gap is one identified coverage gap.
type Gap struct {
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// Candidate is one catalog candidate's per-field completion status.
type Candidate struct {
	Name         string            `json:"name"`
	WebsiteURL   string            `json:"website_url,omitempty"`
	Fields       map[string]string `json:"fields"` // missing | partial | found
	EvidenceURLs []string          `json:"evidence_urls,omitempty"`
}

// Memo is the bounded-context round summary passed to follow-up
// planners. Immutable once built; planners consume it by value.
type Memo struct {
	Query           string       `json:"query"`
	ReportType      ReportType   `json:"report_type"`
	Round           int          `json:"round"`
	TasksCompleted  int          `json:"tasks_completed"`
	TasksRemaining  int          `json:"tasks_remaining"`
	UniqueCitations int          `json:"unique_citations"`
	UniqueDomains   int          `json:"unique_domains"`
	PagesExtracted  int          `json:"pages_extracted"`
	Sources         []MemoSource `json:"sources,omitempty"`
	Gaps            []Gap        `json:"gaps,omitempty"`

	// Catalog-mode only.
	TargetItems    int         `json:"target_items,omitempty"`
	RequiredFields []string    `json:"required_fields,omitempty"`
	Candidates     []Candidate `json:"candidates,omitempty"`
}

// BuildMemo summarizes a round's results into a bounded memo. Sources
// are capped at 20 entries with at most 3 per domain; URLs that carry
// extracted evidence are preferred.
func BuildMemo(query string, rt ReportType, round int, results []*agent.WorkerResult, remaining int) *Memo {
	m := &Memo{
		Query:          query,
		ReportType:     rt,
		Round:          round,
		TasksRemaining: remaining,
	}

	evidenceURLs := map[string]bool{}
	var citations []string
	seen := map[string]bool{}
	meta := map[string]agent.SourceMeta{}
	for _, r := range results {
		if !r.Success {
			continue
		}
		m.TasksCompleted++
		m.PagesExtracted += len(r.Evidence)
		for _, ev := range r.Evidence {
			evidenceURLs[ev.URL] = true
		}
		for _, u := range r.Citations {
			if !seen[u] {
				seen[u] = true
				citations = append(citations, u)
			}
			if sm, ok := r.Sources[u]; ok {
				meta[u] = sm
			}
		}
	}
	m.UniqueCitations = len(citations)
	m.UniqueDomains = agent.UniqueDomains(citations)

	// Evidence-bearing URLs first, preserving first-seen order within
	// each group.
	ordered := make([]string, 0, len(citations))
	for _, u := range citations {
		if evidenceURLs[u] {
			ordered = append(ordered, u)
		}
	}
	for _, u := range citations {
		if !evidenceURLs[u] {
			ordered = append(ordered, u)
		}
	}

	perDomain := map[string]int{}
	for _, u := range ordered {
		if len(m.Sources) >= memoMaxSources {
			break
		}
		d := agent.Domain(u)
		if d == "" || perDomain[d] >= memoMaxPerDomain {
			continue
		}
		perDomain[d]++
		sm := meta[u]
		m.Sources = append(m.Sources, MemoSource{
			URL:      u,
			Title:    sm.Title,
			Snippet:  sm.Snippet,
			Evidence: evidenceURLs[u],
		})
	}
	return m
}

// PromptContext renders the memo as planner prompt material.
func (m *Memo) PromptContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Round %d summary: %d tasks completed, %d remaining, %d unique citations across %d domains, %d pages extracted.\n",
		m.Round, m.TasksCompleted, m.TasksRemaining, m.UniqueCitations, m.UniqueDomains, m.PagesExtracted)
	if len(m.Sources) > 0 {
		b.WriteString("Sources found so far:\n")
		for _, s := range m.Sources {
			line := s.URL
			if s.Title != "" {
				line += " (" + s.Title + ")"
			}
			b.WriteString("- " + line + "\n")
		}
	}
	if len(m.Gaps) > 0 {
		b.WriteString("Known gaps:\n")
		for _, g := range m.Gaps {
			fmt.Fprintf(&b, "- [p%d] %s\n", g.Priority, g.Description)
		}
	}
	if m.ReportType == ReportCatalog {
		fmt.Fprintf(&b, "Catalog target: %d items with fields %s.\n",
			m.TargetItems, strings.Join(m.RequiredFields, ", "))
		for _, c := range m.Candidates {
			var missing []string
			for field, status := range c.Fields {
				if status != "found" {
					missing = append(missing, field)
				}
			}
			fmt.Fprintf(&b, "- candidate %s: %d fields incomplete\n", c.Name, len(missing))
		}
	}
	return b.String()
}
