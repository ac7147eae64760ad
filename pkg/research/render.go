package research

import (
	"fmt"
	"strings"

	"github.com/seekerhq/seeker/pkg/agent"
)

// Render emits the report as Markdown: H1 title, Summary, Findings
// with Why/Quote annotations, Open Questions, and a Sources list
// numbered in first-citation order.
func Render(report *Report, sources map[string]agent.SourceMeta) string {
	var b strings.Builder
	num := newNumbering()

	title := report.Title
	if title == "" {
		title = "Research Report"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if len(report.SummaryBullets) > 0 {
		b.WriteString("## Summary\n\n")
		for _, bullet := range report.SummaryBullets {
			fmt.Fprintf(&b, "- %s\n", bullet)
		}
		b.WriteString("\n")
	}

	if report.Type == ReportCatalog {
		renderItems(&b, report.Items, num)
	} else {
		renderFindings(&b, report.Findings, sources, num)
	}

	if len(report.OpenQuestions) > 0 {
		b.WriteString("## Open Questions\n\n")
		for _, q := range report.OpenQuestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
		b.WriteString("\n")
	}

	if len(num.order) > 0 {
		b.WriteString("## Sources\n\n")
		for i, u := range num.order {
			fmt.Fprintf(&b, "%d. [%d] %s\n", i+1, i+1, u)
		}
	}
	return b.String()
}

func renderFindings(b *strings.Builder, findings []Finding, sources map[string]agent.SourceMeta, num *numbering) {
	if len(findings) == 0 {
		return
	}
	b.WriteString("## Findings\n\n")
	for _, f := range findings {
		marks := make([]string, 0, len(f.Citations))
		for _, u := range f.Citations {
			marks = append(marks, fmt.Sprintf("[%d]", num.assign(u)))
		}
		fmt.Fprintf(b, "- %s %s\n", f.Claim, strings.Join(marks, ""))
		if why := whyLine(f, sources); why != "" {
			fmt.Fprintf(b, "  - Why: %s\n", why)
		}
		if f.Quote != "" {
			fmt.Fprintf(b, "  - Quote: \"%s\" [%d]\n", f.Quote, num.assign(f.QuoteURL))
		}
	}
	b.WriteString("\n")
}

// whyLine annotates a finding with its first source's snippet, falling
// back to the citation URL when no snippet was recorded.
func whyLine(f Finding, sources map[string]agent.SourceMeta) string {
	for _, u := range f.Citations {
		if meta, ok := sources[u]; ok && meta.Snippet != "" {
			return meta.Snippet
		}
	}
	if len(f.Citations) > 0 {
		return f.Citations[0]
	}
	return ""
}

func renderItems(b *strings.Builder, items []CatalogItem, num *numbering) {
	if len(items) == 0 {
		return
	}
	b.WriteString("## Findings\n\n")
	for i, item := range items {
		fmt.Fprintf(b, "### %d. %s\n\n", i+1, item.Name)
		if item.WebsiteURL != "" {
			fmt.Fprintf(b, "- Website: %s [%d]\n", item.WebsiteURL, num.assign(item.WebsiteURL))
		}
		if item.ProblemSolved != "" {
			fmt.Fprintf(b, "- Problem solved: %s\n", item.ProblemSolved)
		}
		if item.PricingModel != "" {
			fmt.Fprintf(b, "- Pricing: %s\n", item.PricingModel)
		}
		for _, link := range item.ProofLinks {
			fmt.Fprintf(b, "- Proof: %s [%d]\n", link, num.assign(link))
		}
		for _, ev := range item.Evidence {
			if ev.Quote != "" {
				fmt.Fprintf(b, "- Quote: \"%s\" [%d]\n", ev.Quote, num.assign(ev.URL))
			}
		}
		b.WriteString("\n")
	}
}

// numbering assigns deterministic first-seen citation numbers.
type numbering struct {
	order []string
	index map[string]int
}

func newNumbering() *numbering {
	return &numbering{index: map[string]int{}}
}

func (n *numbering) assign(url string) int {
	if i, ok := n.index[url]; ok {
		return i
	}
	n.order = append(n.order, url)
	n.index[url] = len(n.order)
	return len(n.order)
}
