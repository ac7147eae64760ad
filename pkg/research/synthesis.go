package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/seekerhq/seeker/pkg/agent"
	"github.com/seekerhq/seeker/pkg/jsonx"
	"github.com/seekerhq/seeker/pkg/llm"
)

// Coverage enforcement modes.
const (
	CoverageWarn  = "warn"
	CoverageError = "error"
)

// allowedSourcesCap bounds the allowed-URL block shown in repair
// prompts.
const allowedSourcesCap = 40

// Finding is one synthesized claim with supporting citations and an
// optional grounding quote.
type Finding struct {
	Claim     string   `json:"claim"`
	Citations []string `json:"citations"`
	Quote     string   `json:"quote,omitempty"`
	QuoteURL  string   `json:"quote_url,omitempty"`
}

// ItemEvidence is one evidence reference on a catalog item.
type ItemEvidence struct {
	URL   string `json:"url"`
	Quote string `json:"quote,omitempty"`
}

// CatalogItem is one entry of a catalog report.
type CatalogItem struct {
	Name          string         `json:"name"`
	WebsiteURL    string         `json:"website_url,omitempty"`
	ProblemSolved string         `json:"problem_solved,omitempty"`
	PricingModel  string         `json:"pricing_model,omitempty"`
	ProofLinks    []string       `json:"proof_links,omitempty"`
	Evidence      []ItemEvidence `json:"evidence,omitempty"`
}

// Report is the synthesized, validated report prior to rendering.
type Report struct {
	Type           ReportType    `json:"type"`
	Title          string        `json:"title"`
	SummaryBullets []string      `json:"summary_bullets"`
	Findings       []Finding     `json:"findings,omitempty"`
	OpenQuestions  []string      `json:"open_questions,omitempty"`
	Items          []CatalogItem `json:"items,omitempty"`
}

// SynthesisConfig tunes the synthesizer.
type SynthesisConfig struct {
	Model                string
	MaxTokens            int
	CoverageMode         string // warn | error
	MinTotalCitations    int
	MinTotalDomains      int
	PerFindingCitations  int
	MultiPass            bool
	RequireQuotePerClaim bool
	ReportFindingsTarget int
}

// Synthesizer turns worker findings into a grounded report.
type Synthesizer struct {
	client llm.Client
	cfg    SynthesisConfig
	log    *slog.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(client llm.Client, cfg SynthesisConfig) *Synthesizer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	if cfg.CoverageMode == "" {
		cfg.CoverageMode = CoverageWarn
	}
	return &Synthesizer{client: client, cfg: cfg, log: slog.With("component", "research.synthesizer")}
}

// SynthesisInput is the bounded context handed to the synthesizer.
type SynthesisInput struct {
	Query   string
	Notes   string            // concatenated worker outputs
	Allowed []string          // the only URLs the report may cite
	Excerpt map[string]string // URL -> evidence excerpt, for quote checks
}

// Narrative synthesizes a narrative report, multi-pass when configured.
func (s *Synthesizer) Narrative(ctx context.Context, in SynthesisInput) (*Report, error) {
	if s.cfg.MultiPass && s.cfg.RequireQuotePerClaim {
		return s.narrativeMultiPass(ctx, in)
	}
	return s.narrativeSinglePass(ctx, in)
}

const narrativePrompt = `Write a research report for the query below, using only the findings and sources given.

Query: %s

Findings from researchers:
%s

Allowed source URLs (cite only these, verbatim):
%s

Return a JSON object:
{"title": "...", "summary_bullets": ["..."], "findings": [{"claim": "...", "citations": ["<allowed url>"]}], "open_questions": ["..."]}

Every citation must be one of the allowed URLs. Return raw JSON only.`

func (s *Synthesizer) narrativeSinglePass(ctx context.Context, in SynthesisInput) (*Report, error) {
	prompt := fmt.Sprintf(narrativePrompt, in.Query, in.Notes, joinBounded(in.Allowed, allowedSourcesCap))

	report, raw, err := s.completeReport(ctx, prompt)
	if err != nil {
		return nil, err
	}
	report.Type = ReportNarrative

	if bad := groundingViolations(report.Findings, in.Allowed); len(bad) > 0 {
		s.log.Warn("grounding violation, attempting repair", "bad_urls", bad)
		report, err = s.repairGrounding(ctx, raw, bad, in.Allowed)
		if err != nil {
			return nil, err
		}
		report.Type = ReportNarrative
	}
	if err := s.checkCoverage(report.Findings); err != nil {
		return nil, err
	}
	return report, nil
}

// completeReport runs one synthesis call with a single retry at
// temperature 0.0 when the response is not valid JSON.
func (s *Synthesizer) completeReport(ctx context.Context, prompt string) (*Report, string, error) {
	resp, err := s.client.Complete(ctx, &llm.Request{
		Model:       s.cfg.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return nil, "", fmt.Errorf("synthesis call failed: %w", err)
	}
	var report Report
	if err := jsonx.DecodeLoose(resp.Content, &report); err == nil {
		return &report, resp.Content, nil
	}

	retry, err := s.client.Complete(ctx, &llm.Request{
		Model: s.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
			{Role: llm.RoleAssistant, Content: resp.Content},
			{Role: llm.RoleUser, Content: "That was not valid JSON. Return the same content as raw JSON only, with no surrounding text."},
		},
		Temperature: 0.0,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return nil, "", fmt.Errorf("synthesis retry failed: %w", err)
	}
	if err := jsonx.DecodeLoose(retry.Content, &report); err != nil {
		return nil, "", &SynthesisError{Stage: "synthesize", Reason: "invalid JSON after retry: " + err.Error()}
	}
	return &report, retry.Content, nil
}

// repairGrounding shows the offending payload back to the model with a
// bounded allowed-sources block. A second violation is fatal.
func (s *Synthesizer) repairGrounding(ctx context.Context, raw string, bad, allowed []string) (*Report, error) {
	prompt := fmt.Sprintf(`The report below cites URLs that are not in the allowed set: %s

Report JSON:
%s

Allowed source URLs:
%s

Rewrite the report citing only allowed URLs. Drop claims you cannot support from the allowed set. Return raw JSON only.`,
		strings.Join(bad, ", "), raw, joinBounded(allowed, allowedSourcesCap))

	resp, err := s.client.Complete(ctx, &llm.Request{
		Model:       s.cfg.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0.0,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("grounding repair call failed: %w", err)
	}
	var report Report
	if err := jsonx.DecodeLoose(resp.Content, &report); err != nil {
		return nil, &SynthesisError{Stage: "synthesize", Reason: "repair pass returned invalid JSON: " + err.Error()}
	}
	if still := groundingViolations(report.Findings, allowed); len(still) > 0 {
		return nil, &SynthesisError{Stage: "synthesize",
			Reason: "citations outside allowed set after repair: " + strings.Join(still, ", ")}
	}
	return &report, nil
}

// checkCoverage enforces the citation and domain floors per the
// configured coverage mode.
func (s *Synthesizer) checkCoverage(findings []Finding) error {
	var all []string
	seen := map[string]bool{}
	short := 0
	for _, f := range findings {
		if s.cfg.PerFindingCitations > 0 && len(f.Citations) < s.cfg.PerFindingCitations {
			short++
		}
		for _, u := range f.Citations {
			if !seen[u] {
				seen[u] = true
				all = append(all, u)
			}
		}
	}

	var problems []string
	if s.cfg.MinTotalCitations > 0 && len(all) < s.cfg.MinTotalCitations {
		problems = append(problems, fmt.Sprintf("%d unique citations, need %d", len(all), s.cfg.MinTotalCitations))
	}
	if s.cfg.MinTotalDomains > 0 && agent.UniqueDomains(all) < s.cfg.MinTotalDomains {
		problems = append(problems, fmt.Sprintf("%d unique domains, need %d", agent.UniqueDomains(all), s.cfg.MinTotalDomains))
	}
	if short > 0 {
		problems = append(problems, fmt.Sprintf("%d findings below the per-finding citation target", short))
	}
	if len(problems) == 0 {
		return nil
	}
	reason := "coverage: " + strings.Join(problems, "; ")
	if s.cfg.CoverageMode == CoverageError {
		return &SynthesisError{Stage: "synthesize", Reason: reason}
	}
	s.log.Warn("coverage below target", "problems", problems)
	return nil
}

const catalogPrompt = `Build a catalog for the query below from the researchers' findings.

Query: %s
Target items: %d
Required fields per item: %s

Findings from researchers:
%s

Allowed source URLs (use only these, verbatim):
%s

Return a JSON object:
{"title": "...", "summary_bullets": ["..."], "items": [{"name": "...", "website_url": "<allowed url>", "problem_solved": "...", "pricing_model": "...", "proof_links": ["<allowed url>"], "evidence": [{"url": "<allowed url>", "quote": "<verbatim quote from that page>"}]}]}

Every URL must be one of the allowed URLs. Quotes must be copied verbatim. Return raw JSON only.`

// Catalog synthesizes a catalog report. Items whose URL fields leave
// the allowed set and quotes that are not substrings of the recorded
// excerpt are dropped, not fatal.
func (s *Synthesizer) Catalog(ctx context.Context, in SynthesisInput, spec *CatalogSpec) (*Report, error) {
	prompt := fmt.Sprintf(catalogPrompt, in.Query, spec.TargetItems,
		strings.Join(spec.RequiredFields, ", "), in.Notes, joinBounded(in.Allowed, allowedSourcesCap))

	report, _, err := s.completeReport(ctx, prompt)
	if err != nil {
		return nil, err
	}
	report.Type = ReportCatalog

	allowed := toSet(in.Allowed)
	var kept []CatalogItem
	for _, item := range report.Items {
		if item.WebsiteURL != "" && !allowed[item.WebsiteURL] {
			s.log.Warn("dropping catalog item with unallowed website", "name", item.Name, "url", item.WebsiteURL)
			continue
		}
		item.ProofLinks = filterAllowed(item.ProofLinks, allowed)
		var evidence []ItemEvidence
		for _, ev := range item.Evidence {
			if !allowed[ev.URL] {
				continue
			}
			if ev.Quote != "" && !quoteMatches(ev.Quote, in.Excerpt[ev.URL]) {
				s.log.Warn("dropping unverifiable quote", "name", item.Name, "url", ev.URL)
				ev.Quote = ""
			}
			evidence = append(evidence, ev)
		}
		item.Evidence = evidence
		kept = append(kept, item)
	}
	report.Items = kept
	return report, nil
}

const outlinePrompt = `Plan the structure of a research report for this query.

Query: %s

Findings from researchers:
%s

Return a JSON object: {"sections": [{"heading": "...", "focus": "<what this section covers>"}]}. 2 to 4 sections. Return raw JSON only.`

const sectionPrompt = `Write the findings for one report section.

Query: %s
Section: %s (%s)

Findings from researchers:
%s

Evidence excerpts you may quote from:
%s

Return a JSON object: {"findings": [{"claim": "...", "citations": ["<allowed url>"], "evidence": [{"url": "<allowed url>", "quote": "<copy 1-2 sentences verbatim from that url's excerpt>"}]}]}. 3 to 5 findings, each with 1 or 2 evidence quotes. Return raw JSON only.`

const summaryPrompt = `Summarize the validated findings below into report front matter.

Query: %s

Findings:
%s

Return a JSON object: {"title": "...", "summary_bullets": ["..."], "open_questions": ["..."]}. Return raw JSON only.`

// narrativeMultiPass runs outline -> per-section writer -> summary,
// validating every quote by whitespace-normalized substring match, then
// applies the diversity selector.
func (s *Synthesizer) narrativeMultiPass(ctx context.Context, in SynthesisInput) (*Report, error) {
	var outline struct {
		Sections []struct {
			Heading string `json:"heading"`
			Focus   string `json:"focus"`
		} `json:"sections"`
	}
	if err := s.completeJSON(ctx, fmt.Sprintf(outlinePrompt, in.Query, in.Notes), &outline); err != nil {
		return nil, err
	}
	if len(outline.Sections) == 0 {
		return nil, &SynthesisError{Stage: "outline", Reason: "empty outline"}
	}

	allowed := toSet(in.Allowed)
	excerptBlock := excerptContext(in)

	var findings []Finding
	for _, section := range outline.Sections {
		var payload struct {
			Findings []struct {
				Claim     string         `json:"claim"`
				Citations []string       `json:"citations"`
				Evidence  []ItemEvidence `json:"evidence"`
			} `json:"findings"`
		}
		prompt := fmt.Sprintf(sectionPrompt, in.Query, section.Heading, section.Focus, in.Notes, excerptBlock)
		if err := s.completeJSON(ctx, prompt, &payload); err != nil {
			return nil, err
		}
		for _, f := range payload.Findings {
			finding := Finding{Claim: f.Claim, Citations: filterAllowed(f.Citations, allowed)}
			for _, ev := range f.Evidence {
				if !allowed[ev.URL] || !quoteMatches(ev.Quote, in.Excerpt[ev.URL]) {
					continue
				}
				finding.Quote = ev.Quote
				finding.QuoteURL = ev.URL
				break
			}
			if len(finding.Citations) == 0 && finding.QuoteURL == "" {
				continue
			}
			if s.cfg.RequireQuotePerClaim && finding.QuoteURL == "" {
				continue
			}
			findings = append(findings, finding)
		}
	}
	if len(findings) == 0 {
		return nil, &SynthesisError{Stage: "sections", Reason: "no findings survived quote validation"}
	}
	findings = SelectDiverseFindings(findings, s.cfg.ReportFindingsTarget)

	var front struct {
		Title          string   `json:"title"`
		SummaryBullets []string `json:"summary_bullets"`
		OpenQuestions  []string `json:"open_questions"`
	}
	if err := s.completeJSON(ctx, fmt.Sprintf(summaryPrompt, in.Query, findingsContext(findings)), &front); err != nil {
		return nil, err
	}

	report := &Report{
		Type:           ReportNarrative,
		Title:          front.Title,
		SummaryBullets: front.SummaryBullets,
		Findings:       findings,
		OpenQuestions:  front.OpenQuestions,
	}
	return report, s.checkCoverage(report.Findings)
}

// completeJSON is completeReport's shape-agnostic variant for the
// multi-pass stages.
func (s *Synthesizer) completeJSON(ctx context.Context, prompt string, v any) error {
	resp, err := s.client.Complete(ctx, &llm.Request{
		Model:       s.cfg.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("synthesis call failed: %w", err)
	}
	if err := jsonx.DecodeLoose(resp.Content, v); err == nil {
		return nil
	}
	retry, err := s.client.Complete(ctx, &llm.Request{
		Model: s.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
			{Role: llm.RoleAssistant, Content: resp.Content},
			{Role: llm.RoleUser, Content: "That was not valid JSON. Return the same content as raw JSON only."},
		},
		Temperature: 0.0,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("synthesis retry failed: %w", err)
	}
	if err := jsonx.DecodeLoose(retry.Content, v); err != nil {
		return &SynthesisError{Stage: "synthesize", Reason: "invalid JSON after retry: " + err.Error()}
	}
	return nil
}

// groundingViolations returns citations outside the allowed set.
func groundingViolations(findings []Finding, allowed []string) []string {
	set := toSet(allowed)
	var bad []string
	seen := map[string]bool{}
	for _, f := range findings {
		for _, u := range f.Citations {
			if !set[u] && !seen[u] {
				seen[u] = true
				bad = append(bad, u)
			}
		}
	}
	return bad
}

// quoteMatches checks quote is a substring of excerpt after collapsing
// runs of whitespace.
func quoteMatches(quote, excerpt string) bool {
	if quote == "" || excerpt == "" {
		return false
	}
	return strings.Contains(normalizeWS(excerpt), normalizeWS(quote))
}

func normalizeWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func toSet(urls []string) map[string]bool {
	set := make(map[string]bool, len(urls))
	for _, u := range urls {
		set[u] = true
	}
	return set
}

func filterAllowed(urls []string, allowed map[string]bool) []string {
	var out []string
	for _, u := range urls {
		if allowed[u] {
			out = append(out, u)
		}
	}
	return out
}

func joinBounded(urls []string, limit int) string {
	if len(urls) > limit {
		urls = urls[:limit]
	}
	return "- " + strings.Join(urls, "\n- ")
}

func excerptContext(in SynthesisInput) string {
	var b strings.Builder
	for _, u := range in.Allowed {
		ex, ok := in.Excerpt[u]
		if !ok || ex == "" {
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", u, ex)
	}
	return b.String()
}

func findingsContext(findings []Finding) string {
	var b strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&b, "- %s (%s)\n", f.Claim, strings.Join(f.Citations, ", "))
	}
	return b.String()
}
