package research

import (
	"regexp"
	"strconv"
	"strings"
)

// ReportType selects the synthesis mode.
type ReportType string

const (
	ReportNarrative ReportType = "narrative"
	ReportCatalog   ReportType = "catalog"
)

// Target-item bounds for catalog reports.
const (
	minTargetItems     = 1
	maxTargetItems     = 50
	defaultTargetItems = 10
)

var catalogPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bidentify\s+\d+`),
	regexp.MustCompile(`(?i)\blist\s+\d+`),
	regexp.MustCompile(`(?i)\bfind\s+\d+\b`),
	regexp.MustCompile(`(?i)\bfor\s+each\b`),
	regexp.MustCompile(`(?i)\brequired\s+details?\b`),
	regexp.MustCompile(`(?i)\btop\s+\d+\b`),
}

var targetItemsPattern = regexp.MustCompile(`(?i)\b(?:identify|list|find|top)\s+(\d+)\b`)

// canonicalFields is always present in a catalog's required-field set.
var canonicalFields = []string{"name", "website_url", "problem_solved", "pricing_model", "proof_links"}

// fieldAliases normalizes free-form field mentions to canonical names.
var fieldAliases = map[string]string{
	"pricing":        "pricing_model",
	"price":          "pricing_model",
	"pricing model":  "pricing_model",
	"website":        "website_url",
	"url":            "website_url",
	"site":           "website_url",
	"problem":        "problem_solved",
	"problem solved": "problem_solved",
	"proof":          "proof_links",
	"proof links":    "proof_links",
	"evidence":       "proof_links",
	"name":           "name",
}

// CatalogSpec carries the catalog-mode parameters detected from a query.
type CatalogSpec struct {
	TargetItems    int
	RequiredFields []string
}

// DetectReportType classifies a query as catalog or narrative. Catalog
// queries additionally yield the target item count (clamped to [1,50])
// and the required-field set.
func DetectReportType(query string) (ReportType, *CatalogSpec) {
	catalog := false
	for _, p := range catalogPatterns {
		if p.MatchString(query) {
			catalog = true
			break
		}
	}
	if !catalog {
		return ReportNarrative, nil
	}

	spec := &CatalogSpec{TargetItems: defaultTargetItems}
	if m := targetItemsPattern.FindStringSubmatch(query); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			spec.TargetItems = clampInt(n, minTargetItems, maxTargetItems)
		}
	}
	spec.RequiredFields = requiredFields(query)
	return ReportCatalog, spec
}

// requiredFields parses a "Required details:" block, normalizes the
// mentions, and unions them with the canonical set.
func requiredFields(query string) []string {
	fields := append([]string(nil), canonicalFields...)
	present := map[string]bool{}
	for _, f := range fields {
		present[f] = true
	}

	lower := strings.ToLower(query)
	idx := strings.Index(lower, "required details")
	if idx < 0 {
		return fields
	}
	block := query[idx:]
	if colon := strings.Index(block, ":"); colon >= 0 {
		block = block[colon+1:]
	}
	if nl := strings.Index(block, "\n\n"); nl >= 0 {
		block = block[:nl]
	}
	for _, part := range strings.FieldsFunc(block, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '-' || r == '*'
	}) {
		mention := strings.ToLower(strings.TrimSpace(part))
		if mention == "" {
			continue
		}
		canonical, ok := fieldAliases[mention]
		if !ok {
			canonical = strings.ReplaceAll(mention, " ", "_")
		}
		if !present[canonical] {
			present[canonical] = true
			fields = append(fields, canonical)
		}
	}
	return fields
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
