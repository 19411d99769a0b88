package config

import "strings"

// Domain classifies a request by the subsystem it most likely touches, used
// both for worker routing (resolveActiveRouting) and UI coloring.
type Domain string

const (
	DomainFrontend Domain = "frontend"
	DomainBackend  Domain = "backend"
	DomainGeneral  Domain = "general"
	DomainReview   Domain = "review"
	DomainTest     Domain = "test"
	DomainCritic   Domain = "critic"
)

// domainKeywords maps each domain to the keywords that classify a message
// into it. Checked in the fixed order below so that, e.g., "test" is
// preferred over "general" when both match.
var domainOrder = []Domain{DomainCritic, DomainReview, DomainTest, DomainFrontend, DomainBackend, DomainGeneral}

var domainKeywords = map[Domain][]string{
	DomainFrontend: {"frontend", "ui", "css", "component", "react", "vue", "layout", "style"},
	DomainBackend:  {"backend", "server", "api", "db", "database", "endpoint", "migration", "schema"},
	DomainGeneral:  {"general", "refactor", "docs", "documentation", "cleanup"},
	DomainReview:   {"review", "audit"},
	DomainTest:     {"test", "spec", "unit test", "integration test"},
	DomainCritic:   {"critic", "critique"},
}

// DefaultModels is the fixed per-domain model lookup consulted when neither
// an explicit preferredModel nor config.assignments[domain] resolves a
// model (spec §4.4 routing resolution, third step).
var DefaultModels = map[Domain]string{
	DomainFrontend: "anthropic:claude-sonnet-4-5",
	DomainBackend:  "anthropic:claude-sonnet-4-5",
	DomainGeneral:  "anthropic:claude-sonnet-4-5",
	DomainReview:   "anthropic:claude-opus-4-1",
	DomainTest:     "anthropic:claude-sonnet-4-5",
	DomainCritic:   "anthropic:claude-opus-4-1",
}

// DefaultColors is the fixed per-domain UI color used to render worker
// activity, independent of configuration.
var DefaultColors = map[Domain]string{
	DomainFrontend: "#61dafb",
	DomainBackend:  "#3178c6",
	DomainGeneral:  "#9ca3af",
	DomainReview:   "#f59e0b",
	DomainTest:     "#22c55e",
	DomainCritic:   "#ef4444",
}

// ClassifyDomain scans message for the domain keyword table and returns the
// first domain (in fixed priority order) whose keyword appears. Returns
// DomainGeneral if nothing matches.
func ClassifyDomain(message string) Domain {
	lower := strings.ToLower(message)
	for _, domain := range domainOrder {
		for _, kw := range domainKeywords[domain] {
			if strings.Contains(lower, kw) {
				return domain
			}
		}
	}
	return DomainGeneral
}
