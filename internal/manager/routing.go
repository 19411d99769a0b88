package manager

import (
	"strings"

	"github.com/kory-ai/workbench-core/internal/config"
)

// routeTarget names a resolved (provider, model) pair, the unit every
// provider.Registry lookup is keyed on.
type routeTarget struct {
	Provider string
	Model    string
}

// splitProviderModel parses the "provider:modelId" form accepted throughout
// config (Assignments, DefaultModels, AgentConfig.Model).
func splitProviderModel(s string) (providerName, modelID string, ok bool) {
	i := strings.Index(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// resolveManagerRoute picks the (provider, model) the manager role itself
// calls for clarification, classification, planning, and the fast path.
// preferredModel (an explicit "provider:modelId" override from the caller)
// wins outright; otherwise config.Agents.Manager.Model is used; otherwise a
// fixed default keeps the pipeline usable with an empty config.
func (m *Manager) resolveManagerRoute(preferredModel string) routeTarget {
	if p, mo, ok := splitProviderModel(preferredModel); ok {
		return routeTarget{Provider: p, Model: mo}
	}
	if m.deps.Config != nil {
		if p, mo, ok := splitProviderModel(m.deps.Config.Agents.Manager.Model); ok {
			return routeTarget{Provider: p, Model: mo}
		}
	}
	return routeTarget{Provider: "anthropic", Model: "claude-sonnet-4-5"}
}

// resolveWorkerRoute implements the three-tier routing resolution from
// spec §4.9: an explicit preferredModel wins, then config.assignments
// keyed by domain, then config.Domain's fixed DefaultModels table.
func resolveWorkerRoute(preferredModel string, domain config.Domain, cfg *config.Config) (routeTarget, bool) {
	if p, mo, ok := splitProviderModel(preferredModel); ok {
		return routeTarget{Provider: p, Model: mo}, true
	}
	if cfg != nil {
		if assigned, ok := cfg.Assignments[string(domain)]; ok {
			if p, mo, ok2 := splitProviderModel(assigned); ok2 {
				return routeTarget{Provider: p, Model: mo}, true
			}
		}
	}
	if def, ok := config.DefaultModels[domain]; ok {
		if p, mo, ok2 := splitProviderModel(def); ok2 {
			return routeTarget{Provider: p, Model: mo}, true
		}
	}
	return routeTarget{}, false
}

func (m *Manager) resolveWorkerRoute(preferredModel string, domain config.Domain) (routeTarget, bool) {
	return resolveWorkerRoute(preferredModel, domain, m.deps.Config)
}
