package policy

import (
	"strings"
	"sync"
)

// Resolver resolves tool access by evaluating profiles, groups, and
// allow/deny lists. It supports MCP server tool registration and custom
// tool aliases.
type Resolver struct {
	mu         sync.RWMutex
	groups     map[string][]string
	mcpServers map[string][]string // serverID -> tool names
	aliases    map[string]string   // alias -> canonical tool name
}

// Decision explains why a tool was allowed or denied.
type Decision struct {
	Allowed bool
	Tool    string
	Reason  string
}

// NewResolver creates a policy resolver seeded with the default groups.
func NewResolver() *Resolver {
	return &Resolver{
		groups:     DefaultGroups,
		mcpServers: make(map[string][]string),
		aliases:    make(map[string]string),
	}
}

// AddGroup adds a custom tool group referenceable in policies.
func (r *Resolver) AddGroup(name string, tools []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[name] = tools
}

// RegisterMCPServer registers an MCP server's tools, also exposing them as
// the group "mcp:serverID".
func (r *Resolver) RegisterMCPServer(serverID string, tools []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mcpServers[serverID] = tools
	r.groups["mcp:"+serverID] = tools
}

// UnregisterMCPServer removes a previously registered MCP server.
func (r *Resolver) UnregisterMCPServer(serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mcpServers, serverID)
	delete(r.groups, "mcp:"+serverID)
}

// RegisterAlias registers an alias resolving to a canonical tool name.
func (r *Resolver) RegisterAlias(alias, canonical string) {
	alias = NormalizeTool(alias)
	canonical = NormalizeTool(canonical)
	if alias == "" || canonical == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = canonical
}

// CanonicalName resolves name to its canonical form via registered aliases.
func (r *Resolver) CanonicalName(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonicalNameLocked(name)
}

func (r *Resolver) canonicalNameLocked(name string) string {
	normalized := NormalizeTool(name)
	if canonical, ok := r.aliases[normalized]; ok {
		return canonical
	}
	return normalized
}

// ExpandGroups expands group references (e.g. "group:fs") and MCP
// wildcards (e.g. "mcp:server.*") in a tool list into constituent tools.
func (r *Resolver) ExpandGroups(items []string) []string {
	var result []string
	seen := make(map[string]bool)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, item := range items {
		normalized := r.canonicalNameLocked(item)

		if tools, ok := r.groups[normalized]; ok {
			for _, tool := range tools {
				if !seen[tool] {
					seen[tool] = true
					result = append(result, tool)
				}
			}
			continue
		}

		if strings.HasPrefix(normalized, "mcp:") && strings.HasSuffix(normalized, ".*") {
			serverID := strings.TrimSuffix(strings.TrimPrefix(normalized, "mcp:"), ".*")
			if tools, ok := r.mcpServers[serverID]; ok {
				for _, tool := range tools {
					fullName := "mcp:" + serverID + "." + tool
					if !seen[fullName] {
						seen[fullName] = true
						result = append(result, fullName)
					}
				}
			}
			continue
		}

		if !seen[normalized] {
			seen[normalized] = true
			result = append(result, normalized)
		}
	}

	return result
}

// IsAllowed reports whether toolName is allowed under policy.
func (r *Resolver) IsAllowed(policy *Policy, toolName string) bool {
	return r.Decide(policy, toolName).Allowed
}

// Decide returns an allow/deny decision with a reason explaining which
// rule produced it.
func (r *Resolver) Decide(policy *Policy, toolName string) Decision {
	normalized := r.CanonicalName(toolName)
	decision := Decision{Allowed: false, Tool: normalized, Reason: "no matching allow rule"}

	if policy == nil {
		decision.Reason = "no policy configured"
		return decision
	}

	policy = r.effectivePolicyForTool(policy, normalized)
	if policy == nil {
		decision.Reason = "no policy configured"
		return decision
	}

	var allowed []string
	if policy.Profile != "" {
		if profilePolicy, ok := ProfileDefaults[policy.Profile]; ok && profilePolicy != nil {
			allowed = r.ExpandGroups(profilePolicy.Allow)
		}
	}
	if len(policy.Allow) > 0 {
		allowed = append(allowed, r.ExpandGroups(policy.Allow)...)
	}

	denied := r.ExpandGroups(policy.Deny)
	for _, d := range denied {
		if d == normalized || matchToolPattern(d, normalized) {
			decision.Reason = "denied by rule: " + d
			return decision
		}
	}

	if policy.Profile == ProfileFull {
		decision.Allowed = true
		decision.Reason = "allowed by profile full"
		return decision
	}

	for _, a := range allowed {
		if a == normalized || matchToolPattern(a, normalized) {
			decision.Allowed = true
			decision.Reason = "allowed by rule: " + a
			return decision
		}
	}

	return decision
}

func (r *Resolver) effectivePolicyForTool(policy *Policy, toolName string) *Policy {
	if policy == nil {
		return nil
	}
	if len(policy.ByProvider) == 0 {
		return policy
	}
	providerKey := toolProviderKey(toolName)
	if providerKey == "" {
		return policy
	}
	providerPolicy, ok := policy.ByProvider[providerKey]
	if !ok || providerPolicy == nil {
		return policy
	}

	base := *policy
	base.ByProvider = nil
	override := *providerPolicy
	override.ByProvider = nil
	return Merge(&base, &override)
}

func toolProviderKey(toolName string) string {
	normalized := NormalizeTool(toolName)
	if strings.HasPrefix(normalized, "mcp:") {
		trimmed := strings.TrimPrefix(normalized, "mcp:")
		if trimmed == "" {
			return "mcp"
		}
		parts := strings.SplitN(trimmed, ".", 2)
		if len(parts) > 0 && parts[0] != "" {
			return "mcp:" + parts[0]
		}
		return "mcp"
	}
	return "agime"
}

// matchToolPattern reports whether pattern matches toolName. Supported
// patterns: "*" (any tool), "mcp:*" (all MCP tools), "mcp:server.*" (all
// tools from a server), or an exact match.
func matchToolPattern(pattern, toolName string) bool {
	if pattern == "*" {
		return true
	}
	if pattern == "mcp:*" {
		return strings.HasPrefix(toolName, "mcp:")
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(toolName, prefix)
	}
	return pattern == toolName
}

// FilterAllowed filters tools to those allowed under policy.
func (r *Resolver) FilterAllowed(policy *Policy, tools []string) []string {
	var result []string
	for _, tool := range tools {
		if r.IsAllowed(policy, tool) {
			result = append(result, tool)
		}
	}
	return result
}

// GetDenied returns policy's explicitly denied tools with groups expanded.
func (r *Resolver) GetDenied(policy *Policy) []string {
	return r.ExpandGroups(policy.Deny)
}

// GetAllowed returns policy's allowed tools, including profile defaults,
// with groups expanded.
func (r *Resolver) GetAllowed(policy *Policy) []string {
	var allowed []string
	if policy.Profile != "" {
		if profilePolicy, ok := ProfileDefaults[policy.Profile]; ok && profilePolicy != nil {
			allowed = r.ExpandGroups(profilePolicy.Allow)
		}
	}
	if len(policy.Allow) > 0 {
		allowed = append(allowed, r.ExpandGroups(policy.Allow)...)
	}
	return allowed
}

// Merge combines policies in order; later policies win for Profile, and
// allow/deny lists accumulate.
func Merge(policies ...*Policy) *Policy {
	result := &Policy{}
	for _, p := range policies {
		if p == nil {
			continue
		}
		if p.Profile != "" {
			result.Profile = p.Profile
		}
		result.Allow = append(result.Allow, p.Allow...)
		result.Deny = append(result.Deny, p.Deny...)
		if len(p.ByProvider) > 0 {
			if result.ByProvider == nil {
				result.ByProvider = make(map[string]*Policy)
			}
			for key, pol := range p.ByProvider {
				result.ByProvider[key] = pol
			}
		}
	}
	return result
}

// NewPolicy creates a policy with profile as its base.
func NewPolicy(profile Profile) *Policy {
	return &Policy{Profile: profile}
}

// WithAllow appends tools to the allow list, returning p for chaining.
func (p *Policy) WithAllow(tools ...string) *Policy {
	p.Allow = append(p.Allow, tools...)
	return p
}

// WithDeny appends tools to the deny list, returning p for chaining.
func (p *Policy) WithDeny(tools ...string) *Policy {
	p.Deny = append(p.Deny, tools...)
	return p
}
