// Package policy provides tool authorization: profiles, groups, and
// allow/deny resolution for which tools a session's agent may invoke
// (spec §4.7, "override reconciliation").
package policy

import "strings"

// Profile is a pre-configured tool access level.
type Profile string

const (
	// ProfileMinimal allows only status tools.
	ProfileMinimal Profile = "minimal"
	// ProfileCoding allows filesystem, runtime, and web tools.
	ProfileCoding Profile = "coding"
	// ProfileMessaging allows messaging tools.
	ProfileMessaging Profile = "messaging"
	// ProfileFull allows all tools except explicitly denied ones.
	ProfileFull Profile = "full"
)

// Policy defines tool access rules for a session, combining a profile
// with explicit allow/deny lists. Deny always takes precedence over allow.
type Policy struct {
	Profile Profile `json:"profile,omitempty" yaml:"profile"`
	Allow   []string `json:"allow,omitempty" yaml:"allow"`
	Deny    []string `json:"deny,omitempty" yaml:"deny"`

	// ByProvider scopes additional rules to a tool provider; for MCP
	// tools the key is "mcp:<server>", for built-ins it is "agime".
	ByProvider map[string]*Policy `json:"by_provider,omitempty" yaml:"by_provider,omitempty"`
}

// DefaultGroups are the built-in tool groups referenceable as "group:name"
// in a Policy's Allow/Deny lists.
var DefaultGroups = map[string][]string{
	"group:fs":        {"read", "write", "edit", "exec"},
	"group:web":       {"websearch", "webfetch"},
	"group:runtime":   {"sandbox"},
	"group:messaging": {"send_message"},
	"group:jobs":      {"job_status"},
	"group:nexus": {
		"read", "write", "edit", "exec",
		"websearch", "webfetch",
		"sandbox", "send_message", "job_status",
	},
	"group:mcp": {},
	"group:all": {},
}

// ProfileDefaults defines the default allow list for each profile.
var ProfileDefaults = map[Profile]*Policy{
	ProfileMinimal:   {Allow: []string{"status"}},
	ProfileCoding:    {Allow: []string{"group:fs", "group:runtime", "group:web"}},
	ProfileMessaging: {Allow: []string{"group:messaging", "status"}},
	ProfileFull:      {},
}

// ToolAliases maps alternative tool names to their canonical form.
var ToolAliases = map[string]string{
	"bash":        "exec",
	"shell":       "exec",
	"apply-patch": "edit",
	"apply_patch": "edit",
	"sandbox":     "execute_code",
	"websearch":   "web_search",
	"webfetch":    "web_fetch",
}

// NormalizeTool lowercases name and resolves any known alias.
func NormalizeTool(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := ToolAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// NormalizeTools normalizes a list of tool names.
func NormalizeTools(names []string) []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		if n := NormalizeTool(name); n != "" {
			result = append(result, n)
		}
	}
	return result
}

// UnifiedPolicyBuilder builds a Policy consistently across native and MCP
// tools.
type UnifiedPolicyBuilder struct {
	policy *Policy
}

// NewUnifiedPolicy starts a new policy builder.
func NewUnifiedPolicy() *UnifiedPolicyBuilder {
	return &UnifiedPolicyBuilder{policy: &Policy{}}
}

func (b *UnifiedPolicyBuilder) WithProfile(profile Profile) *UnifiedPolicyBuilder {
	b.policy.Profile = profile
	return b
}

func (b *UnifiedPolicyBuilder) AllowNative(tools ...string) *UnifiedPolicyBuilder {
	for _, t := range tools {
		b.policy.Allow = append(b.policy.Allow, NormalizeTool(t))
	}
	return b
}

func (b *UnifiedPolicyBuilder) AllowNativeGroup(groups ...string) *UnifiedPolicyBuilder {
	for _, g := range groups {
		if !strings.HasPrefix(g, "group:") {
			g = "group:" + g
		}
		b.policy.Allow = append(b.policy.Allow, g)
	}
	return b
}

func (b *UnifiedPolicyBuilder) AllowMCPServer(serverIDs ...string) *UnifiedPolicyBuilder {
	for _, id := range serverIDs {
		b.policy.Allow = append(b.policy.Allow, "mcp:"+id+".*")
	}
	return b
}

func (b *UnifiedPolicyBuilder) AllowMCPTool(serverID, toolName string) *UnifiedPolicyBuilder {
	b.policy.Allow = append(b.policy.Allow, "mcp:"+serverID+"."+toolName)
	return b
}

func (b *UnifiedPolicyBuilder) AllowAllMCP() *UnifiedPolicyBuilder {
	b.policy.Allow = append(b.policy.Allow, "mcp:*")
	return b
}

func (b *UnifiedPolicyBuilder) DenyNative(tools ...string) *UnifiedPolicyBuilder {
	for _, t := range tools {
		b.policy.Deny = append(b.policy.Deny, NormalizeTool(t))
	}
	return b
}

func (b *UnifiedPolicyBuilder) DenyMCPServer(serverIDs ...string) *UnifiedPolicyBuilder {
	for _, id := range serverIDs {
		b.policy.Deny = append(b.policy.Deny, "mcp:"+id+".*")
	}
	return b
}

func (b *UnifiedPolicyBuilder) DenyMCPTool(serverID, toolName string) *UnifiedPolicyBuilder {
	b.policy.Deny = append(b.policy.Deny, "mcp:"+serverID+"."+toolName)
	return b
}

func (b *UnifiedPolicyBuilder) WithMCPServerPolicy(serverID string, p *Policy) *UnifiedPolicyBuilder {
	if b.policy.ByProvider == nil {
		b.policy.ByProvider = make(map[string]*Policy)
	}
	b.policy.ByProvider["mcp:"+serverID] = p
	return b
}

func (b *UnifiedPolicyBuilder) WithNativePolicy(p *Policy) *UnifiedPolicyBuilder {
	if b.policy.ByProvider == nil {
		b.policy.ByProvider = make(map[string]*Policy)
	}
	b.policy.ByProvider["agime"] = p
	return b
}

func (b *UnifiedPolicyBuilder) Build() *Policy {
	return b.policy
}

// IsMCPTool reports whether toolName refers to an MCP tool.
func IsMCPTool(toolName string) bool {
	normalized := strings.ToLower(strings.TrimSpace(toolName))
	return strings.HasPrefix(normalized, "mcp:") || strings.HasPrefix(normalized, "mcp.")
}

// ParseMCPToolName splits an MCP tool reference into server id and tool
// name, returning empty strings if toolName is not an MCP tool.
func ParseMCPToolName(toolName string) (serverID, tool string) {
	normalized := strings.ToLower(strings.TrimSpace(toolName))

	var trimmed string
	switch {
	case strings.HasPrefix(normalized, "mcp:"):
		trimmed = strings.TrimPrefix(normalized, "mcp:")
	case strings.HasPrefix(normalized, "mcp."):
		trimmed = strings.TrimPrefix(normalized, "mcp.")
	default:
		return "", ""
	}

	parts := strings.SplitN(trimmed, ".", 2)
	if len(parts) < 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
