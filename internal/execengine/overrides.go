package execengine

import "github.com/haasonsaas/nexus/pkg/models"

// alwaysOnExtensions are non-selectable and excluded from the default set
// used for override reconciliation; they are always active and never show
// up as a disable/enable delta.
var alwaysOnExtensions = map[string]bool{
	"core": true,
}

// defaultExtensionSet computes an agent's default-enabled extension names:
// its builtin extensions plus its custom extension names, minus always-on
// extensions, with "skills" substituted by "team_skills" when the agent has
// any allowed skill ids (spec §4.4 "skills -> team_skills substitution").
func defaultExtensionSet(agent *models.Agent) map[string]bool {
	set := make(map[string]bool)
	for _, name := range agent.BuiltinExtensions {
		if alwaysOnExtensions[name] {
			continue
		}
		if name == "skills" && len(agent.AllowedSkillIDs) > 0 {
			set["team_skills"] = true
			continue
		}
		set[name] = true
	}
	for _, custom := range agent.CustomExtensions {
		if custom.Name == "" || alwaysOnExtensions[custom.Name] {
			continue
		}
		set[custom.Name] = true
	}
	return set
}

// ReconcileOverrides diffs the extension names actually active during one
// execution against an agent's defaults, per spec §4.4. The returned
// `disabled` set is default names the run never touched; `enabled` is
// active names outside the defaults.
func ReconcileOverrides(agent *models.Agent, activeNames []string) (disabled, enabled []string) {
	defaults := defaultExtensionSet(agent)
	active := make(map[string]bool, len(activeNames))
	for _, name := range activeNames {
		if alwaysOnExtensions[name] {
			continue
		}
		active[name] = true
	}

	for name := range defaults {
		if !active[name] {
			disabled = append(disabled, name)
		}
	}
	for name := range active {
		if !defaults[name] {
			enabled = append(enabled, name)
		}
	}
	return disabled, enabled
}

// ApplyOverrides writes a reconciliation result back onto the session, per
// the spec's "stateful per session" rule: a disable or enable persists
// until the user reverses it or a new session starts, so this replaces the
// session's stored lists outright rather than merging with prior state.
func ApplyOverrides(session *models.Session, disabled, enabled []string) {
	session.DisabledExtensions = disabled
	session.EnabledExtensions = enabled
}

// activeExtensionNames extracts the distinct tool/extension names invoked
// during a run from its tool.started events, addressing MCP subprocess
// extensions by their MCP tool name (spec §4.4 "MCP subprocess extensions
// addressed by their MCP name").
func activeExtensionNames(events []models.AgentEvent) []string {
	seen := make(map[string]bool)
	var names []string
	for _, ev := range events {
		if ev.Type != models.AgentEventToolStarted || ev.Tool == nil || ev.Tool.Name == "" {
			continue
		}
		if seen[ev.Tool.Name] {
			continue
		}
		seen[ev.Tool.Name] = true
		names = append(names, ev.Tool.Name)
	}
	return names
}
