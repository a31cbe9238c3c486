package execengine

import (
	"sort"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestReconcileOverrides_DisabledAndEnabled(t *testing.T) {
	agentCfg := &models.Agent{
		ID:                "agent-1",
		BuiltinExtensions: []string{"developer", "browser", "skills"},
		AllowedSkillIDs:   []string{"skill-1"},
	}

	disabled, enabled := ReconcileOverrides(agentCfg, []string{"developer", "search"})

	sort.Strings(disabled)
	sort.Strings(enabled)

	if len(disabled) != 2 || disabled[0] != "browser" || disabled[1] != "team_skills" {
		t.Fatalf("unexpected disabled set: %v", disabled)
	}
	if len(enabled) != 1 || enabled[0] != "search" {
		t.Fatalf("unexpected enabled set: %v", enabled)
	}
}

func TestReconcileOverrides_AlwaysOnExcluded(t *testing.T) {
	agentCfg := &models.Agent{ID: "agent-1", BuiltinExtensions: []string{"core", "developer"}}

	disabled, enabled := ReconcileOverrides(agentCfg, []string{"core", "developer"})

	if len(disabled) != 0 || len(enabled) != 0 {
		t.Fatalf("expected no deltas, got disabled=%v enabled=%v", disabled, enabled)
	}
}

func TestApplyOverrides_ReplacesPriorState(t *testing.T) {
	session := &models.Session{DisabledExtensions: []string{"stale"}, EnabledExtensions: []string{"old"}}

	ApplyOverrides(session, []string{"browser"}, []string{"search"})

	if len(session.DisabledExtensions) != 1 || session.DisabledExtensions[0] != "browser" {
		t.Fatalf("expected disabled to be replaced, got %v", session.DisabledExtensions)
	}
	if len(session.EnabledExtensions) != 1 || session.EnabledExtensions[0] != "search" {
		t.Fatalf("expected enabled to be replaced, got %v", session.EnabledExtensions)
	}
}

func TestActiveExtensionNames_DedupesToolStarted(t *testing.T) {
	events := []models.AgentEvent{
		{Type: models.AgentEventToolStarted, Tool: &models.ToolEventPayload{Name: "developer"}},
		{Type: models.AgentEventToolStarted, Tool: &models.ToolEventPayload{Name: "developer"}},
		{Type: models.AgentEventToolFinished, Tool: &models.ToolEventPayload{Name: "developer"}},
		{Type: models.AgentEventToolStarted, Tool: &models.ToolEventPayload{Name: "search"}},
	}

	names := activeExtensionNames(events)
	if len(names) != 2 {
		t.Fatalf("expected 2 distinct names, got %v", names)
	}
}
