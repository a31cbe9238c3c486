package age

import (
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/execengine"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/pkg/models"
)

// scriptedProvider answers differently depending on the system prompt, so a
// single provider can stand in for the plan, leaf-execution, classification,
// and final-summary side-channel calls a mission run makes.
type scriptedProvider struct {
	planJSON     string
	classifyJSON string
}

func (p *scriptedProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	ch := make(chan *agent.CompletionChunk, 1)
	var text string
	switch {
	case strings.Contains(req.System, "decompose"):
		text = p.planJSON
	case strings.Contains(req.System, "Classify"):
		text = p.classifyJSON
	case strings.Contains(req.System, "summary"):
		text = "mission complete"
	default:
		text = "leaf output"
	}
	ch <- &agent.CompletionChunk{Text: text, Done: true}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Name() string          { return "scripted" }
func (p *scriptedProvider) Models() []agent.Model { return nil }
func (p *scriptedProvider) SupportsTools() bool    { return false }

func newTestEngine(t *testing.T, provider *scriptedProvider) (*Engine, execengine.MissionStore, *sessions.MemoryStore) {
	t.Helper()
	sessionStore := sessions.NewMemoryStore()
	runtime := agent.NewRuntime(provider, sessionStore)
	missions := execengine.NewMemoryMissionStore()
	pipeline := execengine.NewPipeline(runtime, sessionStore, execengine.NewMemoryTaskStore(), missions, execengine.NewMemoryAgentStore())
	engine := NewEngine(missions, pipeline, pipeline.MissionManager, provider, "")
	return engine, missions, sessionStore
}

const singleLeafPlan = "```json\n[{\"title\":\"do it\",\"description\":\"do the thing\",\"success_criteria\":\"it is done\"}]\n```"

func TestPlan_ParsesFencedJSONIntoFlatTree(t *testing.T) {
	provider := &scriptedProvider{planJSON: singleLeafPlan}
	engine, missions, store := newTestEngine(t, provider)
	ctx := context.Background()

	session := &models.Session{AgentID: "agent-1"}
	_ = store.Create(ctx, session)

	mission := &models.Mission{AgentID: "agent-1", Goal: "ship it", ExecutionMode: models.ExecutionAdaptive, Approval: models.ApprovalAuto}
	if err := missions.Create(ctx, mission); err != nil {
		t.Fatalf("create mission: %v", err)
	}

	if err := engine.Plan(ctx, mission.ID); err != nil {
		t.Fatalf("Plan: %v", err)
	}

	final, err := missions.Get(ctx, mission.ID)
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if len(final.GoalTree) != 1 {
		t.Fatalf("expected a single leaf goal, got %d", len(final.GoalTree))
	}
	if final.Status != models.MissionPlanned {
		t.Fatalf("expected mission to be planned, got %q", final.Status)
	}
}

func TestRun_SingleLeafAdvancingCompletesMission(t *testing.T) {
	provider := &scriptedProvider{
		planJSON:     singleLeafPlan,
		classifyJSON: "```json\n{\"progress\":\"advancing\",\"learnings\":\"went well\"}\n```",
	}
	engine, missions, store := newTestEngine(t, provider)
	ctx := context.Background()

	session := &models.Session{AgentID: "agent-1"}
	_ = store.Create(ctx, session)

	mission := &models.Mission{AgentID: "agent-1", Goal: "ship it", ExecutionMode: models.ExecutionAdaptive, Approval: models.ApprovalAuto}
	if err := missions.Create(ctx, mission); err != nil {
		t.Fatalf("create mission: %v", err)
	}
	if err := engine.Plan(ctx, mission.ID); err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if err := engine.Run(ctx, mission.ID, session.ID, "agent-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final, err := missions.Get(ctx, mission.ID)
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if final.Status != models.MissionCompleted {
		t.Fatalf("expected mission completed, got %q", final.Status)
	}
	if final.GoalTree[0].Status != models.GoalCompleted {
		t.Fatalf("expected goal completed, got %q", final.GoalTree[0].Status)
	}
}

func TestRun_StalledLeafAbandonsAfterBudget(t *testing.T) {
	provider := &scriptedProvider{
		planJSON:     singleLeafPlan,
		classifyJSON: "```json\n{\"progress\":\"stalled\",\"learnings\":\"no progress\"}\n```",
	}
	engine, missions, store := newTestEngine(t, provider)
	ctx := context.Background()

	session := &models.Session{AgentID: "agent-1"}
	_ = store.Create(ctx, session)

	mission := &models.Mission{AgentID: "agent-1", Goal: "ship it", ExecutionMode: models.ExecutionAdaptive, Approval: models.ApprovalAuto}
	if err := missions.Create(ctx, mission); err != nil {
		t.Fatalf("create mission: %v", err)
	}
	if err := engine.Plan(ctx, mission.ID); err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if err := engine.Run(ctx, mission.ID, session.ID, "agent-1"); err == nil {
		t.Fatal("expected Run to return an error for an abandoned root goal")
	}

	final, err := missions.Get(ctx, mission.ID)
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if final.Status != models.MissionFailed {
		t.Fatalf("expected mission failed, got %q", final.Status)
	}
	if final.GoalTree[0].Status != models.GoalAbandoned {
		t.Fatalf("expected goal abandoned, got %q", final.GoalTree[0].Status)
	}
	if final.TotalAbandoned != 1 {
		t.Fatalf("expected total_abandoned=1, got %d", final.TotalAbandoned)
	}
	if len(final.GoalTree[0].Attempts) != models.DefaultExplorationBudget {
		t.Fatalf("expected %d attempts, got %d", models.DefaultExplorationBudget, len(final.GoalTree[0].Attempts))
	}
}
