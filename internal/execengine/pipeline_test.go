package execengine

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/pkg/models"
)

type stubProvider struct{}

func (stubProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	ch := make(chan *agent.CompletionChunk, 1)
	ch <- &agent.CompletionChunk{Text: "hello", Done: true}
	close(ch)
	return ch, nil
}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Models() []agent.Model { return nil }

func (stubProvider) SupportsTools() bool { return false }

func newTestPipeline(t *testing.T) (*Pipeline, *sessions.MemoryStore) {
	t.Helper()
	sessionStore := sessions.NewMemoryStore()
	runtime := agent.NewRuntime(stubProvider{}, sessionStore)
	return NewPipeline(runtime, sessionStore, NewMemoryTaskStore(), NewMemoryMissionStore(), NewMemoryAgentStore()), sessionStore
}

func TestExecuteChat_ClearsIsProcessingAndEmitsDone(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	session := &models.Session{AgentID: "agent-1"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	msg := &models.Message{ID: "m1", SessionID: session.ID, Role: models.RoleUser, Content: "hi"}

	if err := p.ExecuteChat(ctx, session.ID, session.AgentID, msg); err != nil {
		t.Fatalf("ExecuteChat: %v", err)
	}

	updated, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if updated.IsProcessing {
		t.Fatal("expected is_processing to be cleared after execution")
	}
	if p.ChatManager.IsActive(session.ID) {
		t.Fatal("expected chat manager entry to be removed on completion")
	}
}

func TestExecuteChat_RejectsConcurrentRegistration(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	session := &models.Session{AgentID: "agent-1"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, ok := p.ChatManager.Register(session.ID, func(string) {}); !ok {
		t.Fatal("expected first registration to succeed")
	}

	msg := &models.Message{ID: "m1", SessionID: session.ID, Role: models.RoleUser, Content: "hi"}
	err := p.ExecuteChat(ctx, session.ID, session.AgentID, msg)
	if err == nil {
		t.Fatal("expected ExecuteChat to reject a session already registered")
	}
}

func TestExecuteTask_RequiresApprovedStatus(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	session := &models.Session{AgentID: "agent-1"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	task := &models.AgentTask{
		AgentID:     "agent-1",
		TaskType:    models.AgentTaskChat,
		Content:     "do the thing",
		Status:      models.AgentTaskPending,
		SessionID:   session.ID,
		SubmittedAt: time.Now(),
	}
	if err := p.Tasks.Create(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := p.ExecuteTask(ctx, task.ID); err == nil {
		t.Fatal("expected ExecuteTask to reject a task that is not approved")
	}
}

func TestExecuteTask_CompletesApprovedTask(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	session := &models.Session{AgentID: "agent-1"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	task := &models.AgentTask{
		AgentID:     "agent-1",
		TaskType:    models.AgentTaskChat,
		Content:     "do the thing",
		Status:      models.AgentTaskPending,
		SessionID:   session.ID,
		SubmittedAt: time.Now(),
	}
	if err := p.Tasks.Create(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := task.Transition(models.AgentTaskApproved, time.Now()); err != nil {
		t.Fatalf("approve task: %v", err)
	}
	if err := p.Tasks.Update(ctx, task); err != nil {
		t.Fatalf("persist approval: %v", err)
	}

	if err := p.ExecuteTask(ctx, task.ID); err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}

	final, err := p.Tasks.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if final.Status != models.AgentTaskCompleted {
		t.Fatalf("expected task to complete, got status %q", final.Status)
	}
}

func TestExecuteMission_RejectsAdaptiveMode(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	session := &models.Session{AgentID: "agent-1"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	mission := &models.Mission{
		AgentID:       "agent-1",
		Goal:          "ship the feature",
		Status:        models.MissionDraft,
		ExecutionMode: models.ExecutionAdaptive,
	}
	if err := p.Missions.Create(ctx, mission); err != nil {
		t.Fatalf("create mission: %v", err)
	}

	if err := p.ExecuteMission(ctx, mission.ID, session.ID, "agent-1"); err == nil {
		t.Fatal("expected ExecuteMission to reject adaptive execution mode")
	}
}

func TestExecuteMission_SequentialStepsComplete(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	session := &models.Session{AgentID: "agent-1"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	mission := &models.Mission{
		AgentID:       "agent-1",
		Goal:          "ship the feature",
		Status:        models.MissionDraft,
		ExecutionMode: models.ExecutionSequential,
		Approval:      models.ApprovalAuto,
		Steps: []models.MissionStep{
			{Index: 0, Title: "step one", Description: "do step one", Status: models.StepPending},
			{Index: 1, Title: "step two", Description: "do step two", Status: models.StepPending},
		},
	}
	if err := p.Missions.Create(ctx, mission); err != nil {
		t.Fatalf("create mission: %v", err)
	}

	if err := p.ExecuteMission(ctx, mission.ID, session.ID, "agent-1"); err != nil {
		t.Fatalf("ExecuteMission: %v", err)
	}

	final, err := p.Missions.Get(ctx, mission.ID)
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if final.Status != models.MissionCompleted {
		t.Fatalf("expected mission to complete, got status %q", final.Status)
	}
	for _, step := range final.Steps {
		if step.Status != models.StepCompleted {
			t.Fatalf("expected step %d to complete, got status %q", step.Index, step.Status)
		}
	}
}
