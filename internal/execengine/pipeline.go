package execengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/backoff"
	"github.com/haasonsaas/nexus/internal/compaction"
	"github.com/haasonsaas/nexus/internal/engerrors"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/pkg/models"
)

// TaskStore persists AgentTask rows for the task execution path (spec §3
// "AgentTask", §4.1).
type TaskStore interface {
	Create(ctx context.Context, task *models.AgentTask) error
	Get(ctx context.Context, id string) (*models.AgentTask, error)
	Update(ctx context.Context, task *models.AgentTask) error
	Delete(ctx context.Context, id string) error
}

// isProcessingCleanupPolicy is the fixed 500ms, three-attempt retry the
// spec requires for clearing a session's is_processing gate on every exit
// path (§4.1 "execute_chat").
var isProcessingCleanupPolicy = backoff.BackoffPolicy{InitialMs: 500, MaxMs: 500, Factor: 1, Jitter: 0}

// Pipeline drives one task, chat, or mission execution through the
// per-turn agentic loop, registering it with the appropriate Manager for
// broadcast and replay and enforcing the spec's failure and cleanup
// semantics around internal/agent.Runtime's turn loop.
type Pipeline struct {
	Runtime  *agent.Runtime
	Sessions sessions.Store
	Tasks    TaskStore
	Missions MissionStore
	Agents   AgentStore

	TaskManager    *Manager
	ChatManager    *Manager
	MissionManager *Manager
}

// NewPipeline wires a Pipeline from its collaborators. TaskManager allows
// concurrent registrations (task ids are unique per task); ChatManager is
// Exclusive to enforce the single-active-execution-per-session invariant;
// MissionManager allows concurrent registration like TaskManager. Agents
// may be nil, in which case override reconciliation (§4.4) is skipped.
func NewPipeline(runtime *agent.Runtime, sessionStore sessions.Store, tasks TaskStore, missions MissionStore, agents AgentStore) *Pipeline {
	return &Pipeline{
		Runtime:        runtime,
		Sessions:       sessionStore,
		Tasks:          tasks,
		Missions:       missions,
		Agents:         agents,
		TaskManager:    NewManager("task", AllowConcurrent, nil),
		ChatManager:    NewManager("chat", Exclusive, nil),
		MissionManager: NewManager("mission", AllowConcurrent, nil),
	}
}

// ExecuteTask runs an approved AgentTask end to end (spec §4.1
// "execute_task"): transitions it to running on entry, completed or
// failed on exit, and drives the turn loop against the task's bound
// session.
func (p *Pipeline) ExecuteTask(ctx context.Context, taskID string) error {
	task, err := p.Tasks.Get(ctx, taskID)
	if err != nil {
		return engerrors.Wrap(engerrors.Internal, "load task", err)
	}
	if task == nil {
		return engerrors.New(engerrors.NotFound, "task not found: "+taskID)
	}
	if task.Status != models.AgentTaskApproved {
		return engerrors.New(engerrors.Validation, "task is not approved: "+taskID)
	}

	ctx, cancel := context.WithCancel(ctx)
	ae, ok := p.TaskManager.Register(taskID, func(string) { cancel() })
	if !ok {
		return engerrors.New(engerrors.Conflict, "task already executing: "+taskID)
	}
	defer cancel()
	_ = ae

	now := time.Now()
	if err := task.Transition(models.AgentTaskRunning, now); err != nil {
		p.TaskManager.Unregister(taskID)
		return engerrors.Wrap(engerrors.Internal, "transition task to running", err)
	}
	if err := p.Tasks.Update(ctx, task); err != nil {
		p.TaskManager.Unregister(taskID)
		return engerrors.Wrap(engerrors.Internal, "persist task transition", err)
	}

	session, err := p.Sessions.Get(ctx, task.SessionID)
	if err != nil || session == nil {
		p.TaskManager.Broadcast(taskID, doneEvent(taskID, "failed", "session not found"))
		p.TaskManager.Complete(taskID)
		return p.failTask(ctx, task, "session not found")
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   task.Content,
		CreatedAt: now,
	}

	status, errMsg := p.runStreamed(ctx, taskID, p.TaskManager, session, msg)
	p.TaskManager.Complete(taskID)

	if status != "completed" {
		return p.failTask(ctx, task, errMsg)
	}
	if err := task.Transition(models.AgentTaskCompleted, time.Now()); err != nil {
		return engerrors.Wrap(engerrors.Internal, "transition task to completed", err)
	}
	return p.Tasks.Update(ctx, task)
}

func (p *Pipeline) failTask(ctx context.Context, task *models.AgentTask, reason string) error {
	task.ErrorMessage = reason
	if err := task.Transition(models.AgentTaskFailed, time.Now()); err != nil {
		return engerrors.Wrap(engerrors.Internal, "transition task to failed", err)
	}
	if err := p.Tasks.Update(ctx, task); err != nil {
		return engerrors.Wrap(engerrors.Internal, "persist task failure", err)
	}
	return engerrors.New(engerrors.PermanentUpstream, reason)
}

// ExecuteChat runs one chat turn against a persistent session, bypassing
// the approval workflow (spec §4.1 "execute_chat"). It guarantees the
// session's is_processing gate is cleared and a terminal Done event is
// broadcast on every exit path, including a panic in the inner routine.
func (p *Pipeline) ExecuteChat(ctx context.Context, sessionID, agentID string, userMsg *models.Message) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	_, ok := p.ChatManager.Register(sessionID, func(string) { cancel() })
	if !ok {
		cancel()
		return engerrors.New(engerrors.Conflict, "session already active: "+sessionID)
	}

	session, loadErr := p.Sessions.Get(ctx, sessionID)
	if loadErr != nil || session == nil {
		cancel()
		p.ChatManager.Complete(sessionID)
		return engerrors.Wrap(engerrors.NotFound, "session not found: "+sessionID, loadErr)
	}
	if session.IsProcessing {
		cancel()
		p.ChatManager.Complete(sessionID)
		return engerrors.New(engerrors.Conflict, "session already processing: "+sessionID)
	}

	session.IsProcessing = true
	if updErr := p.Sessions.Update(ctx, session); updErr != nil {
		cancel()
		p.ChatManager.Complete(sessionID)
		return engerrors.Wrap(engerrors.Internal, "set is_processing", updErr)
	}

	status := "failed"
	errMsg := "cancelled"

	defer func() {
		if r := recover(); r != nil {
			errMsg = fmt.Sprintf("panic: %v", r)
			status = "failed"
		}
		p.clearIsProcessing(sessionID)
		p.ChatManager.Broadcast(sessionID, doneEvent(sessionID, status, errMsg))
		p.ChatManager.Complete(sessionID)
		cancel()
		if status != "completed" && err == nil {
			err = engerrors.New(engerrors.Internal, errMsg)
		}
	}()

	status, errMsg = p.runStreamed(ctx, sessionID, p.ChatManager, session, userMsg)
	if status == "completed" {
		return nil
	}
	return engerrors.New(engerrors.Internal, errMsg)
}

// clearIsProcessing clears a session's is_processing flag, retrying the
// persistence write up to three times with a fixed 500ms backoff (spec
// §4.1 "the cleanup retries the is_processing = false update up to three
// times with 500ms backoff").
func (p *Pipeline) clearIsProcessing(sessionID string) error {
	return backoff.RetrySimple(context.Background(), 3, func() error {
		session, err := p.Sessions.Get(context.Background(), sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return nil
		}
		session.IsProcessing = false
		return p.Sessions.Update(context.Background(), session)
	})
}

// ExecuteMission drives a mission's sequential-mode step list through the
// bridge pattern, one temp task per step (spec §4.1 "execute_mission").
// Adaptive-mode missions are driven by internal/age instead; callers
// should not invoke ExecuteMission for a mission whose ExecutionMode is
// ExecutionAdaptive.
func (p *Pipeline) ExecuteMission(ctx context.Context, missionID, sessionID, agentID string) error {
	mission, err := p.Missions.Get(ctx, missionID)
	if err != nil {
		return engerrors.Wrap(engerrors.Internal, "load mission", err)
	}
	if mission == nil {
		return engerrors.New(engerrors.NotFound, "mission not found: "+missionID)
	}
	if mission.ExecutionMode == models.ExecutionAdaptive {
		return engerrors.New(engerrors.Validation, "adaptive missions are driven by internal/age, not ExecuteMission")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	_, ok := p.MissionManager.Register(mission.ID, func(string) { cancel() })
	if !ok {
		return engerrors.New(engerrors.Conflict, "mission already executing: "+mission.ID)
	}
	defer p.MissionManager.Complete(mission.ID)

	mission.Status = models.MissionRunning
	for i := range mission.Steps {
		step := &mission.Steps[i]
		if step.Status == models.StepCompleted {
			continue
		}
		if ctx.Err() != nil {
			mission.Status = models.MissionCancelled
			_ = p.Missions.Update(context.Background(), mission)
			return engerrors.New(engerrors.Cancelled, "mission cancelled")
		}
		if step.IsCheckpoint && mission.Approval != models.ApprovalAuto {
			step.Status = models.StepAwaitingApproval
			p.MissionManager.Broadcast(mission.ID, stepAwaitingApprovalEvent(mission.ID, step.Index))
			_ = p.Missions.Update(ctx, mission)
			return engerrors.New(engerrors.Conflict, "mission paused for checkpoint approval")
		}

		step.Status = models.StepRunning
		index := step.Index
		if err := p.bridge(ctx, mission.ID, p.MissionManager, sessionID, agentID, step.Description, &index); err != nil {
			step.Status = models.StepFailed
			mission.Status = models.MissionFailed
			mission.FailureReason = err.Error()
			_ = p.Missions.Update(ctx, mission)
			return err
		}
		step.Status = models.StepCompleted
		current := i
		mission.CurrentStep = &current

		if mission.TokensOverBudget() {
			mission.Status = models.MissionFailed
			mission.FailureReason = "budget_exhausted"
			_ = p.Missions.Update(ctx, mission)
			return engerrors.New(engerrors.Conflict, "budget_exhausted")
		}
		if err := p.Missions.Update(ctx, mission); err != nil {
			return engerrors.Wrap(engerrors.Internal, "persist mission step progress", err)
		}
	}

	mission.Status = models.MissionCompleted
	return p.Missions.Update(ctx, mission)
}

// RunSubExecution runs one unit of content as a temp task bridged under
// outerManager/outerID, for callers outside this package that need the same
// bridge pattern (notably internal/age, which runs each AGE goal-tree leaf
// as a sub-execution per spec §4.6). It returns the last assistant message
// appended to the session by the sub-execution, for the caller to classify.
func (p *Pipeline) RunSubExecution(ctx context.Context, outerID string, outerManager *Manager, sessionID, agentID, content string, turnIndex *int) (output string, err error) {
	if err := p.bridge(ctx, outerID, outerManager, sessionID, agentID, content, turnIndex); err != nil {
		return "", err
	}
	history, histErr := p.Sessions.GetHistory(ctx, sessionID, 1)
	if histErr != nil || len(history) == 0 {
		return "", nil
	}
	return history[0].Content, nil
}

// bridge implements the chat/mission bridge pattern (spec §4.1 "Bridge
// pattern"): create a temp AgentTask, approve it, register it under the
// inner TaskManager, forward every non-Done event to the outer manager
// under the outer execution id, and delete the temp task once the bridge
// completes.
func (p *Pipeline) bridge(ctx context.Context, outerID string, outerManager *Manager, sessionID, agentID, content string, stepIndex *int) error {
	temp := &models.AgentTask{
		ID:          uuid.NewString(),
		AgentID:     agentID,
		TaskType:    models.AgentTaskChat,
		Content:     content,
		Status:      models.AgentTaskPending,
		SessionID:   sessionID,
		Temp:        true,
		SubmittedAt: time.Now(),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := p.Tasks.Create(ctx, temp); err != nil {
		return engerrors.Wrap(engerrors.Internal, "create bridge task", err)
	}
	defer func() { _ = p.Tasks.Delete(context.Background(), temp.ID) }()

	if err := temp.Transition(models.AgentTaskApproved, time.Now()); err != nil {
		return engerrors.Wrap(engerrors.Internal, "approve bridge task", err)
	}
	if err := p.Tasks.Update(ctx, temp); err != nil {
		return engerrors.Wrap(engerrors.Internal, "persist bridge task approval", err)
	}

	innerCtx, innerCancel := context.WithCancel(ctx)
	defer innerCancel()

	sub, ok := p.TaskManager.SubscribeWithHistory(temp.ID, 0)
	forward := make(chan struct{})
	if ok {
		go func() {
			defer close(forward)
			for se := range sub.Events {
				if se.Event.Type == models.AgentEventDone {
					continue
				}
				ev := se.Event
				if stepIndex != nil {
					ev.TurnIndex = *stepIndex
				}
				outerManager.Broadcast(outerID, ev)
			}
		}()
	} else {
		close(forward)
	}

	go func() {
		<-ctx.Done()
		innerCancel()
	}()

	err := p.ExecuteTask(innerCtx, temp.ID)
	if ok {
		sub.Close()
		<-forward
	}
	return err
}

// runStreamed drives one turn loop via Runtime.ProcessStream, forwarding
// every event to manager's broadcast for executionID, synthesizing the
// spec's Turn and terminal Done variants from the teacher's run-lifecycle
// events, and classifying the terminal status.
func (p *Pipeline) runStreamed(ctx context.Context, executionID string, manager *Manager, session *models.Session, msg *models.Message) (status, errMsg string) {
	manager.Broadcast(executionID, sessionIDEvent(executionID, session.ID))

	if ev := p.maybeCompact(ctx, session); ev != nil {
		manager.Broadcast(executionID, *ev)
	}

	events, err := p.Runtime.ProcessStream(ctx, session, msg)
	if err != nil {
		return "failed", engerrors.Classify(err).Error()
	}

	status = "failed"
	errMsg = "no terminal event observed"
	var seen []models.AgentEvent

	for ev := range events {
		manager.Broadcast(executionID, ev)
		seen = append(seen, ev)

		switch ev.Type {
		case models.AgentEventIterStarted:
			manager.Broadcast(executionID, turnEvent(executionID, ev.IterIndex+1, session.MaxTurns))
		case models.AgentEventRunFinished:
			status, errMsg = "completed", ""
		case models.AgentEventRunError:
			status = "failed"
			if ev.Error != nil {
				errMsg = ev.Error.Message
			} else {
				errMsg = "run error"
			}
		case models.AgentEventRunCancelled:
			status, errMsg = "failed", "cancelled"
		case models.AgentEventRunTimedOut:
			status, errMsg = "failed", "wall time exceeded"
		}
	}

	if ctx.Err() != nil && status != "completed" {
		status, errMsg = "failed", "cancelled"
	}

	p.reconcileOverrides(ctx, session, seen)
	return status, errMsg
}

// compactionContextWindow is the fallback context window size used when a
// session carries no explicit context_window metadata.
const compactionContextWindow = 100000

// maybeCompact checks whether session's history has crossed the
// compaction trigger threshold and, if so, runs the named compaction
// strategy and persists the result (spec §4.3). It returns the
// Compaction stream event to broadcast, or nil if compaction did not run.
func (p *Pipeline) maybeCompact(ctx context.Context, session *models.Session) *models.AgentEvent {
	history, err := p.Sessions.GetHistory(ctx, session.ID, 0)
	if err != nil || len(history) == 0 {
		return nil
	}

	contextWindow := compactionContextWindow
	if cw, ok := session.Metadata["context_window"].(float64); ok && cw > 0 {
		contextWindow = int(cw)
	}

	if !compaction.ShouldCompact(history, contextWindow) {
		return nil
	}

	var extraInstructions string
	if v, ok := session.Metadata["extra_instructions"].(string); ok {
		extraInstructions = v
	}

	model := p.Runtime.DefaultModel()
	result, err := compaction.Run(ctx, p.Runtime.Provider(), model, history, extraInstructions, contextWindow)
	if err != nil {
		return nil
	}

	if err := p.Sessions.ReplaceHistory(ctx, session.ID, result.Messages); err != nil {
		return nil
	}

	session.CompactionCount++
	session.CompactionStrategy = result.Strategy
	_ = p.Sessions.Update(ctx, session)

	ev := models.AgentEvent{
		Version: 1,
		Type:    models.AgentEventCompactionEvent,
		Time:    time.Now(),
		RunID:   session.ID,
		Compaction: &models.CompactionEventPayload{
			Strategy:     result.Strategy,
			BeforeTokens: result.BeforeTokens,
			AfterTokens:  result.AfterTokens,
		},
	}
	return &ev
}

// reconcileOverrides persists the per-session extension override deltas
// computed from one execution's tool invocations against the agent's
// defaults (spec §4.1 step 8, §4.4). A missing Agents store or unknown
// agent id is a no-op, not an error: override tracking is best-effort.
func (p *Pipeline) reconcileOverrides(ctx context.Context, session *models.Session, events []models.AgentEvent) {
	if p.Agents == nil {
		return
	}
	agentCfg, err := p.Agents.Get(ctx, session.AgentID)
	if err != nil || agentCfg == nil {
		return
	}
	disabled, enabled := ReconcileOverrides(agentCfg, activeExtensionNames(events))
	ApplyOverrides(session, disabled, enabled)
	_ = p.Sessions.Update(ctx, session)
}

func doneEvent(executionID, status, errMsg string) models.AgentEvent {
	ev := models.AgentEvent{
		Version: 1,
		Type:    models.AgentEventDone,
		Time:    time.Now(),
		RunID:   executionID,
		Done:    &models.DonePayload{Status: status},
	}
	if errMsg != "" {
		ev.Done.Error = errMsg
	}
	return ev
}

func sessionIDEvent(executionID, sessionID string) models.AgentEvent {
	return models.AgentEvent{
		Version:    1,
		Type:       models.AgentEventSessionID,
		Time:       time.Now(),
		RunID:      executionID,
		SessionRef: &models.SessionIDPayload{SessionID: sessionID},
	}
}

func turnEvent(executionID string, current, max int) models.AgentEvent {
	return models.AgentEvent{
		Version:  1,
		Type:     models.AgentEventTurn,
		Time:     time.Now(),
		RunID:    executionID,
		TurnInfo: &models.TurnPayload{Current: current, Max: max},
	}
}

func stepAwaitingApprovalEvent(missionID string, stepIndex int) models.AgentEvent {
	return models.AgentEvent{
		Version:    1,
		Type:       models.AgentEventStatus,
		Time:       time.Now(),
		RunID:      missionID,
		TurnIndex:  stepIndex,
		StatusInfo: &models.StatusPayload{Status: "awaiting_approval"},
	}
}

// ErrSessionBusy is returned by callers that probe session availability
// before invoking ExecuteChat.
var ErrSessionBusy = errors.New("session already processing")
