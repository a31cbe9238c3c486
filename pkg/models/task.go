package models

import "time"

// AgentTaskType identifies the kind of work an AgentTask carries.
type AgentTaskType string

const (
	AgentTaskChat   AgentTaskType = "chat"
	AgentTaskRecipe AgentTaskType = "recipe"
	AgentTaskSkill  AgentTaskType = "skill"
)

// AgentTaskStatus is a node in the task lifecycle graph:
// pending -> {approved, rejected}; approved -> {running, cancelled};
// running -> {completed, failed, cancelled}.
type AgentTaskStatus string

const (
	AgentTaskPending   AgentTaskStatus = "pending"
	AgentTaskApproved  AgentTaskStatus = "approved"
	AgentTaskRejected  AgentTaskStatus = "rejected"
	AgentTaskRunning   AgentTaskStatus = "running"
	AgentTaskCompleted AgentTaskStatus = "completed"
	AgentTaskFailed    AgentTaskStatus = "failed"
	AgentTaskCancelled AgentTaskStatus = "cancelled"
)

// validTaskTransitions encodes the directed transition graph from spec §3.
var validTaskTransitions = map[AgentTaskStatus]map[AgentTaskStatus]bool{
	AgentTaskPending:  {AgentTaskApproved: true, AgentTaskRejected: true},
	AgentTaskApproved: {AgentTaskRunning: true, AgentTaskCancelled: true},
	AgentTaskRunning:  {AgentTaskCompleted: true, AgentTaskFailed: true, AgentTaskCancelled: true},
}

// CanTransition reports whether moving from s to next is legal.
func (s AgentTaskStatus) CanTransition(next AgentTaskStatus) bool {
	allowed, ok := validTaskTransitions[s]
	return ok && allowed[next]
}

// IsTerminal reports whether the status admits no further transitions.
func (s AgentTaskStatus) IsTerminal() bool {
	switch s {
	case AgentTaskCompleted, AgentTaskFailed, AgentTaskRejected, AgentTaskCancelled:
		return true
	default:
		return false
	}
}

// AgentTask is a unit of approved, executable work: a chat turn, a recipe
// run, or a skill invocation, gated by an approval workflow.
type AgentTask struct {
	ID           string          `json:"id"`
	TeamID       string          `json:"team_id"`
	AgentID      string          `json:"agent_id"`
	SubmitterID  string          `json:"submitter_id"`
	ApproverID   string          `json:"approver_id,omitempty"`
	TaskType     AgentTaskType   `json:"task_type"`
	Content      string          `json:"content"` // opaque JSON
	Status       AgentTaskStatus `json:"status"`
	Priority     int             `json:"priority"`
	ErrorMessage string          `json:"error_message,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// SessionID is the session this task's execution is bound to. For the
	// bridge pattern this is set to the outer chat/mission session.
	SessionID string `json:"session_id,omitempty"`

	// Temp marks a task row created only to bridge a chat or mission
	// message into the task executor; it is deleted once the bridge
	// completes.
	Temp bool `json:"temp,omitempty"`

	IsDeleted bool      `json:"is_deleted,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition moves the task to next if legal, stamping timestamps, and
// returns an error describing the illegal edge otherwise. Callers hold the
// per-task lock (via the owning manager) around this call.
func (t *AgentTask) Transition(next AgentTaskStatus, now time.Time) error {
	if !t.Status.CanTransition(next) {
		return &IllegalTransitionError{Entity: "agent_task", From: string(t.Status), To: string(next)}
	}
	t.Status = next
	t.UpdatedAt = now
	switch next {
	case AgentTaskApproved, AgentTaskRejected:
		t.ApprovedAt = &now
	case AgentTaskRunning:
		t.StartedAt = &now
	case AgentTaskCompleted, AgentTaskFailed, AgentTaskCancelled:
		t.CompletedAt = &now
	}
	return nil
}

// IllegalTransitionError reports an attempted state transition outside the
// entity's allowed transition graph.
type IllegalTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *IllegalTransitionError) Error() string {
	return e.Entity + ": illegal transition " + e.From + " -> " + e.To
}

// AgentTaskResult is the immutable, terminal output of a completed task.
type AgentTaskResult struct {
	TaskID     string    `json:"task_id"`
	Status     string    `json:"status"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	TokensUsed int64     `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
}
