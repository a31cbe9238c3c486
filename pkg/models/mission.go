package models

import "time"

// MissionStatus is the top-level mission lifecycle state.
type MissionStatus string

const (
	MissionDraft     MissionStatus = "draft"
	MissionPlanning  MissionStatus = "planning"
	MissionPlanned   MissionStatus = "planned"
	MissionRunning   MissionStatus = "running"
	MissionPaused    MissionStatus = "paused"
	MissionCompleted MissionStatus = "completed"
	MissionFailed    MissionStatus = "failed"
	MissionCancelled MissionStatus = "cancelled"
)

// ApprovalPolicy controls how checkpoint steps/goals gate execution.
type ApprovalPolicy string

const (
	ApprovalAuto       ApprovalPolicy = "auto"
	ApprovalCheckpoint ApprovalPolicy = "checkpoint"
	ApprovalManual     ApprovalPolicy = "manual"
)

// ExecutionMode selects between a fixed step list and the AGE planner.
type ExecutionMode string

const (
	ExecutionSequential ExecutionMode = "sequential"
	ExecutionAdaptive   ExecutionMode = "adaptive"
)

// StepStatus is a mission step's lifecycle state:
// pending -> awaiting_approval? -> running -> {completed, failed}.
type StepStatus string

const (
	StepPending          StepStatus = "pending"
	StepAwaitingApproval StepStatus = "awaiting_approval"
	StepRunning          StepStatus = "running"
	StepCompleted        StepStatus = "completed"
	StepFailed           StepStatus = "failed"
)

// MissionStep is one unit of a sequential-mode mission plan.
type MissionStep struct {
	Index         int        `json:"index"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        StepStatus `json:"status"`
	IsCheckpoint  bool       `json:"is_checkpoint"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	OutputSummary string     `json:"output_summary,omitempty"`
	TokensUsed    int64      `json:"tokens_used"`
}

// Mission is a multi-step, potentially adaptive, goal-directed execution.
type Mission struct {
	ID          string         `json:"id"`
	TeamID      string         `json:"team_id"`
	AgentID     string         `json:"agent_id"`
	SessionID   string         `json:"session_id"`
	CreatorID   string         `json:"creator_id"`
	Goal        string         `json:"goal"`
	Context     string         `json:"context,omitempty"`
	Status      MissionStatus  `json:"status"`
	Approval    ApprovalPolicy `json:"approval_policy"`
	Steps       []MissionStep  `json:"steps,omitempty"`
	CurrentStep *int           `json:"current_step,omitempty"`

	GoalTree []GoalNode `json:"goal_tree,omitempty"`

	ExecutionMode    ExecutionMode `json:"execution_mode"`
	TokenBudget      int64         `json:"token_budget"`
	TotalTokensUsed  int64         `json:"total_tokens_used"`
	PlanVersion      int           `json:"plan_version"`
	FinalSummary     string        `json:"final_summary,omitempty"`
	TotalPivots      int           `json:"total_pivots"`
	TotalAbandoned   int           `json:"total_abandoned"`
	FailureReason    string        `json:"failure_reason,omitempty"`

	IsDeleted bool      `json:"is_deleted,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidCurrentStep reports whether CurrentStep, if set, indexes Steps.
func (m *Mission) ValidCurrentStep() bool {
	if m.CurrentStep == nil {
		return true
	}
	return *m.CurrentStep >= 0 && *m.CurrentStep < len(m.Steps)
}

// TokensOverBudget reports whether the accumulated step token usage has
// exceeded the mission's token budget.
func (m *Mission) TokensOverBudget() bool {
	if m.TokenBudget <= 0 {
		return false
	}
	var sum int64
	for _, s := range m.Steps {
		sum += s.TokensUsed
	}
	return sum > m.TokenBudget
}

// GoalStatus is a GoalNode's lifecycle state in the AGE tree.
type GoalStatus string

const (
	GoalPending          GoalStatus = "pending"
	GoalRunning          GoalStatus = "running"
	GoalAwaitingApproval GoalStatus = "awaiting_approval"
	GoalCompleted        GoalStatus = "completed"
	GoalPivoting         GoalStatus = "pivoting"
	GoalAbandoned        GoalStatus = "abandoned"
	GoalFailed           GoalStatus = "failed"
)

// ProgressSignal classifies the outcome of one goal attempt.
type ProgressSignal string

const (
	ProgressAdvancing ProgressSignal = "advancing"
	ProgressStalled   ProgressSignal = "stalled"
	ProgressBlocked   ProgressSignal = "blocked"
)

// GoalAttempt records one approach taken toward a goal.
type GoalAttempt struct {
	Approach   string         `json:"approach"`
	Progress   ProgressSignal `json:"progress"`
	Learnings  string         `json:"learnings,omitempty"`
	TokensUsed int64          `json:"tokens_used"`
}

// GoalNode is one node of the AGE goal tree, stored as a member of a flat
// slice with ParentID resolving child relationships (spec §9 design note:
// a flat vector avoids recursive structures for arbitrarily large trees).
type GoalNode struct {
	GoalID            string        `json:"goal_id"`
	ParentID          string        `json:"parent_id,omitempty"`
	Title             string        `json:"title"`
	Description       string        `json:"description,omitempty"`
	SuccessCriteria   string        `json:"success_criteria,omitempty"`
	Status            GoalStatus    `json:"status"`
	Depth             int           `json:"depth"`
	Order             int           `json:"order"`
	ExplorationBudget int           `json:"exploration_budget"`
	Attempts          []GoalAttempt `json:"attempts,omitempty"`
	OutputSummary     string        `json:"output_summary,omitempty"`
	PivotReason       string        `json:"pivot_reason,omitempty"`
	IsCheckpoint      bool          `json:"is_checkpoint"`
}

// DefaultExplorationBudget is the spec's default per-goal attempt budget.
const DefaultExplorationBudget = 3

// AtBudget reports whether the node has exhausted its exploration budget.
func (g *GoalNode) AtBudget() bool {
	budget := g.ExplorationBudget
	if budget <= 0 {
		budget = DefaultExplorationBudget
	}
	return len(g.Attempts) >= budget
}
