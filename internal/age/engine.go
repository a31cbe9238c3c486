package age

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/engerrors"
	"github.com/haasonsaas/nexus/internal/execengine"
	"github.com/haasonsaas/nexus/pkg/models"
)

// SubExecutor runs one goal leaf's content as a sub-execution and returns
// the resulting assistant output, matching execengine.Pipeline's
// RunSubExecution signature.
type SubExecutor interface {
	RunSubExecution(ctx context.Context, outerID string, outerManager *execengine.Manager, sessionID, agentID, content string, turnIndex *int) (string, error)
}

// Engine drives the AGE loop (spec §4.6) for missions whose execution_mode
// is "adaptive": plan once, then DFS the goal tree pivoting or abandoning
// stalled leaves until the root completes.
type Engine struct {
	Missions execengine.MissionStore
	Executor SubExecutor
	Manager  *execengine.Manager
	Deps     PlannerDeps
}

// NewEngine wires an AGE engine from its collaborators.
func NewEngine(missions execengine.MissionStore, executor SubExecutor, manager *execengine.Manager, provider agent.LLMProvider, model string) *Engine {
	return &Engine{
		Missions: missions,
		Executor: executor,
		Manager:  manager,
		Deps:     PlannerDeps{Provider: provider, Model: model},
	}
}

// Plan runs the planning step and persists the resulting goal tree on the
// mission (spec §4.6 step 1).
func (e *Engine) Plan(ctx context.Context, missionID string) error {
	mission, err := e.Missions.Get(ctx, missionID)
	if err != nil {
		return engerrors.Wrap(engerrors.Internal, "load mission", err)
	}
	if mission == nil {
		return engerrors.New(engerrors.NotFound, "mission not found: "+missionID)
	}
	if mission.ExecutionMode != models.ExecutionAdaptive {
		return engerrors.New(engerrors.Validation, "mission is not in adaptive execution mode")
	}

	tree, err := Plan(ctx, e.Deps, mission.Goal, mission.Context)
	if err != nil {
		return engerrors.Wrap(engerrors.PermanentUpstream, "age plan", err)
	}

	mission.GoalTree = tree
	mission.Status = models.MissionPlanned
	mission.PlanVersion++
	return e.Missions.Update(ctx, mission)
}

// Run DFS-traverses the mission's goal tree, executing each leaf as a
// sub-execution, classifying its progress, and pivoting or abandoning
// stalled leaves, per spec §4.6 steps 2-5. It returns engerrors.Conflict
// when it pauses at a checkpoint goal awaiting external approval; callers
// should call ApproveGoal and re-invoke Run to resume.
func (e *Engine) Run(ctx context.Context, missionID, sessionID, agentID string) error {
	mission, err := e.Missions.Get(ctx, missionID)
	if err != nil {
		return engerrors.Wrap(engerrors.Internal, "load mission", err)
	}
	if mission == nil {
		return engerrors.New(engerrors.NotFound, "mission not found: "+missionID)
	}
	if mission.ExecutionMode != models.ExecutionAdaptive {
		return engerrors.New(engerrors.Validation, "mission is not in adaptive execution mode")
	}
	if len(mission.GoalTree) == 0 {
		return engerrors.New(engerrors.Validation, "mission has no plan; call Plan first")
	}

	mission.Status = models.MissionRunning
	roots := rootGoals(mission.GoalTree)
	for i := range roots {
		root := roots[i]
		status, err := e.runNode(ctx, mission, sessionID, agentID, root.GoalID)
		if err != nil {
			_ = e.Missions.Update(ctx, mission)
			return err
		}
		if status != models.GoalCompleted {
			mission.Status = models.MissionFailed
			mission.FailureReason = "root goal " + root.GoalID + " ended " + string(status)
			_ = e.Missions.Update(ctx, mission)
			return engerrors.New(engerrors.Conflict, mission.FailureReason)
		}
	}

	summary, _ := sideChannel(ctx, e.Deps.Provider, e.Deps.Model,
		"You write a one-paragraph summary of a completed multi-step mission.",
		"Goal: "+mission.Goal)
	mission.FinalSummary = summary
	mission.Status = models.MissionCompleted
	return e.Missions.Update(ctx, mission)
}

// runNode executes one goal node depth-first: if it has children, it runs
// each child in order and only then evaluates the node itself; if it is a
// leaf, it runs the sub-execution directly. Returns the node's terminal
// status (completed or abandoned).
func (e *Engine) runNode(ctx context.Context, mission *models.Mission, sessionID, agentID, goalID string) (models.GoalStatus, error) {
	node := findGoal(mission.GoalTree, goalID)
	if node == nil {
		return "", engerrors.New(engerrors.Internal, "goal not found in tree: "+goalID)
	}
	if node.Status == models.GoalCompleted || node.Status == models.GoalAbandoned {
		return node.Status, nil
	}

	children := childGoals(mission.GoalTree, goalID)
	if len(children) > 0 {
		for _, child := range children {
			status, err := e.runNode(ctx, mission, sessionID, agentID, child.GoalID)
			if err != nil {
				return "", err
			}
			if status != models.GoalCompleted {
				node.Status = models.GoalAbandoned
				node.OutputSummary = "child goal " + child.GoalID + " was abandoned"
				return node.Status, nil
			}
		}
		node.Status = models.GoalCompleted
		return node.Status, nil
	}

	return e.runLeaf(ctx, mission, sessionID, agentID, node)
}

// runLeaf executes one leaf goal, classifying progress and pivoting or
// abandoning per spec §4.6 steps 2-4.
func (e *Engine) runLeaf(ctx context.Context, mission *models.Mission, sessionID, agentID string, node *models.GoalNode) (models.GoalStatus, error) {
	if node.IsCheckpoint && mission.Approval != models.ApprovalAuto && node.Status == models.GoalPending {
		node.Status = models.GoalAwaitingApproval
		return node.Status, engerrors.New(engerrors.Conflict, "goal paused for checkpoint approval: "+node.GoalID)
	}

	for {
		node.Status = models.GoalRunning
		turnIndex := node.Depth
		output, err := e.Executor.RunSubExecution(ctx, mission.ID, e.Manager, sessionID, agentID, leafPrompt(node), &turnIndex)
		if err != nil {
			node.Status = models.GoalFailed
			node.OutputSummary = err.Error()
			return node.Status, nil
		}

		progress, learnings, classifyErr := e.classify(ctx, node, output)
		if classifyErr != nil {
			progress, learnings = models.ProgressAdvancing, ""
		}

		node.Attempts = append(node.Attempts, models.GoalAttempt{
			Approach:  leafApproach(node),
			Progress:  progress,
			Learnings: learnings,
		})
		node.OutputSummary = output

		switch progress {
		case models.ProgressAdvancing:
			node.Status = models.GoalCompleted
			return node.Status, nil
		case models.ProgressStalled, models.ProgressBlocked:
			if node.AtBudget() {
				node.Status = models.GoalAbandoned
				mission.TotalAbandoned++
				return node.Status, nil
			}
			node.PivotReason = learnings
			node.Status = models.GoalPivoting
			mission.TotalPivots++
			continue
		default:
			node.Status = models.GoalAbandoned
			return node.Status, nil
		}
	}
}

// classify prompts the model to classify a leaf's outcome, per spec §4.6
// step 2.
func (e *Engine) classify(ctx context.Context, node *models.GoalNode, output string) (models.ProgressSignal, string, error) {
	system := `Classify the outcome of a goal attempt. Reply with a single fenced JSON code block shaped ` +
		`{"progress":"advancing|stalled|blocked","learnings":"..."}.`
	prompt := fmt.Sprintf("Success criteria: %s\n\nOutput:\n%s", node.SuccessCriteria, output)

	raw, err := sideChannel(ctx, e.Deps.Provider, e.Deps.Model, system, prompt)
	if err != nil {
		return "", "", err
	}

	var parsed struct {
		Progress  models.ProgressSignal `json:"progress"`
		Learnings string                `json:"learnings"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return "", "", err
	}
	return parsed.Progress, parsed.Learnings, nil
}

func leafPrompt(node *models.GoalNode) string {
	prompt := node.Title
	if node.Description != "" {
		prompt += "\n\n" + node.Description
	}
	if node.PivotReason != "" {
		prompt += "\n\nPrevious attempt learnings: " + node.PivotReason
	}
	return prompt
}

func leafApproach(node *models.GoalNode) string {
	if len(node.Attempts) == 0 {
		return "initial approach"
	}
	return fmt.Sprintf("revision %d", len(node.Attempts))
}

func rootGoals(tree []models.GoalNode) []*models.GoalNode {
	var roots []*models.GoalNode
	for i := range tree {
		if tree[i].ParentID == "" {
			roots = append(roots, &tree[i])
		}
	}
	return roots
}

func childGoals(tree []models.GoalNode, parentID string) []*models.GoalNode {
	var children []*models.GoalNode
	for i := range tree {
		if tree[i].ParentID == parentID {
			children = append(children, &tree[i])
		}
	}
	return children
}

func findGoal(tree []models.GoalNode, goalID string) *models.GoalNode {
	for i := range tree {
		if tree[i].GoalID == goalID {
			return &tree[i]
		}
	}
	return nil
}

// ApproveGoal flips a checkpoint goal from awaiting_approval to running so
// the next call to Run resumes past it.
func (e *Engine) ApproveGoal(ctx context.Context, missionID, goalID string) error {
	mission, err := e.Missions.Get(ctx, missionID)
	if err != nil {
		return engerrors.Wrap(engerrors.Internal, "load mission", err)
	}
	if mission == nil {
		return engerrors.New(engerrors.NotFound, "mission not found: "+missionID)
	}
	node := findGoal(mission.GoalTree, goalID)
	if node == nil {
		return engerrors.New(engerrors.NotFound, "goal not found: "+goalID)
	}
	if node.Status != models.GoalAwaitingApproval {
		return engerrors.New(engerrors.Validation, "goal is not awaiting approval: "+goalID)
	}
	node.Status = models.GoalPending
	mission.UpdatedAt = time.Now()
	return e.Missions.Update(ctx, mission)
}
