package age

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// maxPlanDepth bounds the goal tree the planner is allowed to produce
// (spec §4.6 step 1: "a goal tree of depth <= 3").
const maxPlanDepth = 3

const planSystemPrompt = `You are a planning assistant. Given a goal, decompose it into a tree of ` +
	`subgoals of depth at most 3. Reply with a single fenced JSON code block containing an array of ` +
	`nodes, each shaped {"title","description","success_criteria","is_checkpoint","children":[...]}. ` +
	`Leaf nodes (no children) are the executable units; every leaf must carry a non-empty success_criteria.`

// planNode is the wire shape the planning model is asked to emit.
type planNode struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	SuccessCriteria string     `json:"success_criteria"`
	IsCheckpoint    bool       `json:"is_checkpoint"`
	Children        []planNode `json:"children,omitempty"`
}

// Plan prompts the model with goal+context and parses its reply into a flat
// GoalNode tree (spec §4.6 step 1). The returned tree uses ParentID to
// resolve parent/child relationships rather than nested structs, per the
// spec's flat-vector design for arbitrarily large trees.
func Plan(ctx context.Context, deps PlannerDeps, goal, goalContext string) ([]models.GoalNode, error) {
	prompt := "Goal: " + goal
	if goalContext != "" {
		prompt += "\n\nContext:\n" + goalContext
	}

	raw, err := sideChannel(ctx, deps.Provider, deps.Model, planSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("age: plan request failed: %w", err)
	}

	var roots []planNode
	if err := json.Unmarshal([]byte(extractJSON(raw)), &roots); err != nil {
		return nil, fmt.Errorf("age: plan response is not valid JSON: %w", err)
	}

	var tree []models.GoalNode
	order := 0
	var flatten func(nodes []planNode, parentID string, depth int) error
	flatten = func(nodes []planNode, parentID string, depth int) error {
		if depth > maxPlanDepth {
			return fmt.Errorf("age: plan exceeds max depth %d", maxPlanDepth)
		}
		for _, n := range nodes {
			if len(n.Children) == 0 && n.SuccessCriteria == "" {
				return fmt.Errorf("age: leaf goal %q is missing success_criteria", n.Title)
			}
			node := models.GoalNode{
				GoalID:            uuid.NewString(),
				ParentID:          parentID,
				Title:             n.Title,
				Description:       n.Description,
				SuccessCriteria:   n.SuccessCriteria,
				Status:            models.GoalPending,
				Depth:             depth,
				Order:             order,
				ExplorationBudget: models.DefaultExplorationBudget,
				IsCheckpoint:      n.IsCheckpoint,
			}
			order++
			tree = append(tree, node)
			if len(n.Children) > 0 {
				if err := flatten(n.Children, node.GoalID, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := flatten(roots, "", 0); err != nil {
		return nil, err
	}
	if len(tree) == 0 {
		return nil, fmt.Errorf("age: plan produced an empty goal tree")
	}
	return tree, nil
}

// PlannerDeps bundles a planner/classifier's LLM access.
type PlannerDeps struct {
	Provider agent.LLMProvider
	Model    string
}
