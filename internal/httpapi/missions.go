package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/internal/age"
	"github.com/haasonsaas/nexus/internal/engerrors"
	"github.com/haasonsaas/nexus/pkg/models"
)

type createMissionRequest struct {
	AgentID       string `json:"agent_id"`
	SessionID     string `json:"session_id"`
	Goal          string `json:"goal"`
	Context       string `json:"context,omitempty"`
	ApprovalPolicy string `json:"approval_policy,omitempty"`
	ExecutionMode string `json:"execution_mode,omitempty"`
	TokenBudget   int64  `json:"token_budget,omitempty"`
}

type missionResponse struct {
	Mission *models.Mission `json:"mission"`
}

// handleCreateMission implements POST /missions. Sequential-mode missions
// are driven by Pipeline.ExecuteMission; adaptive-mode missions are
// planned and driven by the internal/age goal-tree engine instead (spec
// §4.6).
func (s *Server) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	var req createMissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.AgentID) == "" || strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Goal) == "" {
		writeKindError(w, engerrors.Validation, "agent_id, session_id, and goal are required")
		return
	}

	user := userOrAnonymous(r)
	approval := models.ApprovalPolicy(req.ApprovalPolicy)
	if approval == "" {
		approval = models.ApprovalAuto
	}
	mode := models.ExecutionMode(req.ExecutionMode)
	if mode == "" {
		mode = models.ExecutionSequential
	}

	mission := &models.Mission{
		ID:            uuid.NewString(),
		AgentID:       req.AgentID,
		SessionID:     req.SessionID,
		CreatorID:     user.ID,
		Goal:          req.Goal,
		Context:       req.Context,
		Status:        models.MissionDraft,
		Approval:      approval,
		ExecutionMode: mode,
		TokenBudget:   req.TokenBudget,
	}
	if err := s.Pipeline.Missions.Create(r.Context(), mission); err != nil {
		writeError(w, engerrors.Wrap(engerrors.Internal, "create mission", err))
		return
	}

	switch mode {
	case models.ExecutionAdaptive:
		engine := s.ageEngine()
		if err := engine.Plan(r.Context(), mission.ID); err != nil {
			writeError(w, engerrors.Wrap(engerrors.Internal, "plan mission", err))
			return
		}
		go func() {
			if err := engine.Run(context.Background(), mission.ID, req.SessionID, req.AgentID); err != nil {
				s.Logger.Warn("mission run failed", "mission_id", mission.ID, "error", err)
			}
		}()
		waitUntilActive(s.Pipeline.MissionManager, mission.ID)
	default:
		go func() {
			if err := s.Pipeline.ExecuteMission(context.Background(), mission.ID, req.SessionID, req.AgentID); err != nil {
				s.Logger.Warn("mission execution failed", "mission_id", mission.ID, "error", err)
			}
		}()
		waitUntilActive(s.Pipeline.MissionManager, mission.ID)
	}

	mission, _ = s.Pipeline.Missions.Get(r.Context(), mission.ID)
	writeJSON(w, http.StatusCreated, missionResponse{Mission: mission})
}

// ageEngine builds an internal/age.Engine bound to this server's
// Pipeline collaborators, for adaptive-mode missions.
func (s *Server) ageEngine() *age.Engine {
	return age.NewEngine(s.Pipeline.Missions, s.Pipeline, s.Pipeline.MissionManager, s.Pipeline.Runtime.Provider(), s.Pipeline.Runtime.DefaultModel())
}

// handleApproveMissionStep implements POST /missions/{id}/approve-step. For
// sequential missions this clears the named step's checkpoint gate and
// resumes ExecuteMission from where it paused; for adaptive missions it
// delegates to the AGE engine's goal approval.
func (s *Server) handleApproveMissionStep(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req struct {
		StepIndex int    `json:"step_index"`
		GoalID    string `json:"goal_id,omitempty"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	mission, err := s.Pipeline.Missions.Get(r.Context(), id)
	if err != nil || mission == nil {
		writeKindError(w, engerrors.NotFound, "mission not found")
		return
	}

	if mission.ExecutionMode == models.ExecutionAdaptive {
		engine := s.ageEngine()
		if err := engine.ApproveGoal(r.Context(), id, req.GoalID); err != nil {
			writeError(w, engerrors.Wrap(engerrors.Internal, "approve goal", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"approved": true})
		return
	}

	if req.StepIndex < 0 || req.StepIndex >= len(mission.Steps) {
		writeKindError(w, engerrors.Validation, "step_index out of range")
		return
	}
	step := &mission.Steps[req.StepIndex]
	if step.Status != models.StepAwaitingApproval {
		writeKindError(w, engerrors.Conflict, "step is not awaiting approval")
		return
	}
	step.Status = models.StepPending
	step.IsCheckpoint = false
	if err := s.Pipeline.Missions.Update(r.Context(), mission); err != nil {
		writeError(w, engerrors.Wrap(engerrors.Internal, "persist step approval", err))
		return
	}

	go func() {
		if err := s.Pipeline.ExecuteMission(context.Background(), id, mission.SessionID, mission.AgentID); err != nil {
			s.Logger.Warn("mission resume failed", "mission_id", id, "error", err)
		}
	}()
	waitUntilActive(s.Pipeline.MissionManager, id)

	writeJSON(w, http.StatusOK, map[string]bool{"approved": true})
}

// handleCancelMission implements POST /missions/{id}/cancel.
func (s *Server) handleCancelMission(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if !s.Pipeline.MissionManager.Cancel(id, "cancelled by user") {
		writeKindError(w, engerrors.NotFound, "no active execution for mission")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// handleStreamMission implements GET /missions/{id}/stream.
func (s *Server) handleStreamMission(w http.ResponseWriter, r *http.Request) {
	streamExecution(w, r, s.Pipeline.MissionManager, pathParam(r, "id"))
}
