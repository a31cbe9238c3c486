package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/internal/engerrors"
	"github.com/haasonsaas/nexus/pkg/models"
)

type createTaskRequest struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`
	TaskType  string `json:"task_type"`
	Content   string `json:"content"`
	Priority  int    `json:"priority"`
}

type taskResponse struct {
	Task *models.AgentTask `json:"task"`
}

// handleSubmitTask implements POST /agents/tasks: creates a pending
// AgentTask for later approval (spec §6).
func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.AgentID) == "" || strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Content) == "" {
		writeKindError(w, engerrors.Validation, "agent_id, session_id, and content are required")
		return
	}
	taskType := models.AgentTaskType(req.TaskType)
	if taskType == "" {
		taskType = models.AgentTaskChat
	}

	user := userOrAnonymous(r)
	now := time.Now()
	task := &models.AgentTask{
		ID:          uuid.NewString(),
		AgentID:     req.AgentID,
		SessionID:   req.SessionID,
		SubmitterID: user.ID,
		TaskType:    taskType,
		Content:     req.Content,
		Priority:    req.Priority,
		Status:      models.AgentTaskPending,
		SubmittedAt: now,
	}
	if err := s.Pipeline.Tasks.Create(r.Context(), task); err != nil {
		writeError(w, engerrors.Wrap(engerrors.Internal, "create task", err))
		return
	}
	writeJSON(w, http.StatusCreated, taskResponse{Task: task})
}

// handleApproveTask implements POST /tasks/{id}/approve (admin-only).
// It registers the task's execution with TaskManager before returning, so
// a client that immediately opens GET /tasks/{id}/stream never races the
// execution's first events.
func (s *Server) handleApproveTask(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	task, err := s.Pipeline.Tasks.Get(r.Context(), id)
	if err != nil || task == nil {
		writeKindError(w, engerrors.NotFound, "task not found")
		return
	}
	user := userOrAnonymous(r)
	now := time.Now()
	if err := task.Transition(models.AgentTaskApproved, now); err != nil {
		writeError(w, engerrors.Wrap(engerrors.Conflict, "cannot approve task", err))
		return
	}
	task.ApproverID = user.ID
	if err := s.Pipeline.Tasks.Update(r.Context(), task); err != nil {
		writeError(w, engerrors.Wrap(engerrors.Internal, "persist task approval", err))
		return
	}

	// Launch the execution on a context detached from this request so it
	// outlives the HTTP response, but block the response until
	// ExecuteTask's own TaskManager.Register call has landed, so a client
	// that immediately opens GET /tasks/{id}/stream never races the start
	// of the stream.
	go func() {
		if err := s.Pipeline.ExecuteTask(context.Background(), id); err != nil {
			s.Logger.Warn("task execution failed", "task_id", id, "error", err)
		}
	}()
	waitUntilActive(s.Pipeline.TaskManager, id)

	writeJSON(w, http.StatusOK, taskResponse{Task: task})
}

// handleRejectTask implements POST /tasks/{id}/reject.
func (s *Server) handleRejectTask(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	task, err := s.Pipeline.Tasks.Get(r.Context(), id)
	if err != nil || task == nil {
		writeKindError(w, engerrors.NotFound, "task not found")
		return
	}
	user := userOrAnonymous(r)
	if err := task.Transition(models.AgentTaskRejected, time.Now()); err != nil {
		writeError(w, engerrors.Wrap(engerrors.Conflict, "cannot reject task", err))
		return
	}
	task.ApproverID = user.ID
	if err := s.Pipeline.Tasks.Update(r.Context(), task); err != nil {
		writeError(w, engerrors.Wrap(engerrors.Internal, "persist task rejection", err))
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{Task: task})
}

// handleCancelTask implements POST /tasks/{id}/cancel.
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	task, err := s.Pipeline.Tasks.Get(r.Context(), id)
	if err != nil || task == nil {
		writeKindError(w, engerrors.NotFound, "task not found")
		return
	}
	if task.Status == models.AgentTaskRunning {
		s.Pipeline.TaskManager.Cancel(id, "cancelled by user")
	}
	if task.Status.CanTransition(models.AgentTaskCancelled) {
		if err := task.Transition(models.AgentTaskCancelled, time.Now()); err != nil {
			writeError(w, engerrors.Wrap(engerrors.Conflict, "cannot cancel task", err))
			return
		}
		if err := s.Pipeline.Tasks.Update(r.Context(), task); err != nil {
			writeError(w, engerrors.Wrap(engerrors.Internal, "persist task cancellation", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, taskResponse{Task: task})
}

// handleStreamTask implements GET /tasks/{id}/stream.
func (s *Server) handleStreamTask(w http.ResponseWriter, r *http.Request) {
	streamExecution(w, r, s.Pipeline.TaskManager, pathParam(r, "id"))
}
