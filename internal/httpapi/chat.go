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

type createChatSessionRequest struct {
	AgentID string `json:"agent_id"`
	Title   string `json:"title"`
}

type sessionResponse struct {
	Session *models.Session `json:"session"`
}

// handleCreateChatSession implements POST /chat/sessions.
func (s *Server) handleCreateChatSession(w http.ResponseWriter, r *http.Request) {
	var req createChatSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		writeKindError(w, engerrors.Validation, "agent_id is required")
		return
	}
	user := userOrAnonymous(r)
	session := &models.Session{
		ID:      uuid.NewString(),
		AgentID: req.AgentID,
		UserID:  user.ID,
		Channel: models.ChannelAPI,
		Title:   req.Title,
		Key:     "api:" + uuid.NewString(),
	}
	if err := s.Pipeline.Sessions.Create(r.Context(), session); err != nil {
		writeError(w, engerrors.Wrap(engerrors.Internal, "create session", err))
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Session: session})
}

type postChatMessageRequest struct {
	Content string `json:"content"`
}

// handlePostChatMessage implements POST /chat/sessions/{id}/messages: it
// appends the user's message and starts execution immediately (spec §6),
// blocking the HTTP response only long enough for ChatManager to register
// the execution so a subsequent stream request never races it.
func (s *Server) handlePostChatMessage(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req postChatMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeKindError(w, engerrors.Validation, "content is required")
		return
	}

	session, err := s.Pipeline.Sessions.Get(r.Context(), id)
	if err != nil || session == nil {
		writeKindError(w, engerrors.NotFound, "session not found")
		return
	}
	if session.IsProcessing {
		writeKindError(w, engerrors.Conflict, "session already processing")
		return
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: id,
		Role:      models.RoleUser,
		Direction: models.DirectionInbound,
		Content:   req.Content,
		CreatedAt: time.Now(),
	}
	if err := s.Pipeline.Sessions.AppendMessage(r.Context(), id, msg); err != nil {
		writeError(w, engerrors.Wrap(engerrors.Internal, "append message", err))
		return
	}

	go func() {
		if err := s.Pipeline.ExecuteChat(context.Background(), id, session.AgentID, msg); err != nil {
			s.Logger.Warn("chat execution failed", "session_id", id, "error", err)
		}
	}()
	waitUntilActive(s.Pipeline.ChatManager, id)

	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id, "message_id": msg.ID})
}

// handleStreamChatSession implements GET /chat/sessions/{id}/stream?after=<id>.
func (s *Server) handleStreamChatSession(w http.ResponseWriter, r *http.Request) {
	streamExecution(w, r, s.Pipeline.ChatManager, pathParam(r, "id"))
}

// handleCancelChatSession implements POST /chat/sessions/{id}/cancel.
func (s *Server) handleCancelChatSession(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	cancelled := s.Pipeline.ChatManager.Cancel(id, "cancelled by user")
	if !cancelled {
		writeKindError(w, engerrors.NotFound, "no active execution for session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// handleCreateShare implements POST /chat/sessions/{id}/share (spec §6/§8
// share-link creation).
func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req struct {
		Password string `json:"password,omitempty"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	session, err := s.Pipeline.Sessions.Get(r.Context(), id)
	if err != nil || session == nil {
		writeKindError(w, engerrors.NotFound, "session not found")
		return
	}
	messages, err := s.Pipeline.Sessions.GetHistory(r.Context(), id, 0)
	if err != nil {
		writeError(w, engerrors.Wrap(engerrors.Internal, "load session history", err))
		return
	}
	share, err := s.Shares.CreateShare(r.Context(), session, messages, req.Password)
	if err != nil {
		writeError(w, engerrors.Wrap(engerrors.Internal, "create share", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":     share.Token,
		"protected": share.Protected(),
	})
}

// handleGetSharedSession implements GET /shared/{token}, resolving a
// share-link to its snapshot. An optional ?password= query parameter
// satisfies password-protected shares.
func (s *Server) handleGetSharedSession(w http.ResponseWriter, r *http.Request) {
	token := pathParam(r, "token")
	password := r.URL.Query().Get("password")
	share, err := s.Shares.GetSharedSession(r.Context(), token, password)
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "password"):
			writeKindError(w, engerrors.PermissionDenied, err.Error())
		default:
			writeKindError(w, engerrors.NotFound, "shared session not found")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  share.SessionID,
		"name":        share.Name,
		"working_dir": share.WorkingDir,
		"messages":    share.Messages,
		"created_at":  share.CreatedAt,
	})
}
