package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/haasonsaas/nexus/internal/engerrors"
	"github.com/haasonsaas/nexus/internal/execengine"
	"github.com/haasonsaas/nexus/pkg/models"
)

// sseEventName maps the turn loop's full AgentEventType space onto the
// spec's named SSE events (status, text, thinking, toolcall, toolresult,
// workspace_changed, turn, compaction, session_id, done, goal_start,
// goal_complete, pivot, goal_abandoned). Types with no direct spec analog
// (run/iter/context/steering bookkeeping) fall back to their raw type
// string so no event is silently dropped.
func sseEventName(t models.AgentEventType) string {
	switch t {
	case models.AgentEventStatus:
		return "status"
	case models.AgentEventModelDelta, models.AgentEventModelCompleted:
		return "text"
	case models.AgentEventThinking:
		return "thinking"
	case models.AgentEventToolStarted:
		return "toolcall"
	case models.AgentEventToolStdout, models.AgentEventToolStderr, models.AgentEventToolFinished, models.AgentEventToolTimedOut:
		return "toolresult"
	case models.AgentEventWorkspaceChanged:
		return "workspace_changed"
	case models.AgentEventTurn:
		return "turn"
	case models.AgentEventCompactionEvent:
		return "compaction"
	case models.AgentEventSessionID:
		return "session_id"
	case models.AgentEventDone:
		return "done"
	case models.AgentEventGoalStart:
		return "goal_start"
	case models.AgentEventGoalComplete:
		return "goal_complete"
	case models.AgentEventPivot:
		return "pivot"
	case models.AgentEventGoalAbandon:
		return "goal_abandoned"
	default:
		return string(t)
	}
}

// lastEventID parses the Last-Event-ID header or an `after` query
// parameter, preferring the header per the SSE spec.
func lastEventID(r *http.Request) uint64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("after")
	}
	id, _ := strconv.ParseUint(raw, 10, 64)
	return id
}

// streamExecution writes backlog then live events for id from manager as
// an SSE response, replaying from Last-Event-ID/after when given, until
// the execution ends (a Done event), the client disconnects, or the
// execution id is unknown.
func streamExecution(w http.ResponseWriter, r *http.Request, manager *execengine.Manager, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeKindError(w, engerrors.Internal, "streaming unsupported")
		return
	}

	sub, active := manager.SubscribeWithHistory(id, lastEventID(r))
	if !active {
		writeKindError(w, engerrors.NotFound, "execution not found")
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, se := range sub.Backlog {
		if !writeSSEEvent(w, se) {
			return
		}
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case se, ok := <-sub.Events:
			if !ok {
				return
			}
			if !writeSSEEvent(w, se) {
				return
			}
			flusher.Flush()
			if se.Event.Type == models.AgentEventDone {
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, se execengine.StampedEvent) bool {
	data, err := json.Marshal(se.Event)
	if err != nil {
		return false
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", se.ID, sseEventName(se.Event.Type), data)
	return err == nil
}
