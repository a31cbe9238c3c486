package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/haasonsaas/nexus/internal/engerrors"
	"github.com/haasonsaas/nexus/internal/execengine"
	"github.com/haasonsaas/nexus/pkg/models"
)

// wsFrame is a single execution event relayed over the /ws companion
// endpoint, a JSON-framed alternative to SSE for clients that prefer a
// bidirectional socket. Grounded on the teacher's
// internal/gateway/ws_control_plane.go wire frame shape, trimmed to the
// subset this engine needs: a typed event envelope plus its sequence id
// for the same Last-Event-ID-style resumption SSE offers.
type wsFrame struct {
	Seq   uint64            `json:"seq"`
	Event string            `json:"event"`
	Data  models.AgentEvent `json:"data"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket implements GET /ws?kind=task|chat|mission&id=<id>, a
// companion to the SSE stream endpoints for clients that want a
// persistent socket instead of reconnecting HTTP streams.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	id := r.URL.Query().Get("id")
	manager := s.managerForKind(kind)
	if manager == nil || id == "" {
		writeKindError(w, engerrors.Validation, "kind and id query parameters are required")
		return
	}

	sub, active := manager.SubscribeWithHistory(id, lastEventID(r))
	if !active {
		writeKindError(w, engerrors.NotFound, "execution not found")
		return
	}
	defer sub.Close()

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for _, se := range sub.Backlog {
		if !writeWSFrame(conn, se) {
			return
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case se, ok := <-sub.Events:
			if !ok {
				return
			}
			if !writeWSFrame(conn, se) {
				return
			}
			if se.Event.Type == models.AgentEventDone {
				return
			}
		}
	}
}

func (s *Server) managerForKind(kind string) *execengine.Manager {
	switch kind {
	case "task":
		return s.Pipeline.TaskManager
	case "chat":
		return s.Pipeline.ChatManager
	case "mission":
		return s.Pipeline.MissionManager
	default:
		return nil
	}
}

func writeWSFrame(conn *websocket.Conn, se execengine.StampedEvent) bool {
	frame := wsFrame{Seq: se.ID, Event: sseEventName(se.Event.Type), Data: se.Event}
	data, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	return conn.WriteMessage(websocket.TextMessage, data) == nil
}
