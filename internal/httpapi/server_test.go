package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/execengine"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/internal/shares"
	"github.com/haasonsaas/nexus/pkg/models"
)

// stubProvider is a minimal agent.LLMProvider that completes a run in a
// single turn, enough to exercise the HTTP surface end to end without a
// real model backend.
type stubProvider struct{}

func (stubProvider) Name() string              { return "stub" }
func (stubProvider) Models() []agent.Model     { return nil }
func (stubProvider) SupportsTools() bool       { return false }

func (stubProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	ch := make(chan *agent.CompletionChunk, 1)
	ch <- &agent.CompletionChunk{Text: "ok", Done: true}
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T) (*Server, *execengine.Pipeline) {
	t.Helper()
	sessionStore := sessions.NewMemoryStore()
	runtime := agent.NewRuntime(stubProvider{}, sessionStore)
	pipeline := execengine.NewPipeline(runtime, sessionStore, execengine.NewMemoryTaskStore(), execengine.NewMemoryMissionStore(), execengine.NewMemoryAgentStore())
	srv := NewServer(pipeline, nil, shares.NewManager(shares.NewMemoryStore()), nil)
	return srv, pipeline
}

func TestCreateChatSessionAndPostMessage(t *testing.T) {
	srv, pipeline := newTestServer(t)
	handler := srv.Handler()

	body, _ := json.Marshal(createChatSessionRequest{AgentID: "agent-1"})
	req := httptest.NewRequest(http.MethodPost, "/chat/sessions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d body %s", rec.Code, rec.Body.String())
	}
	var created sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}

	msgBody, _ := json.Marshal(postChatMessageRequest{Content: "hello"})
	req = httptest.NewRequest(http.MethodPost, "/chat/sessions/"+created.Session.ID+"/messages", bytes.NewReader(msgBody))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("post message: status %d body %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		session, err := pipeline.Sessions.Get(context.Background(), created.Session.ID)
		if err == nil && session != nil && !session.IsProcessing {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("chat execution did not complete in time")
}

func TestTaskSubmitApproveLifecycle(t *testing.T) {
	srv, pipeline := newTestServer(t)
	handler := srv.Handler()

	session := &models.Session{ID: "sess-1", AgentID: "agent-1"}
	if err := pipeline.Sessions.Create(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	body, _ := json.Marshal(createTaskRequest{AgentID: "agent-1", SessionID: session.ID, Content: "do a thing"})
	req := httptest.NewRequest(http.MethodPost, "/agents/tasks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit task: status %d body %s", rec.Code, rec.Body.String())
	}
	var created taskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/tasks/"+created.Task.ID+"/approve", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve task: status %d body %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		task, err := pipeline.Tasks.Get(context.Background(), created.Task.ID)
		if err == nil && task != nil && task.Status.IsTerminal() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("task execution did not reach a terminal state in time")
}

func TestShareCreateAndGetRoundTrip(t *testing.T) {
	srv, pipeline := newTestServer(t)
	handler := srv.Handler()

	session := &models.Session{ID: "sess-share", AgentID: "agent-1", Title: "demo", WorkspacePath: "/tmp/demo"}
	if err := pipeline.Sessions.Create(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := pipeline.Sessions.AppendMessage(context.Background(), session.ID, &models.Message{Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat/sessions/"+session.ID+"/share", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create share: status %d body %s", rec.Code, rec.Body.String())
	}
	var shareResp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &shareResp); err != nil {
		t.Fatalf("unmarshal share: %v", err)
	}
	token, _ := shareResp["token"].(string)
	if len(token) != 32 {
		t.Fatalf("expected 32-char token, got %q", token)
	}

	req = httptest.NewRequest(http.MethodGet, "/shared/"+token, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get shared session: status %d body %s", rec.Code, rec.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal shared session: %v", err)
	}
	if got["name"] != "demo" || got["working_dir"] != "/tmp/demo" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}
