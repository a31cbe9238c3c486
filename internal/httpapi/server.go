// Package httpapi implements the execution engine's only stable external
// contract (spec §6): JSON/HTTP surfaces for task execution-control, chat,
// and missions, plus an SSE stream surface for each. Grounded on the
// teacher's internal/gateway/http_server.go for server construction and
// graceful shutdown, and internal/web/middleware.go for the HTTP auth
// pattern, adapted from the teacher's gRPC-and-websocket gateway to a
// plain net/http surface over the execution engine's Pipeline.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/haasonsaas/nexus/internal/auth"
	"github.com/haasonsaas/nexus/internal/controlplane"
	"github.com/haasonsaas/nexus/internal/execengine"
	"github.com/haasonsaas/nexus/internal/ratelimit"
	"github.com/haasonsaas/nexus/internal/shares"
)

// Server wires the execution engine's Pipeline to an HTTP+SSE(+WS)
// surface.
type Server struct {
	Pipeline *execengine.Pipeline
	Auth     *auth.Service
	Shares   *shares.Manager
	Logger   *slog.Logger

	taskLimiter *ratelimit.Limiter
	httpServer  *http.Server
	startedAt   time.Time
	addr        string
}

// NewServer builds a Server. logger may be nil, in which case a default
// slog logger is used.
func NewServer(pipeline *execengine.Pipeline, authService *auth.Service, shareManager *shares.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Pipeline:    pipeline,
		Auth:        authService,
		Shares:      shareManager,
		Logger:      logger,
		taskLimiter: ratelimit.NewLimiter(taskSubmitRateLimitConfig()),
		startedAt:   time.Now(),
	}
}

// GatewayStatus implements controlplane.GatewayManager, summarizing the
// engine's runtime state for the health endpoint.
func (s *Server) GatewayStatus(ctx context.Context) (controlplane.GatewayStatus, error) {
	uptime := time.Since(s.startedAt)
	return controlplane.GatewayStatus{
		UptimeSeconds: int64(uptime.Seconds()),
		Uptime:        uptime.Round(time.Second).String(),
		StartTime:     s.startedAt.UTC().Format(time.RFC3339),
		HTTPAddress:   s.addr,
	}, nil
}

func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// waitUntilActive busy-polls manager until id is registered or a short
// deadline elapses, closing the race between an approve/submit response
// and a client's immediate GET .../stream request.
func waitUntilActive(manager *execengine.Manager, id string) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if manager.IsActive(id) {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// Handler builds the routed, middleware-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /agents/tasks", s.handleSubmitTask)
	mux.HandleFunc("POST /tasks/{id}/approve", requireAdmin(s.handleApproveTask))
	mux.HandleFunc("POST /tasks/{id}/reject", requireAdmin(s.handleRejectTask))
	mux.HandleFunc("POST /tasks/{id}/cancel", s.handleCancelTask)
	mux.HandleFunc("GET /tasks/{id}/stream", s.handleStreamTask)

	mux.HandleFunc("POST /chat/sessions", s.handleCreateChatSession)
	mux.HandleFunc("POST /chat/sessions/{id}/messages", s.handlePostChatMessage)
	mux.HandleFunc("GET /chat/sessions/{id}/stream", s.handleStreamChatSession)
	mux.HandleFunc("POST /chat/sessions/{id}/cancel", s.handleCancelChatSession)
	mux.HandleFunc("POST /chat/sessions/{id}/share", s.handleCreateShare)
	mux.HandleFunc("GET /shared/{token}", s.handleGetSharedSession)

	mux.HandleFunc("POST /missions", s.handleCreateMission)
	mux.HandleFunc("POST /missions/{id}/approve-step", s.handleApproveMissionStep)
	mux.HandleFunc("POST /missions/{id}/cancel", s.handleCancelMission)
	mux.HandleFunc("GET /missions/{id}/stream", s.handleStreamMission)

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	var handler http.Handler = mux
	handler = rateLimitGate(s, handler)
	handler = authMiddleware(s.Auth, handler)
	return handler
}

// rateLimitGate applies the task-submission rate limit only to the
// endpoint spec §6 budgets (10/min/user on task submission); all other
// routes pass through unthrottled.
func rateLimitGate(s *Server, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/agents/tasks" {
			rateLimitMiddleware(s.taskLimiter, next).ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, _ := s.GatewayStatus(r.Context())
	writeJSON(w, http.StatusOK, status)
}

// Run starts serving addr and blocks until ctx is cancelled, then performs
// a graceful shutdown, grounded on the teacher's http_server.go
// Start/Stop lifecycle.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.addr = addr
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops accepting new connections and waits (up to 5s)
// for in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}
