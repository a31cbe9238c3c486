package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/agent/providers"
	"github.com/haasonsaas/nexus/internal/agimeconfig"
	"github.com/haasonsaas/nexus/internal/auth"
	"github.com/haasonsaas/nexus/internal/execengine"
	"github.com/haasonsaas/nexus/internal/httpapi"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/internal/shares"
	"github.com/haasonsaas/nexus/internal/tasks"
)

// buildServeCmd creates the "serve" command that starts the HTTP/SSE
// execution engine, grounded on the teacher's serve command lifecycle:
// load configuration, construct the server, run until a shutdown signal,
// then drain in-flight requests before exiting.
func buildServeCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent execution engine's HTTP/SSE server",
		Long: `Start the HTTP/SSE server exposing task, chat, and mission execution.

Configuration is resolved from the environment under the AGIME_ prefix,
falling back to GOOSE_ for legacy deployments (AGIME_PORT, AGIME_LLM_PROVIDER,
AGIME_ANTHROPIC_API_KEY, AGIME_OPENAI_API_KEY, AGIME_JWT_SECRET,
AGIME_SHARES_DB_PATH).

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")
	return cmd
}

func runServe(ctx context.Context, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg := agimeconfig.Load()
	slog.Info("starting agimed", "version", version, "commit", commit, "addr", cfg.Addr())

	provider, err := buildProvider()
	if err != nil {
		return fmt.Errorf("configure llm provider: %w", err)
	}

	sessionStore := sessions.NewMemoryStore()
	runtime := agent.NewRuntime(provider, sessionStore)

	taskStore := execengine.NewMemoryTaskStore()
	missionStore := execengine.NewMemoryMissionStore()
	agentStore := execengine.NewMemoryAgentStore()
	pipeline := execengine.NewPipeline(runtime, sessionStore, taskStore, missionStore, agentStore)

	authService := auth.NewService(auth.Config{
		JWTSecret:   cfg.JWTSecret,
		TokenExpiry: time.Duration(cfg.TokenExpiry) * time.Second,
	})

	shareManager, closeShares, err := buildShareManager()
	if err != nil {
		return fmt.Errorf("configure share store: %w", err)
	}
	defer closeShares()

	server := httpapi.NewServer(pipeline, authService, shareManager, slog.Default())

	scheduler, closeScheduler, err := buildScheduler(pipeline, sessionStore)
	if err != nil {
		return fmt.Errorf("configure task scheduler: %w", err)
	}
	defer closeScheduler()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if scheduler != nil {
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start task scheduler: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = scheduler.Stop(shutdownCtx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, cfg.Addr())
	}()

	slog.Info("agimed started", "addr", cfg.Addr(), "llm_provider", provider.Name())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	slog.Info("shutdown signal received, draining in-flight requests")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("agimed stopped gracefully")
	return nil
}

// buildProvider selects an LLMProvider from AGIME_LLM_PROVIDER, defaulting
// to Anthropic when an API key is present and falling back to OpenAI or
// AWS Bedrock. When AGIME_LLM_FALLBACK_PROVIDERS names additional backends
// (comma-separated provider names), the result is wrapped so a retryable
// failure on the primary fails over to the next one in order.
func buildProvider() (agent.LLMProvider, error) {
	name := agimeconfig.LookupString("LLM_PROVIDER", "")
	primary, err := buildNamedProvider(name)
	if err != nil {
		return nil, err
	}

	fallbackNames := strings.Split(agimeconfig.LookupString("LLM_FALLBACK_PROVIDERS", ""), ",")
	var backups []agent.LLMProvider
	for _, fb := range fallbackNames {
		fb = strings.TrimSpace(fb)
		if fb == "" || fb == primary.Name() {
			continue
		}
		backup, err := buildNamedProvider(fb)
		if err != nil {
			slog.Warn("skipping unavailable fallback llm provider", "provider", fb, "error", err)
			continue
		}
		backups = append(backups, backup)
	}
	if len(backups) == 0 {
		return primary, nil
	}
	return providers.NewFallbackProvider(primary, backups...), nil
}

// buildNamedProvider constructs a single LLMProvider by name ("anthropic",
// "openai", "bedrock"), or infers one from whichever API key/region is
// present when name is empty.
func buildNamedProvider(name string) (agent.LLMProvider, error) {
	anthropicKey, _ := agimeconfig.Lookup("ANTHROPIC_API_KEY")
	openaiKey, _ := agimeconfig.Lookup("OPENAI_API_KEY")
	bedrockRegion, hasBedrockRegion := agimeconfig.Lookup("BEDROCK_REGION")

	switch {
	case name == "openai" || (name == "" && openaiKey != "" && anthropicKey == ""):
		if openaiKey == "" {
			return nil, fmt.Errorf("AGIME_OPENAI_API_KEY is required for the openai provider")
		}
		return providers.NewOpenAIProvider(openaiKey), nil
	case name == "bedrock" || (name == "" && hasBedrockRegion && anthropicKey == "" && openaiKey == ""):
		if !hasBedrockRegion {
			return nil, fmt.Errorf("AGIME_BEDROCK_REGION is required for the bedrock provider")
		}
		return providers.NewBedrockProvider(providers.BedrockConfig{
			Region:          bedrockRegion,
			AccessKeyID:     agimeconfig.LookupString("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: agimeconfig.LookupString("AWS_SECRET_ACCESS_KEY", ""),
			DefaultModel:    agimeconfig.LookupString("BEDROCK_DEFAULT_MODEL", ""),
			MaxRetries:      agimeconfig.LookupInt("LLM_MAX_RETRIES", 3),
		})
	default:
		if anthropicKey == "" {
			return nil, fmt.Errorf("AGIME_ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:     anthropicKey,
			MaxRetries: agimeconfig.LookupInt("LLM_MAX_RETRIES", 3),
		})
	}
}

// buildScheduler starts the cron-triggered scheduled-task subsystem when
// AGIME_TASKS_DB_DSN names a reachable CockroachDB/Postgres instance. It is
// optional: an engine deployment with no recurring tasks configured need
// not stand up a second database.
func buildScheduler(pipeline *execengine.Pipeline, sessionStore sessions.Store) (*tasks.Scheduler, func(), error) {
	dsn, ok := agimeconfig.Lookup("TASKS_DB_DSN")
	if !ok {
		return nil, func() {}, nil
	}
	store, err := tasks.NewCockroachStoreFromDSN(dsn, tasks.DefaultCockroachConfig())
	if err != nil {
		return nil, func() {}, err
	}
	executor := tasks.NewAgentExecutor(pipeline, sessionStore, tasks.AgentExecutorConfig{})
	scheduler := tasks.NewScheduler(store, executor, tasks.DefaultSchedulerConfig())
	return scheduler, func() { store.Close() }, nil
}

// buildShareManager opens a SQLite-backed share store when
// AGIME_SHARES_DB_PATH is set, otherwise falls back to an in-memory store
// suitable for single-process development.
func buildShareManager() (*shares.Manager, func(), error) {
	if path, ok := agimeconfig.Lookup("SHARES_DB_PATH"); ok {
		store, err := shares.OpenSQLiteStore(path)
		if err != nil {
			return nil, func() {}, err
		}
		return shares.NewManager(store), func() { store.Close() }, nil
	}
	return shares.NewManager(shares.NewMemoryStore()), func() {}, nil
}
