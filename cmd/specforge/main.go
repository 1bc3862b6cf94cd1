// SpecForge server — serves the spec-graph HTTP API, runs the agent
// orchestrator, and hosts the live approval channels.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/specforge/specforge/pkg/agent"
	"github.com/specforge/specforge/pkg/api"
	"github.com/specforge/specforge/pkg/approval"
	"github.com/specforge/specforge/pkg/channels"
	"github.com/specforge/specforge/pkg/cleanup"
	"github.com/specforge/specforge/pkg/config"
	"github.com/specforge/specforge/pkg/database"
	"github.com/specforge/specforge/pkg/graph"
	"github.com/specforge/specforge/pkg/llm"
	"github.com/specforge/specforge/pkg/masking"
	"github.com/specforge/specforge/pkg/metrics"
	"github.com/specforge/specforge/pkg/mutation"
	"github.com/specforge/specforge/pkg/orchestrator"
	"github.com/specforge/specforge/pkg/semantic"
	"github.com/specforge/specforge/pkg/slack"
	"github.com/specforge/specforge/pkg/specsource"
	"github.com/specforge/specforge/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting SpecForge",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.Default()

	// 2. Choose backing stores. An empty DSN runs the whole process on
	// in-memory stores, which is the local-development mode.
	var (
		dbClient *database.Client
		repo     graph.Repository
		store    mutation.Store
	)
	if cfg.Database.DSN != "" {
		dbClient, err = database.NewClient(ctx, database.Config{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		repo = database.NewPGGraphStore(dbClient, cfg.Orchestrator.RetryAttempts, logger)
		store = database.NewPGMutationStore(dbClient, logger)
		slog.Info("Connected to PostgreSQL database")
	} else {
		repo = graph.NewMemoryRepository()
		store = mutation.NewMemoryStore()
		slog.Warn("No database DSN configured, running on in-memory stores")
	}

	// 3. Semantic index. The vector backend needs an embeddings endpoint;
	// without one the index runs on the lexical ranker alone.
	var backend semantic.Backend
	if cfg.LLM.BaseURL != "" {
		backend = semantic.NewVectorBackend(llm.NewHTTPEmbedder(llm.EmbedderConfig{
			Config: llm.Config{
				BaseURL: cfg.LLM.BaseURL,
				APIKey:  cfg.LLM.APIKey,
				Timeout: cfg.LLMTimeout(),
			},
		}), cfg.EmbeddingCacheTTL())
	}
	index := semantic.NewIndex(repo, backend, semantic.Options{
		SimilarityThreshold: *cfg.Semantic.SimilarityThreshold,
	})
	if err := index.Refresh(ctx); err != nil {
		slog.Error("Failed to build semantic index", "error", err)
		os.Exit(1)
	}

	// 4. Metrics, live channels, approval manager
	m := metrics.New()
	hub := channels.NewHub(cfg.SendTimeout(), m, logger)
	approvals := approval.NewManager(hub, m, cfg.ApprovalTimeout(), logger)

	if slackSvc := slack.NewService(slack.ServiceConfig{
		Token:        cfg.Slack.Token,
		Channel:      cfg.Slack.Channel,
		DashboardURL: cfg.Slack.DashboardURL,
	}); slackSvc != nil {
		approvals.SetNotifier(slackSvc)
		slog.Info("Slack notifications enabled", "channel", cfg.Slack.Channel)
	}

	// 5. Agent registry and orchestrator
	var llmClient llm.Client
	if cfg.LLM.BaseURL != "" {
		llmClient = llm.NewHTTPClient(llm.Config{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Path:    cfg.LLM.Path,
			Timeout: cfg.LLMTimeout(),
		})
	} else {
		slog.Warn("No LLM base URL configured, agents run on deterministic fallbacks")
	}

	registry := orchestrator.NewRegistry()
	agentCfg := agent.Config{
		PrimaryModel:       cfg.Agents.PrimaryModel,
		FallbackModel:      cfg.Agents.FallbackModel,
		Temperature:        *cfg.Agents.Temperature,
		MaxTokens:          cfg.Agents.MaxTokens,
		FallbackConfidence: *cfg.Agents.FallbackConfidence,
		MaxConcurrentTasks: cfg.Agents.MaxConcurrentTasks,
	}
	if *cfg.Agents.MaskPrompts {
		agentCfg.Masker = masking.NewMasker(nil, logger)
	}
	for _, runtime := range agent.DefaultRuntimes(repo, index, llmClient, agentCfg, logger) {
		if err := registry.Register(runtime); err != nil {
			slog.Error("Failed to register agent runtime", "error", err)
			os.Exit(1)
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		MaxConcurrentAgents:  cfg.Orchestrator.MaxConcurrentAgents,
		QueueSize:            cfg.Orchestrator.QueueSize,
		AgentTimeout:         cfg.AgentTimeout(),
		RetryAttempts:        cfg.Orchestrator.RetryAttempts,
		AutoApproveThreshold: *cfg.Orchestrator.AutoApproveThreshold,
	}, registry, repo, store, approvals, m, logger)

	// 6. One-time startup orphan recovery: proposals stranded mid-analysis
	// by a previous process are failed so users can resubmit.
	if recovered, err := orch.RecoverOrphans(ctx); err != nil {
		slog.Error("Failed to recover orphaned proposals", "error", err)
		// Non-fatal — continue
	} else if recovered > 0 {
		slog.Info("Recovered orphaned proposals", "count", recovered)
	}

	// 7. Retention purge for settled proposals
	cleanupSvc := cleanup.NewService(store, cfg.ProposalRetention(), cfg.CleanupInterval(), logger)
	cleanupSvc.Start(ctx)

	// 8. Create HTTP server
	httpServer := api.NewServer(api.Config{
		AuthToken:         cfg.Server.AuthToken,
		AllowedWSOrigins:  cfg.Server.AllowedWSOrigins,
		MaxTraversalDepth: cfg.Graph.MaxTraversalDepth,
	}, repo, index, orch, approvals, hub, m, dbClient, logger)
	httpServer.SetSpecSource(specsource.NewService(specsource.Config{
		RepoURL:        cfg.SpecSource.RepoURL,
		AllowedDomains: cfg.SpecSource.AllowedDomains,
		CacheTTL:       cfg.SpecSourceCacheTTL(),
		GitHubToken:    cfg.SpecSource.GitHubToken,
	}))

	// 9. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("SpecForge started successfully",
		"agents", registry.Size(),
		"max_concurrent_agents", cfg.Orchestrator.MaxConcurrentAgents)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown. Stop the orchestrator first so in-flight
	// analyses settle, then the approval manager, then the HTTP server.
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	orchDone := make(chan struct{})
	go func() {
		orch.Stop()
		close(orchDone)
	}()
	select {
	case <-orchDone:
		slog.Info("Orchestrator stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Orchestrator shutdown timeout exceeded — stranded proposals will be orphan-recovered")
	}

	approvals.Stop()
	cleanupSvc.Stop()

	// Stop HTTP server with its own timeout budget
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
