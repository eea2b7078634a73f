// Command quartermaster runs the procurement assistant service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/quartermasterhq/quartermaster/internal/agent"
	"github.com/quartermasterhq/quartermaster/internal/config"
	"github.com/quartermasterhq/quartermaster/internal/conversation"
	"github.com/quartermasterhq/quartermaster/internal/domain"
	"github.com/quartermasterhq/quartermaster/internal/llm"
	"github.com/quartermasterhq/quartermaster/internal/observability"
	"github.com/quartermasterhq/quartermaster/internal/reliability"
	"github.com/quartermasterhq/quartermaster/internal/safety"
	"github.com/quartermasterhq/quartermaster/internal/server"
	"github.com/quartermasterhq/quartermaster/internal/tools"
	"github.com/quartermasterhq/quartermaster/internal/usage"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quartermaster",
		Short:         "AI procurement assistant",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	var inMemory bool

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, inMemory)
		},
	}
	serve.Flags().StringVarP(&configPath, "config", "c", "quartermaster.yaml", "path to config file")
	serve.Flags().BoolVar(&inMemory, "in-memory", false, "use in-memory stores instead of MongoDB")

	root.AddCommand(serve)
	return root
}

func runServe(ctx context.Context, configPath string, inMemory bool) error {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		RedactKeys: cfg.Log.RedactKeys,
	})
	logger.Info(ctx, "starting quartermaster", "version", version, "addr", cfg.Server.Addr)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(registry)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Provider and reliability stack. Every backend with credentials is
	// constructed so per-request overrides can route to it; the default
	// carries the breaker the health endpoint reports on.
	defaultName, err := llm.DefaultName(&cfg.Provider)
	if err != nil {
		return err
	}
	backends, err := llm.SelectAll(ctx, &cfg.Provider)
	if err != nil {
		return err
	}
	provider, ok := backends[defaultName]
	if !ok {
		return fmt.Errorf("provider %q has no credentials configured", defaultName)
	}
	logger.Info(ctx, "provider selected", "provider", provider.Name(), "model", provider.Info().Model)

	// Stores.
	var (
		convStore  conversation.Store
		usageStore usage.Store
	)
	if inMemory {
		convStore = conversation.NewMemoryStore()
		usageStore = usage.NewMemoryStore()
	} else {
		client, err := conversation.ConnectMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		db := client.Database(cfg.Mongo.Database)

		convStore, err = conversation.NewMongoStore(ctx, db)
		if err != nil {
			return err
		}
		usageStore, err = usage.NewMongoStore(ctx, db)
		if err != nil {
			return err
		}
	}

	recorder := usage.NewRecorder(usageStore, logger)
	defer recorder.Close()

	buildGuard := func(p llm.Provider) (*reliability.Guard, *reliability.Breaker) {
		backend := llm.BackendFor(&cfg.Provider, p.Name())
		adapter := llm.NewAdapter(p, metrics, logger, recorder)
		breaker := reliability.NewBreaker(reliability.BreakerConfig{
			Provider:              p.Name(),
			ErrorThresholdPercent: cfg.Breaker.ErrorThresholdPercent,
			ResetTimeout:          cfg.Breaker.ResetTimeout,
		}, metrics)
		guard := reliability.NewGuard(adapter, reliability.GuardConfig{
			Limiter: reliability.NewLimiter(p.Name(), backend.RPMLimit, 0, metrics),
			Breaker: breaker,
			Retry: reliability.RetryConfig{
				MaxAttempts:  backend.MaxRetries,
				InitialDelay: reliability.DefaultRetryConfig().InitialDelay,
				MaxDelay:     reliability.DefaultRetryConfig().MaxDelay,
				Factor:       reliability.DefaultRetryConfig().Factor,
				Jitter:       reliability.DefaultRetryConfig().Jitter,
			},
			Timeout: backend.Timeout,
			Metrics: metrics,
		}, logger)
		return guard, breaker
	}

	guard, breaker := buildGuard(provider)
	guarded := make(map[string]llm.Provider, len(backends))
	guarded[defaultName] = guard
	for name, p := range backends {
		if name == defaultName {
			continue
		}
		g, _ := buildGuard(p)
		guarded[name] = g
	}

	// Domain services and tools.
	catalog := domain.NewMemoryCatalog(domain.SeedItems())
	carts := domain.NewMemoryCart(catalog)
	checkout := domain.NewMemoryCheckout(carts)

	toolRegistry := tools.NewRegistry()
	toolRegistry.MustRegister(
		tools.NewSearchCatalogTool(catalog),
		tools.NewAddToCartTool(carts),
		tools.NewRemoveFromCartTool(carts),
		tools.NewGetCartTool(carts),
		tools.NewCheckoutTool(checkout),
	)
	executor := tools.NewExecutor(toolRegistry, cfg.Agent.ToolTimeout, metrics, logger)

	// Conversation and orchestration.
	manager := conversation.NewManager(convStore, logger)
	history := conversation.NewHistoryBuilder(provider.Info().Model, metrics, logger)
	moderation := safety.NewModeration(provider, cfg.Safety.ModerationEnabled, metrics, logger)

	orchestrator := agent.New(agent.Deps{
		Config:        cfg.Agent,
		Provider:      guard,
		Providers:     guarded,
		Registry:      toolRegistry,
		Executor:      executor,
		Conversations: manager,
		History:       history,
		Carts:         carts,
		Moderation:    moderation,
		Metrics:       metrics,
		Logger:        logger,
	})

	srv := server.New(server.Config{
		Addr:          cfg.Server.Addr,
		Orchestrator:  orchestrator,
		Conversations: manager,
		Breaker:       breaker,
		Provider:      provider,
		Usage:         usageStore,
		Gatherer:      registry,
		Logger:        logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
