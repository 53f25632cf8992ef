package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitabwire/maximiza/internal/backend"
	"github.com/pitabwire/maximiza/internal/capability"
	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/internal/guard"
	"github.com/pitabwire/maximiza/internal/metadata"
	"github.com/pitabwire/maximiza/internal/observability"
	"github.com/pitabwire/maximiza/internal/search"
	"github.com/pitabwire/maximiza/internal/session"
	"github.com/pitabwire/maximiza/internal/store"
	"github.com/pitabwire/maximiza/internal/transport"
	"github.com/pitabwire/maximiza/internal/views"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the console HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	// Step 1: telemetry.
	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "maximiza-console", version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 2: backend contract and definitions.
	index, registry, err := loadDefinitions(cfg)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return err
	}
	metrics.SetDefinitionsLoaded(registry.Len())
	metrics.SetOpenAPIOperationsIndexed(index.Count())

	// Step 3: sessions, backend and capabilities.
	sessions, err := session.NewManagerFromConfig(cfg.Session)
	if err != nil {
		return err
	}
	client := backend.NewClient(cfg.Backend, logger, metrics)

	policy, err := capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
	if err != nil {
		return fmt.Errorf("static policy: %w", err)
	}
	resolver := capability.NewResolver(policy, cfg.Capability.Cache.TTL, cfg.Capability.Cache.MaxEntries, metrics)

	routeGuard, err := guard.New(append(guard.DefaultRules(), guard.RulesFromPages(registry.AllPages())...))
	if err != nil {
		return err
	}

	// Step 4: application state and providers.
	st := store.New(client, resolver, index, cfg.Collections.Cache, metrics, logger)
	viewManager := views.NewManager(registry, st, cfg.Views, metrics, logger)
	defer viewManager.Close()
	lookups := search.NewLookupProvider(registry, st, cfg.Lookup.Cache, metrics)
	defer lookups.Close()

	router := transport.NewRouter(transport.Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: registry.Loaded,
			Backend:           client,
			SessionStore:      sessions.Store(),
		},
		Backend:            client,
		Sessions:           sessions,
		CapabilityResolver: resolver,
		Guard:              routeGuard,
		Store:              st,
		Views:              viewManager,
		Menu:               metadata.NewMenuProvider(registry),
		Pages:              metadata.NewPageProvider(registry, st, metadata.NewActionProvider(), logger),
		Forms:              metadata.NewFormProvider(st),
		Dashboard:          metadata.NewDashboardProvider(client),
		Search:             search.NewSearchProvider(registry, st, cfg.Search, metrics),
		Lookups:            lookups,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 5: serve until a signal or a listener error.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Int("definitions", registry.Len()),
		zap.String("session_store", cfg.Session.Store.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete", zap.Int("pid", os.Getpid()))
	return nil
}
