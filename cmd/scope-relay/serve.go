// ABOUTME: The serve command: wires store, pipeline, connectors, and the registration surface
// ABOUTME: Blocks until SIGINT/SIGTERM, then shuts everything down gracefully

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cobrachicken/scope-relay/internal/config"
	"github.com/cobrachicken/scope-relay/internal/connectors/discord"
	"github.com/cobrachicken/scope-relay/internal/connectors/matrix"
	slackconn "github.com/cobrachicken/scope-relay/internal/connectors/slack"
	"github.com/cobrachicken/scope-relay/internal/relay"
	"github.com/cobrachicken/scope-relay/internal/store"
	"github.com/cobrachicken/scope-relay/internal/surface"
)

// shutdownTimeout bounds graceful HTTP server shutdown.
const shutdownTimeout = 10 * time.Second

// runner is one long-lived platform connector.
type runner interface {
	relay.Binding
	Run(ctx context.Context) error
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Community: %s\n", cfg.Scope.Slug)
	fmt.Println()

	logger.Info("starting scope-relay",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"scope", cfg.Scope.Slug,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	scope, err := ensureScope(ctx, st, cfg.Scope)
	if err != nil {
		return err
	}

	// Metrics are optional; a nil *relay.Metrics records nothing.
	var metrics *relay.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = relay.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	registry := relay.NewRegistry()
	pipeline := relay.New(scope.ID, st, registry, relay.Config{
		MinLength:        cfg.Relay.MinLength,
		MaxLength:        cfg.Relay.MaxLength,
		Marker:           cfg.Relay.Marker,
		SummaryThreshold: cfg.Relay.SummaryThreshold,
		SummaryWindow:    cfg.Relay.SummaryWindow,
		DispatchTimeout:  cfg.Relay.DispatchTimeout,
		DedupeTTL:        cfg.Relay.DedupeTTL,
	}, metrics)

	runners, err := buildConnectors(ctx, st, scope.ID, cfg.Connectors, pipeline)
	if err != nil {
		return err
	}
	for _, r := range runners {
		registry.Register(r)
	}

	// Run connectors; the first fatal connector error takes the process down.
	runErr := make(chan error, len(runners)+1)
	for _, r := range runners {
		go func(r runner) {
			if err := r.Run(ctx); err != nil {
				runErr <- fmt.Errorf("%s connector: %w", r.Platform(), err)
			}
		}(r)
	}

	// Registration surface
	var opts []surface.Option
	if metricsHandler != nil {
		opts = append(opts, surface.WithMetricsHandler(cfg.Metrics.Path, metricsHandler))
	}
	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: surface.NewServer(st, opts...).Routes(),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info("scope-relay running",
		"connectors", len(runners),
		"scope_id", scope.ID,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-runErr:
		logger.Error("fatal component error", "error", err)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	return nil
}

// ensureScope loads the configured community scope, creating it on
// first run when it does not exist yet.
func ensureScope(ctx context.Context, st store.Store, cfg config.ScopeConfig) (*store.Scope, error) {
	scope, err := st.GetScopeBySlug(ctx, cfg.Slug)
	if err == nil {
		return scope, nil
	}
	if !errors.Is(err, store.ErrScopeNotFound) {
		return nil, fmt.Errorf("loading scope: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = cfg.Slug
	}
	scope = &store.Scope{Name: name, Slug: cfg.Slug, OwnerID: cfg.OwnerEmail}
	if err := st.CreateScope(ctx, scope); err != nil {
		return nil, fmt.Errorf("creating scope: %w", err)
	}

	if err := st.AppendProvenance(ctx, &store.Provenance{
		ScopeID:        scope.ID,
		Action:         store.ActionScopeCreated,
		SourceIdentity: &scope.OwnerID,
		SubjectID:      &scope.ID,
		Detail:         map[string]any{"name": scope.Name, "slug": scope.Slug},
	}); err != nil {
		return nil, fmt.Errorf("recording scope creation: %w", err)
	}

	slog.Info("created community scope", "slug", scope.Slug, "id", scope.ID)
	return scope, nil
}

// buildConnectors constructs the enabled platform connectors and
// registers their connector and binding rows so the pipeline's fan-out
// sees them immediately.
func buildConnectors(ctx context.Context, st store.Store, scopeID string, cfg config.ConnectorsConfig, pipeline *relay.Pipeline) ([]runner, error) {
	var runners []runner

	if cfg.Discord.Enabled {
		conn, err := discord.New(cfg.Discord, pipeline)
		if err != nil {
			return nil, fmt.Errorf("creating discord connector: %w", err)
		}
		if err := registerIntegrations(ctx, st, scopeID, "discord", cfg.Discord.DefaultChannelID); err != nil {
			return nil, err
		}
		runners = append(runners, conn)
	}

	if cfg.Matrix.Enabled {
		conn, err := matrix.New(cfg.Matrix, pipeline)
		if err != nil {
			return nil, fmt.Errorf("creating matrix connector: %w", err)
		}
		if err := registerIntegrations(ctx, st, scopeID, "matrix", cfg.Matrix.DefaultRoomID); err != nil {
			return nil, err
		}
		runners = append(runners, conn)
	}

	if cfg.Slack.Enabled {
		conn := slackconn.New(cfg.Slack, pipeline)
		if err := registerIntegrations(ctx, st, scopeID, "slack", cfg.Slack.DefaultChannelID); err != nil {
			return nil, err
		}
		runners = append(runners, conn)
	}

	return runners, nil
}

// registerIntegrations upserts the connector and binding rows for one
// configured platform. A platform with no default channel still gets a
// connector row (inbound only); it just won't be a fan-out destination.
func registerIntegrations(ctx context.Context, st store.Store, scopeID, platform, defaultChannelID string) error {
	if err := st.UpsertConnector(ctx, &store.Connector{
		ScopeID:  scopeID,
		Platform: platform,
		Config:   map[string]string{},
		Active:   true,
	}); err != nil {
		return fmt.Errorf("registering %s connector: %w", platform, err)
	}

	config := map[string]string{}
	if defaultChannelID != "" {
		config["default_channel_id"] = defaultChannelID
	}
	if err := st.UpsertBinding(ctx, &store.Binding{
		ScopeID:  scopeID,
		Platform: platform,
		Config:   config,
		Active:   true,
	}); err != nil {
		return fmt.Errorf("registering %s binding: %w", platform, err)
	}
	return nil
}
