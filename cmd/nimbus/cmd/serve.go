package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/nimbus/internal/auth"
	"github.com/jmylchreest/nimbus/internal/catalog"
	"github.com/jmylchreest/nimbus/internal/database"
	"github.com/jmylchreest/nimbus/internal/events"
	"github.com/jmylchreest/nimbus/internal/gameservice"
	internalhttp "github.com/jmylchreest/nimbus/internal/http"
	"github.com/jmylchreest/nimbus/internal/http/handlers"
	"github.com/jmylchreest/nimbus/internal/models"
	"github.com/jmylchreest/nimbus/internal/presence"
	"github.com/jmylchreest/nimbus/internal/repository"
	"github.com/jmylchreest/nimbus/internal/session"
	"github.com/jmylchreest/nimbus/internal/transport"
	"github.com/jmylchreest/nimbus/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local control API",
	Long: `Run the local control API server.

The server provides:
- REST API for launching, canceling, and exiting sessions
- Catalog listing backed by the local cache
- Session event stream (SSE) for the overlay UI
- Health check endpoint and OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Host to bind to")
	serveCmd.Flags().Int("port", 0, "Port to listen on")
}

// eventsSink forwards stats samples to the event broadcaster.
type eventsSink struct {
	broadcaster *events.Broadcaster
}

func (s eventsSink) Push(sample models.StatsSample) {
	s.broadcaster.PublishStats(sample)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	stringFlagOverride(cmd.Flags(), "host", &cfg.Server.Host)
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	titleRepo := repository.NewTitleRepository(db.DB)

	creds := auth.NewFileSource(cfg.Auth.TokenFile, cfg.Auth.Token)

	catalogSvc := catalog.NewService(cfg.Catalog, titleRepo, creds, logger)
	if err := catalogSvc.Start(); err != nil {
		return fmt.Errorf("starting catalog refresher: %w", err)
	}
	defer catalogSvc.Stop()

	profiles, err := models.LoadProfiles(cfg.Session.ProfilesFile)
	if err != nil {
		return fmt.Errorf("loading quality profiles: %w", err)
	}

	broadcaster := events.NewBroadcaster(logger)
	defer broadcaster.Close()

	service := gameservice.New(cfg.Service, logger)
	engine := transport.NewEngine(cfg.Transport, logger)
	reporter := presence.NewReporter(cfg.Presence, creds, logger)

	sessionCfg := session.DefaultConfig()
	sessionCfg.StatsInterval = cfg.Session.StatsInterval
	sessionCfg.StallWarnAfter = cfg.Session.StallWarnAfter
	sessionCfg.MountPoint = cfg.Transport.MountPoint

	gate := session.NewRequestGate(creds)
	controller := session.NewController(sessionCfg, gate, service, engine, reporter, eventsSink{broadcaster}, logger).
		WithPhaseListener(broadcaster.PublishPhase)

	server := internalhttp.NewServer(cfg.Server, logger, version.Short())

	handlers.NewSessionHandler(controller, catalogSvc, profiles, cfg.Session.DefaultProfile, logger).Register(server.API())
	handlers.NewCatalogHandler(catalogSvc).Register(server.API())
	handlers.NewHealthHandler(version.Short()).
		WithController(controller).
		WithDB(db.DB).
		Register(server.API())
	handlers.NewEventsHandler(broadcaster, logger).RegisterSSE(server.Router())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("nimbus started",
		slog.String("version", version.Short()),
		slog.String("address", cfg.Server.Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	// An established session is torn down before the process exits so the
	// remote side releases its slot.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch controller.Phase() {
	case models.PhaseConnected, models.PhaseStreamingActive:
		if err := controller.Exit(shutdownCtx); err != nil {
			logger.Warn("session exit during shutdown failed",
				slog.String("error", err.Error()))
		}
	case models.PhaseRequesting, models.PhaseAwaitingServer:
		if err := controller.Cancel(shutdownCtx); err != nil {
			logger.Warn("launch cancel during shutdown failed",
				slog.String("error", err.Error()))
		}
	}

	reporter.Flush(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
