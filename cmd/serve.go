package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crabitat/crabitat/internal/config"
	"github.com/crabitat/crabitat/internal/forge"
	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/controlplane"
	"github.com/crabitat/crabitat/internal/orchestration/controlplane/api"
	"github.com/crabitat/crabitat/internal/orchestration/events"
	"github.com/crabitat/crabitat/internal/orchestration/session"
	"github.com/crabitat/crabitat/internal/orchestration/tracing"
	"github.com/crabitat/crabitat/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane daemon",
	Long: `Run the control plane: the HTTP API, the worker and console
websockets, and the merge-wait PR poller.

Worker crabs register with POST /v1/crabs/register and hold a websocket
open on /v1/ws/crab/{crab_id} for task assignments. Consoles (the watch
command) subscribe on /v1/ws/console.

Example:
  crabitat serve                  # listen on the configured port (8800)
  crabitat serve --addr :9000     # override the listen address`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides config)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cleanup, err := setupLogging("crabitat-serve")
	if err != nil {
		return err
	}
	defer cleanup()

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info(log.CatConfig, "Crabitat control plane starting",
		"store", cfg.Store.Path, "workflows_dir", cfg.Workflows.Dir)

	provider, err := tracing.NewProvider(cfg.Tracing.TracerConfig())
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	db, err := sqlite.NewDB(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store %s: %w", cfg.Store.Path, err)
	}
	defer func() { _ = db.Close() }()

	// Built-in workflows plus any user manifests in the configured dir.
	registry, err := workflow.LoadRegistry(cfg.Workflows.Dir)
	if err != nil {
		return fmt.Errorf("loading workflows: %w", err)
	}
	log.Info(log.CatWorkflow, "Workflows loaded", "names", registry.Names())

	sessions := session.NewRegistry()
	defer sessions.Close()
	bus := events.NewBus()
	defer bus.Close()

	// Without a token the control plane still runs; issue listing and
	// PR polling just report the forge as unconfigured.
	var forgeClient forge.Client
	if token := cfg.Forge.Token(); token != "" {
		forgeClient = forge.NewGitHub(forge.GitHubConfig{Token: token, BaseURL: cfg.Forge.BaseURL})
		log.Info(log.CatForge, "Forge enabled", "token_env", cfg.Forge.TokenEnv)
	} else {
		log.Warn(log.CatForge, "No forge token found, issue listing and PR polling disabled",
			"token_env", cfg.Forge.TokenEnv)
	}

	svc, err := controlplane.New(controlplane.Config{
		Store:     db,
		Workflows: registry,
		Sessions:  sessions,
		Events:    bus,
		Forge:     forgeClient,
		Tracer:    provider.Tracer(),
	})
	if err != nil {
		return fmt.Errorf("creating control plane: %w", err)
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Listen.Addr()
	}

	server, err := api.NewServer(api.ServerConfig{
		Addr:     addr,
		Service:  svc,
		Sessions: sessions,
		Events:   bus,
		Tracer:   provider.Tracer(),
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller := controlplane.NewPoller(svc, cfg.Poller.Interval)
	go poller.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("Crabitat control plane listening on port %d\n", server.Port())
	fmt.Println("Press Ctrl+C to stop")

	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error(log.CatHTTP, "Error stopping API server", "error", err)
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.Error(log.CatConfig, "Error shutting down tracing", "error", err)
	}

	fmt.Println("Control plane stopped")
	return nil
}
