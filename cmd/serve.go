package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/archive"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/config"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/provision"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/replicator"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/scripts"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/secrets"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/server"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/state"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/store"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the replication HTTP API",
	Long: `Run the HTTP API used by the UI: saved connections and configurations are
read from the local store, replication jobs can be started, tracked, streamed
over a websocket, and cancelled.

Examples:
  replicator serve
  replicator serve --listen :9090 --config /etc/replicator/replicator.yaml`,
	Run: func(cmd *cobra.Command, _ []string) {
		configPath, _ := cmd.Flags().GetString("config")
		listen, _ := cmd.Flags().GetString("listen")

		cfg, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		if listen != "" {
			cfg.ListenAddr = listen
		}
		logger := newLogger()

		cipher, err := secrets.New(cfg.Secret)
		if err != nil {
			log.Fatalf("Failed to initialize credential cipher: %v", err)
		}

		if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o755); err != nil {
			log.Fatalf("Failed to create store directory: %v", err)
		}
		st, err := store.OpenSQLite(cfg.StorePath, cipher)
		if err != nil {
			log.Fatalf("Failed to open store: %v", err)
		}
		defer st.Close()

		registry := state.NewRegistry(cfg.JobCapacity, cfg.JobRetention)
		adapter := archive.New(cfg.SQLPackagePath, cfg.TempDir, logger)
		orch := replicator.New(logger, registry, adapter, provision.New(logger), st, scripts.Run)

		srv := server.New(cfg.ListenAddr, orch, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case err := <-errCh:
			if err != nil {
				log.Fatalf("Server failed: %v", err)
			}
		case <-ctx.Done():
			logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Fatalf("Shutdown failed: %v", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("config", "", "Path to the configuration file")
	serveCmd.Flags().String("listen", "", "Listen address, overrides the configuration file")
}
