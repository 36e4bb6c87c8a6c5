// services/vault/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/watchme-app/vault-api/services/common/config"
	"github.com/watchme-app/vault-api/services/common/metadata"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:          "vault",
		Short:        "WatchMe Vault API: audio and analysis artifact storage",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFiles)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv file(s) to load before reading the environment")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFiles)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the metadata schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), envFiles)
		},
	})
	return root
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func setup(envFiles []string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func runServe(ctx context.Context, envFiles []string) error {
	cfg, log, err := setup(envFiles)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("🚀 Starting Vault API...", zap.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	service := NewVaultService(cfg, log, b)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           service.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("✅ Vault API listening", zap.String("port", cfg.Port))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runMigrate(ctx context.Context, envFiles []string) error {
	cfg, log, err := setup(envFiles)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if !cfg.DatabaseConfigured() {
		return config.Error.New("metadata store is not configured")
	}
	store, err := metadata.Open(ctx, log.Named("metadata"), cfg.MetadataDriver, cfg.MetadataDSN())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	log.Info("✅ Metadata schema ready", zap.String("driver", cfg.MetadataDriver))
	return nil
}
