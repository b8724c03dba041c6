package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docforest/docforest/internal/server"
	"github.com/docforest/docforest/internal/storage"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the organizer API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), flags, httpAddr)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "Address to listen on (overrides config.json)")
	return cmd
}

func serve(ctx context.Context, flags *rootFlags, httpAddr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := storage.LoadConfig(flags.dataDir)
	if err != nil {
		return err
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}

	app, err := server.NewApp(ctx, flags.dataDir, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("Failed to close storage", "err", err)
		}
	}()

	go func() {
		if err := server.WatchData(ctx, app, flags.dataDir); err != nil {
			slog.Warn("Data directory watch unavailable", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(app, version),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Serving", "addr", cfg.HTTPAddr, "tier", app.Store.Tier(), "nodes", app.Forest.Count())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Shut down cleanly")
	return nil
}
