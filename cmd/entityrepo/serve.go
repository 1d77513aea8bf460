package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foomo/entityrepo/pkg/connection"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve documents over HTTP while monitoring the engine connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = l.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			metrics, err := connection.NewMetrics(registry)
			if err != nil {
				return err
			}

			dial, err := cfg.Dialer(l)
			if err != nil {
				return err
			}
			manager, err := connection.Register(ctx, dial,
				append(cfg.MonitorOptions(),
					connection.WithLogger(l.Named("connection")),
					connection.WithSink(metrics),
				)...,
			)
			if err != nil {
				return err
			}
			defer manager.Close()

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           newRouter(l.Named("http"), manager, registry),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				l.Info("Starting HTTP server", zap.String("addr", cfg.HTTPAddr), zap.String("engine", cfg.Engine))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				l.Info("Received shutdown signal")
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				l.Error("Error during shutdown", zap.Error(err))
			}
			l.Info("Server stopped gracefully")
			return nil
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	return cmd
}
