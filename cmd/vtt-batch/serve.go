package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snarg/vtt-batch/internal/api"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long:  "Serve POST /batch-generate-vtt, GET /health and GET /metrics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, addr, os.Stdout)
			if err != nil {
				return err
			}
			return serve(a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func serve(a *app) error {
	log := a.log

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(a.cfg.Missing()) > 0 {
		log.Warn().Strs("missing", a.cfg.Missing()).Msg("required configuration is missing; /health will report unhealthy")
	}

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(a.cfg, api.ServerOptions{
		Runner:    a.runner,
		Bucket:    a.bucket,
		Provider:  a.provider,
		Version:   version,
		StartTime: a.startTime,
	}, httpLog)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	var srvErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case srvErr = <-errCh:
		if srvErr != nil {
			log.Error().Err(srvErr).Msg("http server error")
		}
	}

	// In-flight batch runs get the write timeout to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.WriteTimeout+10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("vtt-batch stopped")
	return srvErr
}
