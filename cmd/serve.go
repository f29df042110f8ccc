package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Billhebert/projeto-sass-sub006/internal/config"
	"github.com/Billhebert/projeto-sass-sub006/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon and its operational API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen address (default: from SASS_HOST)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default: from SASS_PORT)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort > 0 {
		cfg.Port = servePort
	}

	log.Logger = config.InitLogger(cfg.LogLevel)
	log.Info().
		Str("log_level", cfg.LogLevel).
		Msg("logger initialized")

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	if err := rt.engine.StartAll(); err != nil {
		return fmt.Errorf("arm auto sync: %w", err)
	}
	defer rt.engine.StopAll()

	srv := server.New(cfg, rt.accounts, rt.engine, rt.ring, rt.registry)

	startErrCh := make(chan error, 1)
	go func() {
		startErrCh <- srv.Start()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-startErrCh:
		if err != nil {
			log.Error().Err(err).Msg("serve exited with error")
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Stop(shutdownCtx); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("serve shutdown failed")
			return err
		}

		select {
		case err := <-startErrCh:
			if err != nil {
				log.Error().Err(err).Msg("serve exited after shutdown with error")
			}
			return err
		case <-time.After(10 * time.Second):
			log.Error().Msg("serve shutdown timed out")
			return fmt.Errorf("shutdown timeout")
		}
	}
}
