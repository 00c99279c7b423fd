package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openalpha/options-exchange/api"
	"github.com/openalpha/options-exchange/api/websocket"
	"github.com/openalpha/options-exchange/config"
	"github.com/openalpha/options-exchange/exchange/correlator"
	"github.com/openalpha/options-exchange/exchange/engine"
	"github.com/openalpha/options-exchange/exchange/phase"
	"github.com/openalpha/options-exchange/exchange/pipeline"
	"github.com/openalpha/options-exchange/exchange/positions"
	"github.com/openalpha/options-exchange/exchange/publisher"
	"github.com/openalpha/options-exchange/exchange/teams"
	"github.com/openalpha/options-exchange/exchange/validator"
)

func newServeCmd() *cobra.Command {
	var configPath string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the exchange",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			return serve(cfg)
		},
	}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration")
	return serveCmd
}

func serve(cfg *config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	instruments, err := cfg.BuildInstruments()
	if err != nil {
		return fmt.Errorf("instruments: %w", err)
	}
	schedule, err := cfg.BuildSchedule()
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	constraints, err := cfg.BuildConstraints()
	if err != nil {
		return fmt.Errorf("constraints: %w", err)
	}

	registry := teams.NewRegistry(nil)
	store := positions.NewStore()
	phases := phase.NewManager(schedule, cfg.PhaseInterval(), logger)
	matcher := engine.New(instruments, phases.Current, logger)

	v := validator.New(constraints, &validator.Context{
		Positions:   store,
		Instruments: instruments,
		Mid:         matcher.Mid,
	}, registry, phases.Current, logger)

	corr := correlator.New(correlator.Config{
		DefaultTimeout:  time.Duration(cfg.ResponseCoordinator.DefaultTimeoutSeconds * float64(time.Second)),
		MaxPending:      cfg.ResponseCoordinator.MaxPendingRequests,
		CleanupInterval: time.Duration(cfg.ResponseCoordinator.CleanupIntervalSeconds * float64(time.Second)),
	}, logger)

	pub := publisher.New(registry, logger)
	hub := websocket.NewHub(registry, logger)

	pipe := pipeline.New(pipeline.Config{QueueSize: cfg.QueueSize}, v, matcher, pub, store, corr, hub, logger)
	phases.Subscribe(pipe.OnPhaseChange)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe.Start()
	phases.Start(ctx)

	server := api.NewServer(&api.Config{
		Addr:         cfg.ListenAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}, pipe, registry, store, matcher, phases, hub, logger)

	// Graceful shutdown: stop accepting HTTP first, then drain the
	// pipeline so in-flight trades settle.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
		pipe.Close()
		phases.Stop()
		corr.Close()
		cancel()
	}()

	return server.Start()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}
