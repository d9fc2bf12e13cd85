package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/conveyor-dev/conveyor/internal/api_server"
	"github.com/conveyor-dev/conveyor/internal/config"
	"github.com/conveyor-dev/conveyor/internal/events"
	"github.com/conveyor-dev/conveyor/internal/queue"
	"github.com/conveyor-dev/conveyor/internal/scheduler"
	"github.com/conveyor-dev/conveyor/internal/store"
	"github.com/conveyor-dev/conveyor/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the conveyor scheduler and API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
		if err != nil {
			logLvl = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
		logger := log.InitLog(logLvl)
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting conveyor API service")
		defer zap.S().Info("Conveyor API service stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalf("initializing data store: %v", err)
		}

		st := store.NewStore(db)
		defer st.Close()

		if err := st.InitialMigration(); err != nil {
			zap.S().Fatalf("running initial migration: %v", err)
		}

		q, err := newQueue(cfg)
		if err != nil {
			zap.S().Fatalf("connecting to queue: %v", err)
		}
		defer q.Close()

		ep := events.NewEventProducer(events.NewStdoutWriter())
		defer func() { _ = ep.Close() }()

		engine := scheduler.NewEngine(cfg, st, q, ep)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		// jobs in flight before the restart have no owner anymore
		if err := engine.AbortLeftovers(ctx); err != nil {
			zap.S().Fatalf("aborting leftover jobs: %v", err)
		}

		go func() {
			defer cancel()
			if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
				zap.S().Errorf("scheduler terminated: %s", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalf("creating listener: %s", err)
			}
			server := apiserver.New(cfg, st, engine, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalf("Error running server: %s", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalf("creating metrics listener: %s", err)
			}
			server := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalf("Error running metrics server: %s", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newQueue(cfg *config.Config) (queue.Queue, error) {
	if cfg.Queue.Url == "" {
		zap.S().Warn("no queue url configured, using the in-process queue")
		return queue.NewInMemory(), nil
	}
	return queue.NewRabbitMQ(cfg.Queue.Url)
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
