package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conveyor-dev/conveyor/internal/config"
	"github.com/conveyor-dev/conveyor/internal/queue"
	"github.com/conveyor-dev/conveyor/internal/storage"
	"github.com/conveyor-dev/conveyor/internal/worker"
	"github.com/conveyor-dev/conveyor/pkg/log"
)

var (
	workerType string
	hostname   string
)

var rootCmd = &cobra.Command{
	Use:   "conveyor-worker",
	Short: "Run a conveyor worker host",
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

		if hostname == "" {
			hostname, err = os.Hostname()
			if err != nil {
				return err
			}
		}

		if cfg.Queue.Url == "" {
			zap.S().Fatal("a worker needs a queue url, set CONVEYOR_QUEUE_URL")
		}
		q, err := queue.NewRabbitMQ(cfg.Queue.Url)
		if err != nil {
			zap.S().Fatalf("connecting to queue: %v", err)
		}
		defer q.Close()

		backend, err := storage.New(cfg)
		if err != nil {
			zap.S().Fatalf("initializing storage: %v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		runner := worker.NewRunner(hostname, q, backend, worker.NewEchoExecutor(workerType))

		zap.S().Infow("worker started", "hostname", hostname, "workerType", workerType)
		defer zap.S().Info("worker stopped")

		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&workerType, "worker-type", "build", "worker type this host executes")
	rootCmd.Flags().StringVar(&hostname, "hostname", "", "hostname reported to the scheduler, defaults to the OS hostname")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
