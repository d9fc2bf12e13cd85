package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conveyor-dev/conveyor/internal/config"
	"github.com/conveyor-dev/conveyor/internal/store"
	"github.com/conveyor-dev/conveyor/pkg/log"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run the database migration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.InitLog(zap.NewAtomicLevelAt(zap.InfoLevel))
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		cfg, err := config.New()
		if err != nil {
			return err
		}

		db, err := store.InitDB(cfg)
		if err != nil {
			return err
		}

		st := store.NewStore(db)
		defer st.Close()

		if err := st.InitialMigration(); err != nil {
			return err
		}

		zap.S().Info("migration complete")
		return nil
	},
}
