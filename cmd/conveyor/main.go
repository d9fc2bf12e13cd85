package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/conveyor-dev/conveyor/internal/cli"
)

func main() {
	command := NewConveyorCtlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewConveyorCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conveyor [flags] [options]",
		Short: "conveyor controls the conveyor job scheduler.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdGet())
	cmd.AddCommand(cli.NewCmdCreate())
	cmd.AddCommand(cli.NewCmdAbort())
	cmd.AddCommand(cli.NewCmdRestart())
	cmd.AddCommand(cli.NewCmdLogs())
	cmd.AddCommand(cli.NewCmdVersion())

	return cmd
}
