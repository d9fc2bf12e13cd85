package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conveyor-dev/conveyor/pkg/version"
)

func NewCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print conveyor version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.Get().String())
			return nil
		},
	}
}
