package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
)

type AbortOptions struct {
	GlobalOptions
}

func DefaultAbortOptions() *AbortOptions {
	return &AbortOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdAbort() *cobra.Command {
	o := DefaultAbortOptions()
	cmd := &cobra.Command{
		Use:   "abort jobs/ID",
		Short: "Abort a running job.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *AbortOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *AbortOptions) Validate(args []string) error {
	_, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("a job id is required, use jobs/ID")
	}
	return nil
}

func (o *AbortOptions) Run(ctx context.Context, args []string) error {
	_, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}
	jobID, err := api.ParseJobID(id)
	if err != nil {
		return err
	}

	job, err := o.Client().AbortJob(ctx, jobID)
	if err != nil {
		return err
	}
	fmt.Printf("job %s is now %s\n", job.JobID, job.Status)
	return nil
}
