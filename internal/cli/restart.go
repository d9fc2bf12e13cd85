package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
)

type RestartOptions struct {
	GlobalOptions

	RestartFrom int
}

func DefaultRestartOptions() *RestartOptions {
	return &RestartOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdRestart() *cobra.Command {
	o := DefaultRestartOptions()
	cmd := &cobra.Command{
		Use:   "restart jobs/ID",
		Short: "Re-run a finished or aborted job from a given stage.",
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

func (o *RestartOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.IntVar(&o.RestartFrom, "from", -1, "Stage index to restart from. Defaults to the last stage.")
}

func (o *RestartOptions) Validate(args []string) error {
	_, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("a job id is required, use jobs/ID")
	}
	if o.RestartFrom < -1 {
		return fmt.Errorf("restart stage must be -1 (last stage) or a stage index")
	}
	return nil
}

func (o *RestartOptions) Run(ctx context.Context, args []string) error {
	_, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}
	jobID, err := api.ParseJobID(id)
	if err != nil {
		return err
	}

	job, err := o.Client().RestartJob(ctx, jobID, o.RestartFrom)
	if err != nil {
		return err
	}
	fmt.Printf("job %s restarted from stage %d, now %s\n", job.JobID, job.CurrentWorker, job.Status)
	return nil
}
