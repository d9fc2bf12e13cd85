package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
)

type LogsOptions struct {
	GlobalOptions

	System bool
	JobID  string
	Skip   int
	Limit  int
	Output string
}

func DefaultLogsOptions() *LogsOptions {
	return &LogsOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdLogs() *cobra.Command {
	o := DefaultLogsOptions()
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display job execution logs or worker heartbeats.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *LogsOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.BoolVar(&o.System, "system", false, "Show worker heartbeat entries instead of job logs.")
	fs.StringVar(&o.JobID, "job", "", "Restrict job logs to one job id.")
	fs.IntVar(&o.Skip, "skip", 0, "Number of entries to skip.")
	fs.IntVar(&o.Limit, "limit", 0, "Maximum number of entries to return.")
	fs.StringVarP(&o.Output, "output", "o", o.Output, "Output format. One of: (json, yaml).")
}

func (o *LogsOptions) Run(ctx context.Context, args []string) error {
	c := o.Client()

	if o.System {
		result, err := c.ListSystemLogs(ctx, o.Skip, o.Limit)
		if err != nil {
			return err
		}
		if o.Output != "" {
			return printEncoded(result, o.Output)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tWORKER TYPE\tHOSTNAME\tCONTENT")
		for _, entry := range result.Page {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				entry.TimeStamp.Format("2006-01-02 15:04:05"), entry.WorkerType, entry.WorkerHostname, string(entry.Content))
		}
		return w.Flush()
	}

	var jobID *api.JobID
	if o.JobID != "" {
		id, err := api.ParseJobID(o.JobID)
		if err != nil {
			return err
		}
		jobID = &id
	}

	result, err := c.ListJobLogs(ctx, jobID, o.Skip, o.Limit)
	if err != nil {
		return err
	}
	if o.Output != "" {
		return printEncoded(result, o.Output)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tJOB\tWORKER TYPE\tHOSTNAME\tCONTENT")
	for _, entry := range result.Page {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			entry.TimeStamp.Format("2006-01-02 15:04:05"), entry.JobID, entry.WorkerType, entry.WorkerHostname, string(entry.Content))
	}
	return w.Flush()
}
