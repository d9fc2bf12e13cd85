package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
	"github.com/conveyor-dev/conveyor/internal/client"
)

func listParams(o *GetOptions) client.ListJobsParams {
	return client.ListJobsParams{
		Statuses: o.Statuses,
		Skip:     o.Skip,
		PageSize: o.Limit,
	}
}

type GetOptions struct {
	GlobalOptions

	Output   string
	Statuses []string
	Skip     int
	Limit    int
}

func DefaultGetOptions() *GetOptions {
	return &GetOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdGet() *cobra.Command {
	o := DefaultGetOptions()
	cmd := &cobra.Command{
		Use:   "get (jobs | jobs/ID)",
		Short: "Display one or many jobs.",
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

func (o *GetOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	fs.StringSliceVar(&o.Statuses, "status", nil, "Filter the listing by job status. Repeatable.")
	fs.IntVar(&o.Skip, "skip", 0, "Number of jobs to skip.")
	fs.IntVar(&o.Limit, "limit", 0, "Maximum number of jobs to return.")
}

func (o *GetOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	_, _, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}

	return nil
}

func (o *GetOptions) Run(ctx context.Context, args []string) error {
	c := o.Client()

	_, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	if id != "" {
		jobID, err := api.ParseJobID(id)
		if err != nil {
			return err
		}
		job, err := c.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if o.Output == "" {
			o.Output = yamlFormat
		}
		return printEncoded(job, o.Output)
	}

	result, err := c.ListJobs(ctx, listParams(o))
	if err != nil {
		return err
	}

	if o.Output != "" {
		return printEncoded(result, o.Output)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTATUS\tSTAGE\tHOSTNAME\tMODIFIED")
	for _, job := range result.Page {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			job.JobID, job.Status, job.CurrentWorker, job.CurrentWorkerHostname, job.ModifiedTime.Format("2006-01-02 15:04:05"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("showing %d of %d jobs\n", result.PageSize, result.Total)
	return nil
}
