package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
)

type CreateOptions struct {
	GlobalOptions

	Filename string
	Output   string
}

func DefaultCreateOptions() *CreateOptions {
	return &CreateOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdCreate() *cobra.Command {
	o := DefaultCreateOptions()
	cmd := &cobra.Command{
		Use:   "create -f FILENAME",
		Short: "Submit a job pipeline from a yaml or json file.",
		Args:  cobra.NoArgs,
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

func (o *CreateOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Filename, "filename", "f", o.Filename, "File containing the job request. Yaml or json.")
	fs.StringVarP(&o.Output, "output", "o", o.Output, "Output format. One of: (json, yaml).")
}

func (o *CreateOptions) Validate(args []string) error {
	if o.Filename == "" {
		return fmt.Errorf("a job request file is required, use -f")
	}
	return nil
}

func (o *CreateOptions) Run(ctx context.Context, args []string) error {
	raw, err := os.ReadFile(o.Filename)
	if err != nil {
		return fmt.Errorf("reading %s: %w", o.Filename, err)
	}

	req := &api.JobRequest{}
	if err := yaml.Unmarshal(raw, req); err != nil {
		return fmt.Errorf("parsing %s: %w", o.Filename, err)
	}

	job, err := o.Client().CreateJob(ctx, req)
	if err != nil {
		return err
	}

	if o.Output != "" {
		return printEncoded(job, o.Output)
	}
	fmt.Printf("job %s created\n", job.JobID)
	return nil
}
