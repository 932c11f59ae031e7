package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWorkerCmd(a *app) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued tasks without capturing",
		Long: `Run the task worker on its own. It polls the task document, runs every
pending task through its handler and records the outcome.

The task document is locked per write, so a worker may run next to
'lifelog monitor --no-worker'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			w, err := a.newWorker(ctx)
			if err != nil {
				return err
			}
			if once {
				n, err := w.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d task(s) processed\n", n)
				return nil
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Drain the pending tasks once and exit")
	return cmd
}
