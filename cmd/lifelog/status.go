package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Strob0t/lifelog/internal/domain/task"
	"github.com/Strob0t/lifelog/internal/service"
)

var statusOrder = []task.Status{task.StatusPending, task.StatusProcessing, task.StatusCompleted, task.StatusFailed}

func newStatusCmd(a *app) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent recordings and the task queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tasks, err := a.openTasks(ctx)
			if err != nil {
				return err
			}
			rep, err := service.NewStatusService(tasks, a.cfg.Paths.RecordingsDir, a.cfg.Capture).Report(ctx, window)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "Since\t%s\n", rep.Since.Format(time.DateTime))
			_, _ = fmt.Fprintf(w, "Recordings\t%d (%.2f h) in %s\n", rep.Recordings, rep.RecordedHours, rep.RecordingsDir)
			if rep.Partial > 0 {
				_, _ = fmt.Fprintf(w, "Partial\t%d (recording now, or awaiting recovery)\n", rep.Partial)
			}
			_, _ = fmt.Fprintf(w, "Tasks created\t%d\n", rep.TasksCreated)
			for _, s := range statusOrder {
				_, _ = fmt.Fprintf(w, "  %s\t%d\n", s, rep.TasksByStatus[s])
			}
			return w.Flush()
		},
	}
	cmd.Flags().DurationVar(&window, "since", 24*time.Hour, "Reporting window")
	return cmd
}
