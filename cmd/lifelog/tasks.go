package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Strob0t/lifelog/internal/domain/task"
)

func newTasksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and manage the task queue",
	}
	cmd.AddCommand(newTasksListCmd(a), newTasksRequeueCmd(a))
	return cmd
}

func newTasksListCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in queue order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := task.Status(strings.ToLower(status))
			if filter != "" && !filter.Valid() {
				return fmt.Errorf("unknown status %q (pending, processing, completed, failed)", status)
			}
			ctx := cmd.Context()
			tasks, err := a.openTasks(ctx)
			if err != nil {
				return err
			}
			list, err := tasks.List(ctx, filter)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No tasks found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tTYPE\tFILES")
			for i := range list {
				t := &list[i]
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					t.ID, t.CreatedAt.Local().Format(time.DateTime), t.Status, t.TaskType, strings.Join(t.FilePaths, ", "))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show tasks with this status")
	return cmd
}

func newTasksRequeueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>",
		Short: "Move a failed task back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tasks, err := a.openTasks(ctx)
			if err != nil {
				return err
			}
			t, err := tasks.Requeue(ctx, args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s is %s again\n", t.ID, t.Status)
			return nil
		},
	}
}
