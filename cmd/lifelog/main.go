package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Strob0t/lifelog/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	defer a.close()
	return newRootCmd(a).ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "lifelog",
		Short: "Presence-triggered audio capture and session summaries",
		Long: `lifelog records audio while a tracked application (VRChat, Discord, ...)
is running, queues every finished recording as a task and turns it into a
transcript and a summary correlated with desktop activity.

Running lifelog without a subcommand is the same as 'lifelog monitor'.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd.Context(), a, false)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultConfigFile, "Path to the YAML configuration file")
	root.PersistentFlags().BoolVar(&a.dryRun, "dry-run", false, "Use offline stand-ins instead of the content generation API")

	root.AddCommand(
		newMonitorCmd(a),
		newWorkerCmd(a),
		newRecordCmd(a),
		newProcessCmd(a),
		newStatusCmd(a),
		newSetupCmd(a),
		newDoctorCmd(a),
		newDevicesCmd(a),
		newTasksCmd(a),
	)
	return root
}
