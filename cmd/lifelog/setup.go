package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Strob0t/lifelog/internal/adapter/localenv"
)

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec // G115: file descriptors fit in int
}

func newSetupCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the data directories and a default configuration",
		Long: `Create every directory lifelog writes to and, if the configuration file
does not exist yet, write one with the defaults. On a terminal the most
commonly changed settings are asked for first; pass --yes to accept the
defaults. The API key is never written to the file: set GOOGLE_API_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env := localenv.New(a.cfg, a.configPath)
			if !yes && stdinIsTerminal() {
				env.Interactive(cmd.InOrStdin(), cmd.OutOrStdout())
			}

			if err := env.EnsureDirectories(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range env.Dirs() {
				_, _ = fmt.Fprintf(out, "ok   %s\n", d)
			}

			path, created, err := env.EnsureConfig(ctx)
			if err != nil {
				return err
			}
			if created {
				_, _ = fmt.Fprintf(out, "new  %s\n", path)
			} else {
				_, _ = fmt.Fprintf(out, "kept %s\n", path)
			}
			if a.cfg.Gemini.APIKey == "" {
				_, _ = fmt.Fprintln(out, "GOOGLE_API_KEY is not set; sessions will get placeholder summaries")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Accept the defaults without prompting")
	return cmd
}
