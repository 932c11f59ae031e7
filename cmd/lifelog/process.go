package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newProcessCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "process --file <recording>",
		Short: "Transcribe and summarize one recording now",
		Long: `Run the session pipeline on a single file without going through the task
queue: transcribe, clean, correlate desktop activity, summarize, verify and
archive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			ctx := cmd.Context()
			proc, err := a.newSessionProcessor(ctx)
			if err != nil {
				return err
			}
			res, err := proc.ProcessFile(ctx, file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Transcript: %s\n", res.TranscriptPath)
			fmt.Fprintf(out, "Summary:    %s\n", res.SummaryPath)
			fmt.Fprintf(out, "Activity:   %d event(s) between %s and %s\n", res.Events,
				res.Window[0].Format("15:04:05"), res.Window[1].Format("15:04:05"))
			if res.Evaluation != nil {
				fmt.Fprintf(out, "Evaluation: faithfulness %d/10, quality %d/10\n",
					res.Evaluation.FaithfulnessScore, res.Evaluation.QualityScore)
			}
			if res.ArchivePath != "" {
				fmt.Fprintf(out, "Archive:    %s\n", res.ArchivePath)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Recording to process")
	return cmd
}
