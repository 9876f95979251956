package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one batch and print the result",
		Long:  "Run a single batch transcription (for cron or serverless schedulers) and print the result as JSON on stdout. Logs go to stderr.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, "", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			res, err := a.runner.Run(context.Background())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
