package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

type rootFlags struct {
	envFile    string
	logLevel   string
	scratchDir string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:          "vtt-batch",
		Short:        "Batch subtitle generation for media in an object store",
		Long:         "vtt-batch scans a bucket for recently uploaded audio and video, transcribes each file to WebVTT and uploads the subtitles and a run log back to the bucket.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "path to .env file (default .env)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flags.scratchDir, "scratch-dir", "", "parent directory for run workspaces (overrides SCRATCH_DIR)")

	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newRunCmd(flags))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
