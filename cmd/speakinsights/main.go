package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "speakinsights",
	Short: "Meeting intelligence: transcription, analysis and archive",
	Long: `speakinsights turns meeting recordings into searchable intelligence:
transcripts (with speaker labels when the diarization sidecar is up),
summaries, sentiment and action items, stored in a local SQLite archive
and served over a REST API plus an MCP server for assistants.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the speakinsights version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("speakinsights %s\n", version)
	},
}

func main() {
	_ = godotenv.Load()

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SPEAKINSIGHTS_CONFIG"), "path to YAML config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(meetingsCmd)
	rootCmd.AddCommand(processCmd)

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
