package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alpsla/codequal/internal/config"
)

// Output formats shared by every command that renders results.
const (
	outputMarkdown = "md"
	outputJSON     = "json"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "codequal",
	Short: "Adaptive AI code quality analysis",
	Long: `CodeQual analyzes repositories through an AI analysis service and keeps
asking until the picture is complete.

A run is a sequence of passes. The first pass requests a comprehensive
review; each later pass measures what the accumulated result still
lacks (empty categories, thin severity coverage, findings without file
and line) and asks specifically for that. Runs stop when the results
converge, progress stalls, or the iteration budget runs out.

Configuration layers from lowest to highest precedence: built-in
defaults, .codequal.yaml (or --config), CODEQUAL_* environment
variables, then command-line flags. The API key is read from
ANTHROPIC_API_KEY only and never lives in the config file.`,
}

// Execute runs the root command. Commands that fail mid-run exit
// themselves with a diagnostic; cobra reports usage errors.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadSettings builds the effective configuration from defaults, the
// config file, and CODEQUAL_* environment variables. Flag overrides are
// each command's job.
func loadSettings() (config.Settings, error) {
	return config.Load(configPath)
}

// requireOutputFormat exits when an --output value names an unknown
// format.
func requireOutputFormat(output string) {
	if output != outputMarkdown && output != outputJSON {
		fmt.Fprintf(os.Stderr, "Error: unknown output format %q (expected md or json)\n", output)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default .codequal.yaml when present)")
}
