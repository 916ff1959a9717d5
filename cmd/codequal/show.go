package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alpsla/codequal/internal/adaptive"
	"github.com/alpsla/codequal/internal/report"
	"github.com/alpsla/codequal/internal/store"
)

var showCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Display a stored analysis run",
	Long: `Render a previously stored run as a full report.

With a run ID, shows that run. Without one, shows the latest stored
run for --repo and --branch.

Examples:
  # Show a specific run
  codequal show 6ba7b810-9dad-11d1-80b4-00c04fd430c8

  # Show the latest run for a repository's main branch
  codequal show --repo https://github.com/acme/payments

  # Latest run for a feature branch
  codequal show --repo https://github.com/acme/payments --branch feature/auth`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo, _ := cmd.Flags().GetString("repo")
		branch, _ := cmd.Flags().GetString("branch")
		output, _ := cmd.Flags().GetString("output")

		requireOutputFormat(output)
		if len(args) == 0 && repo == "" {
			fmt.Fprintf(os.Stderr, "Error: a run ID or --repo is required\n")
			os.Exit(1)
		}

		settings, err := loadSettings()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		st, err := store.Open(ctx, settings.HistoryPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = st.Close() }()

		var run *adaptive.RunResult
		if len(args) == 1 {
			run, err = st.GetRun(ctx, args[0])
		} else {
			run, err = st.LatestRun(ctx, repo, branch)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if run == nil {
			fmt.Fprintf(os.Stderr, "Error: no matching run in history\n")
			os.Exit(1)
		}

		if output == outputJSON {
			data, err := json.MarshalIndent(run, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
			return
		}

		fmt.Println(report.Markdown(run.Result, runMeta(run)))
		printRunSummary(run)
	},
}

func init() {
	showCmd.Flags().String("repo", "", "Repository URL to look up when no run ID is given")
	showCmd.Flags().String("branch", adaptive.DefaultBranch, "Branch to look up when no run ID is given")
	showCmd.Flags().StringP("output", "o", outputMarkdown, "Output format (md, json)")

	rootCmd.AddCommand(showCmd)
}
