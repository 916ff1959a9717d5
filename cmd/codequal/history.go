package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/alpsla/codequal/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored analysis runs",
	Long: `List analysis runs recorded in the local history database, newest
first.

Examples:
  # All recent runs
  codequal history

  # Runs for one repository
  codequal history --repo https://github.com/acme/payments --limit 10`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		repo, _ := cmd.Flags().GetString("repo")
		limit, _ := cmd.Flags().GetInt("limit")
		output, _ := cmd.Flags().GetString("output")

		requireOutputFormat(output)

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

		runs, err := st.ListRuns(ctx, repo, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if output == outputJSON {
			data, err := json.MarshalIndent(runs, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
			return
		}

		if len(runs) == 0 {
			fmt.Println("No stored runs.")
			return
		}
		printHistory(runs)
	},
}

func printHistory(runs []store.RunSummary) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, run := range runs {
		marker := green("✓")
		if !run.Converged {
			marker = yellow("!")
		}
		fmt.Printf("%s %s  %s@%s\n",
			marker, run.CreatedAt.Local().Format("2006-01-02 15:04"), run.RepositoryURL, run.Branch)
		fmt.Printf("    Run ID:       %s\n", run.RunID)
		fmt.Printf("    Issues:       %d\n", run.IssueCount)
		fmt.Printf("    Completeness: %.1f%% after %d iteration(s), stopped: %s\n",
			run.Completeness, run.Iterations, run.StopReason)
		if run.Degraded {
			fmt.Printf("    %s Partial results\n", yellow("!"))
		}
		fmt.Println()
	}
	fmt.Printf("%d run(s)\n", len(runs))
}

func init() {
	historyCmd.Flags().String("repo", "", "Only list runs for this repository URL")
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 = all)")
	historyCmd.Flags().StringP("output", "o", outputMarkdown, "Output format (md, json)")

	rootCmd.AddCommand(historyCmd)
}
