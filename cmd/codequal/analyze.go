package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/alpsla/codequal/internal/adaptive"
	"github.com/alpsla/codequal/internal/deepwiki"
	"github.com/alpsla/codequal/internal/report"
	"github.com/alpsla/codequal/internal/store"
	"github.com/alpsla/codequal/internal/types"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <repository-url>",
	Short: "Run an adaptive analysis of a repository",
	Long: `Run an adaptive, gap-filling analysis of a repository.

The first pass asks the analysis service for a comprehensive review.
Every later pass targets what the accumulated result still lacks:
empty categories, thin severity coverage, findings without file and
line. The run stops when results converge, progress stalls, or the
iteration budget runs out.

Examples:
  # Analyze the main branch
  codequal analyze https://github.com/acme/payments

  # Analyze a feature branch with a bigger budget
  codequal analyze https://github.com/acme/payments --branch feature/auth --max-iterations 5

  # Machine-readable output for CI
  codequal analyze https://github.com/acme/payments --output json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repositoryURL := args[0]
		branch, _ := cmd.Flags().GetString("branch")
		output, _ := cmd.Flags().GetString("output")
		noSave, _ := cmd.Flags().GetBool("no-save")

		requireOutputFormat(output)

		settings, err := loadSettings()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		applyAnalyzeFlags(cmd, &settings.Adaptive)

		client, err := deepwiki.NewClient(settings.Client)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Make sure ANTHROPIC_API_KEY is set in your environment\n")
			os.Exit(1)
		}

		// Re-validates the config now that flags are applied on top.
		analyzer, err := adaptive.NewAnalyzer(client, settings.Adaptive)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()

		var s *spinner.Spinner
		if output == outputMarkdown {
			s = spinner.New(spinner.CharSets[11], 100*time.Millisecond)
			s.Suffix = fmt.Sprintf(" Analyzing %s...", analysisTarget(repositoryURL, branch))
			s.Start()
		}

		run, err := analyzer.AnalyzeWithGapFilling(ctx, repositoryURL, branch)
		if s != nil {
			s.Stop()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if !noSave {
			if err := saveRunHistory(ctx, settings.HistoryPath, run); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: run not recorded in history: %v\n", err)
			}
		}

		if output == outputJSON {
			data, err := report.JSON(run.Result)
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

// applyAnalyzeFlags overlays explicitly set flags on the loaded config.
// Unset flags leave the config file and environment values in place.
func applyAnalyzeFlags(cmd *cobra.Command, cfg *adaptive.Config) {
	if cmd.Flags().Changed("max-iterations") {
		cfg.MaxIterations, _ = cmd.Flags().GetInt("max-iterations")
	}
	if cmd.Flags().Changed("timeout") {
		cfg.CallTimeout, _ = cmd.Flags().GetDuration("timeout")
	}
	if cmd.Flags().Changed("min-completeness") {
		cfg.MinCompleteness, _ = cmd.Flags().GetFloat64("min-completeness")
	}
}

// analysisTarget formats repo@branch for progress messages.
func analysisTarget(repositoryURL, branch string) string {
	if branch == "" {
		branch = adaptive.DefaultBranch
	}
	return fmt.Sprintf("%s@%s", repositoryURL, branch)
}

// runMeta fills the report header from a finished run.
func runMeta(run *adaptive.RunResult) report.Meta {
	return report.Meta{
		RepositoryURL: run.RepositoryURL,
		Branch:        run.Branch,
		RunID:         run.RunID,
		GeneratedAt:   time.Now().UTC(),
		Iterations:    len(run.Iterations),
		Duration:      run.TotalDuration,
		Completeness:  run.Completeness,
		StopReason:    string(run.StopReason),
		Degraded:      run.Degraded,
	}
}

// saveRunHistory records a finished run in the history database.
func saveRunHistory(ctx context.Context, path string, run *adaptive.RunResult) error {
	st, err := store.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return st.SaveRun(ctx, run)
}

// printRunSummary prints a short colored wrap-up after the report.
func printRunSummary(run *adaptive.RunResult) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Println(strings.Repeat("─", 60))

	counts := run.Result.CountBySeverity()
	total := len(run.Result.Issues)
	switch {
	case total == 0:
		fmt.Printf("%s No issues found\n", green("✓"))
	case counts[types.SeverityCritical] > 0:
		fmt.Printf("%s Found %d issue(s), %d critical\n", red("✗"), total, counts[types.SeverityCritical])
	default:
		fmt.Printf("%s Found %d issue(s)\n", yellow("!"), total)
	}

	fmt.Printf("  Iterations:   %d\n", len(run.Iterations))
	fmt.Printf("  Completeness: %.1f%%\n", run.Completeness)
	fmt.Printf("  Stopped:      %s\n", run.StopReason)
	fmt.Printf("  Run ID:       %s\n", run.RunID)
	if run.Degraded {
		fmt.Printf("  %s Partial results: a later iteration failed\n", yellow("!"))
	}
}

func init() {
	analyzeCmd.Flags().StringP("branch", "b", "", "Branch to analyze (default main)")
	analyzeCmd.Flags().Int("max-iterations", 0, "Cap on analysis passes (default from config)")
	analyzeCmd.Flags().Duration("timeout", 0, "Per-call timeout, e.g. 90s (default from config)")
	analyzeCmd.Flags().Float64("min-completeness", 0, "Completeness score that ends the run early (default from config)")
	analyzeCmd.Flags().StringP("output", "o", outputMarkdown, "Output format (md, json)")
	analyzeCmd.Flags().Bool("no-save", false, "Skip recording the run in history")

	rootCmd.AddCommand(analyzeCmd)
}
