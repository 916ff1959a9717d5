package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alpsla/codequal/internal/adaptive"
	"github.com/alpsla/codequal/internal/deepwiki"
	"github.com/alpsla/codequal/internal/report"
	"github.com/alpsla/codequal/internal/types"
)

var compareCmd = &cobra.Command{
	Use:   "compare <repository-url>",
	Short: "Compare analysis findings between two branches",
	Long: `Analyze two branches of the same repository and report which issues the
head branch introduces, which it resolves, and which persist.

Both branches are analyzed concurrently with the same settings. Issues
are matched by identity (exact title, exact file and line, or shared
description prefix), so a finding that moved a few lines still counts
as the same issue.

Exits 1 when the head branch introduces new issues, so the command can
gate merges in CI.

Examples:
  # Compare a feature branch against main
  codequal compare https://github.com/acme/payments --head feature/auth

  # Compare two release branches
  codequal compare https://github.com/acme/payments --base release/1.2 --head release/1.3`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repositoryURL := args[0]
		base, _ := cmd.Flags().GetString("base")
		head, _ := cmd.Flags().GetString("head")
		output, _ := cmd.Flags().GetString("output")
		noSave, _ := cmd.Flags().GetBool("no-save")

		requireOutputFormat(output)
		if head == "" {
			fmt.Fprintf(os.Stderr, "Error: --head is required\n")
			os.Exit(1)
		}
		if head == base {
			fmt.Fprintf(os.Stderr, "Error: --base and --head name the same branch %q\n", base)
			os.Exit(1)
		}

		settings, err := loadSettings()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		client, err := deepwiki.NewClient(settings.Client)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Make sure ANTHROPIC_API_KEY is set in your environment\n")
			os.Exit(1)
		}

		analyzer, err := adaptive.NewAnalyzer(client, settings.Adaptive)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()

		var s *spinner.Spinner
		if output == outputMarkdown {
			s = spinner.New(spinner.CharSets[11], 100*time.Millisecond)
			s.Suffix = fmt.Sprintf(" Analyzing %s and %s...", base, head)
			s.Start()
		}

		// The analyzer carries no per-run state, so one instance serves
		// both branches. The client's concurrency cap paces the calls.
		var baseRun, headRun *adaptive.RunResult
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			run, err := analyzer.AnalyzeWithGapFilling(gctx, repositoryURL, base)
			if err != nil {
				return fmt.Errorf("analyzing %s: %w", base, err)
			}
			baseRun = run
			return nil
		})
		g.Go(func() error {
			run, err := analyzer.AnalyzeWithGapFilling(gctx, repositoryURL, head)
			if err != nil {
				return fmt.Errorf("analyzing %s: %w", head, err)
			}
			headRun = run
			return nil
		})
		err = g.Wait()
		if s != nil {
			s.Stop()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if !noSave {
			for _, run := range []*adaptive.RunResult{baseRun, headRun} {
				if err := saveRunHistory(ctx, settings.HistoryPath, run); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: run not recorded in history: %v\n", err)
					break
				}
			}
		}

		cmp := report.Diff(baseRun.Result, headRun.Result)

		if output == outputJSON {
			data, err := json.MarshalIndent(cmp, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
		} else {
			printComparison(base, head, cmp)
		}

		if len(cmp.New) > 0 {
			os.Exit(1) // Exit with error code when the head branch introduces issues
		}
	},
}

func printComparison(base, head string, cmp report.Comparison) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== %s vs %s ===", base, head)))

	if len(cmp.New) == 0 {
		fmt.Printf("%s No new issues introduced\n", green("✓"))
	} else {
		fmt.Printf("%s %d new issue(s) introduced:\n", red("✗"), len(cmp.New))
		for i := range cmp.New {
			printComparisonIssue(&cmp.New[i])
		}
	}
	fmt.Println()

	if len(cmp.Resolved) > 0 {
		fmt.Printf("%s %d issue(s) resolved:\n", green("✓"), len(cmp.Resolved))
		for i := range cmp.Resolved {
			printComparisonIssue(&cmp.Resolved[i])
		}
		fmt.Println()
	}

	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("New: %d  Resolved: %d  Persisting: %d\n",
		len(cmp.New), len(cmp.Resolved), len(cmp.Persisting))
}

func printComparisonIssue(issue *types.Issue) {
	line := fmt.Sprintf("  - [%s] %s", issue.Severity, report.IssueTitle(issue))
	if loc := issue.Location.String(); loc != "" {
		line += fmt.Sprintf(" (%s)", loc)
	}
	fmt.Println(line)
}

func init() {
	compareCmd.Flags().String("base", adaptive.DefaultBranch, "Base branch to compare against")
	compareCmd.Flags().String("head", "", "Branch whose changes are under review (required)")
	compareCmd.Flags().StringP("output", "o", outputMarkdown, "Output format (md, json)")
	compareCmd.Flags().Bool("no-save", false, "Skip recording the runs in history")

	rootCmd.AddCommand(compareCmd)
}
