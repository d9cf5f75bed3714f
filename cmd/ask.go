package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/queryforge/queryforge/internal/convert"
)

var (
	askExecute bool
	askRefresh bool
	askJSON    bool
	askMaxCorr int
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Convert a question into SQL, optionally running it",
	Long: `Convert a natural-language question into a validated SELECT statement.

Examples:
  queryforge ask "how many orders were placed last month"
  queryforge ask --execute "top 10 products by revenue"
  queryforge ask --refresh "total revenue per category"
  queryforge ask --json "list customers without any orders"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askExecute, "execute", false, "Run the generated SQL and report the row count")
	askCmd.Flags().BoolVar(&askRefresh, "refresh", false, "Skip cache reads and regenerate")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the full result as JSON")
	askCmd.Flags().IntVar(&askMaxCorr, "max-corrections", -1,
		"Correction budget for this request (-1 uses the configured value)")

	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
		spinner.WithWriter(os.Stderr))
	s.Suffix = " converting..."

	if !askJSON {
		s.Start()
	}

	opts := convert.Options{
		Execute:      askExecute,
		ForceRefresh: askRefresh,
	}
	if askMaxCorr >= 0 {
		opts.MaxCorrections = &askMaxCorr
	}

	// Compound questions come back as one result per part.
	results := p.converter.ConvertAll(ctx, question, opts)

	s.Stop()

	if askJSON {
		return printJSON(results)
	}

	var firstErr error

	for i, part := range results {
		if len(results) > 1 {
			fmt.Printf("-- part %d: %s\n", i+1, part.Question)
		}

		if part.Err != nil {
			printFindings(part.Result)

			if len(results) > 1 {
				fmt.Fprintf(os.Stderr, "part %d failed: %v\n", i+1, part.Err)
			}

			if firstErr == nil {
				firstErr = part.Err
			}

			continue
		}

		printResult(part.Result)

		if i < len(results)-1 {
			fmt.Println()
		}
	}

	return firstErr
}

func printJSON(results []convert.BatchResult) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	if len(results) == 1 {
		if results[0].Err != nil {
			return results[0].Err
		}

		return encoder.Encode(results[0].Result)
	}

	collected := make([]*convert.Result, 0, len(results))

	var firstErr error

	for _, part := range results {
		if part.Err != nil && firstErr == nil {
			firstErr = part.Err
		}

		if part.Result != nil {
			collected = append(collected, part.Result)
		}
	}

	if err := encoder.Encode(collected); err != nil {
		return err
	}

	return firstErr
}

func printFindings(result *convert.Result) {
	if result == nil || len(result.Validation.Violations) == 0 {
		return
	}

	fmt.Fprintln(os.Stderr, "Validation findings:")

	for _, v := range result.Validation.Violations {
		fmt.Fprintf(os.Stderr, "  - %s: %s\n", v.Kind, v.Detail)
	}
}

func printResult(result *convert.Result) {
	fmt.Println(result.Candidate.Statement)

	if result.Candidate.Explanation != "" {
		fmt.Printf("\n-- %s\n", result.Candidate.Explanation)
	}

	source := "generated"
	if result.FromCache {
		source = fmt.Sprintf("cache (%s)", result.CacheTier)
	}

	fmt.Printf("-- source: %s, confidence: %.2f", source, result.Candidate.Confidence)

	if result.Attempts > 1 {
		fmt.Printf(", corrections: %d", result.Attempts-1)
	}

	fmt.Println()

	if result.Execution != nil {
		if result.Execution.Success {
			fmt.Printf("-- executed: %d rows\n", result.Execution.RowCount)
		} else {
			fmt.Printf("-- execution failed: %s\n", result.Execution.ErrorMessage)
		}
	}
}
