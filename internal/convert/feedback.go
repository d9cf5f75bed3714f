package convert

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/queryforge/queryforge/internal/schema"
)

// ExecErrorKind classifies a database error message into a correctable
// category.
type ExecErrorKind string

const (
	ExecErrTableNotFound   ExecErrorKind = "table_not_found"
	ExecErrColumnNotFound  ExecErrorKind = "column_not_found"
	ExecErrAmbiguousColumn ExecErrorKind = "ambiguous_column"
	ExecErrSyntax          ExecErrorKind = "syntax"
	ExecErrTypeMismatch    ExecErrorKind = "type_mismatch"
	ExecErrTimeout         ExecErrorKind = "timeout"
	ExecErrUnknown         ExecErrorKind = "unknown"
)

// ErrorAnalysis is the classification of one execution failure. Identifier
// holds the table or column name pulled out of the message when the pattern
// captures one.
type ErrorAnalysis struct {
	Kind        ExecErrorKind
	Identifier  string
	Suggestions []string
	Retryable   bool
}

type errorPattern struct {
	kind ExecErrorKind
	re   *regexp.Regexp
}

// errorPatterns cover the message formats DuckDB and the common engines
// emit. First match wins.
var errorPatterns = []errorPattern{
	{ExecErrTableNotFound, regexp.MustCompile(`(?i)Table '([^']+)' doesn't exist`)},
	{ExecErrTableNotFound, regexp.MustCompile(`(?i)Table with name (\w+) does not exist`)},
	{ExecErrTableNotFound, regexp.MustCompile(`(?i)relation "([^"]+)" does not exist`)},
	{ExecErrTableNotFound, regexp.MustCompile(`(?i)no such table: (\w+)`)},
	{ExecErrAmbiguousColumn, regexp.MustCompile(`(?i)Column '([^']+)' in .+ is ambiguous`)},
	{ExecErrAmbiguousColumn, regexp.MustCompile(`(?i)column reference "([^"]+)" is ambiguous`)},
	{ExecErrAmbiguousColumn, regexp.MustCompile(`(?i)ambiguous column name: (\w+)`)},
	{ExecErrColumnNotFound, regexp.MustCompile(`(?i)column "([^"]+)" (?:does not exist|not found)`)},
	{ExecErrColumnNotFound, regexp.MustCompile(`(?i)Referenced column "([^"]+)" not found`)},
	{ExecErrColumnNotFound, regexp.MustCompile(`(?i)no such column: (\w+)`)},
	{ExecErrSyntax, regexp.MustCompile(`(?i)syntax error at or near`)},
	{ExecErrSyntax, regexp.MustCompile(`(?i)Parser Error`)},
	{ExecErrTypeMismatch, regexp.MustCompile(`(?i)cannot cast`)},
	{ExecErrTypeMismatch, regexp.MustCompile(`(?i)invalid input syntax for type`)},
	{ExecErrTypeMismatch, regexp.MustCompile(`(?i)type mismatch`)},
	{ExecErrTimeout, regexp.MustCompile(`(?i)statement timeout`)},
	{ExecErrTimeout, regexp.MustCompile(`(?i)interrupted`)},
}

// AnalyzeExecutionError classifies a database error message and attaches
// close-name suggestions from the snapshot when an identifier was captured.
func AnalyzeExecutionError(message string, snapshot *schema.Snapshot) ErrorAnalysis {
	for _, pattern := range errorPatterns {
		m := pattern.re.FindStringSubmatch(message)
		if m == nil {
			continue
		}

		analysis := ErrorAnalysis{Kind: pattern.kind, Retryable: retryable(pattern.kind)}
		if len(m) > 1 {
			analysis.Identifier = m[1]
		}

		addSuggestions(&analysis, snapshot)

		return analysis
	}

	return ErrorAnalysis{Kind: ExecErrUnknown, Retryable: true}
}

func retryable(kind ExecErrorKind) bool {
	// Timeouts are resource problems, not query problems; regenerating the
	// same shape would just time out again.
	return kind != ExecErrTimeout
}

func addSuggestions(analysis *ErrorAnalysis, snapshot *schema.Snapshot) {
	if analysis.Identifier == "" || snapshot == nil {
		return
	}

	switch analysis.Kind {
	case ExecErrTableNotFound:
		if closest := snapshot.ClosestTableName(analysis.Identifier); closest != "" {
			analysis.Suggestions = append(analysis.Suggestions,
				fmt.Sprintf("use table %q instead of %q", closest, analysis.Identifier))
		}
	case ExecErrColumnNotFound:
		// The failing column's table is unknown here, so search every table.
		for _, table := range snapshot.Tables() {
			if closest := snapshot.ClosestColumnName(table.Name, analysis.Identifier); closest != "" {
				analysis.Suggestions = append(analysis.Suggestions,
					fmt.Sprintf("table %q has column %q", table.Name, closest))
			}
		}
	case ExecErrAmbiguousColumn:
		analysis.Suggestions = append(analysis.Suggestions,
			fmt.Sprintf("qualify %q with its table name", analysis.Identifier))
	}
}

// ExecutionFeedback renders an analysis into the feedback block for a
// correction attempt.
func ExecutionFeedback(statement, errorMessage string, analysis ErrorAnalysis) string {
	var sb strings.Builder

	sb.WriteString("The previous SQL failed to execute:\n")
	fmt.Fprintf(&sb, "SQL: %s\n", statement)
	fmt.Fprintf(&sb, "Error (%s): %s\n", analysis.Kind, errorMessage)

	for _, suggestion := range analysis.Suggestions {
		fmt.Fprintf(&sb, "Hint: %s\n", suggestion)
	}

	sb.WriteString("Generate a corrected query that avoids this error.")

	return sb.String()
}
