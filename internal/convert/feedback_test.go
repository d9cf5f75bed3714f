package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/queryforge/queryforge/internal/testutil"
)

func TestAnalyzeExecutionError(t *testing.T) {
	snap := testutil.SampleSnapshot()

	tests := []struct {
		name       string
		message    string
		wantKind   ExecErrorKind
		wantIdent  string
		wantRetry  bool
	}{
		{
			"duckdb missing table",
			`Catalog Error: Table with name custmers does not exist`,
			ExecErrTableNotFound, "custmers", true,
		},
		{
			"postgres style missing column",
			`column "emial" does not exist`,
			ExecErrColumnNotFound, "emial", true,
		},
		{
			"ambiguous column",
			`ambiguous column name: id`,
			ExecErrAmbiguousColumn, "id", true,
		},
		{
			"parser error",
			`Parser Error: syntax error at or near "FORM"`,
			ExecErrSyntax, "", true,
		},
		{
			"cast failure",
			`Conversion Error: cannot cast "abc" to INTEGER`,
			ExecErrTypeMismatch, "", true,
		},
		{
			"timeout is not retryable",
			`statement timeout`,
			ExecErrTimeout, "", false,
		},
		{
			"unclassified",
			`something exploded`,
			ExecErrUnknown, "", true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := AnalyzeExecutionError(tt.message, snap)

			assert.Equal(t, tt.wantKind, analysis.Kind)
			assert.Equal(t, tt.wantIdent, analysis.Identifier)
			assert.Equal(t, tt.wantRetry, analysis.Retryable)
		})
	}
}

func TestAnalyzeExecutionErrorSuggestsCloseNames(t *testing.T) {
	snap := testutil.SampleSnapshot()

	analysis := AnalyzeExecutionError(`Table with name user does not exist`, snap)

	assert.Equal(t, ExecErrTableNotFound, analysis.Kind)
	assert.Contains(t, analysis.Suggestions[0], `"users"`)
}

func TestExecutionFeedbackRendersHints(t *testing.T) {
	analysis := ErrorAnalysis{
		Kind:        ExecErrColumnNotFound,
		Identifier:  "emial",
		Suggestions: []string{`table "users" has column "email"`},
	}

	feedback := ExecutionFeedback("SELECT emial FROM users", `column "emial" does not exist`, analysis)

	assert.Contains(t, feedback, "SELECT emial FROM users")
	assert.Contains(t, feedback, "column_not_found")
	assert.Contains(t, feedback, `Hint: table "users" has column "email"`)
}
