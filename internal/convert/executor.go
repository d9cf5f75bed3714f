package convert

import (
	"context"
	"database/sql"

	"github.com/queryforge/queryforge/internal/types"
)

// Executor runs an accepted statement and reports the outcome. The core
// only needs success, a row count, and the raw error message for feedback.
type Executor interface {
	Execute(ctx context.Context, statement string) types.ExecutionOutcome
}

// SQLExecutor executes read-only statements over a database/sql pool.
type SQLExecutor struct {
	db *sql.DB
}

func NewSQLExecutor(db *sql.DB) *SQLExecutor {
	return &SQLExecutor{db: db}
}

// Execute runs the statement and drains the rows to count them. Database
// errors come back in the outcome, not as a Go error: a failed execution is
// a normal pipeline event that feeds the correction loop.
func (e *SQLExecutor) Execute(ctx context.Context, statement string) types.ExecutionOutcome {
	rows, err := e.db.QueryContext(ctx, statement)
	if err != nil {
		return types.ExecutionOutcome{Success: false, ErrorMessage: err.Error()}
	}
	defer rows.Close()

	var count int64
	for rows.Next() {
		count++
	}

	if err := rows.Err(); err != nil {
		return types.ExecutionOutcome{Success: false, ErrorMessage: err.Error()}
	}

	return types.ExecutionOutcome{Success: true, RowCount: count}
}
