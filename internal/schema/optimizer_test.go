package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryforge/queryforge/internal/preprocess"
)

func ecommerceTables() []Table {
	tables := sampleTables()

	return append(tables,
		Table{
			Name: "products",
			Columns: []Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "name", Type: "VARCHAR"},
				{Name: "price", Type: "DECIMAL(10,2)"},
			},
			PrimaryKey: []string{"id"},
		},
		Table{
			Name: "audit_log",
			Columns: []Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "event", Type: "VARCHAR"},
			},
			PrimaryKey: []string{"id"},
		},
	)
}

func TestBuildContextSelectsMatchedTables(t *testing.T) {
	snap := NewSnapshot(ecommerceTables())
	opt := NewOptimizer(10)

	query := preprocess.ProcessedQuery{
		Normalized: "how many orders did each user place",
		Category:   preprocess.CategoryAggregation,
		Entities:   []string{"orders", "users"},
	}

	ctx := opt.BuildContext(snap, query)

	assert.Contains(t, ctx.RelevantTables, "orders")
	assert.Contains(t, ctx.RelevantTables, "users")
	assert.NotContains(t, ctx.RelevantTables, "audit_log")
}

func TestBuildContextPullsForeignKeyNeighbors(t *testing.T) {
	snap := NewSnapshot(ecommerceTables())
	opt := NewOptimizer(10)

	// Only orders matches, but users comes along via the FK edge.
	query := preprocess.ProcessedQuery{
		Normalized: "total order amount",
		Category:   preprocess.CategoryAggregation,
		Entities:   []string{"orders"},
	}

	ctx := opt.BuildContext(snap, query)

	assert.Contains(t, ctx.RelevantTables, "users")

	require.NotEmpty(t, ctx.JoinHints)
	hint := ctx.JoinHints[0]
	assert.Equal(t, "orders", hint.TableA)
	assert.Equal(t, "user_id", hint.ColumnA)
	assert.Equal(t, "users", hint.TableB)
	assert.Equal(t, "id", hint.ColumnB)
}

func TestBuildContextSchemaMetaGetsEverything(t *testing.T) {
	snap := NewSnapshot(ecommerceTables())
	opt := NewOptimizer(10)

	ctx := opt.BuildContext(snap, preprocess.ProcessedQuery{
		Normalized: "what tables are in the database",
		Category:   preprocess.CategorySchemaMeta,
	})

	assert.Len(t, ctx.RelevantTables, len(ecommerceTables()))
}

func TestBuildContextNeverEmpty(t *testing.T) {
	snap := NewSnapshot(ecommerceTables())
	opt := NewOptimizer(2)

	ctx := opt.BuildContext(snap, preprocess.ProcessedQuery{
		Normalized: "something entirely unrelated",
		Category:   preprocess.CategoryLookup,
	})

	require.NotEmpty(t, ctx.RelevantTables)
	assert.LessOrEqual(t, len(ctx.RelevantTables), 2)
}

func TestRenderCompactFormat(t *testing.T) {
	snap := NewSnapshot(sampleTables())
	opt := NewOptimizer(10)

	ctx := opt.BuildContext(snap, preprocess.ProcessedQuery{
		Normalized: "orders per user",
		Entities:   []string{"orders", "users"},
	})

	assert.True(t, strings.Contains(ctx.RenderedText, "orders(*id, user_id, amount)"),
		"rendered context was:\n%s", ctx.RenderedText)
	assert.Contains(t, ctx.RenderedText, "orders.user_id = users.id")

	// One line per table plus the headers and join block.
	assert.NotContains(t, ctx.RenderedText, "INTEGER", "types stay out of the compact form")
}
