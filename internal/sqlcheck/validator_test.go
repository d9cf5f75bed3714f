package sqlcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryforge/queryforge/internal/testutil"
)

func newTestValidator() *Validator {
	return NewValidator(testutil.SampleSnapshot())
}

func kinds(result Result) []ViolationKind {
	out := make([]ViolationKind, len(result.Violations))
	for i, v := range result.Violations {
		out[i] = v.Kind
	}

	return out
}

func TestValidateAcceptsCleanSelect(t *testing.T) {
	v := newTestValidator()

	result := v.Validate("SELECT name, email FROM users LIMIT 10")

	assert.True(t, result.IsValid)
	assert.False(t, result.RequiresCorrection)
	assert.Empty(t, result.Violations)
}

func TestValidateAcceptsJoinWithOn(t *testing.T) {
	v := newTestValidator()

	result := v.Validate(
		"SELECT u.name, o.amount FROM orders o JOIN users u ON o.user_id = u.id LIMIT 50")

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Violations)
}

func TestValidateRejectsNonSelect(t *testing.T) {
	v := newTestValidator()

	for _, sql := range []string{
		"DELETE FROM users",
		"UPDATE users SET name = 'x'",
		"DROP TABLE orders",
		"INSERT INTO users VALUES (1)",
		"",
	} {
		result := v.Validate(sql)

		require.False(t, result.IsValid, "statement: %q", sql)
		assert.Contains(t, kinds(result), KindDangerousOp)
		assert.False(t, result.RequiresCorrection, "safety violations are final")
	}
}

func TestValidateRejectsMultipleStatements(t *testing.T) {
	v := newTestValidator()

	result := v.Validate("SELECT * FROM users; SELECT * FROM orders")

	assert.False(t, result.IsValid)
	assert.Contains(t, kinds(result), KindDangerousOp)
}

func TestValidateRejectsEmbeddedWriteKeyword(t *testing.T) {
	v := newTestValidator()

	result := v.Validate("SELECT * FROM users WHERE id IN (DELETE FROM orders)")

	assert.False(t, result.IsValid)
	assert.Contains(t, kinds(result), KindDangerousOp)
}

func TestValidateUnknownTable(t *testing.T) {
	v := newTestValidator()

	result := v.Validate("SELECT * FROM user LIMIT 10")

	require.False(t, result.IsValid)
	assert.True(t, result.RequiresCorrection)
	require.Contains(t, kinds(result), KindUnknownTable)
	assert.Contains(t, result.Violations[0].Detail, `did you mean "users"`)
}

func TestValidateUnknownColumn(t *testing.T) {
	v := newTestValidator()

	result := v.Validate("SELECT users.emial FROM users LIMIT 10")

	require.False(t, result.IsValid)
	assert.True(t, result.RequiresCorrection)
	require.Contains(t, kinds(result), KindUnknownColumn)
	assert.Contains(t, result.Violations[0].Detail, `did you mean "email"`)
}

func TestValidateUnknownColumnThroughAlias(t *testing.T) {
	v := newTestValidator()

	result := v.Validate("SELECT o.totale FROM orders o LIMIT 10")

	require.False(t, result.IsValid)
	assert.Contains(t, kinds(result), KindUnknownColumn)
}

func TestValidateCTENamesAreKnown(t *testing.T) {
	v := newTestValidator()

	result := v.Validate(
		"WITH recent AS (SELECT * FROM orders LIMIT 100) SELECT * FROM recent LIMIT 10")

	assert.True(t, result.IsValid, "violations: %v", result.Violations)
}

func TestValidateMissingLimitIsAdvisory(t *testing.T) {
	v := newTestValidator()

	result := v.Validate("SELECT name FROM users")

	assert.True(t, result.IsValid, "missing LIMIT alone must not invalidate")
	assert.False(t, result.RequiresCorrection)
	assert.Contains(t, kinds(result), KindMissingLimit)
}

func TestValidateAggregateNeedsNoLimit(t *testing.T) {
	v := newTestValidator()

	result := v.Validate("SELECT COUNT(*) FROM orders")

	assert.True(t, result.IsValid)
	assert.NotContains(t, kinds(result), KindMissingLimit)
}

func TestValidateImplicitJoin(t *testing.T) {
	v := newTestValidator()

	result := v.Validate(
		"SELECT * FROM users, orders WHERE users.id = orders.user_id LIMIT 10")

	assert.Contains(t, kinds(result), KindImplicitJoin)
	assert.NotContains(t, kinds(result), KindCartesianRisk)
}

func TestValidateCartesianRisk(t *testing.T) {
	v := newTestValidator()

	result := v.Validate("SELECT * FROM users, orders LIMIT 10")

	assert.Contains(t, kinds(result), KindCartesianRisk)
}

func TestCorrectionFeedback(t *testing.T) {
	feedback := CorrectionFeedback([]Violation{
		{Kind: KindUnknownTable, Detail: `table "user" does not exist, did you mean "users"`},
	})

	assert.Contains(t, feedback, "unknown_table")
	assert.Contains(t, feedback, `did you mean "users"`)

	assert.Empty(t, CorrectionFeedback(nil))
}
