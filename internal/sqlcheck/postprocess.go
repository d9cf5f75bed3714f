package sqlcheck

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	fenceRe      = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")
	wsRe         = regexp.MustCompile(`\s+`)
	selectRe     = regexp.MustCompile(`(?i)\bselect\b`)
	hasLimitRe   = regexp.MustCompile(`(?i)\blimit\s+\d+`)
	hasAggRe     = regexp.MustCompile(`(?i)\b(?:count|sum|avg|min|max)\s*\(`)
	hasGroupByRe = regexp.MustCompile(`(?i)\bgroup\s+by\b`)
)

// Clean extracts the bare SQL from raw generator output: markdown fences,
// leading prose, trailing semicolons, and whitespace runs all go.
func Clean(raw string) string {
	sql := strings.TrimSpace(raw)

	if m := fenceRe.FindStringSubmatch(sql); m != nil {
		sql = strings.TrimSpace(m[1])
	}

	// Drop any prose the model put before the statement itself. A leading
	// WITH is already clean; otherwise cut at the first SELECT keyword.
	lower := strings.ToLower(sql)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		if loc := selectRe.FindStringIndex(sql); loc != nil {
			sql = sql[loc[0]:]
		}
	}

	sql = strings.TrimSuffix(strings.TrimSpace(sql), ";")

	return wsRe.ReplaceAllString(sql, " ")
}

// EnsureLimit appends a LIMIT clause to unbounded row-returning statements.
// Aggregates without grouping return one row and are left alone.
func EnsureLimit(sql string, defaultLimit int) string {
	if defaultLimit <= 0 || hasLimitRe.MatchString(sql) {
		return sql
	}

	if hasAggRe.MatchString(sql) && !hasGroupByRe.MatchString(sql) {
		return sql
	}

	return fmt.Sprintf("%s LIMIT %d", strings.TrimSpace(sql), defaultLimit)
}

// PostProcess is the full accept-path pipeline: clean, then bound.
func PostProcess(raw string, defaultLimit int) string {
	return EnsureLimit(Clean(raw), defaultLimit)
}
