// Package sqlcheck validates generated SQL against the schema snapshot and
// the read-only safety rules, and post-processes accepted statements. It
// works lexically, the same way the statements are produced: a full SQL
// parser would reject more than the generator can emit.
package sqlcheck

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/queryforge/queryforge/internal/schema"
)

// ViolationKind classifies one validation finding.
type ViolationKind string

const (
	KindUnknownTable  ViolationKind = "unknown_table"
	KindUnknownColumn ViolationKind = "unknown_column"
	KindDangerousOp   ViolationKind = "dangerous_operation"
	KindMissingLimit  ViolationKind = "missing_limit"
	KindImplicitJoin  ViolationKind = "implicit_join"
	KindCartesianRisk ViolationKind = "cartesian_risk"
)

// Violation is one finding with a human-readable detail. Detail feeds the
// correction prompt, so it names the offending identifier and, when a close
// schema name exists, a suggestion.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Detail string        `json:"detail"`
}

// Result is the outcome of validating one statement. RequiresCorrection is
// true only for schema mismatches the generator can plausibly fix; safety
// violations are final and never retried.
type Result struct {
	IsValid            bool        `json:"is_valid"`
	Violations         []Violation `json:"violations,omitempty"`
	RequiresCorrection bool        `json:"requires_correction"`
}

// deniedKeywords are statement forms and commands a generated query must
// never contain. Matched as whole words, case-insensitive.
var deniedKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create", "truncate",
	"grant", "revoke", "attach", "detach", "copy", "export", "import",
	"pragma", "install", "load", "call", "set", "vacuum",
}

var deniedKeywordRe = regexp.MustCompile(`(?i)\b(` + strings.Join(deniedKeywords, "|") + `)\b`)

var (
	tableRefRe     = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-zA-Z_][\w.]*)`)
	qualifiedColRe = regexp.MustCompile(`\b([a-zA-Z_]\w*)\.([a-zA-Z_]\w*)\b`)
	cteNameRe      = regexp.MustCompile(`(?i)(?:\bwith\s+|,\s*)([a-zA-Z_]\w*)\s+as\s*\(`)
	aliasRe        = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-zA-Z_]\w*)(?:\s+as)?\s+([a-zA-Z_]\w*)`)
	aggregateRe    = regexp.MustCompile(`(?i)\b(?:count|sum|avg|min|max)\s*\(`)
	limitRe        = regexp.MustCompile(`(?i)\blimit\s+\d+`)
	commaJoinRe    = regexp.MustCompile(`(?i)\bfrom\s+[a-zA-Z_]\w*(?:\s+\w+)?\s*,\s*[a-zA-Z_]\w*`)
	whereRe        = regexp.MustCompile(`(?i)\bwhere\b`)
	joinOnRe       = regexp.MustCompile(`(?i)\bjoin\s+[a-zA-Z_][\w.]*(?:\s+(?:as\s+)?\w+)?\s+(?:on|using)\b`)
	joinRe         = regexp.MustCompile(`(?i)\bjoin\b`)
)

// reservedAliases are trailing words after a table reference that the alias
// regex must not mistake for an alias.
var reservedAliases = map[string]bool{
	"on": true, "using": true, "where": true, "join": true, "inner": true,
	"left": true, "right": true, "full": true, "cross": true, "group": true,
	"order": true, "limit": true, "having": true, "union": true, "as": true,
}

// Validator checks one statement against one immutable snapshot. It holds
// no mutable state and is safe for concurrent use.
type Validator struct {
	snapshot *schema.Snapshot
}

func NewValidator(snapshot *schema.Snapshot) *Validator {
	return &Validator{snapshot: snapshot}
}

// Validate runs every check and aggregates the findings. Safety checks run
// first: a statement that is not a single read-only SELECT fails with
// dangerous_operation and is never sent back for correction. Schema checks
// produce correctable violations. Shape checks (missing LIMIT, comma joins,
// cartesian risk) are advisory and do not make the statement invalid on
// their own.
func (v *Validator) Validate(statement string) Result {
	result := Result{IsValid: true}

	sql := strings.TrimSpace(statement)
	if sql == "" {
		result.IsValid = false
		result.Violations = append(result.Violations, Violation{
			Kind:   KindDangerousOp,
			Detail: "empty statement",
		})

		return result
	}

	if violation := checkReadOnly(sql); violation != nil {
		result.IsValid = false
		result.Violations = append(result.Violations, *violation)

		// A denied statement is final. No point checking names on it.
		return result
	}

	known := v.knownNames(sql)

	for _, violation := range v.checkTables(sql, known) {
		result.IsValid = false
		result.RequiresCorrection = true
		result.Violations = append(result.Violations, violation)
	}

	for _, violation := range v.checkColumns(sql, known) {
		result.IsValid = false
		result.RequiresCorrection = true
		result.Violations = append(result.Violations, violation)
	}

	result.Violations = append(result.Violations, checkShape(sql)...)

	return result
}

// checkReadOnly enforces the single read-only SELECT rule.
func checkReadOnly(sql string) *Violation {
	trimmed := strings.TrimSuffix(strings.TrimSpace(sql), ";")
	if strings.ContainsRune(trimmed, ';') {
		return &Violation{Kind: KindDangerousOp, Detail: "multiple statements are not allowed"}
	}

	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return &Violation{Kind: KindDangerousOp, Detail: "only SELECT statements are allowed"}
	}

	if m := deniedKeywordRe.FindStringSubmatch(trimmed); m != nil {
		return &Violation{
			Kind:   KindDangerousOp,
			Detail: fmt.Sprintf("statement contains denied keyword %q", strings.ToUpper(m[1])),
		}
	}

	return nil
}

// knownNames collects identifiers that are valid table references inside
// this statement beyond the schema itself: CTE names and table aliases.
func (v *Validator) knownNames(sql string) map[string]bool {
	known := make(map[string]bool)

	for _, m := range cteNameRe.FindAllStringSubmatch(sql, -1) {
		known[strings.ToLower(m[1])] = true
	}

	for _, m := range aliasRe.FindAllStringSubmatch(sql, -1) {
		alias := strings.ToLower(m[2])
		if !reservedAliases[alias] {
			known[alias] = true
		}
	}

	return known
}

func (v *Validator) checkTables(sql string, known map[string]bool) []Violation {
	var violations []Violation

	seen := make(map[string]bool)

	for _, m := range tableRefRe.FindAllStringSubmatch(sql, -1) {
		name := strings.ToLower(m[1])
		if seen[name] || known[name] || v.snapshot.HasTable(name) {
			continue
		}

		seen[name] = true

		detail := fmt.Sprintf("table %q does not exist", name)
		if suggestion := v.snapshot.ClosestTableName(name); suggestion != "" {
			detail += fmt.Sprintf(", did you mean %q", suggestion)
		}

		violations = append(violations, Violation{Kind: KindUnknownTable, Detail: detail})
	}

	return violations
}

// checkColumns verifies qualified column references. Unqualified columns
// are left to the database: aliases, function results, and CTE columns make
// lexical checking produce false positives.
func (v *Validator) checkColumns(sql string, known map[string]bool) []Violation {
	var violations []Violation

	// Aliases resolve to their table for column checking.
	aliasTarget := make(map[string]string)

	for _, m := range aliasRe.FindAllStringSubmatch(sql, -1) {
		alias := strings.ToLower(m[2])
		if !reservedAliases[alias] {
			aliasTarget[alias] = strings.ToLower(m[1])
		}
	}

	seen := make(map[string]bool)

	for _, m := range qualifiedColRe.FindAllStringSubmatch(sql, -1) {
		qualifier := strings.ToLower(m[1])
		column := strings.ToLower(m[2])

		table := qualifier
		if target, ok := aliasTarget[qualifier]; ok {
			table = target
		}

		// CTE columns cannot be checked against the schema.
		if known[table] && aliasTarget[qualifier] == "" {
			continue
		}

		if !v.snapshot.HasTable(table) {
			continue
		}

		ref := table + "." + column
		if seen[ref] || v.snapshot.HasColumn(table, column) {
			continue
		}

		seen[ref] = true

		detail := fmt.Sprintf("column %q does not exist in table %q", column, table)
		if suggestion := v.snapshot.ClosestColumnName(table, column); suggestion != "" {
			detail += fmt.Sprintf(", did you mean %q", suggestion)
		}

		violations = append(violations, Violation{Kind: KindUnknownColumn, Detail: detail})
	}

	return violations
}

func checkShape(sql string) []Violation {
	var violations []Violation

	if commaJoinRe.MatchString(sql) {
		violations = append(violations, Violation{
			Kind:   KindImplicitJoin,
			Detail: "comma-separated tables in FROM, prefer explicit JOIN ... ON",
		})

		if !whereRe.MatchString(sql) {
			violations = append(violations, Violation{
				Kind:   KindCartesianRisk,
				Detail: "comma join without a WHERE clause produces a cartesian product",
			})
		}
	} else if joinRe.MatchString(sql) && !joinOnRe.MatchString(sql) {
		violations = append(violations, Violation{
			Kind:   KindCartesianRisk,
			Detail: "JOIN without ON or USING produces a cartesian product",
		})
	}

	if !limitRe.MatchString(sql) && !aggregateRe.MatchString(sql) {
		violations = append(violations, Violation{
			Kind:   KindMissingLimit,
			Detail: "unbounded SELECT without LIMIT",
		})
	}

	return violations
}

// CorrectionFeedback renders violations into the feedback block appended to
// a regeneration prompt.
func CorrectionFeedback(violations []Violation) string {
	if len(violations) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("The previous SQL had these problems:\n")

	for _, violation := range violations {
		fmt.Fprintf(&sb, "- %s: %s\n", violation.Kind, violation.Detail)
	}

	sb.WriteString("Generate a corrected query that fixes every problem.")

	return sb.String()
}
