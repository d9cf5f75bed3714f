package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/queryforge/queryforge/internal/preprocess"
	"github.com/queryforge/queryforge/internal/schema"
	"github.com/queryforge/queryforge/internal/types"
)

// PlanConfidence is the fixed confidence assigned to plan-tier answers.
// Plans come from structural templates, not generation, so the score is
// deliberately conservative.
const PlanConfidence = 0.75

// planPattern is one structural query shape. A pattern produces SQL only
// when every placeholder its template names resolves to a schema-valid
// table or column, otherwise it abstains.
type planPattern struct {
	name     string
	category preprocess.Category
	regex    *regexp.Regexp
	template string
	build    func(m []string, q preprocess.ProcessedQuery, snap *schema.Snapshot) map[string]string
}

// patterns is the registry, checked in order. Regexes run against the
// normalized question.
var patterns = []planPattern{
	{
		name:     "TOP_N",
		category: preprocess.CategoryRanking,
		regex:    regexp.MustCompile(`\b(?:top|first|best)\s+(\d+)\s+(\w+)`),
		template: "SELECT * FROM {table} ORDER BY {order_col} DESC LIMIT {n}",
		build: func(m []string, q preprocess.ProcessedQuery, snap *schema.Snapshot) map[string]string {
			table := resolveTable(snap, m[2])
			if table == "" {
				return nil
			}

			return map[string]string{
				"table":     table,
				"order_col": orderingColumn(snap, table),
				"n":         m[1],
			}
		},
	},
	{
		name:     "COUNT_ALL",
		category: preprocess.CategoryAggregation,
		regex:    regexp.MustCompile(`\bhow many\s+(\w+)\b|\bcount\b.*?\b(\w+)$`),
		template: "SELECT COUNT(*) AS total FROM {table}",
		build: func(m []string, q preprocess.ProcessedQuery, snap *schema.Snapshot) map[string]string {
			name := m[1]
			if name == "" {
				name = m[2]
			}

			table := resolveTable(snap, name)
			if table == "" {
				return nil
			}

			return map[string]string{"table": table}
		},
	},
	{
		name:     "AGGREGATE_GROUPBY",
		category: preprocess.CategoryGroupBy,
		regex:    regexp.MustCompile(`\b(?:per|by|for each)\s+(\w+)\b`),
		template: "SELECT {group_col}, COUNT(*) AS total FROM {table} GROUP BY {group_col} ORDER BY total DESC",
		build: func(m []string, q preprocess.ProcessedQuery, snap *schema.Snapshot) map[string]string {
			table := entityTable(snap, q)
			if table == "" || !snap.HasColumn(table, m[1]) {
				return nil
			}

			return map[string]string{"table": table, "group_col": strings.ToLower(m[1])}
		},
	},
	{
		name:     "LIST_ALL",
		category: preprocess.CategoryLookup,
		regex:    regexp.MustCompile(`\b(?:show|list|get)\b.*?\ball\s+(\w+)\b`),
		template: "SELECT * FROM {table} LIMIT 100",
		build: func(m []string, q preprocess.ProcessedQuery, snap *schema.Snapshot) map[string]string {
			table := resolveTable(snap, m[1])
			if table == "" {
				return nil
			}

			return map[string]string{"table": table}
		},
	},
}

func resolveTable(snap *schema.Snapshot, name string) string {
	name = strings.ToLower(name)

	if snap.HasTable(name) {
		return name
	}

	if snap.HasTable(name + "s") {
		return name + "s"
	}

	return ""
}

// entityTable picks the single table the question is about, abstaining when
// it is ambiguous.
func entityTable(snap *schema.Snapshot, q preprocess.ProcessedQuery) string {
	var found string

	for _, e := range q.Entities {
		if snap.HasTable(e) {
			if found != "" {
				return ""
			}

			found = strings.ToLower(e)
		}
	}

	return found
}

// orderingColumn picks a numeric-looking column to rank by, falling back to
// the primary key.
func orderingColumn(snap *schema.Snapshot, tableName string) string {
	table, ok := snap.Table(tableName)
	if !ok {
		return "1"
	}

	for _, col := range table.Columns {
		upper := strings.ToUpper(col.Type)
		if strings.Contains(upper, "INT") || strings.Contains(upper, "DECIMAL") ||
			strings.Contains(upper, "DOUBLE") || strings.Contains(upper, "FLOAT") {
			if len(table.PrimaryKey) == 1 && col.Name == table.PrimaryKey[0] {
				continue
			}

			return col.Name
		}
	}

	if len(table.PrimaryKey) == 1 {
		return table.PrimaryKey[0]
	}

	return "1"
}

// PlanCache answers structurally common questions from templates without a
// generation call. Results are memoized in the plan tier keyed by pattern
// name plus the resolved placeholders.
type PlanCache struct {
	store Store
	ttl   time.Duration
}

func NewPlanCache(store Store, ttl time.Duration) *PlanCache {
	return &PlanCache{store: store, ttl: ttl}
}

// planKey is stable across placeholder map iteration order.
func planKey(pattern string, params map[string]string) string {
	parts := make([]string, 0, len(params))
	for k, v := range params {
		parts = append(parts, k+"="+v)
	}

	sort.Strings(parts)

	return pattern + "|" + strings.Join(parts, "|")
}

func fillTemplate(template string, params map[string]string) string {
	sql := template
	for k, v := range params {
		sql = strings.ReplaceAll(sql, "{"+k+"}", v)
	}

	return sql
}

// Lookup matches the processed question against the pattern registry. The
// first pattern whose category agrees, whose regex matches, and whose
// placeholders all resolve wins; anything less abstains so generation can
// take over.
func (p *PlanCache) Lookup(ctx context.Context, q preprocess.ProcessedQuery, snap *schema.Snapshot, version string) (*types.SQLCandidate, bool, error) {
	for _, pattern := range patterns {
		if pattern.category != q.Category {
			continue
		}

		m := pattern.regex.FindStringSubmatch(q.Normalized)
		if m == nil {
			continue
		}

		params := pattern.build(m, q, snap)
		if params == nil {
			continue
		}

		key := planKey(pattern.name, params)

		if data, ok, err := p.store.Get(ctx, key, types.TierPlan, version); err == nil && ok {
			var candidate types.SQLCandidate
			if json.Unmarshal(data, &candidate) == nil {
				return &candidate, true, nil
			}
		}

		candidate := types.SQLCandidate{
			Statement:        fillTemplate(pattern.template, params),
			Explanation:      fmt.Sprintf("matched %s plan", strings.ToLower(pattern.name)),
			Confidence:       PlanConfidence,
			TablesReferenced: []string{params["table"]},
		}

		if data, err := json.Marshal(candidate); err == nil {
			p.store.Set(ctx, key, types.TierPlan, version, data, p.ttl)
		}

		return &candidate, true, nil
	}

	return nil, false, nil
}
