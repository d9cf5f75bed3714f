// Package preprocess normalizes natural-language questions and classifies
// them into coarse query shapes before any cache lookup or generation call.
// Everything here is a pure function of the input and static tables.
package preprocess

import (
	"regexp"
	"sort"
	"strings"
)

// Category is the coarse query-shape classification of a question. It drives
// which cache tier and prompt strategy applies downstream.
type Category string

const (
	CategoryLookup      Category = "lookup"
	CategoryAggregation Category = "aggregation"
	CategoryJoin        Category = "join"
	CategoryGroupBy     Category = "group_by"
	CategoryRanking     Category = "ranking"
	CategoryFilter      Category = "filter"
	CategoryNested      Category = "nested"
	CategorySchemaMeta  Category = "schema_meta"
	CategoryNonQuery    Category = "non_query"
)

// ProcessedQuery is the result of preprocessing a raw question.
type ProcessedQuery struct {
	Original        string
	Normalized      string
	Category        Category
	Entities        []string
	TimeExpressions []string
	Aggregations    []string
	Confidence      float64
}

// synonyms folds localized domain vocabulary into canonical English terms the
// matchers and the generation prompt understand. Both forms are kept in the
// normalized text so the generator sees the user's own words too.
var synonyms = map[string]string{
	// aggregations
	"tổng":       "sum total",
	"tổng cộng":  "sum total",
	"đếm":        "count",
	"số lượng":   "count",
	"bao nhiêu":  "count how many",
	"trung bình": "average avg",
	"cao nhất":   "max highest",
	"thấp nhất":  "min lowest",
	"lớn nhất":   "max largest",
	"nhỏ nhất":   "min smallest",

	// time
	"hôm nay":     "today",
	"hôm qua":     "yesterday",
	"tuần này":    "this week",
	"tuần trước":  "last week",
	"tháng này":   "this month",
	"tháng trước": "last month",
	"năm nay":     "this year",
	"năm ngoái":   "last year",

	// entities
	"khách hàng": "customer",
	"người dùng": "user",
	"đơn hàng":   "order",
	"sản phẩm":   "product",
	"doanh thu":  "revenue sales",
	"nhân viên":  "employee",
	"danh mục":   "category",

	// actions
	"hiển thị": "show list",
	"liệt kê":  "list show",
	"tìm":      "find search",
	"sắp xếp":  "order sort",
	"nhóm theo": "group by",
	"theo":     "by per",

	// schema
	"cấu trúc":       "structure schema",
	"bảng":           "table",
	"cột":            "column",
	"cơ sở dữ liệu":  "database",
}

// categoryMatcher ties an ordered set of patterns to a category. Matchers run
// in declaration order; the first category with any match wins, which gives
// the fixed precedence: schema questions, then explicit ranking keywords,
// then nested/aggregate/group cues, then join cues, then plain filters.
type categoryMatcher struct {
	category Category
	patterns []*regexp.Regexp
}

var categoryMatchers = []categoryMatcher{
	{CategoryNonQuery, compileAll(
		`^(hi|hello|hey|thanks|thank you|xin chào|cảm ơn)\b`,
		`^\W*$`,
	)},
	{CategorySchemaMeta, compileAll(
		`\b(schema|structure)\b`,
		`\bwhat (tables|columns)\b`,
		`\b(describe|list)\b.*\b(tables?|columns?|database)\b`,
		`\bshow\s+(tables?|databases?)\b`,
	)},
	{CategoryRanking, compileAll(
		`\b(top|first|best|worst|highest|lowest)\s+\d+\b`,
		`\b(most|least)\s+\w+`,
		`\brank(ed|ing)?\b`,
		`\border(ed)?\s+by\b`,
	)},
	{CategoryNested, compileAll(
		`\bnot\s+in\b`,
		`\b(never|without any|who have not|that have no)\b`,
		`\b(exclude|excluding)\b`,
	)},
	{CategoryGroupBy, compileAll(
		`\bgroup(ed)?\s+by\b`,
		`\b(per|for each|breakdown by)\s+\w+`,
		`\bby\s+(category|type|status|region|month|year|day|week)\b`,
	)},
	{CategoryAggregation, compileAll(
		`\b(count|how many)\b`,
		`\b(sum|total)\b`,
		`\b(average|avg|mean)\b`,
		`\b(max|min|highest|lowest|largest|smallest)\b`,
	)},
	{CategoryJoin, compileAll(
		`\bjoin\b`,
		`\b(with|along with)\s+(their|its|the)\s+\w+`,
		`\bfrom\s+\w+\s+and\s+\w+\b`,
	)},
	{CategoryFilter, compileAll(
		`\bwhere\b`,
		`\b(greater|less|more|fewer|larger|smaller)\s+than\b`,
		`\bbetween\b`,
		`\b(contains?|like|starts with|ends with)\b`,
	)},
}

// timePatterns is the fixed set of relative/absolute date expressions the
// preprocessor recognizes.
var timePatterns = compileAll(
	`\btoday\b`,
	`\byesterday\b`,
	`\b(this|last)\s+(week|month|year|quarter)\b`,
	`\b(last|past)\s+\d+\s+(days?|weeks?|months?|years?)\b`,
	`\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b`,
	`\bsince\s+\d{4}\b`,
)

// aggregationKeywords maps the canonical aggregation function to the
// keywords that signal it.
var aggregationKeywords = map[string][]string{
	"count": {"count", "how many"},
	"sum":   {"sum", "total"},
	"avg":   {"average", "avg", "mean"},
	"max":   {"max", "highest", "largest"},
	"min":   {"min", "lowest", "smallest"},
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}

	return compiled
}

// Preprocessor classifies questions and extracts entities against a fixed
// set of known table and column names.
type Preprocessor struct {
	tableNames  []string
	columnNames []string
}

// NewPreprocessor creates a preprocessor. Table and column names are matched
// lexically during entity extraction; both are lowercased once here.
func NewPreprocessor(tableNames, columnNames []string) *Preprocessor {
	lower := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = strings.ToLower(s)
		}

		return out
	}

	return &Preprocessor{
		tableNames:  lower(tableNames),
		columnNames: lower(columnNames),
	}
}

// Process normalizes and classifies a raw question. It never fails: input
// that matches nothing degrades to CategoryLookup with confidence 0.
func (p *Preprocessor) Process(question string) ProcessedQuery {
	normalized := normalize(question)

	category, confidence := classify(normalized)

	return ProcessedQuery{
		Original:        question,
		Normalized:      normalized,
		Category:        category,
		Entities:        p.extractEntities(normalized),
		TimeExpressions: extractTimeExpressions(normalized),
		Aggregations:    extractAggregations(normalized),
		Confidence:      confidence,
	}
}

// normalize lowercases, folds localized synonyms into canonical vocabulary,
// and collapses whitespace.
func normalize(question string) string {
	text := strings.ToLower(strings.TrimSpace(question))

	for local, canonical := range synonyms {
		if strings.Contains(text, local) {
			text = strings.ReplaceAll(text, local, local+" ("+canonical+")")
		}
	}

	return whitespaceRe.ReplaceAllString(text, " ")
}

// classify assigns exactly one category. Matchers run in precedence order;
// confidence scales with how many of the winning category's patterns fired.
func classify(normalized string) (Category, float64) {
	if strings.TrimSpace(normalized) == "" {
		return CategoryLookup, 0
	}

	for _, matcher := range categoryMatchers {
		matches := 0

		for _, re := range matcher.patterns {
			if re.MatchString(normalized) {
				matches++
			}
		}

		if matches > 0 {
			confidence := 0.5 + 0.2*float64(matches)
			if confidence > 1.0 {
				confidence = 1.0
			}

			if matcher.category == CategoryNonQuery {
				confidence = 0.9
			}

			return matcher.category, confidence
		}
	}

	return CategoryLookup, 0
}

// extractEntities returns known table/column names that lexically appear in
// the normalized question, sorted and deduplicated.
func (p *Preprocessor) extractEntities(normalized string) []string {
	seen := make(map[string]bool)

	var entities []string

	add := func(name string) {
		if !seen[name] {
			seen[name] = true

			entities = append(entities, name)
		}
	}

	for _, table := range p.tableNames {
		if containsWordish(normalized, table) {
			add(table)
		}
	}

	for _, column := range p.columnNames {
		if containsWordish(normalized, column) {
			add(column)
		}
	}

	sort.Strings(entities)

	return entities
}

// containsWordish matches a schema name inside free text, tolerating the
// singular form of plural table names (question "user" vs table "users").
func containsWordish(text, name string) bool {
	if strings.Contains(text, name) {
		return true
	}

	if strings.HasSuffix(name, "s") && len(name) > 3 {
		return strings.Contains(text, strings.TrimSuffix(name, "s"))
	}

	return false
}

func extractTimeExpressions(normalized string) []string {
	var refs []string

	for _, re := range timePatterns {
		if match := re.FindString(normalized); match != "" {
			refs = append(refs, match)
		}
	}

	return refs
}

func extractAggregations(normalized string) []string {
	var found []string

	// Deterministic order across runs.
	funcs := make([]string, 0, len(aggregationKeywords))
	for fn := range aggregationKeywords {
		funcs = append(funcs, fn)
	}

	sort.Strings(funcs)

	for _, fn := range funcs {
		for _, kw := range aggregationKeywords[fn] {
			if strings.Contains(normalized, kw) {
				found = append(found, fn)
				break
			}
		}
	}

	return found
}
