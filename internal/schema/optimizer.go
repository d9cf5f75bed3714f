package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/queryforge/queryforge/internal/preprocess"
)

// DefaultMaxRelevantTables caps how many tables a rendered context includes.
const DefaultMaxRelevantTables = 10

// JoinHint is one foreign-key edge between two tables selected into the
// context. The generator uses these to avoid guessing join columns.
type JoinHint struct {
	TableA  string
	ColumnA string
	TableB  string
	ColumnB string
}

// Context is a compact, prompt-ready rendering of the schema slice relevant
// to one question.
type Context struct {
	RelevantTables []string
	RenderedText   string
	JoinHints      []JoinHint
}

// Optimizer selects the tables relevant to a classified question and renders
// them into a compact textual context. A zero maxTables falls back to the
// default cap.
type Optimizer struct {
	maxTables int
}

func NewOptimizer(maxTables int) *Optimizer {
	if maxTables <= 0 {
		maxTables = DefaultMaxRelevantTables
	}

	return &Optimizer{maxTables: maxTables}
}

// BuildContext scores every table against the processed question, keeps the
// top maxTables plus their one-hop foreign-key neighbors, and renders them.
// Schema questions get the whole schema (up to the cap), and at least one
// table is always included so the generator never sees an empty context.
func (o *Optimizer) BuildContext(snapshot *Snapshot, query preprocess.ProcessedQuery) Context {
	selected := o.selectRelevant(snapshot, query)

	return Context{
		RelevantTables: selected,
		RenderedText:   render(snapshot, selected),
		JoinHints:      joinHints(snapshot, selected),
	}
}

type scoredTable struct {
	name  string
	score int
	index int
}

func (o *Optimizer) selectRelevant(snapshot *Snapshot, query preprocess.ProcessedQuery) []string {
	tables := snapshot.Tables()
	if len(tables) == 0 {
		return nil
	}

	if query.Category == preprocess.CategorySchemaMeta {
		return o.capNames(tables)
	}

	entities := make(map[string]bool, len(query.Entities))
	for _, e := range query.Entities {
		entities[strings.ToLower(e)] = true
	}

	words := make(map[string]bool)
	for _, w := range strings.Fields(query.Normalized) {
		words[strings.Trim(w, "()?,.!")] = true
	}

	scored := make([]scoredTable, 0, len(tables))

	for i, table := range tables {
		name := strings.ToLower(table.Name)
		score := 0

		if entities[name] {
			score += 10
		}

		if words[name] || words[strings.TrimSuffix(name, "s")] {
			score += 5
		}

		for _, col := range table.Columns {
			if entities[strings.ToLower(col.Name)] || words[strings.ToLower(col.Name)] {
				score += 3
			}
		}

		scored = append(scored, scoredTable{name: table.Name, score: score, index: i})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}

		return scored[i].index < scored[j].index
	})

	picked := make(map[string]bool)

	var names []string

	add := func(name string) {
		if len(names) < o.maxTables && !picked[name] {
			picked[name] = true

			names = append(names, name)
		}
	}

	for _, st := range scored {
		if st.score > 0 {
			add(st.name)
		}
	}

	// Pull in one-hop FK neighbors of matched tables so joins stay possible.
	for _, name := range append([]string(nil), names...) {
		table, ok := snapshot.Table(name)
		if !ok {
			continue
		}

		for _, fk := range table.ForeignKeys {
			add(fk.ReferencedTable)
		}
	}

	// Nothing matched: keep the first tables rather than starving the prompt.
	if len(names) == 0 {
		return o.capNames(tables)
	}

	return names
}

func (o *Optimizer) capNames(tables []Table) []string {
	n := len(tables)
	if n > o.maxTables {
		n = o.maxTables
	}

	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = tables[i].Name
	}

	return names
}

// render writes one line per table in the compact form
// "name(*pk_col, col, col)" followed by a foreign-key block.
func render(snapshot *Snapshot, selected []string) string {
	var sb strings.Builder

	sb.WriteString("Tables:\n")

	for _, name := range selected {
		table, ok := snapshot.Table(name)
		if !ok {
			continue
		}

		pks := make(map[string]bool, len(table.PrimaryKey))
		for _, pk := range table.PrimaryKey {
			pks[pk] = true
		}

		cols := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			if pks[col.Name] {
				cols[i] = "*" + col.Name
			} else {
				cols[i] = col.Name
			}
		}

		fmt.Fprintf(&sb, "  %s(%s)\n", table.Name, strings.Join(cols, ", "))
	}

	hints := joinHints(snapshot, selected)
	if len(hints) > 0 {
		sb.WriteString("Join keys:\n")

		for _, h := range hints {
			fmt.Fprintf(&sb, "  %s.%s = %s.%s\n", h.TableA, h.ColumnA, h.TableB, h.ColumnB)
		}
	}

	return sb.String()
}

// joinHints returns the FK edges where both endpoints are selected.
func joinHints(snapshot *Snapshot, selected []string) []JoinHint {
	in := make(map[string]bool, len(selected))
	for _, name := range selected {
		in[strings.ToLower(name)] = true
	}

	var hints []JoinHint

	for _, name := range selected {
		table, ok := snapshot.Table(name)
		if !ok {
			continue
		}

		for _, fk := range table.ForeignKeys {
			if in[strings.ToLower(fk.ReferencedTable)] {
				hints = append(hints, JoinHint{
					TableA:  table.Name,
					ColumnA: fk.Column,
					TableB:  fk.ReferencedTable,
					ColumnB: fk.ReferencedColumn,
				})
			}
		}
	}

	return hints
}
