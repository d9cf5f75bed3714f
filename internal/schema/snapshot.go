package schema

import (
	"context"
	"strings"
	"time"
)

// Column describes a single column in a table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ForeignKey describes a directed reference from a column to another table.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// Table describes a single table: columns in declaration order, primary key
// columns, and outgoing foreign keys.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKey  []string     `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// Snapshot is an immutable view of table/column/relationship metadata plus a
// deterministic content hash. A new snapshot is built whenever the caller
// detects schema drift; existing snapshots are never mutated.
type Snapshot struct {
	tables    []Table
	byName    map[string]int
	version   string
	createdAt time.Time
}

// Source supplies schema snapshots on demand. The core never queries the
// database for metadata itself.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// NewSnapshot builds an immutable snapshot from the given tables. Table order
// is preserved for rendering; the version hash is order-independent.
func NewSnapshot(tables []Table) *Snapshot {
	byName := make(map[string]int, len(tables))
	for i, t := range tables {
		byName[strings.ToLower(t.Name)] = i
	}

	return &Snapshot{
		tables:    tables,
		byName:    byName,
		version:   ComputeVersion(tables),
		createdAt: time.Now(),
	}
}

// Version returns the deterministic structural hash of this snapshot.
func (s *Snapshot) Version() string {
	return s.version
}

// CreatedAt returns when the snapshot was constructed.
func (s *Snapshot) CreatedAt() time.Time {
	return s.createdAt
}

// Tables returns all tables in declaration order.
func (s *Snapshot) Tables() []Table {
	return s.tables
}

// Table looks up a table by name, case-insensitively.
func (s *Snapshot) Table(name string) (Table, bool) {
	idx, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return Table{}, false
	}

	return s.tables[idx], true
}

// HasTable reports whether a table exists, case-insensitively.
func (s *Snapshot) HasTable(name string) bool {
	_, ok := s.byName[strings.ToLower(name)]
	return ok
}

// HasColumn reports whether a column exists on the named table.
func (s *Snapshot) HasColumn(table, column string) bool {
	t, ok := s.Table(table)
	if !ok {
		return false
	}

	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, column) {
			return true
		}
	}

	return false
}

// HasColumnAnywhere reports whether any table carries the named column.
func (s *Snapshot) HasColumnAnywhere(column string) bool {
	for _, t := range s.tables {
		for _, c := range t.Columns {
			if strings.EqualFold(c.Name, column) {
				return true
			}
		}
	}

	return false
}

// TableNames returns all table names in declaration order.
func (s *Snapshot) TableNames() []string {
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.Name
	}

	return names
}

// ColumnNames returns every column name across all tables, lowercased and
// deduplicated. Used for entity extraction during preprocessing.
func (s *Snapshot) ColumnNames() []string {
	seen := make(map[string]bool)

	var names []string

	for _, t := range s.tables {
		for _, c := range t.Columns {
			lower := strings.ToLower(c.Name)
			if !seen[lower] {
				seen[lower] = true

				names = append(names, lower)
			}
		}
	}

	return names
}

// ClosestTableName returns the most similar known table name to the given
// name, or empty string when nothing is close enough. Used for "did you mean"
// suggestions on unknown_table violations.
func (s *Snapshot) ClosestTableName(name string) string {
	return closestName(name, s.TableNames())
}

// ClosestColumnName returns the most similar column name on the given table.
func (s *Snapshot) ClosestColumnName(table, column string) string {
	t, ok := s.Table(table)
	if !ok {
		return ""
	}

	candidates := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		candidates[i] = c.Name
	}

	return closestName(column, candidates)
}

// closestName scores candidates by containment and character overlap.
func closestName(name string, candidates []string) string {
	nameLower := strings.ToLower(name)

	var (
		best      string
		bestScore float64
	)

	for _, candidate := range candidates {
		candLower := strings.ToLower(candidate)

		if strings.Contains(candLower, nameLower) || strings.Contains(nameLower, candLower) {
			score := float64(len(nameLower)) / float64(max(len(candLower), len(nameLower)))
			if score > bestScore {
				bestScore = score
				best = candidate
			}

			continue
		}

		common := 0

		nameSet := make(map[rune]bool)
		for _, r := range nameLower {
			nameSet[r] = true
		}

		candSet := make(map[rune]bool)

		for _, r := range candLower {
			candSet[r] = true

			if nameSet[r] {
				common++
			}
		}

		score := float64(common) / float64(max(len(nameSet), len(candSet)))
		if score >= 0.6 && score > bestScore {
			bestScore = score
			best = candidate
		}
	}

	return best
}
