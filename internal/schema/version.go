package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// versionedColumn is the normalized structural form of a column used for
// hashing. Only structural fields participate; descriptions, row counts and
// other incidental metadata never affect the version.
type versionedColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type versionedForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

type versionedTable struct {
	Name        string                `json:"name"`
	Columns     []versionedColumn     `json:"columns"`
	PrimaryKey  []string              `json:"primary_key"`
	ForeignKeys []versionedForeignKey `json:"foreign_keys"`
}

// ComputeVersion computes a deterministic hash of the structural content of
// the given tables. Two table sets with identical structure produce identical
// versions regardless of declaration order; any structural change produces a
// different version.
func ComputeVersion(tables []Table) string {
	if len(tables) == 0 {
		sum := sha256.Sum256([]byte("empty_schema"))
		return hex.EncodeToString(sum[:])[:16]
	}

	normalized := make([]versionedTable, 0, len(tables))

	for _, t := range tables {
		vt := versionedTable{
			Name:        strings.ToLower(t.Name),
			Columns:     make([]versionedColumn, 0, len(t.Columns)),
			PrimaryKey:  make([]string, 0, len(t.PrimaryKey)),
			ForeignKeys: make([]versionedForeignKey, 0, len(t.ForeignKeys)),
		}

		for _, c := range t.Columns {
			vt.Columns = append(vt.Columns, versionedColumn{
				Name:     strings.ToLower(c.Name),
				Type:     strings.ToLower(c.Type),
				Nullable: c.Nullable,
			})
		}

		sort.Slice(vt.Columns, func(i, j int) bool {
			return vt.Columns[i].Name < vt.Columns[j].Name
		})

		for _, pk := range t.PrimaryKey {
			vt.PrimaryKey = append(vt.PrimaryKey, strings.ToLower(pk))
		}

		sort.Strings(vt.PrimaryKey)

		for _, fk := range t.ForeignKeys {
			vt.ForeignKeys = append(vt.ForeignKeys, versionedForeignKey{
				Column:           strings.ToLower(fk.Column),
				ReferencedTable:  strings.ToLower(fk.ReferencedTable),
				ReferencedColumn: strings.ToLower(fk.ReferencedColumn),
			})
		}

		sort.Slice(vt.ForeignKeys, func(i, j int) bool {
			if vt.ForeignKeys[i].Column != vt.ForeignKeys[j].Column {
				return vt.ForeignKeys[i].Column < vt.ForeignKeys[j].Column
			}

			return vt.ForeignKeys[i].ReferencedTable < vt.ForeignKeys[j].ReferencedTable
		})

		normalized = append(normalized, vt)
	}

	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].Name < normalized[j].Name
	})

	data, err := json.Marshal(normalized)
	if err != nil {
		// Marshaling plain structs of strings and bools cannot fail; keep a
		// deterministic value anyway.
		data = []byte("unmarshalable_schema")
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])[:16]
}

// VersionManager holds the current schema snapshot and its version. Reads are
// concurrent; the version swap is serialized. Callers capture the version
// once per request and pass it down; cache tiers compare the captured token
// at both read and write time.
type VersionManager struct {
	mu      sync.RWMutex
	current *Snapshot
	history []string
}

// NewVersionManager creates an empty version manager.
func NewVersionManager() *VersionManager {
	return &VersionManager{}
}

// Update swaps in a new snapshot and reports whether the structural version
// changed. A change is the single trigger for downstream cache invalidation:
// stale entries expire lazily by version mismatch, never by active sweep.
func (m *VersionManager) Update(snapshot *Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Version() == snapshot.Version() {
		return false
	}

	m.current = snapshot
	m.history = append(m.history, snapshot.Version())

	const maxHistory = 10
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}

	return true
}

// Current returns the current version hash, or empty string before the first
// Update.
func (m *VersionManager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return ""
	}

	return m.current.Version()
}

// Snapshot returns the current snapshot, or nil before the first Update.
func (m *VersionManager) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current
}

// IsCurrent reports whether the given version token matches the live version.
func (m *VersionManager) IsCurrent(version string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current != nil && m.current.Version() == version
}

// History returns the retained version hashes, oldest first.
func (m *VersionManager) History() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.history))
	copy(out, m.history)

	return out
}
