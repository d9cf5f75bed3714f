package types

// SQLCandidate is a candidate SQL statement produced by generation, a cache
// tier, or the schema-meta short circuit. It is transient and scoped to a
// single request.
type SQLCandidate struct {
	Statement        string   `json:"statement"`
	Explanation      string   `json:"explanation"`
	Confidence       float64  `json:"confidence"`
	TablesReferenced []string `json:"tables_referenced,omitempty"`
}

// ExecutionOutcome reports the result of running a statement through the
// external executor. The core never persists it.
type ExecutionOutcome struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
	RowCount     int64  `json:"row_count,omitempty"`
}

// CacheTier identifies which cache tier produced a hit.
type CacheTier string

const (
	TierSemantic CacheTier = "semantic"
	TierPlan     CacheTier = "plan"
	TierGeneric  CacheTier = "generic"
)
