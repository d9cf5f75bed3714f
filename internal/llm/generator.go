package llm

import (
	"context"

	"github.com/queryforge/queryforge/internal/types"
)

// Request carries everything generation needs for one attempt. Feedback is
// empty on the first attempt and holds the violation or execution-error
// report on correction attempts.
type Request struct {
	Question      string
	SchemaContext string
	Category      string
	Feedback      string
}

// Generator produces a SQL candidate for a request. Implementations wrap
// the provider call; failures come back as provider-typed errors and are
// never retried by the caller.
type Generator interface {
	Generate(ctx context.Context, req Request) (*types.SQLCandidate, error)
}
