// Package convert orchestrates the full question-to-SQL pipeline:
// preprocessing, cache lookups, generation, validation, the correction
// loop, and optional execution with feedback.
package convert

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/queryforge/queryforge/internal/cache"
	"github.com/queryforge/queryforge/internal/errors"
	"github.com/queryforge/queryforge/internal/llm"
	"github.com/queryforge/queryforge/internal/logging"
	"github.com/queryforge/queryforge/internal/preprocess"
	"github.com/queryforge/queryforge/internal/schema"
	"github.com/queryforge/queryforge/internal/sqlcheck"
	"github.com/queryforge/queryforge/internal/types"
)

// correctedConfidenceFactor discounts candidates that needed a correction
// round before they were accepted.
const correctedConfidenceFactor = 0.8

// Options control one conversion request.
type Options struct {
	// Execute runs the accepted statement and feeds failures back into the
	// correction loop.
	Execute bool

	// ForceRefresh skips cache reads. Accepted results are still written.
	ForceRefresh bool

	// SchemaVersionHint is the schema version the caller believes is
	// current. A non-empty hint that does not match the loaded snapshot
	// fails the request before any cache or generation work.
	SchemaVersionHint string

	// MaxCorrections overrides the configured correction budget for this
	// request when non-nil.
	MaxCorrections *int
}

// Result is the outcome of one conversion.
type Result struct {
	RequestID     string                    `json:"request_id"`
	Question      string                    `json:"question"`
	Processed     preprocess.ProcessedQuery `json:"-"`
	Candidate     types.SQLCandidate        `json:"candidate"`
	Validation    sqlcheck.Result           `json:"validation"`
	Execution     *types.ExecutionOutcome   `json:"execution,omitempty"`
	FromCache     bool                      `json:"from_cache"`
	CacheTier     types.CacheTier           `json:"cache_tier,omitempty"`
	Attempts      int                       `json:"attempts"`
	SchemaVersion string                    `json:"schema_version"`
}

// Converter wires the pipeline stages together. Construct it once and share
// it; every stage it holds is safe for concurrent use.
type Converter struct {
	versions       *schema.VersionManager
	optimizer      *schema.Optimizer
	semantic       *cache.SemanticCache
	plans          *cache.PlanCache
	generator      llm.Generator
	executor       Executor
	maxCorrections int
	defaultLimit   int
}

// NewConverter builds a converter. The executor may be nil when execution
// is never requested.
func NewConverter(
	versions *schema.VersionManager,
	optimizer *schema.Optimizer,
	semantic *cache.SemanticCache,
	plans *cache.PlanCache,
	generator llm.Generator,
	executor Executor,
	maxCorrections int,
	defaultLimit int,
) *Converter {
	if maxCorrections < 0 {
		maxCorrections = 0
	}

	return &Converter{
		versions:       versions,
		optimizer:      optimizer,
		semantic:       semantic,
		plans:          plans,
		generator:      generator,
		executor:       executor,
		maxCorrections: maxCorrections,
		defaultLimit:   defaultLimit,
	}
}

// Convert runs the pipeline for one question. The schema version is
// captured once at the start and passed through every cache read; the
// write at the end re-checks it so a refresh mid-request cannot plant a
// stale entry. The correction budget is shared between validation and
// execution corrections. Provider errors abort immediately.
func (c *Converter) Convert(ctx context.Context, question string, opts Options) (*Result, error) {
	requestID := uuid.New().String()
	log := logging.GetLogger().WithField("request_id", requestID[:8])

	snapshot := c.versions.Snapshot()
	if snapshot == nil {
		return nil, errors.New(errors.ErrTypeSchema, "no schema snapshot loaded")
	}

	version := snapshot.Version()

	result := &Result{
		RequestID:     requestID,
		Question:      question,
		SchemaVersion: version,
	}

	if opts.SchemaVersionHint != "" && opts.SchemaVersionHint != version {
		return result, errors.Newf(errors.ErrTypeSchema,
			"schema version hint %s does not match current version %s",
			opts.SchemaVersionHint, version)
	}

	pre := preprocess.NewPreprocessor(snapshot.TableNames(), snapshot.ColumnNames())
	result.Processed = pre.Process(question)

	log.WithFields(map[string]interface{}{
		"category":   string(result.Processed.Category),
		"confidence": result.Processed.Confidence,
	}).Debug("preprocessed question")

	if result.Processed.Category == preprocess.CategoryNonQuery {
		return result, errors.New(errors.ErrTypeValidation,
			"input does not look like a data question")
	}

	// Schema questions never need generation or the cache.
	if result.Processed.Category == preprocess.CategorySchemaMeta {
		return c.finishSchemaMeta(ctx, result, opts)
	}

	answered := false
	feedback := ""
	spent := 0

	if !opts.ForceRefresh {
		done, fb, used, err := c.tryCache(ctx, result, snapshot, version, opts)
		if err != nil {
			return result, err
		}

		answered = done
		feedback = fb
		spent = used
	}

	if !answered {
		if err := c.generateLoop(ctx, result, snapshot, version, opts, log, feedback, spent); err != nil {
			return result, err
		}
	}

	// Write-time version gate: a snapshot refreshed mid-request must not
	// receive an entry computed against the old structure. Plan-tier and
	// generated answers both land in the semantic tier so later rephrasings
	// of the question hit there.
	if result.CacheTier != types.TierSemantic && c.versions.IsCurrent(version) {
		if err := c.semantic.Put(ctx, question, string(result.Processed.Category),
			version, result.Candidate); err != nil {
			log.WithError(err).Warn("failed to write semantic cache")
		}
	}

	return result, nil
}

// finishSchemaMeta answers schema questions from the snapshot directly.
func (c *Converter) finishSchemaMeta(ctx context.Context, result *Result, opts Options) (*Result, error) {
	result.Candidate = types.SQLCandidate{
		Statement: "SELECT table_name, column_name, data_type " +
			"FROM information_schema.columns WHERE table_schema = 'main' " +
			"ORDER BY table_name, ordinal_position",
		Explanation: "lists every table and column in the database",
		Confidence:  1.0,
	}
	result.Validation = sqlcheck.Result{IsValid: true}

	if opts.Execute && c.executor != nil {
		outcome := c.executor.Execute(ctx, result.Candidate.Statement)
		result.Execution = &outcome
	}

	return result, nil
}

// tryCache consults the semantic tier first, then the plan tier: the
// semantic tier is the one that recognizes rephrasings, so repeated
// questions report it, and first-seen patterned questions fall to the plan
// templates. It returns done=true when the request is fully answered from
// cache, otherwise the feedback and the budget already consumed for the
// fall-through to generation.
func (c *Converter) tryCache(ctx context.Context, result *Result, snapshot *schema.Snapshot, version string, opts Options) (bool, string, int, error) {
	log := logging.GetLogger()
	validator := sqlcheck.NewValidator(snapshot)

	feedback := ""
	spent := 0

	if cached, ok, err := c.semantic.Lookup(ctx, result.Question, version); err == nil && ok {
		result.Candidate = cached.Candidate
		result.FromCache = true
		result.CacheTier = types.TierSemantic

		done, fb, used, serveErr := c.serveCached(ctx, result, validator, snapshot, opts)

		// A cached statement that no longer validates is poison under this
		// version; drop it so it cannot be served again.
		if !result.Validation.IsValid {
			if rmErr := c.semantic.Remove(ctx, cached.Question); rmErr != nil {
				log.WithError(rmErr).Warn("failed to drop invalid semantic entry")
			}
		}

		if done || serveErr != nil {
			return done, "", 0, serveErr
		}

		feedback = fb
		spent = used
	} else if err != nil {
		log.WithError(err).Warn("semantic cache lookup failed")
	}

	if candidate, ok, err := c.plans.Lookup(ctx, result.Processed, snapshot, version); err == nil && ok {
		result.Candidate = *candidate
		result.FromCache = true
		result.CacheTier = types.TierPlan

		done, fb, used, serveErr := c.serveCached(ctx, result, validator, snapshot, opts)
		if done || serveErr != nil {
			return done, "", 0, serveErr
		}

		feedback = fb
		spent += used
	} else if err != nil {
		log.WithError(err).Warn("plan cache lookup failed")
	}

	return false, feedback, spent, nil
}

// serveCached validates and optionally executes a cache hit, exactly like a
// freshly generated candidate. An invalid entry falls through to generation
// with the violations as feedback; safety violations are final. A failing
// execution falls through with the executor's error as feedback and
// consumes one unit of the shared correction budget.
func (c *Converter) serveCached(ctx context.Context, result *Result, validator *sqlcheck.Validator, snapshot *schema.Snapshot, opts Options) (bool, string, int, error) {
	result.Validation = validator.Validate(result.Candidate.Statement)

	if !result.Validation.IsValid {
		if !result.Validation.RequiresCorrection {
			return true, "", 0, errors.NewSafetyError(violationSummary(result.Validation))
		}

		c.dropCacheFlags(result)

		return false, sqlcheck.CorrectionFeedback(result.Validation.Violations), 0, nil
	}

	if !opts.Execute || c.executor == nil {
		return true, "", 0, nil
	}

	outcome := c.executor.Execute(ctx, result.Candidate.Statement)
	result.Execution = &outcome

	if outcome.Success {
		return true, "", 0, nil
	}

	analysis := AnalyzeExecutionError(outcome.ErrorMessage, snapshot)
	if !analysis.Retryable {
		return true, "", 0, errors.Newf(errors.ErrTypeExecution,
			"execution failed (%s): %s", analysis.Kind, outcome.ErrorMessage)
	}

	feedback := ExecutionFeedback(result.Candidate.Statement, outcome.ErrorMessage, analysis)

	c.dropCacheFlags(result)
	result.Execution = nil

	return false, feedback, 1, nil
}

func (c *Converter) dropCacheFlags(result *Result) {
	result.FromCache = false
	result.CacheTier = ""
}

// generateLoop is the generate, validate, correct, execute cycle. One
// budget covers both correction kinds; corrections a failed cache hit
// already consumed arrive as spent, with its failure as the initial
// feedback.
func (c *Converter) generateLoop(ctx context.Context, result *Result, snapshot *schema.Snapshot, version string, opts Options, log *logging.Logger, initialFeedback string, spent int) error {
	schemaCtx := c.optimizer.BuildContext(snapshot, result.Processed)
	validator := sqlcheck.NewValidator(snapshot)

	budget := c.maxCorrections
	if opts.MaxCorrections != nil && *opts.MaxCorrections >= 0 {
		budget = *opts.MaxCorrections
	}

	budget -= spent
	if budget < 0 {
		budget = 0
	}

	feedback := initialFeedback

	for {
		result.Attempts++

		candidate, err := c.generator.Generate(ctx, llm.Request{
			Question:      result.Question,
			SchemaContext: schemaCtx.RenderedText,
			Category:      string(result.Processed.Category),
			Feedback:      feedback,
		})
		if err != nil {
			// Provider failures are not correctable by regenerating.
			return err
		}

		candidate.Statement = sqlcheck.Clean(candidate.Statement)
		result.Candidate = *candidate
		result.Validation = validator.Validate(candidate.Statement)

		if !result.Validation.IsValid {
			if !result.Validation.RequiresCorrection {
				return errors.NewSafetyError(violationSummary(result.Validation))
			}

			if budget == 0 {
				return errors.Newf(errors.ErrTypeValidation,
					"validation failed after %d attempts: %s",
					result.Attempts, violationSummary(result.Validation))
			}

			budget--
			feedback = sqlcheck.CorrectionFeedback(result.Validation.Violations)

			log.WithField("attempt", result.Attempts).Debug("retrying after validation failure")

			continue
		}

		result.Candidate.Statement = sqlcheck.EnsureLimit(result.Candidate.Statement, c.defaultLimit)

		if result.Attempts > 1 {
			result.Candidate.Confidence *= correctedConfidenceFactor
		}

		if !opts.Execute || c.executor == nil {
			return nil
		}

		outcome := c.executor.Execute(ctx, result.Candidate.Statement)
		result.Execution = &outcome

		if outcome.Success {
			return nil
		}

		analysis := AnalyzeExecutionError(outcome.ErrorMessage, snapshot)

		if !analysis.Retryable || budget == 0 {
			return errors.Newf(errors.ErrTypeExecution,
				"execution failed (%s): %s", analysis.Kind, outcome.ErrorMessage)
		}

		budget--
		feedback = ExecutionFeedback(result.Candidate.Statement, outcome.ErrorMessage, analysis)
		result.Execution = nil

		log.WithFields(map[string]interface{}{
			"attempt": result.Attempts,
			"kind":    string(analysis.Kind),
		}).Debug("retrying after execution failure")
	}
}

func violationSummary(validation sqlcheck.Result) string {
	parts := make([]string, 0, len(validation.Violations))
	for _, v := range validation.Violations {
		parts = append(parts, v.Detail)
	}

	return strings.Join(parts, "; ")
}

// BatchResult pairs one question of a batch with its outcome.
type BatchResult struct {
	Question string
	Result   *Result
	Err      error
}

// ConvertAll answers a question that may contain several parts. Compound
// questions (conjunctions, sequence markers, comparisons, several question
// marks) are split and each part converted on its own; simple questions
// behave exactly like Convert.
func (c *Converter) ConvertAll(ctx context.Context, question string, opts Options) []BatchResult {
	var tables []string
	if snapshot := c.versions.Snapshot(); snapshot != nil {
		tables = snapshot.TableNames()
	}

	decomposed := preprocess.NewDecomposer(tables).Decompose(question)
	if len(decomposed.Parts) == 1 {
		result, err := c.Convert(ctx, question, opts)
		return []BatchResult{{Question: question, Result: result, Err: err}}
	}

	logging.GetLogger().WithFields(map[string]interface{}{
		"parts":  len(decomposed.Parts),
		"reason": decomposed.Reason,
	}).Debug("split compound question")

	return c.ConvertBatch(ctx, decomposed.Parts, opts)
}

// ConvertBatch converts questions sequentially, sharing warm caches across
// them. One failing question does not stop the rest.
func (c *Converter) ConvertBatch(ctx context.Context, questions []string, opts Options) []BatchResult {
	results := make([]BatchResult, 0, len(questions))

	for _, question := range questions {
		if err := ctx.Err(); err != nil {
			results = append(results, BatchResult{Question: question, Err: err})
			continue
		}

		result, err := c.Convert(ctx, question, opts)
		results = append(results, BatchResult{Question: question, Result: result, Err: err})
	}

	return results
}
