package preprocess

import (
	"fmt"
	"regexp"
	"strings"
)

// DecompositionStrategy says how the parts of a compound question relate.
type DecompositionStrategy string

const (
	DecompositionSingle     DecompositionStrategy = "single"
	DecompositionParallel   DecompositionStrategy = "parallel"
	DecompositionSequential DecompositionStrategy = "sequential"
)

// DecomposedQuestion is the result of splitting a possibly multi-part
// question.
type DecomposedQuestion struct {
	Original string
	Strategy DecompositionStrategy
	Parts    []string
	Reason   string
}

// Decomposer splits compound questions into independently answerable
// parts. It is pattern based: explicit conjunctions, sequence markers,
// comparisons, numbered steps, and multiple question marks mark a question
// as compound.
type Decomposer struct {
	tableNames []string
}

func NewDecomposer(tableNames []string) *Decomposer {
	return &Decomposer{tableNames: tableNames}
}

var (
	sequenceMarkerRe = regexp.MustCompile(`(?i)\b(?:then|after that|sau đó|tiếp theo)\b`)
	alsoMarkerRe     = regexp.MustCompile(`(?i)\b(?:and also|as well as|và cũng)\b`)
	compareRe        = regexp.MustCompile(`(?i)\b(?:compare|so sánh)\s+(.+?)\s+(?:with|to|versus|vs|với)\s+(.+)`)
	numberedStepRe   = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+`)
	questionSplitRe  = regexp.MustCompile(`\?\s*`)
)

// longQuestionWords marks the length past which a question is assumed to
// bundle more than one ask.
const longQuestionWords = 30

// NeedsDecomposition reports whether a question looks compound, and why.
func (d *Decomposer) NeedsDecomposition(question string) (bool, string) {
	if strings.Count(question, "?") > 1 {
		return true, "multiple questions"
	}

	if numberedStepRe.MatchString(question) {
		return true, "numbered steps"
	}

	if sequenceMarkerRe.MatchString(question) {
		return true, "sequence marker"
	}

	if alsoMarkerRe.MatchString(question) {
		return true, "conjunction marker"
	}

	if compareRe.MatchString(question) {
		return true, "comparison"
	}

	if words := len(strings.Fields(question)); words > longQuestionWords {
		return true, fmt.Sprintf("long question (%d words)", words)
	}

	refs := 0
	lower := strings.ToLower(question)

	for _, name := range d.tableNames {
		if strings.Contains(lower, strings.ToLower(name)) {
			refs++
		}
	}

	if refs > 3 {
		return true, fmt.Sprintf("references %d tables", refs)
	}

	return false, ""
}

// Decompose splits the question into parts. Questions that do not need
// splitting, or that the patterns cannot split, come back whole.
func (d *Decomposer) Decompose(question string) DecomposedQuestion {
	needs, reason := d.NeedsDecomposition(question)
	if !needs {
		return singlePart(question, reason)
	}

	// Comparisons become one sub-question per compared entity.
	if m := compareRe.FindStringSubmatch(question); m != nil {
		return DecomposedQuestion{
			Original: question,
			Strategy: DecompositionParallel,
			Parts: []string{
				"information about " + strings.TrimSpace(m[1]),
				"information about " + strings.TrimSpace(m[2]),
			},
			Reason: reason,
		}
	}

	parts := splitParts(question)
	if len(parts) < 2 {
		return singlePart(question, "could not split")
	}

	strategy := DecompositionParallel
	if sequenceMarkerRe.MatchString(question) {
		strategy = DecompositionSequential
	}

	return DecomposedQuestion{
		Original: question,
		Strategy: strategy,
		Parts:    parts,
		Reason:   reason,
	}
}

func singlePart(question, reason string) DecomposedQuestion {
	return DecomposedQuestion{
		Original: question,
		Strategy: DecompositionSingle,
		Parts:    []string{question},
		Reason:   reason,
	}
}

// splitParts cuts the question at every boundary marker and keeps the
// segments substantial enough to answer on their own.
func splitParts(question string) []string {
	segments := []string{question}

	for _, re := range []*regexp.Regexp{questionSplitRe, sequenceMarkerRe, alsoMarkerRe, numberedStepRe} {
		var next []string
		for _, seg := range segments {
			next = append(next, re.Split(seg, -1)...)
		}

		segments = next
	}

	var parts []string

	for _, seg := range segments {
		seg = strings.TrimSpace(strings.Trim(strings.TrimSpace(seg), ".,;"))
		if len(strings.Fields(seg)) >= 2 {
			parts = append(parts, seg)
		}
	}

	return parts
}
