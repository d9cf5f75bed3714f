package cache

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/queryforge/queryforge/internal/types"
)

// CachedQuery is the payload stored in the semantic tier: the answer plus
// the question forms that produced it.
type CachedQuery struct {
	Question   string             `json:"question"`
	Normalized string             `json:"normalized"`
	Category   string             `json:"category"`
	Candidate  types.SQLCandidate `json:"candidate"`
}

// Scorer measures similarity between two normalized questions in [0, 1].
// Implementations must be safe for concurrent use.
type Scorer interface {
	Score(a, b string) float64
}

// TokenOverlapScorer scores by weighted Jaccard overlap of the token sets.
// Different phrasings of the same aggregation intent ("how many" and
// "count") are folded into one canonical token first and weigh double, and
// filler words are dropped, so rephrasings of the same question score high.
// It is the default scorer; embedding-based scorers can be plugged in
// through the same interface.
type TokenOverlapScorer struct{}

// intentTokenWeight makes agreement on the query's intent count more than
// agreement on any single content word.
const intentTokenWeight = 2.0

// intentClasses fold aggregation phrasings into canonical tokens before
// scoring.
var intentClasses = []struct {
	re    *regexp.Regexp
	token string
}{
	{regexp.MustCompile(`\b(?:how many|number of|count of|count|bao nhiêu|số lượng|đếm)\b`), "count"},
	{regexp.MustCompile(`\b(?:total|sum of|sum|tổng)\b`), "sum"},
	{regexp.MustCompile(`\b(?:average|avg|mean|trung bình)\b`), "avg"},
	{regexp.MustCompile(`\b(?:highest|maximum|max|cao nhất|lớn nhất)\b`), "max"},
	{regexp.MustCompile(`\b(?:lowest|minimum|min|thấp nhất|nhỏ nhất)\b`), "min"},
}

var intentTokens = map[string]bool{
	"count": true, "sum": true, "avg": true, "max": true, "min": true,
}

// fillerTokens carry no signal and only dilute the overlap.
var fillerTokens = map[string]bool{
	"a": true, "all": true, "an": true, "are": true, "do": true, "for": true,
	"in": true, "is": true, "me": true, "of": true, "please": true,
	"the": true, "there": true, "was": true, "were": true, "what": true,
}

func (TokenOverlapScorer) Score(a, b string) float64 {
	tokensA := weightedTokens(a)
	tokensB := weightedTokens(b)

	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	intersection := 0.0
	union := 0.0

	for tok, weight := range tokensA {
		union += weight
		if _, ok := tokensB[tok]; ok {
			intersection += weight
		}
	}

	for tok, weight := range tokensB {
		if _, ok := tokensA[tok]; !ok {
			union += weight
		}
	}

	return intersection / union
}

func weightedTokens(s string) map[string]float64 {
	for _, class := range intentClasses {
		s = class.re.ReplaceAllString(s, class.token)
	}

	set := make(map[string]float64)

	for _, tok := range strings.Fields(s) {
		if fillerTokens[tok] {
			continue
		}

		weight := 1.0
		if intentTokens[tok] {
			weight = intentTokenWeight
		}

		set[tok] = weight
	}

	return set
}

var (
	dateRe        = regexp.MustCompile(`\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b`)
	emailRe       = regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.]+\b`)
	largeNumRe    = regexp.MustCompile(`\b\d+\b`)
	spaceRe       = regexp.MustCompile(`\s+`)
	punctuationRe = regexp.MustCompile(`[?!.,;]+`)
)

// NormalizeQuestion folds a question into its cache-key form: lowercase,
// punctuation stripped, and volatile literals abstracted so questions that
// differ only in a date, an email, or a large number share a key. Small
// numbers stay literal because they are usually structural ("top 5").
func NormalizeQuestion(question string) string {
	text := strings.ToLower(strings.TrimSpace(question))
	text = dateRe.ReplaceAllString(text, "<DATE>")
	text = emailRe.ReplaceAllString(text, "<EMAIL>")

	text = largeNumRe.ReplaceAllStringFunc(text, func(num string) string {
		if len(num) > 2 || (len(num) == 2 && num >= "20") {
			return "<NUM>"
		}

		return num
	})

	text = punctuationRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// indexEntry is one candidate for similarity matching, scoped to the schema
// version it was written under.
type indexEntry struct {
	normalized string
	key        string
	version    string
}

// SemanticCache answers repeated questions from the semantic tier. Exact
// lookups hash the normalized question; near lookups scan a bounded
// in-process index of recently written questions with the Scorer. The index
// is an accelerator only, so losing it on restart just costs near-match
// hits until it refills.
type SemanticCache struct {
	store     Store
	scorer    Scorer
	threshold float64
	ttl       time.Duration

	mu       sync.Mutex
	index    []indexEntry
	maxIndex int
}

// NewSemanticCache wires a semantic cache over a byte store. A nil scorer
// gets TokenOverlapScorer; a threshold outside (0, 1] gets 0.85.
func NewSemanticCache(store Store, scorer Scorer, threshold float64, ttl time.Duration) *SemanticCache {
	if scorer == nil {
		scorer = TokenOverlapScorer{}
	}

	if threshold <= 0 || threshold > 1 {
		threshold = 0.85
	}

	return &SemanticCache{
		store:     store,
		scorer:    scorer,
		threshold: threshold,
		ttl:       ttl,
		maxIndex:  512,
	}
}

// Lookup returns the cached answer for a question, trying the exact
// normalized key first and falling back to the best similarity match at or
// above the threshold. The version gate lives in the store.
func (s *SemanticCache) Lookup(ctx context.Context, question, version string) (*CachedQuery, bool, error) {
	normalized := NormalizeQuestion(question)

	cached, ok, err := s.getByKey(ctx, hashKey(normalized), version)
	if err != nil || ok {
		return cached, ok, err
	}

	best := ""
	bestScore := 0.0

	s.mu.Lock()
	for _, entry := range s.index {
		if entry.version != version {
			continue
		}

		if score := s.scorer.Score(normalized, entry.normalized); score > bestScore {
			bestScore = score
			best = entry.key
		}
	}
	s.mu.Unlock()

	if best == "" || bestScore < s.threshold {
		return nil, false, nil
	}

	return s.getByKey(ctx, best, version)
}

func (s *SemanticCache) getByKey(ctx context.Context, key, version string) (*CachedQuery, bool, error) {
	data, ok, err := s.store.Get(ctx, key, types.TierSemantic, version)
	if err != nil || !ok {
		return nil, false, err
	}

	var cached CachedQuery
	if err := json.Unmarshal(data, &cached); err != nil {
		s.store.Delete(ctx, key, types.TierSemantic)
		return nil, false, nil
	}

	return &cached, true, nil
}

// Remove drops the entry stored under a question's normalized key, along
// with its index record.
func (s *SemanticCache) Remove(ctx context.Context, question string) error {
	key := hashKey(NormalizeQuestion(question))

	s.mu.Lock()
	for i, entry := range s.index {
		if entry.key == key {
			s.index = append(s.index[:i], s.index[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	return s.store.Delete(ctx, key, types.TierSemantic)
}

// Put stores an answer under the question's normalized key and records the
// question in the similarity index.
func (s *SemanticCache) Put(ctx context.Context, question, category, version string, candidate types.SQLCandidate) error {
	normalized := NormalizeQuestion(question)
	key := hashKey(normalized)

	data, err := json.Marshal(CachedQuery{
		Question:   question,
		Normalized: normalized,
		Category:   category,
		Candidate:  candidate,
	})
	if err != nil {
		return err
	}

	if err := s.store.Set(ctx, key, types.TierSemantic, version, data, s.ttl); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.index {
		if entry.key == key && entry.version == version {
			return nil
		}
	}

	s.index = append(s.index, indexEntry{normalized: normalized, key: key, version: version})
	if len(s.index) > s.maxIndex {
		s.index = s.index[len(s.index)-s.maxIndex:]
	}

	return nil
}
