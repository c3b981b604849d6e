// Package similarity implements the second cascade layer: cosine similarity
// between the input embedding and a corpus of known attack embeddings.
package similarity

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/palisadehq/palisade/internal/detect"
	"github.com/palisadehq/palisade/internal/embedding"
)

// DefaultThreshold is the cosine similarity above which an input counts as a
// match against the attack corpus.
const DefaultThreshold = 0.55

// Engine matches inputs against the attack corpus.
type Engine struct {
	corpus    *Corpus
	provider  embedding.Provider
	threshold float64
	logger    *zap.Logger
}

// NewEngine wires a loaded corpus to an embedding provider. A non-positive
// threshold falls back to DefaultThreshold.
func NewEngine(corpus *Corpus, provider embedding.Provider, threshold float64, logger *zap.Logger) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{
		corpus:    corpus,
		provider:  provider,
		threshold: threshold,
		logger:    logger.With(zap.String("component", "similarity")),
	}
}

// Match embeds the text and scans the corpus. Provider failures and dimension
// mismatches fail open; a zero query vector is benign by definition.
func (e *Engine) Match(ctx context.Context, text string) detect.LayerResult {
	start := time.Now()

	query, err := e.provider.Embed(ctx, text)
	if err != nil {
		e.logger.Warn("embedding failed", zap.Error(err))
		return detect.FailOpen(detect.LayerSimilarity, msSince(start), err)
	}

	best, bestSim, above, zero := e.scan(query)
	latency := msSince(start)

	if zero {
		return detect.Benign(detect.LayerSimilarity, latency, map[string]any{
			"reason": "zero_vector",
		})
	}

	details := map[string]any{
		"best_similarity": round4(bestSim),
		"threshold":       e.threshold,
		"total_matches":   above,
		"corpus_size":     e.corpus.Size(),
	}

	if bestSim < e.threshold {
		return detect.Benign(detect.LayerSimilarity, latency, details)
	}

	entry := e.corpus.entries[best]
	details["matched_index"] = best
	details["matched_category"] = entry.Category
	details["matched_subcategory"] = entry.Subcategory
	details["matched_label"] = entry.Label

	e.logger.Debug("similarity match",
		zap.Float64("similarity", bestSim),
		zap.Int("index", best),
		zap.String("category", entry.Category),
		zap.Int("total_matches", above))

	// Off-catalog corpus categories stay in details but never become the
	// reported attack type.
	attackType := ""
	if detect.ValidCategory(entry.Category) {
		attackType = entry.Category
	}

	return detect.LayerResult{
		Layer:       detect.LayerSimilarity,
		IsInjection: true,
		Confidence:  clamp01(bestSim),
		AttackType:  attackType,
		LatencyMS:   latency,
		Details:     details,
	}
}

// CorpusMatch is one scored corpus entry, for debug output.
type CorpusMatch struct {
	Index       int     `json:"index"`
	Label       string  `json:"label"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory,omitempty"`
	Similarity  float64 `json:"similarity"`
}

// TopMatches returns the k closest corpus entries for a text, highest first.
func (e *Engine) TopMatches(ctx context.Context, text string, k int) ([]CorpusMatch, error) {
	query, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	matches := make([]CorpusMatch, 0, e.corpus.Size())
	for i, row := range e.corpus.vectors {
		entry := e.corpus.entries[i]
		matches = append(matches, CorpusMatch{
			Index:       i,
			Label:       entry.Label,
			Category:    entry.Category,
			Subcategory: entry.Subcategory,
			Similarity:  round4(embedding.CosineSimilarity(query, row)),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func (e *Engine) scan(query []float32) (best int, bestSim float64, above int, zero bool) {
	var qn float64
	for _, v := range query {
		qn += float64(v) * float64(v)
	}
	if qn == 0 {
		return 0, 0, 0, true
	}

	best = -1
	for i, row := range e.corpus.vectors {
		sim := embedding.CosineSimilarity(query, row)
		if sim >= e.threshold {
			above++
		}
		if best < 0 || sim > bestSim {
			best, bestSim = i, sim
		}
	}
	if best < 0 {
		return 0, 0, 0, true
	}
	return best, bestSim, above, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
