package rules

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/palisadehq/palisade/internal/detect"
)

// Scanner is the first cascade layer: compiled regex patterns over the raw
// input and its normalized form. It has no external dependencies and is
// always available.
type Scanner struct {
	patterns []Pattern
	logger   *zap.Logger
}

// NewScanner builds a scanner over the shared pattern catalog.
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{
		patterns: Catalog,
		logger:   logger.With(zap.String("component", "rules")),
	}
}

// PatternCount returns the number of patterns in the catalog.
func (s *Scanner) PatternCount() int {
	return len(s.patterns)
}

type match struct {
	pattern    *Pattern
	position   int
	length     int
	normalized bool
}

// Scan runs every pattern against the text and its homoglyph-normalized form,
// returning the highest-confidence match. A panic inside the regex engine is
// converted into a failed-open result.
func (s *Scanner) Scan(text string) (result detect.LayerResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pattern scan panicked", zap.Any("panic", r))
			result = detect.FailOpen(detect.LayerRules, msSince(start), fmt.Errorf("pattern scan panicked: %v", r))
		}
	}()

	best := s.scanVariant(text, false)

	normalized := NormalizeText(text)
	if normalized != text {
		if m := s.scanVariant(normalized, true); better(m, best) {
			best = m
		}
	}

	latency := msSince(start)
	if best == nil {
		return detect.Benign(detect.LayerRules, latency, map[string]any{
			"patterns_checked": len(s.patterns),
		})
	}

	s.logger.Debug("pattern matched",
		zap.String("pattern", best.pattern.Name),
		zap.String("category", best.pattern.Category),
		zap.Float64("confidence", best.pattern.Confidence),
		zap.Bool("normalized", best.normalized))

	return detect.LayerResult{
		Layer:       detect.LayerRules,
		IsInjection: true,
		Confidence:  best.pattern.Confidence,
		AttackType:  best.pattern.Category,
		LatencyMS:   latency,
		Details: map[string]any{
			"pattern_name":     best.pattern.Name,
			"matched_position": best.position,
			"matched_length":   best.length,
			"description":      best.pattern.Description,
			"normalized":       best.normalized,
		},
	}
}

func (s *Scanner) scanVariant(text string, normalized bool) *match {
	var best *match
	for i := range s.patterns {
		p := &s.patterns[i]
		loc := p.Regex.FindStringIndex(text)
		if loc == nil {
			continue
		}
		m := &match{
			pattern:    p,
			position:   loc[0],
			length:     loc[1] - loc[0],
			normalized: normalized,
		}
		if better(m, best) {
			best = m
		}
	}
	return best
}

// better prefers higher confidence; ties keep the earlier candidate, which
// preserves catalog order within a variant and the raw-text match across
// variants.
func better(candidate, current *match) bool {
	if candidate == nil {
		return false
	}
	if current == nil {
		return true
	}
	return candidate.pattern.Confidence > current.pattern.Confidence
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
