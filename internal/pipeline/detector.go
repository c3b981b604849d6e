// Package pipeline orchestrates the three-layer detection cascade: rule
// patterns, corpus similarity, then the model judge. The cascade stops at the
// first layer that detects an injection.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/palisadehq/palisade/internal/detect"
)

// DefaultMaxInputLength bounds the accepted input size in bytes.
const DefaultMaxInputLength = 10_000

var layerNames = map[int]string{
	detect.LayerRules:      "rules",
	detect.LayerSimilarity: "similarity",
	detect.LayerJudge:      "judge",
}

// RulesLayer is the always-available first layer.
type RulesLayer interface {
	Scan(text string) detect.LayerResult
}

// SimilarityLayer is the corpus-backed second layer.
type SimilarityLayer interface {
	Match(ctx context.Context, text string) detect.LayerResult
}

// JudgeLayer is the model-backed third layer.
type JudgeLayer interface {
	Evaluate(ctx context.Context, text string) detect.LayerResult
}

// ResultStore caches full cascade results. Implementations must treat their
// own faults as misses.
type ResultStore interface {
	Lookup(ctx context.Context, text string, layers []int) (*detect.Result, bool)
	Store(ctx context.Context, text string, layers []int, result *detect.Result)
}

// Options selects which layers a single Detect call runs. An empty Layers
// list means every available layer.
type Options struct {
	Layers []int
}

// Detector runs the cascade. The rules layer is mandatory; similarity and
// judge are nil when their backends are not configured, and requests naming
// them record a skip instead of failing.
type Detector struct {
	rules      RulesLayer
	similarity SimilarityLayer
	judge      JudgeLayer
	results    ResultStore
	maxInput   int
	logger     *zap.Logger
}

// New assembles a detector. results may be nil to disable caching.
func New(rules RulesLayer, similarity SimilarityLayer, judge JudgeLayer, results ResultStore, maxInput int, logger *zap.Logger) *Detector {
	if maxInput <= 0 {
		maxInput = DefaultMaxInputLength
	}
	return &Detector{
		rules:      rules,
		similarity: similarity,
		judge:      judge,
		results:    results,
		maxInput:   maxInput,
		logger:     logger.With(zap.String("component", "pipeline")),
	}
}

// AvailableLayers lists the layers whose backends are configured, ascending.
func (d *Detector) AvailableLayers() []int {
	layers := []int{detect.LayerRules}
	if d.similarity != nil {
		layers = append(layers, detect.LayerSimilarity)
	}
	if d.judge != nil {
		layers = append(layers, detect.LayerJudge)
	}
	return layers
}

// Detect runs the text through the cascade.
//
// Blank input short-circuits to a benign result without running any layer.
// Oversized input returns detect.ErrInputTooLong and an unknown layer number
// returns detect.ErrInvalidLayer; both happen before any layer runs.
func (d *Detector) Detect(ctx context.Context, text string, opts Options) (*detect.Result, error) {
	if strings.TrimSpace(text) == "" {
		return emptyResult(), nil
	}
	if len(text) > d.maxInput {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit %d", detect.ErrInputTooLong, len(text), d.maxInput)
	}

	run, err := d.resolveLayers(opts.Layers)
	if err != nil {
		return nil, err
	}

	if d.results != nil {
		if cached, ok := d.results.Lookup(ctx, text, run); ok {
			d.logger.Debug("cache hit")
			return cached, nil
		}
	}

	result := d.runCascade(ctx, text, run)

	if d.results != nil {
		d.results.Store(ctx, text, run, result)
	}
	return result, nil
}

func (d *Detector) resolveLayers(requested []int) ([]int, error) {
	if len(requested) == 0 {
		return d.AvailableLayers(), nil
	}

	var invalid []int
	seen := make(map[int]bool, len(requested))
	run := make([]int, 0, len(requested))
	for _, l := range requested {
		if l < detect.LayerRules || l > detect.LayerJudge {
			invalid = append(invalid, l)
			continue
		}
		if !seen[l] {
			seen[l] = true
			run = append(run, l)
		}
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("%w: %v", detect.ErrInvalidLayer, invalid)
	}
	sort.Ints(run)
	return run, nil
}

func (d *Detector) runCascade(ctx context.Context, text string, run []int) *detect.Result {
	start := time.Now()

	result := emptyResult()

	finish := func() *detect.Result {
		result.TotalLatencyMS = float64(time.Since(start).Microseconds()) / 1000.0
		return result
	}
	record := func(lr detect.LayerResult) bool {
		result.LayerResults = append(result.LayerResults, lr)
		if lr.Error != "" {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Layer %d (%s): %s", lr.Layer, layerNames[lr.Layer], lr.Error))
		}
		if lr.IsInjection {
			result.IsInjection = true
			result.Confidence = lr.Confidence
			result.AttackType = lr.AttackType
			result.DetectedByLayer = lr.Layer
			d.logger.Info("injection detected",
				zap.Int("layer", lr.Layer),
				zap.String("attack_type", lr.AttackType),
				zap.Float64("confidence", lr.Confidence))
			return true
		}
		return false
	}

	for _, layer := range run {
		switch layer {
		case detect.LayerRules:
			if record(d.rules.Scan(text)) {
				return finish()
			}
		case detect.LayerSimilarity:
			if d.similarity == nil {
				result.LayersSkipped = append(result.LayersSkipped, layer)
				continue
			}
			if record(d.similarity.Match(ctx, text)) {
				return finish()
			}
		case detect.LayerJudge:
			if d.judge == nil {
				result.LayersSkipped = append(result.LayersSkipped, layer)
				continue
			}
			if record(d.judge.Evaluate(ctx, text)) {
				return finish()
			}
		}
	}
	return finish()
}

func emptyResult() *detect.Result {
	return &detect.Result{
		LayerResults:  []detect.LayerResult{},
		Errors:        []string{},
		LayersSkipped: []int{},
	}
}
