package detect

import (
	"encoding/json"
	"fmt"
)

// Attack categories form a closed set. Any tag outside this set is discarded
// before a result reaches the caller.
const (
	CategoryInstructionOverride   = "instruction_override"
	CategoryJailbreak             = "jailbreak"
	CategoryDelimiterInjection    = "delimiter_injection"
	CategoryDataExtraction        = "data_extraction"
	CategoryIndirectInjection     = "indirect_injection"
	CategoryContextManipulation   = "context_manipulation"
	CategoryObfuscation           = "obfuscation"
	CategoryHypotheticalFraming   = "hypothetical_framing"
	CategoryMultilingualInjection = "multilingual_injection"
)

// Categories lists every valid attack_type tag.
var Categories = []string{
	CategoryInstructionOverride,
	CategoryJailbreak,
	CategoryDelimiterInjection,
	CategoryDataExtraction,
	CategoryIndirectInjection,
	CategoryContextManipulation,
	CategoryObfuscation,
	CategoryHypotheticalFraming,
	CategoryMultilingualInjection,
}

var categorySet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Categories))
	for _, c := range Categories {
		m[c] = struct{}{}
	}
	return m
}()

// ValidCategory reports whether tag is in the closed attack category set.
func ValidCategory(tag string) bool {
	_, ok := categorySet[tag]
	return ok
}

// Layer numbers of the cascade.
const (
	LayerRules      = 1
	LayerSimilarity = 2
	LayerJudge      = 3
)

// LayerResult is the verdict from a single detection layer.
//
// A populated Error means the layer failed open: IsInjection is false and
// Confidence is zero regardless of whatever the layer computed before failing.
type LayerResult struct {
	Layer       int            `json:"layer"`
	IsInjection bool           `json:"is_injection"`
	Confidence  float64        `json:"confidence"`
	AttackType  string         `json:"attack_type,omitempty"`
	LatencyMS   float64        `json:"latency_ms"`
	Details     map[string]any `json:"details,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Validate checks the LayerResult construction invariants.
func (r *LayerResult) Validate() error {
	if r.Layer < LayerRules || r.Layer > LayerJudge {
		return fmt.Errorf("invalid layer %d: must be 1, 2, or 3", r.Layer)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %f outside [0, 1]", r.Confidence)
	}
	if r.LatencyMS < 0 {
		return fmt.Errorf("negative latency %f", r.LatencyMS)
	}
	if r.AttackType != "" && !ValidCategory(r.AttackType) {
		return fmt.Errorf("unknown attack type %q", r.AttackType)
	}
	if r.Error != "" && (r.IsInjection || r.Confidence != 0) {
		return fmt.Errorf("failed-open result must be benign with zero confidence")
	}
	return nil
}

// FailOpen builds the benign result a layer reports when it cannot complete.
func FailOpen(layer int, latencyMS float64, err error) LayerResult {
	return LayerResult{
		Layer:     layer,
		LatencyMS: latencyMS,
		Error:     err.Error(),
	}
}

// Benign builds a no-detection result for a layer.
func Benign(layer int, latencyMS float64, details map[string]any) LayerResult {
	return LayerResult{
		Layer:     layer,
		LatencyMS: latencyMS,
		Details:   details,
	}
}

// Result is the aggregate verdict from the detection cascade.
type Result struct {
	IsInjection     bool          `json:"is_injection"`
	Confidence      float64       `json:"confidence"`
	AttackType      string        `json:"attack_type,omitempty"`
	DetectedByLayer int           `json:"detected_by_layer,omitempty"`
	LayerResults    []LayerResult `json:"layer_results"`
	TotalLatencyMS  float64       `json:"total_latency_ms"`
	Errors          []string      `json:"errors"`
	LayersSkipped   []int         `json:"layers_skipped"`
}

// Validate checks the aggregate invariants: the detecting layer, when set,
// must be the last layer that ran and the only positive one.
func (r *Result) Validate() error {
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %f outside [0, 1]", r.Confidence)
	}
	if r.TotalLatencyMS < 0 {
		return fmt.Errorf("negative total latency %f", r.TotalLatencyMS)
	}
	prev := 0
	for i := range r.LayerResults {
		lr := &r.LayerResults[i]
		if err := lr.Validate(); err != nil {
			return fmt.Errorf("layer result %d: %w", i, err)
		}
		if lr.Layer <= prev {
			return fmt.Errorf("layer results out of order: %d after %d", lr.Layer, prev)
		}
		prev = lr.Layer
	}
	if r.DetectedByLayer != 0 {
		if r.DetectedByLayer < LayerRules || r.DetectedByLayer > LayerJudge {
			return fmt.Errorf("invalid detected_by_layer %d", r.DetectedByLayer)
		}
		n := len(r.LayerResults)
		if n == 0 {
			return fmt.Errorf("detected_by_layer %d with no layer results", r.DetectedByLayer)
		}
		last := r.LayerResults[n-1]
		if last.Layer != r.DetectedByLayer || !last.IsInjection {
			return fmt.Errorf("detecting layer %d must be the last layer that ran", r.DetectedByLayer)
		}
		for _, lr := range r.LayerResults[:n-1] {
			if lr.IsInjection {
				return fmt.Errorf("layer %d detected before detected_by_layer %d", lr.Layer, r.DetectedByLayer)
			}
		}
	}
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler so results can be handed
// to cache backends directly.
func (r *Result) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *Result) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}
