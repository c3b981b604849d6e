// Package embedding turns text into fixed-dimension float32 vectors for the
// similarity layer and the corpus builder.
package embedding

import (
	"context"
	"errors"
	"math"
)

// Common provider errors.
var (
	ErrEmptyInput  = errors.New("embedding: text cannot be empty")
	ErrUnavailable = errors.New("embedding: backend unavailable")
)

// Provider generates embeddings. Implementations must be safe for concurrent
// use and must return vectors of a stable dimension.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Normalize scales a vector to unit length in place and returns it. A zero
// vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}

// CosineSimilarity computes cosine similarity between two vectors. Mismatched
// lengths or a zero vector yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
