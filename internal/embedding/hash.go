package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"

	"go.uber.org/zap"
)

// HashDimensions is the vector size of the deterministic local provider.
const HashDimensions = 384

// HashProvider generates deterministic embeddings from SHA-256 digests of
// word n-grams. It needs no network or model files, so it serves as the
// offline fallback and as a stable provider for tests. The vectors carry
// lexical overlap only, not semantics.
type HashProvider struct {
	logger *zap.Logger
}

// NewHashProvider builds the deterministic provider.
func NewHashProvider(logger *zap.Logger) *HashProvider {
	return &HashProvider{
		logger: logger.With(zap.String("component", "embedding"), zap.String("provider", "hash")),
	}
}

// Embed produces a unit-length vector from the text's token n-grams.
func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	vec := make([]float32, HashDimensions)
	words := strings.Fields(strings.ToLower(text))

	// Unigrams and bigrams each vote into buckets chosen by their digest.
	for i, w := range words {
		accumulate(vec, w, 1.0)
		if i+1 < len(words) {
			accumulate(vec, w+" "+words[i+1], 0.5)
		}
	}
	// Character trigrams catch intra-word manipulation.
	runes := []rune(strings.ToLower(text))
	for i := 0; i+3 <= len(runes); i++ {
		accumulate(vec, string(runes[i:i+3]), 0.25)
	}

	return Normalize(vec), nil
}

// EmbedBatch embeds each text independently.
func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

// Dimensions returns HashDimensions.
func (p *HashProvider) Dimensions() int {
	return HashDimensions
}

// Close is a no-op.
func (p *HashProvider) Close() error {
	return nil
}

// accumulate adds a signed weight to the bucket selected by the feature's
// digest. The second hash word picks the sign so buckets stay zero-centered.
func accumulate(vec []float32, feature string, weight float32) {
	sum := sha256.Sum256([]byte(feature))
	bucket := binary.BigEndian.Uint32(sum[:4]) % uint32(len(vec))
	if binary.BigEndian.Uint32(sum[4:8])&1 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}
