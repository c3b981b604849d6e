package similarity

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/sbinet/npyio/npz"
	"go.uber.org/zap"

	"github.com/palisadehq/palisade/internal/detect"
)

// CorpusEntry is the metadata for one attack sample, parallel to a row of the
// embedding matrix. Label holds the sample text.
type CorpusEntry struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	Label       string `json:"label"`
	Source      string `json:"source,omitempty"`
}

type corpusMetadata struct {
	Patterns []CorpusEntry `json:"patterns"`
}

// Corpus holds the attack embedding matrix with its per-row metadata. Rows
// are unit-normalized at load time so matching reduces to dot products.
type Corpus struct {
	vectors    [][]float32
	entries    []CorpusEntry
	dimensions int
}

// LoadCorpus reads the embedding matrix from an .npz archive and the entry
// metadata from a JSON sidecar. Row counts must agree.
func LoadCorpus(matrixPath, metadataPath string, logger *zap.Logger) (*Corpus, error) {
	vectors, err := readMatrix(matrixPath)
	if err != nil {
		return nil, fmt.Errorf("similarity: load matrix %s: %w", matrixPath, err)
	}

	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("similarity: read metadata %s: %w", metadataPath, err)
	}
	var meta corpusMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("similarity: parse metadata %s: %w", metadataPath, err)
	}

	if len(meta.Patterns) != len(vectors) {
		return nil, fmt.Errorf("similarity: %d metadata entries for %d matrix rows",
			len(meta.Patterns), len(vectors))
	}
	unknown := 0
	for _, e := range meta.Patterns {
		if !detect.ValidCategory(e.Category) {
			unknown++
		}
	}
	if unknown > 0 {
		logger.Warn("corpus entries with off-catalog categories",
			zap.Int("count", unknown))
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("similarity: row %d has %d dimensions, want %d", i, len(v), dims)
		}
		normalizeRow(v)
	}

	logger.Info("attack corpus loaded",
		zap.String("matrix", matrixPath),
		zap.Int("entries", len(vectors)),
		zap.Int("dimensions", dims))

	return &Corpus{vectors: vectors, entries: meta.Patterns, dimensions: dims}, nil
}

// Size returns the number of corpus entries.
func (c *Corpus) Size() int {
	return len(c.vectors)
}

// Dimensions returns the embedding width of the matrix.
func (c *Corpus) Dimensions() int {
	return c.dimensions
}

// readMatrix extracts the 2-D float32 embedding array from the archive. Both
// the bare key and the .npy-suffixed key are accepted, and float64 matrices
// are narrowed on load.
func readMatrix(path string) ([][]float32, error) {
	archive, err := npz.Open(path)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	key := ""
	for _, k := range []string{"embeddings", "embeddings.npy"} {
		for _, have := range archive.Keys() {
			if have == k {
				key = k
			}
		}
	}
	if key == "" {
		return nil, fmt.Errorf("no embeddings array in archive (keys %v)", archive.Keys())
	}

	hdr := archive.Header(key)
	shape := hdr.Descr.Shape
	if len(shape) != 2 {
		return nil, fmt.Errorf("embeddings array has shape %v, want 2 dimensions", shape)
	}
	rows, cols := shape[0], shape[1]

	flat := make([]float32, rows*cols)
	if err := archive.Read(key, &flat); err != nil {
		// Fall back to float64 storage.
		flat64 := make([]float64, rows*cols)
		if err64 := archive.Read(key, &flat64); err64 != nil {
			return nil, fmt.Errorf("read embeddings array: %w", err)
		}
		for i, v := range flat64 {
			flat[i] = float32(v)
		}
	}

	vectors := make([][]float32, rows)
	for i := 0; i < rows; i++ {
		vectors[i] = flat[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return vectors, nil
}

func normalizeRow(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || norm == 1 {
		return
	}
	for i, x := range v {
		v[i] = float32(float64(x) / norm)
	}
}
