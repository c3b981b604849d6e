package corpus

import (
	"archive/zip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/palisadehq/palisade/internal/similarity"
)

// WriteMatrix writes the (N, D) embedding matrix as an .npz archive holding a
// single little-endian float32 array under the key "embeddings".
//
// The npy payload is assembled by hand: npyio's writer only serializes
// gonum matrices and scalar slices, not 2-D float32 slices, and the format's
// fixed v1.0 header is simple enough to emit directly.
func WriteMatrix(path string, vectors [][]float32) error {
	if len(vectors) == 0 {
		return fmt.Errorf("corpus: refusing to write empty matrix")
	}
	dims := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dims {
			return fmt.Errorf("corpus: row %d has %d dimensions, want %d", i, len(v), dims)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("corpus: create %s: %w", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("embeddings.npy")
	if err != nil {
		return fmt.Errorf("corpus: create archive entry: %w", err)
	}

	if err := writeNpy(w, vectors, dims); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("corpus: finalize archive: %w", err)
	}
	return f.Close()
}

func writeNpy(w io.Writer, vectors [][]float32, dims int) error {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", len(vectors), dims)
	// Pad so magic+version+len+header is a multiple of 64, newline-terminated.
	total := 10 + len(header) + 1
	pad := (64 - total%64) % 64
	for i := 0; i < pad; i++ {
		header += " "
	}
	header += "\n"

	buf := make([]byte, 0, 10+len(header))
	buf = append(buf, '\x93', 'N', 'U', 'M', 'P', 'Y', 1, 0)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(header)))
	buf = append(buf, header...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("corpus: write npy header: %w", err)
	}

	row := make([]byte, dims*4)
	for _, vec := range vectors {
		for i, v := range vec {
			binary.LittleEndian.PutUint32(row[i*4:], math.Float32bits(v))
		}
		if _, err := w.Write(row); err != nil {
			return fmt.Errorf("corpus: write npy data: %w", err)
		}
	}
	return nil
}

// WriteMetadata writes the per-row sidecar consumed by the similarity layer.
func WriteMetadata(path string, entries []similarity.CorpusEntry) error {
	data, err := json.MarshalIndent(struct {
		Patterns []similarity.CorpusEntry `json:"patterns"`
	}{Patterns: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("corpus: marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("corpus: write %s: %w", path, err)
	}
	return nil
}
