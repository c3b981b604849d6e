// Package corpus builds the similarity layer's artifacts: an embedding
// matrix (embeddings.npz) plus a metadata sidecar (metadata.json) generated
// from labeled attack datasets in CSV, Parquet or JSONL form.
package corpus

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/palisadehq/palisade/internal/embedding"
	"github.com/palisadehq/palisade/internal/similarity"
	"github.com/palisadehq/palisade/internal/vector"
)

// Record is one row of a labeled input dataset. Label 1 marks an injection
// sample; benign rows are dropped.
type Record struct {
	Text      string `csv:"text" parquet:"text" json:"text"`
	LabelText string `csv:"label_text" parquet:"label_text" json:"label_text"`
	Label     int    `csv:"label" parquet:"label" json:"label"`
}

// Config controls the build.
type Config struct {
	BatchSize     int    `yaml:"batch_size" mapstructure:"batch_size"`
	OutputDir     string `yaml:"output_dir" mapstructure:"output_dir"`
	MaxTextLength int    `yaml:"max_text_length" mapstructure:"max_text_length"`
}

// BuildResult summarizes one corpus build.
type BuildResult struct {
	RecordsRead int           `json:"records_read"`
	Benign      int           `json:"benign_skipped"`
	Invalid     int           `json:"invalid_skipped"`
	Duplicates  int           `json:"duplicates_skipped"`
	Embedded    int           `json:"embedded"`
	MatrixPath  string        `json:"matrix_path"`
	Metadata    string        `json:"metadata_path"`
	Duration    time.Duration `json:"duration"`
}

// Builder turns attack datasets into similarity artifacts. The optional
// store mirrors every sample into PostgreSQL.
type Builder struct {
	config   Config
	provider embedding.Provider
	store    *vector.Store
	logger   *zap.Logger
}

// NewBuilder wires the embedding provider and optional database sink.
func NewBuilder(config Config, provider embedding.Provider, store *vector.Store, logger *zap.Logger) *Builder {
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}
	if config.MaxTextLength <= 0 {
		config.MaxTextLength = 10_000
	}
	if config.OutputDir == "" {
		config.OutputDir = "."
	}
	return &Builder{
		config:   config,
		provider: provider,
		store:    store,
		logger:   logger.With(zap.String("component", "corpus")),
	}
}

// Build reads every input file, embeds the attack samples, and writes
// embeddings.npz and metadata.json into the output directory.
func (b *Builder) Build(ctx context.Context, inputs []string) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{}

	var entries []similarity.CorpusEntry
	var severities []float64
	var texts []string
	seen := make(map[string]bool)

	for _, input := range inputs {
		records, err := b.readFile(input)
		if err != nil {
			return nil, err
		}
		result.RecordsRead += len(records)

		source := filepath.Base(input)
		for _, rec := range records {
			text := strings.TrimSpace(rec.Text)
			switch {
			case rec.Label != 1:
				result.Benign++
				continue
			case text == "" || len(text) > b.config.MaxTextLength:
				result.Invalid++
				continue
			case seen[text]:
				result.Duplicates++
				continue
			}
			seen[text] = true

			category, subcategory, severity := InferCategory(text)
			entries = append(entries, similarity.CorpusEntry{
				Category:    category,
				Subcategory: subcategory,
				Label:       text,
				Source:      source,
			})
			severities = append(severities, severity)
			texts = append(texts, text)
		}
	}

	if len(texts) == 0 {
		return nil, fmt.Errorf("corpus: no attack samples found in %d records", result.RecordsRead)
	}

	b.logger.Info("embedding corpus",
		zap.Int("samples", len(texts)),
		zap.Int("batch_size", b.config.BatchSize))

	vectors := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += b.config.BatchSize {
		end := offset + b.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := b.provider.EmbedBatch(ctx, texts[offset:end])
		if err != nil {
			return nil, fmt.Errorf("corpus: embed batch at offset %d: %w", offset, err)
		}
		for _, v := range batch {
			vectors = append(vectors, embedding.Normalize(v))
		}
		result.Embedded = len(vectors)
	}

	if b.store != nil {
		if err := b.sink(ctx, entries, severities, vectors); err != nil {
			return nil, err
		}
	}

	result.MatrixPath = filepath.Join(b.config.OutputDir, "embeddings.npz")
	result.Metadata = filepath.Join(b.config.OutputDir, "metadata.json")

	if err := WriteMatrix(result.MatrixPath, vectors); err != nil {
		return nil, err
	}
	if err := WriteMetadata(result.Metadata, entries); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	b.logger.Info("corpus built",
		zap.Int("samples", result.Embedded),
		zap.Int("duplicates", result.Duplicates),
		zap.String("matrix", result.MatrixPath),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (b *Builder) sink(ctx context.Context, entries []similarity.CorpusEntry, severities []float64, vectors [][]float32) error {
	samples := make([]*vector.AttackSample, len(entries))
	for i, e := range entries {
		samples[i] = &vector.AttackSample{
			Text:        e.Label,
			Category:    e.Category,
			Subcategory: e.Subcategory,
			Severity:    severities[i],
			Source:      e.Source,
			Embedding:   vectors[i],
		}
	}

	res, err := b.store.BatchInsert(ctx, samples)
	if err != nil {
		return fmt.Errorf("corpus: database sink: %w", err)
	}
	b.logger.Info("samples mirrored to database",
		zap.Int64("inserted", res.Inserted),
		zap.Int64("skipped", res.Skipped))
	return nil
}

func (b *Builder) readFile(path string) ([]Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".parquet":
		return readParquet(path)
	case ".json", ".jsonl":
		return readJSONL(path)
	default:
		return nil, fmt.Errorf("corpus: unsupported input format %q", filepath.Ext(path))
	}
}

// readCSV expects a header row and columns text, label_text, label.
func readCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 3

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("corpus: read CSV header: %w", err)
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("corpus: read CSV record: %w", err)
		}

		label := 0
		if row[2] == "1" || strings.EqualFold(row[2], "true") {
			label = 1
		}
		records = append(records, Record{
			Text:      row[0],
			LabelText: row[1],
			Label:     label,
		})
	}
	return records, nil
}

func readParquet(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open %s: %w", path, err)
	}
	defer f.Close()

	reader := parquet.NewReader(f)
	defer reader.Close()

	var records []Record
	for {
		var rec Record
		err := reader.Read(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("corpus: read parquet record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// readJSONL reads one JSON object per line (a bare stream also works).
func readJSONL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open %s: %w", path, err)
	}
	defer f.Close()

	decoder := json.NewDecoder(f)
	var records []Record
	for {
		var rec Record
		err := decoder.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("corpus: read JSON record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
