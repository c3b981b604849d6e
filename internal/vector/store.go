// Package vector persists attack samples with their embeddings in PostgreSQL
// using pgvector. The store is an optional sink for the corpus builder so
// corpora can also be queried and rebuilt server-side.
package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// AttackSample is one labeled attack text with its embedding.
type AttackSample struct {
	ID          int64     `db:"id" json:"id"`
	Text        string    `db:"text" json:"text"`
	TextHash    string    `db:"text_hash" json:"text_hash"`
	Category    string    `db:"category" json:"category"`
	Subcategory string    `db:"subcategory" json:"subcategory,omitempty"`
	Severity    float64   `db:"severity" json:"severity"`
	Source      string    `db:"source" json:"source,omitempty"`
	Embedding   []float32 `db:"-" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Config contains database configuration.
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// BatchInsertResult summarizes a batch write.
type BatchInsertResult struct {
	Inserted int64         `json:"inserted"`
	Skipped  int64         `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

const schema = `
CREATE TABLE IF NOT EXISTS attack_samples (
	id          BIGSERIAL PRIMARY KEY,
	text        TEXT NOT NULL,
	text_hash   CHAR(64) NOT NULL UNIQUE,
	category    TEXT NOT NULL,
	subcategory TEXT NOT NULL DEFAULT '',
	severity    DOUBLE PRECISION NOT NULL DEFAULT 0.8,
	source      TEXT NOT NULL DEFAULT '',
	embedding   vector,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store wraps the attack-sample table.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to PostgreSQL, verifies pgvector, and ensures the schema.
func NewStore(config Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("vector: connect to database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	store := &Store{db: db, logger: logger.With(zap.String("component", "vector"))}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("attack sample store ready",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)))
	return store, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("vector: database ping failed: %w", err)
	}

	var hasExtension bool
	query := "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')"
	if err := s.db.GetContext(ctx, &hasExtension, query); err != nil {
		return fmt.Errorf("vector: check pgvector extension: %w", err)
	}
	if !hasExtension {
		return fmt.Errorf("vector: pgvector extension is not installed")
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("vector: ensure schema: %w", err)
	}
	return nil
}

// Insert stores one sample, skipping silently on a duplicate text hash.
func (s *Store) Insert(ctx context.Context, sample *AttackSample) error {
	if sample.TextHash == "" {
		sample.TextHash = HashText(sample.Text)
	}

	query := `
		INSERT INTO attack_samples (text, text_hash, category, subcategory, severity, source, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (text_hash) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		sample.Text, sample.TextHash, sample.Category, sample.Subcategory,
		sample.Severity, sample.Source, formatEmbedding(sample.Embedding))
	if err != nil {
		return fmt.Errorf("vector: insert sample: %w", err)
	}
	return nil
}

// BatchInsert stores samples in one transaction.
func (s *Store) BatchInsert(ctx context.Context, samples []*AttackSample) (*BatchInsertResult, error) {
	start := time.Now()
	result := &BatchInsertResult{}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("vector: begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO attack_samples (text, text_hash, category, subcategory, severity, source, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (text_hash) DO NOTHING`

	for _, sample := range samples {
		if sample.TextHash == "" {
			sample.TextHash = HashText(sample.Text)
		}
		res, err := tx.ExecContext(ctx, query,
			sample.Text, sample.TextHash, sample.Category, sample.Subcategory,
			sample.Severity, sample.Source, formatEmbedding(sample.Embedding))
		if err != nil {
			return nil, fmt.Errorf("vector: insert sample: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("vector: commit: %w", err)
	}

	result.Duration = time.Since(start)
	s.logger.Debug("batch stored",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// Count returns the number of stored samples.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM attack_samples"); err != nil {
		return 0, fmt.Errorf("vector: count samples: %w", err)
	}
	return n, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// HashText returns the hex SHA-256 of the sample text, the dedup key.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// formatEmbedding converts a float32 slice to pgvector literal format.
func formatEmbedding(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// maskDatabaseURL hides the password portion of a database URL for logging.
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
