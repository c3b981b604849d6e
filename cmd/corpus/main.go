package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/palisadehq/palisade/internal/config"
	"github.com/palisadehq/palisade/internal/corpus"
	"github.com/palisadehq/palisade/internal/embedding"
	"github.com/palisadehq/palisade/internal/logger"
	"github.com/palisadehq/palisade/internal/vector"
)

type inputList []string

func (l *inputList) String() string { return fmt.Sprint(*l) }

func (l *inputList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var inputs inputList
	var (
		configPath  = flag.String("config", "", "Configuration file path")
		outputDir   = flag.String("output", ".", "Directory for embeddings.npz and metadata.json")
		batchSize   = flag.Int("batch-size", 64, "Embedding batch size")
		databaseURL = flag.String("database-url", "", "Optional PostgreSQL URL to mirror samples into")
	)
	flag.Var(&inputs, "input", "Input dataset file (CSV, Parquet, or JSONL); repeatable")
	flag.Parse()

	if len(inputs) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input dataset.csv --output ./corpus\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input a.parquet --input b.jsonl --batch-size 256\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting corpus build",
		zap.Strings("inputs", inputs),
		zap.String("output", *outputDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling build...")
		cancel()
	}()

	provider := buildProvider(cfg, log)
	defer provider.Close()

	var store *vector.Store
	if *databaseURL != "" {
		store, err = vector.NewStore(vector.Config{DatabaseURL: *databaseURL}, log.Logger)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer store.Close()
	}

	builder := corpus.NewBuilder(corpus.Config{
		BatchSize: *batchSize,
		OutputDir: *outputDir,
	}, provider, store, log.Logger)

	result, err := builder.Build(ctx, inputs)
	if err != nil {
		log.Fatal("Corpus build failed", zap.Error(err))
	}

	log.Info("Corpus build complete",
		zap.Int("records_read", result.RecordsRead),
		zap.Int("embedded", result.Embedded),
		zap.Int("benign_skipped", result.Benign),
		zap.Int("duplicates_skipped", result.Duplicates),
		zap.String("matrix", result.MatrixPath),
		zap.String("metadata", result.Metadata),
		zap.Duration("duration", result.Duration.Round(time.Millisecond)))
}

func buildProvider(cfg *config.Config, log *logger.Logger) embedding.Provider {
	if cfg.Embedding.Provider == "openai" && cfg.Embedding.APIKey != "" {
		provider, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
		}, log.Logger)
		if err == nil {
			return provider
		}
		log.Warn("OpenAI embedding provider unavailable, falling back to hash", zap.Error(err))
	}
	return embedding.NewHashProvider(log.Logger)
}
