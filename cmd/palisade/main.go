package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/palisadehq/palisade/internal/cache"
	"github.com/palisadehq/palisade/internal/config"
	"github.com/palisadehq/palisade/internal/embedding"
	"github.com/palisadehq/palisade/internal/events"
	"github.com/palisadehq/palisade/internal/judge"
	"github.com/palisadehq/palisade/internal/logger"
	"github.com/palisadehq/palisade/internal/pipeline"
	"github.com/palisadehq/palisade/internal/rules"
	"github.com/palisadehq/palisade/internal/server"
	"github.com/palisadehq/palisade/internal/similarity"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Palisade %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Palisade",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	detector, matcher, hub := buildDetector(cfg, log)

	srv := server.New(cfg, detector, matcher, hub, log)

	// Runtime config reloads retune the log level only; layer wiring needs a
	// restart.
	if err := config.Watch(cfg, func(updated *config.Config) {
		if err := log.SetLevel(updated.Logging.Level); err != nil {
			log.Warn("Invalid log level in updated config", zap.Error(err))
		}
	}); err != nil {
		log.Warn("Config watching unavailable", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// buildDetector assembles the cascade from configuration. Layers whose
// backends are missing or unreachable are left out rather than failing
// startup; the detector reports them as skipped.
func buildDetector(cfg *config.Config, log *logger.Logger) (*pipeline.Detector, server.TopMatcher, *events.Hub) {
	var (
		simLayer   pipeline.SimilarityLayer
		judgeLayer pipeline.JudgeLayer
		results    pipeline.ResultStore
		matcher    server.TopMatcher
	)

	scanner := rules.NewScanner(log.Logger)

	if cfg.Similarity.MatrixPath != "" {
		provider := buildProvider(cfg, log)
		corpus, err := similarity.LoadCorpus(cfg.Similarity.MatrixPath, cfg.Similarity.MetadataPath, log.Logger)
		if err != nil {
			log.Warn("Similarity layer disabled: corpus load failed", zap.Error(err))
		} else if corpus.Dimensions() != provider.Dimensions() {
			log.Warn("Similarity layer disabled: corpus dimensions do not match provider",
				zap.Int("corpus", corpus.Dimensions()),
				zap.Int("provider", provider.Dimensions()))
		} else {
			engine := similarity.NewEngine(corpus, provider, cfg.Similarity.Threshold, log.Logger)
			simLayer = engine
			matcher = engine
		}
	} else {
		log.Info("Similarity layer disabled: no corpus configured")
	}

	if cfg.Judge.APIKey != "" {
		j, err := judge.New(judge.Config{
			APIKey:              cfg.Judge.APIKey,
			Model:               cfg.Judge.Model,
			Timeout:             cfg.Judge.Timeout,
			ConfidenceThreshold: cfg.Judge.ConfidenceThreshold,
		}, log.Logger)
		if err != nil {
			log.Warn("Judge layer disabled", zap.Error(err))
		} else {
			judgeLayer = j
		}
	} else {
		log.Info("Judge layer disabled: no API key configured")
	}

	if cfg.Cache.Enabled {
		rc, err := cache.NewResultCache(cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
			TTL:            cfg.Cache.TTL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
		}, log.Logger)
		if err != nil {
			log.Warn("Result cache disabled: Redis unavailable", zap.Error(err))
		} else {
			results = rc
		}
	}

	var hub *events.Hub
	if cfg.Events.Enabled {
		hub = events.NewHub(events.Config{
			MaxConnections:  cfg.Events.MaxConnections,
			WriteTimeout:    cfg.Events.WriteTimeout,
			PingInterval:    cfg.Events.PingInterval,
			StatusInterval:  cfg.Events.StatusInterval,
			AllowedOrigins:  cfg.Events.AllowedOrigins,
			ReadBufferSize:  cfg.Events.ReadBufferSize,
			WriteBufferSize: cfg.Events.WriteBufferSize,
		}, log.Logger)
	}

	detector := pipeline.New(scanner, simLayer, judgeLayer, results, cfg.Detection.MaxInputLength, log.Logger)
	log.Info("Detection cascade ready", zap.Ints("available_layers", detector.AvailableLayers()))
	return detector, matcher, hub
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

// performHealthCheck probes the running server.
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
