package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloo-solutions/storyrag/internal/config"
	"github.com/cloo-solutions/storyrag/internal/database"
	"github.com/cloo-solutions/storyrag/internal/embedding"
	"github.com/cloo-solutions/storyrag/internal/logger"
	"github.com/cloo-solutions/storyrag/internal/openai"
	"github.com/cloo-solutions/storyrag/internal/repository"
	"github.com/cloo-solutions/storyrag/internal/router"
	"github.com/cloo-solutions/storyrag/internal/service"
	"github.com/cloo-solutions/storyrag/internal/storage"
	"github.com/cloo-solutions/storyrag/internal/telemetry"
	"github.com/cloo-solutions/storyrag/internal/vectorstore/memory"
	mongostore "github.com/cloo-solutions/storyrag/internal/vectorstore/mongo"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
)

// App holds everything a command needs, built from configuration.
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	Pool      *pgxpool.Pool
	Embedder  *embedding.Embedder
	Store     service.VectorStore
	Router    *router.Router
	Retrieval *service.RetrievalService
	Storage   *storage.S3Client

	closers []func()
}

// loadApp reads configuration from the environment and builds the App.
func loadApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return newApp(ctx, cfg, log)
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	app := &App{Config: cfg, Log: logger.OrNop(log)}
	if err := app.init(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate(cfg.Environment),
		Debug:            cfg.Debug,
	}, a.Log)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdownTelemetry)

	if cfg.DatabaseURL != "" {
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return err
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)
	}

	if err := a.initStore(ctx); err != nil {
		return err
	}
	if err := a.initEmbedder(ctx); err != nil {
		return err
	}
	a.initRouter()

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		a.Storage = s3Client
	}

	a.Retrieval = service.NewRetrievalService(a.Embedder, a.Store, a.Router, service.RetrievalConfig{
		ChunkSize:         cfg.ChunkSize,
		TopK:              cfg.TopK,
		NumCandidates:     cfg.NumCandidates,
		IngestConcurrency: cfg.IngestConcurrency,
		WriteTimeout:      cfg.WriteTimeout,
		SearchTimeout:     cfg.SearchTimeout,
	}, a.Log)
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.VectorBackend {
	case config.BackendMemory:
		a.Store = memory.New()
	case config.BackendPostgres:
		if cfg.EmbeddingDimensions != repository.VectorDimensions {
			return fmt.Errorf("postgres backend stores %d-dimensional vectors, embedder is configured for %d",
				repository.VectorDimensions, cfg.EmbeddingDimensions)
		}
		a.Store = repository.NewEmbeddingRecordRepository(a.Pool)
	case config.BackendMongo:
		store, err := mongostore.Connect(ctx, mongostore.Config{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
			Index:      cfg.MongoIndex,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = store.Close(context.Background()) })
		if err := store.EnsureIndex(ctx, cfg.EmbeddingDimensions); err != nil {
			return err
		}
		a.Store = store
	default:
		return fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
	a.Log.Info("vector store ready", "backend", cfg.VectorBackend)
	return nil
}

func (a *App) initEmbedder(ctx context.Context) error {
	cfg := a.Config

	var loader embedding.Loader
	switch cfg.Embedder {
	case config.EmbedderHashing:
		loader = embedding.HashingLoader(cfg.EmbeddingDimensions)
	default:
		loader = openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimensions: cfg.EmbeddingDimensions,
		})
	}

	if cfg.HasRedis() {
		cache, err := embedding.NewRedisCache(ctx, cfg.RedisAddr)
		if err != nil {
			a.Log.Warn("embedding cache unavailable, continuing without it", "error", err)
		} else {
			a.closers = append(a.closers, func() { _ = cache.Close() })
			loader = embedding.NewCachingLoader(loader, cache, cfg.EmbeddingCacheTTL, a.Log)
		}
	}

	a.Embedder = embedding.New(loader, embedding.Config{
		InitTimeout: cfg.EmbedInitTimeout,
		CallTimeout: cfg.EmbedTimeout,
	}, a.Log)
	return nil
}

func (a *App) initRouter() {
	cfg := a.Config

	var classifier router.Classifier
	switch cfg.Classifier {
	case config.ClassifierOpenAI:
		classifier = openai.NewChatClassifier(openai.ClassifierConfig{
			APIKey:  cfg.ClassifierKey(),
			BaseURL: cfg.ClassifierBaseURL,
			Model:   cfg.ClassifierModel,
		})
	default:
		classifier = router.NewCueClassifier()
	}
	a.Router = router.New(classifier, cfg.ClassifierTimeout, a.Log)
}

// RequirePool fails when no database is configured.
func (a *App) RequirePool(what string) (*pgxpool.Pool, error) {
	if a.Pool == nil {
		return nil, fmt.Errorf("%s requires STORYRAG_DATABASE_URL", what)
	}
	return a.Pool, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.Log.Sync()
}

// Default to 10% sampling in production, 100% elsewhere
func sampleRate(environment string) float64 {
	if environment == "production" {
		return 0.1
	}
	return 1.0
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(w io.Writer, v interface{}) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(jsonBytes))
	return err
}

func readFile(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
