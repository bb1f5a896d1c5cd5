// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/learnmate/internal/ai"
	"github.com/starford/learnmate/internal/ai/openai"
	"github.com/starford/learnmate/internal/api"
	"github.com/starford/learnmate/internal/docparse"
	"github.com/starford/learnmate/internal/exam"
	"github.com/starford/learnmate/internal/ingest"
	"github.com/starford/learnmate/internal/mcpserver"
	"github.com/starford/learnmate/internal/models"
	"github.com/starford/learnmate/internal/retrieval"
	"github.com/starford/learnmate/internal/scheduler"
	"github.com/starford/learnmate/internal/sse"
	"github.com/starford/learnmate/internal/storage"
	"github.com/starford/learnmate/internal/store"
	"github.com/starford/learnmate/internal/studyservice"
	"github.com/starford/learnmate/internal/suggest"
	"github.com/starford/learnmate/internal/vectorindex"
)

const (
	indexEventThrottle = 2 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// components holds everything built from a Config.
type components struct {
	db        *store.DB
	provider  ai.Provider
	broker    *sse.Broker
	vectors   *vectorindex.Store
	study     *studyservice.Service
	scheduler *scheduler.Scheduler
	extractor *exam.Extractor
	retriever *retrieval.Retriever
	answers   *suggest.Service
}

func (c *components) Close() {
	c.broker.Close()
	if err := c.provider.Close(); err != nil {
		slog.Warn("close ai provider", slog.String("error", err.Error()))
	}
	if err := c.db.Close(); err != nil {
		slog.Warn("close database", slog.String("error", err.Error()))
	}
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

func build(cfg *Config, logger *slog.Logger) (*components, error) {
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if err := os.MkdirAll(cfg.Uploads.Path, 0o755); err != nil {
		db.Close()
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	files, err := storage.NewFS(cfg.Uploads.Path)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init uploads: %w", err)
	}

	broker := sse.NewBroker(indexEventThrottle)

	vectors, err := vectorindex.NewStore(cfg.VectorStore.Path,
		vectorindex.WithLogger(logger),
		vectorindex.WithUpdateCallback(broker.PublishIndexUpdate))
	if err != nil {
		broker.Close()
		db.Close()
		return nil, fmt.Errorf("init vector store: %w", err)
	}

	provider, err := openai.NewProvider(cfg.AI, logger)
	if err != nil {
		broker.Close()
		db.Close()
		return nil, fmt.Errorf("init ai provider: %w", err)
	}

	parser := docparse.New(docparse.WithLogger(logger))
	ingestOpts := []ingest.Option{
		ingest.WithChunking(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap),
		ingest.WithBatchSize(cfg.Ingestion.BatchSize),
		ingest.WithFileResolver(files.Abs),
		ingest.WithLogger(logger),
	}
	if cfg.Ingestion.FetchLinks {
		ingestOpts = append(ingestOpts, ingest.WithLinkFetcher(docparse.NewLinkFetcher(parser)))
	}
	pipeline, err := ingest.New(parser, provider.Embedder(), vectors, ingestOpts...)
	if err != nil {
		_ = provider.Close()
		broker.Close()
		db.Close()
		return nil, fmt.Errorf("init ingestion: %w", err)
	}

	retriever := retrieval.New(provider.Embedder(), vectors)

	return &components{
		db:       db,
		provider: provider,
		broker:   broker,
		vectors:  vectors,
		study:    studyservice.New(db, files, vectors, studyservice.WithLogger(logger)),
		scheduler: scheduler.New(db, pipeline,
			scheduler.WithInterval(cfg.Scheduler.Interval),
			scheduler.WithEventFunc(broker.PublishResource),
			scheduler.WithLogger(logger)),
		extractor: exam.NewExtractor(parser, provider.ChatModel(), db,
			exam.WithWorkers(cfg.Exam.Workers),
			exam.WithLogger(logger)),
		retriever: retriever,
		answers: suggest.New(retriever, provider.ChatModel(),
			suggest.WithTopK(cfg.Suggest.TopK),
			suggest.WithLogger(logger)),
	}, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("uploads_path", cfg.Uploads.Path),
		slog.String("vector_store_path", cfg.VectorStore.Path),
		slog.String("ai_provider", cfg.AI.Provider),
		slog.Bool("scheduler_enabled", cfg.Scheduler.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	// Remove files and indexes left behind by interrupted deletes.
	if res, err := c.study.Reconcile(ctx); err != nil {
		logger.Warn("reconcile failed", slog.String("error", err.Error()))
	} else if res.Indexes+res.Files > 0 {
		logger.Info("reconciled storage",
			slog.Int("indexes", res.Indexes),
			slog.Int("files", res.Files))
	}

	apiRouter := api.NewRouter(api.Config{
		Study:         c.study,
		Exams:         c.extractor,
		Answers:       c.answers,
		Search:        c.retriever,
		Sweeper:       c.scheduler,
		OnExamCreated: c.broker.PublishExam,
		Events:        c.broker,
		AuthEnabled:   cfg.Auth.AuthEnabled(),
		AuthToken:     cfg.Auth.Token,
		Logger:        logger,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Drop cached indexes that were changed on disk by another process.
	g.Go(func() error {
		err := c.vectors.Watch(gCtx, func(subjectID int64) {
			logger.Info("index reloaded from disk", slog.Int64("subject_id", subjectID))
		})
		if err != nil {
			logger.Warn("vector store watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	if cfg.Scheduler.Enabled {
		g.Go(func() error {
			return c.scheduler.Run(gCtx)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so that the scheduler and watcher stop
// together with the HTTP server.
var errShutdown = errors.New("shutdown")

// RunSweep processes every pending resource once and returns.
func RunSweep(ctx context.Context, opts ...Option) (scheduler.Result, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return scheduler.Result{}, fmt.Errorf("config is required")
	}

	logger := newLogger(app.config, os.Stderr)
	slog.SetDefault(logger)

	c, err := build(app.config, logger)
	if err != nil {
		return scheduler.Result{}, err
	}
	defer c.Close()

	res, err := c.scheduler.Sweep(ctx)
	if err != nil {
		return res, fmt.Errorf("sweep: %w", err)
	}
	return res, nil
}

// ResetResource moves a failed resource back to pending.
func ResetResource(ctx context.Context, id int64, opts ...Option) (*models.Resource, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := newLogger(app.config, os.Stderr)
	slog.SetDefault(logger)

	c, err := build(app.config, logger)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.study.ResetResource(ctx, id)
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger := newLogger(app.config, os.Stderr)
	slog.SetDefault(logger)

	c, err := build(app.config, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.study, c.retriever, c.answers, c.scheduler).ServeStdio()
}
