// Package bootstrap constructs the application's dependency graph. The API
// and worker binaries share it so both sides of the queue agree on wiring.
package bootstrap

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clarify-backend/internal/analyses"
	"clarify-backend/internal/chunks"
	"clarify-backend/internal/documents"
	"clarify-backend/internal/domains"
	"clarify-backend/internal/extraction"
	"clarify-backend/internal/llm"
	openai "clarify-backend/internal/llm/openai"
	"clarify-backend/internal/queue"
	"clarify-backend/internal/review"
	"clarify-backend/internal/shared/config"
	"clarify-backend/internal/shared/metrics"
	"clarify-backend/internal/shared/server/middleware"
	"clarify-backend/internal/shared/server/respond"
	"clarify-backend/internal/shared/storage/db"
	"clarify-backend/internal/shared/storage/object"
	localstore "clarify-backend/internal/shared/storage/object/local"
	s3store "clarify-backend/internal/shared/storage/object/s3"
	"clarify-backend/internal/workerproc"
	"clarify-backend/internal/workflow"
)

// App holds the shared dependency graph.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	AnalysesRepo analyses.Repo
	DocsRepo     documents.Repo
	ChunkRepo    chunks.Repo

	Service *analyses.Service
	Handler *analyses.Handler
	Runner  *workflow.Runner
}

// Build prepares the dependency graph. With no DATABASE_URL in dev, repos are
// in-memory; with no SQS queue URL, the pipeline runs in-process.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB

	if sqlDB != nil {
		app.AnalysesRepo = &analyses.PGRepo{DB: sqlDB}
		app.DocsRepo = &documents.PGRepo{DB: sqlDB}
		app.ChunkRepo = &chunks.PGRepo{DB: sqlDB}
	} else {
		app.AnalysesRepo = analyses.NewMemoryRepo()
		app.DocsRepo = documents.NewMemoryRepo()
		app.ChunkRepo = chunks.NewMemoryRepo()
	}

	app.Store, err = buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	generator, embedder, vision := buildLLM(cfg)

	engine := extraction.NewEngine(
		extraction.NewPopplerRasterizer(cfg.RasterizerPath, 0),
		vision,
		extraction.NewTesseractOCR(cfg.TesseractPath, cfg.OCRLanguage),
	)
	index := chunks.NewIndex(app.ChunkRepo, embedder, cfg.EmbedBatchSize, float64(cfg.EmbedRatePerSecond))
	splitter := chunks.NewSplitter(
		chunks.WithChunkSize(cfg.ChunkSizeTokens),
		chunks.WithOverlap(cfg.ChunkOverlapTokens),
	)

	app.Runner = workflow.NewRunner(
		app.AnalysesRepo,
		app.DocsRepo,
		app.Store,
		engine,
		splitter,
		index,
		domains.NewClassifier(generator, cfg.DetectionModel),
		review.NewAnalyzer(generator, cfg.AnalysisModel, cfg.SchemaRetries),
	)

	app.Queue, err = buildQueue(ctx, cfg, app.Runner)
	if err != nil {
		return nil, err
	}

	app.Service = &analyses.Service{
		Repo:      app.AnalysesRepo,
		Docs:      app.DocsRepo,
		ChunkRepo: app.ChunkRepo,
		Store:     app.Store,
		Queue:     app.Queue,
	}
	app.Handler = analyses.NewHandler(app.Service)
	app.Router = buildRouter(cfg, app.Handler)
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.DefaultServerOptions())
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config, runner *workflow.Runner) (queue.Client, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) != "" {
		return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
	}
	if !isDevLike(cfg.Env) {
		return nil, fmt.Errorf("CL_SQS_QUEUE_URL is required outside dev")
	}
	log.Printf("bootstrap: no queue configured; running pipeline in-process")
	return queue.NewMemoryClient(func(ctx context.Context, msg queue.Message) error {
		return workerproc.HandleParsed(ctx, runner, msg)
	}), nil
}

func buildLLM(cfg config.Config) (llm.Generator, llm.Embedder, llm.VisionReader) {
	client, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.CallTimeout)
	if err != nil {
		log.Printf("bootstrap: LLM provider not configured, pipeline runs will fail: %v", err)
		return unconfiguredLLM{}, unconfiguredLLM{}, unconfiguredLLM{}
	}
	embedder, err := openai.NewEmbeddingService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDim, cfg.CallTimeout)
	if err != nil {
		log.Printf("bootstrap: embedding service not configured: %v", err)
		return llm.NewRetrying(client, cfg.TransientRetrys, ""), unconfiguredLLM{}, openai.NewVisionReader(client, cfg.VisionModel)
	}
	return llm.NewRetrying(client, cfg.TransientRetrys, ""), embedder, openai.NewVisionReader(client, cfg.VisionModel)
}

// unconfiguredLLM satisfies the LLM interfaces and fails fast with
// ErrNotConfigured, so a missing API key surfaces as a classified pipeline
// error instead of a nil dereference.
type unconfiguredLLM struct{}

func (unconfiguredLLM) Generate(ctx context.Context, in llm.GenerateInput) (json.RawMessage, error) {
	return nil, llm.ErrNotConfigured
}

func (unconfiguredLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, llm.ErrNotConfigured
}

func (unconfiguredLLM) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, llm.ErrNotConfigured
}

func (unconfiguredLLM) Dimensions() int { return 0 }

func (unconfiguredLLM) ReadPage(ctx context.Context, pngData []byte, pageNumber int) (llm.VisionResult, error) {
	return llm.VisionResult{}, llm.ErrNotConfigured
}

func buildRouter(cfg config.Config, handler *analyses.Handler) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	api.GET("/metrics", metrics.Handler())
	handler.RegisterRoutes(api)
	return r
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
