package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"docparse-backend/internal/documents"
	"docparse-backend/internal/fields"
	"docparse-backend/internal/jobs"
	"docparse-backend/internal/llm"
	openai "docparse-backend/internal/llm/openai"
	"docparse-backend/internal/ocr"
	"docparse-backend/internal/ocr/tesseract"
	"docparse-backend/internal/ocr/vision"
	"docparse-backend/internal/queue"
	"docparse-backend/internal/retention"
	"docparse-backend/internal/services/health"
	"docparse-backend/internal/shared/config"
	"docparse-backend/internal/shared/server"
	"docparse-backend/internal/shared/storage/db"
	"docparse-backend/internal/shared/storage/object"
	localstore "docparse-backend/internal/shared/storage/object/local"
	s3store "docparse-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies for the API server, the worker and the Lambda entry points.
type App struct {
	Config           config.Config
	Router           *gin.Engine
	DB               *sql.DB
	Store            object.Store
	Queue            queue.Client
	Jobs             jobs.Repo
	Backends         *ocr.Registry
	DocumentsService *documents.Service
	DocumentsHandler *documents.Handler
	Health           *health.Service
	Sweeper          *retention.Sweeper

	closers []func() error
}

// Build wires storage, OCR backends, the field extractor and the HTTP router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, DB: sqlDB}
	if sqlDB != nil {
		app.closers = append(app.closers, sqlDB.Close)
	}

	app.Store, err = buildStore(ctx, cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Queue, err = buildQueue(ctx, cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	if err := buildServices(app); err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		DocumentHandler: app.DocumentsHandler,
		Health:          app.Health,
	})

	return app, nil
}

// ProcessJob lets the App act as the worker's processor.
func (a *App) ProcessJob(ctx context.Context, jobID, requestID string) error {
	return a.DocumentsService.ProcessJob(ctx, jobID, requestID)
}

// Close releases the OCR engine and the database pool.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

var openDB = buildDB

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory job repository")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.InLambda() {
		sqlDB, err = db.Shared(ctx, cfg.DatabaseURL, db.PoolFromEnv(db.LambdaPool()))
	} else {
		sqlDB, err = db.Open(ctx, cfg.DatabaseURL, db.PoolFromEnv(db.ServerPool()))
	}
	if err != nil {
		if cfg.IsDevLike() {
			log.Printf("bootstrap: database connect failed; using in-memory job repository: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if cfg.IsDevLike() {
		if err := db.Migrate(ctx, sqlDB); err != nil {
			log.Printf("bootstrap: migrations failed; using in-memory job repository: %v", err)
			return nil, nil
		}
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, s3store.Options{
			Region:   cfg.AWSRegion,
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			KMSKeyID: cfg.SSEKMSKeyID,
			CacheDir: cfg.ObjectCacheDir,
		})
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if cfg.SQSQueueURL == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
}

func buildServices(app *App) error {
	cfg := app.Config

	var repo jobs.Repo
	if app.DB != nil {
		repo = &jobs.PGRepo{DB: app.DB}
	} else {
		repo = jobs.NewMemoryRepo()
	}

	pages := ocr.NewPages(ocr.PagesConfig{
		Pdftoppm:      cfg.PdftoppmPath,
		DPI:           cfg.OCRDPI,
		MaxPages:      cfg.OCRMaxPages,
		RasterTimeout: cfg.OCRRasterTimeout,
	}, ocr.ExecRunner{})

	engine, err := tesseract.New(cfg.OCRLanguages)
	if err != nil {
		return err
	}
	app.closers = append(app.closers, engine.Close)

	visionModel, err := modelClient(cfg.OpenAIAPIKey, cfg.OCRVisionModel)
	if err != nil {
		return err
	}
	fieldsModel, err := modelClient(cfg.OpenAIAPIKey, cfg.FieldsModel)
	if err != nil {
		return err
	}

	registry := ocr.NewRegistry()
	registry.Register(ocr.KindLocal, ocr.NewPagedBackend(ocr.KindLocal, pages, engine, cfg.OCRPageTimeout))
	registry.Register(ocr.KindVision, ocr.NewPagedBackend(ocr.KindVision, pages, vision.New(visionModel), cfg.OCRPageTimeout))

	svc := &documents.Service{
		Store:    app.Store,
		Backends: registry,
		Fields:   fields.NewExtractor(fieldsModel, cfg.FieldsTimeout),
		Jobs:     repo,
		Queue:    app.Queue,
	}

	if app.DB != nil {
		app.Health = health.NewService(app.DB)
	} else {
		app.Health = health.NewService(nil)
	}

	app.Jobs = repo
	app.Backends = registry
	app.DocumentsService = svc
	app.DocumentsHandler = documents.NewHandler(svc, cfg.MaxUploadBytes)
	app.Sweeper = &retention.Sweeper{
		Store:     app.Store,
		Retention: cfg.UploadRetention,
		Interval:  cfg.SweepInterval,
	}
	return nil
}

// modelClient returns an OpenAI client, or a placeholder that fails every
// call with llm.ErrNotConfigured when no key is set.
func modelClient(apiKey, model string) (interface {
	llm.JSONCompleter
	llm.VisionTranscriber
}, error) {
	if strings.TrimSpace(apiKey) == "" {
		log.Printf("bootstrap: OPENAI_API_KEY empty; model %s disabled", model)
		return llm.PlaceholderClient{}, nil
	}
	return openai.NewClient(apiKey, model)
}
