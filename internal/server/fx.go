// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/acquire"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/api"
	rediscache "github.com/JakeFAU/ecourts-cnr-fetcher/internal/cache/redis"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/captcha"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/clock/system"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/config"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/dispatcher"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/documents"
	collyfetcher "github.com/JakeFAU/ecourts-cnr-fetcher/internal/fetcher/colly"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/hash/sha256"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/id/uuid"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/metrics"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/pagestate"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/ecourts-cnr-fetcher/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/ecourts-cnr-fetcher/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/ecourts-cnr-fetcher/internal/queue/memory"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/service"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/session"
	gcsstorage "github.com/JakeFAU/ecourts-cnr-fetcher/internal/storage/gcs"
	localstorage "github.com/JakeFAU/ecourts-cnr-fetcher/internal/storage/local"
	memoryStorage "github.com/JakeFAU/ecourts-cnr-fetcher/internal/storage/memory"
	pgstore "github.com/JakeFAU/ecourts-cnr-fetcher/internal/storage/postgres"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/worker"
)

type publisher interface {
	cnr.Publisher
	Close() error
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	service   *service.Service
	queue     *queueMemory.Queue
	storage   *storage.Client
	records   cnr.RecordStore
	publisher publisher
	redis     *rediscache.Client
}

// Build creates the application's dependencies. The caller owns logger.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Int("workers", cfg.Pool.Workers),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	built := false
	defer func() {
		if !built {
			_ = app.Close()
		}
	}()

	blobs, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	if err := setupRecords(ctx, app); err != nil {
		return nil, err
	}
	if err := setupPublisher(ctx, app); err != nil {
		return nil, err
	}
	cache, err := setupCache(ctx, app)
	if err != nil {
		return nil, err
	}
	orchestrator, err := setupOrchestrator(app, blobs)
	if err != nil {
		return nil, err
	}

	app.queue = queueMemory.NewQueue(cfg.Pool.QueueDepth)
	app.dispatch = setupDispatcher(app, orchestrator)
	app.service = service.New(app.dispatch, cache, logger.Named("service"))
	app.apiServer = api.NewServer(app.service, api.Options{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: cfg.RequestTimeout(),
		ReadyChecks:    app.readyChecks(),
	}, logger.Named("api"))

	built = true
	return app, nil
}

// Acquirer is the deduplicating, cached entry point backed by the worker pool.
// The pool only makes progress while Run or Serve is active.
func (a *App) Acquirer() cnr.Acquirer {
	return a.service
}

// Handler exposes the HTTP router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the worker pool and the HTTP server and blocks until ctx is
// canceled, a signal arrives, or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Size()))
		a.dispatch.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	runErr := g.Wait()
	return errors.Join(runErr, a.Close())
}

// Serve runs only the worker pool until ctx ends; used by one-shot commands.
func (a *App) Serve(ctx context.Context) {
	a.dispatch.Run(ctx)
}

// Close releases infrastructure clients. It is safe to call on a partially
// built App.
func (a *App) Close() error {
	var errs []error
	if a.queue != nil {
		a.queue.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
	}
	if a.records != nil {
		if err := a.records.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close record store: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if len(errs) > 0 {
		a.logger.Warn("shutdown finished with errors", zap.Error(errors.Join(errs...)))
	} else {
		a.logger.Info("shutdown complete")
	}
	return errors.Join(errs...)
}

func (a *App) readyChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if a.redis != nil {
		checks["redis"] = a.redis.Health
	}
	return checks
}

func setupStorage(ctx context.Context, app *App) (cnr.BlobStore, error) {
	cfg := app.cfg.Storage
	switch cfg.Backend {
	case config.BackendGCS:
		app.logger.Info("using GCS storage backend", zap.String("bucket", cfg.Bucket))
		client, err := gcsstorage.NewClient(ctx, gcsstorage.ClientConfig{
			Endpoint: cfg.Endpoint,
			NoAuth:   cfg.Endpoint != "",
		})
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:        cfg.Bucket,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case config.BackendLocal:
		app.logger.Info("using local storage backend", zap.String("path", cfg.Local.BaseDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

func setupRecords(ctx context.Context, app *App) error {
	dbCfg := app.cfg.Database
	if dbCfg.DSN == "" {
		app.logger.Warn("no database DSN configured, keeping acquisition records in memory")
		app.records = memoryStorage.NewRecordStore()
		return nil
	}
	store, err := pgstore.NewRecordStore(ctx, pgstore.Config{
		DSN:             dbCfg.DSN,
		Table:           dbCfg.Table,
		MaxConns:        dbCfg.MaxConns,
		MinConns:        dbCfg.MinConns,
		MaxConnLifetime: dbCfg.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	app.records = store
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("record store schema: %w", err)
	}
	app.logger.Info("postgres record store initialized", zap.String("table", dbCfg.Table))
	return nil
}

func setupPublisher(ctx context.Context, app *App) error {
	psCfg := app.cfg.PubSub
	if psCfg.ProjectID == "" || psCfg.TopicName == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		app.publisher = memorypublisher.New()
		return nil
	}
	pub, err := gcppublisher.NewClient(ctx, gcppublisher.Config{
		ProjectID: psCfg.ProjectID,
		TopicID:   psCfg.TopicName,
	})
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.publisher = pub
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", psCfg.ProjectID),
		zap.String("topic", psCfg.TopicName),
	)
	return nil
}

func setupCache(ctx context.Context, app *App) (service.Cache, error) {
	client, err := rediscache.New(ctx, rediscache.Config{
		URL:      app.cfg.Redis.URL,
		PoolSize: app.cfg.Redis.PoolSize,
		TTL:      app.cfg.CacheTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("redis init failed: %w", err)
	}
	if client == nil {
		app.logger.Info("redis not configured, record cache disabled")
		return nil, nil
	}
	app.redis = client
	app.logger.Info("redis record cache enabled", zap.Duration("ttl", app.cfg.CacheTTL()))
	return rediscache.NewRecordCache(client, app.cfg.CacheTTL()), nil
}

func setupOrchestrator(app *App, blobs cnr.BlobStore) (*acquire.Orchestrator, error) {
	cfg := app.cfg
	logger := app.logger

	launcher, err := session.NewLauncher(session.Config{
		PortalURL:         cfg.Portal.URL,
		UserAgent:         cfg.Portal.UserAgent,
		Proxy:             cfg.Portal.Proxy,
		Headless:          cfg.Browser.Headless,
		UseXvfb:           cfg.Browser.Xvfb,
		Display:           cfg.Browser.Display,
		ExecPath:          cfg.Browser.ExecPath,
		ProfileRoot:       cfg.Browser.ProfileRoot,
		NavigationTimeout: cfg.NavigationTimeout(),
	}, logger.Named("session"))
	if err != nil {
		return nil, fmt.Errorf("session launcher init failed: %w", err)
	}

	solver := captcha.NewTesseract(captcha.Config{
		TesseractPath: cfg.Captcha.TesseractPath,
		Lang:          cfg.Captcha.Lang,
		PSM:           cfg.Captcha.PSM,
		Scale:         cfg.Captcha.Scale,
		WorkDir:       os.TempDir(),
	}, nil, logger.Named("captcha"))

	classifier := pagestate.New(pagestate.Config{
		SuccessProbe: time.Duration(cfg.Classifier.SuccessProbeSeconds) * time.Second,
		Overall:      time.Duration(cfg.Classifier.OverallSeconds) * time.Second,
		Poll:         time.Duration(cfg.Classifier.PollMs) * time.Millisecond,
	}, logger.Named("pagestate"))

	downloader := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Portal.UserAgent,
		Timeout:     time.Duration(cfg.Documents.DownloadTimeoutSeconds) * time.Second,
		MaxBodySize: cfg.Documents.MaxBytes,
	})
	var validator documents.Validator
	if cfg.Documents.ValidatePDF {
		validator = documents.NewPDFValidator()
	}
	retriever, err := documents.NewRetriever(documents.Config{
		BaseURL:      cfg.Portal.DocumentBaseURL,
		WorkDir:      cfg.Documents.WorkDir,
		MaxAttempts:  cfg.Documents.MaxAttempts,
		Delay:        time.Duration(cfg.Documents.DelaySeconds) * time.Second,
		ModalTimeout: time.Duration(cfg.Documents.ModalTimeoutSeconds) * time.Second,
	}, downloader, validator, blobs, sha256.New(), logger.Named("documents"))
	if err != nil {
		return nil, fmt.Errorf("document retriever init failed: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Portal.RequestsPerSecond,
		DefaultBurst: cfg.Portal.Burst,
	})

	orchestrator, err := acquire.New(acquire.Config{
		PortalURL:        cfg.Portal.URL,
		CaptchaRetries:   cfg.Acquire.CaptchaAttempts,
		TransientRetries: cfg.Acquire.TransientAttempts,
		RetryDelay:       cfg.RetryDelay(),
		ClassifyTimeout:  time.Duration(cfg.Classifier.OverallSeconds) * time.Second,
	}, acquire.LauncherOpener{Launcher: launcher}, solver, classifier, retriever, limiter, logger.Named("acquire"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}
	return orchestrator, nil
}

func setupDispatcher(app *App, acquirer cnr.Acquirer) *dispatcher.Dispatcher {
	clock := system.New()
	workerCfg := worker.Config{
		ItemTimeout: app.cfg.ItemTimeout(),
		Topic:       app.cfg.PubSub.TopicName,
	}
	workers := make([]*worker.Worker, 0, app.cfg.Pool.Workers)
	for i := 0; i < app.cfg.Pool.Workers; i++ {
		workers = append(workers, worker.New(
			app.queue,
			acquirer,
			app.records,
			app.publisher,
			clock,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(app.queue, workers, uuid.New(), clock)
}
