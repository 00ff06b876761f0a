package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	invapp "github.com/serialtrack/backend/internal/application/inventory"
	orderapp "github.com/serialtrack/backend/internal/application/order"
	reportapp "github.com/serialtrack/backend/internal/application/report"
	"github.com/serialtrack/backend/internal/infrastructure/cache"
	"github.com/serialtrack/backend/internal/infrastructure/config"
	"github.com/serialtrack/backend/internal/infrastructure/docstore"
	"github.com/serialtrack/backend/internal/infrastructure/logger"
	"github.com/serialtrack/backend/internal/infrastructure/persistence"
	"github.com/serialtrack/backend/internal/infrastructure/storage"
	"github.com/serialtrack/backend/internal/interfaces/http/handler"
	"github.com/serialtrack/backend/internal/interfaces/http/middleware"
	"github.com/serialtrack/backend/internal/interfaces/http/router"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	log := logger.New(cfg.Log)
	defer log.Sync() //nolint:errcheck

	log.Info("starting server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Document store. Production requires Firestore; development without a
	// project ID falls back to the in-memory store.
	var store docstore.Store
	if cfg.Firestore.ProjectID != "" {
		if cfg.Firestore.CredentialsFile != "" {
			os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cfg.Firestore.CredentialsFile)
		}
		fs, err := docstore.NewFirestoreStore(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			log.Fatal("failed to connect to firestore", zap.Error(err))
		}
		defer fs.Close()
		store = fs
		log.Info("using firestore document store", zap.String("project_id", cfg.Firestore.ProjectID))
	} else {
		store = docstore.NewMemoryStore()
		log.Warn("no firestore project configured, using in-memory store")
	}

	items := persistence.NewItemRepository(store)
	txs := persistence.NewTransactionRepository(store)
	orders := persistence.NewOrderRepository(store)
	writer := persistence.NewWriter(store)

	// Object storage for order documents.
	var objectStorage orderapp.ObjectStorageService
	if cfg.Storage.Bucket != "" {
		s3, err := storage.NewS3ObjectStorage(&cfg.Storage,
			storage.WithLogger(log),
			storage.WithPresignExpiration(cfg.Storage.PresignExpiration))
		if err != nil {
			log.Fatal("failed to initialize object storage", zap.Error(err))
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			log.Fatal("failed to ensure storage bucket", zap.Error(err))
		}
		objectStorage = s3
	} else {
		if cfg.IsProduction() {
			log.Fatal("object storage bucket must be configured in production")
		}
		objectStorage = storage.NewStubObjectStorage()
		log.Warn("no storage bucket configured, using stub object storage")
	}

	// Report cache: Redis when configured, in-memory otherwise.
	cacheFactory := cache.NewFactory(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cache.WithLogger(log), cache.WithInMemoryFallback(!cfg.IsProduction()))
	reportCache, err := cacheFactory.Create()
	if err != nil {
		log.Fatal("failed to initialize report cache", zap.Error(err))
	}

	ledgerOpts := []invapp.LedgerServiceOption{
		invapp.WithLogger(log),
		invapp.WithLocations(cfg.Inventory.Locations),
	}
	if len(cfg.Inventory.WarrantyPeriods) > 0 {
		ledgerOpts = append(ledgerOpts, invapp.WithWarrantyPeriods(cfg.Inventory.WarrantyPeriods))
	}
	ledger := invapp.NewLedgerService(items, txs, orders, writer, ledgerOpts...)
	returns := invapp.NewReturnService(items, txs, orders, writer, log)
	orderService := orderapp.NewOrderService(orders, items, txs, writer, objectStorage, log)
	aggregation := reportapp.NewAggregationService(items, txs, reportCache,
		reportapp.WithLogger(log),
		reportapp.WithCacheTTL(cfg.Report.CacheTTL),
		reportapp.WithScanPageSize(cfg.Report.ScanPageSize),
		reportapp.WithSizelessCategories(cfg.Report.SizelessCategories))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("invalid trusted proxies", zap.Error(err))
		}
	}

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.CORSWithConfig(corsCfg),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	router.NewRouter(engine).
		Register(handler.NewSystemHandler(cfg.App.Name, version)).
		Register(handler.NewInventoryHandler(ledger, returns)).
		Register(handler.NewOrderHandler(ledger, orderService)).
		Register(handler.NewReportHandler(aggregation)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()
	log.Info("server listening", zap.String("addr", srv.Addr))

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}

	if closer, ok := reportCache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Warn("failed to close report cache", zap.Error(err))
		}
	}

	log.Info("server stopped")
}
