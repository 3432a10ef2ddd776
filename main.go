package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shoestore/internal/config"
	"shoestore/internal/database"
	"shoestore/internal/events"
	"shoestore/internal/handlers"
	"shoestore/internal/idempotency"
	"shoestore/internal/logger"
	"shoestore/internal/middleware"
	"shoestore/internal/orders"
)

const shutdownTimeout = 10 * time.Second

type publisher interface {
	orders.EventPublisher
	Close() error
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatal(err)
	}
	cfg := config.AppEnv

	zl, err := logger.New(cfg.LogLevel, cfg.Mode)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		zl.Fatal("mongo connection failed", zap.Error(err))
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	db := client.Database(cfg.DBName)
	zl.Info("MongoDB connected", zap.String("db", db.Name()))

	if err := database.EnsureIndexes(ctx, db, zl); err != nil {
		zl.Warn("index bootstrap incomplete", zap.Error(err))
	}

	orderStore := database.NewOrderStore(db)
	catalog := database.NewCatalogStore(db)
	accounts := database.NewAccountStore(db)

	var pub publisher = events.NewLogPublisher(zl)
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, zl)
		if err != nil {
			zl.Fatal("kafka producer failed", zap.Error(err))
		}
		pub = kp
	}
	defer func() {
		if err := pub.Close(); err != nil {
			zl.Warn("event publisher close failed", zap.Error(err))
		}
	}()

	svc := orders.NewService(orders.Deps{
		Orders:       orderStore,
		Catalog:      catalog,
		Accounts:     accounts,
		UnitOfWork:   database.NewUnitOfWork(client, cfg.MongoTransactions),
		Events:       pub,
		Logger:       zl,
		StrictTotals: cfg.StrictOrderTotals,
	})

	var idemStore idempotency.Store = idempotency.NewMemoryStore()
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()
		idemStore = idempotency.NewRedisStore(rdb, "")
	}

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequestLogger(zl), middleware.Recovery(zl))
	if rdb != nil && cfg.RateLimit > 0 {
		r.Use(middleware.RateLimit(rdb, cfg.RateLimit, cfg.RateLimitWindow, zl))
	}

	env := &handlers.Env{
		Orders:         svc,
		Users:          accounts,
		Products:       catalog,
		Logger:         zl,
		JWTSecret:      cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
		RequestTimeout: cfg.RequestTimeout,
		Ping: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
	}
	auth := middleware.NewAuthenticator(cfg.JWTSecret, accounts, zl)
	handlers.RegisterRoutes(r.Group("/api/v1"), env, auth,
		middleware.Idempotency(idemStore, cfg.IdempotencyTTL, zl))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}
