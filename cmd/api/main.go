package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/api/handler"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/api/router"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/application"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/config"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/trip"
	kafkainfra "github.com/sanosuguru/go-trip-seat-reservation/internal/infrastructure/kafka"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/infrastructure/memory"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-trip-seat-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/metrics"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/tracing"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/worker"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger.Set(logger.NewLogger(cfg.AppEnv))
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("サーバーが異常終了しました", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("設定エラー: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("トレースの終了に失敗しました", zap.Error(err))
		}
	}()

	m := metrics.New()
	checks := map[string]handler.CheckFunc{}

	// ストア
	var (
		catalog   trip.Catalog
		inventory trip.Inventory
		ledger    booking.Ledger
	)
	switch cfg.Reservation.StoreBackend {
	case "memory":
		store := memory.NewTripStore()
		catalog, inventory, ledger = store, store, memory.NewLedger()
	case "postgres":
		db, err := postgres.NewConnection(&cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath); err != nil {
			return err
		}
		repo := postgres.NewTripRepository(db)
		catalog, inventory, ledger = repo, repo, postgres.NewBookingRepository(db)
		checks["database"] = func(ctx context.Context) error { return postgres.Ping(ctx, db) }
	default:
		return fmt.Errorf("不明なストア: %q", cfg.Reservation.StoreBackend)
	}

	opts := []application.EngineOption{
		application.WithLockTimeout(cfg.Reservation.LockTimeout),
		application.WithMetrics(m),
	}

	// ロックと空席キャッシュ
	switch cfg.Reservation.LockBackend {
	case "none":
	case "memory":
		opts = append(opts, application.WithLocker(memory.NewKeyedLocker(), "memory"))
	case "redis":
		rc, err := redisinfra.NewClient(&redisinfra.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rc.Close()
		locker := redisinfra.NewTripLocker(redisinfra.NewLockManager(rc),
			cfg.Reservation.LockTTL, cfg.Reservation.LockRetries, cfg.Reservation.LockRetryDelay)
		opts = append(opts, application.WithLocker(locker, "redis"))
		if cfg.Reservation.CacheTTL > 0 {
			opts = append(opts, application.WithAvailabilityCache(redisinfra.NewAvailabilityCache(rc, cfg.Reservation.CacheTTL)))
		}
		checks["redis"] = func(ctx context.Context) error { return redisinfra.Ping(ctx, rc) }
	default:
		return fmt.Errorf("不明なロック: %q", cfg.Reservation.LockBackend)
	}

	if cfg.Kafka.Enabled {
		pub := kafkainfra.NewPublisher(kafkainfra.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warn("Kafkaライターの終了に失敗しました", zap.Error(err))
			}
		}()
		opts = append(opts, application.WithEventPublisher(pub))
	}

	engine := application.NewReservationEngine(catalog, inventory, ledger, opts...)
	tripService := application.NewTripService(catalog)

	if cfg.Reservation.AuditInterval > 0 {
		auditor := worker.NewConsistencyAuditor(engine, cfg.Reservation.AuditInterval)
		go auditor.Start(ctx)
		defer auditor.Stop()
	}

	e := router.New(router.Config{
		TripService:     tripService,
		Engine:          engine,
		HealthChecks:    checks,
		Metrics:         m,
		MetricsUser:     cfg.Server.MetricsUser,
		MetricsPassword: cfg.Server.MetricsPassword,
	})
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	errCh := make(chan error, 1)
	go func() {
		logger.Info("サーバーを起動します",
			zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Reservation.StoreBackend),
			zap.String("lock", cfg.Reservation.LockBackend),
			zap.Bool("kafka", cfg.Kafka.Enabled),
		)
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("サーバー起動エラー: %w", err)
	}

	logger.Info("サーバーをシャットダウンしています...")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		return fmt.Errorf("サーバーシャットダウンエラー: %w", err)
	}

	logger.Info("サーバーが正常にシャットダウンしました")
	return nil
}
