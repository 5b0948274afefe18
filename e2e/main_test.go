package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/api/handler"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/api/router"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/application"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/config"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/infrastructure/memory"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-trip-seat-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/metrics"
)

// TestServer はE2Eテスト用のサーバー
type TestServer struct {
	Echo   *echo.Echo
	Engine *application.ReservationEngine
}

// NewTestServer はインメモリのストアとロックでサーバーを作成
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	store := memory.NewTripStore()
	engine := application.NewReservationEngine(store, store, memory.NewLedger(),
		application.WithLocker(memory.NewKeyedLocker(), "memory"),
		application.WithMetrics(m),
	)
	return newServer(engine, application.NewTripService(store), nil, m, reg)
}

// NewPostgresTestServer はPostgreSQL（とRedisがあれば分散ロック）でサーバーを作成
// DB未起動時はスキップする
func NewPostgresTestServer(t *testing.T) *TestServer {
	t.Helper()
	cfg := config.Load()

	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		t.Skipf("DB接続エラー: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := postgres.RunMigrations(db.DB, "../migrations"); err != nil {
		t.Skipf("マイグレーションエラー: %v", err)
	}
	db.MustExec("TRUNCATE TABLE bookings, trips CASCADE")

	checks := map[string]handler.CheckFunc{
		"database": func(ctx context.Context) error { return postgres.Ping(ctx, db) },
	}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	opts := []application.EngineOption{
		application.WithLocker(memory.NewKeyedLocker(), "memory"),
		application.WithMetrics(m),
	}

	rc, err := redisinfra.NewClient(&redisinfra.Config{
		Host: cfg.Redis.Host, Port: cfg.Redis.Port, Password: cfg.Redis.Password,
	})
	if err == nil {
		t.Cleanup(func() { rc.Close() })
		locker := redisinfra.NewTripLocker(redisinfra.NewLockManager(rc),
			cfg.Reservation.LockTTL, 0, cfg.Reservation.LockRetryDelay)
		opts = []application.EngineOption{
			application.WithLocker(locker, "redis"),
			application.WithAvailabilityCache(redisinfra.NewAvailabilityCache(rc, cfg.Reservation.CacheTTL)),
			application.WithMetrics(m),
		}
		checks["redis"] = func(ctx context.Context) error { return redisinfra.Ping(ctx, rc) }
	}

	repo := postgres.NewTripRepository(db)
	engine := application.NewReservationEngine(repo, repo, postgres.NewBookingRepository(db), opts...)
	return newServer(engine, application.NewTripService(repo), checks, m, reg)
}

func newServer(engine *application.ReservationEngine, trips *application.TripService,
	checks map[string]handler.CheckFunc, m *metrics.Metrics, reg *prometheus.Registry) *TestServer {
	e := router.New(router.Config{
		TripService:     trips,
		Engine:          engine,
		HealthChecks:    checks,
		Metrics:         m,
		MetricsGatherer: reg,
	})
	return &TestServer{Echo: e, Engine: engine}
}

// Request はHTTPリクエストを実行
func (s *TestServer) Request(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

// backends は各ストア構成でテストを実行する
func backends(t *testing.T, fn func(t *testing.T, server *TestServer)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewTestServer(t)) })
	t.Run("postgres", func(t *testing.T) { fn(t, NewPostgresTestServer(t)) })
}
