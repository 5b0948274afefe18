package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/api"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/api/handler"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/metrics"
)

// Config はルーター構築に必要な依存
type Config struct {
	TripService  handler.TripServiceInterface
	Engine       handler.ReservationEngineInterface
	HealthChecks map[string]handler.CheckFunc

	// Metrics が nil の場合は /metrics を公開しない
	Metrics         *metrics.Metrics
	MetricsGatherer prometheus.Gatherer // 省略時はデフォルトレジストリ
	MetricsUser     string
	MetricsPassword string
}

// New はミドルウェアとルートを設定したEchoを返す
func New(cfg Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	middleware.SetupMiddleware(e, cfg.Metrics)

	tripHandler := handler.NewTripHandler(cfg.TripService, cfg.Engine)
	bookingHandler := handler.NewBookingHandler(cfg.Engine)
	healthHandler := handler.NewHealthHandler(cfg.HealthChecks)

	e.GET("/health", healthHandler.Check)
	if cfg.Metrics != nil {
		gatherer := cfg.MetricsGatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})),
			middleware.MetricsBasicAuth(cfg.MetricsUser, cfg.MetricsPassword))
	}

	v1 := e.Group("/api/v1")
	v1.POST("/trips", tripHandler.Create)
	v1.GET("/trips", tripHandler.List)
	v1.GET("/trips/:id", tripHandler.GetByID)
	v1.PATCH("/trips/:id/price", tripHandler.UpdatePrice)
	v1.GET("/trips/:id/availability", tripHandler.Availability)

	v1.POST("/bookings", bookingHandler.Create)
	v1.GET("/bookings", bookingHandler.List)
	v1.GET("/bookings/:id", bookingHandler.GetByID)
	v1.POST("/bookings/:id/confirm", bookingHandler.Confirm)
	v1.POST("/bookings/:id/cancel", bookingHandler.Cancel)

	return e
}
