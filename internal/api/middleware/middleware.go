package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/api"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/metrics"
)

// SetupMiddleware は共通ミドルウェアを設定する
// m が nil の場合はHTTPメトリクスを収集しない
func SetupMiddleware(e *echo.Echo, m *metrics.Metrics) {
	// リクエストID
	e.Use(middleware.RequestID())

	// トレース（以降のミドルウェアとハンドラーにスパンを引き継ぐ）
	e.Use(Tracing())

	// 構造化リクエストログ（zap）
	e.Use(RequestLogger())

	if m != nil {
		e.Use(PrometheusMiddleware(m))
	}

	// パニックリカバリー
	e.Use(middleware.Recover())

	// CORS
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.PUT, echo.PATCH, echo.POST, echo.DELETE},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID, "X-User-ID"},
	}))
}

// statusOf はエラーハンドラーが返すことになるステータスを求める
// ミドルウェアはエラーハンドラーより先に戻るため、レスポンスにはまだ書かれていない
func statusOf(c echo.Context, err error) int {
	if err != nil {
		return api.HTTPStatus(err)
	}
	return c.Response().Status
}

func routeOf(c echo.Context) string {
	if path := c.Path(); path != "" {
		return path
	}
	return c.Request().URL.Path
}
