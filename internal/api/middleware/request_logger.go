package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/logger"
)

// RequestLogger はリクエストの構造化ログを出力するミドルウェア
// トレース中であれば trace_id / span_id も付与する
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()
			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = res.Header().Get(echo.HeaderXRequestID)
			}
			status := statusOf(c, err)

			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("query", req.URL.RawQuery),
				zap.Int("status", status),
				zap.Int64("size", res.Size),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_ip", c.RealIP()),
				zap.String("user_agent", req.UserAgent()),
			}
			if userID := req.Header.Get("X-User-ID"); userID != "" {
				fields = append(fields, zap.String("user_id", userID))
			}

			log := logger.Ctx(req.Context())
			switch {
			case status >= 500:
				if err != nil {
					fields = append(fields, zap.Error(err))
				}
				log.Error("server error", fields...)
			case status >= 400:
				if err != nil {
					fields = append(fields, zap.String("reason", err.Error()))
				}
				log.Warn("client error", fields...)
			default:
				log.Info("request completed", fields...)
			}

			return err
		}
	}
}
