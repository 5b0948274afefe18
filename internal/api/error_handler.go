package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/application"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/trip"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// HTTPStatus はエラーに対応するHTTPステータスを返す
func HTTPStatus(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, trip.ErrTripNotFound), errors.Is(err, booking.ErrBookingNotFound):
		return http.StatusNotFound
	case errors.Is(err, trip.ErrInsufficientCapacity),
		errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrIdempotencyKeyAlreadyExists),
		errors.Is(err, booking.ErrIdempotencyKeyConflict),
		errors.Is(err, trip.ErrTripAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, trip.ErrValidation), errors.Is(err, booking.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrConcurrencyTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
// ハンドラーが返したドメインエラーもここでステータスに変換する
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := HTTPStatus(err)
	message := err.Error()

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	}

	switch {
	case code == http.StatusServiceUnavailable:
		c.Response().Header().Set("Retry-After", "1")
	case code >= 500:
		logger.Ctx(c.Request().Context()).Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
		message = "内部サーバーエラー"
	}

	if err := c.JSON(code, ErrorResponse{
		Error: message,
		Code:  code,
	}); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
