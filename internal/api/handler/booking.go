package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/application"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/booking"
)

// HeaderUserID は予約者を表すヘッダー（認証は上流で行う）
const HeaderUserID = "X-User-ID"

type BookingHandler struct {
	engine ReservationEngineInterface
}

func NewBookingHandler(engine ReservationEngineInterface) *BookingHandler {
	return &BookingHandler{engine: engine}
}

type CreateBookingRequest struct {
	TripID         string `json:"trip_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	NumberOfPeople int    `json:"number_of_people" validate:"gte=1" example:"2"`
	IdempotencyKey string `json:"idempotency_key" example:"order-2025-001"`
}

type BookingResponse struct {
	ID             string     `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	TripID         string     `json:"trip_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	UserID         string     `json:"user_id" example:"user-123"`
	NumberOfPeople int        `json:"number_of_people" example:"2"`
	TotalPrice     int        `json:"total_price" example:"50000"`
	Status         string     `json:"status" example:"pending"`
	IdempotencyKey string     `json:"idempotency_key,omitempty" example:"order-2025-001"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID: b.ID, TripID: b.TripID, UserID: b.UserID,
		NumberOfPeople: b.NumberOfPeople, TotalPrice: b.TotalPrice,
		Status: string(b.Status), IdempotencyKey: b.IdempotencyKey,
		ConfirmedAt: b.ConfirmedAt, CancelledAt: b.CancelledAt, CreatedAt: b.CreatedAt,
	}
}

// Create godoc
// @Summary 予約を作成
// @Description 座席を確保し、保留中の予約を作成します
// @Tags bookings
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body CreateBookingRequest true "予約情報"
// @Success 201 {object} BookingResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "空席不足"
// @Failure 503 {object} api.ErrorResponse "混雑中（再試行可能）"
// @Router /bookings [post]
func (h *BookingHandler) Create(c echo.Context) error {
	userID := c.Request().Header.Get(HeaderUserID)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	var req CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	b, err := h.engine.Reserve(c.Request().Context(), application.ReserveInput{
		TripID:         req.TripID,
		UserID:         userID,
		PartySize:      req.NumberOfPeople,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toBookingResponse(b))
}

// GetByID godoc
// @Summary 予約を取得
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetByID(c echo.Context) error {
	b, err := h.engine.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// List godoc
// @Summary 予約一覧を取得
// @Description 登録順に返します。条件を省略した項目は絞り込みません
// @Tags bookings
// @Produce json
// @Param trip_id query string false "ツアーID"
// @Param user_id query string false "ユーザーID"
// @Param status query string false "状態" Enums(pending, confirmed, cancelled)
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} BookingResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /bookings [get]
func (h *BookingHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	bookings, err := h.engine.List(c.Request().Context(), booking.Filter{
		TripID: c.QueryParam("trip_id"),
		UserID: c.QueryParam("user_id"),
		Status: booking.Status(c.QueryParam("status")),
		Limit:  application.NormalizeLimit(limit),
		Offset: max(offset, 0),
	})
	if err != nil {
		return err
	}
	resp := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		resp[i] = toBookingResponse(b)
	}
	return c.JSON(http.StatusOK, resp)
}

// Confirm godoc
// @Summary 予約を確定
// @Description 保留中の予約を確定します
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "確定できない状態"
// @Router /bookings/{id}/confirm [post]
func (h *BookingHandler) Confirm(c echo.Context) error {
	b, err := h.engine.Confirm(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 予約をキャンセルし、座席を返却します。予約の記録は残ります
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "キャンセル済み"
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c echo.Context) error {
	b, err := h.engine.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}
