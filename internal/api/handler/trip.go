package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/application"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/trip"
)

type TripHandler struct {
	tripService TripServiceInterface
	engine      ReservationEngineInterface
}

func NewTripHandler(tripService TripServiceInterface, engine ReservationEngineInterface) *TripHandler {
	return &TripHandler{tripService: tripService, engine: engine}
}

type CreateTripRequest struct {
	Title          string `json:"title" validate:"required" example:"京都紅葉ツアー"`
	Location       string `json:"location" example:"京都"`
	StartDate      string `json:"start_date" example:"2025-11-20T09:00:00+09:00"`
	EndDate        string `json:"end_date" example:"2025-11-22T18:00:00+09:00"`
	PricePerPerson int    `json:"price_per_person" validate:"gte=0" example:"25000"`
	Capacity       int    `json:"capacity" validate:"required,gt=0" example:"40"`
}

type UpdatePriceRequest struct {
	PricePerPerson *int `json:"price_per_person" validate:"required,gte=0" example:"28000"`
}

type TripResponse struct {
	ID             string `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Title          string `json:"title" example:"京都紅葉ツアー"`
	Location       string `json:"location" example:"京都"`
	StartDate      string `json:"start_date,omitempty" example:"2025-11-20T09:00:00+09:00"`
	EndDate        string `json:"end_date,omitempty" example:"2025-11-22T18:00:00+09:00"`
	PricePerPerson int    `json:"price_per_person" example:"25000"`
	Capacity       int    `json:"capacity" example:"40"`
	AvailableSeats int    `json:"available_seats" example:"12"`
	CreatedAt      string `json:"created_at" example:"2025-10-01T10:00:00+09:00"`
	UpdatedAt      string `json:"updated_at" example:"2025-10-01T10:00:00+09:00"`
}

type AvailabilityResponse struct {
	TripID         string `json:"trip_id"`
	AvailableSeats int    `json:"available_seats"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func toTripResponse(t *trip.Trip) TripResponse {
	return TripResponse{
		ID:             t.ID,
		Title:          t.Title,
		Location:       t.Location,
		StartDate:      formatTime(t.StartDate),
		EndDate:        formatTime(t.EndDate),
		PricePerPerson: t.PricePerPerson,
		Capacity:       t.Capacity,
		AvailableSeats: t.AvailableSeats,
		CreatedAt:      formatTime(t.CreatedAt),
		UpdatedAt:      formatTime(t.UpdatedAt),
	}
}

// Create godoc
// @Summary ツアーを作成
// @Description 新しいツアーを作成します（空席数は定員で初期化）
// @Tags trips
// @Accept json
// @Produce json
// @Param request body CreateTripRequest true "ツアー情報"
// @Success 201 {object} TripResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /trips [post]
func (h *TripHandler) Create(c echo.Context) error {
	var req CreateTripRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	startDate, err := parseOptionalTime(req.StartDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "開始日の形式が不正です")
	}
	endDate, err := parseOptionalTime(req.EndDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "終了日の形式が不正です")
	}

	t, err := h.tripService.CreateTrip(c.Request().Context(), application.CreateTripInput{
		Title:          req.Title,
		Location:       req.Location,
		StartDate:      startDate,
		EndDate:        endDate,
		PricePerPerson: req.PricePerPerson,
		Capacity:       req.Capacity,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toTripResponse(t))
}

// GetByID godoc
// @Summary ツアーを取得
// @Tags trips
// @Produce json
// @Param id path string true "ツアーID"
// @Success 200 {object} TripResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /trips/{id} [get]
func (h *TripHandler) GetByID(c echo.Context) error {
	t, err := h.tripService.GetTrip(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTripResponse(t))
}

// List godoc
// @Summary ツアー一覧を取得
// @Tags trips
// @Produce json
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} TripResponse
// @Router /trips [get]
func (h *TripHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	trips, err := h.tripService.ListTrips(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	resp := make([]TripResponse, len(trips))
	for i, t := range trips {
		resp[i] = toTripResponse(t)
	}
	return c.JSON(http.StatusOK, resp)
}

// UpdatePrice godoc
// @Summary ツアー料金を変更
// @Description 1人あたりの料金を変更します。既存予約の金額は変わりません
// @Tags trips
// @Accept json
// @Produce json
// @Param id path string true "ツアーID"
// @Param request body UpdatePriceRequest true "料金"
// @Success 200 {object} TripResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /trips/{id}/price [patch]
func (h *TripHandler) UpdatePrice(c echo.Context) error {
	var req UpdatePriceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	t, err := h.tripService.UpdatePrice(c.Request().Context(), c.Param("id"), *req.PricePerPerson)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTripResponse(t))
}

// Availability godoc
// @Summary 空席数を取得
// @Description 表示用の空席数を返します（キャッシュの値の場合があります）
// @Tags trips
// @Produce json
// @Param id path string true "ツアーID"
// @Success 200 {object} AvailabilityResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /trips/{id}/availability [get]
func (h *TripHandler) Availability(c echo.Context) error {
	id := c.Param("id")
	n, err := h.engine.Availability(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{TripID: id, AvailableSeats: n})
}
