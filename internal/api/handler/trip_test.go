package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/application"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/trip"
)

func setupTripRoutes(svc *MockTripService, engine *MockEngine) *echo.Echo {
	e := NewTestEcho()
	h := NewTripHandler(svc, engine)
	e.POST("/trips", h.Create)
	e.GET("/trips", h.List)
	e.GET("/trips/:id", h.GetByID)
	e.PATCH("/trips/:id/price", h.UpdatePrice)
	e.GET("/trips/:id/availability", h.Availability)
	return e
}

func testTrip() *trip.Trip {
	now := time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC)
	return &trip.Trip{
		ID: "trip-1", Title: "京都紅葉ツアー", Location: "京都",
		StartDate: now.Add(24 * time.Hour), PricePerPerson: 25000,
		Capacity: 40, AvailableSeats: 12, CreatedAt: now, UpdatedAt: now,
	}
}

func TestTripHandler_Create(t *testing.T) {
	t.Run("正常にツアーを作成できる", func(t *testing.T) {
		svc := new(MockTripService)
		svc.On("CreateTrip", mock.Anything, mock.MatchedBy(func(in application.CreateTripInput) bool {
			return in.Title == "京都紅葉ツアー" && in.Capacity == 40 && in.PricePerPerson == 25000 &&
				in.StartDate.Equal(time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)) && in.EndDate.IsZero()
		})).Return(testTrip(), nil)
		e := setupTripRoutes(svc, new(MockEngine))

		rec := serve(e, http.MethodPost, "/trips",
			`{"title":"京都紅葉ツアー","location":"京都","start_date":"2025-11-20T00:00:00Z","price_per_person":25000,"capacity":40}`, nil)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp TripResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "trip-1", resp.ID)
		assert.Equal(t, 12, resp.AvailableSeats)
		assert.Empty(t, resp.EndDate)
		svc.AssertExpectations(t)
	})

	tests := []struct {
		name string
		body string
	}{
		{"タイトルなし", `{"capacity":10}`},
		{"定員0", `{"title":"x","capacity":0}`},
		{"料金が負", `{"title":"x","capacity":1,"price_per_person":-1}`},
		{"日付の形式が不正", `{"title":"x","capacity":1,"start_date":"2025/11/20"}`},
		{"JSONが不正", `{"title":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockTripService)
			e := setupTripRoutes(svc, new(MockEngine))

			rec := serve(e, http.MethodPost, "/trips", tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			svc.AssertNotCalled(t, "CreateTrip", mock.Anything, mock.Anything)
		})
	}

	t.Run("ドメインの検証エラーは400", func(t *testing.T) {
		svc := new(MockTripService)
		svc.On("CreateTrip", mock.Anything, mock.Anything).Return(nil, trip.ErrInvalidTripDates)
		e := setupTripRoutes(svc, new(MockEngine))

		rec := serve(e, http.MethodPost, "/trips",
			`{"title":"x","capacity":1,"start_date":"2025-11-20T00:00:00Z","end_date":"2025-11-19T00:00:00Z"}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTripHandler_Get(t *testing.T) {
	t.Run("取得", func(t *testing.T) {
		svc := new(MockTripService)
		svc.On("GetTrip", mock.Anything, "trip-1").Return(testTrip(), nil)
		e := setupTripRoutes(svc, new(MockEngine))

		rec := serve(e, http.MethodGet, "/trips/trip-1", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"title":"京都紅葉ツアー"`)
	})

	t.Run("存在しないツアーは404", func(t *testing.T) {
		svc := new(MockTripService)
		svc.On("GetTrip", mock.Anything, "missing").Return(nil, trip.ErrTripNotFound)
		e := setupTripRoutes(svc, new(MockEngine))

		rec := serve(e, http.MethodGet, "/trips/missing", "", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("一覧はクエリをそのまま渡す", func(t *testing.T) {
		svc := new(MockTripService)
		svc.On("ListTrips", mock.Anything, 5, 10).Return([]*trip.Trip{testTrip()}, nil)
		e := setupTripRoutes(svc, new(MockEngine))

		rec := serve(e, http.MethodGet, "/trips?limit=5&offset=10", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp []TripResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp, 1)
		svc.AssertExpectations(t)
	})
}

func TestTripHandler_UpdatePrice(t *testing.T) {
	t.Run("料金を変更できる", func(t *testing.T) {
		updated := testTrip()
		updated.PricePerPerson = 0
		svc := new(MockTripService)
		svc.On("UpdatePrice", mock.Anything, "trip-1", 0).Return(updated, nil)
		e := setupTripRoutes(svc, new(MockEngine))

		rec := serve(e, http.MethodPatch, "/trips/trip-1/price", `{"price_per_person":0}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("料金の指定がない", func(t *testing.T) {
		svc := new(MockTripService)
		e := setupTripRoutes(svc, new(MockEngine))

		rec := serve(e, http.MethodPatch, "/trips/trip-1/price", `{}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "UpdatePrice", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestTripHandler_Availability(t *testing.T) {
	engine := new(MockEngine)
	engine.On("Availability", mock.Anything, "trip-1").Return(7, nil)
	engine.On("Availability", mock.Anything, "missing").Return(0, trip.ErrTripNotFound)
	e := setupTripRoutes(new(MockTripService), engine)

	rec := serve(e, http.MethodGet, "/trips/trip-1/availability", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"trip_id":"trip-1","available_seats":7}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/trips/missing/availability", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
