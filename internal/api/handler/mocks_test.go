package handler

import (
	"context"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/application"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/trip"
)

// MockTripService はTripServiceInterfaceのモック
type MockTripService struct {
	mock.Mock
}

func (m *MockTripService) CreateTrip(ctx context.Context, input application.CreateTripInput) (*trip.Trip, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trip.Trip), args.Error(1)
}

func (m *MockTripService) GetTrip(ctx context.Context, id string) (*trip.Trip, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trip.Trip), args.Error(1)
}

func (m *MockTripService) ListTrips(ctx context.Context, limit, offset int) ([]*trip.Trip, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*trip.Trip), args.Error(1)
}

func (m *MockTripService) UpdatePrice(ctx context.Context, id string, pricePerPerson int) (*trip.Trip, error) {
	args := m.Called(ctx, id, pricePerPerson)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trip.Trip), args.Error(1)
}

// MockEngine はReservationEngineInterfaceのモック
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Reserve(ctx context.Context, input application.ReserveInput) (*booking.Booking, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockEngine) Confirm(ctx context.Context, id string) (*booking.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockEngine) Cancel(ctx context.Context, id string) (*booking.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockEngine) Get(ctx context.Context, id string) (*booking.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockEngine) List(ctx context.Context, filter booking.Filter) ([]*booking.Booking, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*booking.Booking), args.Error(1)
}

func (m *MockEngine) Availability(ctx context.Context, tripID string) (int, error) {
	args := m.Called(ctx, tripID)
	return args.Int(0), args.Error(1)
}

// serve はルートを登録したEchoにリクエストを流し、エラーハンドラーまで通した結果を返す
func serve(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}
