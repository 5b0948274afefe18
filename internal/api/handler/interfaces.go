package handler

import (
	"context"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/application"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/trip"
)

// TripServiceInterface はツアーカタログのインターフェース
type TripServiceInterface interface {
	CreateTrip(ctx context.Context, input application.CreateTripInput) (*trip.Trip, error)
	GetTrip(ctx context.Context, id string) (*trip.Trip, error)
	ListTrips(ctx context.Context, limit, offset int) ([]*trip.Trip, error)
	UpdatePrice(ctx context.Context, id string, pricePerPerson int) (*trip.Trip, error)
}

// ReservationEngineInterface は予約エンジンのインターフェース
type ReservationEngineInterface interface {
	Reserve(ctx context.Context, input application.ReserveInput) (*booking.Booking, error)
	Confirm(ctx context.Context, id string) (*booking.Booking, error)
	Cancel(ctx context.Context, id string) (*booking.Booking, error)
	Get(ctx context.Context, id string) (*booking.Booking, error)
	List(ctx context.Context, filter booking.Filter) ([]*booking.Booking, error)
	Availability(ctx context.Context, tripID string) (int, error)
}
