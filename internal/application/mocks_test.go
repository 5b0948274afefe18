package application

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/trip"
)

// MockCatalog implements trip.Catalog
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) Create(ctx context.Context, t *trip.Trip) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockCatalog) GetByID(ctx context.Context, id string) (*trip.Trip, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trip.Trip), args.Error(1)
}

func (m *MockCatalog) List(ctx context.Context, limit, offset int) ([]*trip.Trip, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*trip.Trip), args.Error(1)
}

func (m *MockCatalog) UpdatePrice(ctx context.Context, id string, price int) (*trip.Trip, error) {
	args := m.Called(ctx, id, price)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trip.Trip), args.Error(1)
}

// MockInventory implements trip.Inventory
type MockInventory struct {
	mock.Mock
}

func (m *MockInventory) GetAvailable(ctx context.Context, tripID string) (int, error) {
	args := m.Called(ctx, tripID)
	return args.Int(0), args.Error(1)
}

func (m *MockInventory) TryAdjust(ctx context.Context, tripID string, delta int) (int, error) {
	args := m.Called(ctx, tripID, delta)
	return args.Int(0), args.Error(1)
}

// MockLedger implements booking.Ledger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Append(ctx context.Context, b *booking.Booking) (string, error) {
	args := m.Called(ctx, b)
	return args.String(0), args.Error(1)
}

func (m *MockLedger) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockLedger) GetByIdempotencyKey(ctx context.Context, userID, key string) (*booking.Booking, error) {
	args := m.Called(ctx, userID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockLedger) List(ctx context.Context, f booking.Filter) ([]*booking.Booking, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*booking.Booking), args.Error(1)
}

func (m *MockLedger) SetStatus(ctx context.Context, id string, to booking.Status) (*booking.Booking, error) {
	args := m.Called(ctx, id, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

// MockAtomicLedger implements booking.Ledger and booking.AtomicCanceller
type MockAtomicLedger struct {
	MockLedger
}

func (m *MockAtomicLedger) CancelAndRelease(ctx context.Context, id string) (*booking.Cancellation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Cancellation), args.Error(1)
}

// MockLocker implements Locker
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

// MockCache implements AvailabilityCache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetAvailableCount(ctx context.Context, tripID string) (int, error) {
	args := m.Called(ctx, tripID)
	return args.Int(0), args.Error(1)
}

func (m *MockCache) SetAvailableCount(ctx context.Context, tripID string, count int) error {
	args := m.Called(ctx, tripID, count)
	return args.Error(0)
}

func (m *MockCache) Invalidate(ctx context.Context, tripID string) error {
	args := m.Called(ctx, tripID)
	return args.Error(0)
}

// MockPublisher implements booking.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, e booking.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}
