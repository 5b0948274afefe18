package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/trip"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/logger"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// TripService はツアーカタログの操作を提供する
type TripService struct {
	catalog trip.Catalog
}

// NewTripService は TripService を作成する
func NewTripService(catalog trip.Catalog) *TripService {
	return &TripService{catalog: catalog}
}

// CreateTripInput はツアー作成の入力
type CreateTripInput struct {
	Title          string
	Location       string
	StartDate      time.Time
	EndDate        time.Time
	PricePerPerson int
	Capacity       int
}

// CreateTrip はツアーを作成する（空席数は定員で初期化される）
func (s *TripService) CreateTrip(ctx context.Context, in CreateTripInput) (*trip.Trip, error) {
	t := trip.NewTrip(in.Title, in.Location, in.StartDate, in.EndDate, in.PricePerPerson, in.Capacity)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.catalog.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("ツアー作成に失敗: %w", err)
	}
	logger.Ctx(ctx).Info("ツアーを作成しました",
		zap.String("trip_id", t.ID),
		zap.Int("capacity", t.Capacity),
	)
	return t, nil
}

// GetTrip はツアーを取得する
func (s *TripService) GetTrip(ctx context.Context, id string) (*trip.Trip, error) {
	return s.catalog.GetByID(ctx, id)
}

// ListTrips はツアー一覧を取得する
func (s *TripService) ListTrips(ctx context.Context, limit, offset int) ([]*trip.Trip, error) {
	return s.catalog.List(ctx, NormalizeLimit(limit), max(offset, 0))
}

// UpdatePrice は1人あたりの料金を更新する
// 既存予約の合計金額は予約時点の料金のまま変わらない
func (s *TripService) UpdatePrice(ctx context.Context, id string, pricePerPerson int) (*trip.Trip, error) {
	if pricePerPerson < 0 {
		return nil, trip.ErrInvalidPrice
	}
	t, err := s.catalog.UpdatePrice(ctx, id, pricePerPerson)
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info("ツアー料金を更新しました",
		zap.String("trip_id", id),
		zap.Int("price_per_person", pricePerPerson),
	)
	return t, nil
}

// NormalizeLimit は一覧取得件数を既定値と上限に丸める
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}
