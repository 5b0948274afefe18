package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/trip"
)

const tripColumns = `id, title, location, start_date, end_date, price_per_person, capacity, available_seats, created_at, updated_at`

// 在庫の再判定の上限（条件付きUPDATEの失敗と状態確認の間に他の更新が入った場合）
const maxAdjustAttempts = 3

type tripRow struct {
	ID             string     `db:"id"`
	Title          string     `db:"title"`
	Location       string     `db:"location"`
	StartDate      *time.Time `db:"start_date"`
	EndDate        *time.Time `db:"end_date"`
	PricePerPerson int        `db:"price_per_person"`
	Capacity       int        `db:"capacity"`
	AvailableSeats int        `db:"available_seats"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

func (r *tripRow) toEntity() *trip.Trip {
	t := &trip.Trip{
		ID:             r.ID,
		Title:          r.Title,
		Location:       r.Location,
		PricePerPerson: r.PricePerPerson,
		Capacity:       r.Capacity,
		AvailableSeats: r.AvailableSeats,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.StartDate != nil {
		t.StartDate = *r.StartDate
	}
	if r.EndDate != nil {
		t.EndDate = *r.EndDate
	}
	return t
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// TripRepository はツアーカタログと空席数を PostgreSQL で管理する
type TripRepository struct{ db *sqlx.DB }

// NewTripRepository は TripRepository を作成する
func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

// Create はツアーを登録する
func (r *TripRepository) Create(ctx context.Context, t *trip.Trip) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	query := `INSERT INTO trips (id, title, location, start_date, end_date, price_per_person, capacity, available_seats, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Title, t.Location, nullableTime(t.StartDate), nullableTime(t.EndDate),
		t.PricePerPerson, t.Capacity, t.AvailableSeats, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		switch pqCode(err) {
		case pqCheckViolation:
			return fmt.Errorf("%w: %v", trip.ErrValidation, err)
		case pqUniqueViolation:
			return trip.ErrTripAlreadyExists
		}
		return fmt.Errorf("ツアー作成に失敗: %w", err)
	}
	return nil
}

// GetByID はIDからツアーを取得する
func (r *TripRepository) GetByID(ctx context.Context, id string) (*trip.Trip, error) {
	var row tripRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || pqCode(err) == pqInvalidTextRepr {
			return nil, trip.ErrTripNotFound
		}
		return nil, fmt.Errorf("ツアー取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

// List は登録順にツアー一覧を返す（limit が 0 以下なら全件）
func (r *TripRepository) List(ctx context.Context, limit, offset int) ([]*trip.Trip, error) {
	var rows []tripRow
	query := `SELECT ` + tripColumns + ` FROM trips ORDER BY seq LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &rows, query, limitArg(limit), max(offset, 0)); err != nil {
		return nil, fmt.Errorf("ツアー一覧取得に失敗: %w", err)
	}
	trips := make([]*trip.Trip, len(rows))
	for i := range rows {
		trips[i] = rows[i].toEntity()
	}
	return trips, nil
}

// UpdatePrice は1人あたりの料金を更新する
func (r *TripRepository) UpdatePrice(ctx context.Context, id string, pricePerPerson int) (*trip.Trip, error) {
	if pricePerPerson < 0 {
		return nil, trip.ErrInvalidPrice
	}
	var row tripRow
	query := `UPDATE trips SET price_per_person = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + tripColumns
	if err := r.db.GetContext(ctx, &row, query, id, pricePerPerson); err != nil {
		if errors.Is(err, sql.ErrNoRows) || pqCode(err) == pqInvalidTextRepr {
			return nil, trip.ErrTripNotFound
		}
		return nil, fmt.Errorf("料金更新に失敗: %w", err)
	}
	return row.toEntity(), nil
}

// GetAvailable は現在の空席数を返す
func (r *TripRepository) GetAvailable(ctx context.Context, tripID string) (int, error) {
	var available int
	if err := r.db.GetContext(ctx, &available, `SELECT available_seats FROM trips WHERE id = $1`, tripID); err != nil {
		if errors.Is(err, sql.ErrNoRows) || pqCode(err) == pqInvalidTextRepr {
			return 0, trip.ErrTripNotFound
		}
		return 0, fmt.Errorf("空席数取得に失敗: %w", err)
	}
	return available, nil
}

// TryAdjust は条件付きUPDATE 1文で空席数を増減する
// 更新されなかった場合のみ現在値を読み、存在しないのか範囲外なのかを判定する
func (r *TripRepository) TryAdjust(ctx context.Context, tripID string, delta int) (int, error) {
	const adjust = `UPDATE trips
		SET available_seats = available_seats + $2, updated_at = NOW()
		WHERE id = $1 AND available_seats + $2 BETWEEN 0 AND capacity
		RETURNING available_seats`

	for attempt := 0; attempt < maxAdjustAttempts; attempt++ {
		var available int
		err := r.db.GetContext(ctx, &available, adjust, tripID, delta)
		if err == nil {
			return available, nil
		}
		if pqCode(err) == pqInvalidTextRepr {
			return 0, trip.ErrTripNotFound
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("空席数の更新に失敗: %w", err)
		}

		var state struct {
			Available int `db:"available_seats"`
			Capacity  int `db:"capacity"`
		}
		if err := r.db.GetContext(ctx, &state, `SELECT available_seats, capacity FROM trips WHERE id = $1`, tripID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, trip.ErrTripNotFound
			}
			return 0, fmt.Errorf("空席数取得に失敗: %w", err)
		}
		if _, err := trip.ApplyDelta(state.Available, state.Capacity, delta); err != nil {
			return state.Available, err
		}
		// 確認までの間に他の更新で適用可能になった
	}
	return 0, fmt.Errorf("空席数の更新が競合し続けました: trip=%s", tripID)
}

var (
	_ trip.Catalog   = (*TripRepository)(nil)
	_ trip.Inventory = (*TripRepository)(nil)
)
