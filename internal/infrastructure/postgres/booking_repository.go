package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/trip"
)

const bookingColumns = `id, trip_id, user_id, number_of_people, total_price, status, COALESCE(idempotency_key, '') AS idempotency_key, confirmed_at, cancelled_at, created_at, updated_at`

type bookingRow struct {
	ID             string     `db:"id"`
	TripID         string     `db:"trip_id"`
	UserID         string     `db:"user_id"`
	NumberOfPeople int        `db:"number_of_people"`
	TotalPrice     int        `db:"total_price"`
	Status         string     `db:"status"`
	IdempotencyKey string     `db:"idempotency_key"`
	ConfirmedAt    *time.Time `db:"confirmed_at"`
	CancelledAt    *time.Time `db:"cancelled_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

func (r *bookingRow) toEntity() *booking.Booking {
	return &booking.Booking{
		ID:             r.ID,
		TripID:         r.TripID,
		UserID:         r.UserID,
		NumberOfPeople: r.NumberOfPeople,
		TotalPrice:     r.TotalPrice,
		Status:         booking.Status(r.Status),
		IdempotencyKey: r.IdempotencyKey,
		ConfirmedAt:    r.ConfirmedAt,
		CancelledAt:    r.CancelledAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// BookingRepository は予約台帳を PostgreSQL で管理する
// 登録順は seq（BIGSERIAL）で保持する
type BookingRepository struct{ db *sqlx.DB }

// NewBookingRepository は BookingRepository を作成する
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Append は予約を追記する
func (r *BookingRepository) Append(ctx context.Context, b *booking.Booking) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	query := `INSERT INTO bookings (id, trip_id, user_id, number_of_people, total_price, status, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.TripID, b.UserID, b.NumberOfPeople, b.TotalPrice, string(b.Status), b.IdempotencyKey, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		switch pqCode(err) {
		case pqUniqueViolation:
			return "", booking.ErrIdempotencyKeyAlreadyExists
		case pqForeignKeyViolation, pqInvalidTextRepr:
			return "", trip.ErrTripNotFound
		}
		return "", fmt.Errorf("予約の記録に失敗: %w", err)
	}
	return b.ID, nil
}

// GetByID はIDから予約を取得する
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetByIdempotencyKey はユーザーの冪等性キーから予約を取得する
func (r *BookingRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*booking.Booking, error) {
	if key == "" {
		return nil, booking.ErrBookingNotFound
	}
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
}

func (r *BookingRepository) getOne(ctx context.Context, query string, args ...any) (*booking.Booking, error) {
	var row bookingRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) || pqCode(err) == pqInvalidTextRepr {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

// List は条件に一致する予約を登録順に返す
func (r *BookingRepository) List(ctx context.Context, f booking.Filter) ([]*booking.Booking, error) {
	var (
		conds []string
		args  []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		conds = append(conds, column+" = $"+strconv.Itoa(len(args)))
	}
	if f.TripID != "" {
		if _, err := uuid.Parse(f.TripID); err != nil {
			return []*booking.Booking{}, nil
		}
		add("trip_id", f.TripID)
	}
	if f.UserID != "" {
		add("user_id", f.UserID)
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + bookingColumns + ` FROM bookings`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	args = append(args, limitArg(f.Limit), max(f.Offset, 0))
	fmt.Fprintf(&sb, " ORDER BY seq LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	bookings := make([]*booking.Booking, len(rows))
	for i := range rows {
		bookings[i] = rows[i].toEntity()
	}
	return bookings, nil
}

// SetStatus は行ロックを取った上で状態遷移表に従って状態を変更する
// 同じ予約への並行した変更は直列化され、後続は遷移後の状態で判定される
func (r *BookingRepository) SetStatus(ctx context.Context, id string, to booking.Status) (*booking.Booking, error) {
	var updated *booking.Booking
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		b, err := applyStatus(ctx, tx, id, to)
		if err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelAndRelease はキャンセルと座席の返却を1つのトランザクションで行う
// 返却すると定員を超える場合はキャンセルのみ確定し、Overflow を立てて返す
func (r *BookingRepository) CancelAndRelease(ctx context.Context, id string) (*booking.Cancellation, error) {
	const release = `UPDATE trips
		SET available_seats = available_seats + $2, updated_at = NOW()
		WHERE id = $1 AND available_seats + $2 <= capacity
		RETURNING available_seats`

	var result booking.Cancellation
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		b, err := applyStatus(ctx, tx, id, booking.StatusCancelled)
		if err != nil {
			return err
		}
		result = booking.Cancellation{Booking: b}

		if err := tx.GetContext(ctx, &result.Available, release, b.TripID, b.NumberOfPeople); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result.Overflow = true
				return nil
			}
			return fmt.Errorf("座席の返却に失敗: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// applyStatus は予約行をロックして状態を変更する
func applyStatus(ctx context.Context, tx *sqlx.Tx, id string, to booking.Status) (*booking.Booking, error) {
	var row bookingRow
	if err := tx.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || pqCode(err) == pqInvalidTextRepr {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}

	b := row.toEntity()
	if err := b.ApplyStatus(to, time.Now()); err != nil {
		return nil, err
	}

	query := `UPDATE bookings SET status = $2, confirmed_at = $3, cancelled_at = $4, updated_at = $5 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, b.ID, string(b.Status), b.ConfirmedAt, b.CancelledAt, b.UpdatedAt); err != nil {
		return nil, fmt.Errorf("予約状態の更新に失敗: %w", err)
	}
	return b, nil
}

var (
	_ booking.Ledger          = (*BookingRepository)(nil)
	_ booking.AtomicCanceller = (*BookingRepository)(nil)
)
