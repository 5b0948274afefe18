package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/booking"
)

// Ledger は予約台帳のインメモリ実装
type Ledger struct {
	mu       sync.RWMutex
	bookings []*booking.Booking // 登録順
	byID     map[string]*booking.Booking
	byKey    map[string]*booking.Booking // userID + 冪等性キー
}

// NewLedger は空の台帳を作成する
func NewLedger() *Ledger {
	return &Ledger{
		byID:  make(map[string]*booking.Booking),
		byKey: make(map[string]*booking.Booking),
	}
}

// Append は予約を追記する
func (l *Ledger) Append(_ context.Context, b *booking.Booking) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b.IdempotencyKey != "" {
		if _, ok := l.byKey[idempotencyIndex(b.UserID, b.IdempotencyKey)]; ok {
			return "", booking.ErrIdempotencyKeyAlreadyExists
		}
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}

	stored := b.Clone()
	l.bookings = append(l.bookings, stored)
	l.byID[stored.ID] = stored
	if stored.IdempotencyKey != "" {
		l.byKey[idempotencyIndex(stored.UserID, stored.IdempotencyKey)] = stored
	}
	return stored.ID, nil
}

// GetByID はIDから予約を取得する
func (l *Ledger) GetByID(_ context.Context, id string) (*booking.Booking, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.byID[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return b.Clone(), nil
}

// GetByIdempotencyKey はユーザーの冪等性キーから予約を取得する
func (l *Ledger) GetByIdempotencyKey(_ context.Context, userID, key string) (*booking.Booking, error) {
	if key == "" {
		return nil, booking.ErrBookingNotFound
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.byKey[idempotencyIndex(userID, key)]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return b.Clone(), nil
}

// List は登録順に条件に一致する予約を返す
func (l *Ledger) List(_ context.Context, filter booking.Filter) ([]*booking.Booking, error) {
	l.mu.RLock()
	matched := make([]*booking.Booking, 0, len(l.bookings))
	for _, b := range l.bookings {
		if filter.Matches(b) {
			matched = append(matched, b.Clone())
		}
	}
	l.mu.RUnlock()
	return page(matched, filter.Limit, filter.Offset), nil
}

// SetStatus は状態遷移表に従って予約の状態を変更する
func (l *Ledger) SetStatus(_ context.Context, id string, to booking.Status) (*booking.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.byID[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	if err := b.ApplyStatus(to, time.Now()); err != nil {
		return nil, err
	}
	return b.Clone(), nil
}

func idempotencyIndex(userID, key string) string {
	return userID + "\x00" + key
}

// page は limit/offset でスライスを切り出す（limit <= 0 は無制限）
func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ booking.Ledger = (*Ledger)(nil)
