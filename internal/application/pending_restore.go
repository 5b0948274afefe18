package application

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/trip"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/logger"
)

// pendingRestores はキャンセル確定後に返却できなかった座席数（ツアーID別）
// 監査時にツアーロック内で再適用する
type pendingRestores struct {
	mu    sync.Mutex
	seats map[string]int
}

func newPendingRestores() *pendingRestores {
	return &pendingRestores{seats: make(map[string]int)}
}

func (p *pendingRestores) add(tripID string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seats[tripID] += n
}

func (p *pendingRestores) take(tripID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.seats[tripID]
	delete(p.seats, tripID)
	return n
}

func (p *pendingRestores) get(tripID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seats[tripID]
}

// PendingRestores は返却待ちの座席数を返す
func (e *ReservationEngine) PendingRestores(tripID string) int {
	return e.pending.get(tripID)
}

// replayPendingRestores は返却待ちの座席を空席数へ戻す。ツアーロック内で呼ぶ
func (e *ReservationEngine) replayPendingRestores(ctx context.Context, tripID string) {
	n := e.pending.take(tripID)
	if n == 0 {
		return
	}

	available, err := e.restoreSeats(ctx, tripID, n)
	switch {
	case err == nil:
		e.afterAdjust(ctx, tripID, available)
		logger.Ctx(ctx).Info("保留していた座席を返却しました", zap.String("trip_id", tripID), zap.Int("seats", n))
	case errors.Is(err, trip.ErrCapacityExceeded), errors.Is(err, trip.ErrTripNotFound):
		logger.Ctx(ctx).Error("保留していた座席を返却できないため破棄しました",
			zap.String("trip_id", tripID),
			zap.Int("seats", n),
			zap.Error(err),
		)
	default:
		e.pending.add(tripID, n)
		logger.Ctx(ctx).Warn("保留中の座席返却に再度失敗しました",
			zap.String("trip_id", tripID),
			zap.Int("seats", n),
			zap.Error(err),
		)
	}
}
