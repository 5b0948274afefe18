package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/logger"
)

const auditPageSize = 100

// AuditReport はツアー1件の在庫整合性の監査結果
type AuditReport struct {
	TripID    string
	Capacity  int
	Available int
	Held      int // 保留中・確定済み予約の人数合計
	Restoring int // キャンセル済みで返却待ちの座席数
}

// Drift は capacity - available - held - restoring を返す（整合していれば0）
func (r AuditReport) Drift() int {
	return r.Capacity - r.Available - r.Held - r.Restoring
}

// Consistent は 0 <= available <= capacity かつ available + held + restoring == capacity を満たすかを返す
func (r AuditReport) Consistent() bool {
	return r.Available >= 0 && r.Available <= r.Capacity && r.Drift() == 0
}

// Audit はツアーの空席数と有効な予約の合計が定員と一致するかを検査する
// ツアーロック内で読み取るため、確保と記録の途中状態は観測しない
// 返却待ちの座席があれば、読み取りの前に再適用する
func (e *ReservationEngine) Audit(ctx context.Context, tripID string) (AuditReport, error) {
	t, err := e.catalog.GetByID(ctx, tripID)
	if err != nil {
		return AuditReport{}, fmt.Errorf("ツアー取得に失敗: %w", err)
	}

	report := AuditReport{TripID: tripID, Capacity: t.Capacity}
	err = e.withTripLock(ctx, tripID, func(ctx context.Context) error {
		e.replayPendingRestores(ctx, tripID)
		report.Restoring = e.pending.get(tripID)

		available, err := e.inventory.GetAvailable(ctx, tripID)
		if err != nil {
			return fmt.Errorf("空席数の取得に失敗: %w", err)
		}
		bookings, err := e.ledger.List(ctx, booking.Filter{TripID: tripID})
		if err != nil {
			return fmt.Errorf("予約一覧の取得に失敗: %w", err)
		}
		report.Available = available
		for _, b := range bookings {
			if b.IsActive() {
				report.Held += b.NumberOfPeople
			}
		}
		return nil
	})
	if err != nil {
		return AuditReport{}, err
	}

	e.metrics.SetInventoryDrift(tripID, report.Drift())
	e.metrics.SetAvailableSeats(tripID, report.Available)
	if !report.Consistent() {
		logger.Ctx(ctx).Error("在庫の不整合を検出しました",
			zap.String("trip_id", tripID),
			zap.Int("capacity", report.Capacity),
			zap.Int("available", report.Available),
			zap.Int("held", report.Held),
			zap.Int("restoring", report.Restoring),
			zap.Int("drift", report.Drift()),
		)
	}
	return report, nil
}

// AuditAll は全ツアーを監査する
func (e *ReservationEngine) AuditAll(ctx context.Context) ([]AuditReport, error) {
	var reports []AuditReport
	for offset := 0; ; offset += auditPageSize {
		trips, err := e.catalog.List(ctx, auditPageSize, offset)
		if err != nil {
			return reports, fmt.Errorf("ツアー一覧の取得に失敗: %w", err)
		}
		for _, t := range trips {
			if err := ctx.Err(); err != nil {
				return reports, err
			}
			r, err := e.Audit(ctx, t.ID)
			if err != nil {
				return reports, fmt.Errorf("ツアー %s の監査に失敗: %w", t.ID, err)
			}
			reports = append(reports, r)
		}
		if len(trips) < auditPageSize {
			return reports, nil
		}
	}
}
