package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/trip"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/metrics"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/tracing"
)

const (
	defaultLockTimeout    = 5 * time.Second
	defaultRestoreRetries = 3
	defaultRestoreBackoff = 50 * time.Millisecond
)

// ReservationEngine は座席の確保・返却と予約台帳の更新を1つの単位として扱う
//
// 空席数を変更するのは Inventory.TryAdjust だけで、エンジンは空席数を直接書き換えない。
// Locker が設定されている場合、同一ツアーへの変更はロック内で直列化される。
// ロック取得後の処理は呼び出し元のキャンセルに影響されず最後まで実行される。
type ReservationEngine struct {
	catalog   trip.Catalog
	inventory trip.Inventory
	ledger    booking.Ledger

	locker      Locker
	lockBackend string
	lockTimeout time.Duration

	cache     AvailabilityCache
	publisher booking.EventPublisher
	metrics   *metrics.Metrics

	restoreRetries int
	restoreBackoff time.Duration
	pending        *pendingRestores
}

// EngineOption は ReservationEngine の任意設定
type EngineOption func(*ReservationEngine)

// WithLocker はツアー単位のロックを設定する（backend はメトリクス用の名前）
func WithLocker(l Locker, backend string) EngineOption {
	return func(e *ReservationEngine) {
		e.locker = l
		e.lockBackend = backend
	}
}

// WithLockTimeout はロック取得の最大待ち時間を設定する
func WithLockTimeout(d time.Duration) EngineOption {
	return func(e *ReservationEngine) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

// WithAvailabilityCache は空席数キャッシュを設定する
func WithAvailabilityCache(c AvailabilityCache) EngineOption {
	return func(e *ReservationEngine) { e.cache = c }
}

// WithEventPublisher は予約イベントの通知先を設定する
func WithEventPublisher(p booking.EventPublisher) EngineOption {
	return func(e *ReservationEngine) { e.publisher = p }
}

// WithMetrics はメトリクスを設定する
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *ReservationEngine) { e.metrics = m }
}

// WithRestoreRetry は座席返却の再試行回数と間隔を設定する
func WithRestoreRetry(retries int, backoff time.Duration) EngineOption {
	return func(e *ReservationEngine) {
		if retries >= 0 {
			e.restoreRetries = retries
		}
		e.restoreBackoff = backoff
	}
}

// NewReservationEngine は ReservationEngine を作成する
func NewReservationEngine(catalog trip.Catalog, inventory trip.Inventory, ledger booking.Ledger, opts ...EngineOption) *ReservationEngine {
	e := &ReservationEngine{
		catalog:        catalog,
		inventory:      inventory,
		ledger:         ledger,
		lockBackend:    "none",
		lockTimeout:    defaultLockTimeout,
		restoreRetries: defaultRestoreRetries,
		restoreBackoff: defaultRestoreBackoff,
		pending:        newPendingRestores(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReserveInput は座席確保の入力
type ReserveInput struct {
	TripID         string
	UserID         string
	PartySize      int
	IdempotencyKey string // 任意。同じユーザー・同じキーの再送には既存の予約を返す
}

// Validate は状態に触れる前に入力を検証する
func (in ReserveInput) Validate() error {
	if in.TripID == "" {
		return booking.ErrTripIDRequired
	}
	if in.UserID == "" {
		return booking.ErrUserIDRequired
	}
	if in.PartySize < 1 {
		return booking.ErrInvalidPartySize
	}
	return nil
}

// Reserve は座席を確保し、保留中の予約を作成する
func (e *ReservationEngine) Reserve(ctx context.Context, in ReserveInput) (*booking.Booking, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ReservationEngine.Reserve", trace.WithAttributes(
		attribute.String("trip.id", in.TripID),
		attribute.Int("booking.party_size", in.PartySize),
	))
	defer span.End()

	b, replayed, err := e.reserve(ctx, in)
	if err != nil {
		e.metrics.ObserveReservation(reserveResult(err))
		recordError(span, err)
		logger.Ctx(ctx).Debug("座席の確保に失敗",
			zap.String("trip_id", in.TripID),
			zap.Int("party_size", in.PartySize),
			zap.Error(err),
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("booking.id", b.ID),
		attribute.Bool("booking.replayed", replayed),
	)
	if replayed {
		e.metrics.ObserveReservation(metrics.ResultReplayed)
		return b, nil
	}

	e.metrics.ObserveReservation(metrics.ResultSuccess)
	logger.Ctx(ctx).Info("座席を確保しました",
		zap.String("booking_id", b.ID),
		zap.String("trip_id", b.TripID),
		zap.Int("party_size", b.NumberOfPeople),
		zap.Int("total_price", b.TotalPrice),
	)
	e.publish(ctx, booking.EventReserved, b)
	return b, nil
}

func (e *ReservationEngine) reserve(ctx context.Context, in ReserveInput) (*booking.Booking, bool, error) {
	if err := in.Validate(); err != nil {
		return nil, false, err
	}

	if in.IdempotencyKey != "" {
		existing, err := e.ledger.GetByIdempotencyKey(ctx, in.UserID, in.IdempotencyKey)
		if err == nil {
			b, err := replayOf(existing, in)
			return b, err == nil, err
		}
		if !errors.Is(err, booking.ErrBookingNotFound) {
			return nil, false, fmt.Errorf("冪等性チェックに失敗: %w", err)
		}
	}

	t, err := e.catalog.GetByID(ctx, in.TripID)
	if err != nil {
		return nil, false, fmt.Errorf("ツアー取得に失敗: %w", err)
	}
	info := t.Info()

	b := booking.NewBooking(in.TripID, in.UserID, in.IdempotencyKey, in.PartySize, info.PriceFor(in.PartySize))
	if err := b.Validate(); err != nil {
		return nil, false, err
	}

	var replayed bool
	err = e.withTripLock(ctx, in.TripID, func(ctx context.Context) error {
		available, err := e.inventory.TryAdjust(ctx, in.TripID, -in.PartySize)
		if err != nil {
			return fmt.Errorf("座席の確保に失敗: %w", err)
		}

		if _, appendErr := e.ledger.Append(ctx, b); appendErr != nil {
			restored, rbErr := e.restoreSeats(ctx, in.TripID, in.PartySize)
			if rbErr != nil {
				logger.Ctx(ctx).Error("確保した座席を戻せませんでした",
					zap.String("trip_id", in.TripID),
					zap.Int("party_size", in.PartySize),
					zap.NamedError("append_error", appendErr),
					zap.Error(rbErr),
				)
				e.invalidate(ctx, in.TripID)
				return fmt.Errorf("%w: %w", ErrRollbackFailed, errors.Join(appendErr, rbErr))
			}
			e.afterAdjust(ctx, in.TripID, restored)

			// 同じ冪等性キーの並行リクエストが先に記録していた
			if errors.Is(appendErr, booking.ErrIdempotencyKeyAlreadyExists) {
				existing, err := e.ledger.GetByIdempotencyKey(ctx, in.UserID, in.IdempotencyKey)
				if err == nil {
					if b, err = replayOf(existing, in); err != nil {
						return err
					}
					replayed = true
					return nil
				}
			}
			return fmt.Errorf("予約の記録に失敗: %w", appendErr)
		}

		e.afterAdjust(ctx, in.TripID, available)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return b, replayed, nil
}

// replayOf は冪等性キーが一致した既存の予約を返す
// ツアーか人数が異なる場合は別の依頼にキーを使い回したとみなす
func replayOf(existing *booking.Booking, in ReserveInput) (*booking.Booking, error) {
	if existing.TripID != in.TripID || existing.NumberOfPeople != in.PartySize {
		return nil, booking.ErrIdempotencyKeyConflict
	}
	return existing, nil
}

// Cancel は予約をキャンセルし、座席を返却する
// 状態遷移が拒否された場合、空席数は変更されない
func (e *ReservationEngine) Cancel(ctx context.Context, id string) (*booking.Booking, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ReservationEngine.Cancel", trace.WithAttributes(
		attribute.String("booking.id", id),
	))
	defer span.End()

	b, err := e.cancel(ctx, id)
	e.metrics.ObserveTransition(string(booking.StatusCancelled), transitionResult(err))
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	logger.Ctx(ctx).Info("予約をキャンセルしました",
		zap.String("booking_id", b.ID),
		zap.String("trip_id", b.TripID),
		zap.Int("restored_seats", b.NumberOfPeople),
	)
	e.publish(ctx, booking.EventCancelled, b)
	return b, nil
}

func (e *ReservationEngine) cancel(ctx context.Context, id string) (*booking.Booking, error) {
	current, err := e.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := booking.Transition(current.Status, booking.StatusCancelled); err != nil {
		return nil, err
	}

	var cancelled *booking.Booking
	err = e.withTripLock(ctx, current.TripID, func(ctx context.Context) error {
		if ac, ok := e.ledger.(booking.AtomicCanceller); ok {
			res, err := ac.CancelAndRelease(ctx, id)
			if err != nil {
				return err
			}
			cancelled = res.Booking
			if res.Overflow {
				e.logOverflow(ctx, res.Booking)
				e.invalidate(ctx, res.Booking.TripID)
				return nil
			}
			e.afterAdjust(ctx, res.Booking.TripID, res.Available)
			return nil
		}

		updated, err := e.ledger.SetStatus(ctx, id, booking.StatusCancelled)
		if err != nil {
			return err
		}
		cancelled = updated

		available, err := e.restoreSeats(ctx, updated.TripID, updated.NumberOfPeople)
		switch {
		case err == nil:
			e.afterAdjust(ctx, updated.TripID, available)
		case errors.Is(err, trip.ErrCapacityExceeded):
			e.logOverflow(ctx, updated)
			e.invalidate(ctx, updated.TripID)
		default:
			// キャンセルは確定済み。返却は保留し、監査時に再適用する
			e.pending.add(updated.TripID, updated.NumberOfPeople)
			logger.Ctx(ctx).Error("キャンセル済み予約の座席返却を保留しました",
				zap.String("booking_id", updated.ID),
				zap.String("trip_id", updated.TripID),
				zap.Int("party_size", updated.NumberOfPeople),
				zap.Error(err),
			)
			e.invalidate(ctx, updated.TripID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// logOverflow は返却すると定員を超える＝台帳と空席数が既にずれていることを記録する
// キャンセル自体は成立させ、監査で検出する
func (e *ReservationEngine) logOverflow(ctx context.Context, b *booking.Booking) {
	logger.Ctx(ctx).Error("返却後の空席数が定員を超えるため返却を見送りました",
		zap.String("booking_id", b.ID),
		zap.String("trip_id", b.TripID),
		zap.Int("party_size", b.NumberOfPeople),
	)
}

// Confirm は保留中の予約を確定する（空席数は変わらない）
func (e *ReservationEngine) Confirm(ctx context.Context, id string) (*booking.Booking, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ReservationEngine.Confirm", trace.WithAttributes(
		attribute.String("booking.id", id),
	))
	defer span.End()

	b, err := e.ledger.SetStatus(ctx, id, booking.StatusConfirmed)
	e.metrics.ObserveTransition(string(booking.StatusConfirmed), transitionResult(err))
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	logger.Ctx(ctx).Info("予約を確定しました",
		zap.String("booking_id", b.ID),
		zap.String("trip_id", b.TripID),
	)
	e.publish(ctx, booking.EventConfirmed, b)
	return b, nil
}

// Get は予約を取得する
func (e *ReservationEngine) Get(ctx context.Context, id string) (*booking.Booking, error) {
	return e.ledger.GetByID(ctx, id)
}

// List は登録順に予約一覧を返す
func (e *ReservationEngine) List(ctx context.Context, filter booking.Filter) ([]*booking.Booking, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, booking.ErrInvalidStatus
	}
	return e.ledger.List(ctx, filter)
}

// Availability はツアーの空席数を返す（キャッシュがあれば優先する）
// 予約可否の判定には使わない。判定は常に TryAdjust が行う
func (e *ReservationEngine) Availability(ctx context.Context, tripID string) (int, error) {
	if e.cache != nil {
		if n, err := e.cache.GetAvailableCount(ctx, tripID); err == nil {
			return n, nil
		}
	}

	n, err := e.inventory.GetAvailable(ctx, tripID)
	if err != nil {
		return 0, err
	}
	e.metrics.SetAvailableSeats(tripID, n)

	if e.cache != nil {
		if err := e.cache.SetAvailableCount(ctx, tripID, n); err != nil {
			logger.Ctx(ctx).Warn("空席数キャッシュの更新に失敗", zap.String("trip_id", tripID), zap.Error(err))
		}
	}
	return n, nil
}

// withTripLock はツアーロックを取得して fn を実行する
// ロック取得前に ctx が終了した場合は何も変更せずに戻る
func (e *ReservationEngine) withTripLock(ctx context.Context, tripID string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.locker == nil {
		return fn(context.WithoutCancel(ctx))
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()

	start := time.Now()
	release, err := e.locker.Acquire(lockCtx, tripLockKey(tripID))
	e.metrics.ObserveLockWait(e.lockBackend, err == nil, time.Since(start))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ロック待機中に中断されました: %w", ctxErr)
		}
		return fmt.Errorf("%w: %w", ErrConcurrencyTimeout, err)
	}
	defer release()

	return fn(context.WithoutCancel(ctx))
}

// restoreSeats は座席を返却する。一時的な失敗のみ再試行する
func (e *ReservationEngine) restoreSeats(ctx context.Context, tripID string, n int) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= e.restoreRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(e.restoreBackoff * time.Duration(attempt))
		}
		available, err := e.inventory.TryAdjust(ctx, tripID, n)
		if err == nil {
			return available, nil
		}
		if errors.Is(err, trip.ErrCapacityExceeded) || errors.Is(err, trip.ErrTripNotFound) {
			return 0, err
		}
		lastErr = err
		logger.Ctx(ctx).Warn("座席の返却を再試行します",
			zap.String("trip_id", tripID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return 0, lastErr
}

func (e *ReservationEngine) afterAdjust(ctx context.Context, tripID string, available int) {
	e.metrics.SetAvailableSeats(tripID, available)
	e.invalidate(ctx, tripID)
}

func (e *ReservationEngine) invalidate(ctx context.Context, tripID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, tripID); err != nil {
		logger.Ctx(ctx).Warn("空席数キャッシュの削除に失敗", zap.String("trip_id", tripID), zap.Error(err))
	}
}

// publish は予約イベントを送信する。失敗しても予約結果には影響しない
func (e *ReservationEngine) publish(ctx context.Context, t booking.EventType, b *booking.Booking) {
	if e.publisher == nil {
		return
	}
	err := e.publisher.Publish(context.WithoutCancel(ctx), booking.NewEvent(t, b))
	e.metrics.ObserveEvent(string(t), err)
	if err != nil {
		logger.Ctx(ctx).Warn("予約イベントの送信に失敗",
			zap.String("event_type", string(t)),
			zap.String("booking_id", b.ID),
			zap.Error(err),
		)
	}
}

func reserveResult(err error) string {
	switch {
	case errors.Is(err, trip.ErrInsufficientCapacity):
		return metrics.ResultInsufficient
	case errors.Is(err, booking.ErrValidation), errors.Is(err, trip.ErrValidation),
		errors.Is(err, booking.ErrIdempotencyKeyConflict):
		return metrics.ResultInvalid
	case errors.Is(err, trip.ErrTripNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, ErrConcurrencyTimeout):
		return metrics.ResultTimeout
	default:
		return metrics.ResultError
	}
}

func transitionResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, booking.ErrInvalidTransition):
		return metrics.ResultInvalid
	case errors.Is(err, booking.ErrBookingNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, ErrConcurrencyTimeout):
		return metrics.ResultTimeout
	default:
		return metrics.ResultError
	}
}

// isExpected は呼び出し元に返すべき業務上のエラーかを返す
func isExpected(err error) bool {
	return errors.Is(err, trip.ErrInsufficientCapacity) ||
		errors.Is(err, trip.ErrTripNotFound) ||
		errors.Is(err, trip.ErrValidation) ||
		errors.Is(err, booking.ErrValidation) ||
		errors.Is(err, booking.ErrBookingNotFound) ||
		errors.Is(err, booking.ErrInvalidTransition) ||
		errors.Is(err, booking.ErrIdempotencyKeyConflict)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	if isExpected(err) {
		return
	}
	span.SetStatus(codes.Error, err.Error())
}
