package booking

import "context"

// Filter は予約一覧の絞り込み条件（ゼロ値の項目は条件に含めない）
type Filter struct {
	TripID string
	UserID string
	Status Status
	Limit  int
	Offset int
}

// Matches は予約が条件に一致するかを返す（Limit/Offset は対象外）
func (f Filter) Matches(b *Booking) bool {
	if f.TripID != "" && b.TripID != f.TripID {
		return false
	}
	if f.UserID != "" && b.UserID != f.UserID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}

// Ledger は予約台帳のインターフェース
// 予約は追記と状態変更のみで、状態を変更できるのは SetStatus だけ
type Ledger interface {
	// Append は予約を追記し、採番したIDを返す
	Append(ctx context.Context, booking *Booking) (string, error)

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// GetByIdempotencyKey はユーザーの冪等性キーから予約を取得する（キーはユーザーごとに一意）
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*Booking, error)

	// List は登録順に予約一覧を返す（呼び出しごとに独立したスライス）
	List(ctx context.Context, filter Filter) ([]*Booking, error)

	// SetStatus は状態遷移表に従って状態を変更する
	SetStatus(ctx context.Context, id string, to Status) (*Booking, error)
}

// Cancellation はキャンセルと座席返却をまとめて行った結果
type Cancellation struct {
	Booking   *Booking
	Available int  // 返却後の空席数
	Overflow  bool // 返却すると定員を超えるため返却を見送った
}

// AtomicCanceller は状態変更と座席返却を1つのトランザクションで行える台帳
// 台帳と空席数が同じストアにある場合に実装する
type AtomicCanceller interface {
	CancelAndRelease(ctx context.Context, id string) (*Cancellation, error)
}

// EventPublisher は予約のライフサイクルイベントを外部へ通知する
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
