package trip

import "context"

// Catalog はツアーカタログ（メタデータ管理）のインターフェース
type Catalog interface {
	// Create は新しいツアーを作成する
	Create(ctx context.Context, trip *Trip) error

	// GetByID はIDからツアーを取得する
	GetByID(ctx context.Context, id string) (*Trip, error)

	// List はツアー一覧を取得する
	List(ctx context.Context, limit, offset int) ([]*Trip, error)

	// UpdatePrice は1人あたりの料金を更新する（既存予約の金額には影響しない）
	UpdatePrice(ctx context.Context, id string, pricePerPerson int) (*Trip, error)
}

// Inventory はツアーの空席数を管理するインターフェース
// 空席数を変更できるのは TryAdjust のみで、同一ツアーに対して線形化可能でなければならない
type Inventory interface {
	// GetAvailable は現在の空席数を返す
	GetAvailable(ctx context.Context, tripID string) (int, error)

	// TryAdjust は空席数に delta を加算し、新しい空席数を返す
	// 結果が0未満なら ErrInsufficientCapacity、定員超過なら ErrCapacityExceeded
	TryAdjust(ctx context.Context, tripID string, delta int) (int, error)
}
