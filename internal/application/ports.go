package application

import "context"

// Locker はツアー単位の排他ロック
// Acquire は ctx が終了するまで待機し、取得できた場合は解放関数を返す
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// AvailabilityCache は空席数の読み取りキャッシュ
// Get のエラーはすべてキャッシュミスとして扱う
type AvailabilityCache interface {
	GetAvailableCount(ctx context.Context, tripID string) (int, error)
	SetAvailableCount(ctx context.Context, tripID string, count int) error
	Invalidate(ctx context.Context, tripID string) error
}

func tripLockKey(tripID string) string {
	return "trip:" + tripID
}
