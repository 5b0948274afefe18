package application

import "errors"

var (
	// ErrConcurrencyTimeout はツアーロックを制限時間内に取得できなかったことを表す（再試行可能）
	ErrConcurrencyTimeout = errors.New("他の予約処理が混み合っています。しばらくしてから再試行してください")

	// ErrRollbackFailed は台帳への記録失敗後に確保した座席を戻せなかったことを表す
	ErrRollbackFailed = errors.New("座席確保の取り消しに失敗しました")
)
