package booking

import (
	"errors"
	"fmt"
)

// ErrValidation は入力値エラー全般を表す（個別エラーはこれをラップする）
var ErrValidation = errors.New("予約の入力値が不正です")

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound             = errors.New("予約が見つかりません")
	ErrInvalidTransition           = errors.New("予約の状態を変更できません")
	ErrIdempotencyKeyAlreadyExists = errors.New("同じ冪等性キーの予約が既に存在します")
	ErrIdempotencyKeyConflict      = errors.New("冪等性キーが異なる内容の予約で使用済みです")
	ErrInvalidPartySize            = fmt.Errorf("%w: 人数は1以上である必要があります", ErrValidation)
	ErrTripIDRequired              = fmt.Errorf("%w: ツアーIDは必須です", ErrValidation)
	ErrUserIDRequired              = fmt.Errorf("%w: ユーザーIDは必須です", ErrValidation)
	ErrInvalidTotalPrice           = fmt.Errorf("%w: 合計金額は0以上である必要があります", ErrValidation)
	ErrInvalidStatus               = fmt.Errorf("%w: 不明な予約状態です", ErrValidation)
)
