package trip

import (
	"errors"
	"fmt"
)

// ErrValidation は入力値エラー全般を表す（個別エラーはこれをラップする）
var ErrValidation = errors.New("ツアーの入力値が不正です")

// Trip ドメインのエラー定義
var (
	ErrTripNotFound         = errors.New("ツアーが見つかりません")
	ErrTripAlreadyExists    = errors.New("同じIDのツアーが既に存在します")
	ErrInsufficientCapacity = errors.New("空席が不足しています")
	ErrCapacityExceeded     = errors.New("空席数が定員を超えます")
	ErrTitleRequired        = fmt.Errorf("%w: タイトルは必須です", ErrValidation)
	ErrInvalidCapacity      = fmt.Errorf("%w: 定員は1以上である必要があります", ErrValidation)
	ErrInvalidPrice         = fmt.Errorf("%w: 料金は0以上である必要があります", ErrValidation)
	ErrInvalidTripDates     = fmt.Errorf("%w: 終了日は開始日より後である必要があります", ErrValidation)
	ErrSeatCountOutOfRange  = fmt.Errorf("%w: 空席数は0以上かつ定員以下である必要があります", ErrValidation)
)
