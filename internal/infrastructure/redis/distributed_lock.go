package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/logger"
)

var (
	ErrLockNotAcquired = errors.New("ロックを取得できませんでした")
	ErrLockNotOwned    = errors.New("ロックの所有者ではありません")
)

// 所有者確認と削除・延長をアトミックに行う
var (
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock は Redis を使用した分散ロック
type DistributedLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// LockManager は分散ロックを管理する
type LockManager struct {
	client *redis.Client
}

func NewLockManager(client *redis.Client) *LockManager {
	return &LockManager{client: client}
}

// AcquireLock はロックを取得する
func (m *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error) {
	lockKey := fmt.Sprintf("lock:%s", key)
	lockValue := uuid.New().String()

	ok, err := m.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	return &DistributedLock{
		client: m.client,
		key:    lockKey,
		value:  lockValue,
		ttl:    ttl,
	}, nil
}

// AcquireLockWithRetry はリトライ付きでロックを取得する
// maxRetries が 0 以下の場合は ctx が終了するまで再試行する
func (m *LockManager) AcquireLockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (*DistributedLock, error) {
	for i := 0; maxRetries <= 0 || i < maxRetries; i++ {
		lock, err := m.AcquireLock(ctx, key, ttl)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockNotAcquired, ctx.Err())
		case <-time.After(retryDelay):
		}
	}
	return nil, ErrLockNotAcquired
}

// Release はロックを解放する
func (l *DistributedLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return fmt.Errorf("ロック解放に失敗: %w", err)
	}
	if result == 0 {
		return ErrLockNotOwned
	}
	return nil
}

// Extend はロックの有効期限を延長する
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("ロック延長に失敗: %w", err)
	}
	if result == 0 {
		return ErrLockNotOwned
	}
	l.ttl = ttl
	return nil
}

// TripLocker は複数インスタンス間でツアー単位の排他を行う
// 保持中は TTL の 1/3 ごとに有効期限を延長し、処理が長引いてもロックが失効しないようにする
type TripLocker struct {
	manager    *LockManager
	ttl        time.Duration
	maxRetries int
	retryDelay time.Duration
}

// NewTripLocker は TripLocker を作成する
func NewTripLocker(manager *LockManager, ttl time.Duration, maxRetries int, retryDelay time.Duration) *TripLocker {
	return &TripLocker{manager: manager, ttl: ttl, maxRetries: maxRetries, retryDelay: retryDelay}
}

// Acquire はキーのロックを取得し、解放関数を返す
// 待機は ctx の終了で打ち切られる
func (t *TripLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := t.manager.AcquireLockWithRetry(ctx, key, t.ttl, t.maxRetries, t.retryDelay)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go t.keepAlive(lock, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if err := lock.Release(rctx); err != nil {
				logger.Warn("ツアーロックの解放に失敗しました", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

func (t *TripLocker) keepAlive(lock *DistributedLock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := t.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := lock.Extend(ctx, t.ttl)
			cancel()
			if err != nil {
				logger.Warn("ツアーロックの延長に失敗しました", zap.String("key", lock.key), zap.Error(err))
				if errors.Is(err, ErrLockNotOwned) {
					return
				}
			}
		}
	}
}
