package memory

import (
	"context"
	"errors"
	"sync"
)

// ErrLockNotAcquired は待機中にコンテキストが終了しロックを取得できなかったことを表す
var ErrLockNotAcquired = errors.New("ロックを取得できませんでした")

// KeyedLocker はキー（ツアーID）ごとのプロセス内ロック
// sync.Mutex と違い、待機をコンテキストで打ち切れる
type KeyedLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

// NewKeyedLocker は新しい KeyedLocker を作成する
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{slots: make(map[string]*slot)}
}

// Acquire はキーのロックを取得し、解放関数を返す
func (l *KeyedLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.waiters++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.done(key, s)
		return nil, errors.Join(ErrLockNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.done(key, s)
		})
	}, nil
}

// done は待機者数を減らし、誰も使っていないスロットを破棄する
func (l *KeyedLocker) done(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, key)
	}
}
