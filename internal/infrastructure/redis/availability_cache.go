package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// AvailabilityCache はツアーの空席数を TTL 付きでキャッシュする
// 表示用の値であり、予約の可否判定には使わない
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAvailabilityCache は新しい AvailabilityCache を作成する
func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

// GetAvailableCount はツアーの空席数をキャッシュから取得する
func (c *AvailabilityCache) GetAvailableCount(ctx context.Context, tripID string) (int, error) {
	val, err := c.client.Get(ctx, availableCountKey(tripID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// SetAvailableCount はツアーの空席数をキャッシュに保存する
func (c *AvailabilityCache) SetAvailableCount(ctx context.Context, tripID string, count int) error {
	if err := c.client.Set(ctx, availableCountKey(tripID), count, c.ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はツアーのキャッシュを無効化する
func (c *AvailabilityCache) Invalidate(ctx context.Context, tripID string) error {
	if err := c.client.Del(ctx, availableCountKey(tripID)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func availableCountKey(tripID string) string {
	return fmt.Sprintf("trip:available:%s", tripID)
}
