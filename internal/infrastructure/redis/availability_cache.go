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

// AvailabilityCache はクラス単位の空席数を読み取り用にキャッシュする
// 座席確保の判定には使用しない
type AvailabilityCache struct {
	client *redis.Client
}

// NewAvailabilityCache は新しいAvailabilityCacheインスタンスを作成する
func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

// GetAvailable はクラスの空席数をキャッシュから取得する
func (c *AvailabilityCache) GetAvailable(ctx context.Context, blockSeatID string, classID int) (int, error) {
	val, err := c.client.Get(ctx, availableKey(blockSeatID, classID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// SetAvailable はクラスの空席数をキャッシュに保存する
func (c *AvailabilityCache) SetAvailable(ctx context.Context, blockSeatID string, classID, available int, ttl time.Duration) error {
	if err := c.client.Set(ctx, availableKey(blockSeatID, classID), available, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はクラスの空席数キャッシュを削除する
func (c *AvailabilityCache) Invalidate(ctx context.Context, blockSeatID string, classID int) error {
	if err := c.client.Del(ctx, availableKey(blockSeatID, classID)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func availableKey(blockSeatID string, classID int) string {
	return fmt.Sprintf("blockseat:%s:class:%d:available", blockSeatID, classID)
}
