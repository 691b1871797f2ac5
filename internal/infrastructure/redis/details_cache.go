package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/event"
)

var ErrCacheMiss = errors.New("キャッシュが見つかりません")

// DetailsCache はイベント詳細スナップショットのキャッシュを管理する
type DetailsCache struct {
	client *redis.Client
}

// NewDetailsCache は新しいDetailsCacheインスタンスを作成する
func NewDetailsCache(client *redis.Client) *DetailsCache {
	return &DetailsCache{client: client}
}

// Get はイベント詳細をキャッシュから取得する
func (c *DetailsCache) Get(ctx context.Context, id event.ID) (*event.Details, error) {
	key := c.detailsKey(id)
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	var details event.Details
	if err := json.Unmarshal(val, &details); err != nil {
		return nil, fmt.Errorf("キャッシュのデシリアライズに失敗: %w", err)
	}
	return &details, nil
}

// Set はイベント詳細をキャッシュに保存する
func (c *DetailsCache) Set(ctx context.Context, details *event.Details, ttl time.Duration) error {
	val, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("キャッシュのシリアライズに失敗: %w", err)
	}
	key := c.detailsKey(details.ID)
	if err := c.client.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はイベント詳細のキャッシュを無効化する
func (c *DetailsCache) Invalidate(ctx context.Context, id event.ID) error {
	key := c.detailsKey(id)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *DetailsCache) detailsKey(id event.ID) string {
	return fmt.Sprintf("event:details:%d", id)
}
