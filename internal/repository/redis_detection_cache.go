package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cosounds/presenced/internal/model"
)

// detectionKeyPrefix は検出キャッシュのRedisキープレフィックス。
const detectionKeyPrefix = "detection:"

// RedisDetectionCache はRedisを使用した検出キャッシュ。
// スキャナーが報告した全検出を登録の有無に関わらずTTL付きで保持する。
// TTLが切れたデバイスは「最近目撃されていない」とみなされる。
type RedisDetectionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDetectionCache はRedisDetectionCacheを生成する。
func NewRedisDetectionCache(client *redis.Client, ttl time.Duration) *RedisDetectionCache {
	return &RedisDetectionCache{client: client, ttl: ttl}
}

// Store は検出情報をTTL付きで保存する。既存エントリは上書きされる。
func (c *RedisDetectionCache) Store(ctx context.Context, detection *model.CachedDetection) error {
	data, err := json.Marshal(detection)
	if err != nil {
		return fmt.Errorf("failed to marshal detection: %w", err)
	}

	key := detectionKey(detection.MAC)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store detection: %w", err)
	}

	return nil
}

// List は保持中の全検出情報を返す。TTL切れのエントリは含まれない。
// SCANでキーを収集し、MGETでまとめて取得する。
func (c *RedisDetectionCache) List(ctx context.Context) ([]*model.CachedDetection, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.client.Scan(ctx, cursor, detectionKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection keys: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return nil, nil
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get detections: %w", err)
	}

	detections := make([]*model.CachedDetection, 0, len(values))
	for _, value := range values {
		// MGETとTTL失効の競合でnilが混ざることがある
		if value == nil {
			continue
		}
		data, ok := value.(string)
		if !ok {
			continue
		}

		detection := &model.CachedDetection{}
		if err := json.Unmarshal([]byte(data), detection); err != nil {
			// 壊れたエントリはTTLで消えるため読み飛ばす
			continue
		}
		detections = append(detections, detection)
	}

	return detections, nil
}

// detectionKey は検出キャッシュのRedisキーを構築する。
func detectionKey(mac string) string {
	return detectionKeyPrefix + mac
}

// compile-time interface check
var _ DetectionCache = (*RedisDetectionCache)(nil)
