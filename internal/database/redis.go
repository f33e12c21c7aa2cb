package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// OpenRedis はRedisクライアントを生成し、Pingで疎通を確認して返す。
// redisURLはRedisの接続URLを指定する（例: "redis://localhost:6379/0"）。
// 検出キャッシュの格納先として使用する。
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}
