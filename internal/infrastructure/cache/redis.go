package cache

import (
	"context"
	"fmt"
	"time"

	"tipwallet/internal/config"
	"tipwallet/pkg/logger"

	"github.com/go-redis/redis/v8"
)

var RedisClient *redis.Client

func InitRedis(cfg *config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatalf("连接 Redis 失败: %v", err)
	}

	RedisClient = client
	logger.Infof("Redis 连接成功")
	return client
}
