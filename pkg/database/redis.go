package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"smart-erp-go/internal/config"
	"smart-erp-go/pkg/log"
)

// RDB 是状态缓存使用的 Redis 客户端，未启用 Redis 时为 nil。
var RDB *redis.Client

const redisPingTimeout = 3 * time.Second

// NewRedis 按配置创建 Redis 客户端，并在超时时间内 PING 一次确认可用。
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  redisPingTimeout,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis %s 失败: %w", cfg.Addr, err)
	}
	return client, nil
}

// InitRedis 初始化全局 RDB，连接失败时退出进程。
func InitRedis(cfg config.RedisConfig) {
	client, err := NewRedis(cfg)
	if err != nil {
		log.Fatal("Redis 初始化失败", err)
	}
	RDB = client
	log.Infof("Redis 已连接: %s (db %d)", cfg.Addr, cfg.DB)
}
