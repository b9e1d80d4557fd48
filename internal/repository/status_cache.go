package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"smart-erp-go/internal/model"
)

// statusCacheTTL 之后缓存过期，轮询回落到数据库。
const statusCacheTTL = 24 * time.Hour

// StatusCache 缓存文件处理状态快照，供状态轮询快速读取。数据库始终是权威来源。
type StatusCache interface {
	Set(ctx context.Context, snap model.StatusSnapshot) error
	// Get 在缓存未命中时返回 (nil, nil)。
	Get(ctx context.Context, fileID uint) (*model.StatusSnapshot, error)
	Delete(ctx context.Context, fileID uint) error
}

// NewStatusCache 返回基于 Redis 的缓存；redisClient 为 nil 时返回不做任何事的实现。
func NewStatusCache(redisClient *redis.Client) StatusCache {
	if redisClient == nil {
		return noopStatusCache{}
	}
	return &redisStatusCache{redisClient: redisClient}
}

type redisStatusCache struct {
	redisClient *redis.Client
}

func (c *redisStatusCache) key(fileID uint) string {
	return "ingest:status:" + strconv.FormatUint(uint64(fileID), 10)
}

func (c *redisStatusCache) Set(ctx context.Context, snap model.StatusSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.redisClient.Set(ctx, c.key(snap.FileID), data, statusCacheTTL).Err()
}

func (c *redisStatusCache) Get(ctx context.Context, fileID uint) (*model.StatusSnapshot, error) {
	data, err := c.redisClient.Get(ctx, c.key(fileID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var snap model.StatusSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *redisStatusCache) Delete(ctx context.Context, fileID uint) error {
	return c.redisClient.Del(ctx, c.key(fileID)).Err()
}

type noopStatusCache struct{}

func (noopStatusCache) Set(context.Context, model.StatusSnapshot) error { return nil }

func (noopStatusCache) Get(context.Context, uint) (*model.StatusSnapshot, error) { return nil, nil }

func (noopStatusCache) Delete(context.Context, uint) error { return nil }
