package repository

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// HashIndexRepository 是基于 Redis 集合的摘要去重索引，
// 实现管道的 HashIndex 契约。SADD 天然幂等，
// 多个管道并发注册同一摘要无害。
type HashIndexRepository struct {
	redisClient *redis.Client
}

// NewHashIndexRepository 创建一个新的 HashIndexRepository 实例。
func NewHashIndexRepository(redisClient *redis.Client) *HashIndexRepository {
	return &HashIndexRepository{redisClient: redisClient}
}

func (r *HashIndexRepository) key(digest string) string {
	return "hashindex:" + digest
}

// Upsert 把文件 ID 注册到摘要对应的集合中（幂等）。
func (r *HashIndexRepository) Upsert(ctx context.Context, digest, fileID string) error {
	return r.redisClient.SAdd(ctx, r.key(digest), fileID).Err()
}

// Lookup 返回摘要对应的全部文件 ID。
func (r *HashIndexRepository) Lookup(ctx context.Context, digest string) ([]string, error) {
	return r.redisClient.SMembers(ctx, r.key(digest)).Result()
}
