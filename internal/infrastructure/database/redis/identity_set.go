package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/hmd/internal/domain/generation"
	"github.com/turtacn/hmd/internal/intelligence/canon"
	"github.com/turtacn/hmd/pkg/errors"
)

// setCommands is the subset of go-redis used by IdentitySet.  Both *Client
// and *redis.Client satisfy it.
type setCommands interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdentitySet is a generation.IdentitySet backed by one Redis set per run.
// SADD is the atomic test-and-insert, so several processes can share a run.
// Members are the fixed-width canon.Key digests of the identities.
type IdentitySet struct {
	rdb setCommands
	key string
	ttl time.Duration
}

var _ generation.IdentitySet = (*IdentitySet)(nil)

// NewIdentitySet stores the identities of runID under prefix+"run:"+runID.
// A positive ttl is refreshed whenever a new identity is added.
func NewIdentitySet(rdb setCommands, prefix, runID string, ttl time.Duration) *IdentitySet {
	return &IdentitySet{
		rdb: rdb,
		key: SetKey(prefix, runID),
		ttl: ttl,
	}
}

// SetKey returns the Redis key holding the identities of runID.
func SetKey(prefix, runID string) string {
	return prefix + "run:" + runID + ":identities"
}

// Key returns the Redis key of the set.
func (s *IdentitySet) Key() string { return s.key }

// TryAdd implements generation.IdentitySet.
func (s *IdentitySet) TryAdd(ctx context.Context, identity string) (bool, error) {
	n, err := s.rdb.SAdd(ctx, s.key, canon.Key(identity)).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "redis SADD failed").WithDetail(s.key)
	}
	if n == 0 {
		return false, nil
	}
	if s.ttl > 0 {
		if err := s.rdb.Expire(ctx, s.key, s.ttl).Err(); err != nil {
			return true, errors.Wrap(err, errors.ErrCodeCacheError, "redis EXPIRE failed").WithDetail(s.key)
		}
	}
	return true, nil
}

// Len implements generation.IdentitySet.
func (s *IdentitySet) Len(ctx context.Context) (int64, error) {
	n, err := s.rdb.SCard(ctx, s.key).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeCacheError, "redis SCARD failed").WithDetail(s.key)
	}
	return n, nil
}

// Clear removes the set.
func (s *IdentitySet) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "redis DEL failed").WithDetail(s.key)
	}
	return nil
}
