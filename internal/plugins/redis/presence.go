package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	onlineKey   = "presence:online"
	lastSeenKey = "presence:lastseen"
)

// RedisPresenceStore keeps one global ZSet of online users scored by their
// last heartbeat, plus a hash of last-seen timestamps for users who went
// offline.
type RedisPresenceStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPresenceStore(rdb *redis.Client, ttl time.Duration) *RedisPresenceStore {
	return &RedisPresenceStore{rdb: rdb, ttl: ttl}
}

func (p *RedisPresenceStore) SetOnline(ctx context.Context, userID string, ttl time.Duration) error {
	return p.rdb.ZAdd(ctx, onlineKey, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: userID,
	}).Err()
}

func (p *RedisPresenceStore) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	if err := p.rdb.ZRem(ctx, onlineKey, userID).Err(); err != nil {
		return err
	}
	return p.rdb.HSet(ctx, lastSeenKey, userID, lastSeen.Unix()).Err()
}

// OnlineUsers returns users whose last heartbeat is within the TTL window,
// dropping stale members first so crashed connections age out on their own.
func (p *RedisPresenceStore) OnlineUsers(ctx context.Context) ([]string, error) {
	threshold := time.Now().Add(-p.ttl).Unix()
	p.rdb.ZRemRangeByScore(ctx, onlineKey, "-inf", strconv.FormatInt(threshold, 10))
	return p.rdb.ZRange(ctx, onlineKey, 0, -1).Result()
}

func (p *RedisPresenceStore) LastSeen(ctx context.Context, userID string) (*time.Time, error) {
	raw, err := p.rdb.HGet(ctx, lastSeenKey, userID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	t := time.Unix(unix, 0)
	return &t, nil
}
