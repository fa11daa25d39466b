package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisTokenKey is the sorted set holding upstream tokens.
const DefaultRedisTokenKey = "hotelhub:upstream:tokens"

// redisKeep bounds how many tokens the sorted set retains.
const redisKeep = 4

// RedisTokenStore keeps tokens in a Redis sorted set scored by creation time.
type RedisTokenStore struct {
	client *redis.Client
	key    string
}

// NewRedisTokenStore creates a Redis-backed token store. An empty key uses
// DefaultRedisTokenKey.
func NewRedisTokenStore(client *redis.Client, key string) *RedisTokenStore {
	if key == "" {
		key = DefaultRedisTokenKey
	}
	return &RedisTokenStore{client: client, key: key}
}

type redisToken struct {
	ID           string    `json:"id"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s *RedisTokenStore) Latest(ctx context.Context) (CachedToken, error) {
	members, err := s.client.ZRevRange(ctx, s.key, 0, 0).Result()
	if err != nil {
		return CachedToken{}, fmt.Errorf("upstream: latest token: %w", err)
	}
	if len(members) == 0 {
		return CachedToken{}, ErrNoToken
	}

	var rt redisToken
	if err := json.Unmarshal([]byte(members[0]), &rt); err != nil {
		return CachedToken{}, fmt.Errorf("upstream: decode cached token: %w", err)
	}
	return CachedToken(rt), nil
}

// Save adds token, trims older entries and lets the key expire with the
// newest token.
func (s *RedisTokenStore) Save(ctx context.Context, token CachedToken) (CachedToken, error) {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(redisToken(token))
	if err != nil {
		return CachedToken{}, fmt.Errorf("upstream: encode token: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.key, redis.Z{Score: float64(token.CreatedAt.UnixMilli()), Member: raw})
		pipe.ZRemRangeByRank(ctx, s.key, 0, -(redisKeep + 1))
		pipe.ExpireAt(ctx, s.key, token.ExpiresAt)
		return nil
	})
	if err != nil {
		return CachedToken{}, fmt.Errorf("upstream: save token: %w", err)
	}
	return token, nil
}

func (s *RedisTokenStore) DeleteAll(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("upstream: delete tokens: %w", err)
	}
	return nil
}
