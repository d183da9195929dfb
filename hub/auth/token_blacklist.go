package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist invalidates access tokens before they expire.
type TokenBlacklist interface {
	// Revoke blacklists a single token by its jti for the remaining lifetime of the token.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error

	IsRevoked(ctx context.Context, jti string) (bool, error)

	// RevokeUserTokens invalidates every token issued to the user before now.
	RevokeUserTokens(ctx context.Context, userId string, ttl time.Duration) error

	IsUserTokenRevoked(ctx context.Context, userId string, issuedAt time.Time) (bool, error)
}

type RedisTokenBlacklist struct {
	client    *redis.Client
	keyPrefix string
}

type RedisArgs struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisTokenBlacklist(args RedisArgs) (*RedisTokenBlacklist, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         args.Addr,
		Password:     args.Password,
		DB:           args.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to redis at %v: %w", args.Addr, err)
	}

	return NewRedisTokenBlacklistWithClient(client), nil
}

func NewRedisTokenBlacklistWithClient(client *redis.Client) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{client: client, keyPrefix: "campus_hub:revoked:"}
}

func (b *RedisTokenBlacklist) jtiKey(jti string) string {
	return b.keyPrefix + "jti:" + jti
}

func (b *RedisTokenBlacklist) userKey(userId string) string {
	return b.keyPrefix + "user:" + userId
}

func (b *RedisTokenBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, b.jtiKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("error revoking token: %w", err)
	}
	return nil
}

func (b *RedisTokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := b.client.Exists(ctx, b.jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("error checking token blacklist: %w", err)
	}
	return exists > 0, nil
}

func (b *RedisTokenBlacklist) RevokeUserTokens(ctx context.Context, userId string, ttl time.Duration) error {
	err := b.client.Set(ctx, b.userKey(userId), time.Now().Unix(), ttl).Err()
	if err != nil {
		return fmt.Errorf("error revoking user tokens: %w", err)
	}
	return nil
}

func (b *RedisTokenBlacklist) IsUserTokenRevoked(ctx context.Context, userId string, issuedAt time.Time) (bool, error) {
	value, err := b.client.Get(ctx, b.userKey(userId)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking user token revocation: %w", err)
	}

	revokedAt, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false, fmt.Errorf("invalid revocation timestamp '%v': %w", value, err)
	}

	return issuedAt.Unix() < revokedAt, nil
}

func (b *RedisTokenBlacklist) Close() error {
	return b.client.Close()
}

var _ TokenBlacklist = (*RedisTokenBlacklist)(nil)

// MemoryTokenBlacklist is only valid for a single server instance.
type MemoryTokenBlacklist struct {
	mu        sync.Mutex
	tokens    map[string]time.Time
	users     map[string]time.Time
	usersTtl  map[string]time.Time
	timeNowFn func() time.Time
}

func NewMemoryTokenBlacklist() *MemoryTokenBlacklist {
	return &MemoryTokenBlacklist{
		tokens:    make(map[string]time.Time),
		users:     make(map[string]time.Time),
		usersTtl:  make(map[string]time.Time),
		timeNowFn: time.Now,
	}
}

func (b *MemoryTokenBlacklist) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens[jti] = b.timeNowFn().Add(ttl)
	return nil
}

func (b *MemoryTokenBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	expiry, ok := b.tokens[jti]
	if !ok {
		return false, nil
	}
	if b.timeNowFn().After(expiry) {
		delete(b.tokens, jti)
		return false, nil
	}
	return true, nil
}

func (b *MemoryTokenBlacklist) RevokeUserTokens(_ context.Context, userId string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.timeNowFn()
	b.users[userId] = now.Truncate(time.Second)
	b.usersTtl[userId] = now.Add(ttl)
	return nil
}

func (b *MemoryTokenBlacklist) IsUserTokenRevoked(_ context.Context, userId string, issuedAt time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	revokedAt, ok := b.users[userId]
	if !ok {
		return false, nil
	}
	if b.timeNowFn().After(b.usersTtl[userId]) {
		delete(b.users, userId)
		delete(b.usersTtl, userId)
		return false, nil
	}
	return issuedAt.Unix() < revokedAt.Unix(), nil
}

var _ TokenBlacklist = (*MemoryTokenBlacklist)(nil)
