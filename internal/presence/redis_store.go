// Package presence tracks per-conversation unread counters and online
// status in Redis.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps unread counters keyed by recipient and peer. Counters
// survive restarts; presence keys expire on their own.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis using a URL of the form
// redis://host:port/db.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: "synapse:"}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "synapse:"}
}

func (s *RedisStore) unreadKey(recipientID, senderID string) string {
	return s.prefix + "unread:" + recipientID + ":" + senderID
}

func (s *RedisStore) onlineKey(userID string) string {
	return s.prefix + "online:" + userID
}

// IncrementUnread bumps the counter for a message from sender to recipient.
func (s *RedisStore) IncrementUnread(ctx context.Context, recipientID, senderID string) error {
	if err := s.client.Incr(ctx, s.unreadKey(recipientID, senderID)).Err(); err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}

// UnreadCount returns the unread counter for a single conversation. A
// missing key reads as zero.
func (s *RedisStore) UnreadCount(ctx context.Context, recipientID, senderID string) (int, error) {
	count, err := s.client.Get(ctx, s.unreadKey(recipientID, senderID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get unread count: %w", err)
	}
	return count, nil
}

// ResetUnread clears the counter when the recipient opens the conversation.
func (s *RedisStore) ResetUnread(ctx context.Context, recipientID, senderID string) error {
	if err := s.client.Del(ctx, s.unreadKey(recipientID, senderID)).Err(); err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

// MarkOnline refreshes the caller's presence key. The TTL doubles as the
// heartbeat interval, so a silent client falls offline on its own.
func (s *RedisStore) MarkOnline(ctx context.Context, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.onlineKey(userID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("mark online: %w", err)
	}
	return nil
}

func (s *RedisStore) MarkOffline(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.onlineKey(userID)).Err(); err != nil {
		return fmt.Errorf("mark offline: %w", err)
	}
	return nil
}

func (s *RedisStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	count, err := s.client.Exists(ctx, s.onlineKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check online: %w", err)
	}
	return count > 0, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
