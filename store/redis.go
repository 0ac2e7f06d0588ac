package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sweetpotato0/modelgate/convctx"
	"github.com/sweetpotato0/modelgate/message"
)

// RedisStore implements ConversationStore using Redis. Messages live in a
// list per conversation, the durable context in a hash.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	maxDepth int64
}

// RedisConfig holds Redis configuration for conversations.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
	// MaxDepth caps the retained history length per conversation; zero
	// keeps everything.
	MaxDepth int
}

// NewRedisStore creates a new Redis-based conversation store.
func NewRedisStore(config *RedisConfig) *RedisStore {
	if config == nil {
		config = &RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "modelgate:conv:",
			TTL:    24 * time.Hour,
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client:   client,
		prefix:   config.Prefix,
		ttl:      config.TTL,
		maxDepth: int64(config.MaxDepth),
	}
}

func (s *RedisStore) GetHistory(ctx context.Context, conversationID string) (*History, error) {
	raw, err := s.client.LRange(ctx, s.messagesKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation messages: %w", err)
	}

	history := &History{Context: convctx.Context{}}
	for _, item := range raw {
		var msg message.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode stored message: %w", err)
		}
		history.Messages = append(history.Messages, &msg)
	}

	ctxMap, err := s.client.HGetAll(ctx, s.contextKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation context: %w", err)
	}
	for k, v := range ctxMap {
		history.Context[k] = v
	}
	return history, nil
}

func (s *RedisStore) Append(ctx context.Context, conversationID string, msg *message.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := s.messagesKey(conversationID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, raw)
	if s.maxDepth > 0 {
		pipe.LTrim(ctx, key, -s.maxDepth, -1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *RedisStore) SetContext(ctx context.Context, conversationID string, c convctx.Context) error {
	key := s.contextKey(conversationID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(c) > 0 {
		fields := make(map[string]any, len(c))
		for k, v := range c {
			fields[k] = v
		}
		pipe.HSet(ctx, key, fields)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save conversation context: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) messagesKey(id string) string {
	return s.prefix + id + ":messages"
}

func (s *RedisStore) contextKey(id string) string {
	return s.prefix + id + ":context"
}
