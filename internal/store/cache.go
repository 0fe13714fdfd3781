package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/careai/careai-go/internal/domain"
	"github.com/careai/careai-go/internal/logger"
)

var errCacheMiss = errors.New("cache miss")

const (
	messageTTL             = 24 * time.Hour
	conversationMessageTTL = 24 * time.Hour
)

// Cached decorates a Store with a Redis cache over the hot path:
// the recent-message window read on every turn. Writes go through to the
// inner store first; a cache failure never fails the write.
type Cached struct {
	inner  Store
	client *redis.Client
}

var _ Store = (*Cached)(nil)

// NewCached wraps inner with a Redis cache. The connection is verified
// with a ping so a dead Redis is caught at startup.
func NewCached(inner Store, client *redis.Client) (*Cached, error) {
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cached{inner: inner, client: client}, nil
}

func (c *Cached) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return c.inner.GetConversation(ctx, id)
}

func (c *Cached) InsertConversation(ctx context.Context, conv *domain.Conversation) error {
	return c.inner.InsertConversation(ctx, conv)
}

func (c *Cached) UpdateConversation(ctx context.Context, conv *domain.Conversation) error {
	return c.inner.UpdateConversation(ctx, conv)
}

func (c *Cached) InsertMessage(ctx context.Context, m *domain.Message) error {
	if err := c.inner.InsertMessage(ctx, m); err != nil {
		return err
	}
	if err := c.cacheMessage(ctx, m); err != nil {
		logger.L.Warn("failed to cache message", "message_id", m.ID, "error", err)
	}
	return nil
}

func (c *Cached) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	msgs, err := c.cachedRecent(ctx, conversationID, limit)
	if err == nil {
		return msgs, nil
	}
	if !errors.Is(err, errCacheMiss) {
		logger.L.Warn("recent-message cache read failed", "conversation_id", conversationID, "error", err)
	}
	return c.inner.RecentMessages(ctx, conversationID, limit)
}

func (c *Cached) Close() error {
	if err := c.client.Close(); err != nil {
		logger.L.Warn("redis close error", "error", err)
	}
	return c.inner.Close()
}

func (c *Cached) cacheMessage(ctx context.Context, m *domain.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.messageKey(m.ID), data, messageTTL)
	convKey := c.conversationMessagesKey(m.ConversationID)
	pipe.ZAdd(ctx, convKey, &redis.Z{
		Score:  float64(m.Timestamp.UnixMicro()),
		Member: m.ID,
	})
	pipe.Expire(ctx, convKey, conversationMessageTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *Cached) cachedRecent(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	convKey := c.conversationMessagesKey(conversationID)
	ids, err := c.client.ZRevRange(ctx, convKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	// A partially warmed index (cache enabled after the conversation already
	// had history, or Redis flushed mid-conversation) holds fewer entries
	// than the store does; serving it would shrink the window. Conversations
	// genuinely shorter than limit read through uncached, which is correct.
	if len(ids) < limit {
		return nil, errCacheMiss
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.messageKey(id)
	}
	results, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	msgs := make([]*domain.Message, 0, len(results))
	for _, result := range results {
		if result == nil {
			// A member expired out from under the index; the window is
			// incomplete, so fall back to the store.
			return nil, errCacheMiss
		}
		var m domain.Message
		if err := json.Unmarshal([]byte(result.(string)), &m); err != nil {
			return nil, fmt.Errorf("unmarshal cached message: %w", err)
		}
		msgs = append(msgs, &m)
	}

	// ZRevRange yields newest first; the window contract is ascending.
	reverse(msgs)
	return msgs, nil
}

func (c *Cached) messageKey(id string) string { return "careai:message:" + id }

func (c *Cached) conversationMessagesKey(id string) string {
	return "careai:conversation:" + id + ":messages"
}
