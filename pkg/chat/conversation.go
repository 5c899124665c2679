// Package chat implements the grounded streaming chat orchestrator: retrieve
// permissioned context, stream model output over a bidirectional session,
// persist the conversation, and honor cooperative stop commands.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Message is one stored conversation turn. Timestamps are ISO-8601.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ConversationStore keeps per-user conversations in redis with a sliding
// expiration. A conversation is capped at the most recent HistoryLimit
// messages.
type ConversationStore struct {
	rdb          redis.UniversalClient
	ttl          time.Duration
	historyLimit int
}

// NewConversationStore builds the store. Zero values default to a 7-day TTL
// and a 20-message cap.
func NewConversationStore(rdb redis.UniversalClient, ttl time.Duration, historyLimit int) *ConversationStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &ConversationStore{rdb: rdb, ttl: ttl, historyLimit: historyLimit}
}

func currentConversationKey(username string) string {
	return "conversation:user:" + username
}

func conversationKey(conversationID string) string {
	return "conversation:" + conversationID
}

// CurrentConversationID returns the user's active conversation id, creating
// a fresh one when none exists. Both lookups renew the sliding TTL.
func (s *ConversationStore) CurrentConversationID(ctx context.Context, username string) (string, error) {
	key := currentConversationKey(username)

	id, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		s.rdb.Expire(ctx, key, s.ttl)
		return id, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to load conversation id: %w", err)
	}

	id = uuid.NewString()
	if err := s.rdb.Set(ctx, key, id, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to create conversation id: %w", err)
	}
	return id, nil
}

// History returns the stored messages of a conversation, oldest first.
func (s *ConversationStore) History(ctx context.Context, conversationID string) ([]Message, error) {
	data, err := s.rdb.Get(ctx, conversationKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return messages, nil
}

// Append adds the user/assistant exchange, truncates to the most recent
// HistoryLimit messages and persists with a renewed TTL.
func (s *ConversationStore) Append(ctx context.Context, conversationID string, exchange ...Message) error {
	messages, err := s.History(ctx, conversationID)
	if err != nil {
		return err
	}

	messages = append(messages, exchange...)
	if len(messages) > s.historyLimit {
		messages = messages[len(messages)-s.historyLimit:]
	}

	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	if err := s.rdb.Set(ctx, conversationKey(conversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to persist conversation: %w", err)
	}
	return nil
}

// HistoryLimit returns the configured message cap.
func (s *ConversationStore) HistoryLimit() int {
	return s.historyLimit
}
