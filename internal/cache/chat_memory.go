package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bargom/hivemind/pkg/metrics"
)

// ChatMemoryTTL is how long a conversation transcript survives without new turns.
const ChatMemoryTTL = 15 * time.Minute

// ChatMemory stores per-chat conversation transcripts.
type ChatMemory struct {
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewChatMemory wraps c. A zero ttl uses ChatMemoryTTL.
func NewChatMemory(c Cache, ttl time.Duration, logger *slog.Logger) *ChatMemory {
	if ttl <= 0 {
		ttl = ChatMemoryTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatMemory{cache: c, ttl: ttl, logger: logger.With("component", "chat_memory")}
}

func chatKey(chatID string) string {
	return "chat:" + chatID
}

// History returns the transcript for chatID, or "" when there is none.
func (m *ChatMemory) History(ctx context.Context, chatID string) (string, error) {
	if chatID == "" {
		return "", nil
	}
	data, err := m.cache.Get(ctx, chatKey(chatID))
	switch {
	case errors.Is(err, ErrCacheMiss):
		metrics.Global().RecordCacheOperation("get", "miss")
		return "", nil
	case err != nil:
		metrics.Global().RecordCacheOperation("get", "error")
		return "", fmt.Errorf("reading chat history: %w", err)
	}
	metrics.Global().RecordCacheOperation("get", "hit")
	return string(data), nil
}

// AppendTurn records one question/answer exchange and refreshes the TTL.
func (m *ChatMemory) AppendTurn(ctx context.Context, chatID, question, answer string) error {
	if chatID == "" {
		return nil
	}
	if err := m.cache.Append(ctx, chatKey(chatID), []byte(FormatTurn(question, answer)), m.ttl); err != nil {
		metrics.Global().RecordCacheOperation("append", "error")
		return fmt.Errorf("updating chat history: %w", err)
	}
	metrics.Global().RecordCacheOperation("append", "ok")
	m.logger.DebugContext(ctx, "chat memory updated", "chat_id", chatID)
	return nil
}

// FormatTurn renders one exchange in transcript form.
func FormatTurn(question, answer string) string {
	return "User: " + question + "\nAssistant: " + answer + "\n"
}
