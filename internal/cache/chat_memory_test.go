package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	mem := NewChatMemory(NewRedisCache(rdb, Config{Prefix: "hivemind"}), 0, nil)
	ctx := context.Background()

	history, err := mem.History(ctx, "chat-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, mem.AppendTurn(ctx, "chat-1", "What is X?", "X is a thing."))
	require.NoError(t, mem.AppendTurn(ctx, "chat-1", "And Y?", "Y too."))

	history, err = mem.History(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "User: What is X?\nAssistant: X is a thing.\nUser: And Y?\nAssistant: Y too.\n", history)
	assert.Equal(t, ChatMemoryTTL, mr.TTL("hivemind:chat:chat-1"))
}

func TestChatMemory_EmptyChatID(t *testing.T) {
	c := NewMemoryCache(Config{})
	defer c.Close()
	mem := NewChatMemory(c, time.Minute, nil)

	require.NoError(t, mem.AppendTurn(context.Background(), "", "q", "a"))
	history, err := mem.History(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Equal(t, int64(0), c.Stats().Keys)
}

func TestChatMemory_BackendFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	mem := NewChatMemory(NewRedisCache(rdb, Config{}), 0, nil)
	_, err := mem.History(context.Background(), "chat-1")
	assert.Error(t, err)
	assert.Error(t, mem.AppendTurn(context.Background(), "chat-1", "q", "a"))
}
