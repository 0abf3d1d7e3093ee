package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestDispatch_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	redisOpt := asynq.RedisClientOpt{Addr: opts.Addr}

	client := asynq.NewClient(redisOpt)
	defer client.Close()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	d, err := New(client, DefaultConfig(), nil)
	require.NoError(t, err)

	inst := instance()
	require.NoError(t, d.Dispatch(ctx, inst))
	require.NoError(t, d.Dispatch(ctx, inst))

	tasks, err := inspector.ListPendingTasks("DISCORD_HIVEMIND_ADAPTER")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "wf-1", tasks[0].ID)
	assert.Equal(t, "QUESTION_COMMAND_RECEIVED", tasks[0].Type)

	var p Payload
	require.NoError(t, json.Unmarshal(tasks[0].Payload, &p))
	assert.Equal(t, "X is a thing.", p.Content.Response.Message)
}
