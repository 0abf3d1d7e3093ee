package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Addr = ""
	assert.EqualError(t, cfg.Validate(), "redis: addr is required")

	cfg = DefaultConfig()
	cfg.DB = -1
	assert.Error(t, cfg.Validate())
}

func TestClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.DB = 2
	c, err := NewClient(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Redis().Set(ctx, "k", "v", 0).Err())

	opt := c.AsynqOpt()
	assert.Equal(t, mr.Addr(), opt.Addr)
	assert.Equal(t, 2, opt.DB)

	require.NoError(t, c.Close())
	assert.Error(t, c.Ping(ctx))
}
