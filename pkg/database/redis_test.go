package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_Connects(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "storefront:ping", "1", 0).Err())
	assert.True(t, mr.Exists("storefront:ping"))
}

func TestNewRedisClient_PingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := NewRedisClient(context.Background(), RedisConfig{
		Addr:        addr,
		DialTimeout: 100 * time.Millisecond,
	})

	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}

func TestRedisConfig_Defaults(t *testing.T) {
	opts := RedisConfig{Addr: "localhost:6379", DB: 2}.options()

	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, defaultRedisPoolSize, opts.PoolSize)
	assert.Equal(t, defaultRedisDialTimeout, opts.DialTimeout)
	assert.Equal(t, defaultRedisReadTimeout, opts.ReadTimeout)
	assert.Equal(t, defaultRedisWriteTimeout, opts.WriteTimeout)
}
