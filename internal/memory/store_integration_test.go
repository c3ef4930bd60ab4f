//go:build integration

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// Runs the store against a real server to catch command differences
// miniredis would hide.
func TestRedisStore_RealServer(t *testing.T) {
	ctx := context.Background()
	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client, nil)
	require.NoError(t, s.Put(ctx, rec("a1", "m1", 1, 0.2), time.Hour))
	require.NoError(t, s.Put(ctx, rec("a1", "m2", 2, 0.8), time.Hour))

	recent, err := s.ListRecent(ctx, "a1", RecentQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m1"}, ids(recent))

	_, err = s.UpdateImportance(ctx, "a1", "m1", 0.9, nil)
	require.NoError(t, err)
	ttl, err := client.TTL(ctx, recordKey("a1", "m1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)

	important, err := s.ListImportant(ctx, "a1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids(important))

	n, err := s.Clear(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
