package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FJFJ0400/capture-ai/internal/cfg"
	"github.com/FJFJ0400/capture-ai/internal/deadletter"
)

func TestOpenRedisAndQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	conf := cfg.Config{RedisAddr: mr.Addr(), QueueName: "bootstrap-jobs", QueueAttempts: 2, QueueBackoff: time.Second}
	client, err := OpenRedis(ctx, conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	q := NewQueue(client, conf)
	created, err := q.Enqueue(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, created)

	job, err := q.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 2, job.MaxAttempts)
}

func TestOpenRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenRedis(context.Background(), cfg.Config{RedisAddr: addr})
	assert.ErrorContains(t, err, "connect to redis")
}

func TestOpenJournal_DisabledWithoutURI(t *testing.T) {
	journal, closeFn, err := OpenJournal(context.Background(), cfg.Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, deadletter.NewNopJournal(), journal)
	assert.NoError(t, closeFn(context.Background()))
}
