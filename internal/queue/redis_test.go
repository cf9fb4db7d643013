package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestQueue(t *testing.T, opts Options) (*redisQueue, *testClock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := NewRedisQueue(rdb, opts).(*redisQueue)
	q.now = clock.Now
	return q, clock, mr
}

func TestBackoffDelay(t *testing.T) {
	base := 2 * time.Second
	assert.Equal(t, 2*time.Second, BackoffDelay(base, 0))
	assert.Equal(t, 2*time.Second, BackoffDelay(base, 1))
	assert.Equal(t, 4*time.Second, BackoffDelay(base, 2))
	assert.Equal(t, 8*time.Second, BackoffDelay(base, 3))
}

func TestEnqueue_DeduplicatesLiveJobs(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, Options{})

	added, err := q.Enqueue(ctx, "cap-1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = q.Enqueue(ctx, "cap-1")
	require.NoError(t, err)
	assert.False(t, added)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Waiting)

	job, err := q.Get(ctx, "cap-1")
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, job.State)
	assert.Equal(t, 0, job.Attempts)
	assert.Equal(t, 3, job.MaxAttempts)
}

func TestEnqueue_ConcurrentCallersAddOnce(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, Options{})

	const callers = 16
	var (
		wg    sync.WaitGroup
		added atomic.Int32
		start = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := q.Enqueue(ctx, "cap-1")
			assert.NoError(t, err)
			if ok {
				added.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), added.Load())
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Waiting)
}

func TestEnqueue_RejectsEmptyID(t *testing.T) {
	q, _, _ := newTestQueue(t, Options{})
	_, err := q.Enqueue(context.Background(), "")
	require.Error(t, err)
}

func TestClaim_EmptyQueue(t *testing.T) {
	q, _, _ := newTestQueue(t, Options{})
	_, err := q.Claim(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestClaimComplete(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, Options{})

	_, err := q.Enqueue(ctx, "cap-1")
	require.NoError(t, err)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cap-1", job.ID)
	assert.Equal(t, StateActive, job.State)
	assert.Equal(t, 1, job.Attempts)

	// пока задача активна, повторная постановка ничего не делает
	added, err := q.Enqueue(ctx, "cap-1")
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, q.Complete(ctx, job))

	stored, err := q.Get(ctx, "cap-1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, stored.State)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Completed: 1}, stats)

	// второй ack того же лизинга
	assert.ErrorIs(t, q.Complete(ctx, job), ErrLeaseLost)
}

func TestEnqueue_AfterCompletionStartsFresh(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, Options{})

	_, err := q.Enqueue(ctx, "cap-1")
	require.NoError(t, err)
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job))

	added, err := q.Enqueue(ctx, "cap-1")
	require.NoError(t, err)
	assert.True(t, added)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Waiting: 1}, stats)

	job, err = q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempts)
}

func TestFail_RetriesWithBackoffThenTerminal(t *testing.T) {
	ctx := context.Background()
	q, clock, _ := newTestQueue(t, Options{MaxAttempts: 3, Backoff: 2 * time.Second})

	_, err := q.Enqueue(ctx, "cap-1")
	require.NoError(t, err)

	// попытка 1: задержка 2s
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	terminal, err := q.Fail(ctx, job, errors.New("boom"))
	require.NoError(t, err)
	assert.False(t, terminal)

	stored, err := q.Get(ctx, "cap-1")
	require.NoError(t, err)
	assert.Equal(t, StateDelayed, stored.State)
	assert.Equal(t, "boom", stored.Error)

	_, err = q.Claim(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	clock.Advance(1999 * time.Millisecond)
	_, err = q.Claim(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	clock.Advance(time.Millisecond)
	job, err = q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempts)

	// попытка 2: задержка 4s
	terminal, err = q.Fail(ctx, job, errors.New("boom again"))
	require.NoError(t, err)
	assert.False(t, terminal)

	clock.Advance(3 * time.Second)
	_, err = q.Claim(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
	clock.Advance(time.Second)
	job, err = q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, job.Attempts)

	// попытка 3: окончательный провал
	terminal, err = q.Fail(ctx, job, errors.New("final"))
	require.NoError(t, err)
	assert.True(t, terminal)

	failed, err := q.FailedJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "cap-1", failed[0].ID)
	assert.Equal(t, StateFailed, failed[0].State)
	assert.Equal(t, "final", failed[0].Error)

	// после провала задачу можно поставить снова
	added, err := q.Enqueue(ctx, "cap-1")
	require.NoError(t, err)
	assert.True(t, added)
	failed, err = q.FailedJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestReapExpired(t *testing.T) {
	ctx := context.Background()
	q, clock, _ := newTestQueue(t, Options{MaxAttempts: 2, Lease: time.Minute})

	_, err := q.Enqueue(ctx, "cap-1")
	require.NoError(t, err)
	job, err := q.Claim(ctx)
	require.NoError(t, err)

	jobs, err := q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	// лизинг истёк: задача возвращается в ожидание
	clock.Advance(time.Minute + time.Millisecond)
	jobs, err = q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	assert.ErrorIs(t, q.Complete(ctx, job), ErrLeaseLost)

	job, err = q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempts)

	// попытки исчерпаны: задача уходит в failed
	clock.Advance(2 * time.Minute)
	jobs, err = q.ReapExpired(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "cap-1", jobs[0].ID)
	assert.Equal(t, StateFailed, jobs[0].State)
	assert.Equal(t, leaseExpiredReason, jobs[0].Error)
}

func TestClaim_IssuesLeaseToken(t *testing.T) {
	ctx := context.Background()
	q, clock, _ := newTestQueue(t, Options{Lease: time.Minute})

	_, err := q.Enqueue(ctx, "cap-1")
	require.NoError(t, err)
	job, err := q.Claim(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, job.Lease)
	assert.True(t, clock.now.Add(time.Minute).Equal(job.LeaseUntil))
	assert.Equal(t, time.Minute, job.LeaseTimeout())

	// чужой токен не подтверждает задачу
	forged := job
	forged.Lease = "someone-else"
	assert.ErrorIs(t, q.Complete(ctx, forged), ErrLeaseLost)
	_, err = q.Fail(ctx, forged, errors.New("boom"))
	assert.ErrorIs(t, err, ErrLeaseLost)

	require.NoError(t, q.Complete(ctx, job))
	stored, err := q.Get(ctx, "cap-1")
	require.NoError(t, err)
	assert.Empty(t, stored.Lease)
}

func TestStaleWorkerCannotAckReclaimedJob(t *testing.T) {
	ctx := context.Background()
	q, clock, _ := newTestQueue(t, Options{MaxAttempts: 3, Lease: time.Minute})

	_, err := q.Enqueue(ctx, "cap-1")
	require.NoError(t, err)
	stale, err := q.Claim(ctx)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	jobs, err := q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	current, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotEqual(t, stale.Lease, current.Lease)

	// старый воркер досчитал после потери лизинга
	assert.ErrorIs(t, q.Complete(ctx, stale), ErrLeaseLost)
	_, err = q.Fail(ctx, stale, errors.New("late failure"))
	assert.ErrorIs(t, err, ErrLeaseLost)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Active: 1}, stats)

	require.NoError(t, q.Complete(ctx, current))
	stored, err := q.Get(ctx, "cap-1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, stored.State)
	assert.Equal(t, 2, stored.Attempts)
}

func TestRetention_PrunesOldestCompleted(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, Options{Retention: 2})

	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(ctx, id)
		require.NoError(t, err)
		job, err := q.Claim(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Complete(ctx, job))
	}

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Completed)

	_, err = q.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = q.Get(ctx, "c")
	require.NoError(t, err)
}

func TestClaim_SkipsRemovedJobs(t *testing.T) {
	ctx := context.Background()
	q, _, mr := newTestQueue(t, Options{})

	_, err := q.Enqueue(ctx, "gone")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "kept")
	require.NoError(t, err)
	mr.Del(q.jobKey("gone"))

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kept", job.ID)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, Options{})

	_, err := q.Enqueue(ctx, "cap-1")
	require.NoError(t, err)
	require.NoError(t, q.Remove(ctx, "cap-1"))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)

	assert.ErrorIs(t, q.Remove(ctx, "cap-1"), ErrJobNotFound)
}
