package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Задачу подтверждает только владелец текущего лизинга.
const ownsLeaseFn = `
local function owns_lease(key, token)
  return redis.call('HGET', key, 'state') == 'active' and redis.call('HGET', key, 'lease') == token
end
`

// Общий хвост для complete/fail/reap: режет список до keep последних
// и удаляет хэши вытесненных задач, если они всё ещё в том же состоянии.
const pruneFn = `
local function prune(list, keep, prefix, state)
  local stale = redis.call('LRANGE', list, keep, -1)
  for _, sid in ipairs(stale) do
    local k = prefix .. 'job:' .. sid
    if redis.call('HGET', k, 'state') == state then
      redis.call('DEL', k)
    end
  end
  redis.call('LTRIM', list, 0, keep - 1)
end
`

var enqueueScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == 'waiting' or state == 'delayed' or state == 'active' then
  return 0
end
redis.call('LREM', KEYS[3], 0, ARGV[1])
redis.call('LREM', KEYS[4], 0, ARGV[1])
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'state', 'waiting', 'attempts', '0', 'max_attempts', ARGV[3], 'error', '', 'created_at', ARGV[2], 'updated_at', ARGV[2])
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`)

var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[2], id)
  redis.call('RPUSH', KEYS[1], id)
  redis.call('HSET', ARGV[3] .. 'job:' .. id, 'state', 'waiting')
end
while true do
  local id = redis.call('LPOP', KEYS[1])
  if not id then
    return false
  end
  local key = ARGV[3] .. 'job:' .. id
  if redis.call('EXISTS', key) == 1 then
    redis.call('ZADD', KEYS[3], ARGV[2], id)
    redis.call('HINCRBY', key, 'attempts', 1)
    redis.call('HSET', key, 'state', 'active', 'lease', ARGV[4], 'lease_until', ARGV[2], 'updated_at', ARGV[1])
    return redis.call('HGETALL', key)
  end
end
`)

var completeScript = redis.NewScript(ownsLeaseFn + pruneFn + `
if not owns_lease(KEYS[1], ARGV[5]) then
  return -1
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[1], 'lease', 'lease_until')
redis.call('HSET', KEYS[1], 'state', 'completed', 'error', '', 'updated_at', ARGV[2])
redis.call('LPUSH', KEYS[3], ARGV[1])
prune(KEYS[3], tonumber(ARGV[3]), ARGV[4], 'completed')
return 1
`)

var failScript = redis.NewScript(ownsLeaseFn + pruneFn + `
if not owns_lease(KEYS[1], ARGV[7]) then
  return -1
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[1], 'lease', 'lease_until')
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0')
local max = tonumber(redis.call('HGET', KEYS[1], 'max_attempts') or '1')
if attempts < max then
  redis.call('HSET', KEYS[1], 'state', 'delayed', 'error', ARGV[3], 'updated_at', ARGV[2])
  redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
  return 0
end
redis.call('HSET', KEYS[1], 'state', 'failed', 'error', ARGV[3], 'updated_at', ARGV[2])
redis.call('LPUSH', KEYS[4], ARGV[1])
prune(KEYS[4], tonumber(ARGV[5]), ARGV[6], 'failed')
return 1
`)

var reapScript = redis.NewScript(pruneFn + `
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local terminal = {}
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[1], id)
  local key = ARGV[3] .. 'job:' .. id
  redis.call('HDEL', key, 'lease', 'lease_until')
  local attempts = tonumber(redis.call('HGET', key, 'attempts') or '0')
  local max = tonumber(redis.call('HGET', key, 'max_attempts') or '1')
  if attempts < max then
    redis.call('HSET', key, 'state', 'waiting', 'updated_at', ARGV[1])
    redis.call('RPUSH', KEYS[2], id)
  else
    redis.call('HSET', key, 'state', 'failed', 'error', ARGV[4], 'updated_at', ARGV[1])
    redis.call('LPUSH', KEYS[3], id)
    terminal[#terminal + 1] = id
  end
end
if #terminal > 0 then
  prune(KEYS[3], tonumber(ARGV[2]), ARGV[3], 'failed')
end
return terminal
`)

const leaseExpiredReason = "job lease expired before completion"

type redisQueue struct {
	rdb  redis.UniversalClient
	opts Options
	now  func() time.Time
}

// NewRedisQueue создаёт очередь поверх Redis. Все переходы состояний - Lua-скрипты.
func NewRedisQueue(rdb redis.UniversalClient, opts Options) Queue {
	return &redisQueue{
		rdb:  rdb,
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

func (q *redisQueue) prefix() string { return q.opts.Name + ":" }
func (q *redisQueue) jobKey(id string) string { return q.prefix() + "job:" + id }
func (q *redisQueue) waitKey() string { return q.prefix() + "wait" }
func (q *redisQueue) delayedKey() string { return q.prefix() + "delayed" }
func (q *redisQueue) activeKey() string { return q.prefix() + "active" }
func (q *redisQueue) completedKey() string { return q.prefix() + "completed" }
func (q *redisQueue) failedKey() string { return q.prefix() + "failed" }

func ms(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (q *redisQueue) Enqueue(ctx context.Context, captureID string) (bool, error) {
	if captureID == "" {
		return false, errors.New("capture id is required")
	}
	res, err := enqueueScript.Run(ctx, q.rdb,
		[]string{q.jobKey(captureID), q.waitKey(), q.completedKey(), q.failedKey()},
		captureID, ms(q.now()), q.opts.MaxAttempts,
	).Int()
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", captureID, err)
	}
	return res == 1, nil
}

func (q *redisQueue) Claim(ctx context.Context) (Job, error) {
	now := q.now()
	fields, err := claimScript.Run(ctx, q.rdb,
		[]string{q.waitKey(), q.delayedKey(), q.activeKey()},
		ms(now), ms(now.Add(q.opts.Lease)), q.prefix(), uuid.NewString(),
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrEmpty
	}
	if err != nil {
		return Job{}, fmt.Errorf("claim job: %w", err)
	}
	return parseJob(pairsToMap(fields)), nil
}

func (q *redisQueue) Complete(ctx context.Context, job Job) error {
	res, err := completeScript.Run(ctx, q.rdb,
		[]string{q.jobKey(job.ID), q.activeKey(), q.completedKey()},
		job.ID, ms(q.now()), q.opts.Retention, q.prefix(), job.Lease,
	).Int()
	if err != nil {
		return fmt.Errorf("complete %s: %w", job.ID, err)
	}
	if res < 0 {
		return ErrLeaseLost
	}
	return nil
}

func (q *redisQueue) Fail(ctx context.Context, job Job, cause error) (bool, error) {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	now := q.now()
	retryAt := now.Add(BackoffDelay(q.opts.Backoff, job.Attempts))
	res, err := failScript.Run(ctx, q.rdb,
		[]string{q.jobKey(job.ID), q.activeKey(), q.delayedKey(), q.failedKey()},
		job.ID, ms(now), message, ms(retryAt), q.opts.Retention, q.prefix(), job.Lease,
	).Int()
	if err != nil {
		return false, fmt.Errorf("fail %s: %w", job.ID, err)
	}
	if res < 0 {
		return false, ErrLeaseLost
	}
	return res == 1, nil
}

// ReapExpired возвращает в очередь задачи упавших воркеров.
// Возвращает задачи, исчерпавшие попытки.
func (q *redisQueue) ReapExpired(ctx context.Context) ([]Job, error) {
	ids, err := reapScript.Run(ctx, q.rdb,
		[]string{q.activeKey(), q.waitKey(), q.failedKey()},
		ms(q.now()), q.opts.Retention, q.prefix(), leaseExpiredReason,
	).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reap expired jobs: %w", err)
	}
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if err != nil {
			job = Job{ID: id, State: StateFailed, Error: leaseExpiredReason}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *redisQueue) Get(ctx context.Context, id string) (Job, error) {
	fields, err := q.rdb.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return Job{}, err
	}
	if len(fields) == 0 {
		return Job{}, ErrJobNotFound
	}
	return parseJob(fields), nil
}

func (q *redisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, q.waitKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	active := pipe.ZCard(ctx, q.activeKey())
	completed := pipe.LLen(ctx, q.completedKey())
	failed := pipe.LLen(ctx, q.failedKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{
		Waiting:   waiting.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

func (q *redisQueue) FailedJobs(ctx context.Context, limit int64) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := q.rdb.LRange(ctx, q.failedKey(), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *redisQueue) Remove(ctx context.Context, id string) error {
	pipe := q.rdb.TxPipeline()
	del := pipe.Del(ctx, q.jobKey(id))
	pipe.LRem(ctx, q.waitKey(), 0, id)
	pipe.ZRem(ctx, q.delayedKey(), id)
	pipe.ZRem(ctx, q.activeKey(), id)
	pipe.LRem(ctx, q.completedKey(), 0, id)
	pipe.LRem(ctx, q.failedKey(), 0, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove job %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func pairsToMap(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i]] = pairs[i+1]
	}
	return m
}

func parseJob(fields map[string]string) Job {
	atoi := func(key string) int {
		v, _ := strconv.Atoi(fields[key])
		return v
	}
	fromMs := func(key string) time.Time {
		v, err := strconv.ParseInt(fields[key], 10, 64)
		if err != nil || v == 0 {
			return time.Time{}
		}
		return time.UnixMilli(v).UTC()
	}
	return Job{
		ID:          fields["id"],
		State:       State(fields["state"]),
		Attempts:    atoi("attempts"),
		MaxAttempts: atoi("max_attempts"),
		Error:       fields["error"],
		Lease:       fields["lease"],
		LeaseUntil:  fromMs("lease_until"),
		CreatedAt:   fromMs("created_at"),
		UpdatedAt:   fromMs("updated_at"),
	}
}
