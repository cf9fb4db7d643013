package queue

import (
	"context"
	"errors"
	"time"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var (
	// ErrEmpty - нет готовых к выполнению задач.
	ErrEmpty       = errors.New("queue is empty")
	ErrJobNotFound = errors.New("job not found")
	// ErrLeaseLost - задача уже не принадлежит этому воркеру (лизинг истёк).
	ErrLeaseLost = errors.New("job lease lost")
)

// Job - задача обработки снимка. ID задачи совпадает с ID снимка.
type Job struct {
	ID          string
	State       State
	Attempts    int
	MaxAttempts int
	Error       string
	// Lease - токен владельца, выданный Claim. Complete и Fail без него не проходят.
	Lease       string
	LeaseUntil  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LeaseTimeout - длина лизинга, отсчитанная от момента захвата.
func (j Job) LeaseTimeout() time.Duration {
	if j.LeaseUntil.IsZero() || !j.LeaseUntil.After(j.UpdatedAt) {
		return 0
	}
	return j.LeaseUntil.Sub(j.UpdatedAt)
}

type Stats struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

type Options struct {
	Name        string
	MaxAttempts int
	Backoff     time.Duration
	Retention   int64
	Lease       time.Duration
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "capture-jobs"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
	if o.Retention <= 0 {
		o.Retention = 1000
	}
	if o.Lease <= 0 {
		o.Lease = 2 * time.Minute
	}
	return o
}

// BackoffDelay - экспоненциальная задержка base * 2^(attempt-1).
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<uint(attempt-1))
}

// Enqueuer - сторона, которая ставит задачи (API).
type Enqueuer interface {
	Enqueue(ctx context.Context, captureID string) (bool, error)
}

// Queue - полный контракт очереди для воркера и операторских инструментов.
type Queue interface {
	Enqueuer
	Claim(ctx context.Context) (Job, error)
	Complete(ctx context.Context, job Job) error
	Fail(ctx context.Context, job Job, cause error) (terminal bool, err error)
	ReapExpired(ctx context.Context) ([]Job, error)
	Get(ctx context.Context, id string) (Job, error)
	Stats(ctx context.Context) (Stats, error)
	FailedJobs(ctx context.Context, limit int64) ([]Job, error)
	Remove(ctx context.Context, id string) error
}
