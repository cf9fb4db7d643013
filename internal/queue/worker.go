package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/FJFJ0400/capture-ai/internal/observability"
)

// Handler обрабатывает одну задачу. Ошибка расходует попытку.
type Handler func(ctx context.Context, job Job) error

// FailureHook вызывается, когда задача окончательно провалилась.
type FailureHook func(ctx context.Context, job Job, message string)

type WorkerOptions struct {
	Concurrency  int
	PollInterval time.Duration
	ReapInterval time.Duration
	AckTimeout   time.Duration
	OnFailure    FailureHook
	Logger       zerolog.Logger
}

func (o WorkerOptions) withDefaults() WorkerOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.ReapInterval <= 0 {
		o.ReapInterval = 15 * time.Second
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = 5 * time.Second
	}
	return o
}

type Worker struct {
	queue   Queue
	handler Handler
	opts    WorkerOptions
	log     zerolog.Logger
}

func NewWorker(q Queue, handler Handler, opts WorkerOptions) *Worker {
	opts = opts.withDefaults()
	return &Worker{
		queue:   q,
		handler: handler,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "worker").Logger(),
	}
}

// Run запускает пул обработчиков и ждёт их остановки по ctx.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("concurrency", w.opts.Concurrency).Msg("worker started")

	var wg sync.WaitGroup
	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reapLoop(ctx)
	}()

	wg.Wait()
	w.log.Info().Msg("worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := w.ProcessNext(ctx)
		if err != nil {
			w.log.Error().Err(err).Int("slot", slot).Msg("failed to claim job")
		}
		if processed && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.opts.PollInterval):
		}
	}
}

// ProcessNext забирает и обрабатывает одну задачу.
// Возвращает false, если очередь пуста.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.Claim(ctx)
	if errors.Is(err, ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	logger := w.log.With().Str("job_id", job.ID).Int("attempt", job.Attempts).Logger()
	logger.Debug().Msg("job claimed")

	handlerCtx, cancelHandler := ctx, context.CancelFunc(func() {})
	if lease := job.LeaseTimeout(); lease > 0 {
		// после истечения лизинга задачу может забрать другой воркер
		handlerCtx, cancelHandler = context.WithTimeout(ctx, lease)
	}
	start := time.Now()
	handleErr := w.handler(handlerCtx, job)
	cancelHandler()
	observability.JobDuration.Observe(time.Since(start).Seconds())

	// Остановка процесса: задачу вернёт реапер после истечения лизинга.
	if handleErr != nil && ctx.Err() != nil {
		logger.Warn().Err(handleErr).Msg("job interrupted by shutdown")
		return true, nil
	}

	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.AckTimeout)
	defer cancel()

	if handleErr == nil {
		if err := w.queue.Complete(ackCtx, job); err != nil {
			w.recordAckError(logger, err)
			return true, nil
		}
		observability.RecordJobResult("completed")
		logger.Info().Msg("job completed")
		return true, nil
	}

	terminal, err := w.queue.Fail(ackCtx, job, handleErr)
	if err != nil {
		w.recordAckError(logger, err)
		return true, nil
	}
	if !terminal {
		observability.RecordJobResult("retry")
		logger.Warn().Err(handleErr).Msg("job failed, retry scheduled")
		return true, nil
	}

	observability.RecordJobResult("failed")
	logger.Error().Err(handleErr).Msg("job failed permanently")
	if w.opts.OnFailure != nil {
		w.opts.OnFailure(ackCtx, job, handleErr.Error())
	}
	return true, nil
}

func (w *Worker) recordAckError(logger zerolog.Logger, err error) {
	if errors.Is(err, ErrLeaseLost) {
		observability.RecordJobResult("lease_lost")
		logger.Warn().Msg("job lease lost before ack")
		return
	}
	logger.Error().Err(err).Msg("failed to ack job")
}

func (w *Worker) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Reap(ctx)
		}
	}
}

// Reap возвращает в очередь задачи с истёкшим лизингом и обновляет метрики глубины.
func (w *Worker) Reap(ctx context.Context) {
	jobs, err := w.queue.ReapExpired(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to reap expired jobs")
		return
	}
	for _, job := range jobs {
		observability.RecordJobResult("failed")
		w.log.Error().Str("job_id", job.ID).Msg("job lease expired, attempts exhausted")
		if w.opts.OnFailure != nil {
			w.opts.OnFailure(ctx, job, job.Error)
		}
	}

	if stats, err := w.queue.Stats(ctx); err == nil {
		observability.SetQueueDepth(stats.Waiting, stats.Delayed, stats.Active, stats.Completed, stats.Failed)
	}
}
