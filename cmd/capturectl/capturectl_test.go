package main

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/FJFJ0400/capture-ai/internal/capture"
	"github.com/FJFJ0400/capture-ai/internal/cfg"
	"github.com/FJFJ0400/capture-ai/internal/deadletter"
	"github.com/FJFJ0400/capture-ai/internal/queue"
)

type fakeJournal struct {
	deadletter.Journal
	entries []deadletter.Entry
	purged  []string
}

func (j *fakeJournal) List(context.Context, int64) ([]deadletter.Entry, error) {
	return j.entries, nil
}

func (j *fakeJournal) ListByCapture(_ context.Context, captureID string) ([]deadletter.Entry, error) {
	out := []deadletter.Entry{}
	for _, e := range j.entries {
		if e.CaptureID == captureID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (j *fakeJournal) Purge(_ context.Context, captureID string) (int64, error) {
	j.purged = append(j.purged, captureID)
	return 2, nil
}

type fakeCaptures struct {
	item   capture.Capture
	err    error
	events []capture.WatchEvent
	req    capture.WatchRequest
}

func (c *fakeCaptures) GetCapture(context.Context, string) (capture.Capture, error) {
	return c.item, c.err
}

func (c *fakeCaptures) RetryCapture(_ context.Context, id string) (capture.RetryCaptureReply, error) {
	if c.err != nil {
		return capture.RetryCaptureReply{}, c.err
	}
	return capture.RetryCaptureReply{ID: id, Status: string(capture.StatusUploaded)}, nil
}

func (c *fakeCaptures) Watch(_ context.Context, req capture.WatchRequest, fn func(capture.WatchEvent) error) error {
	c.req = req
	for _, ev := range c.events {
		if err := fn(ev); err != nil {
			return err
		}
	}
	return io.EOF
}

func newTestApp(t *testing.T) (*app, queue.Queue, *fakeJournal, *fakeCaptures) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := queue.NewRedisQueue(client, queue.Options{Name: "ctl-jobs", MaxAttempts: 1})

	journal := &fakeJournal{}
	captures := &fakeCaptures{}

	a := newApp(cfg.Config{})
	a.openQueue = func(context.Context) (queue.Queue, closeFunc, error) {
		return q, func() error { return nil }, nil
	}
	a.openJournal = func(context.Context) (deadletter.Journal, closeFunc, error) {
		return journal, func() error { return nil }, nil
	}
	a.dialCaptures = func() (captureClient, closeFunc, error) {
		return captures, func() error { return nil }, nil
	}
	return a, q, journal, captures
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(a)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestQueueCommands(t *testing.T) {
	a, q, _, _ := newTestApp(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "c-1")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "c-2")
	require.NoError(t, err)

	out, err := execute(t, a, "queue", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"waiting": 2`)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	terminal, err := q.Fail(ctx, job, assert.AnError)
	require.NoError(t, err)
	require.True(t, terminal)

	out, err = execute(t, a, "queue", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "CAPTURE")
	assert.Contains(t, out, job.ID)
	assert.Contains(t, out, "1/1")

	out, err = execute(t, a, "queue", "remove", job.ID)
	require.NoError(t, err)
	assert.Equal(t, "removed job "+job.ID+"\n", out)

	_, err = execute(t, a, "queue", "remove", job.ID)
	assert.ErrorIs(t, err, queue.ErrJobNotFound)
}

func TestDeadLetterCommands(t *testing.T) {
	a, _, journal, _ := newTestApp(t)
	failedAt := time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)
	journal.entries = []deadletter.Entry{
		{CaptureID: "c-1", Attempts: 3, Reason: "ocr crashed", FailedAt: failedAt},
		{CaptureID: "c-2", Attempts: 3, Reason: "storage gone", FailedAt: failedAt},
	}

	out, err := execute(t, a, "deadletters", "list", "--capture", "c-2")
	require.NoError(t, err)
	assert.Contains(t, out, "storage gone")
	assert.NotContains(t, out, "ocr crashed")

	out, err = execute(t, a, "dlq", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ocr crashed")

	_, err = execute(t, a, "deadletters", "purge")
	assert.ErrorContains(t, err, "either --capture or --all is required")

	_, err = execute(t, a, "deadletters", "purge", "--all", "--capture", "c-1")
	assert.ErrorContains(t, err, "mutually exclusive")

	out, err = execute(t, a, "deadletters", "purge", "--all")
	require.NoError(t, err)
	assert.Equal(t, "purged 2 entries\n", out)
	assert.Equal(t, []string{""}, journal.purged)
}

func TestCaptureCommands(t *testing.T) {
	a, _, _, captures := newTestApp(t)
	id := uuid.New()
	updatedAt := time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)
	reason := "OCR timed out"

	captures.item = capture.Capture{ID: id, OriginalFilename: "shot.png", Status: capture.StatusDone}
	out, err := execute(t, a, "get", id.String())
	require.NoError(t, err)
	assert.Contains(t, out, `"originalFilename": "shot.png"`)

	out, err = execute(t, a, "retry", id.String())
	require.NoError(t, err)
	assert.Equal(t, "capture "+id.String()+" is UPLOADED\n", out)

	captures.events = []capture.WatchEvent{
		{Type: capture.EventUpdate, Updates: []capture.Capture{{ID: id, Status: capture.StatusFailed, FailureReason: &reason, UpdatedAt: updatedAt}}},
		{Type: capture.EventPing, At: updatedAt},
	}
	out, err = execute(t, a, "watch", "--capture", id.String(), "--since", "2026-02-06T08:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-06T09:00:00Z "+id.String()+" FAILED OCR timed out\n", out)
	assert.Equal(t, capture.WatchRequest{CaptureID: id.String(), Since: "2026-02-06T08:00:00Z"}, captures.req)

	out, err = execute(t, a, "watch", "--pings")
	require.NoError(t, err)
	assert.Contains(t, out, "ping 2026-02-06T09:00:00Z")

	captures.err = status.Error(codes.NotFound, "Capture not found.")
	_, err = execute(t, a, "get", id.String())
	assert.EqualError(t, err, "Capture not found.")
}

func TestDescribeRPCError(t *testing.T) {
	assert.EqualError(t, describeRPCError(status.Error(codes.Unavailable, "connection refused")), "capture API unavailable: connection refused")
	assert.EqualError(t, describeRPCError(status.Error(codes.Internal, "boom")), "Internal: boom")
	assert.Equal(t, assert.AnError, describeRPCError(assert.AnError))
}
