package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/FJFJ0400/capture-ai/internal/analysis"
	"github.com/FJFJ0400/capture-ai/internal/capture"
	"github.com/FJFJ0400/capture-ai/internal/database/dbtest"
	"github.com/FJFJ0400/capture-ai/internal/deadletter"
	"github.com/FJFJ0400/capture-ai/internal/events"
	"github.com/FJFJ0400/capture-ai/internal/ocr"
	"github.com/FJFJ0400/capture-ai/internal/purpose"
	"github.com/FJFJ0400/capture-ai/internal/queue"
	"github.com/FJFJ0400/capture-ai/internal/storage"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fixedOCR struct {
	text  string
	calls int
}

func (o *fixedOCR) Extract(context.Context, []byte, string) string {
	o.calls++
	return o.text
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.CaptureEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.CaptureEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type recordingJournal struct {
	deadletter.Journal
	entries []deadletter.Entry
}

func (j *recordingJournal) Record(_ context.Context, e deadletter.Entry) error {
	j.entries = append(j.entries, e)
	return nil
}

type testEnv struct {
	repo      capture.Repository
	purposes  purpose.Repository
	store     storage.Adapter
	ocr       *fixedOCR
	publisher *recordingPublisher
	journal   *recordingJournal
	proc      *Processor
	clock     time.Time
}

func newTestEnv(t *testing.T, text string) *testEnv {
	t.Helper()
	db := dbtest.Open(t, &purpose.Purpose{}, &capture.Capture{})

	cipher, err := storage.NewCipher(testKey)
	require.NoError(t, err)
	store := storage.NewEncrypted(storage.NewLocalStorage(afero.NewMemMapFs(), "/data"), cipher)

	env := &testEnv{
		repo:      capture.NewRepository(db),
		purposes:  purpose.NewRepository(db),
		store:     store,
		ocr:       &fixedOCR{text: text},
		publisher: &recordingPublisher{},
		journal:   &recordingJournal{Journal: deadletter.NewNopJournal()},
		clock:     time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC),
	}
	env.proc = NewProcessor(env.repo, store, env.ocr, env.publisher, env.journal, zerolog.Nop())
	env.proc.now = func() time.Time {
		env.clock = env.clock.Add(time.Second)
		return env.clock
	}
	return env
}

func (e *testEnv) seedCapture(t *testing.T, status capture.Status, purposeID *uuid.UUID) capture.Capture {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	data := []byte("\x89PNG\r\n\x1a\n" + id.String())
	key := storage.CaptureKey(id.String(), "receipt.png")
	require.NoError(t, e.store.Save(ctx, key, data))

	item := capture.Capture{
		ID:                id,
		OriginalFilename:  "receipt.png",
		MimeType:          "image/png",
		SizeBytes:         int64(len(data)),
		StorageKey:        key,
		FileHash:          storage.HashSHA256(data),
		Status:            status,
		PurposeChecklist:  datatypes.JSONSlice[string]{},
		Tags:              datatypes.JSONSlice[string]{},
		ActionSuggestions: datatypes.JSONSlice[analysis.Suggestion]{},
		PurposeID:         purposeID,
		CreatedAt:         e.clock,
		UpdatedAt:         e.clock,
	}
	require.NoError(t, e.repo.Create(ctx, item))
	return item
}

func (e *testEnv) seedPurpose(t *testing.T, active bool) purpose.Purpose {
	t.Helper()
	p := purpose.Purpose{
		ID:             uuid.New(),
		Name:           "Work",
		Instruction:    "Organize meetings and amounts",
		SampleKeywords: datatypes.JSONSlice[string]{"meeting", "amount"},
		IsActive:       active,
		CreatedAt:      e.clock,
		UpdatedAt:      e.clock,
	}
	require.NoError(t, e.purposes.Create(context.Background(), p))
	return p
}

func TestProcess_ReceiptDone(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "  Coffee shop receipt. TOTAL 4.50 paid by card. Thank you!  ")
	item := env.seedCapture(t, capture.StatusUploaded, nil)

	require.NoError(t, env.proc.Process(ctx, item.ID.String()))

	got, err := env.repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, capture.StatusDone, got.Status)
	require.NotNil(t, got.Category)
	assert.Equal(t, analysis.CategoryReceipt, *got.Category)
	require.NotNil(t, got.OCRText)
	assert.Equal(t, "Coffee shop receipt. TOTAL 4.50 paid by card. Thank you!", *got.OCRText)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "Coffee shop receipt. TOTAL 4.50 paid by card.", *got.Summary)
	assert.NotEmpty(t, got.Tags)
	assert.LessOrEqual(t, len(got.Tags), TagLimit)
	assert.Len(t, got.ActionSuggestions, 3)
	assert.Nil(t, got.PurposeSummary)
	assert.Empty(t, got.PurposeChecklist)
	assert.Nil(t, got.FailureReason)
	assert.True(t, got.UpdatedAt.After(item.UpdatedAt))

	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, "DONE", env.publisher.events[0].Status)
	assert.Equal(t, "receipt", env.publisher.events[0].Category)
}

func TestProcess_DoneIsSkipped(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "anything")
	item := env.seedCapture(t, capture.StatusDone, nil)

	require.NoError(t, env.proc.Process(ctx, item.ID.String()))

	got, err := env.repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, capture.StatusDone, got.Status)
	assert.True(t, got.UpdatedAt.Equal(item.UpdatedAt))
	assert.Zero(t, env.ocr.calls)
	assert.Empty(t, env.publisher.events)
}

func TestProcess_RerunAfterDoneIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "Invoice statement balance due.")
	item := env.seedCapture(t, capture.StatusUploaded, nil)

	require.NoError(t, env.proc.Process(ctx, item.ID.String()))
	first, err := env.repo.Get(ctx, item.ID)
	require.NoError(t, err)

	require.NoError(t, env.proc.HandleJob(ctx, queue.Job{ID: item.ID.String()}))
	second, err := env.repo.Get(ctx, item.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, env.ocr.calls)
}

func TestProcess_WithActivePurpose(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "2026-02-06 meeting confirmed. Amount is $42.00.")
	p := env.seedPurpose(t, true)
	item := env.seedCapture(t, capture.StatusUploaded, &p.ID)

	require.NoError(t, env.proc.Process(ctx, item.ID.String()))

	got, err := env.repo.Get(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PurposeSummary)
	assert.Equal(t, "2026-02-06 meeting confirmed. Amount is $42.00.", *got.PurposeSummary)
	assert.Contains(t, got.PurposeChecklist, "Check date: 2026-02-06")
	assert.Contains(t, got.PurposeChecklist, "Check amount: $42.00")
}

func TestProcess_InactivePurposeIsIgnored(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "2026-02-06 meeting confirmed.")
	p := env.seedPurpose(t, false)
	item := env.seedCapture(t, capture.StatusUploaded, &p.ID)

	require.NoError(t, env.proc.Process(ctx, item.ID.String()))

	got, err := env.repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PurposeSummary)
	assert.Empty(t, got.PurposeChecklist)
}

func TestProcess_TruncatesOCRText(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, strings.Repeat("가", capture.OCRTextLimit+50))
	item := env.seedCapture(t, capture.StatusUploaded, nil)

	require.NoError(t, env.proc.Process(ctx, item.ID.String()))

	got, err := env.repo.Get(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OCRText)
	assert.Equal(t, capture.OCRTextLimit, len([]rune(*got.OCRText)))
}

func TestProcess_EmptyOCRSummaryMentionsFile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "   ")
	item := env.seedCapture(t, capture.StatusUploaded, nil)

	require.NoError(t, env.proc.Process(ctx, item.ID.String()))

	got, err := env.repo.Get(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Summary)
	assert.Contains(t, *got.Summary, "receipt.png")
	assert.Equal(t, analysis.CategoryMisc, *got.Category)
	assert.Empty(t, got.Tags)
}

func TestProcess_Errors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "text")

	err := env.proc.Process(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrCaptureNotFound)

	err = env.proc.Process(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrCaptureNotFound)

	item := env.seedCapture(t, capture.StatusUploaded, nil)
	require.NoError(t, env.store.Remove(ctx, item.StorageKey))

	err = env.proc.Process(ctx, item.ID.String())
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	got, err := env.repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, capture.StatusProcessing, got.Status)
}

func TestProcess_PublishErrorDoesNotFailJob(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "order shipping tracking")
	env.publisher.err = errors.New("broker down")
	item := env.seedCapture(t, capture.StatusUploaded, nil)

	require.NoError(t, env.proc.Process(ctx, item.ID.String()))
}

func TestMarkFailed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "text")
	item := env.seedCapture(t, capture.StatusProcessing, nil)

	long := strings.Repeat("x", capture.FailureReasonLimit+100)
	env.proc.MarkFailed(ctx, queue.Job{ID: item.ID.String(), Attempts: 3}, long)

	got, err := env.repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, capture.StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Len(t, *got.FailureReason, capture.FailureReasonLimit)

	require.Len(t, env.journal.entries, 1)
	assert.Equal(t, item.ID.String(), env.journal.entries[0].CaptureID)
	assert.Equal(t, 3, env.journal.entries[0].Attempts)

	require.Len(t, env.publisher.events, 1)
	assert.True(t, env.publisher.events[0].IsFailure())
	assert.Len(t, env.publisher.events[0].FailureReason, capture.FailureReasonLimit)
}

// stallingJournal висит до отмены контекста, как недоступный Mongo.
type stallingJournal struct {
	deadletter.Journal
	calls int
}

func (j *stallingJournal) Record(ctx context.Context, _ deadletter.Entry) error {
	j.calls++
	<-ctx.Done()
	return ctx.Err()
}

func TestMarkFailed_StalledJournalDoesNotBlockFailedStatus(t *testing.T) {
	env := newTestEnv(t, "text")
	item := env.seedCapture(t, capture.StatusProcessing, nil)
	journal := &stallingJournal{Journal: deadletter.NewNopJournal()}
	env.proc.journal = journal
	env.proc.journalTimeout = 50 * time.Millisecond

	ackCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	started := time.Now()
	env.proc.MarkFailed(ackCtx, queue.Job{ID: item.ID.String(), Attempts: 3}, "ocr crashed")
	assert.Less(t, time.Since(started), 400*time.Millisecond)
	assert.Equal(t, 1, journal.calls)

	got, err := env.repo.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, capture.StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "ocr crashed", *got.FailureReason)

	require.Len(t, env.publisher.events, 1)
	assert.True(t, env.publisher.events[0].IsFailure())
}

func TestMarkFailed_MissingCaptureIsLoggedOnly(t *testing.T) {
	env := newTestEnv(t, "text")

	assert.NotPanics(t, func() {
		env.proc.MarkFailed(context.Background(), queue.Job{ID: uuid.NewString(), Attempts: 3}, "capture not found")
	})
	assert.Len(t, env.journal.entries, 1)
	assert.Empty(t, env.publisher.events)
}

func TestProcessor_FallbackOCR(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "")
	env.proc.ocr = ocr.NewPlaceholder()
	item := env.seedCapture(t, capture.StatusFailed, nil)

	require.NoError(t, env.proc.Process(ctx, item.ID.String()))

	got, err := env.repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, capture.StatusDone, got.Status)
	assert.Equal(t, "OCR placeholder output for receipt.png.", *got.OCRText)
}
