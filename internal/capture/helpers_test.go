package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/FJFJ0400/capture-ai/internal/database/dbtest"
	"github.com/FJFJ0400/capture-ai/internal/purpose"
	"github.com/FJFJ0400/capture-ai/internal/storage"
	"github.com/FJFJ0400/capture-ai/internal/todo"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// pngBytes - минимальная сигнатура PNG с уникальным хвостом.
func pngBytes(tail string) []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), []byte(tail)...)
}

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *recordingQueue) Enqueue(_ context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return true, nil
}

func (q *recordingQueue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}

// testClock выдаёт время с шагом в секунду (SQLite сравнивает время как строки).
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type testEnv struct {
	db       *gorm.DB
	repo     Repository
	svc      *service
	purposes purpose.Service
	todos    todo.Service
	store    storage.Adapter
	queue    *recordingQueue
	clock    *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.Open(t, &purpose.Purpose{}, &Capture{}, &todo.Todo{})

	cipher, err := storage.NewCipher(testEncryptionKey)
	require.NoError(t, err)
	store := storage.NewEncrypted(storage.NewLocalStorage(afero.NewMemMapFs(), "/data"), cipher)

	repo := NewRepository(db)
	purposes := purpose.NewService(purpose.NewRepository(db))
	todoRepo := todo.NewRepository(db)
	q := &recordingQueue{}
	clock := newTestClock()

	svc := NewService(repo, store, q, purposes, todoRepo, Options{MaxUploadBytes: 1024, MaxUploadFiles: 3}, zerolog.Nop()).(*service)
	svc.now = clock.Now

	return &testEnv{
		db:       db,
		repo:     repo,
		svc:      svc,
		purposes: purposes,
		todos:    todo.NewService(todoRepo, svc),
		store:    store,
		queue:    q,
		clock:    clock,
	}
}
