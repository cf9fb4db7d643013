package purpose

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/FJFJ0400/capture-ai/internal/database/dbtest"
)

// captureRow - минимальная строка capture_items для проверки отвязки.
type captureRow struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	PurposeID *uuid.UUID `gorm:"type:uuid"`
}

func (captureRow) TableName() string { return captureTable }

func newTestService(t *testing.T) (*service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t, &Purpose{}, &captureRow{})

	tick := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(NewRepository(db)).(*service)
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return svc, db
}

func TestList_SeedsDefaultWhenEmpty(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "General", items[0].Name)
	assert.True(t, items[0].IsDefault)
	assert.True(t, items[0].IsActive)
	assert.Equal(t, []string{"schedule", "amount", "request"}, []string(items[0].SampleKeywords))

	again, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, items[0].ID, again[0].ID)
}

func TestCreate_AtMostOneDefault(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	yes := true

	first, err := svc.Create(ctx, CreateInput{Name: "Travel", Instruction: "Track bookings", IsDefault: &yes})
	require.NoError(t, err)
	second, err := svc.Create(ctx, CreateInput{Name: "Study", Instruction: "Track homework", IsDefault: &yes})
	require.NoError(t, err)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID)
	assert.True(t, items[0].IsDefault)
	assert.Equal(t, first.ID, items[1].ID)
	assert.False(t, items[1].IsDefault)
	assert.Empty(t, items[1].SampleKeywords)
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: " ", Instruction: "x"})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Create(ctx, CreateInput{Name: "A"})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Create(ctx, CreateInput{Name: "A", Instruction: "x", SampleKeywords: []string{"ok", ""}})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestUpdate_PartialAndDefaultSwitch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	yes, no := true, false

	a, err := svc.Create(ctx, CreateInput{Name: "A", Instruction: "a", IsDefault: &yes})
	require.NoError(t, err)
	b, err := svc.Create(ctx, CreateInput{Name: "B", Instruction: "b"})
	require.NoError(t, err)

	name := "B2"
	updated, err := svc.Update(ctx, b.ID, UpdateInput{Name: &name, IsDefault: &yes, IsActive: &no, SampleKeywords: []string{"receipt"}})
	require.NoError(t, err)
	assert.Equal(t, "B2", updated.Name)
	assert.Equal(t, "b", updated.Instruction)
	assert.True(t, updated.IsDefault)
	assert.False(t, updated.IsActive)
	assert.Equal(t, []string{"receipt"}, []string(updated.SampleKeywords))
	assert.True(t, updated.UpdatedAt.After(b.UpdatedAt))

	reloaded, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsDefault)

	_, err = svc.Update(ctx, uuid.New(), UpdateInput{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_DetachesCapturesAndPromotesDefault(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	yes, no := true, false

	def, err := svc.Create(ctx, CreateInput{Name: "Default", Instruction: "d", IsDefault: &yes})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Name: "Inactive", Instruction: "i", IsActive: &no})
	require.NoError(t, err)
	next, err := svc.Create(ctx, CreateInput{Name: "Next", Instruction: "n"})
	require.NoError(t, err)

	capID := uuid.New()
	require.NoError(t, db.Create(&captureRow{ID: capID, PurposeID: &def.ID}).Error)

	require.NoError(t, svc.Delete(ctx, def.ID))

	var row captureRow
	require.NoError(t, db.First(&row, "id = ?", capID).Error)
	assert.Nil(t, row.PurposeID)

	promoted, err := svc.Get(ctx, next.ID)
	require.NoError(t, err)
	assert.True(t, promoted.IsDefault)

	assert.ErrorIs(t, svc.Delete(ctx, def.ID), ErrNotFound)
}

func TestResolveForUpload(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	yes, no := true, false

	resolved, err := svc.ResolveForUpload(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, resolved)

	def, err := svc.Create(ctx, CreateInput{Name: "Default", Instruction: "d", IsDefault: &yes})
	require.NoError(t, err)
	inactive, err := svc.Create(ctx, CreateInput{Name: "Off", Instruction: "o", IsActive: &no})
	require.NoError(t, err)

	resolved, err = svc.ResolveForUpload(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, def.ID, *resolved)

	_, err = svc.ResolveForUpload(ctx, &inactive.ID)
	assert.ErrorIs(t, err, ErrInvalid)

	missing := uuid.New()
	_, err = svc.ResolveForUpload(ctx, &missing)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestHandler(t *testing.T) {
	svc, _ := newTestService(t)
	router := chi.NewRouter()
	router.Route("/v1/purposes", NewHandler(svc).Routes)

	body, _ := json.Marshal(map[string]any{"name": "Finance", "instruction": "Track bills", "sampleKeywords": []string{"bill"}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/purposes/", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data Purpose `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Finance", created.Data.Name)
	assert.True(t, created.Data.IsActive)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/purposes/", bytes.NewReader([]byte(`{"name":""}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/v1/purposes/"+uuid.NewString(), bytes.NewReader([]byte(`{"name":"x"}`))))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/purposes/"+created.Data.ID.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), created.Data.ID.String())
}
