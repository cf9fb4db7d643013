package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/FJFJ0400/capture-ai/internal/analysis"
	"github.com/FJFJ0400/capture-ai/internal/database"
	"github.com/FJFJ0400/capture-ai/internal/observability"
	"github.com/FJFJ0400/capture-ai/internal/purpose"
	"github.com/FJFJ0400/capture-ai/internal/queue"
	"github.com/FJFJ0400/capture-ai/internal/storage"
)

// PurposeResolver проверяет цель загрузки или подставляет цель по умолчанию.
type PurposeResolver interface {
	ResolveForUpload(ctx context.Context, id *uuid.UUID) (*uuid.UUID, error)
}

// TodoDetacher отвязывает задачи от удаляемого снимка.
type TodoDetacher interface {
	DetachCapture(ctx context.Context, captureID uuid.UUID) error
}

type UploadFile struct {
	Filename string
	MimeType string
	Data     []byte
}

type UploadResult struct {
	Item      Capture `json:"item"`
	Duplicate bool    `json:"duplicate"`
}

// ListQuery - сырые параметры списка из запроса.
type ListQuery struct {
	Query     string
	Category  string
	Status    string
	PurposeID string
	From      string
	To        string
}

type Options struct {
	MaxUploadBytes int64
	MaxUploadFiles int
}

func (o Options) withDefaults() Options {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 10 * 1024 * 1024
	}
	if o.MaxUploadFiles <= 0 {
		o.MaxUploadFiles = 10
	}
	return o
}

type Service interface {
	Upload(ctx context.Context, files []UploadFile, purposeID *uuid.UUID) ([]UploadResult, error)
	List(ctx context.Context, q ListQuery) ([]Capture, error)
	Get(ctx context.Context, id uuid.UUID) (Capture, error)
	ReadFile(ctx context.Context, id uuid.UUID) (Capture, []byte, error)
	Retry(ctx context.Context, id uuid.UUID) (Capture, error)
	Delete(ctx context.Context, id uuid.UUID) error
	UpdatesSince(ctx context.Context, since time.Time, id *uuid.UUID) ([]Capture, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type service struct {
	repo     Repository
	store    storage.Adapter
	queue    queue.Enqueuer
	purposes PurposeResolver
	todos    TodoDetacher
	opts     Options
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(
	repo Repository,
	store storage.Adapter,
	q queue.Enqueuer,
	purposes PurposeResolver,
	todos TodoDetacher,
	opts Options,
	logger zerolog.Logger,
) Service {
	return &service{
		repo:     repo,
		store:    store,
		queue:    q,
		purposes: purposes,
		todos:    todos,
		opts:     opts.withDefaults(),
		log:      logger.With().Str("component", "capture").Logger(),
		now:      database.Now,
	}
}

func (s *service) Upload(ctx context.Context, files []UploadFile, purposeID *uuid.UUID) ([]UploadResult, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if len(files) > s.opts.MaxUploadFiles {
		return nil, fmt.Errorf("%w: at most %d files per request", ErrTooManyFiles, s.opts.MaxUploadFiles)
	}
	for i := range files {
		files[i].MimeType = NormalizeMime(files[i].MimeType)
		if err := ValidateType(files[i].Filename, files[i].MimeType); err != nil {
			return nil, err
		}
		if err := ValidateSize(files[i].Filename, int64(len(files[i].Data)), s.opts.MaxUploadBytes); err != nil {
			return nil, err
		}
	}

	resolved, err := s.purposes.ResolveForUpload(ctx, purposeID)
	if errors.Is(err, purpose.ErrInvalid) {
		return nil, ErrInvalidPurpose
	}
	if err != nil {
		return nil, err
	}

	results := make([]UploadResult, 0, len(files))
	for _, file := range files {
		result, err := s.uploadOne(ctx, file, resolved)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *service) uploadOne(ctx context.Context, file UploadFile, purposeID *uuid.UUID) (UploadResult, error) {
	hash := storage.HashSHA256(file.Data)

	existing, err := s.repo.FindByHash(ctx, hash)
	switch {
	case err == nil:
		return s.handleDuplicate(ctx, existing, purposeID)
	case !errors.Is(err, ErrNotFound):
		return UploadResult{}, err
	}

	id := uuid.New()
	safeName := storage.SanitizeFilename(file.Filename)
	key := storage.CaptureKey(id.String(), file.Filename)

	if err := s.store.Save(ctx, key, file.Data); err != nil {
		return UploadResult{}, fmt.Errorf("save capture bytes: %w", err)
	}

	now := s.now()
	item := Capture{
		ID:                id,
		OriginalFilename:  safeName,
		MimeType:          file.MimeType,
		SizeBytes:         int64(len(file.Data)),
		StorageKey:        key,
		FileHash:          hash,
		Status:            StatusUploaded,
		PurposeChecklist:  datatypes.JSONSlice[string]{},
		Tags:              datatypes.JSONSlice[string]{},
		ActionSuggestions: datatypes.JSONSlice[analysis.Suggestion]{},
		PurposeID:         purposeID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, item); err != nil {
		// параллельная загрузка того же файла успела раньше
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if rmErr := s.store.Remove(ctx, key); rmErr != nil {
				s.log.Warn().Err(rmErr).Str("storage_key", key).Msg("failed to remove orphaned capture bytes")
			}
			existing, findErr := s.repo.FindByHash(ctx, hash)
			if findErr != nil {
				return UploadResult{}, findErr
			}
			return s.handleDuplicate(ctx, existing, purposeID)
		}
		return UploadResult{}, err
	}

	if _, err := s.queue.Enqueue(ctx, id.String()); err != nil {
		return UploadResult{}, fmt.Errorf("enqueue capture: %w", err)
	}

	observability.RecordUpload("created")
	s.log.Info().Str("capture_id", id.String()).Int64("size_bytes", item.SizeBytes).Msg("capture uploaded")
	return UploadResult{Item: item, Duplicate: false}, nil
}

// handleDuplicate: готовый снимок с той же целью возвращается как есть,
// иначе производные поля сбрасываются и снимок уходит на повторную обработку.
func (s *service) handleDuplicate(ctx context.Context, existing Capture, purposeID *uuid.UUID) (UploadResult, error) {
	if existing.Status == StatusDone && sameID(existing.PurposeID, purposeID) {
		observability.RecordUpload("duplicate")
		return UploadResult{Item: existing, Duplicate: true}, nil
	}

	fields := resetFields()
	fields["purpose_id"] = purposeID
	fields["status"] = StatusUploaded
	fields["updated_at"] = s.now()

	if err := s.repo.UpdateFields(ctx, existing.ID, fields); err != nil {
		return UploadResult{}, err
	}
	if _, err := s.queue.Enqueue(ctx, existing.ID.String()); err != nil {
		return UploadResult{}, fmt.Errorf("enqueue capture: %w", err)
	}

	updated, err := s.repo.Get(ctx, existing.ID)
	if err != nil {
		return UploadResult{}, err
	}

	observability.RecordUpload("reprocess")
	s.log.Info().Str("capture_id", existing.ID.String()).Msg("duplicate capture queued for reprocessing")
	return UploadResult{Item: updated, Duplicate: true}, nil
}

func (s *service) List(ctx context.Context, q ListQuery) ([]Capture, error) {
	var f Filter
	f.Query = q.Query

	if q.Category != "" {
		category, ok := analysis.ParseCategory(q.Category)
		if !ok {
			return nil, ErrInvalidCategory
		}
		f.Category = &category
	}
	if q.Status != "" {
		status, ok := ParseStatus(q.Status)
		if !ok {
			return nil, ErrInvalidStatus
		}
		f.Status = &status
	}
	if q.PurposeID != "" {
		id, err := uuid.Parse(q.PurposeID)
		if err != nil {
			return nil, ErrInvalidPurpose
		}
		f.PurposeID = &id
	}
	if q.From != "" {
		from, err := ParseTime(q.From)
		if err != nil {
			return nil, fmt.Errorf("%w: from", ErrInvalidDate)
		}
		f.From = &from
	}
	if q.To != "" {
		to, err := ParseTime(q.To)
		if err != nil {
			return nil, fmt.Errorf("%w: to", ErrInvalidDate)
		}
		f.To = &to
	}

	return s.repo.List(ctx, f)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (Capture, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) ReadFile(ctx context.Context, id uuid.UUID) (Capture, []byte, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Capture{}, nil, err
	}
	data, err := s.store.Read(ctx, item.StorageKey)
	if err != nil {
		return Capture{}, nil, fmt.Errorf("read capture bytes: %w", err)
	}
	return item, data, nil
}

func (s *service) Retry(ctx context.Context, id uuid.UUID) (Capture, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Capture{}, err
	}
	if item.Status == StatusDone {
		return Capture{}, ErrAlreadyDone
	}

	err = s.repo.UpdateFields(ctx, id, map[string]any{
		"status":         StatusUploaded,
		"failure_reason": nil,
		"updated_at":     s.now(),
	})
	if err != nil {
		return Capture{}, err
	}
	if _, err := s.queue.Enqueue(ctx, id.String()); err != nil {
		return Capture{}, fmt.Errorf("enqueue capture: %w", err)
	}

	s.log.Info().Str("capture_id", id.String()).Msg("capture retry requested")
	return s.repo.Get(ctx, id)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.todos.DetachCapture(ctx, id); err != nil {
		return fmt.Errorf("detach todos: %w", err)
	}
	if err := s.store.Remove(ctx, item.StorageKey); err != nil {
		return fmt.Errorf("remove capture bytes: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().Str("capture_id", id.String()).Msg("capture deleted")
	return nil
}

func (s *service) UpdatesSince(ctx context.Context, since time.Time, id *uuid.UUID) ([]Capture, error) {
	return s.repo.UpdatesSince(ctx, since, id)
}

func (s *service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// ParseTime принимает RFC3339 или дату YYYY-MM-DD (UTC).
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02", value, time.UTC)
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
