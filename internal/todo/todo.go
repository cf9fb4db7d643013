package todo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/FJFJ0400/capture-ai/internal/database"
)

var (
	ErrNotFound        = errors.New("todo not found")
	ErrCaptureNotFound = errors.New("capture not found for todo")
	ErrInvalid         = errors.New("invalid todo")
)

type Todo struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Title           string     `json:"title" gorm:"not null"`
	SourceCaptureID *uuid.UUID `json:"sourceCaptureId" gorm:"type:uuid;index"`
	Done            bool       `json:"done" gorm:"not null"`
	CreatedAt       time.Time  `json:"createdAt" gorm:"not null;index"`
}

func (Todo) TableName() string {
	return "todo_items"
}

// CaptureLookup проверяет существование снимка-источника.
type CaptureLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Repository interface {
	Create(ctx context.Context, t Todo) error
	List(ctx context.Context) ([]Todo, error)
	Get(ctx context.Context, id uuid.UUID) (Todo, error)
	SetDone(ctx context.Context, id uuid.UUID, done bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	// DetachCapture обнуляет ссылку на удаляемый снимок.
	DetachCapture(ctx context.Context, captureID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, t Todo) error {
	return r.db.WithContext(ctx).Create(&t).Error
}

func (r *repository) List(ctx context.Context) ([]Todo, error) {
	items := make([]Todo, 0)
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Todo, error) {
	var t Todo
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Todo{}, ErrNotFound
	}
	return t, err
}

func (r *repository) SetDone(ctx context.Context, id uuid.UUID, done bool) error {
	res := r.db.WithContext(ctx).Model(&Todo{}).Where("id = ?", id).Update("done", done)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&Todo{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DetachCapture(ctx context.Context, captureID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&Todo{}).
		Where("source_capture_id = ?", captureID).
		Update("source_capture_id", nil).Error
}

type Service interface {
	Create(ctx context.Context, title string, sourceCaptureID *uuid.UUID) (Todo, error)
	List(ctx context.Context) ([]Todo, error)
	SetDone(ctx context.Context, id uuid.UUID, done bool) (Todo, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo     Repository
	captures CaptureLookup
	now      func() time.Time
}

func NewService(repo Repository, captures CaptureLookup) Service {
	return &service{repo: repo, captures: captures, now: database.Now}
}

func (s *service) Create(ctx context.Context, title string, sourceCaptureID *uuid.UUID) (Todo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Todo{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}

	if sourceCaptureID != nil {
		exists, err := s.captures.Exists(ctx, *sourceCaptureID)
		if err != nil {
			return Todo{}, err
		}
		if !exists {
			return Todo{}, ErrCaptureNotFound
		}
	}

	t := Todo{
		ID:              uuid.New(),
		Title:           title,
		SourceCaptureID: sourceCaptureID,
		CreatedAt:       s.now(),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return Todo{}, err
	}
	return t, nil
}

func (s *service) List(ctx context.Context) ([]Todo, error) {
	return s.repo.List(ctx)
}

func (s *service) SetDone(ctx context.Context, id uuid.UUID, done bool) (Todo, error) {
	if err := s.repo.SetDone(ctx, id, done); err != nil {
		return Todo{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
