package capture

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/FJFJ0400/capture-ai/internal/analysis"
)

// Filter - условия выборки списка снимков.
type Filter struct {
	Query     string
	Category  *analysis.Category
	Status    *Status
	PurposeID *uuid.UUID
	From      *time.Time
	To        *time.Time
}

type Repository interface {
	Create(ctx context.Context, c Capture) error
	Get(ctx context.Context, id uuid.UUID) (Capture, error)
	// GetWithPurpose загружает снимок вместе с целью.
	GetWithPurpose(ctx context.Context, id uuid.UUID) (Capture, error)
	FindByHash(ctx context.Context, hash string) (Capture, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, f Filter) ([]Capture, error)
	// UpdateFields - точечное обновление одной строки; ErrNotFound, если строки нет.
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	// UpdatesSince - снимки с updated_at строго позже since, по возрастанию.
	UpdatesSince(ctx context.Context, since time.Time, id *uuid.UUID) ([]Capture, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, c Capture) error {
	return r.db.WithContext(ctx).Omit("Purpose").Create(&c).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Capture, error) {
	var c Capture
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	return c, mapNotFound(err)
}

func (r *repository) GetWithPurpose(ctx context.Context, id uuid.UUID) (Capture, error) {
	var c Capture
	err := r.db.WithContext(ctx).Preload("Purpose").Where("id = ?", id).First(&c).Error
	return c, mapNotFound(err)
}

func (r *repository) FindByHash(ctx context.Context, hash string) (Capture, error) {
	var c Capture
	err := r.db.WithContext(ctx).Where("file_hash = ?", hash).First(&c).Error
	return c, mapNotFound(err)
}

func (r *repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Capture{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *repository) List(ctx context.Context, f Filter) ([]Capture, error) {
	tx := r.db.WithContext(ctx).Model(&Capture{})

	if f.Category != nil {
		tx = tx.Where("category = ?", *f.Category)
	}
	if f.Status != nil {
		tx = tx.Where("status = ?", *f.Status)
	}
	if f.PurposeID != nil {
		tx = tx.Where("purpose_id = ?", *f.PurposeID)
	}
	if f.From != nil {
		tx = tx.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		tx = tx.Where("created_at <= ?", *f.To)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + escapeLike(strings.ToLower(q)) + "%"
		tag := `%"` + escapeLike(strings.ToLower(q)) + `"%`
		tx = tx.Where(
			r.db.Where(`LOWER(ocr_text) LIKE ? ESCAPE '\'`, like).
				Or(`LOWER(summary) LIKE ? ESCAPE '\'`, like).
				Or(`LOWER(purpose_summary) LIKE ? ESCAPE '\'`, like).
				Or(`LOWER(original_filename) LIKE ? ESCAPE '\'`, like).
				Or(`LOWER(CAST(tags AS TEXT)) LIKE ? ESCAPE '\'`, tag),
		)
	}

	items := make([]Capture, 0)
	if err := tx.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&Capture{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&Capture{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdatesSince(ctx context.Context, since time.Time, id *uuid.UUID) ([]Capture, error) {
	tx := r.db.WithContext(ctx).Where("updated_at > ?", since.UTC())
	if id != nil {
		tx = tx.Where("id = ?", *id)
	}

	items := make([]Capture, 0)
	if err := tx.Order("updated_at ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
