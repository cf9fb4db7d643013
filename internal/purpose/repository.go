package purpose

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// captureTable - таблица снимков, ссылающихся на цель.
const captureTable = "capture_items"

type Repository interface {
	List(ctx context.Context) ([]Purpose, error)
	Get(ctx context.Context, id uuid.UUID) (Purpose, error)
	// Default возвращает самую раннюю активную цель по умолчанию.
	Default(ctx context.Context) (Purpose, error)
	Create(ctx context.Context, p Purpose) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) (Purpose, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context) ([]Purpose, error) {
	items := make([]Purpose, 0)
	err := r.db.WithContext(ctx).
		Order("is_default DESC").
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Purpose, error) {
	var p Purpose
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Purpose{}, ErrNotFound
	}
	return p, err
}

func (r *repository) Default(ctx context.Context) (Purpose, error) {
	var p Purpose
	err := r.db.WithContext(ctx).
		Where("is_default = ? AND is_active = ?", true, true).
		Order("created_at ASC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Purpose{}, ErrNotFound
	}
	return p, err
}

func (r *repository) Create(ctx context.Context, p Purpose) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// не больше одной цели по умолчанию
		if p.IsDefault {
			if err := clearDefault(tx); err != nil {
				return err
			}
		}
		return tx.Create(&p).Error
	})
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) (Purpose, error) {
	var updated Purpose
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if isDefault, ok := updates["is_default"].(bool); ok && isDefault {
			if err := clearDefault(tx); err != nil {
				return err
			}
		}

		res := tx.Model(&Purpose{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		return Purpose{}, err
	}
	return updated, nil
}

// Delete отвязывает снимки, удаляет цель и, если она была по умолчанию,
// назначает по умолчанию первую активную.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Purpose
		if err := tx.Where("id = ?", id).First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := tx.Table(captureTable).
			Where("purpose_id = ?", id).
			Update("purpose_id", nil).Error; err != nil {
			return err
		}

		if err := tx.Delete(&Purpose{}, "id = ?", id).Error; err != nil {
			return err
		}

		if !existing.IsDefault {
			return nil
		}

		var fallback Purpose
		err := tx.Where("is_active = ?", true).Order("created_at ASC").First(&fallback).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Model(&Purpose{}).
			Where("id = ?", fallback.ID).
			Update("is_default", true).Error
	})
}

func clearDefault(tx *gorm.DB) error {
	return tx.Model(&Purpose{}).
		Where("is_default = ?", true).
		Update("is_default", false).Error
}
