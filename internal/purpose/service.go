package purpose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/FJFJ0400/capture-ai/internal/database"
)

// Цель, создаваемая при первом обращении к пустому списку.
var seedPurpose = CreateInput{
	Name:           "General",
	Description:    strPtr("Default inbox organization purpose"),
	Instruction:    "Quickly grasp the key content and organize follow-up tasks as a checklist.",
	SampleKeywords: []string{"schedule", "amount", "request"},
	IsDefault:      boolPtr(true),
	IsActive:       boolPtr(true),
}

type CreateInput struct {
	Name           string
	Description    *string
	Instruction    string
	SampleKeywords []string
	IsDefault      *bool
	IsActive       *bool
}

// UpdateInput - частичное обновление; nil поля не меняются.
type UpdateInput struct {
	Name           *string
	Description    *string
	Instruction    *string
	SampleKeywords []string
	IsDefault      *bool
	IsActive       *bool
}

type Service interface {
	List(ctx context.Context) ([]Purpose, error)
	Get(ctx context.Context, id uuid.UUID) (Purpose, error)
	Create(ctx context.Context, in CreateInput) (Purpose, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateInput) (Purpose, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// ResolveForUpload проверяет явно выбранную цель или подставляет цель по умолчанию.
	ResolveForUpload(ctx context.Context, id *uuid.UUID) (*uuid.UUID, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: database.Now}
}

func (s *service) List(ctx context.Context) ([]Purpose, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		return items, nil
	}

	seed, err := s.Create(ctx, seedPurpose)
	if err != nil {
		return nil, fmt.Errorf("seed default purpose: %w", err)
	}
	return []Purpose{seed}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (Purpose, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) Create(ctx context.Context, in CreateInput) (Purpose, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Purpose{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.TrimSpace(in.Instruction) == "" {
		return Purpose{}, fmt.Errorf("%w: instruction is required", ErrInvalid)
	}
	if err := validateKeywords(in.SampleKeywords); err != nil {
		return Purpose{}, err
	}

	now := s.now()
	p := Purpose{
		ID:             uuid.New(),
		Name:           name,
		Description:    in.Description,
		Instruction:    in.Instruction,
		SampleKeywords: keywordsOrEmpty(in.SampleKeywords),
		IsDefault:      in.IsDefault != nil && *in.IsDefault,
		IsActive:       in.IsActive == nil || *in.IsActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return Purpose{}, err
	}
	return p, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (Purpose, error) {
	updates := map[string]any{"updated_at": s.now()}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Purpose{}, fmt.Errorf("%w: name cannot be empty", ErrInvalid)
		}
		updates["name"] = name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Instruction != nil {
		if strings.TrimSpace(*in.Instruction) == "" {
			return Purpose{}, fmt.Errorf("%w: instruction cannot be empty", ErrInvalid)
		}
		updates["instruction"] = *in.Instruction
	}
	if in.SampleKeywords != nil {
		if err := validateKeywords(in.SampleKeywords); err != nil {
			return Purpose{}, err
		}
		updates["sample_keywords"] = datatypes.JSONSlice[string](in.SampleKeywords)
	}
	if in.IsDefault != nil {
		updates["is_default"] = *in.IsDefault
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}

	return s.repo.Update(ctx, id, updates)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *service) ResolveForUpload(ctx context.Context, id *uuid.UUID) (*uuid.UUID, error) {
	if id != nil {
		p, err := s.repo.Get(ctx, *id)
		if errors.Is(err, ErrNotFound) || (err == nil && !p.IsActive) {
			return nil, ErrInvalid
		}
		if err != nil {
			return nil, err
		}
		return &p.ID, nil
	}

	p, err := s.repo.Default(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p.ID, nil
}

func validateKeywords(keywords []string) error {
	for _, kw := range keywords {
		if strings.TrimSpace(kw) == "" {
			return fmt.Errorf("%w: sample keywords must not be empty", ErrInvalid)
		}
	}
	return nil
}

func keywordsOrEmpty(keywords []string) datatypes.JSONSlice[string] {
	if keywords == nil {
		return datatypes.JSONSlice[string]{}
	}
	return datatypes.JSONSlice[string](keywords)
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
