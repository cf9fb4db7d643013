package purpose

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/FJFJ0400/capture-ai/internal/analysis"
)

var (
	ErrNotFound = errors.New("purpose not found")
	ErrInvalid  = errors.New("invalid purpose")
)

// Purpose - цель разбора снимков: инструкция и ключевые слова для чек-листа.
type Purpose struct {
	ID             uuid.UUID                   `json:"id" gorm:"type:uuid;primaryKey"`
	Name           string                      `json:"name" gorm:"not null"`
	Description    *string                     `json:"description" gorm:"type:text"`
	Instruction    string                      `json:"instruction" gorm:"type:text;not null"`
	SampleKeywords datatypes.JSONSlice[string] `json:"sampleKeywords" gorm:"not null"`
	IsDefault      bool                        `json:"isDefault" gorm:"not null;index"`
	IsActive       bool                        `json:"isActive" gorm:"not null"`
	CreatedAt      time.Time                   `json:"createdAt" gorm:"not null;index"`
	UpdatedAt      time.Time                   `json:"updatedAt" gorm:"not null"`
}

func (Purpose) TableName() string {
	return "capture_purposes"
}

// Profile - данные цели, нужные анализатору.
func (p Purpose) Profile() analysis.PurposeProfile {
	return analysis.PurposeProfile{
		Name:           p.Name,
		Instruction:    p.Instruction,
		SampleKeywords: []string(p.SampleKeywords),
	}
}
