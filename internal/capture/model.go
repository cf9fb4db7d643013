package capture

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/FJFJ0400/capture-ai/internal/analysis"
	"github.com/FJFJ0400/capture-ai/internal/purpose"
)

type Status string

const (
	StatusUploaded   Status = "UPLOADED"
	StatusProcessing Status = "PROCESSING"
	StatusDone       Status = "DONE"
	StatusFailed     Status = "FAILED"
)

var Statuses = []Status{StatusUploaded, StatusProcessing, StatusDone, StatusFailed}

func ParseStatus(value string) (Status, bool) {
	for _, s := range Statuses {
		if string(s) == value {
			return s, true
		}
	}
	return "", false
}

const (
	// OCRTextLimit - максимум символов OCR текста в записи.
	OCRTextLimit = 6000
	// FailureReasonLimit - максимум символов причины сбоя.
	FailureReasonLimit = 500
)

var (
	ErrNotFound        = errors.New("capture not found")
	ErrAlreadyDone     = errors.New("capture already processed")
	ErrInvalidPurpose  = errors.New("invalid purpose")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidDate     = errors.New("invalid date")
	ErrNoFiles         = errors.New("no files provided")
	ErrTooManyFiles    = errors.New("too many files")
	ErrUnsupportedMime = errors.New("unsupported file type")
	ErrUnsupportedExt  = errors.New("unsupported file extension")
	ErrFileTooLarge    = errors.New("uploaded file exceeds size limit")
)

// Capture - сохранённый скриншот и результаты его анализа.
type Capture struct {
	ID                uuid.UUID                                `json:"id" gorm:"type:uuid;primaryKey"`
	OriginalFilename  string                                   `json:"originalFilename" gorm:"not null"`
	MimeType          string                                   `json:"mimeType" gorm:"not null"`
	SizeBytes         int64                                    `json:"sizeBytes" gorm:"not null"`
	StorageKey        string                                   `json:"storageKey" gorm:"not null"`
	FileHash          string                                   `json:"fileHash" gorm:"not null;uniqueIndex"`
	Status            Status                                   `json:"status" gorm:"type:text;not null;index;check:status IN ('UPLOADED', 'PROCESSING', 'DONE', 'FAILED')"`
	Category          *analysis.Category                       `json:"category" gorm:"type:text;index"`
	Summary           *string                                  `json:"summary" gorm:"type:text"`
	PurposeSummary    *string                                  `json:"purposeSummary" gorm:"type:text"`
	PurposeChecklist  datatypes.JSONSlice[string]              `json:"purposeChecklist" gorm:"not null"`
	OCRText           *string                                  `json:"ocrText" gorm:"column:ocr_text;type:text"`
	Tags              datatypes.JSONSlice[string]              `json:"tags" gorm:"not null"`
	ActionSuggestions datatypes.JSONSlice[analysis.Suggestion] `json:"actionSuggestions" gorm:"not null"`
	FailureReason     *string                                  `json:"failureReason" gorm:"type:text"`
	PurposeID         *uuid.UUID                               `json:"purposeId" gorm:"type:uuid;index"`
	Purpose           *purpose.Purpose                         `json:"-" gorm:"foreignKey:PurposeID;constraint:OnDelete:SET NULL"`
	CreatedAt         time.Time                                `json:"createdAt" gorm:"not null;index"`
	UpdatedAt         time.Time                                `json:"updatedAt" gorm:"not null;index"`
}

func (Capture) TableName() string {
	return "capture_items"
}

// resetFields - производные поля, очищаемые перед повторной обработкой.
func resetFields() map[string]any {
	return map[string]any{
		"category":           nil,
		"summary":            nil,
		"purpose_summary":    nil,
		"purpose_checklist":  datatypes.JSONSlice[string]{},
		"ocr_text":           nil,
		"tags":               datatypes.JSONSlice[string]{},
		"action_suggestions": datatypes.JSONSlice[analysis.Suggestion]{},
		"failure_reason":     nil,
	}
}

// TruncateRunes обрезает строку до limit символов.
func TruncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
