package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/FJFJ0400/capture-ai/internal/analysis"
	"github.com/FJFJ0400/capture-ai/internal/capture"
	"github.com/FJFJ0400/capture-ai/internal/database"
	"github.com/FJFJ0400/capture-ai/internal/deadletter"
	"github.com/FJFJ0400/capture-ai/internal/events"
	"github.com/FJFJ0400/capture-ai/internal/observability"
	"github.com/FJFJ0400/capture-ai/internal/ocr"
	"github.com/FJFJ0400/capture-ai/internal/queue"
	"github.com/FJFJ0400/capture-ai/internal/storage"
)

// TagLimit - сколько тегов сохраняется у снимка.
const TagLimit = 8

// journalTimeout ограничивает запись в журнал ошибок внутри хука.
const journalTimeout = 2 * time.Second

var ErrCaptureNotFound = errors.New("capture not found")

// Processor проводит снимок через OCR и анализ.
type Processor struct {
	repo      capture.Repository
	store     storage.Adapter
	ocr       ocr.Adapter
	publisher events.Producer
	journal   deadletter.Journal
	log       zerolog.Logger
	now       func() time.Time

	journalTimeout time.Duration
}

func NewProcessor(
	repo capture.Repository,
	store storage.Adapter,
	extractor ocr.Adapter,
	publisher events.Producer,
	journal deadletter.Journal,
	logger zerolog.Logger,
) *Processor {
	return &Processor{
		repo:      repo,
		store:     store,
		ocr:       extractor,
		publisher: publisher,
		journal:   journal,
		log:       logger.With().Str("component", "pipeline").Logger(),
		now:       database.Now,

		journalTimeout: journalTimeout,
	}
}

// HandleJob - обработчик задачи очереди.
func (p *Processor) HandleJob(ctx context.Context, job queue.Job) error {
	return p.Process(ctx, job.ID)
}

// Process выполняет один прогон: UPLOADED/FAILED -> PROCESSING -> DONE.
// Готовый снимок пропускается.
func (p *Processor) Process(ctx context.Context, captureID string) error {
	id, err := uuid.Parse(captureID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCaptureNotFound, captureID)
	}

	item, err := p.repo.GetWithPurpose(ctx, id)
	if errors.Is(err, capture.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrCaptureNotFound, captureID)
	}
	if err != nil {
		return fmt.Errorf("load capture: %w", err)
	}
	if item.Status == capture.StatusDone {
		p.log.Debug().Str("capture_id", captureID).Msg("capture already done, skipping")
		return nil
	}

	err = p.repo.UpdateFields(ctx, id, map[string]any{
		"status":     capture.StatusProcessing,
		"updated_at": p.now(),
	})
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	data, err := p.store.Read(ctx, item.StorageKey)
	if err != nil {
		return fmt.Errorf("read capture bytes: %w", err)
	}

	text := p.ocr.Extract(ctx, data, item.OriginalFilename)
	if ocr.IsFallback(text) {
		observability.OCRFallbacks.Inc()
		p.log.Warn().Str("capture_id", captureID).Str("ocr_text", text).Msg("ocr fallback used")
	}
	text = capture.TruncateRunes(strings.TrimSpace(text), capture.OCRTextLimit)

	category := analysis.ClassifyCategory(text)
	summary := analysis.GenerateSummary(text, item.OriginalFilename)

	fields := map[string]any{
		"status":             capture.StatusDone,
		"category":           category,
		"summary":            summary,
		"ocr_text":           text,
		"tags":               datatypes.JSONSlice[string](analysis.ExtractTags(text, TagLimit)),
		"action_suggestions": datatypes.JSONSlice[analysis.Suggestion](analysis.GenerateActionSuggestions(category)),
		"purpose_summary":    nil,
		"purpose_checklist":  datatypes.JSONSlice[string]{},
		"failure_reason":     nil,
		"updated_at":         p.now(),
	}
	if item.Purpose != nil && item.Purpose.IsActive {
		organized := analysis.OrganizeByPurpose(text, item.Purpose.Profile(), item.OriginalFilename)
		fields["purpose_summary"] = organized.Summary
		fields["purpose_checklist"] = datatypes.JSONSlice[string](organized.Checklist)
	}

	if err := p.repo.UpdateFields(ctx, id, fields); err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}

	observability.CapturesByCategory.WithLabelValues(string(category)).Inc()
	p.publish(ctx, events.CaptureEvent{
		CaptureID: captureID,
		Status:    string(capture.StatusDone),
		Category:  string(category),
		Timestamp: p.now(),
	})
	p.log.Info().Str("capture_id", captureID).Str("category", string(category)).Msg("capture processed")
	return nil
}

// MarkFailed - хук окончательной ошибки задачи. Ошибки только логируются.
// Сначала пишется FAILED, журнал получает отдельный короткий таймаут.
func (p *Processor) MarkFailed(ctx context.Context, job queue.Job, message string) {
	reason := capture.TruncateRunes(message, capture.FailureReasonLimit)
	logger := p.log.With().Str("capture_id", job.ID).Int("attempts", job.Attempts).Logger()

	marked := p.writeFailed(ctx, job.ID, reason, logger)

	journalCtx, cancel := context.WithTimeout(ctx, p.journalTimeout)
	entry := deadletter.Entry{CaptureID: job.ID, Attempts: job.Attempts, Reason: reason, FailedAt: p.now()}
	if err := p.journal.Record(journalCtx, entry); err != nil {
		logger.Error().Err(err).Msg("failed to journal dead letter")
	}
	cancel()

	if !marked {
		return
	}
	p.publish(ctx, events.CaptureEvent{
		CaptureID:     job.ID,
		Status:        string(capture.StatusFailed),
		FailureReason: reason,
		Timestamp:     p.now(),
	})
	logger.Warn().Str("reason", reason).Msg("capture processing failed")
}

func (p *Processor) writeFailed(ctx context.Context, captureID, reason string, logger zerolog.Logger) bool {
	id, err := uuid.Parse(captureID)
	if err != nil {
		logger.Error().Err(err).Msg("failed job has invalid capture id")
		return false
	}

	err = p.repo.UpdateFields(ctx, id, map[string]any{
		"status":         capture.StatusFailed,
		"failure_reason": reason,
		"updated_at":     p.now(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to mark capture as failed")
		return false
	}
	return true
}

func (p *Processor) publish(ctx context.Context, event events.CaptureEvent) {
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.log.Warn().Err(err).Str("capture_id", event.CaptureID).Msg("failed to publish capture event")
	}
}
