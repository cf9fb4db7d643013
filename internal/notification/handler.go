package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/FJFJ0400/capture-ai/internal/events"
)

var ErrEmptyCaptureID = errors.New("captureID is required")

const resolveTimeout = 5 * time.Second

// CaptureResolver возвращает имя файла снимка по ID.
type CaptureResolver interface {
	ResolveFilename(ctx context.Context, captureID string) (string, error)
}

type EventHandler interface {
	HandleEvent(ctx context.Context, event events.CaptureEvent) error
}

type eventHandler struct {
	notifier Notifier
	resolver CaptureResolver
	log      zerolog.Logger
	now      func() time.Time
}

// NewEventHandler; resolver может быть nil, тогда уведомление без имени файла.
func NewEventHandler(notifier Notifier, resolver CaptureResolver, logger zerolog.Logger) EventHandler {
	return &eventHandler{
		notifier: notifier,
		resolver: resolver,
		log:      logger.With().Str("component", "notification_handler").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *eventHandler) HandleEvent(ctx context.Context, event events.CaptureEvent) error {
	if strings.TrimSpace(event.CaptureID) == "" {
		return ErrEmptyCaptureID
	}
	if !NeedsAttention(event) {
		return nil
	}

	var filename string
	if h.resolver != nil {
		resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
		name, err := h.resolver.ResolveFilename(resolveCtx, event.CaptureID)
		cancel()
		if err != nil {
			// снимок могли удалить, уведомляем без имени
			h.log.Warn().Err(err).Str("capture_id", event.CaptureID).Msg("resolve capture filename")
		}
		filename = name
	}

	if err := h.notifier.SendNotification(ctx, NewFailureNotification(event, filename, h.now())); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}
