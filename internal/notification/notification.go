package notification

import (
	"fmt"
	"time"

	"github.com/FJFJ0400/capture-ai/internal/events"
)

const TypeCaptureFailed = "capture_failed"

// Notification описывает уведомление, которое будет отправлено.
type Notification struct {
	Type      string
	CaptureID string
	Filename  string
	Message   string
	CreatedAt time.Time
}

// NeedsAttention возвращает true, если событие требует уведомления.
func NeedsAttention(event events.CaptureEvent) bool {
	return event.IsFailure()
}

// NewFailureNotification создаёт Notification из события FAILED.
func NewFailureNotification(event events.CaptureEvent, filename string, now time.Time) Notification {
	subject := event.CaptureID
	if filename != "" {
		subject = fmt.Sprintf("%s (%s)", filename, event.CaptureID)
	}

	return Notification{
		Type:      TypeCaptureFailed,
		CaptureID: event.CaptureID,
		Filename:  filename,
		Message:   fmt.Sprintf("Capture %s failed to process. Reason: %s", subject, event.FailureReason),
		CreatedAt: now,
	}
}
