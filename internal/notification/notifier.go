package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Notifier отвечает за доставку уведомлений
type Notifier interface {
	SendNotification(ctx context.Context, notification Notification) error
}

type logNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) Notifier {
	return &logNotifier{log: logger.With().Str("component", "notifier").Logger()}
}

func (n *logNotifier) SendNotification(_ context.Context, notification Notification) error {
	n.log.Warn().
		Str("type", notification.Type).
		Str("capture_id", notification.CaptureID).
		Str("filename", notification.Filename).
		Str("at", notification.CreatedAt.Format(time.RFC3339)).
		Msg(notification.Message)
	return nil
}
