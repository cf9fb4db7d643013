package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/FJFJ0400/capture-ai/internal/apperr"
	"github.com/FJFJ0400/capture-ai/internal/httpx"
)

const (
	EventUpdate = "update"
	EventPing   = "ping"
	EventError  = "error"
)

// WatchEvent - одно событие наблюдения за изменениями.
type WatchEvent struct {
	Type    string    `json:"type"`
	Updates []Capture `json:"updates,omitempty"`
	At      time.Time `json:"at,omitempty"`
	Message string    `json:"message,omitempty"`
}

// UpdateSource - источник изменений после водяной метки.
type UpdateSource interface {
	UpdatesSince(ctx context.Context, since time.Time, id *uuid.UUID) ([]Capture, error)
}

// Watcher опрашивает изменения по водяной метке updated_at.
type Watcher struct {
	source   UpdateSource
	interval time.Duration
	now      func() time.Time
}

func NewWatcher(source UpdateSource, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Watcher{source: source, interval: interval, now: time.Now}
}

// Watch сразу делает первый опрос, затем опрашивает каждые interval до отмены ctx
// или ошибки emit. Метка сдвигается на updated_at последнего отправленного снимка.
func (w *Watcher) Watch(ctx context.Context, since time.Time, id *uuid.UUID, emit func(WatchEvent) error) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		next, err := w.tick(ctx, since, id, emit)
		if err != nil {
			return err
		}
		since = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) tick(ctx context.Context, since time.Time, id *uuid.UUID, emit func(WatchEvent) error) (time.Time, error) {
	updates, err := w.source.UpdatesSince(ctx, since, id)
	if err != nil {
		if ctx.Err() != nil {
			return since, nil
		}
		return since, emit(WatchEvent{Type: EventError, Message: err.Error()})
	}

	if len(updates) > 0 {
		if err := emit(WatchEvent{Type: EventUpdate, Updates: updates}); err != nil {
			return since, err
		}
		since = updates[len(updates)-1].UpdatedAt
	}

	return since, emit(WatchEvent{Type: EventPing, At: w.now().UTC()})
}

// ParseSince разбирает водяную метку; пустая или некорректная даёт начало эпохи.
func ParseSince(value string) time.Time {
	if value == "" {
		return time.Unix(0, 0).UTC()
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Unix(0, 0).UTC()
	}
	return t.UTC()
}

// Stream - SSE поток изменений снимков.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	since := ParseSince(r.URL.Query().Get("since"))

	var captureID *uuid.UUID
	if raw := r.URL.Query().Get("captureId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.WriteError(w, apperr.NotFound("Capture not found."))
			return
		}
		captureID = &id
	}

	rc := http.NewResponseController(w)
	// поток живёт дольше WriteTimeout сервера
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.log.Warn().Err(err).Msg("stream flush unsupported")
		return
	}

	err := h.watcher.Watch(r.Context(), since, captureID, func(ev WatchEvent) error {
		return writeSSE(w, rc, ev)
	})
	if err != nil && r.Context().Err() == nil {
		h.log.Debug().Err(err).Msg("capture stream closed")
	}
}

func writeSSE(w http.ResponseWriter, rc *http.ResponseController, ev WatchEvent) error {
	var payload any
	switch ev.Type {
	case EventUpdate:
		payload = ev.Updates
	case EventPing:
		payload = map[string]string{"at": ev.At.Format(time.RFC3339Nano)}
	default:
		payload = map[string]string{"message": ev.Message}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	return rc.Flush()
}
