package todo

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FJFJ0400/capture-ai/internal/apperr"
	"github.com/FJFJ0400/capture-ai/internal/dto"
	"github.com/FJFJ0400/capture-ai/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes монтируется под /v1/todos.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, items)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTodoRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	var source *uuid.UUID
	if req.SourceCaptureID != nil && *req.SourceCaptureID != "" {
		id, err := uuid.Parse(*req.SourceCaptureID)
		if err != nil {
			httpx.WriteError(w, apperr.NotFound("Capture not found for todo."))
			return
		}
		source = &id
	}

	created, err := h.service.Create(r.Context(), req.Title, source)
	if err != nil {
		httpx.WriteError(w, mapError(err))
		return
	}
	httpx.WriteData(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id", "Todo")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	var req dto.UpdateTodoRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if req.Done == nil {
		httpx.WriteError(w, apperr.Validation("done is required."))
		return
	}

	updated, err := h.service.SetDone(r.Context(), id, *req.Done)
	if err != nil {
		httpx.WriteError(w, mapError(err))
		return
	}
	httpx.WriteData(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id", "Todo")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.WriteError(w, mapError(err))
		return
	}
	httpx.WriteData(w, http.StatusOK, dto.IDResponse{ID: id.String()})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("Todo not found.")
	case errors.Is(err, ErrCaptureNotFound):
		return apperr.NotFound("Capture not found for todo.")
	case errors.Is(err, ErrInvalid):
		return apperr.Validation("title is required.")
	default:
		return err
	}
}
