package purpose

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

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

// Routes монтируется под /v1/purposes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		httpx.WriteError(w, mapError(err))
		return
	}
	httpx.WriteData(w, http.StatusOK, items)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePurposeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	created, err := h.service.Create(r.Context(), CreateInput{
		Name:           req.Name,
		Description:    req.Description,
		Instruction:    req.Instruction,
		SampleKeywords: req.SampleKeywords,
		IsDefault:      req.IsDefault,
		IsActive:       req.IsActive,
	})
	if err != nil {
		httpx.WriteError(w, mapError(err))
		return
	}
	httpx.WriteData(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id", "Purpose")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	var req dto.UpdatePurposeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	updated, err := h.service.Update(r.Context(), id, UpdateInput{
		Name:           req.Name,
		Description:    req.Description,
		Instruction:    req.Instruction,
		SampleKeywords: req.SampleKeywords,
		IsDefault:      req.IsDefault,
		IsActive:       req.IsActive,
	})
	if err != nil {
		httpx.WriteError(w, mapError(err))
		return
	}
	httpx.WriteData(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id", "Purpose")
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
		return apperr.NotFound("Purpose not found.")
	case errors.Is(err, ErrInvalid):
		return apperr.Validation(strings.TrimPrefix(err.Error(), ErrInvalid.Error()+": "))
	default:
		return err
	}
}
