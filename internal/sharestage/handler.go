package sharestage

import (
	"encoding/base64"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FJFJ0400/capture-ai/internal/apperr"
	"github.com/FJFJ0400/capture-ai/internal/capture"
	"github.com/FJFJ0400/capture-ai/internal/dto"
	"github.com/FJFJ0400/capture-ai/internal/httpx"
)

const defaultStagedName = "capture-image"

// Limits - ограничения на приём файлов.
type Limits struct {
	MaxFileBytes int64
	MaxFiles     int
}

type Handler struct {
	service   Service
	limits    Limits
	mapUpload func(error) error
}

// NewHandler; mapUpload переводит ошибки загрузки снимков в ответ API.
func NewHandler(service Service, limits Limits, mapUpload func(error) error) *Handler {
	if limits.MaxFileBytes <= 0 {
		limits.MaxFileBytes = 10 << 20
	}
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = 10
	}
	return &Handler{service: service, limits: limits, mapUpload: mapUpload}
}

// Routes монтируется под /v1/share.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/intake", h.Intake)
	r.Get("/staged/{token}", h.Get)
	r.Delete("/staged/{token}", h.Drop)
	r.Post("/staged/{token}/commit", h.Commit)
}

func (h *Handler) Intake(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		httpx.WriteError(w, apperr.UnsupportedMediaType("Multipart form-data required."))
		return
	}

	files, err := h.readImages(reader)
	if err != nil {
		httpx.WriteError(w, h.mapUpload(err))
		return
	}

	staged, err := h.service.Stage(r.Context(), files)
	if err != nil {
		httpx.WriteError(w, h.mapError(err))
		return
	}
	httpx.WriteData(w, http.StatusCreated, dto.ShareIntakeResponse{
		Token:     staged.Token,
		Files:     staged.Files,
		ExpiresAt: staged.ExpiresAt.Format(time.RFC3339),
	})
}

// readImages принимает части files/file с типом image/*, остальные пропускаются.
func (h *Handler) readImages(reader *multipart.Reader) ([]dto.StagedFile, error) {
	var files []dto.StagedFile
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Validation("Malformed multipart body.")
		}

		name := part.FormName()
		contentType := strings.ToLower(part.Header.Get("Content-Type"))
		if (name != "files" && name != "file") || part.FileName() == "" || !strings.HasPrefix(contentType, "image/") {
			_ = part.Close()
			continue
		}
		if len(files) >= h.limits.MaxFiles {
			return nil, capture.ErrTooManyFiles
		}

		filename := part.FileName()
		data, err := io.ReadAll(io.LimitReader(part, h.limits.MaxFileBytes+1))
		_ = part.Close()
		if err != nil {
			return nil, apperr.Validation("Malformed multipart body.")
		}
		if err := capture.ValidateSize(filename, int64(len(data)), h.limits.MaxFileBytes); err != nil {
			return nil, err
		}

		files = append(files, dto.StagedFile{
			Name:   filename,
			Type:   capture.NormalizeMime(contentType),
			Size:   int64(len(data)),
			Base64: base64.StdEncoding.EncodeToString(data),
		})
	}
	return files, nil
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	payload, err := h.service.Get(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httpx.WriteError(w, h.mapError(err))
		return
	}
	httpx.WriteData(w, http.StatusOK, dto.StagedShareResponse{
		CreatedAt: payload.CreatedAt.Format(time.RFC3339Nano),
		Files:     payload.Files,
	})
}

func (h *Handler) Drop(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.service.Drop(r.Context(), token); err != nil {
		httpx.WriteError(w, h.mapError(err))
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var req dto.CommitShareRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, err)
			return
		}
	}

	var purposeID *uuid.UUID
	if req.PurposeID != nil && *req.PurposeID != "" {
		id, err := uuid.Parse(*req.PurposeID)
		if err != nil {
			httpx.WriteError(w, h.mapUpload(capture.ErrInvalidPurpose))
			return
		}
		purposeID = &id
	}

	results, err := h.service.Commit(r.Context(), chi.URLParam(r, "token"), purposeID)
	if err != nil {
		httpx.WriteError(w, h.mapError(err))
		return
	}
	httpx.WriteData(w, http.StatusCreated, results)
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("Staged share not found.")
	case errors.Is(err, ErrNoFiles):
		return apperr.BadRequest(apperr.CodeNoFiles, "No image files provided.")
	}
	return h.mapUpload(err)
}
