package capture

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/FJFJ0400/capture-ai/internal/apperr"
	"github.com/FJFJ0400/capture-ai/internal/dto"
	"github.com/FJFJ0400/capture-ai/internal/httpx"
)

type Handler struct {
	service Service
	watcher *Watcher
	opts    Options
	log     zerolog.Logger
}

func NewHandler(service Service, watcher *Watcher, opts Options, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		watcher: watcher,
		opts:    opts.withDefaults(),
		log:     logger.With().Str("component", "capture_handler").Logger(),
	}
}

// Routes монтируется под /v1/captures.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Upload)
	r.Get("/", h.List)
	r.Get("/stream", h.Stream)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/file", h.File)
	r.Post("/{id}/retry", h.Retry)
	r.Delete("/{id}", h.Delete)
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		httpx.WriteError(w, apperr.UnsupportedMediaType("Multipart form-data required."))
		return
	}

	files, purposeRaw, err := h.readParts(reader)
	if err != nil {
		httpx.WriteError(w, h.MapError(err))
		return
	}

	var purposeID *uuid.UUID
	if purposeRaw != "" {
		id, err := uuid.Parse(purposeRaw)
		if err != nil {
			httpx.WriteError(w, h.MapError(ErrInvalidPurpose))
			return
		}
		purposeID = &id
	}

	results, err := h.service.Upload(r.Context(), files, purposeID)
	if err != nil {
		httpx.WriteError(w, h.MapError(err))
		return
	}
	httpx.WriteData(w, http.StatusCreated, results)
}

// readParts читает части формы; тип и размер проверяются до чтения следующей части.
func (h *Handler) readParts(reader *multipart.Reader) ([]UploadFile, string, error) {
	var (
		files     []UploadFile
		purposeID string
	)

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", apperr.Validation("Malformed multipart body.")
		}

		if part.FileName() == "" {
			if part.FormName() == "purposeId" {
				value, err := io.ReadAll(io.LimitReader(part, 256))
				if err != nil {
					return nil, "", apperr.Validation("Malformed multipart body.")
				}
				purposeID = strings.TrimSpace(string(value))
			}
			_ = part.Close()
			continue
		}

		if len(files) >= h.opts.MaxUploadFiles {
			return nil, "", ErrTooManyFiles
		}

		filename := part.FileName()
		mimeType := NormalizeMime(part.Header.Get("Content-Type"))
		if err := ValidateType(filename, mimeType); err != nil {
			return nil, "", err
		}

		data, err := io.ReadAll(io.LimitReader(part, h.opts.MaxUploadBytes+1))
		_ = part.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, "", &FileError{Err: ErrFileTooLarge, Filename: filename}
			}
			return nil, "", apperr.Validation("Malformed multipart body.")
		}
		if err := ValidateSize(filename, int64(len(data)), h.opts.MaxUploadBytes); err != nil {
			return nil, "", err
		}

		files = append(files, UploadFile{Filename: filename, MimeType: mimeType, Data: data})
	}

	return files, purposeID, nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.service.List(r.Context(), ListQuery{
		Query:     q.Get("query"),
		Category:  q.Get("category"),
		Status:    q.Get("status"),
		PurposeID: q.Get("purposeId"),
		From:      q.Get("from"),
		To:        q.Get("to"),
	})
	if err != nil {
		httpx.WriteError(w, h.MapError(err))
		return
	}
	httpx.WriteData(w, http.StatusOK, items)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id", "Capture")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.MapError(err))
		return
	}
	httpx.WriteData(w, http.StatusOK, item)
}

func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id", "Capture")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	item, data, err := h.service.ReadFile(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.MapError(err))
		return
	}

	w.Header().Set("Content-Type", item.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id", "Capture")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	item, err := h.service.Retry(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.MapError(err))
		return
	}
	httpx.WriteData(w, http.StatusOK, dto.RetryResponse{ID: item.ID.String(), Status: string(item.Status)})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id", "Capture")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.WriteError(w, h.MapError(err))
		return
	}
	httpx.WriteData(w, http.StatusOK, dto.IDResponse{ID: id.String()})
}

// MapError переводит доменные ошибки в ответ API.
func (h *Handler) MapError(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var fileErr *FileError
	if errors.As(err, &fileErr) {
		switch {
		case errors.Is(err, ErrUnsupportedMime):
			return apperr.UnsupportedMediaType("Unsupported file type.").
				WithDetails(map[string]any{"mimeType": fileErr.MimeType})
		case errors.Is(err, ErrUnsupportedExt):
			return apperr.UnsupportedMediaType("Unsupported file extension.").
				WithDetails(map[string]any{"filename": fileErr.Filename})
		case errors.Is(err, ErrFileTooLarge):
			return apperr.TooLarge("Uploaded file exceeds size limit.").
				WithDetails(map[string]any{"filename": fileErr.Filename, "maxBytes": h.opts.MaxUploadBytes})
		}
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("Capture not found.")
	case errors.Is(err, ErrAlreadyDone):
		return apperr.Conflict(apperr.CodeAlreadyDone, "Capture already processed.")
	case errors.Is(err, ErrNoFiles):
		return apperr.BadRequest(apperr.CodeNoFiles, "No files provided.")
	case errors.Is(err, ErrTooManyFiles):
		return apperr.Validation(fmt.Sprintf("Too many files. At most %d files per request.", h.opts.MaxUploadFiles))
	case errors.Is(err, ErrInvalidPurpose):
		return apperr.BadRequest(apperr.CodeInvalidPurpose, "Invalid purpose.")
	case errors.Is(err, ErrInvalidCategory):
		return apperr.BadRequest(apperr.CodeInvalidCategory, "Invalid category.")
	case errors.Is(err, ErrInvalidStatus):
		return apperr.BadRequest(apperr.CodeInvalidStatus, "Invalid status.")
	case errors.Is(err, ErrInvalidDate):
		return apperr.BadRequest(apperr.CodeInvalidDate, "Invalid "+strings.TrimPrefix(err.Error(), ErrInvalidDate.Error()+": ")+" date.")
	}

	h.log.Error().Err(err).Msg("capture request failed")
	return apperr.Internal()
}
