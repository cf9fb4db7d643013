// Package httpx - общие помощники HTTP-хендлеров: JSON ответы, разбор тела и параметров.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FJFJ0400/capture-ai/internal/apperr"
)

const maxBodySize = 1 << 20 // 1MB

var (
	errEmptyBody   = errors.New("request body is empty")
	errUnknownBody = errors.New("request body contains unexpected data")
)

// Envelope - стандартная обёртка успешного ответа.
type Envelope struct {
	Data any `json:"data"`
}

// DecodeJSON читает JSON тело запроса; ошибки приводятся к VALIDATION_ERROR.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.Validation(errEmptyBody.Error())
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation(errEmptyBody.Error())
		}
		return apperr.Validation("Invalid JSON body.").WithDetails(map[string]any{"reason": err.Error()})
	}
	if decoder.More() {
		return apperr.Validation(errUnknownBody.Error())
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write json error: %v", err)
	}
}

// WriteData пишет {"data": payload}.
func WriteData(w http.ResponseWriter, status int, payload any) {
	WriteJSON(w, status, Envelope{Data: payload})
}

func WriteError(w http.ResponseWriter, err error) {
	apperr.Write(w, err)
}

// IDParam разбирает UUID из параметра маршрута.
func IDParam(r *http.Request, name, entity string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.NotFound(entity + " not found.")
	}
	return id, nil
}
