package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
)

// Code - машинно-читаемый код ошибки API.
type Code string

const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeUnsupportedMediaType Code = "UNSUPPORTED_MEDIA_TYPE"
	CodeFileTooLarge         Code = "FILE_TOO_LARGE"
	CodeNoFiles              Code = "NO_FILES"
	CodeInvalidPurpose       Code = "INVALID_PURPOSE"
	CodeInvalidCategory      Code = "INVALID_CATEGORY"
	CodeInvalidStatus        Code = "INVALID_STATUS"
	CodeInvalidDate          Code = "INVALID_DATE"
	CodeAlreadyDone          Code = "ALREADY_DONE"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Error - структурированная ошибка с HTTP статусом.
type Error struct {
	Code    Code
	Status  int
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(status int, code Code, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// WithDetails возвращает копию ошибки с деталями.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

func BadRequest(code Code, message string) *Error {
	return New(http.StatusBadRequest, code, message)
}

func Validation(message string) *Error {
	return New(http.StatusBadRequest, CodeValidation, message)
}

func Conflict(code Code, message string) *Error {
	return New(http.StatusConflict, code, message)
}

func UnsupportedMediaType(message string) *Error {
	return New(http.StatusUnsupportedMediaType, CodeUnsupportedMediaType, message)
}

func TooLarge(message string) *Error {
	return New(http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

func Internal() *Error {
	return New(http.StatusInternalServerError, CodeInternal, "Unexpected server error.")
}

// As извлекает *Error из цепочки; иначе возвращает INTERNAL_ERROR.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal()
}

type body struct {
	Error payload `json:"error"`
}

type payload struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Write пишет ошибку в формате {"error":{code,message,details}}.
func Write(w http.ResponseWriter, err error) {
	appErr := As(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	if encErr := json.NewEncoder(w).Encode(body{Error: payload{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}}); encErr != nil {
		log.Printf("write error body: %v", encErr)
	}
}
