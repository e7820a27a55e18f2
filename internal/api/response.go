package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/tutorcore/internal/domain"
)

// SuccessResponse wraps successful responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainErrorToHTTP maps the error taxonomy to HTTP status codes.
func DomainErrorToHTTP(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case domain.IsCode(err, domain.ErrCodeValidation):
		return http.StatusBadRequest
	case domain.IsCode(err, domain.ErrCodeNotFound):
		return http.StatusNotFound
	case domain.IsCode(err, domain.ErrCodeAlreadyExists):
		return http.StatusConflict
	case domain.IsCode(err, domain.ErrCodeAuthorizationDenied):
		return http.StatusForbidden
	case domain.IsCode(err, domain.ErrCodeTransientProvider):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes a response for err. Internal failures never leak
// their message.
func HandleError(w http.ResponseWriter, err error) {
	status := DomainErrorToHTTP(err)
	resp := ErrorResponse{Error: http.StatusText(status)}
	var de *domain.DomainError
	if status != http.StatusInternalServerError && errors.As(err, &de) {
		resp = ErrorResponse{Error: de.Message, Code: de.Code}
	}
	JSON(w, status, resp)
}
