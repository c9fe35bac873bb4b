package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/akmatori/article73/internal/database"
	"github.com/akmatori/article73/internal/lifecycle"
)

// Machine-readable error codes
const (
	CodeInvalidClassification = "invalid_classification"
	CodeValidation            = "validation_error"
	CodeInvalidState          = "invalid_state"
	CodeNotFound              = "not_found"
	CodeRateLimited           = "rate_limited"
	CodeInternal              = "internal_error"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// RespondJSON writes data as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

// RespondError writes an error without a code.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondErrorWithCode writes an error response with a machine-readable code.
func RespondErrorWithCode(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// RespondValidationError writes field-level validation errors as a 422 response.
func RespondValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	RespondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "Validation failed",
		Code:    CodeValidation,
		Details: fieldErrors,
	})
}

// serviceErrors is checked in order; the first sentinel that matches wins
var serviceErrors = []struct {
	target error
	status int
	code   string
}{
	{lifecycle.ErrInvalidClassification, http.StatusUnprocessableEntity, CodeInvalidClassification},
	{lifecycle.ErrValidation, http.StatusUnprocessableEntity, CodeValidation},
	{lifecycle.ErrInvalidState, http.StatusConflict, CodeInvalidState},
	{lifecycle.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{database.ErrIncidentNotFound, http.StatusNotFound, CodeNotFound},
}

// RespondServiceError maps lifecycle and store errors to status codes.
// Anything unrecognized is logged and reported as a 500 without detail.
func RespondServiceError(w http.ResponseWriter, err error) {
	for _, se := range serviceErrors {
		if errors.Is(err, se.target) {
			RespondErrorWithCode(w, se.status, se.code, err.Error())
			return
		}
	}
	log.Printf("Internal error: %v", err)
	RespondErrorWithCode(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
}
