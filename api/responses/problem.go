// Package responses formats API replies. Errors use RFC 7807 problem details.
package responses

import (
	"fmt"
	"net/http"
	"time"
)

// ProblemDetails is an RFC 7807 error body
type ProblemDetails struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Status    int               `json:"status"`
	Detail    string            `json:"detail"`
	Instance  string            `json:"instance,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	TraceID   string            `json:"traceId,omitempty"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one field-level validation failure
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem types
const (
	TypeValidationError    = "https://aml.pincex.com/errors/validation-error"
	TypeNotFound           = "https://aml.pincex.com/errors/not-found"
	TypeConflict           = "https://aml.pincex.com/errors/conflict"
	TypeInternalError      = "https://aml.pincex.com/errors/internal-error"
	TypeServiceUnavailable = "https://aml.pincex.com/errors/service-unavailable"
	TypeLedgerWrite        = "https://aml.pincex.com/errors/ledger-write"
)

// Problem titles
const (
	TitleValidationError    = "Validation Error"
	TitleNotFound           = "Not Found"
	TitleConflict           = "Conflict"
	TitleInternalError      = "Internal Server Error"
	TitleServiceUnavailable = "Service Unavailable"
	TitleLedgerWrite        = "Compliance Record Not Persisted"
)

// NewProblemDetails creates a problem with the current timestamp
func NewProblemDetails(problemType, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		Timestamp: time.Now().UTC(),
	}
}

// AddValidationError appends a field error
func (p *ProblemDetails) AddValidationError(field, message, code string) *ProblemDetails {
	p.Errors = append(p.Errors, ValidationError{Field: field, Message: message, Code: code})
	return p
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

func NewValidationError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeValidationError, TitleValidationError, http.StatusBadRequest, detail, instance)
}

func NewNotFoundError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeNotFound, TitleNotFound, http.StatusNotFound, detail, instance)
}

func NewConflictError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeConflict, TitleConflict, http.StatusConflict, detail, instance)
}

func NewInternalError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInternalError, TitleInternalError, http.StatusInternalServerError, detail, instance)
}

func NewServiceUnavailableError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeServiceUnavailable, TitleServiceUnavailable, http.StatusServiceUnavailable, detail, instance)
}

// NewLedgerWriteError reports a transaction that was rolled back because its
// audit entry could not be written
func NewLedgerWriteError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeLedgerWrite, TitleLedgerWrite, http.StatusServiceUnavailable, detail, instance)
}
