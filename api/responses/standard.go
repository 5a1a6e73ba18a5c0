package responses

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
)

// StandardResponse is the envelope for successful replies
type StandardResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// PaginatedResponse adds page metadata to StandardResponse
type PaginatedResponse struct {
	StandardResponse
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

// PaginationMeta describes an offset page
type PaginationMeta struct {
	Offset       int   `json:"offset"`
	Limit        int   `json:"limit"`
	TotalRecords int64 `json:"total_records"`
	HasNext      bool  `json:"has_next"`
}

// Success sends a 200 response
func Success(c *gin.Context, data interface{}, message ...string) {
	respond(c, http.StatusOK, data, pick(message, "Operation successful"))
}

// Created sends a 201 response
func Created(c *gin.Context, data interface{}, message ...string) {
	respond(c, http.StatusCreated, data, pick(message, "Resource created successfully"))
}

// Paginated sends a page of results
func Paginated(c *gin.Context, data interface{}, pagination *PaginationMeta, message ...string) {
	c.JSON(http.StatusOK, PaginatedResponse{
		StandardResponse: StandardResponse{
			Success:   true,
			Data:      data,
			Message:   pick(message, "Data retrieved successfully"),
			Timestamp: time.Now().UTC(),
			TraceID:   getTraceID(c),
		},
		Pagination: pagination,
	})
}

// Error sends an RFC 7807 problem
func Error(c *gin.Context, problem *ProblemDetails) {
	if problem.TraceID == "" {
		problem.TraceID = getTraceID(c)
	}
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(problem.Status, problem)
}

// BadRequest sends a 400 problem. Validator errors become field errors.
func BadRequest(c *gin.Context, detail string, err error) {
	problem := NewValidationError(detail, c.Request.URL.Path)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			problem.AddValidationError(fe.Field(), fe.Error(), fe.Tag())
		}
	} else if err != nil {
		problem.Detail = detail + ": " + err.Error()
	}
	Error(c, problem)
}

// NotFound sends a 404 problem
func NotFound(c *gin.Context, detail string) {
	Error(c, NewNotFoundError(detail, c.Request.URL.Path))
}

// Conflict sends a 409 problem
func Conflict(c *gin.Context, detail string) {
	Error(c, NewConflictError(detail, c.Request.URL.Path))
}

// InternalServerError sends a 500 problem without leaking the cause
func InternalServerError(c *gin.Context, detail string) {
	Error(c, NewInternalError(detail, c.Request.URL.Path))
}

// ServiceUnavailable sends a 503 problem
func ServiceUnavailable(c *gin.Context, detail string) {
	Error(c, NewServiceUnavailableError(detail, c.Request.URL.Path))
}

// NewPaginationMeta builds offset pagination metadata
func NewPaginationMeta(offset, limit int, total int64) *PaginationMeta {
	return &PaginationMeta{
		Offset:       offset,
		Limit:        limit,
		TotalRecords: total,
		HasNext:      int64(offset+limit) < total,
	}
}

func respond(c *gin.Context, status int, data interface{}, msg string) {
	c.JSON(status, StandardResponse{
		Success:   true,
		Data:      data,
		Message:   msg,
		Timestamp: time.Now().UTC(),
		TraceID:   getTraceID(c),
	})
}

func pick(message []string, fallback string) string {
	if len(message) > 0 && message[0] != "" {
		return message[0]
	}
	return fallback
}

// getTraceID prefers the active span, then the X-Trace-ID header
func getTraceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return c.GetHeader("X-Trace-ID")
}
