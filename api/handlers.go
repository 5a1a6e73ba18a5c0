package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Aidin1998/pincex_aml/api/responses"
	"github.com/Aidin1998/pincex_aml/internal/compliance"
	"github.com/Aidin1998/pincex_aml/internal/compliance/audit"
	"github.com/Aidin1998/pincex_aml/internal/compliance/graph"
	"github.com/Aidin1998/pincex_aml/internal/compliance/service"
	"github.com/Aidin1998/pincex_aml/internal/database"
	"github.com/Aidin1998/pincex_aml/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// EvaluationResponse is the reply to POST /transactions
type EvaluationResponse struct {
	TransactionID string                   `json:"transaction_id"`
	Reference     string                   `json:"reference"`
	Status        models.TransactionStatus `json:"status"`
	RiskScore     float64                  `json:"risk_score"`
	Flags         []string                 `json:"flags"`
	FlaggedReason string                   `json:"flagged_reason,omitempty"`
	CircularCheck graph.Outcome            `json:"circular_check"`
	Unavailable   []string                 `json:"unavailable_rules,omitempty"`
	Action        string                   `json:"action"`
	AlertSent     bool                     `json:"alert_sent"`
	AuditHash     string                   `json:"audit_hash"`
}

// RingResponse is one detected laundering ring. Amounts[i] is the transfer
// from Path[i] to the next node on the ring.
type RingResponse struct {
	Path    []string `json:"path"`
	Hops    int      `json:"hops"`
	Amounts []string `json:"amounts"`
	Volume  string   `json:"volume"`
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.HealthChecks))
	healthy := true
	for name, check := range s.deps.HealthChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": checks, "time": time.Now().UTC()})
}

func (s *Server) evaluateTransaction(c *gin.Context) {
	var req service.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.BadRequest(c, "Invalid request body", err)
		return
	}

	result, err := s.deps.Evaluator.EvaluateTransaction(c.Request.Context(), req)
	if err != nil {
		s.writeEvaluationError(c, err)
		return
	}

	unavailable := make([]string, 0, len(result.Rules.Unavailable))
	for _, f := range result.Rules.Unavailable {
		unavailable = append(unavailable, f.RuleID)
	}
	flags := result.Decision.Reasons
	if flags == nil {
		flags = []string{}
	}

	responses.Created(c, EvaluationResponse{
		TransactionID: result.Transaction.ID.String(),
		Reference:     result.Transaction.Reference,
		Status:        result.Decision.Status,
		RiskScore:     result.Decision.Score,
		Flags:         flags,
		FlaggedReason: result.Decision.ReasonText,
		CircularCheck: result.Decision.CircularCheck,
		Unavailable:   unavailable,
		Action:        result.Escalation.Action,
		AlertSent:     result.Escalation.AlertSent,
		AuditHash:     result.Transaction.AuditHash,
	}, "Transaction evaluated")
}

func (s *Server) writeEvaluationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, compliance.ErrInvalidTransaction):
		responses.BadRequest(c, "Invalid transaction", err)
	case errors.Is(err, compliance.ErrCustomerNotFound):
		responses.NotFound(c, "Customer not found")
	case errors.Is(err, compliance.ErrLedgerWrite):
		responses.Error(c, responses.NewLedgerWriteError("The compliance record could not be persisted; the transaction was not recorded", c.Request.URL.Path))
	case errors.Is(err, compliance.ErrHistoryUnavailable):
		responses.ServiceUnavailable(c, "Customer store unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		responses.ServiceUnavailable(c, "Request cancelled")
	default:
		s.logger.Error("Transaction evaluation failed", zap.Error(err))
		responses.InternalServerError(c, "Transaction evaluation failed")
	}
}

func (s *Server) getTransaction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		responses.BadRequest(c, "Invalid transaction id", nil)
		return
	}

	txn, err := s.deps.Transactions.GetByID(c.Request.Context(), id)
	if errors.Is(err, database.ErrTransactionNotFound) {
		responses.NotFound(c, "Transaction not found")
		return
	}
	if err != nil {
		s.logger.Error("Failed to load transaction", zap.String("id", id.String()), zap.Error(err))
		responses.InternalServerError(c, "Failed to load transaction")
		return
	}
	responses.Success(c, txn)
}

func (s *Server) createCustomer(c *gin.Context) {
	var customer models.Customer
	if err := c.ShouldBindJSON(&customer); err != nil {
		responses.BadRequest(c, "Invalid request body", err)
		return
	}
	if err := s.validator.Struct(&customer); err != nil {
		responses.BadRequest(c, "Invalid customer", err)
		return
	}

	ctx := c.Request.Context()
	if _, err := s.deps.Customers.Get(ctx, customer.ID); err == nil {
		responses.Conflict(c, "Customer already exists")
		return
	} else if !errors.Is(err, compliance.ErrCustomerNotFound) {
		responses.ServiceUnavailable(c, "Customer store unavailable")
		return
	}

	if customer.RiskLevel == "" {
		customer.RiskLevel = models.RiskLevelLow
	}
	if err := s.deps.Customers.Create(ctx, &customer); err != nil {
		s.logger.Error("Failed to create customer", zap.String("id", customer.ID), zap.Error(err))
		responses.InternalServerError(c, "Failed to create customer")
		return
	}
	responses.Created(c, customer)
}

func (s *Server) getCustomer(c *gin.Context) {
	customer, err := s.deps.Customers.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, compliance.ErrCustomerNotFound) {
		responses.NotFound(c, "Customer not found")
		return
	}
	if err != nil {
		responses.ServiceUnavailable(c, "Customer store unavailable")
		return
	}
	responses.Success(c, customer)
}

func (s *Server) listCustomers(c *gin.Context) {
	offset, limit, ok := pageParams(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	total, err := s.deps.Customers.Count(ctx)
	if err != nil {
		responses.ServiceUnavailable(c, "Customer store unavailable")
		return
	}
	customers, err := s.deps.Customers.List(ctx, offset, limit)
	if err != nil {
		responses.ServiceUnavailable(c, "Customer store unavailable")
		return
	}
	responses.Paginated(c, customers, responses.NewPaginationMeta(offset, limit, total))
}

// auditTrail lists ledger entries newest first
func (s *Server) auditTrail(c *gin.Context) {
	offset, limit, ok := pageParams(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	total, err := s.deps.Audit.Count(ctx)
	if err != nil {
		s.logger.Error("Failed to count audit entries", zap.Error(err))
		responses.InternalServerError(c, "Failed to read audit trail")
		return
	}

	// Map the newest-first page onto the oldest-first store.
	end := total - int64(offset)
	start := end - int64(limit)
	if start < 0 {
		start = 0
	}
	entries := []audit.Entry{}
	if end > 0 {
		page, err := s.deps.Audit.Entries(ctx, int(start), int(end-start))
		if err != nil {
			s.logger.Error("Failed to list audit entries", zap.Error(err))
			responses.InternalServerError(c, "Failed to read audit trail")
			return
		}
		for i := len(page) - 1; i >= 0; i-- {
			entries = append(entries, page[i])
		}
	}

	responses.Paginated(c, entries, responses.NewPaginationMeta(offset, limit, total))
}

func (s *Server) verifyAudit(c *gin.Context) {
	v, err := s.deps.Audit.Verify(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to verify audit ledger", zap.Error(err))
		responses.InternalServerError(c, "Failed to verify audit ledger")
		return
	}
	if !v.Valid {
		s.logger.Error("Audit ledger integrity violation",
			zap.Intp("broken_at_index", v.BrokenAtIndex),
			zap.String("reason", v.Reason))
	}
	responses.Success(c, v)
}

func (s *Server) listRings(c *gin.Context) {
	rings, err := s.deps.Rings.DetectRings(c.Request.Context())
	if err != nil {
		if errors.Is(err, compliance.ErrGraphUnavailable) {
			responses.ServiceUnavailable(c, "Graph store unavailable")
			return
		}
		responses.InternalServerError(c, "Failed to detect rings")
		return
	}

	out := make([]RingResponse, 0, len(rings))
	for _, r := range rings {
		amounts := make([]string, len(r.Amounts))
		volume := decimal.Zero
		for i, a := range r.Amounts {
			amounts[i] = a.String()
			volume = volume.Add(a)
		}
		out = append(out, RingResponse{Path: r.Path, Hops: r.Hops, Amounts: amounts, Volume: volume.String()})
	}
	responses.Success(c, out)
}

func (s *Server) dashboard(c *gin.Context) {
	d, err := s.deps.Analytics.Dashboard(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to build dashboard", zap.Error(err))
		responses.InternalServerError(c, "Failed to build dashboard")
		return
	}
	responses.Success(c, d)
}

func pageParams(c *gin.Context) (offset, limit int, ok bool) {
	offset, limit = 0, defaultPageSize
	var err error
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			responses.BadRequest(c, "offset must be a non-negative integer", nil)
			return 0, 0, false
		}
	}
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			responses.BadRequest(c, "limit must be a positive integer", nil)
			return 0, 0, false
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit, true
}
