// Package service sequences one transaction through screening, scoring,
// recording and escalation. It is the only part of the pipeline that touches
// the primary store.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Aidin1998/pincex_aml/internal/compliance"
	"github.com/Aidin1998/pincex_aml/internal/compliance/alerting"
	"github.com/Aidin1998/pincex_aml/internal/compliance/audit"
	"github.com/Aidin1998/pincex_aml/internal/compliance/graph"
	"github.com/Aidin1998/pincex_aml/internal/compliance/risk"
	"github.com/Aidin1998/pincex_aml/internal/compliance/rules"
	"github.com/Aidin1998/pincex_aml/internal/locking"
	"github.com/Aidin1998/pincex_aml/internal/messaging"
	"github.com/Aidin1998/pincex_aml/pkg/clock"
	"github.com/Aidin1998/pincex_aml/pkg/metrics"
	"github.com/Aidin1998/pincex_aml/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var (
	tracer = otel.Tracer("compliance-service")
	meter  = otel.Meter("compliance-service")
)

// CustomerStore looks up the sending customer
type CustomerStore interface {
	Get(ctx context.Context, id string) (*models.Customer, error)
}

// TransactionStore is the primary transactional store
type TransactionStore interface {
	rules.HistoryReader
	Append(ctx context.Context, txn *models.Transaction, beforeCommit func(ctx context.Context, txn *models.Transaction) error) error
}

// CircularChecker answers whether a transfer closes a ring
type CircularChecker interface {
	CheckCircular(ctx context.Context, from, to string) graph.CycleCheck
}

// EdgeSink receives committed transfers for the graph shadow
type EdgeSink interface {
	IngestEdge(ctx context.Context, edge graph.Edge) error
}

// DecisionPublisher announces committed decisions
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, event *messaging.DecisionMessage) error
}

// Dependencies are the long-lived components the service sequences.
// Edges and Decisions are optional.
type Dependencies struct {
	Customers    CustomerStore
	Transactions TransactionStore
	Engine       *rules.Engine
	Detector     CircularChecker
	Aggregator   *risk.Aggregator
	Ledger       *audit.Ledger
	Escalator    *alerting.Escalator
	Locker       locking.Locker
	Edges        EdgeSink
	Decisions    DecisionPublisher
	Clock        clock.Clock
	Logger       *zap.Logger
}

// EvaluateRequest is an incoming transfer to evaluate
type EvaluateRequest struct {
	Reference           string          `json:"transaction_id" validate:"omitempty,max=128"`
	CustomerID          string          `json:"customer_id" validate:"required,max=64"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency" validate:"required,len=3,alpha"`
	CounterpartyName    string          `json:"counterparty_name" validate:"max=200"`
	CounterpartyAccount string          `json:"counterparty_account" validate:"max=128"`
	Type                string          `json:"transaction_type" validate:"omitempty,max=16"`
}

// Result is everything the pipeline produced for one transaction
type Result struct {
	Transaction *models.Transaction `json:"transaction"`
	Decision    risk.Decision       `json:"decision"`
	Rules       rules.Evaluation    `json:"rules"`
	Escalation  alerting.Escalation `json:"escalation"`
	AuditEntry  *audit.Entry        `json:"audit_entry"`
}

// TransactionService evaluates transactions end to end
type TransactionService struct {
	deps        Dependencies
	validate    *validator.Validate
	evaluations metric.Int64Counter
	logger      *zap.Logger
}

// NewTransactionService checks dependencies and builds the service
func NewTransactionService(deps Dependencies) (*TransactionService, error) {
	switch {
	case deps.Customers == nil:
		return nil, errors.New("customer store is required")
	case deps.Transactions == nil:
		return nil, errors.New("transaction store is required")
	case deps.Engine == nil:
		return nil, errors.New("rule engine is required")
	case deps.Detector == nil:
		return nil, errors.New("cycle detector is required")
	case deps.Ledger == nil:
		return nil, errors.New("audit ledger is required")
	case deps.Escalator == nil:
		return nil, errors.New("escalator is required")
	}
	if deps.Aggregator == nil {
		deps.Aggregator = risk.NewAggregator()
	}
	if deps.Locker == nil {
		deps.Locker = locking.NewLocalLocker()
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	evaluations, err := meter.Int64Counter("aml.evaluations",
		metric.WithDescription("Transactions evaluated by final status"))
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation counter: %w", err)
	}

	return &TransactionService{
		deps:        deps,
		validate:    validate,
		evaluations: evaluations,
		logger:      deps.Logger,
	}, nil
}

func (s *TransactionService) validateRequest(req *EvaluateRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", compliance.ErrInvalidTransaction, err)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", compliance.ErrInvalidTransaction)
	}
	return nil
}

// EvaluateTransaction scores, records and escalates one transfer. Rule,
// history and graph outages degrade the evaluation; a ledger failure aborts it
// and nothing is persisted.
func (s *TransactionService) EvaluateTransaction(ctx context.Context, req EvaluateRequest) (*Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "compliance.EvaluateTransaction")
	defer span.End()

	if err := s.validateRequest(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	customer, err := s.deps.Customers.Get(ctx, req.CustomerID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Serialize count-then-insert per customer so concurrent transfers cannot
	// both read the same prior count.
	release, err := s.deps.Locker.Acquire(ctx, "velocity:"+customer.ID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("Velocity lock unavailable, evaluating without serialization",
			zap.String("customer_id", customer.ID), zap.Error(err))
		release = func() {}
	}
	defer release()

	now := s.deps.Clock.Now().UTC()
	txn := &models.Transaction{
		ID:                  uuid.New(),
		Reference:           req.Reference,
		CustomerID:          customer.ID,
		Amount:              req.Amount,
		Currency:            req.Currency,
		CounterpartyName:    req.CounterpartyName,
		CounterpartyAccount: req.CounterpartyAccount,
		Type:                req.Type,
		Timestamp:           now,
		Status:              models.StatusPending,
	}
	if txn.Reference == "" {
		txn.Reference = txn.ID.String()
	}
	span.SetAttributes(
		attribute.String("transaction.id", txn.ID.String()),
		attribute.String("customer.id", customer.ID),
	)

	eval := s.deps.Engine.Evaluate(ctx, txn, rules.EvalContext{
		CustomerID: customer.ID,
		History:    s.deps.Transactions,
		Now:        now,
	})

	check := s.deps.Detector.CheckCircular(ctx, customer.GraphNodeID(), req.CounterpartyAccount)
	if check.Outcome == graph.OutcomeUnavailable {
		s.logger.Warn("Circular check unknown for transaction",
			zap.String("transaction_id", txn.ID.String()), zap.Error(check.Err))
	}

	decision := s.deps.Aggregator.Aggregate(eval.Triggered, check)
	txn.Status = decision.Status
	txn.RiskScore = decision.Score
	txn.FlaggedReason = decision.ReasonText

	var entry *audit.Entry
	err = s.deps.Transactions.Append(ctx, txn, func(ctx context.Context, txn *models.Transaction) error {
		var lerr error
		entry, lerr = s.deps.Ledger.LogEvent(ctx, audit.EventTransactionRiskEvaluation,
			severityFor(decision.Status), auditDetails(txn, decision, eval), audit.ActorSystem)
		if lerr != nil {
			return lerr
		}
		txn.AuditHash = entry.Hash
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decision not recorded")
		if errors.Is(err, compliance.ErrLedgerWrite) {
			s.logger.Error("Compliance record not persisted, transaction rolled back",
				zap.String("transaction_id", txn.ID.String()), zap.Error(err))
			return nil, err
		}
		return nil, fmt.Errorf("failed to persist transaction: %w", err)
	}
	release()

	escalation := s.deps.Escalator.Escalate(alerting.Alert{
		ID:            uuid.New(),
		TransactionID: txn.ID.String(),
		CustomerID:    customer.ID,
		RiskScore:     decision.Score,
		Flags:         decision.Reasons,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		CreatedAt:     now,
	})

	s.shadowWrite(ctx, customer, txn, decision)

	metrics.DecisionsTotal.WithLabelValues(string(decision.Status)).Inc()
	s.evaluations.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(decision.Status))))
	metrics.EvaluationLatency.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("decision.status", string(decision.Status)),
		attribute.Float64("decision.score", decision.Score),
	)
	s.logger.Info("Transaction evaluated",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("customer_id", customer.ID),
		zap.String("status", string(decision.Status)),
		zap.Float64("risk_score", decision.Score),
		zap.String("circular_check", string(decision.CircularCheck)),
		zap.Int("rules_unavailable", len(eval.Unavailable)),
		zap.Bool("alert_sent", escalation.AlertSent))

	return &Result{
		Transaction: txn,
		Decision:    decision,
		Rules:       eval,
		Escalation:  escalation,
		AuditEntry:  entry,
	}, nil
}

// shadowWrite pushes the committed transfer to the graph and the decision
// topic. Failures are warnings; the record is already committed.
func (s *TransactionService) shadowWrite(ctx context.Context, customer *models.Customer, txn *models.Transaction, decision risk.Decision) {
	ctx = context.WithoutCancel(ctx)

	if s.deps.Edges != nil && txn.CounterpartyAccount != "" {
		err := s.deps.Edges.IngestEdge(ctx, graph.Edge{
			From:          customer.GraphNodeID(),
			To:            txn.CounterpartyAccount,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			TransactionID: txn.ID.String(),
			Timestamp:     txn.Timestamp,
		})
		if err != nil {
			metrics.GraphIngestFailures.Inc()
			s.logger.Warn("Graph sync failed, left for reconciliation",
				zap.String("transaction_id", txn.ID.String()), zap.Error(err))
		}
	}

	if s.deps.Decisions != nil {
		err := s.deps.Decisions.PublishDecision(ctx, &messaging.DecisionMessage{
			BaseMessage:   messaging.NewBaseMessage(messaging.MsgDecisionRecorded, "amlsentinel", txn.Reference),
			TransactionID: txn.ID.String(),
			CustomerID:    customer.ID,
			Status:        string(decision.Status),
			RiskScore:     decision.Score,
			Reasons:       decision.Reasons,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			AuditHash:     txn.AuditHash,
		})
		if err != nil {
			s.logger.Warn("Decision event not published",
				zap.String("transaction_id", txn.ID.String()), zap.Error(err))
		}
	}
}

func severityFor(status models.TransactionStatus) audit.Severity {
	switch status {
	case models.StatusBlocked:
		return audit.SeverityCritical
	case models.StatusFlagged:
		return audit.SeverityWarning
	default:
		return audit.SeverityInfo
	}
}

func auditDetails(txn *models.Transaction, decision risk.Decision, eval rules.Evaluation) map[string]any {
	triggered := make([]string, 0, len(eval.Triggered))
	for _, r := range eval.Triggered {
		triggered = append(triggered, r.RuleID)
	}
	unavailable := make([]string, 0, len(eval.Unavailable))
	for _, f := range eval.Unavailable {
		unavailable = append(unavailable, f.RuleID)
	}
	flags := decision.Reasons
	if flags == nil {
		flags = []string{}
	}

	return map[string]any{
		"transaction_id":       txn.ID.String(),
		"reference":            txn.Reference,
		"customer_id":          txn.CustomerID,
		"amount":               txn.Amount.String(),
		"currency":             txn.Currency,
		"counterparty_name":    txn.CounterpartyName,
		"counterparty_account": txn.CounterpartyAccount,
		"status":               string(decision.Status),
		"risk_score":           decision.Score,
		"flags":                flags,
		"triggered_rules":      triggered,
		"unavailable_rules":    unavailable,
		"circular_check":       string(decision.CircularCheck),
	}
}
