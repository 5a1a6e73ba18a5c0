package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Aidin1998/pincex_aml/internal/compliance"
	"github.com/Aidin1998/pincex_aml/internal/compliance/alerting"
	"github.com/Aidin1998/pincex_aml/internal/compliance/audit"
	"github.com/Aidin1998/pincex_aml/internal/compliance/graph"
	"github.com/Aidin1998/pincex_aml/internal/compliance/rules"
	"github.com/Aidin1998/pincex_aml/internal/compliance/screening"
	"github.com/Aidin1998/pincex_aml/internal/database"
	"github.com/Aidin1998/pincex_aml/internal/locking"
	"github.com/Aidin1998/pincex_aml/pkg/clock"
	"github.com/Aidin1998/pincex_aml/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	mu     sync.Mutex
	alerts []alerting.Alert
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, a alerting.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

type brokenAuditStore struct{}

func (brokenAuditStore) Tail(context.Context) (*audit.Entry, error) { return nil, nil }
func (brokenAuditStore) Append(context.Context, *audit.Entry) error {
	return errors.New("disk full")
}
func (brokenAuditStore) List(context.Context, int, int) ([]audit.Entry, error) { return nil, nil }
func (brokenAuditStore) Count(context.Context) (int64, error)                  { return 0, nil }

type downGraphStore struct{}

func (downGraphStore) IngestEdge(context.Context, graph.Edge) error { return errors.New("connection refused") }
func (downGraphStore) FindCycles(context.Context, int, int, int) ([]graph.Ring, error) {
	return nil, errors.New("connection refused")
}
func (downGraphStore) FindPath(context.Context, string, string, int) ([]string, error) {
	return nil, errors.New("connection refused")
}

type fixture struct {
	svc        *TransactionService
	txns       *database.TransactionRepository
	ledger     *audit.Ledger
	graph      *graph.MemoryStore
	sink       *recordingSink
	dispatcher *alerting.Dispatcher
	clock      *clock.Manual
}

type fixtureOption func(*Dependencies)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := database.NewSQLiteDB("")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	customers := database.NewCustomerRepository(db)
	require.NoError(t, customers.Create(context.Background(), &models.Customer{
		ID: "cust-1", FullName: "Jane Roe", Email: "jane@example.test", AccountNumber: "ACC-0001",
	}))
	txns := database.NewTransactionRepository(db)

	clk := clock.NewManual(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	ledger := audit.NewLedger(audit.NewFileStore(filepath.Join(t.TempDir(), "ledger.jsonl")), clk, logger)

	store := graph.NewMemoryStore()
	sink := &recordingSink{}
	dispatcher := alerting.NewDispatcher(alerting.DefaultDispatcherConfig(), logger, sink)
	dispatcher.Start()
	t.Cleanup(func() { _ = dispatcher.Stop(context.Background()) })

	watchlist := screening.NewWatchlist(screening.DefaultSanctionsList, screening.DefaultMatchThreshold, nil, logger)
	deps := Dependencies{
		Customers:    customers,
		Transactions: txns,
		Engine: rules.NewEngine(logger,
			rules.NewStructuringRule(),
			rules.NewVelocityRule(),
			rules.NewWatchlistRule(watchlist)),
		Detector:  graph.NewDetector(store, graph.DefaultConfig(), logger),
		Ledger:    ledger,
		Escalator: alerting.NewEscalator(alerting.DefaultAlertThreshold, dispatcher, logger),
		Locker:    locking.NewLocalLocker(),
		Edges:     store,
		Clock:     clk,
		Logger:    logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	svc, err := NewTransactionService(deps)
	require.NoError(t, err)

	return &fixture{
		svc:        svc,
		txns:       txns,
		ledger:     deps.Ledger,
		graph:      store,
		sink:       sink,
		dispatcher: dispatcher,
		clock:      clk,
	}
}

func request(amount, counterparty, account string) EvaluateRequest {
	return EvaluateRequest{
		CustomerID:          "cust-1",
		Amount:              decimal.RequireFromString(amount),
		Currency:            "USD",
		CounterpartyName:    counterparty,
		CounterpartyAccount: account,
	}
}

func TestEvaluate_CleanTransfer(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.EvaluateTransaction(context.Background(), request("250.00", "Acme Supplies", "ACC-9000"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, res.Transaction.Status)
	assert.Zero(t, res.Decision.Score)
	assert.Empty(t, res.Transaction.FlaggedReason)
	assert.Equal(t, alerting.EscalationProcessed, res.Escalation.Status)
	assert.False(t, res.Escalation.AlertSent)
	assert.Equal(t, graph.OutcomeNotFound, res.Decision.CircularCheck)

	require.NotNil(t, res.AuditEntry)
	assert.Equal(t, res.AuditEntry.Hash, res.Transaction.AuditHash)
	assert.Equal(t, audit.SeverityInfo, res.AuditEntry.Severity)
	assert.Equal(t, res.Transaction.ID.String(), res.Transaction.Reference)

	stored, err := f.txns.GetByID(context.Background(), res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, res.AuditEntry.Hash, stored.AuditHash)
	assert.Equal(t, 1, f.graph.EdgeCount())
}

func TestEvaluate_Structuring(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.EvaluateTransaction(context.Background(), request("9500", "Acme Supplies", "ACC-9000"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusFlagged, res.Transaction.Status)
	assert.Equal(t, 75.0, res.Decision.Score)
	assert.Contains(t, res.Transaction.FlaggedReason, "Structuring")
	assert.Equal(t, alerting.EscalationProcessed, res.Escalation.Status)
	assert.Equal(t, audit.SeverityWarning, res.AuditEntry.Severity)
}

func TestEvaluate_VelocityAfterThreePrior(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := f.svc.EvaluateTransaction(ctx, request("100", "Acme Supplies", ""))
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, res.Transaction.Status)
		f.clock.Advance(time.Minute)
	}

	res, err := f.svc.EvaluateTransaction(ctx, request("100", "Acme Supplies", ""))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFlagged, res.Transaction.Status)
	assert.Equal(t, 60.0, res.Decision.Score)
	assert.Equal(t, "Velocity High: 3 prior transactions in last 5 mins.", res.Transaction.FlaggedReason)

	// Older transfers fall out of the window.
	f.clock.Advance(10 * time.Minute)
	res, err = f.svc.EvaluateTransaction(ctx, request("100", "Acme Supplies", ""))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Transaction.Status)
}

func TestEvaluate_StructuringWithVelocityTakesMax(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.EvaluateTransaction(ctx, request("100", "Acme Supplies", ""))
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	res, err := f.svc.EvaluateTransaction(ctx, request("9500", "Acme Supplies", ""))
	require.NoError(t, err)

	assert.Equal(t, models.StatusFlagged, res.Transaction.Status)
	assert.Equal(t, 75.0, res.Decision.Score)
	assert.Equal(t, 75.0, res.Transaction.RiskScore)
	assert.Equal(t,
		"Transaction amount 9500 is just below the reporting threshold of 10000. Potential Structuring."+
			" | Velocity High: 3 prior transactions in last 5 mins.",
		res.Transaction.FlaggedReason)
	require.Len(t, res.Rules.Triggered, 2)
	assert.Equal(t, alerting.EscalationProcessed, res.Escalation.Status)
}

func TestEvaluate_SanctionsHitBlocksAndAlerts(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.EvaluateTransaction(context.Background(), request("9500", "Ivan Dragg", "ACC-7777"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusBlocked, res.Transaction.Status)
	assert.Equal(t, 100.0, res.Decision.Score)
	require.Len(t, res.Decision.Reasons, 2)
	assert.Contains(t, res.Decision.Reasons[1], "SANCTION MATCH")
	assert.Contains(t, res.Transaction.FlaggedReason, " | ")
	assert.Equal(t, alerting.EscalationBlocked, res.Escalation.Status)
	assert.Equal(t, alerting.ActionEscalated, res.Escalation.Action)
	assert.True(t, res.Escalation.AlertSent)
	assert.Equal(t, audit.SeverityCritical, res.AuditEntry.Severity)

	require.NoError(t, f.dispatcher.Stop(context.Background()))
	require.Len(t, f.sink.alerts, 1)
	assert.Equal(t, res.Transaction.ID.String(), f.sink.alerts[0].TransactionID)
}

func TestEvaluate_CircularFlowBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.clock.Now()

	require.NoError(t, f.graph.IngestEdge(ctx, graph.Edge{From: "ACC-X", To: "ACC-Y", Amount: decimal.NewFromInt(900), Currency: "USD", Timestamp: at}))
	require.NoError(t, f.graph.IngestEdge(ctx, graph.Edge{From: "ACC-Y", To: "ACC-0001", Amount: decimal.NewFromInt(880), Currency: "USD", Timestamp: at}))

	res, err := f.svc.EvaluateTransaction(ctx, request("1000", "Shell Co", "ACC-X"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusBlocked, res.Transaction.Status)
	assert.Equal(t, 100.0, res.Decision.Score)
	assert.Equal(t, graph.OutcomeConfirmed, res.Decision.CircularCheck)
	assert.Equal(t, graph.CircularFlowMessage, res.Transaction.FlaggedReason)
	assert.True(t, res.Escalation.AlertSent)

	rings, err := graph.NewDetector(f.graph, graph.DefaultConfig(), nil).DetectRings(ctx)
	require.NoError(t, err)
	require.Len(t, rings, 1)
	assert.Equal(t, 3, rings[0].Hops)
}

func TestEvaluate_GraphDownDegrades(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) {
		d.Detector = graph.NewDetector(downGraphStore{}, graph.DefaultConfig(), nil)
		d.Edges = downGraphStore{}
	})

	res, err := f.svc.EvaluateTransaction(context.Background(), request("9500", "Acme Supplies", "ACC-X"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusFlagged, res.Transaction.Status)
	assert.Equal(t, 75.0, res.Decision.Score)
	assert.Equal(t, graph.OutcomeUnavailable, res.Decision.CircularCheck)
	assert.Equal(t, "unavailable", res.AuditEntry.Details["circular_check"])
}

func TestEvaluate_LedgerFailureAborts(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) {
		d.Ledger = audit.NewLedger(brokenAuditStore{}, clock.System{}, nil)
	})

	res, err := f.svc.EvaluateTransaction(context.Background(), request("9500", "Ivan Dragg", "ACC-7777"))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, compliance.ErrLedgerWrite)

	totals, err := f.txns.Totals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, totals.TotalTransactions)
	assert.Zero(t, f.graph.EdgeCount())

	require.NoError(t, f.dispatcher.Stop(context.Background()))
	assert.Empty(t, f.sink.alerts)
}

func TestEvaluate_InvalidRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]EvaluateRequest{
		"zero amount":      request("0", "Acme", ""),
		"negative amount":  request("-5", "Acme", ""),
		"missing customer": {Amount: decimal.NewFromInt(10), Currency: "USD"},
		"bad currency":     {CustomerID: "cust-1", Amount: decimal.NewFromInt(10), Currency: "US"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.EvaluateTransaction(ctx, req)
			assert.ErrorIs(t, err, compliance.ErrInvalidTransaction)
		})
	}

	req := request("10", "Acme", "")
	req.CustomerID = "nobody"
	_, err := f.svc.EvaluateTransaction(ctx, req)
	assert.ErrorIs(t, err, compliance.ErrCustomerNotFound)
}

func TestEvaluate_ConcurrentVelocitySerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 6
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[models.TransactionStatus]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.EvaluateTransaction(ctx, request("100", "Acme Supplies", ""))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			statuses[res.Transaction.Status]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, statuses[models.StatusCompleted])
	assert.Equal(t, 3, statuses[models.StatusFlagged])
}

func TestEvaluate_LedgerChainVerifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, amount := range []string{"100", "9500", "250"} {
		_, err := f.svc.EvaluateTransaction(ctx, request(amount, "Acme Supplies", "ACC-9000"))
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	v, err := f.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, 3, v.Checked)

	entries, err := f.ledger.Entries(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, audit.EventTransactionRiskEvaluation, entries[0].EventType)
	assert.Equal(t, audit.ActorSystem, entries[0].Actor)
	assert.Equal(t, audit.GenesisHash, entries[0].PreviousHash)
	assert.Equal(t, entries[0].Hash, entries[1].PreviousHash)
}

func TestAnalytics_Dashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := NewAnalytics(f.txns).Dashboard(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalTransactions)
	assert.Zero(t, empty.BlockRate)
	assert.Empty(t, empty.RecentAlerts)

	for _, req := range []EvaluateRequest{
		request("100", "Acme Supplies", ""),
		request("9500", "Acme Supplies", ""),
		request("400", "Ivan Dragg", ""),
		request("600", "Pablo Escobar", ""),
	} {
		_, err := f.svc.EvaluateTransaction(ctx, req)
		require.NoError(t, err)
		f.clock.Advance(2 * time.Minute)
	}

	d, err := NewAnalytics(f.txns).Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), d.TotalTransactions)
	assert.True(t, decimal.NewFromInt(10600).Equal(d.TotalVolume))
	assert.Equal(t, int64(2), d.BlockedTransactions)
	assert.True(t, decimal.NewFromInt(1000).Equal(d.BlockedVolume))
	assert.InDelta(t, 50.0, d.BlockRate, 0.001)
	assert.Len(t, d.RiskDistribution, 2)
	require.Len(t, d.RecentAlerts, 2)
	assert.Equal(t, "Pablo Escobar", d.RecentAlerts[0].Counterparty)
}
