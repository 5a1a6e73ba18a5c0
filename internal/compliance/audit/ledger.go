package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Aidin1998/pincex_aml/internal/compliance"
	"github.com/Aidin1998/pincex_aml/pkg/clock"
	"github.com/Aidin1998/pincex_aml/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const verifyPageSize = 500

// Ledger is the single writer of the audit chain. LogEvent holds the append
// lock across read-tail, hash and append, so concurrent callers can never
// produce two entries with the same predecessor.
type Ledger struct {
	store  Store
	clock  clock.Clock
	logger *zap.Logger

	mu     sync.Mutex
	tail   *Entry
	loaded bool
}

// NewLedger creates a ledger over store
func NewLedger(store Store, clk clock.Clock, logger *zap.Logger) *Ledger {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, clock: clk, logger: logger}
}

// LogEvent appends one entry. Any failure wraps compliance.ErrLedgerWrite and
// means nothing was recorded.
func (l *Ledger) LogEvent(ctx context.Context, eventType string, severity Severity, details map[string]any, actor string) (*Entry, error) {
	start := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := l.append(ctx, eventType, severity, details, actor)
	if err != nil {
		metrics.LedgerAppendFailures.Inc()
		l.logger.Error("Audit ledger append failed",
			zap.String("event_type", eventType),
			zap.String("actor", actor),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", compliance.ErrLedgerWrite, err)
	}

	metrics.LedgerAppendLatency.Observe(time.Since(start).Seconds())
	l.logger.Debug("Audit entry appended",
		zap.Int64("sequence", entry.Sequence),
		zap.String("event_type", eventType),
		zap.String("hash", entry.Hash))
	return entry, nil
}

func (l *Ledger) append(ctx context.Context, eventType string, severity Severity, details map[string]any, actor string) (*Entry, error) {
	if eventType == "" {
		return nil, fmt.Errorf("event type is required")
	}
	if actor == "" {
		actor = ActorSystem
	}
	if _, reserved := details[EntryBindingKey]; reserved {
		return nil, fmt.Errorf("details key %q is reserved", EntryBindingKey)
	}

	if !l.loaded {
		tail, err := l.store.Tail(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read chain tail: %w", err)
		}
		l.tail, l.loaded = tail, true
	}

	// Round-trip details through canonical JSON so the returned entry is
	// exactly what a later read will hash.
	canonical, err := CanonicalDetails(details)
	if err != nil {
		return nil, err
	}
	stored, err := DecodeDetails(canonical)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:           uuid.New(),
		Timestamp:    l.clock.Now().UTC().Truncate(time.Microsecond),
		EventType:    eventType,
		Severity:     severity,
		Actor:        actor,
		Details:      stored,
		PreviousHash: GenesisHash,
	}
	if l.tail != nil {
		entry.Sequence = l.tail.Sequence + 1
		entry.PreviousHash = l.tail.Hash
	}

	entry.Hash, err = entry.Recompute()
	if err != nil {
		return nil, err
	}

	if err := l.store.Append(ctx, entry); err != nil {
		// The store state is unknown now; reload the tail on the next append.
		l.loaded = false
		return nil, fmt.Errorf("failed to persist entry: %w", err)
	}

	l.tail = entry
	return entry, nil
}

// Entries returns entries oldest first
func (l *Ledger) Entries(ctx context.Context, offset, limit int) ([]Entry, error) {
	return l.store.List(ctx, offset, limit)
}

// Count returns the number of entries in the ledger
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	return l.store.Count(ctx)
}

// Verify walks the whole stored chain from genesis
func (l *Ledger) Verify(ctx context.Context) (Verification, error) {
	v := newVerifier(GenesisHash, 0)
	for offset := 0; ; offset += verifyPageSize {
		page, err := l.store.List(ctx, offset, verifyPageSize)
		if err != nil {
			return Verification{}, fmt.Errorf("failed to read audit entries: %w", err)
		}
		for i := range page {
			if !v.step(&page[i]) {
				result := v.result()
				l.logger.Error("Audit chain verification failed",
					zap.Intp("broken_at_index", result.BrokenAtIndex),
					zap.String("reason", result.Reason))
				return result, nil
			}
		}
		if len(page) < verifyPageSize {
			break
		}
	}

	result := v.result()
	l.logger.Info("Audit chain verified", zap.Int("entries", result.Checked))
	return result, nil
}
