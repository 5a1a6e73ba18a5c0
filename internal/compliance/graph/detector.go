package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/pincex_aml/internal/compliance"
	"github.com/Aidin1998/pincex_aml/pkg/metrics"
	"go.uber.org/zap"
)

// CircularFlowMessage is appended to the decision reason on a confirmed ring
const CircularFlowMessage = "Graph: Circular Round-Trip Detected (LAUNDERING SIGNAL)"

// Config bounds cycle queries
type Config struct {
	MinHops      int
	MaxHops      int
	Limit        int
	QueryTimeout time.Duration
}

// DefaultConfig returns 2..4 hop cycles, at most 10 per query
func DefaultConfig() Config {
	return Config{
		MinHops:      2,
		MaxHops:      4,
		Limit:        10,
		QueryTimeout: 2 * time.Second,
	}
}

// Outcome of a circular-flow check for one transaction
type Outcome string

const (
	OutcomeNotFound    Outcome = "not_found"
	OutcomeConfirmed   Outcome = "confirmed"
	OutcomeUnavailable Outcome = "unavailable"
)

// CycleCheck keeps "no cycle" and "could not check" apart
type CycleCheck struct {
	Outcome Outcome  `json:"outcome"`
	Path    []string `json:"path,omitempty"`
	Err     error    `json:"-"`
}

// Confirmed reports whether a ring through the transaction's parties exists
func (c CycleCheck) Confirmed() bool {
	return c.Outcome == OutcomeConfirmed
}

// Detector runs bounded cycle queries against a graph store
type Detector struct {
	store  Store
	config Config
	logger *zap.Logger
}

// NewDetector creates a detector. Zero config fields take defaults.
func NewDetector(store Store, config Config, logger *zap.Logger) *Detector {
	def := DefaultConfig()
	if config.MinHops <= 0 {
		config.MinHops = def.MinHops
	}
	if config.MaxHops < config.MinHops {
		config.MaxHops = def.MaxHops
	}
	if config.Limit <= 0 {
		config.Limit = def.Limit
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = def.QueryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{store: store, config: config, logger: logger}
}

// Store returns the underlying graph store
func (d *Detector) Store() Store {
	return d.store
}

// DetectRings returns up to Limit rings of MinHops..MaxHops edges. An
// unreachable store yields an error wrapping ErrGraphUnavailable; an empty
// slice with a nil error means the graph was checked and is clean.
func (d *Detector) DetectRings(ctx context.Context) ([]Ring, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.QueryTimeout)
	defer cancel()

	rings, err := d.store.FindCycles(ctx, d.config.MinHops, d.config.MaxHops, d.config.Limit)
	if err != nil {
		d.logger.Warn("Graph store unavailable for ring detection", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", compliance.ErrGraphUnavailable, err)
	}
	if len(rings) > d.config.Limit {
		rings = rings[:d.config.Limit]
	}
	return rings, nil
}

// CheckCircular reports whether a transfer from -> to would close a ring of
// MinHops..MaxHops edges, i.e. whether to already reaches from.
func (d *Detector) CheckCircular(ctx context.Context, from, to string) CycleCheck {
	if from == "" || to == "" || from == to {
		metrics.GraphChecks.WithLabelValues(string(OutcomeNotFound)).Inc()
		return CycleCheck{Outcome: OutcomeNotFound}
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.QueryTimeout)
	defer cancel()

	back, err := d.store.FindPath(ctx, to, from, d.config.MaxHops-1)
	if err != nil {
		metrics.GraphChecks.WithLabelValues(string(OutcomeUnavailable)).Inc()
		d.logger.Warn("Circular check unavailable, graph store unreachable",
			zap.String("from", from), zap.String("to", to), zap.Error(err))
		return CycleCheck{
			Outcome: OutcomeUnavailable,
			Err:     fmt.Errorf("%w: %v", compliance.ErrGraphUnavailable, err),
		}
	}

	// back starts at to and ends at from; prepend the pending transfer.
	if len(back) < 2 || len(back) < d.config.MinHops {
		metrics.GraphChecks.WithLabelValues(string(OutcomeNotFound)).Inc()
		return CycleCheck{Outcome: OutcomeNotFound}
	}

	path := append([]string{from}, back...)
	metrics.GraphChecks.WithLabelValues(string(OutcomeConfirmed)).Inc()
	d.logger.Warn("Circular flow confirmed",
		zap.Strings("path", path), zap.Int("hops", len(path)-1))
	return CycleCheck{Outcome: OutcomeConfirmed, Path: path}
}
