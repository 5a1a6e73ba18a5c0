package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Aidin1998/pincex_aml/internal/compliance"
	"github.com/Aidin1998/pincex_aml/pkg/metrics"
	"go.uber.org/zap"
)

// DispatcherConfig sizes the delivery queue
type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// DefaultDispatcherConfig returns the default dispatcher configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:   1024,
		Workers:     2,
		SendTimeout: 30 * time.Second,
	}
}

// Dispatcher fans alerts out to sinks on background workers
type Dispatcher struct {
	config DispatcherConfig
	sinks  []Sink
	logger *zap.Logger

	mu      sync.RWMutex
	queue   chan Alert
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Call Start before enqueueing.
func NewDispatcher(config DispatcherConfig, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	def := DefaultDispatcherConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = def.SendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		config: config,
		sinks:  sinks,
		logger: logger,
		queue:  make(chan Alert, config.QueueSize),
	}
}

// Start launches the workers
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("Alert dispatcher started", zap.Int("workers", d.config.Workers), zap.Int("sinks", len(d.sinks)))
}

// Enqueue hands an alert to the workers without blocking. It returns false if
// the queue is full or the dispatcher is stopped.
func (d *Dispatcher) Enqueue(alert Alert) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- alert:
		return true
	default:
		metrics.NotificationsTotal.WithLabelValues("queue", "dropped").Inc()
		d.logger.Error("Alert queue full, alert dropped",
			zap.String("alert_id", alert.ID.String()),
			zap.String("transaction_id", alert.TransactionID),
			zap.Error(compliance.ErrNotification))
		return false
	}
}

// Stop closes the queue and waits for queued alerts to drain or ctx to expire
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Alert dispatcher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("alert dispatcher did not drain: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for alert := range d.queue {
		d.deliver(alert)
	}
	d.logger.Debug("Alert worker exiting", zap.Int("worker", id))
}

func (d *Dispatcher) deliver(alert Alert) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.SendTimeout)
		err := sink.Send(ctx, alert)
		cancel()

		if err != nil {
			metrics.NotificationsTotal.WithLabelValues(sink.Name(), "failure").Inc()
			d.logger.Error("Alert delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("alert_id", alert.ID.String()),
				zap.String("transaction_id", alert.TransactionID),
				zap.Error(fmt.Errorf("%w: %v", compliance.ErrNotification, err)))
			continue
		}

		metrics.NotificationsTotal.WithLabelValues(sink.Name(), "success").Inc()
		d.logger.Info("Alert delivered",
			zap.String("sink", sink.Name()),
			zap.String("alert_id", alert.ID.String()))
	}
}
