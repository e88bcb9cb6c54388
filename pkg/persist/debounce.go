package persist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/metrics"
)

// DefaultDebounce is the autosave quiet period.
const DefaultDebounce = 2 * time.Second

// saveTimeout bounds one background save.
const saveTimeout = 30 * time.Second

// DebounceOption customizes a Debouncer.
type DebounceOption func(*Debouncer)

func WithDebounceLogger(logger *zap.Logger) DebounceOption {
	return func(d *Debouncer) {
		if logger != nil {
			d.logger = logger.Named("persist")
		}
	}
}

func WithDebounceMetrics(m *metrics.Metrics) DebounceOption {
	return func(d *Debouncer) { d.metrics = m }
}

// Debouncer coalesces save requests: a burst of Trigger calls produces one
// save once the design has been quiet for the configured delay. The blob is
// taken from snapshot at save time, so the latest state is always written.
type Debouncer struct {
	backend  Backend
	delay    time.Duration
	snapshot func() ([]byte, error)
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	closed  bool

	// saveMu keeps saves from overlapping.
	saveMu sync.Mutex
}

func NewDebouncer(b Backend, delay time.Duration, snapshot func() ([]byte, error), opts ...DebounceOption) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	d := &Debouncer{
		backend:  b,
		delay:    delay,
		snapshot: snapshot,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Trigger schedules a save, pushing back any save already scheduled.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := d.Flush(ctx); err != nil {
		d.logger.Error("autosave failed", zap.String("backend", d.backend.Name()), zap.Error(err))
	}
}

// Flush saves immediately if a save is pending.
func (d *Debouncer) Flush(ctx context.Context) error {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	pending := d.pending
	d.pending = false
	d.mu.Unlock()
	if !pending {
		return nil
	}

	d.saveMu.Lock()
	defer d.saveMu.Unlock()
	blob, err := d.snapshot()
	if err != nil {
		d.metrics.PersistSaved(d.backend.Name(), metrics.ResultError)
		return fmt.Errorf("persist: snapshot: %w", err)
	}
	if err := d.backend.Save(ctx, blob); err != nil {
		d.metrics.PersistSaved(d.backend.Name(), metrics.ResultError)
		return err
	}
	d.metrics.PersistSaved(d.backend.Name(), metrics.ResultSuccess)
	d.logger.Debug("design saved", zap.String("backend", d.backend.Name()), zap.Int("bytes", len(blob)))
	return nil
}

// Close flushes any pending save and ignores later triggers.
func (d *Debouncer) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Flush(ctx)
}
