package trajectory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/agentcore/internal/agent"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBufferSize    = 1000
)

// Store persists trajectory data. Run summaries are written synchronously,
// steps arrive in batches from the collector's flush loop.
type Store interface {
	SaveRun(ctx context.Context, run RunRecord) error
	BatchSaveSteps(ctx context.Context, steps []StepRecord) error
	Close() error
}

// SpanExporter receives step batches alongside the store (e.g. OpenTelemetry
// OTLP). Keeping this an interface confines the OTel dependency to its own
// sub-package.
type SpanExporter interface {
	ExportSteps(ctx context.Context, steps []StepRecord)
	Shutdown(ctx context.Context) error
}

// Collector buffers step records in memory and flushes them to the store in
// batches. Run summaries are written synchronously; steps are buffered for
// async batch insert so the execution loop never waits on storage.
//
// Collector implements agent.TrajectorySink.
type Collector struct {
	store Store

	stepCh chan StepRecord
	stopCh chan struct{}
	wg     sync.WaitGroup

	exporter SpanExporter // optional external exporter (nil = disabled)
}

var _ agent.TrajectorySink = (*Collector)(nil)

func NewCollector(store Store) *Collector {
	return &Collector{
		store:  store,
		stepCh: make(chan StepRecord, defaultBufferSize),
		stopCh: make(chan struct{}),
	}
}

// SetExporter attaches an external span exporter. When set, flushed steps are
// also exported to the external backend.
func (c *Collector) SetExporter(exp SpanExporter) {
	c.exporter = exp
}

// Start begins the background flush loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.flushLoop()
	slog.Info("trajectory collector started")
}

// Stop shuts down the collector, flushing remaining steps first.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()

	if c.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.exporter.Shutdown(ctx); err != nil {
			slog.Warn("trajectory: exporter shutdown failed", "error", err)
		}
	}
	slog.Info("trajectory collector stopped")
}

// RecordStep enqueues a step for async batch insertion.
// Non-blocking: drops the step if the buffer is full.
func (c *Collector) RecordStep(runID string, step agent.Step) {
	rec := fromStep(runID, step)
	select {
	case c.stepCh <- rec:
	default:
		slog.Warn("trajectory: step buffer full, dropping step",
			"run_id", runID, "step", step.Number)
	}
}

// RecordSummary writes the run summary synchronously. Buffered steps of the
// run may still be in flight; the store upserts by run id.
func (c *Collector) RecordSummary(runID string, exec *agent.Execution) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.store.SaveRun(ctx, fromExecution(runID, exec)); err != nil {
		slog.Warn("trajectory: failed to save run summary", "run_id", runID, "error", err)
	}
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stopCh:
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	var steps []StepRecord
	for {
		select {
		case rec := <-c.stepCh:
			steps = append(steps, rec)
		default:
			goto done
		}
	}
done:

	if len(steps) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.store.BatchSaveSteps(ctx, steps); err != nil {
		slog.Warn("trajectory: batch step insert failed", "count", len(steps), "error", err)
	} else {
		slog.Debug("trajectory: flushed steps", "count", len(steps))
	}

	// Errors in the external backend are logged, never propagated.
	if c.exporter != nil {
		c.exporter.ExportSteps(ctx, steps)
	}
}
