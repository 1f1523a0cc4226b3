package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cryptomite-go/cryptomite/internal/bits"
	"github.com/cryptomite-go/cryptomite/internal/extractor"
	"github.com/cryptomite-go/cryptomite/internal/ledger"
	"github.com/cryptomite-go/cryptomite/pkg/kafka"
	"github.com/cryptomite-go/cryptomite/pkg/metrics"
	"github.com/cryptomite-go/cryptomite/pkg/resilience"
	"github.com/cryptomite-go/cryptomite/pkg/tracing"
)

// Publisher sends results downstream; *kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Recorder persists runs; *ledger.Store implements it.
type Recorder interface {
	Record(ctx context.Context, run ledger.Run) error
}

// Config tunes a Worker.
type Config struct {
	Concurrency  int
	MaxInputBits int
	// Timeout bounds each extraction; zero means no limit.
	Timeout time.Duration
	Retry   resilience.RetryConfig
}

// Worker executes extraction jobs.
type Worker struct {
	cfg       Config
	publisher Publisher
	recorder  Recorder
	metrics   *metrics.Metrics
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewWorker creates a Worker. recorder and m may be nil.
func NewWorker(cfg Config, publisher Publisher, recorder Recorder, m *metrics.Metrics) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Worker{
		cfg:       cfg,
		publisher: publisher,
		recorder:  recorder,
		metrics:   m,
		sem:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger:    slog.Default().With("component", "extraction-worker"),
	}
}

// Handler returns a kafka.MessageHandler that admits each job into the
// worker pool and returns once a slot is taken, so the message is committed
// while the job runs. Undecodable messages are logged and dropped.
func (w *Worker) Handler() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		job, err := kafka.DecodeJSON[Job](value)
		if err != nil {
			w.logger.Error("failed to decode extraction job", "key", string(key), "error", err)
			return nil
		}
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("waiting for worker slot: %w", err)
		}
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer w.sem.Release(1)
			// Jobs outlive the consume loop's context so shutdown drains them.
			w.Process(context.WithoutCancel(ctx), job)
		}()
		return nil
	}
}

// Wait blocks until every admitted job has finished.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Process runs one job to completion: extract, publish the result, record
// the run. Publish and record failures are logged; the returned Result is
// what was (or would have been) published.
func (w *Worker) Process(ctx context.Context, job Job) Result {
	if w.metrics != nil {
		w.metrics.JobsInFlight.Inc()
		defer w.metrics.JobsInFlight.Dec()
	}
	ctx, root := tracing.StartSpan(ctx, "job", job.ID)
	root.SetAttr("extractor", job.Extractor)

	res, run := w.extract(ctx, job)
	res.StagesMS = make(map[string]float64)
	for stage, d := range root.Stages() {
		res.StagesMS[stage] = float64(d.Microseconds()) / 1000
	}

	_, publishSpan := tracing.StartChildSpan(ctx, "publish")
	if err := w.publish(ctx, res); err != nil {
		w.logger.Error("failed to publish result", "job_id", job.ID, "error", err)
	}
	publishSpan.End()

	if w.recorder != nil {
		_, recordSpan := tracing.StartChildSpan(ctx, "record")
		if err := w.recorder.Record(ctx, run); err != nil {
			w.logger.Error("failed to record run", "job_id", job.ID, "error", err)
		}
		recordSpan.End()
	}

	root.End()
	root.Log(w.logger)
	if w.metrics != nil {
		w.metrics.JobsTotal.WithLabelValues(res.Status).Inc()
	}
	w.logger.Info("job finished",
		"job_id", job.ID,
		"extractor", res.Extractor,
		"status", res.Status,
		"output_bits", res.OutputBits,
		"duration_ms", float64(root.Duration.Microseconds())/1000,
	)
	return res
}

func (w *Worker) extract(ctx context.Context, job Job) (Result, ledger.Run) {
	_, span := tracing.StartChildSpan(ctx, "extract")
	defer span.End()

	name := extractor.Normalize(job.Extractor)
	res := Result{JobID: job.ID, Extractor: name}
	run := ledger.Run{
		ID:        job.ID,
		Extractor: name,
		N:         job.Params.N1,
		M:         job.Params.M,
		CreatedAt: time.Now(),
	}
	start := time.Now()
	fail := func(err error) (Result, ledger.Run) {
		res.Status, res.Error = ledger.StatusFailed, err.Error()
		run.Status, run.Error = ledger.StatusFailed, err.Error()
		res.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
		run.Latency = time.Since(start)
		w.observe(name, false, 0, time.Since(start))
		return res, run
	}

	in1, in2, err := job.validate(w.cfg.MaxInputBits)
	if err != nil {
		return fail(err)
	}
	run.InputBits = len(in1) + len(in2)
	if root := tracing.SpanFromContext(ctx); root != nil {
		root.SetAttr("input_bits", run.InputBits)
	}
	ext, err := extractor.New(name, job.Params)
	if err != nil {
		return fail(err)
	}
	out, err := resilience.Call(ctx, w.cfg.Timeout, "extract job "+job.ID, func(ctx context.Context) (bits.Bits, error) {
		return extractor.ExtractContext(ctx, ext, in1, in2)
	})
	if err != nil {
		return fail(err)
	}
	elapsed := time.Since(start)
	span.SetAttr("output_bits", len(out))

	res.Status = ledger.StatusOK
	res.Output = out.String()
	res.OutputBits = len(out)
	res.OutputSHA256 = ledger.Digest(out)
	res.LatencyMS = float64(elapsed.Microseconds()) / 1000
	run.Status = ledger.StatusOK
	run.OutputBits = len(out)
	run.OutputSHA256 = res.OutputSHA256
	run.Latency = elapsed
	w.observe(name, true, len(out), elapsed)
	return res, run
}

func (w *Worker) observe(name string, ok bool, outBits int, elapsed time.Duration) {
	if w.metrics == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	w.metrics.ExtractionsTotal.WithLabelValues(name, status).Inc()
	w.metrics.ExtractionLatency.WithLabelValues(name).Observe(elapsed.Seconds())
	w.metrics.ExtractedBitsTotal.WithLabelValues(name).Add(float64(outBits))
}

func (w *Worker) publish(ctx context.Context, res Result) error {
	if w.publisher == nil {
		return errors.New("no publisher configured")
	}
	return resilience.Retry(ctx, "publish-result", w.cfg.Retry, func() error {
		return w.publisher.Publish(ctx, kafka.Event{Key: res.JobID, Value: res})
	})
}
