package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	"github.com/couchcryptid/crop-threat-alerts/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
	commitTimeout  = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Decoder turns a raw message into an observation to record.
type Decoder interface {
	Decode(ctx context.Context, raw domain.RawMessage) (domain.NewObservation, error)
}

// Recorder stores an observation and runs its alert trigger.
type Recorder interface {
	RecordObservation(ctx context.Context, in domain.NewObservation) (domain.Observation, error)
}

// Pipeline consumes observation messages and records each one through the
// alert engine. Messages that can never succeed (malformed, unknown names or
// reporters) are committed and skipped; store failures are retried with
// backoff and not committed until they succeed.
type Pipeline struct {
	extractor BatchExtractor
	decoder   Decoder
	recorder  Recorder
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, d Decoder, r Recorder, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		decoder:   d,
		recorder:  r,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has completed a batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any messages yet")
	}
	return nil
}

// Run executes the ingest loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-record cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return backoffOrStop(ctx, backoff)
	}
	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))
	*backoff = initialBackoff

	for _, raw := range batch {
		if !p.handle(ctx, raw, backoff) {
			return false
		}
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	return true
}

// handle records one message, retrying transient failures in place so that
// offsets within a partition are committed in order. Returns false if the
// context was cancelled before the message was settled.
func (p *Pipeline) handle(ctx context.Context, raw domain.RawMessage, backoff *time.Duration) bool {
	obs, err := p.decoder.Decode(ctx, raw)
	if err != nil {
		p.skip(ctx, raw, err)
		return true
	}

	for {
		saved, err := p.recorder.RecordObservation(ctx, obs)
		switch {
		case err == nil:
			p.logger.Debug("observation ingested",
				"observation_id", saved.ID,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.commit(ctx, raw)
			*backoff = initialBackoff
			return true
		case isPermanent(err):
			p.skip(ctx, raw, err)
			return true
		}

		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("record observation failed, retrying",
			"error", err,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
			"backoff", *backoff,
		)
		if !backoffOrStop(ctx, backoff) {
			return false
		}
	}
}

func (p *Pipeline) skip(ctx context.Context, raw domain.RawMessage, err error) {
	p.logger.Warn("rejected message, skipping",
		"error", err,
		"topic", raw.Topic,
		"partition", raw.Partition,
		"offset", raw.Offset,
	)
	p.metrics.IngestErrors.Inc()
	p.commit(ctx, raw)
}

// commit commits the offset of a settled message. A settled message must not
// be redelivered, so the commit outlives shutdown, bounded by commitTimeout.
func (p *Pipeline) commit(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound)
}

// backoffOrStop sleeps for the current backoff and doubles it up to the cap.
// Returns false if the context was cancelled.
func backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}
