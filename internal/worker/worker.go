// Package worker runs queued acquisitions one at a time and posts each
// result back to the caller that submitted it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	// ItemTimeout bounds one acquisition; zero means no bound.
	ItemTimeout time.Duration
	Topic       string
}

// Worker consumes queue items and runs the acquirer for each.
type Worker struct {
	queue     cnr.Queue
	acquirer  cnr.Acquirer
	records   cnr.RecordStore
	publisher cnr.Publisher
	clock     cnr.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. records and publisher are optional.
func New(
	queue cnr.Queue,
	acquirer cnr.Acquirer,
	records cnr.RecordStore,
	publisher cnr.Publisher,
	clock cnr.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		acquirer:  acquirer,
		records:   records,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, cnr.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item cnr.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(
		zap.String("job_id", item.JobID),
		zap.String("cnr", item.Request.Reference.String()),
	)
	start := w.now()
	rec, err := w.acquire(ctx, item.Request)
	finished := w.now()
	result := cnr.Result{
		JobID:    item.JobID,
		Record:   rec,
		Err:      err,
		Duration: finished.Sub(start),
	}
	outcome := cnr.OutcomeOf(err)
	metrics.ObserveAcquisition(string(outcome), result.Duration)

	w.reply(item, result, logger)

	if err != nil {
		logger.Warn("acquisition failed", zap.String("outcome", string(outcome)), zap.Error(err))
	} else {
		logger.Info("acquisition complete",
			zap.Int("documents", len(rec.Documents)),
			zap.Int("gaps", rec.DocumentGaps),
			zap.Int("sessions", rec.SessionsOpened),
			zap.Duration("duration", result.Duration),
		)
	}

	w.persist(ctx, item, result, outcome, finished, logger)
	w.publish(ctx, item, result, outcome, finished, logger)
}

// acquire applies the per-item timeout and turns a panic in the pipeline
// into an unexpected failure so the caller still gets a reply.
func (w *Worker) acquire(ctx context.Context, req cnr.Request) (rec cnr.CaseRecord, err error) {
	runCtx := ctx
	if w.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.ItemTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			rec = cnr.CaseRecord{}
			err = fmt.Errorf("%w: panic: %v", cnr.ErrUnexpected, r)
		}
	}()
	return w.acquirer.Acquire(runCtx, req)
}

// reply posts the result exactly once. Reply channels are buffered, so this
// never blocks on a caller that already gave up.
func (w *Worker) reply(item cnr.QueueItem, result cnr.Result, logger *zap.Logger) {
	if item.Reply == nil {
		return
	}
	select {
	case item.Reply <- result:
	default:
		logger.Warn("reply channel full, result dropped")
	}
}

func (w *Worker) persist(
	ctx context.Context,
	item cnr.QueueItem,
	result cnr.Result,
	outcome cnr.Outcome,
	finished time.Time,
	logger *zap.Logger,
) {
	if w.records == nil {
		return
	}
	entry := cnr.RecordEntry{
		JobID:      item.JobID,
		Reference:  item.Request.Reference,
		Cutoff:     item.Request.Cutoff.String(),
		Outcome:    outcome,
		FinishedAt: finished,
		Duration:   result.Duration,
	}
	if result.Err != nil {
		entry.ErrText = result.Err.Error()
	} else {
		rec := result.Record
		entry.Record = &rec
	}
	if err := w.records.SaveRecord(ctx, entry); err != nil {
		logger.Error("save record failed", zap.Error(err))
	}
}

func (w *Worker) publish(
	ctx context.Context,
	item cnr.QueueItem,
	result cnr.Result,
	outcome cnr.Outcome,
	finished time.Time,
	logger *zap.Logger,
) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := cnr.Completion{
		JobID:     item.JobID,
		Reference: item.Request.Reference.String(),
		Outcome:   outcome,
		Documents: len(result.Record.Documents),
		Gaps:      result.Record.DocumentGaps,
		Timestamp: finished.Format(time.RFC3339),
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, payload)
	if err != nil {
		logger.Error("publish completion failed", zap.Error(err))
		return
	}
	logger.Debug("completion published", zap.String("message_id", id))
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now()
	}
	return w.clock.Now()
}
