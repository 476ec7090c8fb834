package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/infrastructure/logger"
	"github.com/docsync/backend/internal/infrastructure/scheduler"
	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	defaultBatchSize  = 20
	defaultStaleAfter = 10 * time.Minute
)

// EventProcessor applies one file event
type EventProcessor interface {
	ProcessFile(ctx context.Context, ev *fileevent.FileEvent) error
	ProcessFolder(ctx context.Context, ev *fileevent.FileEvent) error
}

// EnrichmentQueue receives processed document events for enrichment
type EnrichmentQueue interface {
	EnqueueEnrichment(ctx context.Context, ev *fileevent.FileEvent) error
}

// Poller claims pending file events and hands them to the worker pool
type Poller struct {
	events     fileevent.Repository
	processor  EventProcessor
	jobs       JobSubmitter
	enrichment EnrichmentQueue
	batchSize  int
	staleAfter time.Duration
	metrics    *telemetry.PipelineMetrics
	logger     *zap.Logger
}

// NewPoller creates a poller
func NewPoller(events fileevent.Repository, processor EventProcessor, jobs JobSubmitter, batchSize int, logger *zap.Logger) *Poller {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Poller{
		events:    events,
		processor: processor,
		jobs:      jobs,
		batchSize:  batchSize,
		staleAfter: defaultStaleAfter,
		logger:     logger.With(zap.String("component", "poller")),
	}
}

// SetStaleAfter sets how long an event may stay in processing before it is
// considered abandoned. It should not be shorter than the job timeout.
func (p *Poller) SetStaleAfter(d time.Duration) {
	if d > 0 {
		p.staleAfter = d
	}
}

// SetEnrichmentQueue enables enrichment of processed invoices and receipts
func (p *Poller) SetEnrichmentQueue(q EnrichmentQueue) {
	p.enrichment = q
}

// SetMetrics enables pipeline metrics
func (p *Poller) SetMetrics(m *telemetry.PipelineMetrics) {
	p.metrics = m
}

// Poll claims a batch of pending events and submits one job per event.
// Events that cannot be queued go back to pending.
func (p *Poller) Poll(ctx context.Context) error {
	if err := p.ReleaseStale(ctx); err != nil {
		p.logger.Error("Failed to release stale file events", zap.Error(err))
	}
	claimed, err := p.events.ClaimPending(ctx, p.batchSize)
	if err != nil {
		return err
	}
	for _, ev := range claimed {
		job := scheduler.NewJob(scheduler.JobTypeProcessEvent, ev.ID, 0)
		if err := p.jobs.Submit(job); err != nil {
			p.logger.Warn("Could not queue file event, releasing",
				zap.String("event_id", ev.ID.String()),
				zap.Error(err),
			)
			if err := p.events.UpdateStatus(ctx, ev.ID, fileevent.StatusPending); err != nil {
				p.logger.Error("Failed to release file event", zap.String("event_id", ev.ID.String()), zap.Error(err))
			}
		}
	}
	if len(claimed) > 0 {
		p.logger.Debug("Claimed file events", zap.Int("count", len(claimed)))
	}
	return nil
}

// ReleaseStale returns events left in processing by a crashed or stopped
// worker to pending
func (p *Poller) ReleaseStale(ctx context.Context) error {
	n, err := p.events.ReleaseStale(ctx, time.Now().Add(-p.staleAfter))
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.Warn("Released stale file events", zap.Int64("count", n))
	}
	return nil
}

// Release puts the event of a job that will not run back to pending
func (p *Poller) Release(ctx context.Context, job *scheduler.Job) {
	if err := p.events.UpdateStatus(ctx, job.TargetID, fileevent.StatusPending); err != nil {
		p.logger.Error("Failed to release file event", zap.String("event_id", job.TargetID.String()), zap.Error(err))
	}
}

// Execute runs a process_event job
func (p *Poller) Execute(ctx context.Context, job *scheduler.Job) error {
	ev, err := p.events.FindByID(ctx, job.TargetID)
	if err != nil {
		return fmt.Errorf("failed to load file event %s: %w", job.TargetID, err)
	}
	ctx, _ = logger.WithFileEventID(ctx, p.logger, ev.ID.String())

	start := time.Now()
	status, procErr := p.Process(ctx, ev)
	if procErr != nil && errors.Is(ctx.Err(), context.Canceled) {
		// shutdown; the scheduler hands the job back through Release
		return procErr
	}
	wctx := context.WithoutCancel(ctx)
	p.metrics.RecordProcessed(wctx, string(ev.EventType), string(status), time.Since(start))

	if err := p.events.UpdateStatus(wctx, ev.ID, status); err != nil {
		return fmt.Errorf("failed to update file event %s: %w", ev.ID, err)
	}
	if procErr != nil {
		return procErr
	}
	if status == fileevent.StatusProcessed && p.enrichment != nil &&
		(ev.Type() == fileevent.FileTypeInvoice || ev.Type() == fileevent.FileTypeReceipt) {
		if err := p.enrichment.EnqueueEnrichment(ctx, ev); err != nil {
			logger.L(ctx).Warn("Failed to queue enrichment", zap.Error(err))
		}
	}
	return nil
}

// Process dispatches an event by type and returns its new status
func (p *Poller) Process(ctx context.Context, ev *fileevent.FileEvent) (fileevent.Status, error) {
	log := p.logger.With(zap.String("file_event_id", ev.ID.String()))
	if logger.GetFileEventID(ctx) != "" {
		log = logger.L(ctx)
	}

	var err error
	switch ev.EventType {
	case "":
		log.Warn("File event without type")
		return fileevent.StatusSkipped, nil
	case fileevent.EventTypeFileAdded:
		err = p.processor.ProcessFile(ctx, ev)
	case fileevent.EventTypeFolderAdded:
		err = p.processor.ProcessFolder(ctx, ev)
	default:
		return fileevent.StatusSkipped, nil
	}
	if err != nil {
		log.Error("File event failed",
			zap.String("event_type", string(ev.EventType)),
			zap.String("path", ev.Path),
			zap.Error(err),
		)
		return fileevent.StatusFailed, err
	}
	log.Info("File event processed",
		zap.String("event_type", string(ev.EventType)),
		zap.String("path", ev.Path),
	)
	return fileevent.StatusProcessed, nil
}
