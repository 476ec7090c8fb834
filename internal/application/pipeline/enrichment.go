package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/infrastructure/scheduler"
	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultEnrichmentRetries is how often a failed enrichment is retried
const DefaultEnrichmentRetries = 3

// Enricher stores the share link, OCR text and LLM output of a document event
type Enricher struct {
	events fileevent.Repository
	files  Storage
	text   TextExtractor
	docs   DocumentExtractor
	logger *zap.Logger
}

// NewEnricher creates an enricher
func NewEnricher(events fileevent.Repository, files Storage, text TextExtractor, docs DocumentExtractor, logger *zap.Logger) *Enricher {
	return &Enricher{
		events: events,
		files:  files,
		text:   text,
		docs:   docs,
		logger: logger.With(zap.String("component", "enrichment")),
	}
}

// Execute runs an enrichment job
func (e *Enricher) Execute(ctx context.Context, job *scheduler.Job) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "enrichment.run", "event_id", job.TargetID.String(), "attempt", job.RetryCount)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	ev, err := e.events.FindByID(ctx, job.TargetID)
	if err != nil {
		return fmt.Errorf("failed to load file event %s: %w", job.TargetID, err)
	}
	out, err := e.Enrich(ctx, ev)
	if err != nil {
		return err
	}
	if err := e.events.UpdateEnrichment(ctx, ev.ID, out); err != nil {
		return fmt.Errorf("failed to store enrichment: %w", err)
	}
	e.logger.Info("Enriched file event", zap.String("event_id", ev.ID.String()), zap.Int("ocr_chars", len(out.OCRData)))
	return nil
}

// Enrich computes the enrichment of one event without storing it
func (e *Enricher) Enrich(ctx context.Context, ev *fileevent.FileEvent) (fileevent.Enrichment, error) {
	link, err := e.files.CreateShareLink(ctx, ev.Path)
	if err != nil {
		return fileevent.Enrichment{}, fmt.Errorf("failed to share %s: %w", ev.Path, err)
	}
	out := fileevent.Enrichment{ShareLink: link, Status: fileevent.StatusProcessed}

	fileType := ev.Type()
	if fileType != fileevent.FileTypeInvoice && fileType != fileevent.FileTypeReceipt {
		return out, nil
	}
	data, err := e.files.Download(ctx, ev.Path)
	if err != nil {
		return fileevent.Enrichment{}, fmt.Errorf("failed to download %s: %w", ev.Path, err)
	}
	text, err := e.text.ExtractText(ctx, ev.FileName, data)
	if err != nil {
		return fileevent.Enrichment{}, err
	}
	out.OCRData = text

	var structured any
	if fileType == fileevent.FileTypeReceipt {
		structured, err = e.docs.ExtractReceipt(ctx, text)
	} else {
		structured, err = e.docs.ExtractInvoice(ctx, text)
	}
	if err != nil {
		return fileevent.Enrichment{}, err
	}
	raw, err := json.Marshal(structured)
	if err != nil {
		return fileevent.Enrichment{}, fmt.Errorf("failed to encode extraction: %w", err)
	}
	out.OpenAIData = string(raw)
	return out, nil
}

// OnFinalFailure marks the event failed once retries are exhausted
func (e *Enricher) OnFinalFailure(ctx context.Context, job *scheduler.Job, err error) {
	e.logger.Error("Enrichment gave up",
		zap.String("event_id", job.TargetID.String()),
		zap.Int("attempts", job.RetryCount+1),
		zap.Error(err),
	)
	if uerr := e.events.UpdateStatus(ctx, job.TargetID, fileevent.StatusFailed); uerr != nil {
		e.logger.Error("Failed to mark file event failed", zap.String("event_id", job.TargetID.String()), zap.Error(uerr))
	}
}

// Dispatcher queues enrichment and PO log jobs on the scheduler
type Dispatcher struct {
	jobs    JobSubmitter
	retries int
}

// NewDispatcher creates a dispatcher
func NewDispatcher(jobs JobSubmitter, enrichmentRetries int) *Dispatcher {
	if enrichmentRetries < 0 {
		enrichmentRetries = DefaultEnrichmentRetries
	}
	return &Dispatcher{jobs: jobs, retries: enrichmentRetries}
}

// EnqueueEnrichment queues an enrichment job for an event
func (d *Dispatcher) EnqueueEnrichment(ctx context.Context, ev *fileevent.FileEvent) error {
	return d.jobs.Submit(scheduler.NewJob(scheduler.JobTypeEnrichment, ev.ID, d.retries))
}

// EnqueuePOLog queues a PO log import for a storage path
func (d *Dispatcher) EnqueuePOLog(ctx context.Context, path string) error {
	job := scheduler.NewJob(scheduler.JobTypePOLogImport, uuid.Nil, 0)
	job.Args[ArgPath] = path
	return d.jobs.Submit(job)
}
