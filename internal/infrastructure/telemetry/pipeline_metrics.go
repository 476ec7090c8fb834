package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
var (
	AttrKeyEventType = attribute.Key("event_type")
	AttrKeyStatus    = attribute.Key("status")
	AttrKeyFileType  = attribute.Key("file_type")
	AttrKeyService   = attribute.Key("service")
	AttrKeyOperation = attribute.Key("operation")
	AttrKeyJobType   = attribute.Key("job_type")
)

// PipelineMetrics records the document pipeline's counters and latencies
type PipelineMetrics struct {
	notifications   metric.Int64Counter
	eventsRecorded  metric.Int64Counter
	eventsProcessed metric.Int64Counter
	jobRuns         metric.Int64Counter
	apiCalls        metric.Int64Counter
	apiLatency      metric.Float64Histogram
	processDuration metric.Float64Histogram
}

// NewPipelineMetrics creates the instruments on meter
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	var err error
	if m.notifications, err = meter.Int64Counter("docsync.webhook.notifications",
		metric.WithDescription("Storage webhook notifications received")); err != nil {
		return nil, err
	}
	if m.eventsRecorded, err = meter.Int64Counter("docsync.file_events.recorded",
		metric.WithDescription("File events written by the router")); err != nil {
		return nil, err
	}
	if m.eventsProcessed, err = meter.Int64Counter("docsync.file_events.processed",
		metric.WithDescription("File events finished by the poller")); err != nil {
		return nil, err
	}
	if m.jobRuns, err = meter.Int64Counter("docsync.jobs.runs",
		metric.WithDescription("Background job attempts")); err != nil {
		return nil, err
	}
	if m.apiCalls, err = meter.Int64Counter("docsync.external.calls",
		metric.WithDescription("Calls to external APIs")); err != nil {
		return nil, err
	}
	if m.apiLatency, err = meter.Float64Histogram("docsync.external.duration",
		metric.WithDescription("External API call latency"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000)); err != nil {
		return nil, err
	}
	if m.processDuration, err = meter.Float64Histogram("docsync.file_events.duration",
		metric.WithDescription("Time to process one file event"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 5000, 15000, 30000, 60000, 120000)); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordNotification counts a webhook notification; duplicate ones are tagged
func (m *PipelineMetrics) RecordNotification(ctx context.Context, duplicate bool) {
	if m == nil {
		return
	}
	status := "accepted"
	if duplicate {
		status = "duplicate"
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(AttrKeyStatus.String(status)))
}

// RecordEvent counts a file event written by the router
func (m *PipelineMetrics) RecordEvent(ctx context.Context, eventType string, duplicate bool) {
	if m == nil {
		return
	}
	status := "new"
	if duplicate {
		status = "duplicate"
	}
	m.eventsRecorded.Add(ctx, 1, metric.WithAttributes(AttrKeyEventType.String(eventType), AttrKeyStatus.String(status)))
}

// RecordProcessed counts a finished file event and its duration
func (m *PipelineMetrics) RecordProcessed(ctx context.Context, eventType, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrKeyEventType.String(eventType), AttrKeyStatus.String(status))
	m.eventsProcessed.Add(ctx, 1, attrs)
	m.processDuration.Record(ctx, float64(d.Milliseconds()), attrs)
}

// RecordJob counts a background job attempt
func (m *PipelineMetrics) RecordJob(ctx context.Context, jobType, status string) {
	if m == nil {
		return
	}
	m.jobRuns.Add(ctx, 1, metric.WithAttributes(AttrKeyJobType.String(jobType), AttrKeyStatus.String(status)))
}

// RecordAPICall counts an external call and its latency
func (m *PipelineMetrics) RecordAPICall(ctx context.Context, service, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(AttrKeyService.String(service), AttrKeyOperation.String(operation), AttrKeyStatus.String(status))
	m.apiCalls.Add(ctx, 1, attrs)
	m.apiLatency.Record(ctx, float64(d.Milliseconds()), attrs)
}
