package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/infrastructure/persistence"
	"github.com/docsync/backend/internal/infrastructure/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockEventProcessor is a mock implementation of EventProcessor
type MockEventProcessor struct {
	mock.Mock
}

func (m *MockEventProcessor) ProcessFile(ctx context.Context, ev *fileevent.FileEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockEventProcessor) ProcessFolder(ctx context.Context, ev *fileevent.FileEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// blockingProcessor holds every file until its context ends
type blockingProcessor struct {
	started chan struct{}
}

func (b *blockingProcessor) ProcessFile(ctx context.Context, _ *fileevent.FileEvent) error {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingProcessor) ProcessFolder(ctx context.Context, ev *fileevent.FileEvent) error {
	return b.ProcessFile(ctx, ev)
}

type recordingQueue struct {
	enriched []*fileevent.FileEvent
}

func (q *recordingQueue) EnqueueEnrichment(_ context.Context, ev *fileevent.FileEvent) error {
	q.enriched = append(q.enriched, ev)
	return nil
}

func TestPoller_PollSubmitsClaimedEvents(t *testing.T) {
	events := new(MockEventRepository)
	jobs := new(MockJobSubmitter)
	first := fileEvent(t, "2416_05_01 Acme Lighting Invoice.pdf")
	second := fileEvent(t, "2416_05_02 Acme Lighting Invoice.pdf")

	events.On("ReleaseStale", mock.Anything, mock.Anything).Return(int64(0), nil)
	events.On("ClaimPending", mock.Anything, 10).Return([]*fileevent.FileEvent{first, second}, nil)
	jobs.On("Submit", mock.MatchedBy(func(j *scheduler.Job) bool { return j.TargetID == first.ID })).Return(nil)
	jobs.On("Submit", mock.MatchedBy(func(j *scheduler.Job) bool { return j.TargetID == second.ID })).Return(scheduler.ErrJobQueueFull)
	events.On("UpdateStatus", mock.Anything, second.ID, fileevent.StatusPending).Return(nil)

	p := NewPoller(events, new(MockEventProcessor), jobs, 10, zap.NewNop())
	require.NoError(t, p.Poll(context.Background()))

	events.AssertExpectations(t)
	jobs.AssertExpectations(t)
	events.AssertNotCalled(t, "UpdateStatus", mock.Anything, first.ID, mock.Anything)
}

func TestPoller_PollReleasesStaleClaims(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewGormFileEventRepository(newTestDB(t))
	ev := fileEvent(t, "2416_05_01 Acme Lighting Invoice.pdf")
	_, _, err := repo.Add(ctx, ev)
	require.NoError(t, err)

	// claimed by a worker that never finished
	claimed, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	jobs := new(MockJobSubmitter)
	jobs.On("Submit", mock.MatchedBy(func(j *scheduler.Job) bool { return j.TargetID == ev.ID })).Return(nil).Once()

	p := NewPoller(repo, new(MockEventProcessor), jobs, 10, zap.NewNop())
	require.NoError(t, p.Poll(ctx))
	jobs.AssertNotCalled(t, "Submit", mock.Anything)

	time.Sleep(5 * time.Millisecond)
	p.SetStaleAfter(time.Millisecond)
	require.NoError(t, p.Poll(ctx))
	jobs.AssertExpectations(t)

	got, err := repo.FindByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, fileevent.StatusProcessing, got.Status)
}

func TestPoller_StopThenRestartProcessesClaimedEvents(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewGormFileEventRepository(newTestDB(t))
	first := fileEvent(t, "2416_05_01 Acme Lighting Invoice.pdf")
	second := fileEvent(t, "2416_05_02 Acme Lighting Invoice.pdf")
	for _, ev := range []*fileevent.FileEvent{first, second} {
		_, _, err := repo.Add(ctx, ev)
		require.NoError(t, err)
	}
	cfg := scheduler.SchedulerConfig{
		MaxConcurrentJobs: 1,
		QueueSize:         10,
		JobTimeout:        time.Minute,
		RetryAttempts:     3,
		RetryDelay:        10 * time.Millisecond,
	}

	blocking := &blockingProcessor{started: make(chan struct{}, 1)}
	sched := scheduler.NewScheduler(cfg, zap.NewNop())
	p := NewPoller(repo, blocking, sched, 10, zap.NewNop())
	sched.Register(scheduler.JobTypeProcessEvent, p)
	require.NoError(t, sched.Start(ctx))
	require.NoError(t, p.Poll(ctx))
	<-blocking.started

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))

	for _, ev := range []*fileevent.FileEvent{first, second} {
		got, err := repo.FindByID(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, fileevent.StatusPending, got.Status, got.FileName)
	}

	proc := new(MockEventProcessor)
	proc.On("ProcessFile", mock.Anything, mock.Anything).Return(nil)
	sched = scheduler.NewScheduler(cfg, zap.NewNop())
	p = NewPoller(repo, proc, sched, 10, zap.NewNop())
	sched.Register(scheduler.JobTypeProcessEvent, p)
	require.NoError(t, sched.Start(ctx))
	defer sched.Stop(ctx)
	require.NoError(t, p.Poll(ctx))

	assert.Eventually(t, func() bool {
		for _, ev := range []*fileevent.FileEvent{first, second} {
			got, err := repo.FindByID(ctx, ev.ID)
			if err != nil || got.Status != fileevent.StatusProcessed {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
	proc.AssertNumberOfCalls(t, "ProcessFile", 2)
}

func TestPoller_Process(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name       string
		eventType  fileevent.EventType
		fileErr    error
		wantStatus fileevent.Status
		wantErr    bool
	}{
		{name: "file added", eventType: fileevent.EventTypeFileAdded, wantStatus: fileevent.StatusProcessed},
		{name: "file added fails", eventType: fileevent.EventTypeFileAdded, fileErr: boom, wantStatus: fileevent.StatusFailed, wantErr: true},
		{name: "folder added", eventType: fileevent.EventTypeFolderAdded, wantStatus: fileevent.StatusProcessed},
		{name: "rename is skipped", eventType: fileevent.EventTypeFileRenamed, wantStatus: fileevent.StatusSkipped},
		{name: "missing type is skipped", eventType: "", wantStatus: fileevent.StatusSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := new(MockEventProcessor)
			proc.On("ProcessFile", mock.Anything, mock.Anything).Return(tt.fileErr)
			proc.On("ProcessFolder", mock.Anything, mock.Anything).Return(nil)
			p := NewPoller(new(MockEventRepository), proc, new(MockJobSubmitter), 0, zap.NewNop())

			ev := fileEvent(t, "2416_05_01 Acme Lighting Invoice.pdf")
			ev.EventType = tt.eventType
			status, err := p.Process(context.Background(), ev)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestPoller_ExecuteQueuesEnrichment(t *testing.T) {
	events := new(MockEventRepository)
	proc := new(MockEventProcessor)
	queue := &recordingQueue{}
	ev := fileEvent(t, "2416_05_01 Acme Lighting Invoice.pdf")

	events.On("FindByID", mock.Anything, ev.ID).Return(ev, nil)
	events.On("UpdateStatus", mock.Anything, ev.ID, fileevent.StatusProcessed).Return(nil)
	proc.On("ProcessFile", mock.Anything, ev).Return(nil)

	p := NewPoller(events, proc, new(MockJobSubmitter), 5, zap.NewNop())
	p.SetEnrichmentQueue(queue)

	job := scheduler.NewJob(scheduler.JobTypeProcessEvent, ev.ID, 0)
	require.NoError(t, p.Execute(context.Background(), job))
	require.Len(t, queue.enriched, 1)
	assert.Equal(t, ev.ID, queue.enriched[0].ID)
	events.AssertExpectations(t)
}

func TestPoller_ExecuteMarksFailure(t *testing.T) {
	events := new(MockEventRepository)
	proc := new(MockEventProcessor)
	queue := &recordingQueue{}
	ev := fileEvent(t, "2416_05_01 Acme Lighting Invoice.pdf")

	events.On("FindByID", mock.Anything, ev.ID).Return(ev, nil)
	events.On("UpdateStatus", mock.Anything, ev.ID, fileevent.StatusFailed).Return(nil)
	proc.On("ProcessFile", mock.Anything, ev).Return(ErrUnsupportedDocument)

	p := NewPoller(events, proc, new(MockJobSubmitter), 5, zap.NewNop())
	p.SetEnrichmentQueue(queue)

	err := p.Execute(context.Background(), scheduler.NewJob(scheduler.JobTypeProcessEvent, ev.ID, 0))
	assert.ErrorIs(t, err, ErrUnsupportedDocument)
	assert.Empty(t, queue.enriched)
	events.AssertExpectations(t)
}

func TestDispatcher(t *testing.T) {
	jobs := new(MockJobSubmitter)
	ev := fileEvent(t, "2416_05_01 Acme Lighting Invoice.pdf")

	jobs.On("Submit", mock.MatchedBy(func(j *scheduler.Job) bool {
		return j.Type == scheduler.JobTypeEnrichment && j.TargetID == ev.ID && j.MaxRetries == DefaultEnrichmentRetries
	})).Return(nil).Once()
	jobs.On("Submit", mock.MatchedBy(func(j *scheduler.Job) bool {
		return j.Type == scheduler.JobTypePOLogImport && j.Args[ArgPath] == "/2416/1.5 PO Logs/PO_LOG_2416-2024-03-01_10-00-00.txt"
	})).Return(nil).Once()

	d := NewDispatcher(jobs, -1)
	require.NoError(t, d.EnqueueEnrichment(context.Background(), ev))
	require.NoError(t, d.EnqueuePOLog(context.Background(), "/2416/1.5 PO Logs/PO_LOG_2416-2024-03-01_10-00-00.txt"))
	jobs.AssertExpectations(t)
}
