package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docsync/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobType selects the executor for a job
type JobType string

const (
	JobTypeProcessEvent JobType = "process_event"
	JobTypeEnrichment   JobType = "enrichment"
	JobTypePOLogImport  JobType = "polog_import"
)

// Job is one unit of background work
type Job struct {
	ID          uuid.UUID
	Type        JobType
	TargetID    uuid.UUID
	Args        map[string]string
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
}

// NewJob creates a pending job for a target entity
func NewJob(jobType JobType, targetID uuid.UUID, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		TargetID:   targetID,
		Args:       map[string]string{},
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry puts a failed job back to pending
func (j *Job) ScheduleRetry() {
	j.RetryCount++
	j.Status = JobStatusPending
	j.Error = ""
}

// JobExecutor runs jobs of one type
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// ExecutorFunc adapts a function to JobExecutor
type ExecutorFunc func(ctx context.Context, job *Job) error

// Execute calls f
func (f ExecutorFunc) Execute(ctx context.Context, job *Job) error { return f(ctx, job) }

// FailureHandler is implemented by executors that need to react once a job
// has exhausted its retries
type FailureHandler interface {
	OnFinalFailure(ctx context.Context, job *Job, err error)
}

// Releaser is implemented by executors whose jobs hold a claim on their
// target. Jobs dropped on Stop without running are handed back through it.
type Releaser interface {
	Release(ctx context.Context, job *Job)
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	MaxConcurrentJobs int
	QueueSize         int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrentJobs: 3,
		QueueSize:         100,
		JobTimeout:        10 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        60 * time.Second,
	}
}

// Validate checks the configuration
func (c SchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("%w: max concurrent jobs must be positive", ErrInvalidConfig)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry settings must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Scheduler is a bounded worker pool with delayed retries
type Scheduler struct {
	config    SchedulerConfig
	executors map[JobType]JobExecutor
	metrics   *telemetry.PipelineMetrics
	logger    *zap.Logger

	jobs      chan *Job
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	retries   map[uuid.UUID]pendingRetry
}

type pendingRetry struct {
	timer *time.Timer
	job   *Job
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, logger *zap.Logger) *Scheduler {
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	return &Scheduler{
		config:    config,
		executors: make(map[JobType]JobExecutor),
		logger:    logger,
		jobs:      make(chan *Job, config.QueueSize),
		retries:   make(map[uuid.UUID]pendingRetry),
	}
}

// Register sets the executor for a job type. Call before Start.
func (s *Scheduler) Register(jobType JobType, executor JobExecutor) {
	s.executors[jobType] = executor
}

// SetMetrics enables job metrics
func (s *Scheduler) SetMetrics(m *telemetry.PipelineMetrics) {
	s.metrics = m
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	s.isRunning = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(s.ctx, i)
	}

	s.logger.Info("Job scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels pending retries and waits for running jobs. Queued jobs and
// cancelled retries are released to their executors.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	var dropped []*Job
	for id, r := range s.retries {
		if r.timer.Stop() {
			dropped = append(dropped, r.job)
		}
		delete(s.retries, id)
	}
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		s.logger.Info("Job scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("Job scheduler stop timed out")
		err = ctx.Err()
	}

	releaseCtx := context.WithoutCancel(ctx)
	for _, job := range dropped {
		s.release(releaseCtx, job)
	}
	for {
		select {
		case job := <-s.jobs:
			s.release(releaseCtx, job)
		default:
			return err
		}
	}
}

func (s *Scheduler) release(ctx context.Context, job *Job) {
	r, ok := s.executors[job.Type].(Releaser)
	if !ok {
		return
	}
	r.Release(ctx, job)
	s.logger.Debug("Job released",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.String("target_id", job.TargetID.String()),
	)
}

// IsRunning reports whether the scheduler accepts jobs
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// QueueLength returns the number of queued jobs
func (s *Scheduler) QueueLength() int {
	return len(s.jobs)
}

// Submit queues a job without blocking
func (s *Scheduler) Submit(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	if _, ok := s.executors[job.Type]; !ok {
		return fmt.Errorf("%w: %s", ErrNoExecutor, job.Type)
	}

	select {
	case s.jobs <- job:
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	executor := s.executors[job.Type]
	job.Start()
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.String("target_id", job.TargetID.String()),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	var err error
	telemetry.WithJobLabels(jobCtx, string(job.Type), func(ctx context.Context) {
		err = s.execute(ctx, executor, job)
	})
	if err == nil {
		job.Complete()
		s.metrics.RecordJob(ctx, string(job.Type), "success")
		log.Debug("Job completed")
		return
	}

	job.Fail(err.Error())
	if ctx.Err() != nil {
		log.Info("Job interrupted by shutdown", zap.Error(err))
		s.release(context.WithoutCancel(ctx), job)
		return
	}
	if job.ShouldRetry() {
		job.ScheduleRetry()
		s.metrics.RecordJob(ctx, string(job.Type), "retry")
		log.Warn("Job failed, scheduled for retry",
			zap.Int("retry_count", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Duration("delay", s.config.RetryDelay),
			zap.Error(err),
		)
		s.retryLater(job)
		return
	}

	s.metrics.RecordJob(ctx, string(job.Type), "failed")
	log.Error("Job failed", zap.Int("retry_count", job.RetryCount), zap.Error(err))
	if fh, ok := executor.(FailureHandler); ok {
		fh.OnFinalFailure(context.WithoutCancel(ctx), job, err)
	}
}

func (s *Scheduler) execute(ctx context.Context, executor JobExecutor, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return executor.Execute(ctx, job)
}

func (s *Scheduler) retryLater(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		go s.release(context.Background(), job)
		return
	}
	timer := time.AfterFunc(s.config.RetryDelay, func() {
		s.mu.Lock()
		delete(s.retries, job.ID)
		running := s.isRunning
		s.mu.Unlock()
		if !running {
			s.release(context.Background(), job)
			return
		}
		select {
		case s.jobs <- job:
		case <-s.ctx.Done():
			s.release(context.Background(), job)
		}
	})
	s.retries[job.ID] = pendingRetry{timer: timer, job: job}
}
