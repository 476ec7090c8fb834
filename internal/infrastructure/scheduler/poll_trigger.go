package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PollFunc is invoked on every tick
type PollFunc func(ctx context.Context) error

// PollTrigger calls a function on a fixed interval until stopped
type PollTrigger struct {
	name     string
	interval time.Duration
	poll     PollFunc
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewPollTrigger creates a trigger; it does nothing until Start
func NewPollTrigger(name string, interval time.Duration, poll PollFunc, logger *zap.Logger) *PollTrigger {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PollTrigger{
		name:     name,
		interval: interval,
		poll:     poll,
		logger:   logger.With(zap.String("trigger", name)),
	}
}

// Start begins polling; the first poll runs immediately
func (p *PollTrigger) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return nil
	}
	p.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.runLoop(ctx)

	p.logger.Info("Poll trigger started", zap.Duration("interval", p.interval))
	return nil
}

// Stop stops polling and waits for an in-flight poll to return
func (p *PollTrigger) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Poll trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PollTrigger) runLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *PollTrigger) runOnce(ctx context.Context) {
	if err := p.poll(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error("Poll failed", zap.Error(err))
	}
}
