package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/snapfulfil/order-router/internal/core/domain"
	"github.com/snapfulfil/order-router/internal/metrics"
	"github.com/snapfulfil/order-router/internal/port"
)

var (
	ErrQueueFull = errors.New("queue is full")
	ErrClosed    = errors.New("queue processor is closed")
)

const maxBackoff = time.Minute

// permanentError marks a failure that will never succeed on retry, such
// as malformed order data.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

type ProcessorConfig struct {
	Workers         int
	BufferSize      int
	MaxAttempts     int
	BackoffBase     time.Duration
	DispatchTimeout time.Duration
}

// QueueProcessor owns the job lifecycle: intake, routing, capacity
// fallback, dispatch, and retry/backoff. Workers pull job IDs from a
// shared channel, so no two workers ever hold the same job.
type QueueProcessor struct {
	routing    *RoutingService
	jobs       port.JobStore
	dispatcher port.Dispatcher
	endpoints  map[domain.Partner]string
	metrics    *metrics.Registry
	logger     *zap.Logger
	cfg        ProcessorConfig

	queue   chan string
	closing *atomic.Bool
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

func NewQueueProcessor(
	routing *RoutingService,
	jobs port.JobStore,
	dispatcher port.Dispatcher,
	endpoints map[domain.Partner]string,
	m *metrics.Registry,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *QueueProcessor {
	return &QueueProcessor{
		routing:    routing,
		jobs:       jobs,
		dispatcher: dispatcher,
		endpoints:  endpoints,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
		queue:      make(chan string, cfg.BufferSize),
		closing:    atomic.NewBool(false),
	}
}

// Start launches the worker pool. Workers exit when Close drains the
// queue channel.
func (p *QueueProcessor) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for jobID := range p.queue {
				p.runJob(jobID, id)
			}
		}(i)
	}
	p.logger.Info("queue processor started", zap.Int("workers", p.cfg.Workers))
}

// Close stops intake, lets workers drain the buffered jobs, and waits
// for them to finish. Jobs parked in a backoff delay stay delayed.
func (p *QueueProcessor) Close() {
	if !p.closing.CAS(false, true) {
		return
	}

	p.mu.Lock()
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("queue processor stopped")
}

// AddOrder validates the order, registers a job, and enqueues it. It
// returns as soon as the job is buffered and never waits on partner
// dispatch.
func (p *QueueProcessor) AddOrder(ctx context.Context, order domain.Order) (string, error) {
	if err := order.Validate(); err != nil {
		return "", err
	}
	if p.closing.Load() {
		return "", ErrClosed
	}

	job := domain.Job{
		ID:          uuid.New().String(),
		Order:       order,
		Status:      domain.JobStatusWaiting,
		MaxAttempts: p.cfg.MaxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}
	if err := p.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	if !p.enqueue(job.ID) {
		if err := p.jobs.DeleteIdle(ctx, job.ID); err != nil {
			p.logger.Error("failed to remove unqueued job", zap.String("job_id", job.ID), zap.Error(err))
		}
		return "", ErrQueueFull
	}

	p.refreshJobGauges(ctx)
	return job.ID, nil
}

// enqueue reports false when the buffer is full or the processor is
// closed. The lock pairs with Close so nothing sends on a closed
// channel.
func (p *QueueProcessor) enqueue(jobID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}
	select {
	case p.queue <- jobID:
		return true
	default:
		return false
	}
}

func (p *QueueProcessor) runJob(jobID string, workerID int) {
	ctx := context.Background()

	job, err := p.jobs.Get(ctx, jobID)
	if errors.Is(err, port.ErrJobNotFound) {
		// Removed by an operator while it was still waiting.
		return
	}
	if err != nil {
		p.logger.Error("failed to load job", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	job.Status = domain.JobStatusActive
	job.Attempts++
	if err := p.jobs.Update(ctx, job); err != nil {
		p.logger.Error("failed to mark job active", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	p.refreshJobGauges(ctx)

	var retryDelay time.Duration
	retry := false

	decision, err := p.processAttempt(ctx, job)
	switch {
	case err == nil:
		job.Status = domain.JobStatusCompleted
		job.Result = &decision
		job.LastError = ""
		p.logger.Info("order routed",
			zap.String("order_number", job.Order.OrderNumber),
			zap.String("partner", string(decision.Partner)),
			zap.String("reason", string(decision.Reason)),
			zap.Int("attempt", job.Attempts),
			zap.Int("worker", workerID))

	case isPermanent(err):
		job.Status = domain.JobStatusFailed
		job.LastError = err.Error()
		p.logger.Error("job failed permanently",
			zap.String("job_id", job.ID),
			zap.String("order_number", job.Order.OrderNumber),
			zap.Error(err))

	case job.Attempts >= job.MaxAttempts:
		job.Status = domain.JobStatusFailed
		job.LastError = err.Error()
		p.logger.Error("job failed after exhausting retries",
			zap.String("job_id", job.ID),
			zap.String("order_number", job.Order.OrderNumber),
			zap.Int("attempts", job.Attempts),
			zap.Error(err))

	default:
		job.Status = domain.JobStatusDelayed
		job.LastError = err.Error()
		retry = true
		retryDelay = p.backoff(job.Attempts)
		p.logger.Warn("dispatch failed, scheduling retry",
			zap.String("job_id", job.ID),
			zap.String("order_number", job.Order.OrderNumber),
			zap.Int("attempt", job.Attempts),
			zap.Duration("delay", retryDelay),
			zap.Error(err))
	}

	if err := p.jobs.Update(ctx, job); err != nil {
		p.logger.Error("failed to record job outcome", zap.String("job_id", job.ID), zap.Error(err))
	}
	p.refreshJobGauges(ctx)

	// Scheduled only after the delayed status is persisted, so a short
	// backoff cannot requeue the job before its state lands.
	if retry {
		p.scheduleRetry(job.ID, retryDelay)
	}
}

// processAttempt performs one routing-and-dispatch attempt. The volume
// counter is only incremented after the partner has accepted the order,
// so failed attempts never over-count.
func (p *QueueProcessor) processAttempt(ctx context.Context, job domain.Job) (domain.RoutingDecision, error) {
	if len(job.Order.LineItems) == 0 {
		return domain.RoutingDecision{}, &permanentError{domain.ErrNoLineItems}
	}

	decision := p.routing.DeterminePartner(job.Order)
	if p.routing.IsAtCapacity(ctx, decision.Partner) {
		// Single-level fallback: the fallback partner carries no cap,
		// so no cascading search is needed.
		decision = domain.RoutingDecision{
			Partner: domain.FallbackPartner,
			Reason:  domain.ReasonCapacityFallback,
		}
	}

	endpoint, ok := p.endpoints[decision.Partner]
	if !ok {
		return decision, &permanentError{fmt.Errorf("no endpoint configured for partner %s", decision.Partner)}
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, p.cfg.DispatchTimeout)
	defer cancel()

	result, err := p.dispatcher.Dispatch(dispatchCtx, endpoint, job.Order)
	if err != nil {
		p.metrics.DispatchAttempts.WithLabelValues(string(decision.Partner), "failure").Inc()
		return decision, fmt.Errorf("dispatch to %s: %w", decision.Partner, err)
	}
	p.metrics.DispatchAttempts.WithLabelValues(string(decision.Partner), "success").Inc()
	p.metrics.RoutingDecisions.WithLabelValues(string(decision.Partner), string(decision.Reason)).Inc()

	p.routing.IncrementVolume(ctx, decision.Partner)

	if result.TrackingRef != "" {
		p.logger.Info("partner assigned tracking reference",
			zap.String("order_number", job.Order.OrderNumber),
			zap.String("partner", string(decision.Partner)),
			zap.String("tracking_ref", result.TrackingRef))
	}
	return decision, nil
}

func (p *QueueProcessor) scheduleRetry(jobID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		ctx := context.Background()

		job, err := p.jobs.Get(ctx, jobID)
		if err != nil {
			// Removed while delayed.
			return
		}
		job.Status = domain.JobStatusWaiting
		if err := p.jobs.Update(ctx, job); err != nil {
			p.logger.Error("failed to requeue job", zap.String("job_id", jobID), zap.Error(err))
			return
		}
		if !p.requeue(jobID) {
			// Shutting down: park the job back in delayed so it is not
			// left waiting with no worker to ever pick it up.
			job.Status = domain.JobStatusDelayed
			if err := p.jobs.Update(ctx, job); err != nil {
				p.logger.Error("failed to park job during shutdown", zap.String("job_id", jobID), zap.Error(err))
			}
			p.logger.Warn("retry not requeued, processor closed", zap.String("job_id", jobID))
		}
	})
}

// requeue blocks until buffer space frees up. Unlike the ingress path a
// retry must not be dropped on a momentarily full buffer; the workers
// keep draining the channel while the read lock is held, so the send
// always completes unless the processor is closing.
func (p *QueueProcessor) requeue(jobID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}
	p.queue <- jobID
	return true
}

func (p *QueueProcessor) backoff(attempt int) time.Duration {
	d := p.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// GetQueueStats counts jobs in each observable bucket. Store failures
// come back as an error value so monitoring callers can degrade
// gracefully instead of losing the whole response.
func (p *QueueProcessor) GetQueueStats(ctx context.Context) (domain.QueueStats, error) {
	counts, err := p.jobs.CountByStatus(ctx)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("count jobs: %w", err)
	}

	stats := domain.QueueStats{
		Waiting:   counts[domain.JobStatusWaiting],
		Active:    counts[domain.JobStatusActive],
		Delayed:   counts[domain.JobStatusDelayed],
		Completed: counts[domain.JobStatusCompleted],
		Failed:    counts[domain.JobStatusFailed],
	}
	stats.Total = stats.Waiting + stats.Active + stats.Delayed + stats.Completed + stats.Failed
	return stats, nil
}

// GetJobDetails returns the observable state of one job.
// port.ErrJobNotFound is passed through for unknown IDs.
func (p *QueueProcessor) GetJobDetails(ctx context.Context, jobID string) (domain.JobDetails, error) {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.JobDetails{}, err
	}
	return domain.JobDetails{
		ID:          job.ID,
		Status:      job.Status,
		Attempts:    job.Attempts,
		OrderNumber: job.Order.OrderNumber,
		LastError:   job.LastError,
		Result:      job.Result,
	}, nil
}

// RemoveJob abandons a job that has not started processing. An active
// attempt runs to completion or timeout; it cannot be cancelled
// mid-flight.
func (p *QueueProcessor) RemoveJob(ctx context.Context, jobID string) error {
	if err := p.jobs.DeleteIdle(ctx, jobID); err != nil {
		return err
	}
	p.refreshJobGauges(ctx)
	return nil
}

func (p *QueueProcessor) refreshJobGauges(ctx context.Context) {
	counts, err := p.jobs.CountByStatus(ctx)
	if err != nil {
		return
	}
	for _, status := range []domain.JobStatus{
		domain.JobStatusWaiting,
		domain.JobStatusActive,
		domain.JobStatusDelayed,
		domain.JobStatusCompleted,
		domain.JobStatusFailed,
	} {
		p.metrics.JobsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
