package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/teller-ledger/internal/jobs"
)

const defaultMaxRetries = 3

// Queue is an in-memory publisher and consumer of on-demand interest runs.
// It uses Go channels for job distribution and is safe for concurrent use.
type Queue struct {
	jobChan    chan *jobs.InterestRun
	closeChan  chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	store      jobs.RunStore
	closed     bool
	workers    int
	retryDelay time.Duration
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many runs can be queued before PublishInterestRun blocks.
// Sweeps are serialized by the scheduler, so one worker is usually enough.
func NewQueue(bufferSize, workers int, store jobs.RunStore) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		jobChan:    make(chan *jobs.InterestRun, bufferSize),
		closeChan:  make(chan struct{}),
		store:      store,
		workers:    workers,
		retryDelay: time.Second,
	}
}

// PublishInterestRun implements the Publisher interface.
func (q *Queue) PublishInterestRun(ctx context.Context, run *jobs.InterestRun) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if run.JobID == "" {
		run.JobID = uuid.New().String()
	}
	if run.Trigger == "" {
		run.Trigger = jobs.TriggerManual
	}
	if run.Status == "" {
		run.Status = jobs.JobStatusPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if run.MaxRetries == 0 {
		run.MaxRetries = defaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
	}

	select {
	case q.jobChan <- run:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case run := <-q.jobChan:
			if run == nil {
				return
			}

			q.process(ctx, run, handler)
		}
	}
}

// process executes a single run with retry logic. The handler fills in the counts and status.
func (q *Queue) process(ctx context.Context, run *jobs.InterestRun, handler jobs.JobHandler) {
	err := handler(ctx, run)
	if err == nil {
		return
	}

	run.Error = err.Error()
	if run.RetryCount >= run.MaxRetries {
		if run.Status != jobs.JobStatusPartial {
			run.Status = jobs.JobStatusFailed
		}
		if q.store != nil {
			_ = q.store.SaveRun(ctx, run)
		}
		return
	}

	// Retry under the same id; a repeated sweep only touches accounts still due.
	run.RetryCount++
	run.Status = jobs.JobStatusRetrying
	if q.store != nil {
		_ = q.store.SaveRun(ctx, run)
	}
	delay := time.Duration(run.RetryCount) * q.retryDelay
	time.AfterFunc(delay, func() {
		retry := run.Clone()
		retry.Status = jobs.JobStatusPending
		retry.StartedAt = nil
		retry.CompletedAt = nil
		_ = q.PublishInterestRun(ctx, retry)
	})
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight runs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
