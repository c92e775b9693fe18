// Package interest runs the periodic sweep that accrues interest on every interest-bearing account.
package interest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/jobs"
)

// DefaultPeriod is the interval between scheduled sweeps.
const DefaultPeriod = 24 * time.Hour

// State is the lifecycle state of a Scheduler.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

var (
	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("interest scheduler is already running")
	// ErrStopping is returned by Start while a previous Stop is still draining.
	ErrStopping = errors.New("interest scheduler is stopping")
)

// Ledger is the part of the banking service the sweep needs.
type Ledger interface {
	ListAccounts(ctx context.Context, limit int) ([]*domain.Account, error)
	ApplyInterest(ctx context.Context, accountNumber string, asOf time.Time) (domain.InterestResult, error)
}

// Scheduler applies due interest to every account once per period.
type Scheduler struct {
	ledger Ledger
	runs   jobs.RunStore
	log    zerolog.Logger
	period time.Duration
	now    func() time.Time

	// sweepMu keeps scheduled and manual sweeps from overlapping.
	sweepMu sync.Mutex

	mu       sync.Mutex
	stop     chan struct{}
	done     chan struct{}
	stopping bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPeriod sets the tick interval. Non-positive values keep DefaultPeriod.
func WithPeriod(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithClock replaces time.Now. The clock decides the accrual instant of scheduled runs.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a stopped scheduler recording its runs in runs.
func NewScheduler(ledger Ledger, runs jobs.RunStore, opts ...Option) *Scheduler {
	s := &Scheduler{
		ledger: ledger,
		runs:   runs,
		log:    zerolog.Nop(),
		period: DefaultPeriod,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Period returns the tick interval.
func (s *Scheduler) Period() time.Duration { return s.period }

// State reports whether the scheduler is running.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil || s.stopping {
		return StateStopped
	}
	select {
	case <-s.done:
		return StateStopped
	default:
		return StateRunning
	}
}

// Start begins ticking. The first sweep runs immediately. Canceling ctx stops the loop
// after the current sweep, which itself is never canceled mid-account.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return ErrStopping
	}
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return ErrAlreadyRunning
		}
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.stop, s.done)

	s.log.Info().Dur("period", s.period).Msg("Interest scheduler started")
	return nil
}

// Stop ends scheduling and waits for an in-flight sweep to finish, bounded by ctx.
// When ctx expires first, the sweep keeps running and a later Stop can wait again.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		return nil
	}
	if !s.stopping {
		close(s.stop)
		s.stopping = true
	}
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for interest sweep: %w", ctx.Err())
	}

	s.mu.Lock()
	if s.done == done {
		s.done = nil
		s.stop = nil
		s.stopping = false
	}
	s.mu.Unlock()

	s.log.Info().Msg("Interest scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	sweepCtx := context.WithoutCancel(ctx)
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		run := &jobs.InterestRun{Trigger: jobs.TriggerSchedule, AsOf: s.now()}
		if _, err := s.execute(sweepCtx, run); err != nil {
			s.log.Warn().Err(err).Str("run_id", run.JobID).Msg("Scheduled interest sweep finished with errors")
		}

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a manual sweep as of asOf and returns its record.
// The returned error aggregates per-account failures.
func (s *Scheduler) RunOnce(ctx context.Context, asOf time.Time) (*jobs.InterestRun, error) {
	return s.execute(ctx, &jobs.InterestRun{Trigger: jobs.TriggerManual, AsOf: asOf})
}

// HandleJob is a jobs.JobHandler running queued sweeps.
func (s *Scheduler) HandleJob(ctx context.Context, job jobs.Job) error {
	run, ok := job.(*jobs.InterestRun)
	if !ok {
		return fmt.Errorf("HandleJob: unsupported job type %s", job.GetType())
	}
	_, err := s.execute(ctx, run)
	return err
}

// Runs lists recorded runs.
func (s *Scheduler) Runs(ctx context.Context, filter jobs.RunFilter) ([]*jobs.InterestRun, error) {
	return s.runs.ListRuns(ctx, filter)
}

// Run returns one recorded run.
func (s *Scheduler) Run(ctx context.Context, id string) (*jobs.InterestRun, error) {
	return s.runs.GetRun(ctx, id)
}

func (s *Scheduler) execute(ctx context.Context, run *jobs.InterestRun) (*jobs.InterestRun, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	started := s.now()
	if run.JobID == "" {
		run.JobID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = started
	}
	if run.AsOf.IsZero() {
		run.AsOf = started
	}
	run.Status = jobs.JobStatusRunning
	run.StartedAt = &started
	run.CompletedAt = nil
	run.Scanned, run.Applied, run.Skipped = 0, 0, 0
	run.Failures = nil
	run.Error = ""
	s.save(ctx, run)

	log := s.log.With().Str("run_id", run.JobID).Str("trigger", string(run.Trigger)).Logger()
	err := s.sweep(ctx, log, run)

	completed := s.now()
	run.CompletedAt = &completed
	switch {
	case err == nil:
		run.Status = jobs.JobStatusCompleted
	case len(run.Failures) > 0:
		run.Status = jobs.JobStatusPartial
		run.Error = err.Error()
	default:
		run.Status = jobs.JobStatusFailed
		run.Error = err.Error()
	}
	s.save(ctx, run)

	log.Info().
		Time("as_of", run.AsOf).
		Int("scanned", run.Scanned).
		Int("applied", run.Applied).
		Int("skipped", run.Skipped).
		Int("failed", len(run.Failures)).
		Dur("duration", completed.Sub(started)).
		Msg("Interest sweep finished")
	return run.Clone(), err
}

// sweep visits every account. Per-account failures are collected and never stop the sweep.
func (s *Scheduler) sweep(ctx context.Context, log zerolog.Logger, run *jobs.InterestRun) error {
	accounts, err := s.ledger.ListAccounts(ctx, 0)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list accounts for interest sweep")
		return fmt.Errorf("listing accounts: %w", err)
	}

	var errs error
	for _, account := range accounts {
		run.Scanned++
		if !account.Policy().InterestBearing() {
			run.Skipped++
			continue
		}

		res, err := s.applyOne(ctx, account.Number(), run.AsOf)
		if err != nil {
			run.Failures = append(run.Failures, jobs.AccountFailure{AccountNumber: account.Number(), Error: err.Error()})
			errs = multierr.Append(errs, fmt.Errorf("account %s: %w", account.Number(), err))
			log.Error().Err(err).Str("account_number", account.Number()).Msg("Interest application failed")
			continue
		}
		if res.Applied {
			run.Applied++
		} else {
			run.Skipped++
		}
	}
	return errs
}

// applyOne turns a panic in ApplyInterest into an error.
func (s *Scheduler) applyOne(ctx context.Context, number string, asOf time.Time) (res domain.InterestResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic applying interest: %v", r)
		}
	}()
	return s.ledger.ApplyInterest(ctx, number, asOf)
}

func (s *Scheduler) save(ctx context.Context, run *jobs.InterestRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.SaveRun(ctx, run); err != nil {
		s.log.Error().Err(err).Str("run_id", run.JobID).Msg("Failed to record interest run")
	}
}
