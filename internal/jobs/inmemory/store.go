package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/teller-ledger/internal/jobs"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Store is an in-memory implementation of RunStore.
// Data is lost on service restart. Retention keeps only the newest runs.
type Store struct {
	mu        sync.RWMutex
	runs      map[string]*jobs.InterestRun
	retention int
}

// NewStore creates a run store keeping at most retention runs. retention <= 0 keeps everything.
func NewStore(retention int) *Store {
	return &Store{
		runs:      make(map[string]*jobs.InterestRun),
		retention: retention,
	}
}

// SaveRun implements the RunStore interface.
func (s *Store) SaveRun(ctx context.Context, run *jobs.InterestRun) error {
	if run.JobID == "" {
		return fmt.Errorf("run ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.JobID] = run.Clone()
	s.evict()
	return nil
}

// GetRun implements the RunStore interface.
func (s *Store) GetRun(ctx context.Context, id string) (*jobs.InterestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run.Clone(), nil
}

// ListRuns implements the RunStore interface.
func (s *Store) ListRuns(ctx context.Context, filter jobs.RunFilter) ([]*jobs.InterestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*jobs.InterestRun, 0, len(s.runs))
	for _, run := range s.newestFirst() {
		if filter.Trigger != "" && run.Trigger != filter.Trigger {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		result = append(result, run.Clone())
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.InterestRun{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

func (s *Store) newestFirst() []*jobs.InterestRun {
	runs := make([]*jobs.InterestRun, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].JobID > runs[j].JobID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs
}

// evict drops the oldest runs beyond retention. Caller holds mu.
func (s *Store) evict() {
	if s.retention <= 0 || len(s.runs) <= s.retention {
		return
	}
	for _, r := range s.newestFirst()[s.retention:] {
		delete(s.runs, r.JobID)
	}
}

// Ensure Store implements RunStore interface.
var _ jobs.RunStore = (*Store)(nil)
