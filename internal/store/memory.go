package store

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/atmostream/internal/forecast"
)

var (
	// ErrNotFound is returned when no status or nowcast is recorded.
	ErrNotFound = errors.New("no data recorded")
)

// MemoryStore is a concurrency-safe in-memory implementation of forecast.Store.
type MemoryStore struct {
	mu    sync.RWMutex
	clock clockwork.Clock

	// session statuses, oldest first
	history []forecast.SessionStatus

	// key: model name
	nowcasts map[string]forecast.Nowcast

	// retention configuration
	maxHistory int           // max number of statuses kept
	maxAge     time.Duration // optional max age for statuses
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return NewMemoryStoreWithClock(clockwork.NewRealClock(), maxHistory, maxAge)
}

func NewMemoryStoreWithClock(clock clockwork.Clock, maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		clock:      clock,
		nowcasts:   make(map[string]forecast.Nowcast),
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// SaveStatus appends a session status and enforces retention.
func (s *MemoryStore) SaveStatus(status forecast.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, status)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.history) > s.maxHistory {
		over := len(s.history) - s.maxHistory
		s.history = s.history[over:]
	}

	// Enforce retention by age. The newest status is always kept.
	if s.maxAge > 0 {
		cutoff := s.clock.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.history)-1; i++ {
			if !s.history[i].Timestamp.Before(cutoff) {
				break
			}
		}
		s.history = s.history[i:]
	}
}

// LatestStatus returns the most recent session status.
func (s *MemoryStore) LatestStatus() (forecast.SessionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.history) == 0 {
		return forecast.SessionStatus{}, ErrNotFound
	}
	return s.history[len(s.history)-1], nil
}

// StatusRange returns all statuses between from and to (inclusive).
func (s *MemoryStore) StatusRange(from, to time.Time) ([]forecast.SessionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []forecast.SessionStatus
	for _, st := range s.history {
		if !st.Timestamp.Before(from) && !st.Timestamp.After(to) {
			result = append(result, st)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// SaveNowcast replaces the nowcast of a model.
func (s *MemoryStore) SaveNowcast(n forecast.Nowcast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowcasts[n.Model] = n
}

// GetNowcast returns the last stored nowcast of a model.
func (s *MemoryStore) GetNowcast(model string) (forecast.Nowcast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nowcasts[model]
	if !ok {
		return forecast.Nowcast{}, ErrNotFound
	}
	return n, nil
}
