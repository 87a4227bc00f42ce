package store

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/atmostream/internal/forecast"
)

func status(ts time.Time, iterations int) forecast.SessionStatus {
	return forecast.SessionStatus{SessionID: "s", Model: "RDPS", Iterations: iterations, Timestamp: ts}
}

func TestMemoryStore_Empty(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(10, time.Hour)
	_, err := s.LatestStatus()
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetNowcast("RDPS")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RetentionByCount(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStoreWithClock(clockwork.NewFakeClockAt(now), 3, 0)
	for i := 0; i < 5; i++ {
		s.SaveStatus(status(now.Add(time.Duration(i)*time.Minute), i))
	}

	all, err := s.StatusRange(now, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 2, all[0].Iterations)

	latest, err := s.LatestStatus()
	require.NoError(t, err)
	assert.Equal(t, 4, latest.Iterations)
}

func TestMemoryStore_RetentionByAge(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStoreWithClock(clockwork.NewFakeClockAt(now), 0, time.Hour)
	s.SaveStatus(status(now.Add(-3*time.Hour), 1))
	s.SaveStatus(status(now.Add(-30*time.Minute), 2))
	s.SaveStatus(status(now, 3))

	all, err := s.StatusRange(now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].Iterations)
}

func TestMemoryStore_RangeBounds(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStoreWithClock(clockwork.NewFakeClockAt(now), 0, 0)
	s.SaveStatus(status(now.Add(-time.Hour), 1))
	s.SaveStatus(status(now, 2))

	got, err := s.StatusRange(now, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Iterations)

	_, err = s.StatusRange(now.Add(time.Minute), now.Add(time.Hour))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Nowcast(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(0, 0)
	s.SaveNowcast(forecast.Nowcast{Model: "RDPS", Cursor: forecast.Cursor{Day: "20240101", Cycle: "00"}})
	s.SaveNowcast(forecast.Nowcast{Model: "RDPS", Cursor: forecast.Cursor{Day: "20240101", Cycle: "06"}})

	n, err := s.GetNowcast("RDPS")
	require.NoError(t, err)
	assert.Equal(t, "06", n.Cursor.Cycle)
}
