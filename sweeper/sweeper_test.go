package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) Cleanup(context.Context) (int, error) {
	c.calls.Add(1)
	if c.err != nil {
		return 0, c.err
	}
	return 2, nil
}

func TestNew_RejectsBadInput(t *testing.T) {
	_, err := New(nil, "", nil)
	require.Error(t, err)

	_, err = New(&countingCleaner{}, "not a schedule", nil)
	require.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	cleaner := &countingCleaner{}
	s, err := New(cleaner, "", nil)
	require.NoError(t, err)

	count, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, count)

	cleaner.err = errors.New("db down")
	_, err = s.RunOnce(context.Background())
	require.ErrorContains(t, err, "db down")
	require.Equal(t, int32(2), cleaner.calls.Load())
}

func TestStartStop_RunsOnSchedule(t *testing.T) {
	cleaner := &countingCleaner{}
	s, err := New(cleaner, "@every 1s", nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return cleaner.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	s.Stop()
	s.Stop()
	calls := cleaner.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	require.Equal(t, calls, cleaner.calls.Load())
}
