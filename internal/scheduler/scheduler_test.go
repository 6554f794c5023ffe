package scheduler

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRegistry struct {
	expiredCalls int
	orphanCalls  int
}

func (f *fakeRegistry) CleanupExpired() int {
	f.expiredCalls++
	return 2
}

func (f *fakeRegistry) CleanupOrphans() int {
	f.orphanCalls++
	return 1
}

type fakeCache struct {
	calls int
	err   error
}

func (f *fakeCache) Sweep() (int, error) {
	f.calls++
	return 3, f.err
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New("not a cron expression", &fakeRegistry{}, &fakeCache{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sweep schedule")
}

func TestSweepRunsAllParts(t *testing.T) {
	registry := &fakeRegistry{}
	cache := &fakeCache{}
	s, err := New("0 * * * *", registry, cache, testLogger())
	require.NoError(t, err)

	s.sweep()

	assert.Equal(t, 1, registry.expiredCalls)
	assert.Equal(t, 1, registry.orphanCalls)
	assert.Equal(t, 1, cache.calls)
}

func TestSweepSurvivesCacheFailure(t *testing.T) {
	registry := &fakeRegistry{}
	cache := &fakeCache{err: errors.New("disk gone")}
	s, err := New("0 * * * *", registry, cache, testLogger())
	require.NoError(t, err)

	s.sweep()
	assert.Equal(t, 1, registry.expiredCalls)
}

func TestSweepWithoutCache(t *testing.T) {
	registry := &fakeRegistry{}
	s, err := New("0 * * * *", registry, nil, testLogger())
	require.NoError(t, err)

	s.sweep()
	assert.Equal(t, 1, registry.orphanCalls)
}

func TestStartStop(t *testing.T) {
	s, err := New("0 * * * *", &fakeRegistry{}, nil, testLogger())
	require.NoError(t, err)

	s.Start()
	s.Stop()
}
