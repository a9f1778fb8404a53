package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation-backend/internal/config"
	"library-circulation-backend/internal/jobs"
)

func TestNewSchedulerRegistersSweeps(t *testing.T) {
	cfg, err := config.Parse([]byte("storage:\n  type: memory\n"))
	require.NoError(t, err)

	s, err := NewScheduler(jobs.NewJobRunner(&jobs.Services{}, cfg))
	require.NoError(t, err)
	assert.True(t, s.IsRunning())

	from := time.Date(2024, 1, 10, 1, 5, 0, 0, time.UTC)
	assert.ElementsMatch(t, []time.Time{
		time.Date(2024, 1, 10, 1, 15, 0, 0, time.UTC), // reservations every 15 minutes
		time.Date(2024, 1, 10, 2, 0, 0, 0, time.UTC),  // fines
		time.Date(2024, 1, 10, 2, 30, 0, 0, time.UTC), // blocking
		time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),  // due reminders
	}, s.NextRuns(from))
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	cfg, err := config.Parse([]byte("storage:\n  type: memory\nscheduler:\n  assess_fines: \"not a schedule\"\n"))
	require.NoError(t, err)

	_, err = NewScheduler(jobs.NewJobRunner(&jobs.Services{}, cfg))
	assert.Error(t, err)
}
