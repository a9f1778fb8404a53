package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalendarDaysBetween(t *testing.T) {
	tests := []struct {
		name     string
		from     time.Time
		to       time.Time
		expected int
	}{
		{"same instant", time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC), time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC), 0},
		{"two days", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC), 2},
		{"crosses midnight by minutes", time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC), time.Date(2024, 1, 11, 0, 1, 0, 0, time.UTC), 1},
		{"same day later hour", time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC), time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC), 0},
		{"leap day", time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 2},
		{"backwards", time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CalendarDaysBetween(tt.from, tt.to))
		})
	}
}

func TestAddCalendarDays(t *testing.T) {
	start := time.Date(2024, 1, 31, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 14, 15, 30, 0, 0, time.UTC), AddCalendarDays(start, 14))
}
