package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
database:
  host: db.internal
  user: circ
  database: circulation
circulation:
  pickup_window_hours: 24
  tiers:
    faculty:
      max_loans: 20
      loan_period_days: 60
fines:
  daily_rate: "2.00"
  grace_days: 1
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "log", cfg.Audit.Sink)
	assert.Equal(t, "0 0 2 * * *", cfg.Scheduler.AssessFines)
	assert.Equal(t, "0 */15 * * * *", cfg.Scheduler.ExpireReservations)
	assert.Equal(t, 24*time.Hour, cfg.DedupeWindow())
	assert.Equal(t, "postgres://circ:@db.internal:5432/circulation?sslmode=disable", cfg.GetDatabaseConnectionString())
}

func TestParse_EnvOverride(t *testing.T) {
	t.Setenv("DB_HOST", "override.internal")
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("FINE_DAILY_RATE", "0.50")
	t.Setenv("MAX_LOANS", "8")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "circ", cfg.Database.User)
	assert.Equal(t, "0.50", cfg.Fines.DailyRate)
	assert.Equal(t, 8, cfg.Circulation.MaxLoans)
}

func TestPolicy(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	p := cfg.Policy()
	assert.Equal(t, 24*time.Hour, p.PickupWindow)
	assert.True(t, p.FineDailyRate.Equal(decimal.RequireFromString("2.00")))
	assert.Equal(t, 1, p.FineGraceDays)
	assert.Equal(t, 20, p.MaxLoansFor("faculty"))
	assert.Equal(t, 5, p.MaxLoansFor("student"))
	assert.True(t, p.BlockMaxUnpaidFines.Equal(decimal.RequireFromString("10.00")))
}

func TestPolicy_SwitchedOffSettings(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML + `
blocking:
  max_unpaid_fines: "0"
  max_overdue_days: -1
notifications:
  dedupe_window_hours: -1
`))
	require.NoError(t, err)
	cfg.Circulation.MaxExtensions = -1

	p := cfg.Policy()
	assert.Equal(t, 0, p.MaxExtensions)
	assert.Equal(t, 0, p.BlockMaxOverdueDays)
	assert.True(t, p.BlockMaxUnpaidFines.IsZero())
	assert.Equal(t, 0, cfg.Blocking.OverdueDaysLimit())
	assert.Equal(t, time.Duration(0), cfg.DedupeWindow())

	defaults, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, defaults.Policy().MaxExtensions)
	assert.Equal(t, 30, defaults.Blocking.OverdueDaysLimit())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"missing host", "storage:\n  type: postgres\n", "database host is required"},
		{"bad storage", "storage:\n  type: redis\n", "unknown storage type"},
		{"bad rate", "storage:\n  type: memory\nfines:\n  daily_rate: abc\n", "invalid fine daily rate"},
		{"negative rate", "storage:\n  type: memory\nfines:\n  daily_rate: \"-1\"\n", "invalid fine daily rate"},
		{"extension too long", "storage:\n  type: memory\ncirculation:\n  extension_days: 30\n", "exceed max extension days"},
		{"bad audit sink", "storage:\n  type: memory\naudit:\n  sink: kafka\n", "unknown audit sink"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoad_MemoryStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  type: memory\naudit:\n  sink: sqlite\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "circulation-audit.db", cfg.Audit.Path)
	assert.Empty(t, cfg.Database.Host)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
