package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation-backend/internal/audit"
	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/repository"
	"library-circulation-backend/internal/repository/memory"
	"library-circulation-backend/internal/service"
)

var staff = domain.Actor{PatronID: 900, Role: domain.PatronRoleStaff}

// fixture wires every service to one in-memory store and a clock the test moves.
type fixture struct {
	store        *memory.Store
	now          time.Time
	policy       domain.Policy
	inventory    service.InventoryService
	loans        service.LoanService
	reservations service.ReservationService
	fines        service.FineService
	patrons      service.PatronService
	notes        service.NotificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	policy := domain.DefaultPolicy()
	policy.PickupWindow = 24 * time.Hour
	policy.FineDailyRate = decimal.RequireFromString("2.00")
	return newFixtureWithPolicy(t, policy)
}

func newFixtureWithPolicy(t *testing.T, policy domain.Policy) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		now:    time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		policy: policy,
	}
	clock := func() time.Time { return f.now }
	recorder := audit.Nop{}
	f.inventory = service.NewInventoryService(f.store, policy, recorder, clock)
	f.loans = service.NewLoanService(f.store, policy, recorder, clock)
	f.reservations = service.NewReservationService(f.store, policy, recorder, clock)
	f.fines = service.NewFineService(f.store, policy, recorder, clock)
	f.patrons = service.NewPatronService(f.store, policy, recorder, clock)
	f.notes = service.NewNotificationService(f.store, 24*time.Hour, clock)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) patron(t *testing.T, name string) int64 {
	t.Helper()
	p := &domain.Patron{Name: name, Email: name + "@example.org", Tier: "standard", Role: domain.PatronRoleMember}
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, r repository.Repos) error {
		return r.Patrons.Create(ctx, p)
	})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) title(t *testing.T, name string, copies int) (int64, []int64) {
	t.Helper()
	ctx := context.Background()
	title, err := f.inventory.AddTitle(ctx, staff, &domain.Title{Name: name, ISBN: "978-" + name})
	require.NoError(t, err)

	ids := make([]int64, 0, copies)
	for i := 0; i < copies; i++ {
		res, err := f.inventory.AddCopy(ctx, staff, &domain.Copy{
			TitleID:       title.ID,
			InventoryCode: name + "-" + string(rune('A'+i)),
			Location:      "main",
		})
		require.NoError(t, err)
		ids = append(ids, res.Copy.ID)
	}
	return title.ID, ids
}

func (f *fixture) copyStatus(t *testing.T, copyID int64) domain.CopyStatus {
	t.Helper()
	var status domain.CopyStatus
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, r repository.Repos) error {
		cp, err := r.Copies.GetByID(ctx, copyID)
		if err != nil {
			return err
		}
		status = cp.Status
		return nil
	})
	require.NoError(t, err)
	return status
}

// assertCounters checks the cached title counters against the copies and
// that every copy is accounted for by exactly one status.
func (f *fixture) assertCounters(t *testing.T, titleID int64) domain.CopyCounts {
	t.Helper()
	var (
		title  *domain.Title
		copies []domain.Copy
	)
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, r repository.Repos) error {
		var err error
		if title, err = r.Titles.GetByID(ctx, titleID); err != nil {
			return err
		}
		copies, err = r.Copies.ListByTitle(ctx, titleID)
		return err
	})
	require.NoError(t, err)

	counts := domain.CountCopies(copies)
	assert.Equal(t, counts.Total, title.TotalCopies, "total copies")
	assert.Equal(t, counts.Available, title.AvailableCopies, "available copies")
	assert.Equal(t, counts.Total, counts.Available+counts.Borrowed+counts.Reserved+counts.Maintenance+counts.Withdrawn)
	return counts
}

func intentKinds(intents []domain.NotificationIntent) []domain.IntentKind {
	kinds := make([]domain.IntentKind, 0, len(intents))
	for _, in := range intents {
		kinds = append(kinds, in.Kind)
	}
	return kinds
}

func (f *fixture) block(t *testing.T, patronID int64) {
	t.Helper()
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, r repository.Repos) error {
		return r.Patrons.SetBlocked(ctx, patronID, "manual", f.now)
	})
	require.NoError(t, err)
}
