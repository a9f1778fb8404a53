// Package memory is an in-process repository.Store. Transactions are
// serialised by a single mutex and run against a private copy of the data,
// which replaces the shared state only on commit.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/repository"
)

type state struct {
	seq           int64
	titles        map[int64]domain.Title
	copies        map[int64]domain.Copy
	loans         map[int64]domain.Loan
	reservations  map[int64]domain.Reservation
	fines         map[int64]domain.Fine
	patrons       map[int64]domain.Patron
	notifications map[int64]domain.Notification
}

func newState() *state {
	return &state{
		titles:        map[int64]domain.Title{},
		copies:        map[int64]domain.Copy{},
		loans:         map[int64]domain.Loan{},
		reservations:  map[int64]domain.Reservation{},
		fines:         map[int64]domain.Fine{},
		patrons:       map[int64]domain.Patron{},
		notifications: map[int64]domain.Notification{},
	}
}

func (s *state) clone() *state {
	return &state{
		seq:           s.seq,
		titles:        maps.Clone(s.titles),
		copies:        maps.Clone(s.copies),
		loans:         maps.Clone(s.loans),
		reservations:  maps.Clone(s.reservations),
		fines:         maps.Clone(s.fines),
		patrons:       maps.Clone(s.patrons),
		notifications: maps.Clone(s.notifications),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

type Store struct {
	mu     sync.Mutex
	data   *state
	closed bool
}

func NewStore() *Store {
	return &Store{data: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return repository.Unavailable(errClosed)
	}

	working := s.data.clone()
	if err := fn(ctx, reposFor(working)); err != nil {
		return err
	}
	s.data = working
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type storeError string

func (e storeError) Error() string { return string(e) }

const errClosed = storeError("memory store closed")

func reposFor(st *state) repository.Repos {
	return repository.Repos{
		Titles:        titleRepo{st},
		Copies:        copyRepo{st},
		Loans:         loanRepo{st},
		Reservations:  reservationRepo{st},
		Fines:         fineRepo{st},
		Patrons:       patronRepo{st},
		Notifications: notificationRepo{st},
	}
}

func sortedValues[T any](m map[int64]T, keep func(T) bool, less func(a, b T) bool) []T {
	out := make([]T, 0)
	for _, v := range m {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// titles

type titleRepo struct{ st *state }

func (r titleRepo) Create(_ context.Context, t *domain.Title) error {
	now := time.Now().UTC()
	t.ID = r.st.nextID()
	t.CreatedOn, t.UpdatedOn = now, now
	r.st.titles[t.ID] = *t
	return nil
}

func (r titleRepo) GetByID(_ context.Context, id int64) (*domain.Title, error) {
	t, ok := r.st.titles[id]
	if !ok {
		return nil, domain.NotFound("title", id)
	}
	return &t, nil
}

// Lock is a plain read: the store mutex already serialises transactions.
func (r titleRepo) Lock(ctx context.Context, id int64) (*domain.Title, error) {
	return r.GetByID(ctx, id)
}

func (r titleRepo) UpdateCounters(_ context.Context, id int64, total, available int) error {
	t, ok := r.st.titles[id]
	if !ok {
		return domain.NotFound("title", id)
	}
	t.TotalCopies, t.AvailableCopies, t.UpdatedOn = total, available, time.Now().UTC()
	r.st.titles[id] = t
	return nil
}

// copies

type copyRepo struct{ st *state }

func (r copyRepo) Create(_ context.Context, c *domain.Copy) error {
	if _, ok := r.st.titles[c.TitleID]; !ok {
		return domain.NotFound("title", c.TitleID)
	}
	for _, other := range r.st.copies {
		if other.TitleID == c.TitleID && other.InventoryCode == c.InventoryCode {
			return domain.ErrConflict
		}
	}
	now := time.Now().UTC()
	c.ID = r.st.nextID()
	c.CreatedOn, c.UpdatedOn = now, now
	r.st.copies[c.ID] = *c
	return nil
}

func (r copyRepo) GetByID(_ context.Context, id int64) (*domain.Copy, error) {
	c, ok := r.st.copies[id]
	if !ok {
		return nil, domain.NotFound("copy", id)
	}
	return &c, nil
}

func (r copyRepo) UpdateStatus(_ context.Context, id int64, status domain.CopyStatus) error {
	c, ok := r.st.copies[id]
	if !ok {
		return domain.NotFound("copy", id)
	}
	c.Status, c.UpdatedOn = status, time.Now().UTC()
	r.st.copies[id] = c
	return nil
}

func (r copyRepo) ListByTitle(_ context.Context, titleID int64) ([]domain.Copy, error) {
	return sortedValues(r.st.copies,
		func(c domain.Copy) bool { return c.TitleID == titleID },
		func(a, b domain.Copy) bool { return a.ID < b.ID }), nil
}

func (r copyRepo) FindAvailable(ctx context.Context, titleID int64) (*domain.Copy, error) {
	copies, _ := r.ListByTitle(ctx, titleID)
	for _, c := range copies {
		if c.Status == domain.CopyStatusAvailable {
			return &c, nil
		}
	}
	return nil, nil
}

// loans

type loanRepo struct{ st *state }

func (r loanRepo) Create(_ context.Context, l *domain.Loan) error {
	if l.ReturnedAt == nil {
		for _, other := range r.st.loans {
			if other.CopyID == l.CopyID && other.IsOpen() {
				return domain.ErrConflict
			}
		}
	}
	l.ID = r.st.nextID()
	l.UpdatedOn = time.Now().UTC()
	r.st.loans[l.ID] = *l
	return nil
}

func (r loanRepo) GetByID(_ context.Context, id int64) (*domain.Loan, error) {
	l, ok := r.st.loans[id]
	if !ok {
		return nil, domain.NotFound("loan", id)
	}
	return &l, nil
}

func (r loanRepo) Update(_ context.Context, l *domain.Loan) error {
	if _, ok := r.st.loans[l.ID]; !ok {
		return domain.NotFound("loan", l.ID)
	}
	l.UpdatedOn = time.Now().UTC()
	r.st.loans[l.ID] = *l
	return nil
}

func (r loanRepo) GetOpenByCopy(_ context.Context, copyID int64) (*domain.Loan, error) {
	for _, l := range r.st.loans {
		if l.CopyID == copyID && l.IsOpen() {
			return &l, nil
		}
	}
	return nil, nil
}

func (r loanRepo) CountOpenByPatron(_ context.Context, patronID int64) (int, error) {
	n := 0
	for _, l := range r.st.loans {
		if l.PatronID == patronID && l.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (r loanRepo) ListOverdue(_ context.Context, before time.Time) ([]domain.Loan, error) {
	return r.listOpen(func(l domain.Loan) bool { return l.DueAt.Before(before) }), nil
}

func (r loanRepo) ListDueBetween(_ context.Context, from, to time.Time) ([]domain.Loan, error) {
	return r.listOpen(func(l domain.Loan) bool { return !l.DueAt.Before(from) && l.DueAt.Before(to) }), nil
}

func (r loanRepo) listOpen(match func(domain.Loan) bool) []domain.Loan {
	return sortedValues(r.st.loans,
		func(l domain.Loan) bool { return l.IsOpen() && match(l) },
		func(a, b domain.Loan) bool {
			if a.DueAt.Equal(b.DueAt) {
				return a.ID < b.ID
			}
			return a.DueAt.Before(b.DueAt)
		})
}

// reservations

type reservationRepo struct{ st *state }

func (r reservationRepo) checkUnique(res *domain.Reservation) error {
	if res.Status != domain.ReservationStatusActive {
		return nil
	}
	for _, other := range r.st.reservations {
		if other.ID == res.ID || other.Status != domain.ReservationStatusActive {
			continue
		}
		if other.PatronID == res.PatronID && other.TitleID == res.TitleID {
			return domain.ErrConflict
		}
		if res.CopyID != nil && other.CopyID != nil && *other.CopyID == *res.CopyID {
			return domain.ErrConflict
		}
	}
	return nil
}

func (r reservationRepo) Create(_ context.Context, res *domain.Reservation) error {
	if err := r.checkUnique(res); err != nil {
		return err
	}
	res.ID = r.st.nextID()
	res.UpdatedOn = time.Now().UTC()
	r.st.reservations[res.ID] = *res
	return nil
}

func (r reservationRepo) GetByID(_ context.Context, id int64) (*domain.Reservation, error) {
	res, ok := r.st.reservations[id]
	if !ok {
		return nil, domain.NotFound("reservation", id)
	}
	return &res, nil
}

func (r reservationRepo) Update(_ context.Context, res *domain.Reservation) error {
	if _, ok := r.st.reservations[res.ID]; !ok {
		return domain.NotFound("reservation", res.ID)
	}
	if err := r.checkUnique(res); err != nil {
		return err
	}
	res.UpdatedOn = time.Now().UTC()
	r.st.reservations[res.ID] = *res
	return nil
}

func (r reservationRepo) ListQueued(_ context.Context, titleID int64) ([]domain.Reservation, error) {
	return sortedValues(r.st.reservations,
		func(res domain.Reservation) bool {
			return res.TitleID == titleID && res.Status == domain.ReservationStatusActive && res.CopyID == nil
		},
		func(a, b domain.Reservation) bool { return a.QueuedBefore(&b) }), nil
}

func (r reservationRepo) GetActiveByPatron(_ context.Context, patronID, titleID int64) (*domain.Reservation, error) {
	for _, res := range r.st.reservations {
		if res.PatronID == patronID && res.TitleID == titleID && res.Status == domain.ReservationStatusActive {
			return &res, nil
		}
	}
	return nil, nil
}

func (r reservationRepo) GetActiveByCopy(_ context.Context, copyID int64) (*domain.Reservation, error) {
	for _, res := range r.st.reservations {
		if res.HoldsCopy(copyID) {
			return &res, nil
		}
	}
	return nil, nil
}

func (r reservationRepo) ListLapsed(_ context.Context, now time.Time) ([]domain.Reservation, error) {
	return sortedValues(r.st.reservations,
		func(res domain.Reservation) bool { return res.PickupLapsed(now) },
		func(a, b domain.Reservation) bool {
			if a.ExpiresAt.Equal(*b.ExpiresAt) {
				return a.ID < b.ID
			}
			return a.ExpiresAt.Before(*b.ExpiresAt)
		}), nil
}

// fines

type fineRepo struct{ st *state }

func (r fineRepo) Create(_ context.Context, f *domain.Fine) error {
	if f.Status == domain.FineStatusActive {
		for _, other := range r.st.fines {
			if other.LoanID == f.LoanID && other.Status == domain.FineStatusActive {
				return domain.ErrConflict
			}
		}
	}
	f.ID = r.st.nextID()
	f.UpdatedOn = time.Now().UTC()
	r.st.fines[f.ID] = *f
	return nil
}

func (r fineRepo) GetActiveByLoan(_ context.Context, loanID int64) (*domain.Fine, error) {
	for _, f := range r.st.fines {
		if f.LoanID == loanID && f.Status == domain.FineStatusActive {
			return &f, nil
		}
	}
	return nil, nil
}

func (r fineRepo) ListByPatron(_ context.Context, patronID int64) ([]domain.Fine, error) {
	return sortedValues(r.st.fines,
		func(f domain.Fine) bool { return f.PatronID == patronID },
		func(a, b domain.Fine) bool { return a.ID > b.ID }), nil
}

// patrons

type patronRepo struct{ st *state }

func (r patronRepo) Create(_ context.Context, p *domain.Patron) error {
	if p.Role == "" {
		p.Role = domain.PatronRoleMember
	}
	p.ID = r.st.nextID()
	r.st.patrons[p.ID] = *p
	return nil
}

func (r patronRepo) GetByID(_ context.Context, id int64) (*domain.Patron, error) {
	p, ok := r.st.patrons[id]
	if !ok {
		return nil, domain.NotFound("patron", id)
	}
	return &p, nil
}

func (r patronRepo) SetBlocked(_ context.Context, id int64, reason string, at time.Time) error {
	p, ok := r.st.patrons[id]
	if !ok {
		return domain.NotFound("patron", id)
	}
	p.Blocked, p.BlockedReason, p.BlockedOn = true, reason, &at
	r.st.patrons[id] = p
	return nil
}

func (r patronRepo) ListDelinquencies(_ context.Context, now time.Time) ([]domain.Delinquency, error) {
	byPatron := map[int64]*domain.Delinquency{}
	get := func(id int64) *domain.Delinquency {
		d, ok := byPatron[id]
		if !ok {
			d = &domain.Delinquency{PatronID: id}
			byPatron[id] = d
		}
		return d
	}
	for _, f := range r.st.fines {
		if f.Status == domain.FineStatusActive {
			d := get(f.PatronID)
			d.UnpaidFines = d.UnpaidFines.Add(f.Amount)
		}
	}
	for _, l := range r.st.loans {
		if l.IsOpen() && l.DueAt.Before(now) {
			d := get(l.PatronID)
			if d.OldestDueAt == nil || l.DueAt.Before(*d.OldestDueAt) {
				due := l.DueAt
				d.OldestDueAt = &due
			}
		}
	}

	out := make([]domain.Delinquency, 0, len(byPatron))
	for id, d := range byPatron {
		if p, ok := r.st.patrons[id]; ok && !p.Blocked {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatronID < out[j].PatronID })
	return out, nil
}

// notifications

type notificationRepo struct{ st *state }

func (r notificationRepo) Create(_ context.Context, n *domain.Notification) error {
	n.ID = r.st.nextID()
	if n.CreatedOn.IsZero() {
		n.CreatedOn = time.Now().UTC()
	}
	r.st.notifications[n.ID] = *n
	return nil
}

func (r notificationRepo) ExistsSince(_ context.Context, patronID int64, fingerprint string, since time.Time) (bool, error) {
	for _, n := range r.st.notifications {
		if n.PatronID == patronID && n.Fingerprint == fingerprint && !n.CreatedOn.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r notificationRepo) List(_ context.Context, patronID int64, limit, offset int32) ([]domain.Notification, int32, error) {
	all := sortedValues(r.st.notifications,
		func(n domain.Notification) bool { return n.PatronID == patronID },
		func(a, b domain.Notification) bool {
			if a.CreatedOn.Equal(b.CreatedOn) {
				return a.ID > b.ID
			}
			return a.CreatedOn.After(b.CreatedOn)
		})
	total := int32(len(all))
	if offset >= total {
		return []domain.Notification{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r notificationRepo) MarkAsRead(_ context.Context, id, patronID int64) error {
	n, ok := r.st.notifications[id]
	if !ok || n.PatronID != patronID {
		return domain.NotFound("notification", id)
	}
	n.IsRead = true
	r.st.notifications[id] = n
	return nil
}
