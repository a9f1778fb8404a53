package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"library-circulation-backend/internal/audit"
	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/logger"
	"library-circulation-backend/internal/repository"
)

// engine holds what every circulation service shares.
type engine struct {
	store  repository.Transactor
	policy domain.Policy
	audit  audit.Recorder
	clock  Clock
}

func newEngine(store repository.Transactor, policy domain.Policy, recorder audit.Recorder, clock Clock) *engine {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &engine{store: store, policy: policy, audit: recorder, clock: clock}
}

// txn is one unit of work. It collects the intents and audit entries the
// work produced; both are discarded if the transaction rolls back.
type txn struct {
	repository.Repos
	now          time.Time
	policy       domain.Policy
	pickupWindow time.Duration
	intents      []domain.NotificationIntent
	journal      []audit.Entry
	skipped      bool
}

// run executes fn in one transaction. Audit entries are recorded only after
// commit. A retried transaction starts over with a fresh txn.
func (e *engine) run(ctx context.Context, fn func(ctx context.Context, t *txn) error) (*txn, error) {
	return e.runWithWindow(ctx, e.policy.PickupWindow, fn)
}

func (e *engine) runWithWindow(ctx context.Context, pickupWindow time.Duration, fn func(ctx context.Context, t *txn) error) (*txn, error) {
	var t *txn
	err := e.store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
		t = &txn{
			Repos:        r,
			now:          e.clock().UTC(),
			policy:       e.policy,
			pickupWindow: pickupWindow,
		}
		return fn(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	audit.Safe(ctx, e.audit, t.journal...)
	return t, nil
}

// read runs fn in a transaction that is not expected to write.
func (e *engine) read(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	return e.store.WithinTx(ctx, fn)
}

func newIntentID() string {
	return uuid.NewString()
}

func (t *txn) skip() {
	t.skipped = true
}

func (t *txn) record(action, entity string, id, patronID int64, detail map[string]any) {
	entry := audit.NewEntry(action, entity, id, patronID, detail)
	entry.At = t.now
	t.journal = append(t.journal, entry)
}

func (t *txn) emit(intent domain.NotificationIntent) {
	intent.ID = newIntentID()
	intent.CreatedAt = t.now
	t.intents = append(t.intents, intent)
}

// lockTitle takes the title row lock that serialises every change to the
// title's copies and reservation queue.
func (t *txn) lockTitle(ctx context.Context, titleID int64) (*domain.Title, error) {
	return t.Titles.Lock(ctx, titleID)
}

// setStatus moves a copy to next and refreshes its title's counters. Writing
// the current status again is allowed and only refreshes the counters.
func (t *txn) setStatus(ctx context.Context, cp *domain.Copy, next domain.CopyStatus) error {
	prev := cp.Status
	if prev != next {
		if !prev.CanTransitionTo(next) {
			return fmt.Errorf("%w: copy %d %s -> %s", domain.ErrIllegalTransition, cp.ID, prev, next)
		}
		if err := t.Copies.UpdateStatus(ctx, cp.ID, next); err != nil {
			return err
		}
		cp.Status = next
		cp.UpdatedOn = t.now
		logger.Transition("copy", cp.ID, string(prev), string(next), "titleID", cp.TitleID)
		t.record("copy.status", "copy", cp.ID, 0, map[string]any{"from": string(prev), "to": string(next)})
	}
	return t.recomputeCounters(ctx, cp.TitleID)
}

// recomputeCounters walks the title's copies and rewrites the cached counters.
func (t *txn) recomputeCounters(ctx context.Context, titleID int64) error {
	copies, err := t.Copies.ListByTitle(ctx, titleID)
	if err != nil {
		return err
	}
	counts := domain.CountCopies(copies)
	return t.Titles.UpdateCounters(ctx, titleID, counts.Total, counts.Available)
}
