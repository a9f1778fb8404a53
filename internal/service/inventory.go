package service

import (
	"context"
	"fmt"

	"library-circulation-backend/internal/audit"
	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/logger"
	"library-circulation-backend/internal/repository"
)

type inventoryService struct {
	*engine
}

func NewInventoryService(store repository.Transactor, policy domain.Policy, recorder audit.Recorder, clock Clock) InventoryService {
	return &inventoryService{engine: newEngine(store, policy, recorder, clock)}
}

func requireStaff(actor domain.Actor) error {
	if !actor.IsStaff() {
		return fmt.Errorf("%w: staff only", domain.ErrForbidden)
	}
	return nil
}

func (s *inventoryService) AddTitle(ctx context.Context, actor domain.Actor, title *domain.Title) (*domain.Title, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	_, err := s.run(ctx, func(ctx context.Context, t *txn) error {
		title.TotalCopies, title.AvailableCopies = 0, 0
		if err := t.Titles.Create(ctx, title); err != nil {
			return err
		}
		t.record("title.created", "title", title.ID, 0, map[string]any{"isbn": title.ISBN})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return title, nil
}

// AddCopy takes a new copy into stock. It enters circulation through the
// release path, so a patron already queued for the title gets it earmarked.
func (s *inventoryService) AddCopy(ctx context.Context, actor domain.Actor, cp *domain.Copy) (*CopyResult, error) {
	logger.EnterMethod("inventoryService.AddCopy", "titleID", cp.TitleID, "inventoryCode", cp.InventoryCode)
	if err := requireStaff(actor); err != nil {
		logger.ExitMethodWithError("inventoryService.AddCopy", err)
		return nil, err
	}

	t, err := s.run(ctx, func(ctx context.Context, t *txn) error {
		if _, err := t.lockTitle(ctx, cp.TitleID); err != nil {
			return err
		}
		cp.Status = domain.CopyStatusAvailable
		if err := t.Copies.Create(ctx, cp); err != nil {
			return err
		}
		t.record("copy.created", "copy", cp.ID, 0, map[string]any{"inventory_code": cp.InventoryCode})
		return t.releaseCopy(ctx, cp)
	})
	if err != nil {
		logger.ExitMethodWithError("inventoryService.AddCopy", err, "titleID", cp.TitleID)
		return nil, err
	}

	logger.ExitMethod("inventoryService.AddCopy", "copyID", cp.ID, "status", cp.Status)
	return &CopyResult{Copy: cp, Intents: t.intents}, nil
}

func (s *inventoryService) SendToMaintenance(ctx context.Context, actor domain.Actor, copyID int64, note string) (*CopyResult, error) {
	return s.shelve(ctx, actor, copyID, domain.CopyStatusMaintenance, note)
}

func (s *inventoryService) WithdrawCopy(ctx context.Context, actor domain.Actor, copyID int64, note string) (*CopyResult, error) {
	return s.shelve(ctx, actor, copyID, domain.CopyStatusWithdrawn, note)
}

// shelve takes a copy out of circulation. Only AVAILABLE copies (and copies in
// maintenance, for withdrawal) qualify; a borrowed or earmarked copy must come
// back through the loan or reservation first.
func (s *inventoryService) shelve(ctx context.Context, actor domain.Actor, copyID int64, next domain.CopyStatus, note string) (*CopyResult, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var cp *domain.Copy
	t, err := s.run(ctx, func(ctx context.Context, t *txn) error {
		var err error
		if cp, err = lockCopy(ctx, t, copyID); err != nil {
			return err
		}
		if cp.Status == domain.CopyStatusBorrowed || cp.Status == domain.CopyStatusReserved {
			return fmt.Errorf("%w: copy %d is %s", domain.ErrCopyNotAvailable, cp.ID, cp.Status)
		}
		if !cp.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: copy %d %s -> %s", domain.ErrIllegalTransition, cp.ID, cp.Status, next)
		}
		if err := t.setStatus(ctx, cp, next); err != nil {
			return err
		}
		if note != "" {
			t.record("copy.note", "copy", cp.ID, 0, map[string]any{"note": note})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &CopyResult{Copy: cp, Intents: t.intents}, nil
}

func (s *inventoryService) ReturnToCirculation(ctx context.Context, actor domain.Actor, copyID int64) (*CopyResult, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var cp *domain.Copy
	t, err := s.run(ctx, func(ctx context.Context, t *txn) error {
		var err error
		if cp, err = lockCopy(ctx, t, copyID); err != nil {
			return err
		}
		if cp.Status != domain.CopyStatusMaintenance {
			return fmt.Errorf("%w: copy %d is %s, not in maintenance", domain.ErrInvalidState, cp.ID, cp.Status)
		}
		return t.releaseCopy(ctx, cp)
	})
	if err != nil {
		return nil, err
	}
	return &CopyResult{Copy: cp, Intents: t.intents}, nil
}

func (s *inventoryService) GetTitleAvailability(ctx context.Context, titleID int64) (*TitleAvailability, error) {
	var out *TitleAvailability
	_, err := s.run(ctx, func(ctx context.Context, t *txn) error {
		if _, err := t.lockTitle(ctx, titleID); err != nil {
			return err
		}
		if err := t.recomputeCounters(ctx, titleID); err != nil {
			return err
		}
		title, err := t.Titles.GetByID(ctx, titleID)
		if err != nil {
			return err
		}
		copies, err := t.Copies.ListByTitle(ctx, titleID)
		if err != nil {
			return err
		}
		queue, err := t.Reservations.ListQueued(ctx, titleID)
		if err != nil {
			return err
		}
		out = &TitleAvailability{Title: title, Counts: domain.CountCopies(copies), Copies: copies, Queued: len(queue)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lockCopy reads a copy, locks its title and reads the copy again under the lock.
func lockCopy(ctx context.Context, t *txn, copyID int64) (*domain.Copy, error) {
	cp, err := t.Copies.GetByID(ctx, copyID)
	if err != nil {
		return nil, err
	}
	if _, err := t.lockTitle(ctx, cp.TitleID); err != nil {
		return nil, err
	}
	return t.Copies.GetByID(ctx, copyID)
}
