package domain

import (
	"time"

	"library-circulation-backend/internal/utils"
)

type Loan struct {
	ID              int64      `json:"id" db:"id"`
	CopyID          int64      `json:"copy_id" db:"copy_id"`
	TitleID         int64      `json:"title_id" db:"title_id"`
	PatronID        int64      `json:"patron_id" db:"patron_id"`
	BorrowedAt      time.Time  `json:"borrowed_at" db:"borrowed_at"`
	DueAt           time.Time  `json:"due_at" db:"due_at"`
	ReturnedAt      *time.Time `json:"returned_at,omitempty" db:"returned_at"`
	ExtensionsCount int        `json:"extensions_count" db:"extensions_count"`
	UpdatedOn       time.Time  `json:"updated_on" db:"updated_on"`
}

func (l *Loan) IsOpen() bool {
	return l.ReturnedAt == nil
}

// IsOverdue reports whether the loan is still open past its due date.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.IsOpen() && now.After(l.DueAt)
}

// DaysOverdue counts calendar days between the due date and now. Zero when the
// loan is not overdue.
func (l *Loan) DaysOverdue(now time.Time) int {
	if !l.IsOverdue(now) {
		return 0
	}
	days := utils.CalendarDaysBetween(l.DueAt, now)
	if days < 0 {
		return 0
	}
	return days
}
