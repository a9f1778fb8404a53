package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PatronRole string

const (
	PatronRoleMember PatronRole = "MEMBER"
	PatronRoleStaff  PatronRole = "STAFF"
)

// Patron is the borrower record supplied by the integrating application. The
// engine reads tier, role and block state and only ever writes the block fields.
type Patron struct {
	ID            int64      `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Email         string     `json:"email" db:"email"`
	Tier          string     `json:"tier" db:"tier"`
	Role          PatronRole `json:"role" db:"role"`
	Blocked       bool       `json:"blocked" db:"blocked"`
	BlockedReason string     `json:"blocked_reason" db:"blocked_reason"`
	BlockedOn     *time.Time `json:"blocked_on,omitempty" db:"blocked_on"`
}

// Actor is whoever triggers an operation: the patron themself or a staff member.
type Actor struct {
	PatronID int64
	Role     PatronRole
}

func (a Actor) IsStaff() bool {
	return a.Role == PatronRoleStaff
}

// Delinquency summarises what a patron owes and their oldest overdue due date.
type Delinquency struct {
	PatronID    int64           `db:"patron_id"`
	UnpaidFines decimal.Decimal `db:"unpaid_fines"`
	OldestDueAt *time.Time      `db:"oldest_due_at"`
}
