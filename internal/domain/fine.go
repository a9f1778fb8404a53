package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type FineStatus string

const (
	FineStatusActive    FineStatus = "active"
	FineStatusPaid      FineStatus = "paid"
	FineStatusCancelled FineStatus = "cancelled"
)

const FineReasonOverdue = "OVERDUE"

type Fine struct {
	ID         int64           `json:"id" db:"id"`
	LoanID     int64           `json:"loan_id" db:"loan_id"`
	PatronID   int64           `json:"patron_id" db:"patron_id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Currency   string          `json:"currency" db:"currency"`
	Reason     string          `json:"reason" db:"reason"`
	Status     FineStatus      `json:"status" db:"status"`
	AssessedAt time.Time       `json:"assessed_at" db:"assessed_at"`
	UpdatedOn  time.Time       `json:"updated_on" db:"updated_on"`
}

// ComputeOverdueFine returns dailyRate * (daysOverdue - graceDays) rounded to
// two decimals, or zero when the loan is still inside its grace period.
func ComputeOverdueFine(dailyRate decimal.Decimal, daysOverdue, graceDays int) decimal.Decimal {
	chargeable := daysOverdue - graceDays
	if chargeable <= 0 {
		return decimal.Zero
	}
	return dailyRate.Mul(decimal.NewFromInt(int64(chargeable))).Round(2)
}
