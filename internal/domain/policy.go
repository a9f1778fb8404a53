package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TierPolicy overrides the borrow cap and loan period for one patron tier.
type TierPolicy struct {
	MaxLoans       int
	LoanPeriodDays int
}

// Policy holds the circulation rules the engine enforces.
type Policy struct {
	LoanPeriodDays             int
	DefaultMaxLoans            int
	MaxExtensions              int
	ExtensionDays              int
	MaxExtensionDays           int
	PickupWindow               time.Duration
	BlockExtensionWhenReserved bool
	Tiers                      map[string]TierPolicy

	FineDailyRate decimal.Decimal
	FineCurrency  string
	FineGraceDays int

	BlockMaxUnpaidFines decimal.Decimal
	BlockMaxOverdueDays int
}

// MaxLoansFor returns the open-loan cap for a tier.
func (p Policy) MaxLoansFor(tier string) int {
	if t, ok := p.Tiers[tier]; ok && t.MaxLoans > 0 {
		return t.MaxLoans
	}
	return p.DefaultMaxLoans
}

// LoanPeriodFor returns the loan window in calendar days for a tier.
func (p Policy) LoanPeriodFor(tier string) int {
	if t, ok := p.Tiers[tier]; ok && t.LoanPeriodDays > 0 {
		return t.LoanPeriodDays
	}
	return p.LoanPeriodDays
}

func DefaultPolicy() Policy {
	return Policy{
		LoanPeriodDays:      14,
		DefaultMaxLoans:     5,
		MaxExtensions:       2,
		ExtensionDays:       7,
		MaxExtensionDays:    14,
		PickupWindow:        48 * time.Hour,
		Tiers:               map[string]TierPolicy{},
		FineDailyRate:       decimal.RequireFromString("0.25"),
		FineCurrency:        "USD",
		FineGraceDays:       0,
		BlockMaxUnpaidFines: decimal.RequireFromString("10.00"),
		BlockMaxOverdueDays: 30,
	}
}
