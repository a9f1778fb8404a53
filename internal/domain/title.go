package domain

import "time"

// Title is a catalog entry. TotalCopies and AvailableCopies are a cache of the
// copy collection and are rewritten on every copy mutation.
type Title struct {
	ID              int64     `json:"id" db:"id"`
	ISBN            string    `json:"isbn" db:"isbn"`
	Name            string    `json:"name" db:"name"`
	TotalCopies     int       `json:"total_copies" db:"total_copies"`
	AvailableCopies int       `json:"available_copies" db:"available_copies"`
	CreatedOn       time.Time `json:"created_on" db:"created_on"`
	UpdatedOn       time.Time `json:"updated_on" db:"updated_on"`
}

// CopyCounts is the per-status breakdown of a title's copies.
type CopyCounts struct {
	Total       int
	Available   int
	Borrowed    int
	Reserved    int
	Maintenance int
	Withdrawn   int
}

// CountCopies walks a title's copies and tallies them by status.
func CountCopies(copies []Copy) CopyCounts {
	var c CopyCounts
	for _, cp := range copies {
		c.Total++
		switch cp.Status {
		case CopyStatusAvailable:
			c.Available++
		case CopyStatusBorrowed:
			c.Borrowed++
		case CopyStatusReserved:
			c.Reserved++
		case CopyStatusMaintenance:
			c.Maintenance++
		case CopyStatusWithdrawn:
			c.Withdrawn++
		}
	}
	return c
}
