package domain

import "time"

type CopyStatus string

const (
	CopyStatusAvailable   CopyStatus = "AVAILABLE"
	CopyStatusBorrowed    CopyStatus = "BORROWED"
	CopyStatusReserved    CopyStatus = "RESERVED"
	CopyStatusWithdrawn   CopyStatus = "WITHDRAWN"
	CopyStatusMaintenance CopyStatus = "MAINTENANCE"
)

// copyTransitions lists the statuses each status may move to. WITHDRAWN is terminal.
var copyTransitions = map[CopyStatus][]CopyStatus{
	CopyStatusAvailable:   {CopyStatusBorrowed, CopyStatusReserved, CopyStatusMaintenance, CopyStatusWithdrawn},
	CopyStatusBorrowed:    {CopyStatusAvailable, CopyStatusReserved},
	CopyStatusReserved:    {CopyStatusAvailable, CopyStatusBorrowed, CopyStatusReserved},
	CopyStatusMaintenance: {CopyStatusAvailable, CopyStatusReserved, CopyStatusWithdrawn},
	CopyStatusWithdrawn:   {},
}

func (s CopyStatus) Valid() bool {
	_, ok := copyTransitions[s]
	return ok
}

// CanTransitionTo reports whether a copy in status s may be moved to next.
func (s CopyStatus) CanTransitionTo(next CopyStatus) bool {
	for _, allowed := range copyTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Copy struct {
	ID            int64      `json:"id" db:"id"`
	TitleID       int64      `json:"title_id" db:"title_id"`
	Status        CopyStatus `json:"status" db:"status"`
	InventoryCode string     `json:"inventory_code" db:"inventory_code"`
	Location      string     `json:"location" db:"location"`
	AccessTier    string     `json:"access_tier" db:"access_tier"`
	ConditionNote string     `json:"condition_note" db:"condition_note"`
	CreatedOn     time.Time  `json:"created_on" db:"created_on"`
	UpdatedOn     time.Time  `json:"updated_on" db:"updated_on"`
}
