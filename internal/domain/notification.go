package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

type IntentKind string

const (
	IntentReservationReady   IntentKind = "reservation.ready"
	IntentReservationExpired IntentKind = "reservation.expired"
	IntentLoanDue            IntentKind = "loan.due"
	IntentLoanOverdue        IntentKind = "loan.overdue"
)

// NotificationIntent is a fire-and-forget message request produced by a
// circulation operation. The engine may emit the same intent on every sweep;
// the dispatcher dedupes by Fingerprint.
type NotificationIntent struct {
	ID            string     `json:"id"`
	Kind          IntentKind `json:"kind"`
	PatronID      int64      `json:"patron_id"`
	TitleID       int64      `json:"title_id,omitempty"`
	CopyID        int64      `json:"copy_id,omitempty"`
	LoanID        int64      `json:"loan_id,omitempty"`
	ReservationID int64      `json:"reservation_id,omitempty"`
	DaysLate      int        `json:"days_late,omitempty"`
	PickupBy      *time.Time `json:"pickup_by,omitempty"`
	DueAt         *time.Time `json:"due_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Fingerprint hashes the identifying content of the intent. Timestamps and the
// intent id are left out so repeated emissions of the same fact collide.
func (n NotificationIntent) Fingerprint() string {
	parts := []string{
		string(n.Kind),
		strconv.FormatInt(n.PatronID, 10),
		strconv.FormatInt(n.LoanID, 10),
		strconv.FormatInt(n.ReservationID, 10),
		strconv.FormatInt(n.CopyID, 10),
		strconv.Itoa(n.DaysLate),
	}
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(parts, "|")), 16)
}

// Notification is the in-app record the dispatcher stores for a patron.
type Notification struct {
	ID          int64             `json:"id" db:"id"`
	PatronID    int64             `json:"patron_id" db:"patron_id"`
	Kind        IntentKind        `json:"kind" db:"kind"`
	Title       string            `json:"title" db:"title"`
	Message     string            `json:"message" db:"message"`
	IsRead      bool              `json:"is_read" db:"is_read"`
	Fingerprint string            `json:"fingerprint" db:"fingerprint"`
	Attributes  map[string]string `json:"attributes" db:"-"`
	CreatedOn   time.Time         `json:"created_on" db:"created_on"`
}
