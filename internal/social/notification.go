package social

import "time"

// Notification types.
const (
	NotificationAdmin  = "activity_failures"
	NotificationSystem = "system_message"
)

// AdminRecipient receives aggregated engine reports.
const AdminRecipient = "ConsiglioDeiDieci"

// Notification is a message left for a citizen or the administrators.
type Notification struct {
	ID        int64     `json:"id" db:"id"`
	Citizen   string    `json:"citizen" db:"citizen"`
	Type      string    `json:"type" db:"type"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
