package domain

import "time"

// Status is the lifecycle state of a Result row. Transitions are
// forward-only: PENDING -> COMPLETED or PENDING -> FAILED.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Request is a validated dining ask. It is immutable once encoded:
// every field has passed the validator before a Request exists.
type Request struct {
	RequestID      string    `json:"request_id"`
	Cuisine        string    `json:"cuisine"`
	Location       string    `json:"location"`
	PartySize      int       `json:"party_size"`
	Date           string    `json:"date"` // YYYY-MM-DD
	Time           string    `json:"time"` // HH:MM
	ContactAddress string    `json:"contact_address"`
	CreatedAt      time.Time `json:"created_at"`
}

// WorkItem is the durable queue envelope for one Request.
type WorkItem struct {
	RequestID  string
	Body       []byte
	EnqueuedAt time.Time
}

// Delivery is one physical delivery of a WorkItem. The queue assigns a
// fresh Handle per delivery and bumps DeliveryCount; the same
// RequestID may be delivered more than once.
type Delivery struct {
	Item          WorkItem
	Handle        string
	DeliveryCount int
}

// Result records the outcome of fulfillment, one row per RequestID.
// Rows are never deleted in normal operation; they are the audit log.
type Result struct {
	RequestID   string     `json:"request_id"`
	Request     Request    `json:"request"`
	Candidates  []string   `json:"candidates"`
	Status      Status     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notified    bool       `json:"notified"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
