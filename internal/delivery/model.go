// Package delivery defines the delivery domain model and the status engine
// that decides which role may move a delivery between states.
package delivery

import "time"

// Status is the lifecycle state of a delivery, owned by the backend.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusPending   Status = "pending"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusReceived  Status = "received"
	StatusInLab     Status = "in_lab"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusSentToLab Status = "sent_to_lab"
)

// allStatuses enumerates every known status, used for parsing and exhaustive tests.
var allStatuses = []Status{
	StatusScheduled, StatusPending, StatusInTransit, StatusDelivered,
	StatusReceived, StatusInLab, StatusAccepted, StatusRejected, StatusSentToLab,
}

// Role is an acting party in the approval workflow. Lab outcomes arrive as
// backend-driven status changes, so there is no lab role.
type Role string

const (
	RoleForeman Role = "foreman"
	RoleSSK     Role = "ssk"
)

// Action is a requested status transition.
type Action string

const (
	ActionReceive   Action = "receive"
	ActionSendToLab Action = "send_to_lab"
	ActionAccept    Action = "accept"
	ActionReject    Action = "reject"
)

// Delivery mirrors the backend's delivery record. The client reads it and
// requests status transitions; it never owns one.
type Delivery struct {
	ID            string    `json:"id"`
	Status        Status    `json:"status"`
	ObjectID      string    `json:"object_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Supplier      string    `json:"supplier"`
	ExpectedDate  string    `json:"expected_date"`
	ItemsCount    int       `json:"items_count"`
	InvoicePhotos []string  `json:"invoice_photos"`
	CreatedAt     time.Time `json:"created_at"`
}

// FlowKind discriminates the two sibling material-record shapes: the delivery
// intake flow and the project-level materials review flow.
type FlowKind int

const (
	FlowIntake FlowKind = iota
	FlowReview
)

// MaterialRecord is one editable material line item. The populated field set
// is fixed by Flow: intake rows use NetWeight, review rows use Weight, Unit
// and Supplier. Rows live in the staging store until confirmed.
type MaterialRecord struct {
	Flow      FlowKind `json:"-"`
	Name      string   `json:"name"`
	Quantity  string   `json:"quantity"`
	Size      string   `json:"size"`
	Volume    string   `json:"volume"`
	NetWeight string   `json:"netWeight,omitempty"`
	Weight    string   `json:"weight,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	Supplier  string   `json:"supplier,omitempty"`
}

// ValidationError reports input that fails before any request is sent:
// a missing comment, zero attached photos, an empty material list.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}
