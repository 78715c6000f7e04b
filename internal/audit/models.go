package audit

import "time"

// Event is an immutable, append-only financial event record.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; do not block money movement on audit failures.
//
// Storage: table financial_events, INSERT-only.
type Event struct {
	ID      string `json:"id"`
	Service string `json:"service"`

	// Type is the ledger event type, or admin_action for privileged calls.
	Type string `json:"eventType"`

	ActorID   string `json:"actorId,omitempty"`
	ActorRole string `json:"actorRole,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`

	// Amount is a fixed two-decimal string; empty when the event moved no money.
	Amount      string `json:"amount,omitempty"`
	ReferenceID string `json:"referenceId,omitempty"`

	// Metadata is a JSON object (JSONB in Postgres).
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

const (
	ServiceName          = "wallet-ledger"
	EventTypeAdminAction = "admin_action"
)
