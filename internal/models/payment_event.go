package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Normalized webhook event types, shared by both gateway adapters.
type EventType string

const (
	EventCaptureCompleted EventType = "capture.completed"
	EventCaptureDenied    EventType = "capture.denied"
	EventCaptureReversed  EventType = "capture.reversed"
	EventRefundCompleted  EventType = "refund.completed"
	EventUnknown          EventType = "unknown"
)

// PaymentEvent is the idempotency ledger: one durable row per unique
// inbound notification, keyed by (provider, event_id). The direct capture
// path writes a synthetic row under the same key scheme so both channels
// land on a single ledger entry per capture.
type PaymentEvent struct {
	bun.BaseModel `bun:"table:payment_events"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Provider  string    `bun:"provider,notnull" json:"provider"`
	EventID   string    `bun:"event_id,notnull" json:"event_id"`
	EventType EventType `bun:"event_type,notnull" json:"event_type"`
	BookingID string    `bun:"booking_id,nullzero" json:"booking_id,omitempty"`
	Payload   []byte    `bun:"payload" json:"payload,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// WebhookEvent is a provider notification normalized by the adapter that
// received it, before it touches the ledger.
type WebhookEvent struct {
	EventID   string
	EventType EventType
	BookingID string
	OrderID   string
	CaptureID string
	RawType   string
}
