package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type BookingStatus string

const (
	BookingPendingEmission BookingStatus = "pending_emission"
	BookingConfirmed       BookingStatus = "confirmed"
	BookingCompleted       BookingStatus = "completed"
	BookingCancelled       BookingStatus = "cancelled"
)

// Gateway identifiers as persisted on bookings and payment events.
const (
	GatewayWallet = "wallet"
	GatewayCard   = "card"
)

// Booking is the unit of settlement. Monetary columns are integer minor
// units (cents); decimal formatting happens only at the API boundary.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID          string `bun:"id,pk" json:"id"`
	BookingCode string `bun:"booking_code,unique" json:"booking_code"`
	UserID      string `bun:"user_id,notnull" json:"user_id"`
	Currency    string `bun:"currency,notnull" json:"currency"`

	SubtotalCents   int64 `bun:"subtotal_cents" json:"subtotal_cents"`
	GatewayFeeCents int64 `bun:"payment_gateway_fee_cents" json:"payment_gateway_fee_cents"`
	TotalCents      int64 `bun:"total_amount_cents" json:"total_amount_cents"`

	PaymentStatus   PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	BookingStatus   BookingStatus `bun:"booking_status,notnull" json:"booking_status"`
	PaymentMethod   string        `bun:"payment_method,nullzero" json:"payment_method,omitempty"`
	PaymentGateway  string        `bun:"payment_gateway,nullzero" json:"payment_gateway,omitempty"`
	PaymentIntentID string        `bun:"payment_intent_id,nullzero" json:"payment_intent_id,omitempty"`
	CaptureID       string        `bun:"capture_id,nullzero" json:"capture_id,omitempty"`

	PaidAt            *time.Time `bun:"paid_at,nullzero" json:"paid_at,omitempty"`
	RefundAmountCents int64      `bun:"refund_amount_cents,nullzero" json:"refund_amount_cents,omitempty"`
	RefundReason      string     `bun:"refund_reason,nullzero" json:"refund_reason,omitempty"`
	RefundedAt        *time.Time `bun:"refunded_at,nullzero" json:"refunded_at,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Passenger carries the fare data the pricing engine needs. Everything
// else about a passenger (documents, seats, PNR) lives outside this core.
type Passenger struct {
	bun.BaseModel `bun:"table:passengers"`

	ID            string `bun:"id,pk" json:"id"`
	BookingID     string `bun:"booking_id,notnull" json:"booking_id"`
	FullName      string `bun:"full_name" json:"full_name"`
	Age           int    `bun:"age,notnull" json:"age"`
	BaseFareCents int64  `bun:"base_fare_cents,notnull" json:"base_fare_cents"`
}
