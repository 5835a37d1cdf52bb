package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-settlement/internal/models"

	"github.com/uptrace/bun"
)

var ErrBookingNotFound = errors.New("booking not found")

type DB struct {
	Bun *bun.DB
}

// ---------------- BOOKINGS ----------------

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetBookingByIntentID resolves a booking from the provider-issued order or
// intent identifier, for webhook payloads that carry no booking reference.
func (d *DB) GetBookingByIntentID(ctx context.Context, intentID string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("payment_intent_id = ?", intentID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (d *DB) GetPassengersByBooking(ctx context.Context, bookingID string) ([]models.Passenger, error) {
	var passengers []models.Passenger
	err := d.Bun.NewSelect().
		Model(&passengers).
		Where("booking_id = ?", bookingID).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return passengers, nil
}

// SetBookingOrder stores the provider order id, the chosen gateway and the
// authoritative pricing snapshot when checkout starts.
func (d *DB) SetBookingOrder(ctx context.Context, bookingID, gateway, intentID string, breakdown *models.PriceBreakdown) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_gateway = ?", gateway).
		Set("payment_method = ?", gateway).
		Set("payment_intent_id = ?", intentID).
		Set("subtotal_cents = ?", breakdown.SubtotalCents).
		Set("payment_gateway_fee_cents = ?", breakdown.GatewayFeeCents).
		Set("total_amount_cents = ?", breakdown.TotalCents).
		Where("id = ?", bookingID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkBookingPaid is the capture commit: a single-row conditional update
// that only the first writer wins. Returns false when another channel
// already marked the booking paid.
func (d *DB) MarkBookingPaid(ctx context.Context, bookingID, captureID string, paidAt time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_status = ?", models.PaymentPaid).
		Set("capture_id = ?", captureID).
		Set("paid_at = ?", paidAt).
		Where("id = ?", bookingID).
		Where("payment_status != ?", models.PaymentPaid).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (d *DB) MarkBookingFailed(ctx context.Context, bookingID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_status = ?", models.PaymentFailed).
		Where("id = ?", bookingID).
		Where("payment_status != ?", models.PaymentPaid).
		Exec(ctx)
	return err
}

// MarkBookingRefunded transitions paid → refunded; the terminal refunded
// state is only reachable from paid.
func (d *DB) MarkBookingRefunded(ctx context.Context, bookingID string, amountCents int64, reason string, refundedAt time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_status = ?", models.PaymentRefunded).
		Set("booking_status = ?", models.BookingCancelled).
		Set("refund_amount_cents = ?", amountCents).
		Set("refund_reason = ?", reason).
		Set("refunded_at = ?", refundedAt).
		Where("id = ?", bookingID).
		Where("payment_status = ?", models.PaymentPaid).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ApplyRefundEvent records a provider-confirmed refund regardless of the
// booking's current payment status: the provider already moved the money,
// so the webhook does not require a prior paid state. The refund amount and
// reason are left alone when the direct refund path wrote them first.
func (d *DB) ApplyRefundEvent(ctx context.Context, bookingID string, refundedAt time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_status = ?", models.PaymentRefunded).
		Set("booking_status = ?", models.BookingCancelled).
		Set("refunded_at = ?", refundedAt).
		Where("id = ?", bookingID).
		Where("payment_status != ?", models.PaymentRefunded).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ---------------- PAYMENT EVENTS ----------------

// InsertPaymentEvent is the atomic insert-if-absent on the idempotency
// ledger. Returns false when a row with the same (provider, event_id)
// already existed, meaning the event was processed before.
func (d *DB) InsertPaymentEvent(ctx context.Context, event *models.PaymentEvent) (bool, error) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	res, err := d.Bun.NewInsert().
		Model(event).
		On("CONFLICT (provider, event_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (d *DB) GetPaymentEvent(ctx context.Context, provider, eventID string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	err := d.Bun.NewSelect().
		Model(&event).
		Where("provider = ?", provider).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func requireRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}
