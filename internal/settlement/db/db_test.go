package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-settlement/internal/models"
	"ms-settlement/internal/settlement/db"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	if err := db.ResetSchema(context.Background(), bunDB); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	return &db.DB{Bun: bunDB}
}

func insertBooking(t *testing.T, d *db.DB, booking *models.Booking) {
	t.Helper()
	if _, err := d.Bun.NewInsert().Model(booking).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to insert booking: %v", err)
	}
}

func testBooking(id string) *models.Booking {
	return &models.Booking{
		ID:              id,
		BookingCode:     "TRV-" + id,
		UserID:          "user123",
		Currency:        "usd",
		SubtotalCents:   50000,
		GatewayFeeCents: 1846,
		TotalCents:      53346,
		PaymentStatus:   models.PaymentPending,
		BookingStatus:   models.BookingPendingEmission,
		PaymentGateway:  models.GatewayWallet,
		PaymentIntentID: "ord-" + id,
		CreatedAt:       time.Now().Round(time.Second),
	}
}

func TestMarkBookingPaidWinsOnce(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	insertBooking(t, d, testBooking("bk1"))

	paidAt := time.Now().Round(time.Second)

	// First writer wins.
	won, err := d.MarkBookingPaid(ctx, "bk1", "cap_direct", paidAt)
	if err != nil {
		t.Fatalf("Failed to mark booking paid: %v", err)
	}
	if !won {
		t.Fatal("Expected first paid write to win")
	}

	// The losing channel must not overwrite the capture reference.
	won, err = d.MarkBookingPaid(ctx, "bk1", "cap_webhook", paidAt)
	if err != nil {
		t.Fatalf("Second paid write errored: %v", err)
	}
	if won {
		t.Error("Expected second paid write to lose")
	}

	booking, err := d.GetBookingByID(ctx, "bk1")
	if err != nil {
		t.Fatalf("Failed to retrieve booking: %v", err)
	}
	if booking.PaymentStatus != models.PaymentPaid {
		t.Errorf("Expected status paid, got %s", booking.PaymentStatus)
	}
	if booking.CaptureID != "cap_direct" {
		t.Errorf("Expected capture id cap_direct, got %s", booking.CaptureID)
	}
}

func TestInsertPaymentEventDeduplicates(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	event := &models.PaymentEvent{
		Provider:  models.GatewayWallet,
		EventID:   "capture:cap_1",
		EventType: models.EventCaptureCompleted,
		BookingID: "bk1",
		Payload:   []byte(`{}`),
	}

	inserted, err := d.InsertPaymentEvent(ctx, event)
	if err != nil {
		t.Fatalf("Failed to insert payment event: %v", err)
	}
	if !inserted {
		t.Fatal("Expected first insert to succeed")
	}

	replay := &models.PaymentEvent{
		Provider:  models.GatewayWallet,
		EventID:   "capture:cap_1",
		EventType: models.EventCaptureCompleted,
		BookingID: "bk1",
		Payload:   []byte(`{"replayed":true}`),
	}

	inserted, err = d.InsertPaymentEvent(ctx, replay)
	if err != nil {
		t.Fatalf("Replay insert errored: %v", err)
	}
	if inserted {
		t.Error("Expected replay insert to be a no-op")
	}

	// Same event id under the other provider is a distinct ledger entry.
	other := &models.PaymentEvent{
		Provider:  models.GatewayCard,
		EventID:   "capture:cap_1",
		EventType: models.EventCaptureCompleted,
		BookingID: "bk1",
	}
	inserted, err = d.InsertPaymentEvent(ctx, other)
	if err != nil {
		t.Fatalf("Cross-provider insert errored: %v", err)
	}
	if !inserted {
		t.Error("Expected cross-provider insert to succeed")
	}
}

func TestMarkBookingRefundedRequiresPaid(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	insertBooking(t, d, testBooking("bk2"))

	refundedAt := time.Now().Round(time.Second)

	applied, err := d.MarkBookingRefunded(ctx, "bk2", 51500, models.RefundReasonCustomer, refundedAt)
	if err != nil {
		t.Fatalf("Refund write errored: %v", err)
	}
	if applied {
		t.Error("Expected refund of a pending booking to be rejected")
	}

	if _, err := d.MarkBookingPaid(ctx, "bk2", "cap_1", refundedAt); err != nil {
		t.Fatalf("Failed to mark booking paid: %v", err)
	}

	applied, err = d.MarkBookingRefunded(ctx, "bk2", 51500, models.RefundReasonCustomer, refundedAt)
	if err != nil {
		t.Fatalf("Refund write errored: %v", err)
	}
	if !applied {
		t.Fatal("Expected refund of a paid booking to apply")
	}

	booking, err := d.GetBookingByID(ctx, "bk2")
	if err != nil {
		t.Fatalf("Failed to retrieve booking: %v", err)
	}
	if booking.PaymentStatus != models.PaymentRefunded {
		t.Errorf("Expected status refunded, got %s", booking.PaymentStatus)
	}
	if booking.BookingStatus != models.BookingCancelled {
		t.Errorf("Expected booking cancelled, got %s", booking.BookingStatus)
	}
	if booking.RefundAmountCents != 51500 {
		t.Errorf("Expected refund amount 51500, got %d", booking.RefundAmountCents)
	}
}

func TestApplyRefundEventIgnoresPriorState(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	insertBooking(t, d, testBooking("bk3"))

	refundedAt := time.Now().Round(time.Second)

	// The provider-confirmed refund lands even when the paid transition
	// was never observed locally.
	applied, err := d.ApplyRefundEvent(ctx, "bk3", refundedAt)
	if err != nil {
		t.Fatalf("Refund event write errored: %v", err)
	}
	if !applied {
		t.Fatal("Expected refund event to apply to a pending booking")
	}

	applied, err = d.ApplyRefundEvent(ctx, "bk3", refundedAt)
	if err != nil {
		t.Fatalf("Second refund event write errored: %v", err)
	}
	if applied {
		t.Error("Expected repeated refund event to be a no-op")
	}
}

func TestGetBookingByIntentID(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	insertBooking(t, d, testBooking("bk4"))

	booking, err := d.GetBookingByIntentID(ctx, "ord-bk4")
	if err != nil {
		t.Fatalf("Failed to resolve booking by intent id: %v", err)
	}
	if booking.ID != "bk4" {
		t.Errorf("Expected booking bk4, got %s", booking.ID)
	}

	if _, err := d.GetBookingByIntentID(ctx, "ord-nope"); err != db.ErrBookingNotFound {
		t.Errorf("Expected ErrBookingNotFound, got %v", err)
	}
}

func TestSetBookingOrderSnapshot(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	booking := testBooking("bk5")
	booking.PaymentIntentID = ""
	booking.SubtotalCents = 0
	booking.GatewayFeeCents = 0
	booking.TotalCents = 0
	insertBooking(t, d, booking)

	breakdown := &models.PriceBreakdown{
		Gateway:         models.GatewayWallet,
		SubtotalCents:   50000,
		GatewayFeeCents: 1846,
		TotalCents:      53346,
	}

	if err := d.SetBookingOrder(ctx, "bk5", models.GatewayWallet, "ord_new", breakdown); err != nil {
		t.Fatalf("Failed to set booking order: %v", err)
	}

	updated, err := d.GetBookingByID(ctx, "bk5")
	if err != nil {
		t.Fatalf("Failed to retrieve booking: %v", err)
	}
	if updated.PaymentIntentID != "ord_new" {
		t.Errorf("Expected intent ord_new, got %s", updated.PaymentIntentID)
	}
	if updated.TotalCents != 53346 {
		t.Errorf("Expected total 53346, got %d", updated.TotalCents)
	}

	if err := d.SetBookingOrder(ctx, "missing", models.GatewayWallet, "ord_x", breakdown); err != db.ErrBookingNotFound {
		t.Errorf("Expected ErrBookingNotFound for missing booking, got %v", err)
	}
}
