package settlement_test

import (
	"context"
	"net/http"
	"testing"

	"ms-settlement/internal/models"
	"ms-settlement/internal/settlement"
	"ms-settlement/internal/settlement/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func webhookHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return h
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGw := new(MockGateway)
	mockKafka := new(MockPublisher)
	svc := newTestService(mockDB, mockGw, mockKafka)

	body := []byte(`{"id":"evt_1"}`)
	mockGw.On("VerifyWebhook", mock.Anything, mock.Anything, body).Return(false, nil)

	err := svc.HandleWebhook(context.Background(), models.GatewayWallet, webhookHeader(), body)

	var whErr *settlement.WebhookError
	assert.ErrorAs(t, err, &whErr)
	assert.Equal(t, http.StatusBadRequest, whErr.StatusCode)

	// An unverified payload must never be parsed or persisted.
	mockGw.AssertNotCalled(t, "ParseWebhook", mock.Anything)
	mockDB.AssertNotCalled(t, "InsertPaymentEvent", mock.Anything, mock.Anything)
}

func TestWebhookUnknownProvider(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGw := new(MockGateway)
	mockKafka := new(MockPublisher)
	svc := newTestService(mockDB, mockGw, mockKafka)

	err := svc.HandleWebhook(context.Background(), "fax", webhookHeader(), []byte(`{}`))

	var whErr *settlement.WebhookError
	assert.ErrorAs(t, err, &whErr)
	assert.Equal(t, http.StatusBadRequest, whErr.StatusCode)
}

func TestWebhookCaptureCompletedAppliesOnce(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGw := new(MockGateway)
	mockKafka := new(MockPublisher)
	svc := newTestService(mockDB, mockGw, mockKafka)

	booking := pendingBooking()
	body := []byte(`{"id":"evt_1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`)
	event := &models.WebhookEvent{
		EventID:   "evt_1",
		EventType: models.EventCaptureCompleted,
		BookingID: booking.ID,
		CaptureID: "cap_100",
		RawType:   "PAYMENT.CAPTURE.COMPLETED",
	}

	mockGw.On("VerifyWebhook", mock.Anything, mock.Anything, body).Return(true, nil)
	mockGw.On("ParseWebhook", body).Return(event, nil)
	mockDB.On("GetBookingByID", mock.Anything, booking.ID).Return(booking, nil)
	mockDB.On("InsertPaymentEvent", mock.Anything, mock.MatchedBy(func(e *models.PaymentEvent) bool {
		// The ledger key is the capture id, not the provider event id, so
		// a direct capture of the same payment dedups against this row.
		return e.EventID == "capture:cap_100" && e.Provider == models.GatewayWallet
	})).Return(true, nil)
	mockDB.On("MarkBookingPaid", mock.Anything, booking.ID, "cap_100", mock.Anything).Return(true, nil)
	mockKafka.On("Publish", "settlement.payment.captured", booking.ID, mock.Anything).Return(nil)

	err := svc.HandleWebhook(context.Background(), models.GatewayWallet, webhookHeader(), body)

	assert.NoError(t, err)
	mockDB.AssertExpectations(t)
	mockKafka.AssertExpectations(t)
}

func TestWebhookReplayIsAckedWithoutRewrite(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGw := new(MockGateway)
	mockKafka := new(MockPublisher)
	svc := newTestService(mockDB, mockGw, mockKafka)

	booking := paidBooking()
	body := []byte(`{"id":"evt_1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`)
	event := &models.WebhookEvent{
		EventID:   "evt_1",
		EventType: models.EventCaptureCompleted,
		BookingID: booking.ID,
		CaptureID: "cap_100",
	}

	mockGw.On("VerifyWebhook", mock.Anything, mock.Anything, body).Return(true, nil)
	mockGw.On("ParseWebhook", body).Return(event, nil)
	mockDB.On("GetBookingByID", mock.Anything, booking.ID).Return(booking, nil)
	mockDB.On("InsertPaymentEvent", mock.Anything, mock.Anything).Return(false, nil)

	err := svc.HandleWebhook(context.Background(), models.GatewayWallet, webhookHeader(), body)

	assert.NoError(t, err)
	mockDB.AssertNotCalled(t, "MarkBookingPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockKafka.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookUnknownEventTypeRecordedAndAcked(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGw := new(MockGateway)
	mockKafka := new(MockPublisher)
	svc := newTestService(mockDB, mockGw, mockKafka)

	body := []byte(`{"id":"evt_9","event_type":"CUSTOMER.DISPUTE.CREATED"}`)
	mockGw.On("VerifyWebhook", mock.Anything, mock.Anything, body).Return(true, nil)
	mockGw.On("ParseWebhook", body).Return(&models.WebhookEvent{
		EventID:   "evt_9",
		EventType: models.EventUnknown,
		RawType:   "CUSTOMER.DISPUTE.CREATED",
	}, nil)
	// Unhandled types still leave an audit row with the raw payload.
	mockDB.On("InsertPaymentEvent", mock.Anything, mock.MatchedBy(func(e *models.PaymentEvent) bool {
		return e.EventID == "evt_9" && e.EventType == models.EventUnknown && string(e.Payload) == string(body)
	})).Return(true, nil)

	err := svc.HandleWebhook(context.Background(), models.GatewayWallet, webhookHeader(), body)

	assert.NoError(t, err)
	mockDB.AssertExpectations(t)
	mockDB.AssertNotCalled(t, "MarkBookingPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockKafka.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookRefundWithoutPriorPaid(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGw := new(MockGateway)
	mockKafka := new(MockPublisher)
	svc := newTestService(mockDB, mockGw, mockKafka)

	// Provider-confirmed refunds apply even if the paid webhook was lost.
	booking := pendingBooking()
	body := []byte(`{"id":"evt_5","event_type":"PAYMENT.CAPTURE.REFUNDED"}`)
	event := &models.WebhookEvent{
		EventID:   "evt_5",
		EventType: models.EventRefundCompleted,
		BookingID: booking.ID,
		CaptureID: "cap_100",
	}

	mockGw.On("VerifyWebhook", mock.Anything, mock.Anything, body).Return(true, nil)
	mockGw.On("ParseWebhook", body).Return(event, nil)
	mockDB.On("GetBookingByID", mock.Anything, booking.ID).Return(booking, nil)
	mockDB.On("InsertPaymentEvent", mock.Anything, mock.Anything).Return(true, nil)
	mockDB.On("ApplyRefundEvent", mock.Anything, booking.ID, mock.Anything).Return(true, nil)
	mockKafka.On("Publish", "settlement.payment.refunded", booking.ID, mock.Anything).Return(nil)

	err := svc.HandleWebhook(context.Background(), models.GatewayWallet, webhookHeader(), body)

	assert.NoError(t, err)
	mockDB.AssertExpectations(t)
}

func TestWebhookResolvesBookingByOrderID(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGw := new(MockGateway)
	mockKafka := new(MockPublisher)
	svc := newTestService(mockDB, mockGw, mockKafka)

	booking := pendingBooking()
	body := []byte(`{"id":"evt_2","type":"payment_intent.succeeded"}`)
	event := &models.WebhookEvent{
		EventID:   "evt_2",
		EventType: models.EventCaptureCompleted,
		OrderID:   booking.PaymentIntentID,
		CaptureID: "ch_1",
	}

	mockGw.On("VerifyWebhook", mock.Anything, mock.Anything, body).Return(true, nil)
	mockGw.On("ParseWebhook", body).Return(event, nil)
	mockDB.On("GetBookingByIntentID", mock.Anything, booking.PaymentIntentID).Return(booking, nil)
	mockDB.On("InsertPaymentEvent", mock.Anything, mock.Anything).Return(true, nil)
	mockDB.On("MarkBookingPaid", mock.Anything, booking.ID, "ch_1", mock.Anything).Return(true, nil)
	mockKafka.On("Publish", "settlement.payment.captured", booking.ID, mock.Anything).Return(nil)

	err := svc.HandleWebhook(context.Background(), models.GatewayWallet, webhookHeader(), body)

	assert.NoError(t, err)
	mockDB.AssertExpectations(t)
}

func TestWebhookUnmatchedBookingRecordedAndAcked(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGw := new(MockGateway)
	mockKafka := new(MockPublisher)
	svc := newTestService(mockDB, mockGw, mockKafka)

	body := []byte(`{"id":"evt_3"}`)
	event := &models.WebhookEvent{
		EventID:   "evt_3",
		EventType: models.EventCaptureCompleted,
		BookingID: "bk_unknown",
		OrderID:   "ord_unknown",
		CaptureID: "cap_unknown",
	}

	mockGw.On("VerifyWebhook", mock.Anything, mock.Anything, body).Return(true, nil)
	mockGw.On("ParseWebhook", body).Return(event, nil)
	mockDB.On("GetBookingByID", mock.Anything, "bk_unknown").Return(nil, db.ErrBookingNotFound)
	mockDB.On("GetBookingByIntentID", mock.Anything, "ord_unknown").Return(nil, db.ErrBookingNotFound)
	// The notification is still durably recorded, with no booking reference.
	mockDB.On("InsertPaymentEvent", mock.Anything, mock.MatchedBy(func(e *models.PaymentEvent) bool {
		return e.EventID == "capture:cap_unknown" && e.BookingID == "" && string(e.Payload) == string(body)
	})).Return(true, nil)

	err := svc.HandleWebhook(context.Background(), models.GatewayWallet, webhookHeader(), body)

	assert.NoError(t, err)
	mockDB.AssertExpectations(t)
	mockDB.AssertNotCalled(t, "MarkBookingPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockKafka.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}
