package settlement

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-settlement/internal/models"
	"ms-settlement/internal/settlement/db"
)

// WebhookError carries both the status the provider should see and the
// internal detail for the logs. Providers retry on 5xx, so the status code
// choice decides whether a notification comes back.
type WebhookError struct {
	Category      string
	StatusCode    int
	PublicMessage string
	Internal      error
}

func (e *WebhookError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Category, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.PublicMessage)
}

func (e *WebhookError) Unwrap() error {
	return e.Internal
}

func webhookBadRequest(category, message string) *WebhookError {
	return &WebhookError{Category: category, StatusCode: http.StatusBadRequest, PublicMessage: message}
}

func webhookServerError(category string, err error) *WebhookError {
	return &WebhookError{Category: category, StatusCode: http.StatusInternalServerError, PublicMessage: "processing failed", Internal: err}
}

// HandleWebhook is the reconciliation entry point for both providers:
// verify the signature, normalize the payload, gate on the idempotency
// ledger, then apply the state transition. Webhooks are the source of
// truth, so transitions here do not require a particular prior state
// beyond the conditional guards in the store.
func (s *Service) HandleWebhook(ctx context.Context, provider string, header http.Header, body []byte) error {
	gw, ok := s.Gateways[provider]
	if !ok {
		return webhookBadRequest("UNKNOWN_PROVIDER", fmt.Sprintf("no gateway registered for %q", provider))
	}

	valid, err := gw.VerifyWebhook(ctx, header, body)
	if err != nil {
		return webhookServerError("VERIFICATION", err)
	}
	if !valid {
		s.Logger.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Rejected unverifiable %s webhook", provider))
		return webhookBadRequest("INVALID_SIGNATURE", "webhook signature verification failed")
	}

	event, err := gw.ParseWebhook(body)
	if err != nil {
		return webhookBadRequest("MALFORMED_PAYLOAD", err.Error())
	}

	// Every verified notification gets a durable ledger row, whether or
	// not a booking can be resolved from the payload. The booking id is
	// best-effort; the raw payload is retained for audit and replay.
	booking, err := s.resolveWebhookBooking(ctx, event)
	if err != nil {
		return err
	}

	bookingID := ""
	if booking != nil {
		bookingID = booking.ID
	}

	inserted, err := s.DB.InsertPaymentEvent(ctx, &models.PaymentEvent{
		Provider:  provider,
		EventID:   s.ledgerKey(event),
		EventType: event.EventType,
		BookingID: bookingID,
		Payload:   body,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return webhookServerError("LEDGER", err)
	}
	if !inserted {
		s.Logger.LogWebhook(provider, event.RawType, fmt.Sprintf(
			"Replay of event %s, already settled", event.EventID))
		return nil
	}

	// Unrecognized event types are recorded, acknowledged and never retried.
	if event.EventType == models.EventUnknown {
		s.Logger.LogWebhook(provider, event.RawType, "Recorded unhandled event type, no state change")
		return nil
	}

	if booking == nil {
		s.Logger.LogWebhook(provider, event.RawType, fmt.Sprintf(
			"No booking matches event %s, recorded without action", event.EventID))
		return nil
	}

	if err := s.dispatchWebhook(ctx, provider, event, booking); err != nil {
		// The ledger row is in; a retry would dedup, so flag for manual
		// reconciliation rather than pretending a retry fixes it.
		s.Logger.Error("WEBHOOK", fmt.Sprintf(
			"RECONCILE: event %s recorded for booking %s but state write failed: %v", event.EventID, booking.ID, err))
		return webhookServerError("DISPATCH", err)
	}

	s.Logger.LogWebhook(provider, event.RawType, fmt.Sprintf("Applied event %s to booking %s", event.EventID, booking.ID))
	return nil
}

// ledgerKey picks the dedup key for an event. Capture completions key on
// the capture id so the direct capture path and the webhook collapse to
// one ledger row.
func (s *Service) ledgerKey(event *models.WebhookEvent) string {
	if event.EventType == models.EventCaptureCompleted && event.CaptureID != "" {
		return SyntheticCaptureEventID(event.CaptureID)
	}
	return event.EventID
}

// resolveWebhookBooking finds the booking an event refers to, preferring
// the explicit booking reference and falling back to the order id lookup.
// Returns (nil, nil) when nothing matches.
func (s *Service) resolveWebhookBooking(ctx context.Context, event *models.WebhookEvent) (*models.Booking, error) {
	if event.BookingID != "" {
		booking, err := s.DB.GetBookingByID(ctx, event.BookingID)
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, db.ErrBookingNotFound) {
			return nil, webhookServerError("LOOKUP", err)
		}
	}

	if event.OrderID != "" {
		booking, err := s.DB.GetBookingByIntentID(ctx, event.OrderID)
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, db.ErrBookingNotFound) {
			return nil, webhookServerError("LOOKUP", err)
		}
	}

	return nil, nil
}

func (s *Service) dispatchWebhook(ctx context.Context, provider string, event *models.WebhookEvent, booking *models.Booking) error {
	switch event.EventType {
	case models.EventCaptureCompleted:
		captureID := event.CaptureID
		if captureID == "" {
			captureID = event.OrderID
		}
		won, err := s.DB.MarkBookingPaid(ctx, booking.ID, captureID, s.now().UTC())
		if err != nil {
			return err
		}
		if won {
			s.publishEvent(s.Topics.PaymentCaptured, booking.ID, provider, captureID, models.EventCaptureCompleted)
		}
		return nil

	case models.EventCaptureDenied:
		if err := s.DB.MarkBookingFailed(ctx, booking.ID); err != nil {
			return err
		}
		s.publishEvent(s.Topics.PaymentFailed, booking.ID, provider, event.EventID, models.EventCaptureDenied)
		return nil

	case models.EventCaptureReversed, models.EventRefundCompleted:
		applied, err := s.DB.ApplyRefundEvent(ctx, booking.ID, s.now().UTC())
		if err != nil {
			return err
		}
		if applied {
			s.publishEvent(s.Topics.PaymentRefunded, booking.ID, provider, event.EventID, event.EventType)
		}
		return nil

	default:
		return nil
	}
}
