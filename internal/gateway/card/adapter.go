package card

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ms-settlement/internal/config"
	"ms-settlement/internal/gateway"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrClientInitFailed = errors.New("failed to initialize card gateway client")

// Adapter implements gateway.PaymentGateway on top of the Stripe SDK.
// Captures run against the payment intent created earlier in the booking
// flow; webhook verification uses the shared-secret HMAC signature.
type Adapter struct {
	client        *client.API
	webhookSecret string
	currency      string
	log           *logger.Logger
}

func NewAdapter(cfg config.CardConfig, currency string, log *logger.Logger) (*Adapter, error) {
	if cfg.SecretKey == "" {
		log.Error("GATEWAY", "Card gateway secret key not configured")
		return nil, ErrClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)

	log.Info("GATEWAY", "Card gateway client initialized")
	return &Adapter{
		client:        sc,
		webhookSecret: cfg.WebhookSecret,
		currency:      strings.ToLower(currency),
		log:           log,
	}, nil
}

func (a *Adapter) Provider() string {
	return models.GatewayCard
}

// CreateOrder creates a manual-capture payment intent carrying the booking
// id in metadata so webhooks resolve back to the booking.
func (a *Adapter) CreateOrder(ctx context.Context, req gateway.OrderRequest) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(a.currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("booking_id", req.BookingID)
	params.AddMetadata("booking_code", req.BookingCode)

	pi, err := a.client.PaymentIntents.New(params)
	if err != nil {
		return "", a.mapError(err)
	}

	a.log.LogGateway(a.Provider(), "CREATE_ORDER", fmt.Sprintf("Created payment intent %s for booking %s", pi.ID, req.BookingID))
	return pi.ID, nil
}

// CaptureOrder captures an authorized payment intent. The idempotency key
// is forwarded to the SDK so retried captures collapse provider-side.
func (a *Adapter) CaptureOrder(ctx context.Context, orderID, idempotencyKey string) (*gateway.CaptureResult, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := a.client.PaymentIntents.Capture(orderID, params)
	if err != nil {
		return nil, a.mapCaptureError(ctx, orderID, err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("%w: unexpected intent status %q", gateway.ErrUpstream, pi.Status)
	}

	captureID := pi.ID
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		captureID = pi.LatestCharge.ID
	}

	a.log.LogGateway(a.Provider(), "CAPTURE", fmt.Sprintf("Captured intent %s as %s", orderID, captureID))
	return &gateway.CaptureResult{Status: "COMPLETED", CaptureID: captureID}, nil
}

// Refund refunds a capture. Stripe takes integer minor units directly.
func (a *Adapter) Refund(ctx context.Context, captureRef string, amountCents int64) (*gateway.RefundResult, error) {
	params := &stripe.RefundParams{
		Amount: stripe.Int64(amountCents),
	}
	params.Context = ctx
	if strings.HasPrefix(captureRef, "pi_") {
		params.PaymentIntent = stripe.String(captureRef)
	} else {
		params.Charge = stripe.String(captureRef)
	}

	refund, err := a.client.Refunds.New(params)
	if err != nil {
		return nil, a.mapError(err)
	}

	a.log.LogGateway(a.Provider(), "REFUND", fmt.Sprintf("Refunded %s as %s", captureRef, refund.ID))
	return &gateway.RefundResult{RefundID: refund.ID, Status: string(refund.Status)}, nil
}

// VerifyWebhook checks the HMAC signature header against the shared secret.
func (a *Adapter) VerifyWebhook(_ context.Context, header http.Header, body []byte) (bool, error) {
	if a.webhookSecret == "" {
		return false, fmt.Errorf("card webhook secret not configured")
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	if _, err := webhook.ConstructEventWithOptions(body, header.Get("Stripe-Signature"), a.webhookSecret, opts); err != nil {
		a.log.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Card webhook signature rejected: %v", err))
		return false, nil
	}
	return true, nil
}

// ParseWebhook normalizes a Stripe event. The booking id travels in the
// intent/charge metadata set at order creation.
func (a *Adapter) ParseWebhook(body []byte) (*models.WebhookEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decoding card webhook payload: %w", err)
	}
	if event.ID == "" {
		return nil, fmt.Errorf("card webhook payload missing event id")
	}

	normalized := &models.WebhookEvent{
		EventID: event.ID,
		RawType: string(event.Type),
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decoding payment intent from event %s: %w", event.ID, err)
		}
		normalized.BookingID = pi.Metadata["booking_id"]
		normalized.OrderID = pi.ID
		normalized.CaptureID = pi.ID
		if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
			normalized.CaptureID = pi.LatestCharge.ID
		}
		if event.Type == "payment_intent.succeeded" {
			normalized.EventType = models.EventCaptureCompleted
		} else {
			normalized.EventType = models.EventCaptureDenied
		}
	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, fmt.Errorf("decoding charge from event %s: %w", event.ID, err)
		}
		normalized.BookingID = charge.Metadata["booking_id"]
		normalized.CaptureID = charge.ID
		normalized.EventType = models.EventRefundCompleted
	case "charge.dispute.funds_withdrawn":
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return nil, fmt.Errorf("decoding dispute from event %s: %w", event.ID, err)
		}
		if dispute.Charge != nil {
			normalized.CaptureID = dispute.Charge.ID
		}
		normalized.EventType = models.EventCaptureReversed
	default:
		normalized.EventType = models.EventUnknown
	}

	return normalized, nil
}

// mapCaptureError resolves the ambiguous "unexpected state" capture error
// by re-reading the intent: an already-succeeded intent means the other
// settlement channel won the race, anything pre-approval means the client
// captured too early.
func (a *Adapter) mapCaptureError(ctx context.Context, orderID string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %v", gateway.ErrUpstream, err)
	}

	switch stripeErr.Code {
	case stripe.ErrorCodeCardDeclined:
		return gateway.ErrInstrumentDeclined
	case stripe.ErrorCodeResourceMissing:
		return gateway.ErrOrderNotFound
	case stripe.ErrorCodePaymentIntentUnexpectedState:
		getParams := &stripe.PaymentIntentParams{}
		getParams.Context = ctx
		pi, getErr := a.client.PaymentIntents.Get(orderID, getParams)
		if getErr == nil {
			switch pi.Status {
			case stripe.PaymentIntentStatusSucceeded:
				return gateway.ErrAlreadyCaptured
			case stripe.PaymentIntentStatusRequiresPaymentMethod,
				stripe.PaymentIntentStatusRequiresConfirmation,
				stripe.PaymentIntentStatusRequiresAction:
				return gateway.ErrOrderNotApproved
			}
		}
		return fmt.Errorf("%w: %v", gateway.ErrUpstream, err)
	default:
		return a.mapError(err)
	}
}

func (a *Adapter) mapError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Code {
		case stripe.ErrorCodeCardDeclined:
			return gateway.ErrInstrumentDeclined
		case stripe.ErrorCodeResourceMissing:
			return gateway.ErrOrderNotFound
		}
		a.log.Error("GATEWAY", fmt.Sprintf("Card gateway error %s: %s", stripeErr.Code, stripeErr.Msg))
	}
	return fmt.Errorf("%w: %v", gateway.ErrUpstream, err)
}
