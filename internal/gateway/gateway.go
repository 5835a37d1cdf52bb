package gateway

import (
	"context"
	"errors"
	"net/http"

	"ms-settlement/internal/models"
)

// Provider-side failures normalized to a single taxonomy so callers never
// see raw provider error shapes.
var (
	ErrOrderNotFound      = errors.New("gateway order not found")
	ErrOrderNotApproved   = errors.New("gateway order not approved by payer")
	ErrInstrumentDeclined = errors.New("funding instrument declined")
	ErrAlreadyCaptured    = errors.New("gateway order already captured")
	ErrUpstream           = errors.New("upstream gateway error")
)

// OrderRequest carries what a provider needs to create an order. The
// booking id travels as the provider-side reference so webhooks can be
// resolved back to a booking.
type OrderRequest struct {
	BookingID   string
	BookingCode string
	AmountCents int64
	Currency    string
}

type CaptureResult struct {
	Status    string
	CaptureID string
}

type RefundResult struct {
	RefundID string
	Status   string
}

// PaymentGateway abstracts one payment provider. Implementations confine
// side effects to network calls; no local state mutation.
type PaymentGateway interface {
	Provider() string
	CreateOrder(ctx context.Context, req OrderRequest) (string, error)
	CaptureOrder(ctx context.Context, orderID, idempotencyKey string) (*CaptureResult, error)
	Refund(ctx context.Context, captureRef string, amountCents int64) (*RefundResult, error)
	VerifyWebhook(ctx context.Context, header http.Header, body []byte) (bool, error)
	ParseWebhook(body []byte) (*models.WebhookEvent, error)
}
