package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-settlement/internal/config"
	"ms-settlement/internal/gateway"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/pricing"
	"ms-settlement/internal/refund"
	"ms-settlement/internal/settlement/db"

	"github.com/google/uuid"
)

// captureKeyNamespace is the fixed UUIDv5 namespace for capture idempotency
// keys: the key is a pure function of (bookingID, orderID), never of time,
// so retried client calls produce the same provider-side key.
var captureKeyNamespace = uuid.MustParse("9f2c1a44-7b1e-4c6d-9a31-5b8f0d6e2a17")

type DBLayer interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByIntentID(ctx context.Context, intentID string) (*models.Booking, error)
	GetPassengersByBooking(ctx context.Context, bookingID string) ([]models.Passenger, error)
	SetBookingOrder(ctx context.Context, bookingID, gateway, intentID string, breakdown *models.PriceBreakdown) error
	MarkBookingPaid(ctx context.Context, bookingID, captureID string, paidAt time.Time) (bool, error)
	MarkBookingFailed(ctx context.Context, bookingID string) error
	MarkBookingRefunded(ctx context.Context, bookingID string, amountCents int64, reason string, refundedAt time.Time) (bool, error)
	ApplyRefundEvent(ctx context.Context, bookingID string, refundedAt time.Time) (bool, error)
	InsertPaymentEvent(ctx context.Context, event *models.PaymentEvent) (bool, error)
}

type EventPublisher interface {
	Publish(topic string, key string, value []byte) error
}

// Service drives checkout, webhook reconciliation and refunds. All
// coordination between the direct capture path and the webhook path goes
// through the database's conditional updates and the payment-event ledger;
// there are no in-process locks.
type Service struct {
	DB           DBLayer
	Gateways     map[string]gateway.PaymentGateway
	Publisher    EventPublisher
	Pricing      *pricing.Engine
	RefundPolicy refund.Policy
	Topics       config.TopicConfig
	Logger       *logger.Logger

	now func() time.Time
}

func NewService(dbLayer DBLayer, gateways map[string]gateway.PaymentGateway, publisher EventPublisher,
	engine *pricing.Engine, policy refund.Policy, topics config.TopicConfig, log *logger.Logger) *Service {
	return &Service{
		DB:           dbLayer,
		Gateways:     gateways,
		Publisher:    publisher,
		Pricing:      engine,
		RefundPolicy: policy,
		Topics:       topics,
		Logger:       log,
		now:          time.Now,
	}
}

// CaptureIdempotencyKey derives the stable provider-side request key for a
// capture attempt.
func CaptureIdempotencyKey(bookingID, orderID string) string {
	return uuid.NewSHA1(captureKeyNamespace, []byte(bookingID+"|"+orderID)).String()
}

// SyntheticCaptureEventID is the ledger key shared by the direct capture
// path and the provider's capture-completed webhook for the same capture.
func SyntheticCaptureEventID(captureID string) string {
	return "capture:" + captureID
}

// ---------------- PREVIEW ----------------

// Preview recomputes the authoritative price breakdown for one gateway.
// Client-supplied amounts are never trusted.
func (s *Service) Preview(ctx context.Context, callerID, bookingID, gatewayName string) (*models.PreviewResponse, error) {
	booking, err := s.authorizeBooking(ctx, callerID, bookingID)
	if err != nil {
		return nil, err
	}

	passengers, err := s.DB.GetPassengersByBooking(ctx, booking.ID)
	if err != nil {
		return nil, errInternal(err)
	}

	breakdown, err := s.Pricing.ComputeBreakdown(passengers, gatewayName)
	if errors.Is(err, pricing.ErrUnpriceable) {
		return nil, errValidation("booking has no passenger fare data to price")
	}
	if errors.Is(err, pricing.ErrUnknownGateway) {
		return nil, errValidation(fmt.Sprintf("unknown gateway %q", gatewayName))
	}
	if err != nil {
		return nil, errInternal(err)
	}

	return &models.PreviewResponse{
		Gateway:    gatewayName,
		Breakdown:  breakdown,
		Passengers: len(passengers),
		BasePrice:  breakdown.Subtotal,
	}, nil
}

// ---------------- CHECKOUT ----------------

// CreateWalletOrder prices the booking against the wallet schedule, creates
// the provider order and persists the pricing snapshot plus order id.
func (s *Service) CreateWalletOrder(ctx context.Context, callerID, bookingID string) (*models.CreateOrderResponse, error) {
	booking, err := s.authorizeBooking(ctx, callerID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.PaymentStatus == models.PaymentPaid {
		return nil, errAlreadyPaid()
	}

	passengers, err := s.DB.GetPassengersByBooking(ctx, booking.ID)
	if err != nil {
		return nil, errInternal(err)
	}

	breakdown, err := s.Pricing.ComputeBreakdown(passengers, models.GatewayWallet)
	if errors.Is(err, pricing.ErrUnpriceable) {
		return nil, errValidation("booking has no passenger fare data to price")
	}
	if err != nil {
		return nil, errInternal(err)
	}

	gw, ok := s.Gateways[models.GatewayWallet]
	if !ok {
		return nil, errInternal(fmt.Errorf("wallet gateway not configured"))
	}

	orderID, err := gw.CreateOrder(ctx, gateway.OrderRequest{
		BookingID:   booking.ID,
		BookingCode: booking.BookingCode,
		AmountCents: breakdown.TotalCents,
		Currency:    breakdown.Currency,
	})
	if err != nil {
		return nil, errUpstream(err)
	}

	if err := s.DB.SetBookingOrder(ctx, booking.ID, models.GatewayWallet, orderID, breakdown); err != nil {
		return nil, errInternal(err)
	}

	s.Logger.LogPayment("CREATE_ORDER", booking.ID, fmt.Sprintf("Wallet order %s created for %s", orderID, breakdown.Total))
	return &models.CreateOrderResponse{OrderID: orderID}, nil
}

// CaptureOrder is the synchronous settlement path. Ownership and state
// guards run before any gateway call; the capture itself uses a
// deterministic idempotency key; the commit is a conditional update plus a
// synthetic ledger row so the webhook path recognizes the capture as
// already handled.
func (s *Service) CaptureOrder(ctx context.Context, callerID, bookingID, orderID string) (*models.CaptureOrderResponse, error) {
	if orderID == "" {
		return nil, errValidation("order_id is required")
	}

	booking, err := s.authorizeBooking(ctx, callerID, bookingID)
	if err != nil {
		return nil, err
	}

	// Guard: no gateway call once the booking is paid.
	if booking.PaymentStatus == models.PaymentPaid {
		return nil, errAlreadyPaid()
	}

	// Cross-check the supplied order against the one recorded at creation.
	if booking.PaymentIntentID != "" && booking.PaymentIntentID != orderID {
		s.Logger.LogSecurity("ORDER_MISMATCH", fmt.Sprintf("Booking %s recorded order %s but capture asked for %s",
			booking.ID, booking.PaymentIntentID, orderID))
		return nil, errOrderMismatch()
	}

	gw, err := s.gatewayFor(booking)
	if err != nil {
		return nil, err
	}

	key := CaptureIdempotencyKey(booking.ID, orderID)
	result, err := gw.CaptureOrder(ctx, orderID, key)
	if err != nil {
		return s.handleCaptureError(ctx, booking, orderID, gw, err)
	}

	s.commitCapture(ctx, booking, gw.Provider(), result.CaptureID)

	return &models.CaptureOrderResponse{
		Status:    result.Status,
		OrderID:   orderID,
		BookingID: booking.ID,
	}, nil
}

// handleCaptureError maps normalized gateway failures into the caller
// taxonomy. The already-captured conflict is the race case: the webhook
// path may have settled the booking between our guard and the capture.
func (s *Service) handleCaptureError(ctx context.Context, booking *models.Booking, orderID string,
	gw gateway.PaymentGateway, err error) (*models.CaptureOrderResponse, error) {
	switch {
	case errors.Is(err, gateway.ErrAlreadyCaptured):
		fresh, readErr := s.DB.GetBookingByID(ctx, booking.ID)
		if readErr == nil && fresh.PaymentStatus == models.PaymentPaid {
			s.Logger.LogPayment("CAPTURE", booking.ID, "Capture already settled by the webhook path")
			return &models.CaptureOrderResponse{AlreadyCaptured: true, OrderID: orderID, BookingID: booking.ID}, nil
		}
		// The provider has the money but neither path committed yet;
		// commit now with the order id as the capture reference.
		s.commitCapture(ctx, booking, gw.Provider(), orderID)
		return &models.CaptureOrderResponse{AlreadyCaptured: true, OrderID: orderID, BookingID: booking.ID}, nil
	case errors.Is(err, gateway.ErrInstrumentDeclined):
		return nil, errInstrumentDeclined()
	case errors.Is(err, gateway.ErrOrderNotApproved):
		return nil, errOrderNotApproved()
	case errors.Is(err, gateway.ErrOrderNotFound):
		return nil, errOrderNotFound()
	default:
		s.Logger.Error("PAYMENT", fmt.Sprintf("Capture failed for booking %s order %s: %v", booking.ID, orderID, err))
		return nil, errCaptureFailed(err)
	}
}

// commitCapture writes the paid state and the synthetic ledger row. A DB
// failure here is non-fatal to the caller: the money already moved and the
// webhook path is the reconciliation fallback, so log and continue.
func (s *Service) commitCapture(ctx context.Context, booking *models.Booking, provider, captureID string) {
	paidAt := s.now().UTC()

	won, err := s.DB.MarkBookingPaid(ctx, booking.ID, captureID, paidAt)
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf(
			"RECONCILE: booking %s captured as %s on %s but paid-state write failed: %v",
			booking.ID, captureID, provider, err))
		return
	}
	if !won {
		s.Logger.LogPayment("CAPTURE", booking.ID, "Paid state already written by the webhook path")
	}

	event := &models.PaymentEvent{
		Provider:  provider,
		EventID:   SyntheticCaptureEventID(captureID),
		EventType: models.EventCaptureCompleted,
		BookingID: booking.ID,
		Payload:   mustJSON(map[string]string{"source": "capture", "capture_id": captureID}),
		CreatedAt: paidAt,
	}
	if _, err := s.DB.InsertPaymentEvent(ctx, event); err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf(
			"RECONCILE: booking %s capture %s settled but ledger write failed: %v", booking.ID, captureID, err))
	}

	// Only the winning writer publishes; the losing channel would emit a
	// duplicate settlement event for the same capture.
	if won {
		s.publishEvent(s.Topics.PaymentCaptured, booking.ID, provider, captureID, models.EventCaptureCompleted)
	}
}

// ---------------- REFUNDS ----------------

// Refund computes the refundable amount, calls the gateway with the exact
// integer minor-unit value and transitions the booking to refunded.
func (s *Service) Refund(ctx context.Context, bookingID, reason string) (*models.RefundResponse, error) {
	if reason != models.RefundReasonCustomer && reason != models.RefundReasonFlightCancelled {
		return nil, errValidation(fmt.Sprintf("unknown cancellation reason %q", reason))
	}

	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if errors.Is(err, db.ErrBookingNotFound) {
		return nil, errNotFound("booking")
	}
	if err != nil {
		return nil, errInternal(err)
	}

	if booking.PaymentStatus != models.PaymentPaid {
		return nil, errNotRefundable(fmt.Sprintf("booking is %s, only paid bookings can be refunded", booking.PaymentStatus))
	}

	elapsed := s.now().Sub(booking.CreatedAt)
	airlineCancel := reason == models.RefundReasonFlightCancelled

	calc, err := s.RefundPolicy.Calculate(booking.TotalCents, booking.GatewayFeeCents, elapsed, airlineCancel)
	if errors.Is(err, refund.ErrNothingRefundable) {
		return nil, errNotRefundable("nothing refundable after the gateway fee")
	}
	if err != nil {
		return nil, errInternal(err)
	}

	gw, err := s.gatewayFor(booking)
	if err != nil {
		return nil, err
	}

	captureRef := booking.CaptureID
	if captureRef == "" {
		captureRef = booking.PaymentIntentID
	}

	result, err := gw.Refund(ctx, captureRef, calc.AmountCents)
	if err != nil {
		return nil, errUpstream(err)
	}

	refundedAt := s.now().UTC()
	if _, err := s.DB.MarkBookingRefunded(ctx, booking.ID, calc.AmountCents, reason, refundedAt); err != nil {
		// Same policy as capture commit: the provider refund happened,
		// the refund webhook is the fallback.
		s.Logger.Error("PAYMENT", fmt.Sprintf(
			"RECONCILE: booking %s refunded as %s but refund-state write failed: %v", booking.ID, result.RefundID, err))
	}

	event := &models.PaymentEvent{
		Provider:  gw.Provider(),
		EventID:   "refund:" + result.RefundID,
		EventType: models.EventRefundCompleted,
		BookingID: booking.ID,
		Payload:   mustJSON(map[string]string{"source": "refund", "refund_id": result.RefundID, "reason": reason}),
		CreatedAt: refundedAt,
	}
	if _, err := s.DB.InsertPaymentEvent(ctx, event); err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Ledger write failed for refund %s: %v", result.RefundID, err))
	}

	s.publishEvent(s.Topics.PaymentRefunded, booking.ID, gw.Provider(), result.RefundID, models.EventRefundCompleted)

	s.Logger.LogPayment("REFUND", booking.ID, fmt.Sprintf("Refunded %s via %s (%s)", calc.Amount, gw.Provider(), reason))
	return &models.RefundResponse{
		Success:         true,
		Gateway:         gw.Provider(),
		GatewayRefundID: result.RefundID,
		Calculation:     calc,
	}, nil
}

// ---------------- HELPERS ----------------

func (s *Service) authorizeBooking(ctx context.Context, callerID, bookingID string) (*models.Booking, error) {
	if callerID == "" {
		return nil, errUnauthorized()
	}
	if bookingID == "" {
		return nil, errValidation("booking_id is required")
	}

	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if errors.Is(err, db.ErrBookingNotFound) {
		return nil, errNotFound("booking")
	}
	if err != nil {
		return nil, errInternal(err)
	}

	if booking.UserID != callerID {
		s.Logger.LogSecurity("OWNERSHIP", fmt.Sprintf("User %s attempted to act on booking %s owned by %s",
			callerID, booking.ID, booking.UserID))
		return nil, errForbidden()
	}

	return booking, nil
}

func (s *Service) gatewayFor(booking *models.Booking) (gateway.PaymentGateway, error) {
	name := booking.PaymentGateway
	if name == "" {
		name = models.GatewayWallet
	}
	gw, ok := s.Gateways[name]
	if !ok {
		return nil, errInternal(fmt.Errorf("gateway %q not configured", name))
	}
	return gw, nil
}

func (s *Service) publishEvent(topic, bookingID, provider, ref string, eventType models.EventType) {
	if s.Publisher == nil || topic == "" {
		return
	}

	payload := mustJSON(map[string]interface{}{
		"type":       string(eventType),
		"booking_id": bookingID,
		"provider":   provider,
		"reference":  ref,
		"timestamp":  s.now().UTC(),
	})

	if err := s.Publisher.Publish(topic, bookingID, payload); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for booking %s: %v", topic, bookingID, err))
	} else {
		s.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("Settlement event for booking %s", bookingID))
	}
}

func mustJSON(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}
