package models

// Cancellation reasons accepted by the refund endpoint.
const (
	RefundReasonCustomer        = "customer_request"
	RefundReasonFlightCancelled = "flight_cancelled"
)

// RefundCalculation carries both the decimal amount for responses and the
// integer minor-unit amount the gateway refund APIs require. The cents
// value is rounded once from the basis-point product, never re-derived
// from the rounded decimal.
type RefundCalculation struct {
	TotalPaidCents      int64  `json:"total_paid_cents"`
	GatewayFeeCents     int64  `json:"gateway_fee_cents"`
	RefundableBaseCents int64  `json:"refundable_base_cents"`
	AppliedBps          int64  `json:"applied_bps"`
	AmountCents         int64  `json:"amount_cents"`
	Amount              string `json:"amount"`
}
