package models

// FeeSchedule is one gateway's pricing: a percentage expressed in basis
// points plus a fixed minor-unit component.
type FeeSchedule struct {
	Gateway    string `json:"gateway"`
	RateBps    int64  `json:"rate_bps"`
	FixedCents int64  `json:"fixed_cents"`
}

// PriceBreakdown is derived, never persisted and never trusted from the
// client. Recomputed on every preview request.
type PriceBreakdown struct {
	Gateway               string `json:"gateway"`
	Currency              string `json:"currency"`
	SubtotalCents         int64  `json:"subtotal_cents"`
	VolatilityBufferBps   int64  `json:"volatility_buffer_bps"`
	VolatilityBufferCents int64  `json:"volatility_buffer_cents"`
	GatewayFeeCents       int64  `json:"gateway_fee_cents"`
	TotalCents            int64  `json:"total_cents"`

	Subtotal         string `json:"subtotal"`
	VolatilityBuffer string `json:"volatility_buffer"`
	GatewayFee       string `json:"gateway_fee"`
	Total            string `json:"total"`
}
