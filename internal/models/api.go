package models

// Request/response shapes for the settlement HTTP surface.

type PreviewRequest struct {
	BookingID string `json:"booking_id"`
	Gateway   string `json:"gateway"`
}

type PreviewResponse struct {
	Gateway    string          `json:"gateway"`
	Breakdown  *PriceBreakdown `json:"breakdown"`
	Passengers int             `json:"passengers"`
	BasePrice  string          `json:"base_price"`
}

type CreateOrderRequest struct {
	BookingID string `json:"booking_id"`
}

type CreateOrderResponse struct {
	OrderID string `json:"order_id"`
}

type CaptureOrderRequest struct {
	OrderID   string `json:"order_id"`
	BookingID string `json:"booking_id"`
}

type CaptureOrderResponse struct {
	Status          string `json:"status,omitempty"`
	OrderID         string `json:"order_id,omitempty"`
	BookingID       string `json:"booking_id,omitempty"`
	AlreadyCaptured bool   `json:"already_captured,omitempty"`
}

type RefundRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type RefundResponse struct {
	Success         bool               `json:"success"`
	Gateway         string             `json:"gateway"`
	GatewayRefundID string             `json:"gateway_refund_id"`
	Calculation     *RefundCalculation `json:"calculation"`
}
