package wallet

import "encoding/json"

// Wire types for the wallet provider's REST API. Decoded strictly into
// structs; unknown statuses and issue codes are surfaced as upstream errors
// rather than sniffed dynamically.

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type amountPayload struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnitRequest struct {
	ReferenceID string        `json:"reference_id"`
	CustomID    string        `json:"custom_id"`
	Amount      amountPayload `json:"amount"`
}

type createOrderRequest struct {
	Intent        string                `json:"intent"`
	PurchaseUnits []purchaseUnitRequest `json:"purchase_units"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type captureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Payments    struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type refundRequest struct {
	Amount amountPayload `json:"amount"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// errorResponse is the provider's structured error body; Details carries
// the machine-readable issue codes capture failures are mapped from.
type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

type verifySignatureRequest struct {
	TransmissionID   string          `json:"transmission_id"`
	TransmissionTime string          `json:"transmission_time"`
	TransmissionSig  string          `json:"transmission_sig"`
	CertURL          string          `json:"cert_url"`
	AuthAlgo         string          `json:"auth_algo"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifySignatureResponse struct {
	VerificationStatus string `json:"verification_status"`
}

type webhookEventPayload struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		CustomID string `json:"custom_id"`
	} `json:"resource"`
}
