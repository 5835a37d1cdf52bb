package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ms-settlement/internal/config"
	"ms-settlement/internal/gateway"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
)

// Adapter implements gateway.PaymentGateway against the OAuth2 wallet
// provider. Access tokens come from the client-credentials flow and are
// cached in Redis; a 401 on a business call triggers exactly one forced
// refresh and retry.
type Adapter struct {
	cfg      config.WalletConfig
	currency string
	client   *http.Client
	cache    *RedisTokenCache
	log      *logger.Logger
}

func NewAdapter(cfg config.WalletConfig, currency string, cache *RedisTokenCache, log *logger.Logger) *Adapter {
	return &Adapter{
		cfg:      cfg,
		currency: strings.ToUpper(currency),
		client:   &http.Client{Timeout: cfg.Timeout},
		cache:    cache,
		log:      log,
	}
}

func (a *Adapter) Provider() string {
	return models.GatewayWallet
}

// accessToken returns a usable bearer token, fetching a fresh one from the
// token endpoint when the cache misses or force is set.
func (a *Adapter) accessToken(ctx context.Context, force bool) (string, error) {
	if !force && a.cache != nil {
		cached, err := a.cache.GetToken(ctx)
		if err != nil {
			a.log.Warn("GATEWAY", fmt.Sprintf("Wallet token cache read failed: %v", err))
		} else if cached.IsValid() {
			return cached.Token, nil
		}
	}

	tokenURL := a.cfg.BaseURL + "/v1/oauth2/token"

	data := url.Values{}
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", gateway.ErrUpstream, err)
	}
	req.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token fetch: %v", gateway.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		a.log.Error("GATEWAY", fmt.Sprintf("Wallet token endpoint returned %s: %s", resp.Status, string(body)))
		return "", fmt.Errorf("%w: token fetch status %s", gateway.ErrUpstream, resp.Status)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", gateway.ErrUpstream, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", gateway.ErrUpstream)
	}

	if a.cache != nil {
		ttl := time.Duration(token.ExpiresIn) * time.Second
		if err := a.cache.SaveToken(ctx, token.AccessToken, ttl); err != nil {
			a.log.Warn("GATEWAY", fmt.Sprintf("Wallet token cache write failed: %v", err))
		}
	}

	return token.AccessToken, nil
}

// do issues an authorized call. On 401 the token is refreshed once and the
// call retried; a second 401 is fatal.
func (a *Adapter) do(ctx context.Context, method, path string, body []byte, header map[string]string) (*http.Response, error) {
	force := false
	for attempt := 0; attempt < 2; attempt++ {
		token, err := a.accessToken(ctx, force)
		if err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", gateway.ErrUpstream, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		for k, v := range header {
			req.Header.Set(k, v)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", gateway.ErrUpstream, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			a.log.Warn("GATEWAY", "Wallet returned 401, refreshing access token and retrying once")
			if a.cache != nil {
				_ = a.cache.InvalidateToken(ctx)
			}
			force = true
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%w: unauthorized after token refresh", gateway.ErrUpstream)
}

// CreateOrder creates a provider order for the booking total. The booking
// id is set as both reference_id and custom_id so webhook payloads can be
// resolved back to the booking.
func (a *Adapter) CreateOrder(ctx context.Context, req gateway.OrderRequest) (string, error) {
	payload, err := json.Marshal(createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnitRequest{
			{
				ReferenceID: req.BookingID,
				CustomID:    req.BookingID,
				Amount: amountPayload{
					CurrencyCode: a.currency,
					Value:        models.FormatCents(req.AmountCents),
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", gateway.ErrUpstream, err)
	}

	resp, err := a.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", a.mapError(resp)
	}

	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return "", fmt.Errorf("%w: decoding order response: %v", gateway.ErrUpstream, err)
	}
	if order.ID == "" {
		return "", fmt.Errorf("%w: order response missing id", gateway.ErrUpstream)
	}

	a.log.LogGateway(a.Provider(), "CREATE_ORDER", fmt.Sprintf("Created order %s for booking %s", order.ID, req.BookingID))
	return order.ID, nil
}

// CaptureOrder captures an approved order. The caller-supplied idempotency
// key travels as the provider request id, so retried calls cannot
// double-charge.
func (a *Adapter) CaptureOrder(ctx context.Context, orderID, idempotencyKey string) (*gateway.CaptureResult, error) {
	header := map[string]string{"Wallet-Request-Id": idempotencyKey}

	resp, err := a.do(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", []byte("{}"), header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, a.mapError(resp)
	}

	var capture captureResponse
	if err := json.NewDecoder(resp.Body).Decode(&capture); err != nil {
		return nil, fmt.Errorf("%w: decoding capture response: %v", gateway.ErrUpstream, err)
	}

	captureID := ""
	if len(capture.PurchaseUnits) > 0 && len(capture.PurchaseUnits[0].Payments.Captures) > 0 {
		captureID = capture.PurchaseUnits[0].Payments.Captures[0].ID
	}
	if capture.Status != "COMPLETED" || captureID == "" {
		return nil, fmt.Errorf("%w: unexpected capture status %q", gateway.ErrUpstream, capture.Status)
	}

	a.log.LogGateway(a.Provider(), "CAPTURE", fmt.Sprintf("Captured order %s as %s", orderID, captureID))
	return &gateway.CaptureResult{Status: capture.Status, CaptureID: captureID}, nil
}

// Refund refunds part or all of a capture. Amounts are integer minor units
// formatted to the provider's decimal wire format.
func (a *Adapter) Refund(ctx context.Context, captureRef string, amountCents int64) (*gateway.RefundResult, error) {
	payload, err := json.Marshal(refundRequest{
		Amount: amountPayload{
			CurrencyCode: a.currency,
			Value:        models.FormatCents(amountCents),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrUpstream, err)
	}

	resp, err := a.do(ctx, http.MethodPost, "/v2/payments/captures/"+captureRef+"/refund", payload, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, a.mapError(resp)
	}

	var refund refundResponse
	if err := json.NewDecoder(resp.Body).Decode(&refund); err != nil {
		return nil, fmt.Errorf("%w: decoding refund response: %v", gateway.ErrUpstream, err)
	}

	a.log.LogGateway(a.Provider(), "REFUND", fmt.Sprintf("Refunded capture %s as %s", captureRef, refund.ID))
	return &gateway.RefundResult{RefundID: refund.ID, Status: refund.Status}, nil
}

// VerifyWebhook asks the provider's verification endpoint whether the
// notification signature headers match the raw body for our webhook id.
func (a *Adapter) VerifyWebhook(ctx context.Context, header http.Header, body []byte) (bool, error) {
	payload, err := json.Marshal(verifySignatureRequest{
		TransmissionID:   header.Get("Wallet-Transmission-Id"),
		TransmissionTime: header.Get("Wallet-Transmission-Time"),
		TransmissionSig:  header.Get("Wallet-Transmission-Sig"),
		CertURL:          header.Get("Wallet-Cert-Url"),
		AuthAlgo:         header.Get("Wallet-Auth-Algo"),
		WebhookID:        a.cfg.WebhookID,
		WebhookEvent:     json.RawMessage(body),
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", gateway.ErrUpstream, err)
	}

	resp, err := a.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", payload, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, a.mapError(resp)
	}

	var verification verifySignatureResponse
	if err := json.NewDecoder(resp.Body).Decode(&verification); err != nil {
		return false, fmt.Errorf("%w: decoding verification response: %v", gateway.ErrUpstream, err)
	}

	return verification.VerificationStatus == "SUCCESS", nil
}

// ParseWebhook normalizes a wallet notification into the shared event
// shape. The booking id comes from the custom_id set at order creation.
func (a *Adapter) ParseWebhook(body []byte) (*models.WebhookEvent, error) {
	var payload webhookEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding wallet webhook payload: %w", err)
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("wallet webhook payload missing event id")
	}

	event := &models.WebhookEvent{
		EventID:   payload.ID,
		BookingID: payload.Resource.CustomID,
		CaptureID: payload.Resource.ID,
		RawType:   payload.EventType,
	}

	switch payload.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		event.EventType = models.EventCaptureCompleted
	case "PAYMENT.CAPTURE.DENIED":
		event.EventType = models.EventCaptureDenied
	case "PAYMENT.CAPTURE.REVERSED":
		event.EventType = models.EventCaptureReversed
	case "PAYMENT.CAPTURE.REFUNDED":
		event.EventType = models.EventRefundCompleted
	default:
		event.EventType = models.EventUnknown
	}

	return event, nil
}

// mapError normalizes provider error bodies into the gateway taxonomy.
func (a *Adapter) mapError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return gateway.ErrOrderNotFound
	}

	var provider errorResponse
	if err := json.Unmarshal(body, &provider); err == nil {
		for _, detail := range provider.Details {
			switch detail.Issue {
			case "ORDER_NOT_APPROVED":
				return gateway.ErrOrderNotApproved
			case "ORDER_ALREADY_CAPTURED":
				return gateway.ErrAlreadyCaptured
			case "INSTRUMENT_DECLINED":
				return gateway.ErrInstrumentDeclined
			}
		}
		if provider.Name == "RESOURCE_NOT_FOUND" {
			return gateway.ErrOrderNotFound
		}
	}

	a.log.Error("GATEWAY", fmt.Sprintf("Wallet call failed with %s: %s", resp.Status, string(body)))
	return fmt.Errorf("%w: status %s", gateway.ErrUpstream, resp.Status)
}
