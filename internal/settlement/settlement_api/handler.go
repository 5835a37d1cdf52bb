package settlement_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-settlement/internal/auth"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/settlement"
)

// Webhook bodies are small; anything past this is not a provider we know.
const maxWebhookBody = 1 << 20

type Handler struct {
	Service *settlement.Service
	Logger  *logger.Logger
}

func NewHandler(service *settlement.Service, log *logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  log,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// writeError maps the settlement error taxonomy onto HTTP. Anything that
// isn't a *settlement.Error is an internal failure and stays opaque.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var svcErr *settlement.Error
	if errors.As(err, &svcErr) {
		writeJSON(w, svcErr.Status, errorResponse{
			Error:   svcErr.Code,
			Message: svcErr.Message,
			Action:  svcErr.Action,
		})
		return
	}

	h.Logger.Error("API", fmt.Sprintf("Unclassified error: %v", err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error:   settlement.CodeInternal,
		Message: "internal error",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Preview returns the authoritative price breakdown for a booking and
// gateway without touching any provider.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req models.PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("Preview: bookingId=%s gateway=%s", req.BookingID, req.Gateway))

	resp, err := h.Service.Preview(r.Context(), auth.UserID(r.Context()), req.BookingID, req.Gateway)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Preview failed: %v", err))
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateWalletOrder starts a wallet checkout for a booking.
func (h *Handler) CreateWalletOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("CreateWalletOrder: bookingId=%s", req.BookingID))

	resp, err := h.Service.CreateWalletOrder(r.Context(), auth.UserID(r.Context()), req.BookingID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateWalletOrder failed: %v", err))
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// CaptureOrder settles an approved order.
func (h *Handler) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CaptureOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("CaptureOrder: bookingId=%s orderId=%s", req.BookingID, req.OrderID))

	resp, err := h.Service.CaptureOrder(r.Context(), auth.UserID(r.Context()), req.BookingID, req.OrderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CaptureOrder failed: %v", err))
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Refund cancels a paid booking and refunds through the original gateway.
// Restricted to operations staff.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	if !auth.HasRole(r.Context(), auth.RoleOps) {
		h.Logger.LogSecurity("REFUND_DENIED", fmt.Sprintf("User %s attempted a refund without the ops role", auth.UserID(r.Context())))
		writeJSON(w, http.StatusForbidden, errorResponse{
			Error:   settlement.CodeForbidden,
			Message: "refunds require the operations role",
		})
		return
	}

	var req models.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("Refund: bookingId=%s reason=%s", req.BookingID, req.Reason))

	resp, err := h.Service.Refund(r.Context(), req.BookingID, req.Reason)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Refund failed: %v", err))
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// WalletWebhook receives wallet provider notifications.
func (h *Handler) WalletWebhook(w http.ResponseWriter, r *http.Request) {
	h.handleWebhook(w, r, models.GatewayWallet)
}

// CardWebhook receives card provider notifications.
func (h *Handler) CardWebhook(w http.ResponseWriter, r *http.Request) {
	h.handleWebhook(w, r, models.GatewayCard)
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request, provider string) {
	h.Logger.Info("API", fmt.Sprintf("Webhook received for provider %s", provider))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read webhook body", http.StatusBadRequest)
		return
	}

	if err := h.Service.HandleWebhook(r.Context(), provider, r.Header, body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Webhook processing failed: %v", err))

		var whErr *settlement.WebhookError
		if errors.As(err, &whErr) {
			http.Error(w, whErr.PublicMessage, whErr.StatusCode)
			return
		}

		http.Error(w, "Webhook processing error", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
