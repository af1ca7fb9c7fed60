package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"pluspoint/internal/common"
	"pluspoint/internal/services"

	"github.com/labstack/echo/v4"
)

// WebhookHandlers handles HTTP requests for payment provider webhooks
type WebhookHandlers struct {
	paymentEvents services.PaymentEventServiceInterface
	webhookSecret string
}

// NewWebhookHandlers creates a new webhook handlers instance
func NewWebhookHandlers(paymentEvents services.PaymentEventServiceInterface, webhookSecret string) *WebhookHandlers {
	return &WebhookHandlers{
		paymentEvents: paymentEvents,
		webhookSecret: webhookSecret,
	}
}

// verifyRazorpayWebhookSignature verifies the webhook signature
func (h *WebhookHandlers) verifyRazorpayWebhookSignature(signature string, body []byte) bool {
	hash := hmac.New(sha256.New, []byte(h.webhookSecret))
	hash.Write(body)
	expectedSignature := hex.EncodeToString(hash.Sum(nil))

	// Use constant time comparison to prevent timing attacks
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

// razorpayEnvelope is the provider's webhook payload shape, flattened
// to the fields the pipeline needs.
type razorpayEnvelope struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment struct {
			Entity struct {
				ID               string  `json:"id"`
				OrderID          string  `json:"order_id"`
				Amount           int64   `json:"amount"`
				ErrorDescription *string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
				OrderID   string `json:"order_id"`
				Amount    int64  `json:"amount"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

// RazorpayWebhook handles POST /webhooks/razorpay
func (h *WebhookHandlers) RazorpayWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body")
	}

	signature := c.Request().Header.Get("X-Razorpay-Signature")
	if signature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing Razorpay signature")
	}
	if !h.verifyRazorpayWebhookSignature(signature, body) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid webhook signature")
	}

	var envelope razorpayEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid webhook payload")
	}

	event := normalizeEvent(&envelope)
	outcome, err := h.paymentEvents.HandlePaymentEvent(c.Request().Context(), event)
	if err != nil {
		if common.IsValidation(err) {
			// Unknown order refs are acknowledged so the provider does
			// not retry a payload we can never apply.
			return c.JSON(http.StatusOK, map[string]string{
				"status": string(services.OutcomeIgnored),
				"reason": err.Error(),
			})
		}
		// Persistence failures get a 500 so the provider redelivers.
		return echo.NewHTTPError(http.StatusInternalServerError, "Event could not be applied")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": string(outcome),
		"event":  envelope.Event,
	})
}

// normalizeEvent maps the provider envelope onto the pipeline's event
// shape. Provider amounts arrive in paise.
func normalizeEvent(envelope *razorpayEnvelope) *services.PaymentEvent {
	event := &services.PaymentEvent{
		EventID:    envelope.ID,
		Type:       envelope.Event,
		OccurredAt: time.Unix(envelope.CreatedAt, 0),
	}

	switch envelope.Event {
	case services.EventRefundProcessed:
		refund := envelope.Payload.Refund.Entity
		event.ExternalOrderRef = refund.OrderID
		event.ExternalPaymentRef = refund.PaymentID
		event.Amount = float64(refund.Amount) / 100
	default:
		payment := envelope.Payload.Payment.Entity
		event.ExternalOrderRef = payment.OrderID
		event.ExternalPaymentRef = payment.ID
		event.Amount = float64(payment.Amount) / 100
		event.FailureReason = common.SafeString(payment.ErrorDescription)
	}
	return event
}
