package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationEvent identifies what business event a notification is for
type NotificationEvent string

const (
	NotificationEventOrderConfirmed NotificationEvent = "order_confirmed"
	NotificationEventPaymentFailed  NotificationEvent = "payment_failed"
	NotificationEventRefundDone     NotificationEvent = "refund_processed"
	NotificationEventInvoiceReady   NotificationEvent = "invoice_ready"
)

// Notification is one dispatch record for a single channel. Failed
// dispatches are queued for the background retry job.
type Notification struct {
	ID         uuid.UUID         `json:"id"`
	OrderID    uuid.UUID         `json:"order_id"`
	InvoiceID  *uuid.UUID        `json:"invoice_id,omitempty"`
	Event      NotificationEvent `json:"event"`
	Channel    DeliveryChannel   `json:"channel"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	RetryCount int               `json:"retry_count"`
	CreatedAt  time.Time         `json:"created_at"`
}
