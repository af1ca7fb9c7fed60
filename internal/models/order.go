package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusPacked         OrderStatus = "packed"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusReturned       OrderStatus = "returned"
	OrderStatusRefunded       OrderStatus = "refunded"
)

// OrderStatusRank orders the forward-path statuses for comparison.
// Side branches (cancelled, returned, refunded) are not ranked.
var OrderStatusRank = map[OrderStatus]int{
	OrderStatusPending:        0,
	OrderStatusConfirmed:      1,
	OrderStatusProcessing:     2,
	OrderStatusPacked:         3,
	OrderStatusShipped:        4,
	OrderStatusOutForDelivery: 5,
	OrderStatusDelivered:      6,
}

// IsValidOrderStatus reports whether status is a member of the order enum
func IsValidOrderStatus(status OrderStatus) bool {
	switch status {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusPacked, OrderStatusShipped, OrderStatusOutForDelivery,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned,
		OrderStatusRefunded:
		return true
	}
	return false
}

// PaymentStatus represents the state of the payment attached to an order
// or invoice.
type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusCompleted     PaymentStatus = "completed"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusRefunded      PaymentStatus = "refunded"
)

// OrderItem is one line of an order with the price captured at checkout
type OrderItem struct {
	ID          uuid.UUID `json:"id" db:"id"`
	OrderID     uuid.UUID `json:"order_id" db:"order_id"`
	ProductID   uuid.UUID `json:"product_id" db:"product_id"`
	ProductName string    `json:"product_name" db:"product_name"`
	VariantName *string   `json:"variant_name" db:"variant_name"`
	Quantity    int       `json:"quantity" db:"quantity"`
	UnitPrice   float64   `json:"unit_price" db:"unit_price"`
	DiscountPct float64   `json:"discount_pct" db:"discount_pct"`
	TaxRate     float64   `json:"tax_rate" db:"tax_rate"`
	ItemTotal   float64   `json:"item_total" db:"item_total"`
}

// PricingBreakdown aggregates order-level money amounts
type PricingBreakdown struct {
	Subtotal float64 `json:"subtotal" db:"subtotal"`
	Discount float64 `json:"discount" db:"discount"`
	Tax      float64 `json:"tax" db:"tax"`
	Shipping float64 `json:"shipping" db:"shipping"`
	Total    float64 `json:"total" db:"total"`
	Currency string  `json:"currency" db:"currency"`
}

// ShippingInfo is the destination snapshot captured at checkout
type ShippingInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

// PaymentInfo tracks the provider-side payment for an order
type PaymentInfo struct {
	Method             string        `json:"method" db:"payment_method"`
	Status             PaymentStatus `json:"status" db:"payment_status"`
	ExternalOrderRef   string        `json:"external_order_ref" db:"external_order_ref"`
	ExternalPaymentRef *string       `json:"external_payment_ref" db:"external_payment_ref"`
	PaidAt             *time.Time    `json:"paid_at" db:"paid_at"`
	FailureReason      *string       `json:"failure_reason" db:"payment_failure_reason"`
	RefundedAmount     float64       `json:"refunded_amount" db:"refunded_amount"`
}

// StatusHistoryEntry is one append-only record of an order status change
type StatusHistoryEntry struct {
	Status    OrderStatus `json:"status" db:"status"`
	Timestamp time.Time   `json:"timestamp" db:"created_at"`
	Actor     string      `json:"actor" db:"actor"`
	Automated bool        `json:"automated" db:"automated"`
}

type Order struct {
	ID             uuid.UUID            `json:"id" db:"id"`
	OrderNumber    string               `json:"order_number" db:"order_number"`
	CustomerName   string               `json:"customer_name" db:"customer_name"`
	CustomerEmail  string               `json:"customer_email" db:"customer_email"`
	CustomerPhone  string               `json:"customer_phone" db:"customer_phone"`
	CustomerGSTIN  *string              `json:"customer_gstin" db:"customer_gstin"`
	Items          []OrderItem          `json:"items"`
	Pricing        PricingBreakdown     `json:"pricing"`
	Shipping       ShippingInfo         `json:"shipping"`
	Payment        PaymentInfo          `json:"payment"`
	Status         OrderStatus          `json:"status" db:"status"`
	StatusHistory  []StatusHistoryEntry `json:"status_history"`
	ReturnEligible bool                 `json:"return_eligible" db:"return_eligible"`
	PackedAt       *time.Time           `json:"packed_at" db:"packed_at"`
	ShippedAt      *time.Time           `json:"shipped_at" db:"shipped_at"`
	DeliveredAt    *time.Time           `json:"delivered_at" db:"delivered_at"`
	CreatedAt      time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at" db:"updated_at"`
}

// IsConfirmedOrLater reports whether the order has advanced at least to
// confirmed. Side-branch statuses count as processed so a repeated
// webhook delivery does not re-confirm a cancelled order.
func (o *Order) IsConfirmedOrLater() bool {
	if rank, ok := OrderStatusRank[o.Status]; ok {
		return rank >= OrderStatusRank[OrderStatusConfirmed]
	}
	return true
}
