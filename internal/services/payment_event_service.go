package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"pluspoint/internal/caching"
	"pluspoint/internal/common"
	"pluspoint/internal/models"
	"pluspoint/internal/realtime"
	"pluspoint/internal/repositories"
)

// EventOutcome reports how a provider event was handled
type EventOutcome string

const (
	OutcomeProcessed        EventOutcome = "processed"
	OutcomeAlreadyProcessed EventOutcome = "already_processed"
	OutcomeIgnored          EventOutcome = "ignored"
)

// Provider event types the orchestrator understands
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
)

// eventDedupTTL bounds how long a provider event id is remembered.
// Providers stop redelivering well inside this window.
const eventDedupTTL = 72 * time.Hour

// PaymentEvent is the normalized form of one provider webhook event
type PaymentEvent struct {
	EventID            string    `json:"event_id"`
	Type               string    `json:"type"`
	ExternalOrderRef   string    `json:"external_order_ref"`
	ExternalPaymentRef string    `json:"external_payment_ref"`
	Amount             float64   `json:"amount"`
	FailureReason      string    `json:"failure_reason,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// PaymentEventServiceInterface turns provider payment events into order
// and invoice state. Every handler is idempotent: redelivered events
// observe already-applied state and no-op instead of double-applying.
type PaymentEventServiceInterface interface {
	HandlePaymentEvent(ctx context.Context, event *PaymentEvent) (EventOutcome, error)
}

type paymentEventService struct {
	orderRepo       repositories.OrderRepository
	orderService    OrderServiceInterface
	invoiceService  InvoiceServiceInterface
	deliveryService DeliveryServiceInterface
	broadcaster     realtime.Broadcaster
	cache           caching.CacheService
}

// NewPaymentEventService creates the webhook event orchestrator
func NewPaymentEventService(orderRepo repositories.OrderRepository, orderService OrderServiceInterface,
	invoiceService InvoiceServiceInterface, deliveryService DeliveryServiceInterface,
	broadcaster realtime.Broadcaster, cache caching.CacheService) PaymentEventServiceInterface {
	return &paymentEventService{
		orderRepo:       orderRepo,
		orderService:    orderService,
		invoiceService:  invoiceService,
		deliveryService: deliveryService,
		broadcaster:     broadcaster,
		cache:           cache,
	}
}

func (s *paymentEventService) HandlePaymentEvent(ctx context.Context, event *PaymentEvent) (EventOutcome, error) {
	if event.ExternalOrderRef == "" {
		return OutcomeIgnored, common.NewValidationError("external_order_ref", "is required")
	}

	order, err := s.orderRepo.GetByExternalOrderRef(ctx, event.ExternalOrderRef)
	if err != nil {
		return OutcomeIgnored, err
	}
	if order == nil {
		return OutcomeIgnored, common.NewValidationError("external_order_ref",
			fmt.Sprintf("no order for payment reference %s", event.ExternalOrderRef))
	}

	switch event.Type {
	case EventPaymentCaptured:
		return s.handleCaptured(ctx, order, event)
	case EventPaymentFailed:
		return s.handleFailed(ctx, order, event)
	case EventRefundProcessed:
		return s.handleRefund(ctx, order, event)
	default:
		// Unknown events acknowledge cleanly so the provider stops
		// redelivering them.
		return OutcomeIgnored, nil
	}
}

// handleCaptured confirms the order, issues the tax invoice exactly
// once, settles it, and dispatches it to the customer. Idempotency
// rests on order state: a redelivered capture sees the order already
// confirmed and stops.
func (s *paymentEventService) handleCaptured(ctx context.Context, order *models.Order, event *PaymentEvent) (EventOutcome, error) {
	if order.IsConfirmedOrLater() {
		return OutcomeAlreadyProcessed, nil
	}

	confirmed, err := s.orderService.AdvanceStatus(ctx, order, models.OrderStatusConfirmed, ActorAutomated)
	if err != nil {
		return OutcomeIgnored, err
	}
	if !confirmed {
		// A concurrent delivery of the same event won the conditional
		// update and owns the downstream work.
		return OutcomeAlreadyProcessed, nil
	}

	paidAt := event.OccurredAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	order.Payment.Status = models.PaymentStatusCompleted
	order.Payment.ExternalPaymentRef = common.StringPtr(event.ExternalPaymentRef)
	order.Payment.PaidAt = &paidAt
	if err := s.orderRepo.UpdatePayment(ctx, order); err != nil {
		return OutcomeIgnored, err
	}

	invoice, created, err := s.invoiceService.GenerateFromOrder(ctx, order, models.InvoiceTypeTax)
	if err != nil {
		return OutcomeIgnored, err
	}

	amount := event.Amount
	if amount <= 0 {
		amount = invoice.Totals.GrandTotal
	}
	settled, err := s.invoiceService.RecordPayment(ctx, invoice.ID, amount, paidAt)
	if err != nil && !common.IsPreconditionFailed(err) {
		return OutcomeIgnored, err
	}
	if settled != nil {
		invoice = settled
	}

	if created {
		if err := s.deliveryService.DispatchInvoice(ctx, invoice, order); err != nil {
			log.Printf("Failed to dispatch invoice %s: %v", invoice.InvoiceNumber, err)
		}
	}
	if err := s.deliveryService.NotifyOrderEvent(ctx, order, models.NotificationEventOrderConfirmed); err != nil {
		log.Printf("Failed to notify confirmation for order %s: %v", order.OrderNumber, err)
	}

	s.finish(ctx, order)
	return OutcomeProcessed, nil
}

// handleFailed records the failure on the payment record. The order
// stays pending so the customer can retry.
func (s *paymentEventService) handleFailed(ctx context.Context, order *models.Order, event *PaymentEvent) (EventOutcome, error) {
	if order.IsConfirmedOrLater() {
		// A capture already landed; a late failure event for an older
		// attempt changes nothing.
		return OutcomeAlreadyProcessed, nil
	}
	if order.Payment.Status == models.PaymentStatusFailed &&
		common.SafeString(order.Payment.FailureReason) == event.FailureReason {
		return OutcomeAlreadyProcessed, nil
	}

	order.Payment.Status = models.PaymentStatusFailed
	order.Payment.FailureReason = common.StringPtr(event.FailureReason)
	if err := s.orderRepo.UpdatePayment(ctx, order); err != nil {
		return OutcomeIgnored, err
	}

	if err := s.deliveryService.NotifyOrderEvent(ctx, order, models.NotificationEventPaymentFailed); err != nil {
		log.Printf("Failed to notify payment failure for order %s: %v", order.OrderNumber, err)
	}

	s.finish(ctx, order)
	return OutcomeProcessed, nil
}

// handleRefund accumulates the refunded amount and, when the order sits
// in a refundable branch, advances it to refunded and issues a credit
// note. On any other status the refund is bookkeeping only. Dedup is by
// provider event id since amounts accumulate.
func (s *paymentEventService) handleRefund(ctx context.Context, order *models.Order, event *PaymentEvent) (EventOutcome, error) {
	if event.EventID != "" {
		firstTime, err := s.cache.MarkEventProcessed(ctx, event.EventID, eventDedupTTL)
		if err != nil {
			return OutcomeIgnored, common.WrapPersistence("refund event dedup", err)
		}
		if !firstTime {
			return OutcomeAlreadyProcessed, nil
		}
	}
	if err := common.ValidatePositiveAmount(event.Amount, "amount", order.Pricing.Total); err != nil {
		return OutcomeIgnored, err
	}

	order.Payment.RefundedAmount += event.Amount
	if order.Payment.RefundedAmount > order.Pricing.Total {
		order.Payment.RefundedAmount = order.Pricing.Total
	}
	if order.Payment.RefundedAmount >= order.Pricing.Total {
		order.Payment.Status = models.PaymentStatusRefunded
	}
	if err := s.orderRepo.UpdatePayment(ctx, order); err != nil {
		return OutcomeIgnored, err
	}

	// The refund backs out of the invoice's payment bookkeeping too, so
	// a fully refunded order never leaves its invoice reading paid.
	invoice, err := s.invoiceService.GetByOrderAndType(ctx, order.ID, models.InvoiceTypeTax)
	if err != nil {
		return OutcomeIgnored, err
	}
	if invoice != nil {
		if _, err := s.invoiceService.ApplyRefund(ctx, invoice.ID, event.Amount); err != nil && !common.IsPreconditionFailed(err) {
			return OutcomeIgnored, err
		}
	}

	switch order.Status {
	case models.OrderStatusCancelled, models.OrderStatusReturned:
		advanced, err := s.orderService.AdvanceStatus(ctx, order, models.OrderStatusRefunded, ActorAutomated)
		if err != nil {
			return OutcomeIgnored, err
		}
		if advanced {
			if _, _, err := s.invoiceService.GenerateFromOrder(ctx, order, models.InvoiceTypeCredit); err != nil && !common.IsPreconditionFailed(err) {
				log.Printf("Failed to issue credit note for order %s: %v", order.OrderNumber, err)
			}
		}
	}

	if err := s.deliveryService.NotifyOrderEvent(ctx, order, models.NotificationEventRefundDone); err != nil {
		log.Printf("Failed to notify refund for order %s: %v", order.OrderNumber, err)
	}

	s.finish(ctx, order)
	return OutcomeProcessed, nil
}

func (s *paymentEventService) finish(ctx context.Context, order *models.Order) {
	s.broadcaster.OrderUpdated(ctx, order)
	if err := s.cache.DeleteOrder(ctx, order.ID); err != nil {
		log.Printf("Failed to invalidate cached order %s: %v", order.OrderNumber, err)
	}
}
