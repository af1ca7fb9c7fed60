package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"pluspoint/internal/caching"
	"pluspoint/internal/common"
	"pluspoint/internal/config"
	"pluspoint/internal/models"
	"pluspoint/internal/repositories"

	"github.com/google/uuid"
)

const retryBatchMax = 50

// DeliveryServiceInterface fans an invoice or order event out to the
// configured channels and tracks per-channel outcomes. A channel
// failure never unwinds order or invoice state; it is recorded and the
// dispatch is queued for the background retry job.
type DeliveryServiceInterface interface {
	DispatchInvoice(ctx context.Context, invoice *models.Invoice, order *models.Order) error
	NotifyOrderEvent(ctx context.Context, order *models.Order, event models.NotificationEvent) error
	RecordDelivered(ctx context.Context, invoiceID uuid.UUID, channel models.DeliveryChannel, providerMessageID *string) (*models.Invoice, error)
	SuccessRate(invoice *models.Invoice) float64
	RetryFailedDispatches(ctx context.Context) error
}

type deliveryService struct {
	senders     map[models.DeliveryChannel]ChannelSender
	invoiceRepo repositories.InvoiceRepository
	cache       caching.CacheService
	cfg         *config.Config
}

// NewDeliveryService creates a delivery tracker over the given transports
func NewDeliveryService(senders []ChannelSender, invoiceRepo repositories.InvoiceRepository,
	cache caching.CacheService, cfg *config.Config) DeliveryServiceInterface {
	byChannel := make(map[models.DeliveryChannel]ChannelSender, len(senders))
	for _, sender := range senders {
		byChannel[sender.Channel()] = sender
	}
	return &deliveryService{
		senders:     byChannel,
		invoiceRepo: invoiceRepo,
		cache:       cache,
		cfg:         cfg,
	}
}

// DispatchInvoice sends the invoice over every configured channel and
// persists the per-channel outcome. The invoice advances to sent as
// soon as one channel succeeds.
func (s *deliveryService) DispatchInvoice(ctx context.Context, invoice *models.Invoice, order *models.Order) error {
	anySent := false
	for _, name := range s.cfg.Delivery.Channels {
		channel := models.DeliveryChannel(name)
		sender, ok := s.senders[channel]
		if !ok {
			log.Printf("No transport registered for channel %s, skipping", channel)
			continue
		}

		notification := s.buildInvoiceNotification(invoice, order, channel)
		result := sender.Send(ctx, notification)
		s.recordAttempt(invoice, channel, result)
		if result.Success {
			anySent = true
		} else {
			s.queueForRetry(ctx, notification)
		}
	}

	if err := s.invoiceRepo.UpdateDelivery(ctx, invoice.ID, invoice.Delivery); err != nil {
		return err
	}

	if anySent {
		currentRank, ranked := models.InvoiceStatusRank[invoice.Status]
		if ranked && currentRank < models.InvoiceStatusRank[models.InvoiceStatusSent] {
			invoice.Status = models.InvoiceStatusSent
			if err := s.invoiceRepo.UpdateEngagement(ctx, invoice); err != nil {
				return err
			}
		}
	}
	return nil
}

// NotifyOrderEvent sends an order lifecycle message over every
// configured channel. Failures are queued for retry; the caller's
// transaction is never affected.
func (s *deliveryService) NotifyOrderEvent(ctx context.Context, order *models.Order, event models.NotificationEvent) error {
	for _, name := range s.cfg.Delivery.Channels {
		channel := models.DeliveryChannel(name)
		sender, ok := s.senders[channel]
		if !ok {
			continue
		}

		notification := s.buildOrderNotification(order, event, channel)
		result := sender.Send(ctx, notification)
		if !result.Success {
			s.queueForRetry(ctx, notification)
		}
	}
	return nil
}

// recordAttempt applies one send outcome to the channel state,
// preserving the invariants: sent implies at least one attempt, and a
// later failure never clears an earlier success.
func (s *deliveryService) recordAttempt(invoice *models.Invoice, channel models.DeliveryChannel, result models.SendResult) {
	state := invoice.ChannelState(channel)
	now := time.Now()
	state.Attempts++
	state.LastAttemptAt = &now
	if result.Success {
		state.Sent = true
		state.Failed = false
		state.ErrorMessage = nil
		state.ProviderMessageID = result.ProviderMessageID
	} else if !state.Sent {
		state.Failed = true
		state.ErrorMessage = result.Error
	}
}

// RecordDelivered applies a provider delivery receipt for one channel
func (s *deliveryService) RecordDelivered(ctx context.Context, invoiceID uuid.UUID, channel models.DeliveryChannel, providerMessageID *string) (*models.Invoice, error) {
	if !models.IsValidDeliveryChannel(channel) {
		return nil, common.NewValidationError("channel", fmt.Sprintf("unknown delivery channel %q", channel))
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, common.NewValidationError("invoice_id", "invoice not found")
	}

	state := invoice.ChannelState(channel)
	if !state.Sent {
		return invoice, common.NewPreconditionFailed("record delivery",
			fmt.Sprintf("no send recorded on channel %s for invoice %s", channel, invoice.InvoiceNumber))
	}

	now := time.Now()
	state.Delivered = true
	state.Failed = false
	state.DeliveredAt = &now
	if providerMessageID != nil {
		state.ProviderMessageID = providerMessageID
	}

	if err := s.invoiceRepo.UpdateDelivery(ctx, invoice.ID, invoice.Delivery); err != nil {
		return nil, err
	}
	return invoice, nil
}

// SuccessRate is the percentage of attempted channels that reached the
// customer (sent or delivered), zero when nothing has been attempted.
func (s *deliveryService) SuccessRate(invoice *models.Invoice) float64 {
	attempted, succeeded := 0, 0
	for _, state := range invoice.Delivery {
		if state.Attempts > 0 {
			attempted++
			if state.Sent || state.Delivered {
				succeeded++
			}
		}
	}
	if attempted == 0 {
		return 0
	}
	return float64(succeeded) / float64(attempted) * 100
}

// RetryFailedDispatches drains the retry queue, re-sending each queued
// dispatch once. Still-failing dispatches go back on the queue until
// they exhaust their attempts. Run from the scheduler.
func (s *deliveryService) RetryFailedDispatches(ctx context.Context) error {
	for i := 0; i < retryBatchMax; i++ {
		notification, err := s.cache.DequeueRetry(ctx)
		if err != nil {
			return err
		}
		if notification == nil {
			return nil
		}

		sender, ok := s.senders[notification.Channel]
		if !ok {
			log.Printf("Dropping queued dispatch %s: no transport for channel %s", notification.ID, notification.Channel)
			continue
		}

		result := sender.Send(ctx, notification)
		if result.Success {
			s.applyRetrySuccess(ctx, notification, result)
			continue
		}

		notification.RetryCount++
		if notification.RetryCount >= s.cfg.Delivery.MaxRetryAttempts {
			log.Printf("Dropping dispatch %s after %d attempts on channel %s",
				notification.ID, notification.RetryCount, notification.Channel)
			continue
		}
		if err := s.cache.EnqueueRetry(ctx, notification); err != nil {
			log.Printf("Failed to requeue dispatch %s: %v", notification.ID, err)
		}
	}
	return nil
}

func (s *deliveryService) applyRetrySuccess(ctx context.Context, notification *models.Notification, result models.SendResult) {
	if notification.InvoiceID == nil {
		return
	}
	invoice, err := s.invoiceRepo.GetByID(ctx, *notification.InvoiceID)
	if err != nil || invoice == nil {
		log.Printf("Failed to load invoice %s for retry bookkeeping: %v", notification.InvoiceID, err)
		return
	}
	s.recordAttempt(invoice, notification.Channel, result)
	if err := s.invoiceRepo.UpdateDelivery(ctx, invoice.ID, invoice.Delivery); err != nil {
		log.Printf("Failed to persist retry outcome for invoice %s: %v", invoice.InvoiceNumber, err)
	}
}

func (s *deliveryService) queueForRetry(ctx context.Context, notification *models.Notification) {
	if err := s.cache.EnqueueRetry(ctx, notification); err != nil {
		log.Printf("Failed to queue dispatch %s for retry: %v", notification.ID, err)
	}
}

func (s *deliveryService) buildInvoiceNotification(invoice *models.Invoice, order *models.Order, channel models.DeliveryChannel) *models.Notification {
	invoiceID := invoice.ID
	return &models.Notification{
		ID:        uuid.New(),
		OrderID:   order.ID,
		InvoiceID: &invoiceID,
		Event:     models.NotificationEventInvoiceReady,
		Channel:   channel,
		Recipient: recipientFor(order, channel),
		Subject:   fmt.Sprintf("Invoice %s for order %s", invoice.InvoiceNumber, order.OrderNumber),
		Body: fmt.Sprintf("Your invoice %s for order %s is ready. Amount due: %.2f %s.",
			invoice.InvoiceNumber, order.OrderNumber, invoice.AmountDue, order.Pricing.Currency),
		CreatedAt: time.Now(),
	}
}

func (s *deliveryService) buildOrderNotification(order *models.Order, event models.NotificationEvent, channel models.DeliveryChannel) *models.Notification {
	subject, body := orderEventMessage(order, event)
	return &models.Notification{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Event:     event,
		Channel:   channel,
		Recipient: recipientFor(order, channel),
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

func orderEventMessage(order *models.Order, event models.NotificationEvent) (string, string) {
	switch event {
	case models.NotificationEventOrderConfirmed:
		return fmt.Sprintf("Order %s confirmed", order.OrderNumber),
			fmt.Sprintf("Your order %s has been confirmed and is being processed.", order.OrderNumber)
	case models.NotificationEventPaymentFailed:
		return fmt.Sprintf("Payment failed for order %s", order.OrderNumber),
			fmt.Sprintf("The payment for order %s failed. Please retry the payment.", order.OrderNumber)
	case models.NotificationEventRefundDone:
		return fmt.Sprintf("Refund processed for order %s", order.OrderNumber),
			fmt.Sprintf("A refund of %.2f %s for order %s has been processed.",
				order.Payment.RefundedAmount, order.Pricing.Currency, order.OrderNumber)
	default:
		return fmt.Sprintf("Update on order %s", order.OrderNumber),
			fmt.Sprintf("There is an update on your order %s.", order.OrderNumber)
	}
}

func recipientFor(order *models.Order, channel models.DeliveryChannel) string {
	switch channel {
	case models.ChannelEmail:
		return order.CustomerEmail
	case models.ChannelSMS, models.ChannelWhatsApp:
		return order.CustomerPhone
	default:
		return order.CustomerEmail
	}
}
