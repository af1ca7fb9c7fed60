package services

import (
	"context"
	"log"

	"pluspoint/internal/common"
	"pluspoint/internal/models"
)

// ChannelSender is one outbound transport (email, SMS, WhatsApp, push).
// Implementations report the attempt outcome; they never return an
// error because a failed send is an outcome, not a fault.
type ChannelSender interface {
	Channel() models.DeliveryChannel
	Send(ctx context.Context, notification *models.Notification) models.SendResult
}

// The provider integrations below log the message that would go out.
// TODO: wire the email sender to the transactional mail provider once
// the account is provisioned.

type emailSender struct{}

func NewEmailSender() ChannelSender { return &emailSender{} }

func (s *emailSender) Channel() models.DeliveryChannel { return models.ChannelEmail }

func (s *emailSender) Send(ctx context.Context, n *models.Notification) models.SendResult {
	if n.Recipient == "" {
		return failedResult("recipient email address is missing")
	}
	log.Printf("[EMAIL] To=%s, Subject=%s, Body=%s", n.Recipient, n.Subject, n.Body)
	return successResult("email-" + n.ID.String())
}

type smsSender struct{}

func NewSMSSender() ChannelSender { return &smsSender{} }

func (s *smsSender) Channel() models.DeliveryChannel { return models.ChannelSMS }

func (s *smsSender) Send(ctx context.Context, n *models.Notification) models.SendResult {
	if n.Recipient == "" {
		return failedResult("recipient phone number is missing")
	}
	log.Printf("[SMS] To=%s, Message=%s", n.Recipient, n.Body)
	return successResult("sms-" + n.ID.String())
}

type whatsappSender struct{}

func NewWhatsAppSender() ChannelSender { return &whatsappSender{} }

func (s *whatsappSender) Channel() models.DeliveryChannel { return models.ChannelWhatsApp }

func (s *whatsappSender) Send(ctx context.Context, n *models.Notification) models.SendResult {
	if n.Recipient == "" {
		return failedResult("recipient phone number is missing")
	}
	log.Printf("[WHATSAPP] To=%s, Message=%s", n.Recipient, n.Body)
	return successResult("wa-" + n.ID.String())
}

type pushSender struct{}

func NewPushSender() ChannelSender { return &pushSender{} }

func (s *pushSender) Channel() models.DeliveryChannel { return models.ChannelPush }

func (s *pushSender) Send(ctx context.Context, n *models.Notification) models.SendResult {
	log.Printf("[PUSH] To=%s, Subject=%s", n.Recipient, n.Subject)
	return successResult("push-" + n.ID.String())
}

func successResult(providerMessageID string) models.SendResult {
	return models.SendResult{
		Success:           true,
		ProviderMessageID: common.StringPtr(providerMessageID),
	}
}

func failedResult(reason string) models.SendResult {
	return models.SendResult{
		Success: false,
		Error:   common.StringPtr(reason),
	}
}
