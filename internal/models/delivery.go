package models

import "time"

// DeliveryChannel is one communication medium a document or message can
// be sent through.
type DeliveryChannel string

const (
	ChannelEmail    DeliveryChannel = "email"
	ChannelSMS      DeliveryChannel = "sms"
	ChannelWhatsApp DeliveryChannel = "whatsapp"
	ChannelPush     DeliveryChannel = "push"
)

// IsValidDeliveryChannel reports whether channel is a known medium
func IsValidDeliveryChannel(channel DeliveryChannel) bool {
	switch channel {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelPush:
		return true
	}
	return false
}

// DeliveryChannelState is the per-channel attempt/outcome record.
// Invariants: Sent implies Attempts >= 1; Delivered implies Sent.
type DeliveryChannelState struct {
	Sent              bool       `json:"sent"`
	Delivered         bool       `json:"delivered"`
	Failed            bool       `json:"failed"`
	Attempts          int        `json:"attempts"`
	LastAttemptAt     *time.Time `json:"last_attempt_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty"`
}

// SendResult is what a channel transport reports back for one attempt
type SendResult struct {
	Success           bool    `json:"success"`
	ProviderMessageID *string `json:"provider_message_id,omitempty"`
	Error             *string `json:"error,omitempty"`
}
