package realtime

import (
	"context"
	"encoding/json"
	"log"

	"pluspoint/internal/models"

	"github.com/redis/go-redis/v9"
)

const orderUpdatedChannel = "order-updated"

// Broadcaster pushes order state changes to connected storefront
// clients. Publishing is fire-and-forget: a broker hiccup is logged
// and never fails the pipeline that triggered it.
type Broadcaster interface {
	OrderUpdated(ctx context.Context, order *models.Order)
}

type orderUpdatePayload struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Payment struct {
		Status string `json:"status"`
	} `json:"payment"`
}

type redisBroadcaster struct {
	client *redis.Client
}

// NewRedisBroadcaster creates a broadcaster over the given Redis client
func NewRedisBroadcaster(client *redis.Client) Broadcaster {
	return &redisBroadcaster{client: client}
}

func (b *redisBroadcaster) OrderUpdated(ctx context.Context, order *models.Order) {
	var payload orderUpdatePayload
	payload.OrderID = order.ID.String()
	payload.Status = string(order.Status)
	payload.Payment.Status = string(order.Payment.Status)

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal order update for %s: %v", order.OrderNumber, err)
		return
	}
	if err := b.client.Publish(ctx, orderUpdatedChannel, data).Err(); err != nil {
		log.Printf("Failed to publish order update for %s: %v", order.OrderNumber, err)
	}
}
