package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"pluspoint/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const retryQueueKey = "pluspoint:delivery:retry"

type CacheService interface {
	// Order caching
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	SetOrder(ctx context.Context, order *models.Order, ttl time.Duration) error
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error

	// Invoice caching
	GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	SetInvoice(ctx context.Context, invoice *models.Invoice, ttl time.Duration) error
	DeleteInvoice(ctx context.Context, invoiceID uuid.UUID) error

	// Failed-dispatch retry queue, drained by the background retry job
	EnqueueRetry(ctx context.Context, notification *models.Notification) error
	DequeueRetry(ctx context.Context) (*models.Notification, error)
	RetryQueueLength(ctx context.Context) (int64, error)

	// Rate limiting for public webhook and engagement endpoints
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Provider event dedup. True means this call claimed the event
	// and the caller should process it.
	MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	Delete(ctx context.Context, key string) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	}

	return &redisCacheService{client: client}
}

func (r *redisCacheService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	key := fmt.Sprintf("pluspoint:order:%s", orderID.String())
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *redisCacheService) SetOrder(ctx context.Context, order *models.Order, ttl time.Duration) error {
	key := fmt.Sprintf("pluspoint:order:%s", order.ID.String())
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisCacheService) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	key := fmt.Sprintf("pluspoint:order:%s", orderID.String())
	return r.client.Del(ctx, key).Err()
}

func (r *redisCacheService) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	key := fmt.Sprintf("pluspoint:invoice:%s", invoiceID.String())
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var invoice models.Invoice
	if err := json.Unmarshal(data, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *redisCacheService) SetInvoice(ctx context.Context, invoice *models.Invoice, ttl time.Duration) error {
	key := fmt.Sprintf("pluspoint:invoice:%s", invoice.ID.String())
	data, err := json.Marshal(invoice)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisCacheService) DeleteInvoice(ctx context.Context, invoiceID uuid.UUID) error {
	key := fmt.Sprintf("pluspoint:invoice:%s", invoiceID.String())
	return r.client.Del(ctx, key).Err()
}

func (r *redisCacheService) EnqueueRetry(ctx context.Context, notification *models.Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	return r.client.LPush(ctx, retryQueueKey, data).Err()
}

// DequeueRetry pops the oldest queued dispatch, or nil when the queue
// is empty.
func (r *redisCacheService) DequeueRetry(ctx context.Context) (*models.Notification, error) {
	data, err := r.client.RPop(ctx, retryQueueKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var notification models.Notification
	if err := json.Unmarshal(data, &notification); err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *redisCacheService) RetryQueueLength(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, retryQueueKey).Result()
}

func (r *redisCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	cacheKey := fmt.Sprintf("pluspoint:ratelimit:%s", key)
	count, err := r.client.Incr(ctx, cacheKey).Result()
	if err != nil {
		return true, err
	}

	// Set expiry on first request
	if count == 1 {
		r.client.Expire(ctx, cacheKey, window)
	}

	return count > int64(limit), nil
}

func (r *redisCacheService) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("pluspoint:event:%s", eventID)
	return r.client.SetNX(ctx, key, "1", ttl).Result()
}

func (r *redisCacheService) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
