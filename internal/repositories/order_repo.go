package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"pluspoint/internal/common"
	"pluspoint/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	GetByExternalOrderRef(ctx context.Context, externalOrderRef string) (*models.Order, error)
	List(ctx context.Context, limit, offset int) ([]*models.Order, error)
	// UpdateStatusIf advances status and appends the history entry only
	// when the stored status still equals expected. Returns false when a
	// concurrent writer won the race; the caller must treat that as a
	// no-op, not an error.
	UpdateStatusIf(ctx context.Context, orderID uuid.UUID, expected models.OrderStatus, entry models.StatusHistoryEntry) (bool, error)
	UpdatePayment(ctx context.Context, order *models.Order) error
	GetStatusHistory(ctx context.Context, orderID uuid.UUID) ([]models.StatusHistoryEntry, error)
}

type orderRepo struct {
	db DB
}

func NewOrderRepo(db DB) OrderRepository {
	return &orderRepo{db: db}
}

const orderColumns = `id, order_number, customer_name, customer_email, customer_phone, customer_gstin,
		subtotal, discount, tax, shipping_amount, total, currency,
		shipping_address, payment_method, payment_status, external_order_ref, external_payment_ref,
		paid_at, payment_failure_reason, refunded_amount,
		status, return_eligible, packed_at, shipped_at, delivered_at, created_at, updated_at`

func (r *orderRepo) Create(ctx context.Context, order *models.Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return common.WrapPersistence("begin order create", err)
	}
	defer tx.Rollback(ctx)

	shippingJSON, err := json.Marshal(order.Shipping)
	if err != nil {
		return common.WrapPersistence("encode shipping address", err)
	}

	query := `
		INSERT INTO orders (id, order_number, customer_name, customer_email, customer_phone, customer_gstin,
			subtotal, discount, tax, shipping_amount, total, currency,
			shipping_address, payment_method, payment_status, external_order_ref, external_payment_ref,
			paid_at, payment_failure_reason, refunded_amount,
			status, return_eligible, packed_at, shipped_at, delivered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, NOW(), NOW())
	`
	_, err = tx.Exec(ctx, query,
		order.ID, order.OrderNumber, order.CustomerName, order.CustomerEmail, order.CustomerPhone, order.CustomerGSTIN,
		order.Pricing.Subtotal, order.Pricing.Discount, order.Pricing.Tax, order.Pricing.Shipping, order.Pricing.Total, order.Pricing.Currency,
		shippingJSON, order.Payment.Method, order.Payment.Status, order.Payment.ExternalOrderRef, order.Payment.ExternalPaymentRef,
		order.Payment.PaidAt, order.Payment.FailureReason, order.Payment.RefundedAmount,
		order.Status, order.ReturnEligible, order.PackedAt, order.ShippedAt, order.DeliveredAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &common.AllocationConflictError{Identifier: order.OrderNumber}
		}
		return common.WrapPersistence("insert order", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, product_name, variant_name, quantity, unit_price, discount_pct, tax_rate, item_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = order.ID
		if _, err := tx.Exec(ctx, itemQuery, item.ID, item.OrderID, item.ProductID, item.ProductName, item.VariantName,
			item.Quantity, item.UnitPrice, item.DiscountPct, item.TaxRate, item.ItemTotal); err != nil {
			return common.WrapPersistence("insert order item", err)
		}
	}

	historyQuery := `
		INSERT INTO order_status_history (order_id, status, actor, automated, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, entry := range order.StatusHistory {
		if _, err := tx.Exec(ctx, historyQuery, order.ID, entry.Status, entry.Actor, entry.Automated, entry.Timestamp); err != nil {
			return common.WrapPersistence("insert status history", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return common.WrapPersistence("commit order create", err)
	}
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *orderRepo) GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)
}

func (r *orderRepo) GetByExternalOrderRef(ctx context.Context, externalOrderRef string) (*models.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_order_ref = $1`, externalOrderRef)
}

func (r *orderRepo) getOne(ctx context.Context, query string, arg any) (*models.Order, error) {
	order := &models.Order{}
	var shippingJSON []byte
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&order.ID, &order.OrderNumber, &order.CustomerName, &order.CustomerEmail, &order.CustomerPhone, &order.CustomerGSTIN,
		&order.Pricing.Subtotal, &order.Pricing.Discount, &order.Pricing.Tax, &order.Pricing.Shipping, &order.Pricing.Total, &order.Pricing.Currency,
		&shippingJSON, &order.Payment.Method, &order.Payment.Status, &order.Payment.ExternalOrderRef, &order.Payment.ExternalPaymentRef,
		&order.Payment.PaidAt, &order.Payment.FailureReason, &order.Payment.RefundedAmount,
		&order.Status, &order.ReturnEligible, &order.PackedAt, &order.ShippedAt, &order.DeliveredAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, common.WrapPersistence("get order", err)
	}

	if len(shippingJSON) > 0 {
		if err := json.Unmarshal(shippingJSON, &order.Shipping); err != nil {
			return nil, common.WrapPersistence("decode shipping address", err)
		}
	}

	items, err := r.getItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	history, err := r.GetStatusHistory(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.StatusHistory = history

	return order, nil
}

func (r *orderRepo) getItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, variant_name, quantity, unit_price, discount_pct, tax_rate, item_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, common.WrapPersistence("list order items", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.VariantName,
			&item.Quantity, &item.UnitPrice, &item.DiscountPct, &item.TaxRate, &item.ItemTotal); err != nil {
			return nil, common.WrapPersistence("scan order item", err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *orderRepo) List(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	query := `SELECT id FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, common.WrapPersistence("list orders", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, common.WrapPersistence("scan order id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	orders := make([]*models.Order, 0, len(ids))
	for _, id := range ids {
		order, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if order != nil {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (r *orderRepo) UpdateStatusIf(ctx context.Context, orderID uuid.UUID, expected models.OrderStatus, entry models.StatusHistoryEntry) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, common.WrapPersistence("begin status update", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE orders
		SET status = $1,
			packed_at = CASE WHEN $1 = 'packed' THEN $4 ELSE packed_at END,
			shipped_at = CASE WHEN $1 = 'shipped' THEN $4 ELSE shipped_at END,
			delivered_at = CASE WHEN $1 = 'delivered' THEN $4 ELSE delivered_at END,
			updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	tag, err := tx.Exec(ctx, query, entry.Status, orderID, expected, entry.Timestamp)
	if err != nil {
		return false, common.WrapPersistence("update order status", err)
	}
	if tag.RowsAffected() == 0 {
		// A concurrent writer moved the order first.
		return false, nil
	}

	historyQuery := `
		INSERT INTO order_status_history (order_id, status, actor, automated, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, historyQuery, orderID, entry.Status, entry.Actor, entry.Automated, entry.Timestamp); err != nil {
		return false, common.WrapPersistence("append status history", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, common.WrapPersistence("commit status update", err)
	}
	return true, nil
}

func (r *orderRepo) UpdatePayment(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders
		SET payment_status = $1, external_payment_ref = $2, paid_at = $3, payment_failure_reason = $4, refunded_amount = $5, updated_at = NOW()
		WHERE id = $6
	`
	_, err := r.db.Exec(ctx, query, order.Payment.Status, order.Payment.ExternalPaymentRef, order.Payment.PaidAt,
		order.Payment.FailureReason, order.Payment.RefundedAmount, order.ID)
	return common.WrapPersistence("update order payment", err)
}

func (r *orderRepo) GetStatusHistory(ctx context.Context, orderID uuid.UUID) ([]models.StatusHistoryEntry, error) {
	query := `
		SELECT status, actor, automated, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, common.WrapPersistence("list status history", err)
	}
	defer rows.Close()

	var history []models.StatusHistoryEntry
	for rows.Next() {
		var entry models.StatusHistoryEntry
		if err := rows.Scan(&entry.Status, &entry.Actor, &entry.Automated, &entry.Timestamp); err != nil {
			return nil, common.WrapPersistence("scan status history", err)
		}
		history = append(history, entry)
	}
	return history, nil
}
