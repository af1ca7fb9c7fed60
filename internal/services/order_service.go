package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"pluspoint/internal/common"
	"pluspoint/internal/config"
	"pluspoint/internal/models"
	"pluspoint/internal/repositories"

	"github.com/google/uuid"
)

// ActorAutomated is recorded on history entries produced by the
// pipeline itself rather than a human operator.
const ActorAutomated = "automated"

const allocationRetries = 3

// orderTransitions is the forward-and-branch transition table. A
// transition absent here is rejected as a ValidationError.
var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:        {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed:      {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing:     {models.OrderStatusPacked, models.OrderStatusCancelled},
	models.OrderStatusPacked:         {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:        {models.OrderStatusOutForDelivery},
	models.OrderStatusOutForDelivery: {models.OrderStatusDelivered},
	models.OrderStatusDelivered:      {models.OrderStatusReturned},
	models.OrderStatusReturned:       {models.OrderStatusRefunded},
	models.OrderStatusCancelled:      {models.OrderStatusRefunded},
	models.OrderStatusRefunded:       {},
}

// CreateOrderRequest is the checkout entry point payload
type CreateOrderRequest struct {
	CustomerName     string              `json:"customer_name"`
	CustomerEmail    string              `json:"customer_email"`
	CustomerPhone    string              `json:"customer_phone"`
	CustomerGSTIN    *string             `json:"customer_gstin,omitempty"`
	Items            []CreateOrderItem   `json:"items"`
	Shipping         models.ShippingInfo `json:"shipping"`
	PaymentMethod    string              `json:"payment_method"`
	ExternalOrderRef string              `json:"external_order_ref"`
}

// CreateOrderItem references a product with a requested quantity and
// optional per-item discount.
type CreateOrderItem struct {
	ProductID   uuid.UUID `json:"product_id"`
	Quantity    int       `json:"quantity"`
	DiscountPct float64   `json:"discount_pct"`
}

type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error)
	GetOrderByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetOrderByExternalRef(ctx context.Context, externalOrderRef string) (*models.Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]*models.Order, error)

	// AdvanceStatus validates the transition and commits it with an
	// optimistic check against the caller's view of the current status.
	// Returns false without error when a concurrent writer won.
	AdvanceStatus(ctx context.Context, order *models.Order, newStatus models.OrderStatus, actor string) (bool, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, actor string) error
	ReturnOrder(ctx context.Context, orderID uuid.UUID, actor string) error

	CanCancel(order *models.Order) bool
	CanReturn(order *models.Order, now time.Time) bool
	ComputeRefundAmount(order *models.Order) float64
}

type orderService struct {
	orderRepo    repositories.OrderRepository
	productRepo  repositories.ProductRepository
	sequenceRepo repositories.SequenceRepository
	cfg          *config.Config
}

// NewOrderService creates a new order service
func NewOrderService(orderRepo repositories.OrderRepository, productRepo repositories.ProductRepository,
	sequenceRepo repositories.SequenceRepository, cfg *config.Config) OrderServiceInterface {
	return &orderService{
		orderRepo:    orderRepo,
		productRepo:  productRepo,
		sequenceRepo: sequenceRepo,
		cfg:          cfg,
	}
}

// CreateOrder validates the request, snapshots product pricing into
// order items, decrements stock, and persists the order under a fresh
// order number.
func (s *orderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	if err := common.ValidateRequiredString(req.CustomerName, "customer_name"); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, common.NewValidationError("items", "at least one item is required")
	}
	if err := common.ValidateGSTIN(common.SafeString(req.CustomerGSTIN), "customer_gstin"); err != nil {
		return nil, err
	}
	if err := common.ValidateRequiredString(req.Shipping.State, "shipping.state"); err != nil {
		return nil, err
	}

	now := time.Now()
	order := &models.Order{
		ID:             uuid.New(),
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		CustomerGSTIN:  req.CustomerGSTIN,
		Shipping:       req.Shipping,
		Status:         models.OrderStatusPending,
		ReturnEligible: true,
		Payment: models.PaymentInfo{
			Method:           req.PaymentMethod,
			Status:           models.PaymentStatusPending,
			ExternalOrderRef: req.ExternalOrderRef,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var subtotal, discount, tax float64
	decremented := make(map[uuid.UUID]int)
	for _, line := range req.Items {
		if err := common.ValidateQuantity(line.Quantity, "quantity"); err != nil {
			s.restoreStock(ctx, decremented)
			return nil, err
		}

		product, err := s.productRepo.GetByID(ctx, line.ProductID)
		if err != nil {
			s.restoreStock(ctx, decremented)
			return nil, err
		}
		if product == nil {
			s.restoreStock(ctx, decremented)
			return nil, common.NewValidationError("product_id", fmt.Sprintf("product %s not found", line.ProductID))
		}

		ok, err := s.productRepo.DecrementStock(ctx, product.ID, line.Quantity)
		if err != nil {
			s.restoreStock(ctx, decremented)
			return nil, err
		}
		if !ok {
			s.restoreStock(ctx, decremented)
			return nil, common.NewValidationError("quantity", fmt.Sprintf("insufficient stock for product %s", product.Name))
		}
		decremented[product.ID] += line.Quantity

		gross := product.UnitPrice * float64(line.Quantity)
		discountAmount := gross * line.DiscountPct / 100
		taxableLine := gross - discountAmount
		lineTax := taxableLine * product.TaxRate / 100

		subtotal += gross
		discount += discountAmount
		tax += lineTax

		order.Items = append(order.Items, models.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.UnitPrice,
			DiscountPct: line.DiscountPct,
			TaxRate:     product.TaxRate,
			ItemTotal:   taxableLine + lineTax,
		})
	}

	order.Pricing = models.PricingBreakdown{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: s.cfg.Refunds.ShippingCharge,
		Total:    subtotal - discount + tax + s.cfg.Refunds.ShippingCharge,
		Currency: "INR",
	}
	order.StatusHistory = []models.StatusHistoryEntry{{
		Status:    models.OrderStatusPending,
		Timestamp: now,
		Actor:     ActorAutomated,
		Automated: true,
	}}

	// Number allocation and the insert's uniqueness constraint together
	// guarantee no two orders share a number; a conflict just means a
	// concurrent writer claimed it first, so allocate again.
	var lastErr error
	for attempt := 0; attempt < allocationRetries; attempt++ {
		number, err := s.sequenceRepo.OrderNumber(ctx, now)
		if err != nil {
			s.restoreStock(ctx, decremented)
			return nil, err
		}
		order.OrderNumber = number

		if err := s.orderRepo.Create(ctx, order); err != nil {
			if common.IsAllocationConflict(err) {
				lastErr = err
				continue
			}
			s.restoreStock(ctx, decremented)
			return nil, err
		}
		return order, nil
	}

	s.restoreStock(ctx, decremented)
	return nil, lastErr
}

func (s *orderService) restoreStock(ctx context.Context, decremented map[uuid.UUID]int) {
	for productID, quantity := range decremented {
		if err := s.productRepo.IncrementStock(ctx, productID, quantity); err != nil {
			log.Printf("Failed to restore stock for product %s: %v", productID, err)
		}
	}
}

func (s *orderService) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.orderRepo.GetByID(ctx, orderID)
}

func (s *orderService) GetOrderByExternalRef(ctx context.Context, externalOrderRef string) (*models.Order, error) {
	return s.orderRepo.GetByExternalOrderRef(ctx, externalOrderRef)
}

func (s *orderService) ListOrders(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	limit, offset, err := common.ValidatePaginationParams(limit, offset)
	if err != nil {
		return nil, err
	}
	return s.orderRepo.List(ctx, limit, offset)
}

// AdvanceStatus applies one transition from the table. The repository
// commit is conditional on the status the caller read; a false return
// means another handler advanced the order first and this call must be
// treated as a no-op.
func (s *orderService) AdvanceStatus(ctx context.Context, order *models.Order, newStatus models.OrderStatus, actor string) (bool, error) {
	if !models.IsValidOrderStatus(newStatus) {
		return false, common.NewValidationError("status", fmt.Sprintf("unknown order status %q", newStatus))
	}
	if !transitionAllowed(order.Status, newStatus) {
		return false, common.NewValidationError("status",
			fmt.Sprintf("cannot transition from %s to %s", order.Status, newStatus))
	}

	if actor == "" {
		actor = ActorAutomated
	}
	entry := models.StatusHistoryEntry{
		Status:    newStatus,
		Timestamp: time.Now(),
		Actor:     actor,
		Automated: actor == ActorAutomated,
	}

	updated, err := s.orderRepo.UpdateStatusIf(ctx, order.ID, order.Status, entry)
	if err != nil {
		return false, err
	}
	if updated {
		order.Status = newStatus
		order.StatusHistory = append(order.StatusHistory, entry)
		switch newStatus {
		case models.OrderStatusPacked:
			order.PackedAt = &entry.Timestamp
		case models.OrderStatusShipped:
			order.ShippedAt = &entry.Timestamp
		case models.OrderStatusDelivered:
			order.DeliveredAt = &entry.Timestamp
		}
	}
	return updated, nil
}

func transitionAllowed(from, to models.OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CancelOrder cancels an eligible order and restores its stock
func (s *orderService) CancelOrder(ctx context.Context, orderID uuid.UUID, actor string) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return common.NewValidationError("order_id", "order not found")
	}

	if !s.CanCancel(order) {
		return common.NewValidationError("status",
			fmt.Sprintf("order cannot be cancelled in status %s", order.Status))
	}

	updated, err := s.AdvanceStatus(ctx, order, models.OrderStatusCancelled, actor)
	if err != nil {
		return err
	}
	if !updated {
		return common.NewPreconditionFailed("cancel order", "order advanced concurrently")
	}

	for _, item := range order.Items {
		if err := s.productRepo.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			log.Printf("Failed to restore stock for cancelled order %s: %v", order.OrderNumber, err)
		}
	}
	return nil
}

// ReturnOrder starts a return for a delivered order inside the window
func (s *orderService) ReturnOrder(ctx context.Context, orderID uuid.UUID, actor string) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return common.NewValidationError("order_id", "order not found")
	}

	if !s.CanReturn(order, time.Now()) {
		return common.NewValidationError("status", "order is not eligible for return")
	}

	updated, err := s.AdvanceStatus(ctx, order, models.OrderStatusReturned, actor)
	if err != nil {
		return err
	}
	if !updated {
		return common.NewPreconditionFailed("return order", "order advanced concurrently")
	}
	return nil
}

// CanCancel reports whether the order is still early enough in
// fulfillment to cancel.
func (s *orderService) CanCancel(order *models.Order) bool {
	switch order.Status {
	case models.OrderStatusPending, models.OrderStatusConfirmed,
		models.OrderStatusProcessing, models.OrderStatusPacked:
		return true
	}
	return false
}

// CanReturn reports whether a delivered order is inside its return window
func (s *orderService) CanReturn(order *models.Order, now time.Time) bool {
	if order.Status != models.OrderStatusDelivered || !order.ReturnEligible {
		return false
	}
	if order.DeliveredAt == nil {
		return false
	}
	return now.Sub(*order.DeliveredAt) <= s.cfg.ReturnWindow()
}

// ComputeRefundAmount derives the refundable amount for the order's
// current status. Shipping is not refunded once the parcel has left,
// and flat packing/shipping charges are withheld at the corresponding
// stages. Never negative.
func (s *orderService) ComputeRefundAmount(order *models.Order) float64 {
	if order.Status == models.OrderStatusDelivered && !s.CanReturn(order, time.Now()) {
		return 0
	}

	refund := order.Pricing.Total

	switch order.Status {
	case models.OrderStatusShipped, models.OrderStatusOutForDelivery, models.OrderStatusDelivered:
		refund -= order.Pricing.Shipping
	}

	switch order.Status {
	case models.OrderStatusPacked:
		refund -= s.cfg.Refunds.PackingCharge
	case models.OrderStatusShipped, models.OrderStatusOutForDelivery, models.OrderStatusDelivered:
		refund -= s.cfg.Refunds.ShippingCharge
	}

	if refund < 0 {
		return 0
	}
	return refund
}
