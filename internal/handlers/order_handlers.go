package handlers

import (
	"net/http"
	"strconv"
	"time"

	"pluspoint/internal/caching"
	"pluspoint/internal/common"
	"pluspoint/internal/models"
	"pluspoint/internal/services"

	"github.com/labstack/echo/v4"
)

const orderCacheTTL = 5 * time.Minute

// OrderHandlers handles HTTP requests for orders
type OrderHandlers struct {
	orderService services.OrderServiceInterface
	cache        caching.CacheService
}

// NewOrderHandlers creates a new order handlers instance
func NewOrderHandlers(orderService services.OrderServiceInterface, cache caching.CacheService) *OrderHandlers {
	return &OrderHandlers{
		orderService: orderService,
		cache:        cache,
	}
}

// CreateOrder handles POST /v1/orders
func (h *OrderHandlers) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()

	var req services.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	order, err := h.orderService.CreateOrder(ctx, &req)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	return c.JSON(http.StatusCreated, order)
}

// GetOrder handles GET /v1/orders/:id
func (h *OrderHandlers) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()

	orderID, err := common.ValidateUUID(c.Param("id"), "order_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	if cached, err := h.cache.GetOrder(ctx, orderID); err == nil && cached != nil {
		return c.JSON(http.StatusOK, cached)
	}

	order, err := h.orderService.GetOrderByID(ctx, orderID)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	if order == nil {
		return common.SendNotFoundError(c, "Order")
	}

	_ = h.cache.SetOrder(ctx, order, orderCacheTTL)
	return c.JSON(http.StatusOK, order)
}

// ListOrders handles GET /v1/orders
func (h *OrderHandlers) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	orders, err := h.orderService.ListOrders(ctx, limit, offset)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"orders": orders,
		"limit":  limit,
		"offset": offset,
	})
}

// UpdateOrderStatus handles PATCH /v1/orders/:id/status
func (h *OrderHandlers) UpdateOrderStatus(c echo.Context) error {
	ctx := c.Request().Context()

	orderID, err := common.ValidateUUID(c.Param("id"), "order_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	var req struct {
		Status string `json:"status"`
		Actor  string `json:"actor"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := common.ValidateRequiredString(req.Status, "status"); err != nil {
		return common.SendValidationError(c, "status", err.Error())
	}

	order, err := h.orderService.GetOrderByID(ctx, orderID)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	if order == nil {
		return common.SendNotFoundError(c, "Order")
	}

	updated, err := h.orderService.AdvanceStatus(ctx, order, models.OrderStatus(req.Status), req.Actor)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	if !updated {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "no_op",
			"reason": "order advanced concurrently",
		})
	}

	_ = h.cache.DeleteOrder(ctx, orderID)
	return c.JSON(http.StatusOK, order)
}

// CancelOrder handles POST /v1/orders/:id/cancel
func (h *OrderHandlers) CancelOrder(c echo.Context) error {
	ctx := c.Request().Context()

	orderID, err := common.ValidateUUID(c.Param("id"), "order_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	var req struct {
		Actor string `json:"actor"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	if err := h.orderService.CancelOrder(ctx, orderID, req.Actor); err != nil {
		return common.SendDomainError(c, err)
	}

	_ = h.cache.DeleteOrder(ctx, orderID)
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Order cancelled successfully",
	})
}

// ReturnOrder handles POST /v1/orders/:id/return
func (h *OrderHandlers) ReturnOrder(c echo.Context) error {
	ctx := c.Request().Context()

	orderID, err := common.ValidateUUID(c.Param("id"), "order_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	var req struct {
		Actor string `json:"actor"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	if err := h.orderService.ReturnOrder(ctx, orderID, req.Actor); err != nil {
		return common.SendDomainError(c, err)
	}

	_ = h.cache.DeleteOrder(ctx, orderID)
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Return started successfully",
	})
}

// GetRefundQuote handles GET /v1/orders/:id/refund-quote
func (h *OrderHandlers) GetRefundQuote(c echo.Context) error {
	ctx := c.Request().Context()

	orderID, err := common.ValidateUUID(c.Param("id"), "order_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	order, err := h.orderService.GetOrderByID(ctx, orderID)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	if order == nil {
		return common.SendNotFoundError(c, "Order")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"order_number":  order.OrderNumber,
		"status":        order.Status,
		"refund_amount": h.orderService.ComputeRefundAmount(order),
		"can_cancel":    h.orderService.CanCancel(order),
		"can_return":    h.orderService.CanReturn(order, time.Now()),
	})
}
