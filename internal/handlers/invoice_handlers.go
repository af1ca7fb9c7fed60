package handlers

import (
	"fmt"
	"net/http"
	"time"

	"pluspoint/internal/caching"
	"pluspoint/internal/common"
	"pluspoint/internal/models"
	"pluspoint/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	invoiceCacheTTL = 5 * time.Minute

	// Engagement endpoints are hit by customer-facing links and must
	// survive a misbehaving client refreshing in a loop.
	engagementRateLimit  = 60
	engagementRateWindow = time.Minute
)

// InvoiceHandlers handles HTTP requests for invoices
type InvoiceHandlers struct {
	invoiceService  services.InvoiceServiceInterface
	deliveryService services.DeliveryServiceInterface
	orderService    services.OrderServiceInterface
	cache           caching.CacheService
}

// NewInvoiceHandlers creates a new invoice handlers instance
func NewInvoiceHandlers(invoiceService services.InvoiceServiceInterface,
	deliveryService services.DeliveryServiceInterface,
	orderService services.OrderServiceInterface,
	cache caching.CacheService) *InvoiceHandlers {
	return &InvoiceHandlers{
		invoiceService:  invoiceService,
		deliveryService: deliveryService,
		orderService:    orderService,
		cache:           cache,
	}
}

func (h *InvoiceHandlers) engagementLimited(c echo.Context, invoiceID uuid.UUID) (bool, error) {
	key := fmt.Sprintf("engagement:%s", invoiceID)
	limited, err := h.cache.IsRateLimited(c.Request().Context(), key, engagementRateLimit, engagementRateWindow)
	if err != nil {
		// Redis being down never blocks an engagement signal.
		return false, nil
	}
	if limited {
		return true, c.JSON(http.StatusTooManyRequests, map[string]string{
			"error": "Too many requests, slow down",
		})
	}
	return false, nil
}

// GetInvoice handles GET /v1/invoices/:id
func (h *InvoiceHandlers) GetInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	invoiceID, err := common.ValidateUUID(c.Param("id"), "invoice_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	if cached, err := h.cache.GetInvoice(ctx, invoiceID); err == nil && cached != nil {
		return c.JSON(http.StatusOK, cached)
	}

	invoice, err := h.invoiceService.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	if invoice == nil {
		return common.SendNotFoundError(c, "Invoice")
	}

	_ = h.cache.SetInvoice(ctx, invoice, invoiceCacheTTL)
	return c.JSON(http.StatusOK, invoice)
}

// GenerateInvoice handles POST /v1/orders/:id/invoices
func (h *InvoiceHandlers) GenerateInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	orderID, err := common.ValidateUUID(c.Param("id"), "order_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	var req struct {
		InvoiceType string `json:"invoice_type"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	invoiceType := models.InvoiceType(req.InvoiceType)
	if req.InvoiceType == "" {
		invoiceType = models.InvoiceTypeTax
	}

	order, err := h.orderService.GetOrderByID(ctx, orderID)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	if order == nil {
		return common.SendNotFoundError(c, "Order")
	}

	invoice, created, err := h.invoiceService.GenerateFromOrder(ctx, order, invoiceType)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, invoice)
}

// RecordPayment handles POST /v1/invoices/:id/payments
func (h *InvoiceHandlers) RecordPayment(c echo.Context) error {
	ctx := c.Request().Context()

	invoiceID, err := common.ValidateUUID(c.Param("id"), "invoice_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	var req struct {
		Amount float64    `json:"amount"`
		PaidAt *time.Time `json:"paid_at"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	paidAt := time.Now()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}

	invoice, err := h.invoiceService.RecordPayment(ctx, invoiceID, req.Amount, paidAt)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	_ = h.cache.DeleteInvoice(ctx, invoiceID)
	return c.JSON(http.StatusOK, invoice)
}

// MarkViewed handles POST /v1/invoices/:id/viewed
func (h *InvoiceHandlers) MarkViewed(c echo.Context) error {
	ctx := c.Request().Context()

	invoiceID, err := common.ValidateUUID(c.Param("id"), "invoice_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	if limited, resp := h.engagementLimited(c, invoiceID); limited {
		return resp
	}

	invoice, err := h.invoiceService.MarkViewed(ctx, invoiceID)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	_ = h.cache.DeleteInvoice(ctx, invoiceID)
	return c.JSON(http.StatusOK, invoice)
}

// MarkDownloaded handles POST /v1/invoices/:id/downloaded
func (h *InvoiceHandlers) MarkDownloaded(c echo.Context) error {
	ctx := c.Request().Context()

	invoiceID, err := common.ValidateUUID(c.Param("id"), "invoice_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	if limited, resp := h.engagementLimited(c, invoiceID); limited {
		return resp
	}

	invoice, err := h.invoiceService.MarkDownloaded(ctx, invoiceID)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	_ = h.cache.DeleteInvoice(ctx, invoiceID)
	return c.JSON(http.StatusOK, invoice)
}

// GenerateEInvoice handles POST /v1/invoices/:id/einvoice
func (h *InvoiceHandlers) GenerateEInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	invoiceID, err := common.ValidateUUID(c.Param("id"), "invoice_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	invoice, err := h.invoiceService.GenerateEInvoice(ctx, invoiceID)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	_ = h.cache.DeleteInvoice(ctx, invoiceID)
	return c.JSON(http.StatusOK, invoice.Compliance)
}

// GeneratePDF handles POST /v1/invoices/:id/generate-pdf
func (h *InvoiceHandlers) GeneratePDF(c echo.Context) error {
	ctx := c.Request().Context()

	invoiceID, err := common.ValidateUUID(c.Param("id"), "invoice_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	url, err := h.invoiceService.GeneratePDF(ctx, invoiceID)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	_ = h.cache.DeleteInvoice(ctx, invoiceID)
	return c.JSON(http.StatusOK, map[string]string{
		"download_url": url,
	})
}

// RecordDelivery handles POST /v1/invoices/:id/delivery
// Provider delivery receipts land here.
func (h *InvoiceHandlers) RecordDelivery(c echo.Context) error {
	ctx := c.Request().Context()

	invoiceID, err := common.ValidateUUID(c.Param("id"), "invoice_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	var req struct {
		Channel           string  `json:"channel"`
		ProviderMessageID *string `json:"provider_message_id"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	invoice, err := h.deliveryService.RecordDelivered(ctx, invoiceID, models.DeliveryChannel(req.Channel), req.ProviderMessageID)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	_ = h.cache.DeleteInvoice(ctx, invoiceID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"delivery":     invoice.Delivery,
		"success_rate": h.deliveryService.SuccessRate(invoice),
	})
}

// GetDeliveryStatus handles GET /v1/invoices/:id/delivery
func (h *InvoiceHandlers) GetDeliveryStatus(c echo.Context) error {
	ctx := c.Request().Context()

	invoiceID, err := common.ValidateUUID(c.Param("id"), "invoice_id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	invoice, err := h.invoiceService.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	if invoice == nil {
		return common.SendNotFoundError(c, "Invoice")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"delivery":     invoice.Delivery,
		"success_rate": h.deliveryService.SuccessRate(invoice),
	})
}
