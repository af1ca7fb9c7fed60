package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"pluspoint/internal/common"
	"pluspoint/internal/config"
	"pluspoint/internal/models"
	"pluspoint/internal/repositories"

	"github.com/google/uuid"
)

const (
	invoiceBucket   = "invoices"
	overdueBatchMax = 100
)

type InvoiceServiceInterface interface {
	// GenerateFromOrder creates the invoice of the given type for the
	// order, exactly once. The bool reports whether this call created
	// it; false means a previous call already had.
	GenerateFromOrder(ctx context.Context, order *models.Order, invoiceType models.InvoiceType) (*models.Invoice, bool, error)
	GetInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	GetByOrderAndType(ctx context.Context, orderID uuid.UUID, invoiceType models.InvoiceType) (*models.Invoice, error)

	RecordPayment(ctx context.Context, invoiceID uuid.UUID, amount float64, paidAt time.Time) (*models.Invoice, error)
	ApplyRefund(ctx context.Context, invoiceID uuid.UUID, amount float64) (*models.Invoice, error)
	MarkViewed(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	MarkDownloaded(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)

	GenerateEInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	GeneratePDF(ctx context.Context, invoiceID uuid.UUID) (string, error)
	MarkOverdueInvoices(ctx context.Context, asOf time.Time) (int, error)
}

type invoiceService struct {
	invoiceRepo  repositories.InvoiceRepository
	sequenceRepo repositories.SequenceRepository
	taxService   TaxServiceInterface
	storage      StorageService
	cfg          *config.Config
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(invoiceRepo repositories.InvoiceRepository, sequenceRepo repositories.SequenceRepository,
	taxService TaxServiceInterface, storage StorageService, cfg *config.Config) InvoiceServiceInterface {
	return &invoiceService{
		invoiceRepo:  invoiceRepo,
		sequenceRepo: sequenceRepo,
		taxService:   taxService,
		storage:      storage,
		cfg:          cfg,
	}
}

func (s *invoiceService) GenerateFromOrder(ctx context.Context, order *models.Order, invoiceType models.InvoiceType) (*models.Invoice, bool, error) {
	if _, ok := models.InvoiceTypePrefix[invoiceType]; !ok {
		return nil, false, common.NewValidationError("invoice_type", fmt.Sprintf("unknown invoice type %q", invoiceType))
	}
	if invoiceType != models.InvoiceTypeProforma && !order.IsConfirmedOrLater() {
		return nil, false, common.NewPreconditionFailed("generate invoice",
			fmt.Sprintf("order %s is not confirmed yet", order.OrderNumber))
	}

	existing, err := s.invoiceRepo.GetByOrderAndType(ctx, order.ID, invoiceType)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	tax := s.taxService.ComputeInvoiceTax(order.Items, s.cfg.Business.State, order.Shipping.State, order.CustomerGSTIN, 0)

	now := time.Now()
	invoice := &models.Invoice{
		ID:          uuid.New(),
		OrderID:     order.ID,
		InvoiceType: invoiceType,
		Status:      models.InvoiceStatusGenerated,
		Business: models.PartyInfo{
			Name:    s.cfg.Business.Name,
			Address: s.cfg.Business.Address,
			State:   s.cfg.Business.State,
			GSTIN:   common.StringPtr(s.cfg.Business.GSTIN),
		},
		Customer: models.PartyInfo{
			Name:    order.CustomerName,
			Address: formatShippingAddress(order.Shipping),
			State:   order.Shipping.State,
			GSTIN:   order.CustomerGSTIN,
			Email:   order.CustomerEmail,
			Phone:   order.CustomerPhone,
		},
		Items:  tax.Items,
		Totals: tax.Totals,
		Compliance: models.ComplianceState{
			EInvoiceRequired: tax.EInvoiceRequired,
		},
		Delivery:      make(map[models.DeliveryChannel]*models.DeliveryChannelState),
		AmountDue:     tax.Totals.GrandTotal,
		PaymentStatus: models.PaymentStatusPending,
		IssuedDate:    now,
		DueDate:       now.AddDate(0, 0, s.cfg.Tax.InvoiceDueDays),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// The unique constraint on (order, type) is the backstop: if two
	// confirmations race past the existence check, exactly one insert
	// wins and the loser adopts the winner's invoice.
	for attempt := 0; attempt < allocationRetries; attempt++ {
		number, err := s.sequenceRepo.InvoiceNumber(ctx, invoiceType, now)
		if err != nil {
			return nil, false, err
		}
		invoice.InvoiceNumber = number

		err = s.invoiceRepo.Create(ctx, invoice)
		if err == nil {
			return invoice, true, nil
		}
		if errors.Is(err, repositories.ErrDuplicateInvoice) {
			winner, getErr := s.invoiceRepo.GetByOrderAndType(ctx, order.ID, invoiceType)
			if getErr != nil {
				return nil, false, getErr
			}
			return winner, false, nil
		}
		if !common.IsAllocationConflict(err) {
			return nil, false, err
		}
	}
	return nil, false, &common.AllocationConflictError{Identifier: invoice.InvoiceNumber}
}

func (s *invoiceService) GetInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.invoiceRepo.GetByID(ctx, invoiceID)
}

func (s *invoiceService) GetByOrderAndType(ctx context.Context, orderID uuid.UUID, invoiceType models.InvoiceType) (*models.Invoice, error) {
	return s.invoiceRepo.GetByOrderAndType(ctx, orderID, invoiceType)
}

// RecordPayment applies a payment against the invoice balance. Partial
// amounts accumulate; the invoice flips to paid only when the balance
// reaches zero, at which point the payment latency is captured.
func (s *invoiceService) RecordPayment(ctx context.Context, invoiceID uuid.UUID, amount float64, paidAt time.Time) (*models.Invoice, error) {
	if err := common.ValidatePositiveAmount(amount, "amount", 100000000); err != nil {
		return nil, err
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, common.NewValidationError("invoice_id", "invoice not found")
	}
	if invoice.PaymentStatus == models.PaymentStatusPaid {
		return invoice, common.NewPreconditionFailed("record payment",
			fmt.Sprintf("invoice %s is already fully paid", invoice.InvoiceNumber))
	}

	invoice.AmountPaid += amount
	invoice.AmountDue = invoice.Totals.GrandTotal - invoice.AmountPaid
	if invoice.AmountDue <= 0 {
		invoice.AmountDue = 0
		invoice.PaymentStatus = models.PaymentStatusPaid
		invoice.Status = models.InvoiceStatusPaid
		invoice.PaidAt = &paidAt
		// Payment latency runs from first view when the customer opened
		// the invoice, from issue otherwise.
		since := invoice.IssuedDate
		if invoice.FirstViewedAt != nil {
			since = *invoice.FirstViewedAt
		}
		latency := paidAt.Sub(since)
		invoice.TimeToPayment = &latency
	} else {
		invoice.PaymentStatus = models.PaymentStatusPartiallyPaid
	}

	if err := s.invoiceRepo.UpdatePayment(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// ApplyRefund backs a refunded amount out of the invoice's payment
// bookkeeping. A full refund flips the payment status to refunded; a
// partial one leaves the invoice partially paid with the balance reopened.
func (s *invoiceService) ApplyRefund(ctx context.Context, invoiceID uuid.UUID, amount float64) (*models.Invoice, error) {
	if err := common.ValidatePositiveAmount(amount, "amount", 100000000); err != nil {
		return nil, err
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, common.NewValidationError("invoice_id", "invoice not found")
	}
	if invoice.AmountPaid <= 0 {
		return invoice, common.NewPreconditionFailed("apply refund",
			fmt.Sprintf("no payment recorded on invoice %s", invoice.InvoiceNumber))
	}

	if amount > invoice.AmountPaid {
		amount = invoice.AmountPaid
	}
	invoice.AmountPaid -= amount
	invoice.AmountDue = invoice.Totals.GrandTotal - invoice.AmountPaid
	if invoice.AmountPaid <= 0 {
		invoice.AmountPaid = 0
		invoice.PaymentStatus = models.PaymentStatusRefunded
	} else {
		invoice.PaymentStatus = models.PaymentStatusPartiallyPaid
	}

	if err := s.invoiceRepo.UpdatePayment(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) MarkViewed(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.recordEngagement(ctx, invoiceID, models.InvoiceStatusViewed, func(inv *models.Invoice, now time.Time) {
		inv.ViewCount++
		if inv.FirstViewedAt == nil {
			inv.FirstViewedAt = &now
		}
		inv.LastViewedAt = &now
	})
}

func (s *invoiceService) MarkDownloaded(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.recordEngagement(ctx, invoiceID, models.InvoiceStatusDownloaded, func(inv *models.Invoice, now time.Time) {
		inv.DownloadCount++
	})
}

// recordEngagement bumps counters and advances the status, but only
// forward: a view after payment never demotes a paid invoice.
func (s *invoiceService) recordEngagement(ctx context.Context, invoiceID uuid.UUID, target models.InvoiceStatus, apply func(*models.Invoice, time.Time)) (*models.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, common.NewValidationError("invoice_id", "invoice not found")
	}

	apply(invoice, time.Now())

	currentRank, ranked := models.InvoiceStatusRank[invoice.Status]
	if ranked && currentRank < models.InvoiceStatusRank[target] {
		invoice.Status = target
	}

	if err := s.invoiceRepo.UpdateEngagement(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// GenerateEInvoice registers the invoice with the e-invoice portal and
// stores the returned IRN. Only B2B invoices above the threshold
// qualify; a repeat call returns the already-issued IRN untouched.
func (s *invoiceService) GenerateEInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, common.NewValidationError("invoice_id", "invoice not found")
	}
	if !invoice.Compliance.EInvoiceRequired {
		return invoice, common.NewPreconditionFailed("generate e-invoice",
			fmt.Sprintf("invoice %s does not require an e-invoice", invoice.InvoiceNumber))
	}
	if invoice.Compliance.EInvoiceGenerated {
		return invoice, nil
	}

	now := time.Now()
	irn := generateIRN(invoice)
	ack := fmt.Sprintf("ACK%d", now.UnixNano())
	invoice.Compliance.EInvoiceGenerated = true
	invoice.Compliance.IRN = &irn
	invoice.Compliance.AckNumber = &ack
	invoice.Compliance.AckAt = &now
	invoice.Compliance.EInvoiceError = nil

	if err := s.invoiceRepo.UpdateCompliance(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// generateIRN derives the invoice reference number the way the portal
// does: a hash over the seller GSTIN, document number and fiscal year.
func generateIRN(invoice *models.Invoice) string {
	seed := fmt.Sprintf("%s|%s|%d", common.SafeString(invoice.Business.GSTIN),
		invoice.InvoiceNumber, invoice.IssuedDate.Year())
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// GeneratePDF renders the invoice, archives it in object storage and
// returns a presigned download URL.
func (s *invoiceService) GeneratePDF(ctx context.Context, invoiceID uuid.UUID) (string, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	if invoice == nil {
		return "", common.NewValidationError("invoice_id", "invoice not found")
	}

	pdfBytes, err := renderInvoicePDF(invoice)
	if err != nil {
		return "", fmt.Errorf("failed to render invoice PDF: %w", err)
	}

	objectKey := fmt.Sprintf("%s/%s.pdf", invoice.IssuedDate.Format("2006/01"), invoice.InvoiceNumber)
	if err := s.storage.EnsureBucketExists(ctx, invoiceBucket); err != nil {
		return "", fmt.Errorf("failed to ensure invoice bucket: %w", err)
	}
	if err := s.storage.UploadPDF(ctx, invoiceBucket, objectKey, bytes.NewReader(pdfBytes), int64(len(pdfBytes))); err != nil {
		return "", fmt.Errorf("failed to upload invoice PDF: %w", err)
	}
	if err := s.invoiceRepo.UpdatePDFObjectKey(ctx, invoice.ID, objectKey); err != nil {
		return "", err
	}

	url, err := s.storage.GetPresignedURL(invoiceBucket, objectKey, 24*time.Hour)
	if err != nil {
		return "", fmt.Errorf("failed to presign invoice PDF: %w", err)
	}
	return url, nil
}

// MarkOverdueInvoices flips unpaid invoices past their due date to
// overdue and returns how many were flipped. Run from the scheduler.
func (s *invoiceService) MarkOverdueInvoices(ctx context.Context, asOf time.Time) (int, error) {
	due, err := s.invoiceRepo.ListDuePastDate(ctx, asOf, overdueBatchMax)
	if err != nil {
		return 0, err
	}

	flipped := 0
	for _, invoice := range due {
		ok, err := s.invoiceRepo.MarkOverdueIf(ctx, invoice.ID)
		if err != nil {
			log.Printf("Failed to mark invoice %s overdue: %v", invoice.InvoiceNumber, err)
			continue
		}
		if ok {
			flipped++
		}
	}
	return flipped, nil
}

func formatShippingAddress(s models.ShippingInfo) string {
	address := s.Line1
	if s.Line2 != "" {
		address += ", " + s.Line2
	}
	return fmt.Sprintf("%s, %s, %s - %s", address, s.City, s.State, s.Pincode)
}
