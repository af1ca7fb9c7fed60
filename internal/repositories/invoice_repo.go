package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pluspoint/internal/common"
	"pluspoint/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateInvoice is returned when a non-draft invoice of the same
// type already exists for the order. Callers treat it as an idempotent
// skip, not a failure.
var ErrDuplicateInvoice = errors.New("invoice already exists for order")

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	GetByOrderAndType(ctx context.Context, orderID uuid.UUID, invoiceType models.InvoiceType) (*models.Invoice, error)
	UpdatePayment(ctx context.Context, invoice *models.Invoice) error
	UpdateEngagement(ctx context.Context, invoice *models.Invoice) error
	UpdateCompliance(ctx context.Context, invoice *models.Invoice) error
	UpdateDelivery(ctx context.Context, invoiceID uuid.UUID, delivery map[models.DeliveryChannel]*models.DeliveryChannelState) error
	UpdatePDFObjectKey(ctx context.Context, invoiceID uuid.UUID, objectKey string) error
	ListDuePastDate(ctx context.Context, asOf time.Time, limit int) ([]*models.Invoice, error)
	// MarkOverdueIf flips the invoice to overdue unless it has already
	// been paid or marked. Returns false when nothing changed.
	MarkOverdueIf(ctx context.Context, invoiceID uuid.UUID) (bool, error)
}

type invoiceRepo struct {
	db DB
}

func NewInvoiceRepo(db DB) InvoiceRepository {
	return &invoiceRepo{db: db}
}

const invoiceColumns = `id, order_id, invoice_number, invoice_type, status,
		business, customer, items, totals, compliance, delivery,
		amount_paid, amount_due, payment_status, issued_date, due_date, paid_at,
		view_count, download_count, first_viewed_at, last_viewed_at, pdf_object_key,
		created_at, updated_at`

func (r *invoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	businessJSON, err := json.Marshal(invoice.Business)
	if err != nil {
		return common.WrapPersistence("encode business snapshot", err)
	}
	customerJSON, err := json.Marshal(invoice.Customer)
	if err != nil {
		return common.WrapPersistence("encode customer snapshot", err)
	}
	itemsJSON, err := json.Marshal(invoice.Items)
	if err != nil {
		return common.WrapPersistence("encode invoice items", err)
	}
	totalsJSON, err := json.Marshal(invoice.Totals)
	if err != nil {
		return common.WrapPersistence("encode invoice totals", err)
	}
	complianceJSON, err := json.Marshal(invoice.Compliance)
	if err != nil {
		return common.WrapPersistence("encode compliance state", err)
	}
	deliveryJSON, err := json.Marshal(invoice.Delivery)
	if err != nil {
		return common.WrapPersistence("encode delivery state", err)
	}

	query := `
		INSERT INTO invoices (id, order_id, invoice_number, invoice_type, status,
			business, customer, items, totals, compliance, delivery,
			amount_paid, amount_due, payment_status, issued_date, due_date, paid_at,
			view_count, download_count, first_viewed_at, last_viewed_at, pdf_object_key,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, NOW(), NOW())
	`
	_, err = r.db.Exec(ctx, query,
		invoice.ID, invoice.OrderID, invoice.InvoiceNumber, invoice.InvoiceType, invoice.Status,
		businessJSON, customerJSON, itemsJSON, totalsJSON, complianceJSON, deliveryJSON,
		invoice.AmountPaid, invoice.AmountDue, invoice.PaymentStatus, invoice.IssuedDate, invoice.DueDate, invoice.PaidAt,
		invoice.ViewCount, invoice.DownloadCount, invoice.FirstViewedAt, invoice.LastViewedAt, invoice.PDFObjectKey)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// The partial unique index on (order_id, invoice_type) for
			// non-draft invoices means a duplicate here is the
			// idempotency guard firing, not a numbering collision.
			if pgErr.ConstraintName == "invoices_order_type_unique" {
				return ErrDuplicateInvoice
			}
			return &common.AllocationConflictError{Identifier: invoice.InvoiceNumber}
		}
		return common.WrapPersistence("insert invoice", err)
	}
	return nil
}

func (r *invoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return r.getOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

func (r *invoiceRepo) GetByOrderAndType(ctx context.Context, orderID uuid.UUID, invoiceType models.InvoiceType) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE order_id = $1 AND invoice_type = $2 AND status <> 'draft' ORDER BY created_at LIMIT 1`
	invoice := &models.Invoice{}
	var businessJSON, customerJSON, itemsJSON, totalsJSON, complianceJSON, deliveryJSON []byte
	err := r.db.QueryRow(ctx, query, orderID, invoiceType).Scan(
		&invoice.ID, &invoice.OrderID, &invoice.InvoiceNumber, &invoice.InvoiceType, &invoice.Status,
		&businessJSON, &customerJSON, &itemsJSON, &totalsJSON, &complianceJSON, &deliveryJSON,
		&invoice.AmountPaid, &invoice.AmountDue, &invoice.PaymentStatus, &invoice.IssuedDate, &invoice.DueDate, &invoice.PaidAt,
		&invoice.ViewCount, &invoice.DownloadCount, &invoice.FirstViewedAt, &invoice.LastViewedAt, &invoice.PDFObjectKey,
		&invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, common.WrapPersistence("get invoice by order", err)
	}
	if err := decodeInvoiceJSON(invoice, businessJSON, customerJSON, itemsJSON, totalsJSON, complianceJSON, deliveryJSON); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (r *invoiceRepo) getOne(ctx context.Context, query string, arg any) (*models.Invoice, error) {
	invoice := &models.Invoice{}
	var businessJSON, customerJSON, itemsJSON, totalsJSON, complianceJSON, deliveryJSON []byte
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&invoice.ID, &invoice.OrderID, &invoice.InvoiceNumber, &invoice.InvoiceType, &invoice.Status,
		&businessJSON, &customerJSON, &itemsJSON, &totalsJSON, &complianceJSON, &deliveryJSON,
		&invoice.AmountPaid, &invoice.AmountDue, &invoice.PaymentStatus, &invoice.IssuedDate, &invoice.DueDate, &invoice.PaidAt,
		&invoice.ViewCount, &invoice.DownloadCount, &invoice.FirstViewedAt, &invoice.LastViewedAt, &invoice.PDFObjectKey,
		&invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, common.WrapPersistence("get invoice", err)
	}
	if err := decodeInvoiceJSON(invoice, businessJSON, customerJSON, itemsJSON, totalsJSON, complianceJSON, deliveryJSON); err != nil {
		return nil, err
	}
	return invoice, nil
}

func decodeInvoiceJSON(invoice *models.Invoice, business, customer, items, totals, compliance, delivery []byte) error {
	if err := json.Unmarshal(business, &invoice.Business); err != nil {
		return common.WrapPersistence("decode business snapshot", err)
	}
	if err := json.Unmarshal(customer, &invoice.Customer); err != nil {
		return common.WrapPersistence("decode customer snapshot", err)
	}
	if err := json.Unmarshal(items, &invoice.Items); err != nil {
		return common.WrapPersistence("decode invoice items", err)
	}
	if err := json.Unmarshal(totals, &invoice.Totals); err != nil {
		return common.WrapPersistence("decode invoice totals", err)
	}
	if err := json.Unmarshal(compliance, &invoice.Compliance); err != nil {
		return common.WrapPersistence("decode compliance state", err)
	}
	if len(delivery) > 0 {
		if err := json.Unmarshal(delivery, &invoice.Delivery); err != nil {
			return common.WrapPersistence("decode delivery state", err)
		}
	}
	return nil
}

func (r *invoiceRepo) UpdatePayment(ctx context.Context, invoice *models.Invoice) error {
	query := `
		UPDATE invoices
		SET amount_paid = $1, amount_due = $2, payment_status = $3, status = $4, paid_at = $5, updated_at = NOW()
		WHERE id = $6
	`
	_, err := r.db.Exec(ctx, query, invoice.AmountPaid, invoice.AmountDue, invoice.PaymentStatus, invoice.Status, invoice.PaidAt, invoice.ID)
	return common.WrapPersistence("update invoice payment", err)
}

func (r *invoiceRepo) UpdateEngagement(ctx context.Context, invoice *models.Invoice) error {
	query := `
		UPDATE invoices
		SET status = $1, view_count = $2, download_count = $3, first_viewed_at = $4, last_viewed_at = $5, updated_at = NOW()
		WHERE id = $6
	`
	_, err := r.db.Exec(ctx, query, invoice.Status, invoice.ViewCount, invoice.DownloadCount,
		invoice.FirstViewedAt, invoice.LastViewedAt, invoice.ID)
	return common.WrapPersistence("update invoice engagement", err)
}

func (r *invoiceRepo) UpdateCompliance(ctx context.Context, invoice *models.Invoice) error {
	complianceJSON, err := json.Marshal(invoice.Compliance)
	if err != nil {
		return common.WrapPersistence("encode compliance state", err)
	}
	query := `UPDATE invoices SET compliance = $1, updated_at = NOW() WHERE id = $2`
	_, err = r.db.Exec(ctx, query, complianceJSON, invoice.ID)
	return common.WrapPersistence("update invoice compliance", err)
}

func (r *invoiceRepo) UpdateDelivery(ctx context.Context, invoiceID uuid.UUID, delivery map[models.DeliveryChannel]*models.DeliveryChannelState) error {
	deliveryJSON, err := json.Marshal(delivery)
	if err != nil {
		return common.WrapPersistence("encode delivery state", err)
	}
	query := `UPDATE invoices SET delivery = $1, updated_at = NOW() WHERE id = $2`
	_, err = r.db.Exec(ctx, query, deliveryJSON, invoiceID)
	return common.WrapPersistence("update invoice delivery", err)
}

func (r *invoiceRepo) UpdatePDFObjectKey(ctx context.Context, invoiceID uuid.UUID, objectKey string) error {
	query := `UPDATE invoices SET pdf_object_key = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Exec(ctx, query, objectKey, invoiceID)
	return common.WrapPersistence("update invoice pdf key", err)
}

func (r *invoiceRepo) ListDuePastDate(ctx context.Context, asOf time.Time, limit int) ([]*models.Invoice, error) {
	query := `
		SELECT id FROM invoices
		WHERE due_date < $1 AND status NOT IN ('paid', 'overdue')
		ORDER BY due_date ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, common.WrapPersistence("list due invoices", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, common.WrapPersistence("scan invoice id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	invoices := make([]*models.Invoice, 0, len(ids))
	for _, id := range ids {
		invoice, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if invoice != nil {
			invoices = append(invoices, invoice)
		}
	}
	return invoices, nil
}

func (r *invoiceRepo) MarkOverdueIf(ctx context.Context, invoiceID uuid.UUID) (bool, error) {
	query := `
		UPDATE invoices
		SET status = 'overdue', updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('paid', 'overdue')
	`
	tag, err := r.db.Exec(ctx, query, invoiceID)
	if err != nil {
		return false, common.WrapPersistence("mark invoice overdue", err)
	}
	return tag.RowsAffected() > 0, nil
}
