package repositories

import (
	"context"
	"fmt"
	"time"

	"pluspoint/internal/common"
	"pluspoint/internal/models"
)

// SequenceKind scopes a number series to an entity family
type SequenceKind string

const (
	SequenceKindOrder   SequenceKind = "order"
	SequenceKindInvoice SequenceKind = "invoice"
)

const orderNumberPrefix = "PP"

// SequenceRepository issues unique, monotonically increasing,
// human-readable identifiers scoped by (kind, sub-type, period). These
// numbers exist for ordering and readability only, not for audit or
// security.
type SequenceRepository interface {
	Allocate(ctx context.Context, kind SequenceKind, subType, period string) (string, error)
	OrderNumber(ctx context.Context, at time.Time) (string, error)
	InvoiceNumber(ctx context.Context, invoiceType models.InvoiceType, at time.Time) (string, error)
}

type sequenceRepo struct {
	db DB
}

func NewSequenceRepo(db DB) SequenceRepository {
	return &sequenceRepo{db: db}
}

// Allocate increments and returns the next number for the series as a
// formatted identifier. The increment is a single atomic upsert, so two
// concurrent allocations for the same series can never observe the same
// counter value.
func (r *sequenceRepo) Allocate(ctx context.Context, kind SequenceKind, subType, period string) (string, error) {
	query := `
		WITH upsert AS (
			INSERT INTO number_sequences (kind, sub_type, period, last_number, updated_at)
			VALUES ($1, $2, $3, 1, NOW())
			ON CONFLICT (kind, sub_type, period)
			DO UPDATE SET
				last_number = number_sequences.last_number + 1,
				updated_at = NOW()
			RETURNING last_number
		)
		SELECT last_number FROM upsert;
	`

	var sequenceNum int
	err := r.db.QueryRow(ctx, query, string(kind), subType, period).Scan(&sequenceNum)
	if err != nil {
		return "", common.WrapPersistence("allocate sequence number", err)
	}

	prefix := subType
	if kind == SequenceKindOrder {
		prefix = orderNumberPrefix
	}

	return fmt.Sprintf("%s%s%04d", prefix, period, sequenceNum), nil
}

// OrderNumber allocates the next order number: PP{YY}{MM}{DD}{SEQ:4},
// one series per calendar day.
func (r *sequenceRepo) OrderNumber(ctx context.Context, at time.Time) (string, error) {
	return r.Allocate(ctx, SequenceKindOrder, "", at.Format("060102"))
}

// InvoiceNumber allocates the next invoice number:
// {TYPE_PREFIX}{YY}{MM}{SEQ:4}, one series per type per month.
func (r *sequenceRepo) InvoiceNumber(ctx context.Context, invoiceType models.InvoiceType, at time.Time) (string, error) {
	prefix, ok := models.InvoiceTypePrefix[invoiceType]
	if !ok {
		return "", common.NewValidationError("invoice_type", fmt.Sprintf("unknown invoice type %q", invoiceType))
	}
	return r.Allocate(ctx, SequenceKindInvoice, prefix, at.Format("0601"))
}
