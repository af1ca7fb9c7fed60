package models

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceType selects the document series an invoice number is drawn from
type InvoiceType string

const (
	InvoiceTypeTax      InvoiceType = "tax_invoice"
	InvoiceTypeProforma InvoiceType = "proforma"
	InvoiceTypeCredit   InvoiceType = "credit_note"
	InvoiceTypeDebit    InvoiceType = "debit_note"
)

// InvoiceTypePrefix maps an invoice type to its number-series prefix
var InvoiceTypePrefix = map[InvoiceType]string{
	InvoiceTypeTax:      "INV",
	InvoiceTypeProforma: "PI",
	InvoiceTypeCredit:   "CN",
	InvoiceTypeDebit:    "DN",
}

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft      InvoiceStatus = "draft"
	InvoiceStatusGenerated  InvoiceStatus = "generated"
	InvoiceStatusSent       InvoiceStatus = "sent"
	InvoiceStatusViewed     InvoiceStatus = "viewed"
	InvoiceStatusDownloaded InvoiceStatus = "downloaded"
	InvoiceStatusPaid       InvoiceStatus = "paid"
	InvoiceStatusOverdue    InvoiceStatus = "overdue"
)

// InvoiceStatusRank orders invoice statuses so that engagement updates
// (viewed/downloaded) never move the status backwards. Overdue sits
// outside the rank and is handled separately.
var InvoiceStatusRank = map[InvoiceStatus]int{
	InvoiceStatusDraft:      0,
	InvoiceStatusGenerated:  1,
	InvoiceStatusSent:       2,
	InvoiceStatusViewed:     3,
	InvoiceStatusDownloaded: 4,
	InvoiceStatusPaid:       5,
}

// InvoiceItem is one billed line with its computed amount
type InvoiceItem struct {
	ProductID   uuid.UUID `json:"product_id"`
	Description string    `json:"description"`
	HSNSAC      *string   `json:"hsn_sac,omitempty"`
	Quantity    int       `json:"quantity"`
	Rate        float64   `json:"rate"`
	DiscountPct float64   `json:"discount_pct"`
	TaxRate     float64   `json:"tax_rate"`
	Amount      float64   `json:"amount"`
}

// InvoiceTotals is the GST breakdown for an invoice
type InvoiceTotals struct {
	Subtotal      float64 `json:"subtotal" db:"subtotal"`
	Discount      float64 `json:"discount" db:"discount"`
	TaxableAmount float64 `json:"taxable_amount" db:"taxable_amount"`
	CGST          float64 `json:"cgst" db:"cgst"`
	SGST          float64 `json:"sgst" db:"sgst"`
	IGST          float64 `json:"igst" db:"igst"`
	Cess          float64 `json:"cess" db:"cess"`
	TotalTax      float64 `json:"total_tax" db:"total_tax"`
	RoundOff      float64 `json:"round_off" db:"round_off"`
	GrandTotal    float64 `json:"grand_total" db:"grand_total"`
	AmountInWords string  `json:"amount_in_words" db:"amount_in_words"`
}

// PartyInfo is a business or customer snapshot copied onto the invoice
// at generation time. It is never refreshed from live records.
type PartyInfo struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	State   string  `json:"state"`
	GSTIN   *string `json:"gstin,omitempty"`
	Email   string  `json:"email,omitempty"`
	Phone   string  `json:"phone,omitempty"`
}

// ComplianceState tracks e-invoice issuance for B2B invoices above the
// government threshold.
type ComplianceState struct {
	EInvoiceRequired  bool       `json:"einvoice_required"`
	EInvoiceGenerated bool       `json:"einvoice_generated"`
	IRN               *string    `json:"irn,omitempty"`
	AckNumber         *string    `json:"ack_number,omitempty"`
	AckAt             *time.Time `json:"ack_at,omitempty"`
	EInvoiceError     *string    `json:"einvoice_error,omitempty"`
}

type Invoice struct {
	ID            uuid.UUID                                 `json:"id" db:"id"`
	OrderID       uuid.UUID                                 `json:"order_id" db:"order_id"`
	InvoiceNumber string                                    `json:"invoice_number" db:"invoice_number"`
	InvoiceType   InvoiceType                               `json:"invoice_type" db:"invoice_type"`
	Status        InvoiceStatus                             `json:"status" db:"status"`
	Business      PartyInfo                                 `json:"business"`
	Customer      PartyInfo                                 `json:"customer"`
	Items         []InvoiceItem                             `json:"items"`
	Totals        InvoiceTotals                             `json:"totals"`
	Compliance    ComplianceState                           `json:"compliance"`
	Delivery      map[DeliveryChannel]*DeliveryChannelState `json:"delivery"`
	AmountPaid    float64                                   `json:"amount_paid" db:"amount_paid"`
	AmountDue     float64                                   `json:"amount_due" db:"amount_due"`
	PaymentStatus PaymentStatus                             `json:"payment_status" db:"payment_status"`
	IssuedDate    time.Time                                 `json:"issued_date" db:"issued_date"`
	DueDate       time.Time                                 `json:"due_date" db:"due_date"`
	PaidAt        *time.Time                                `json:"paid_at" db:"paid_at"`
	ViewCount     int                                       `json:"view_count" db:"view_count"`
	DownloadCount int                                       `json:"download_count" db:"download_count"`
	FirstViewedAt *time.Time                                `json:"first_viewed_at" db:"first_viewed_at"`
	LastViewedAt  *time.Time                                `json:"last_viewed_at" db:"last_viewed_at"`
	TimeToPayment *time.Duration                            `json:"time_to_payment,omitempty"`
	PDFObjectKey  *string                                   `json:"pdf_object_key,omitempty" db:"pdf_object_key"`
	CreatedAt     time.Time                                 `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time                                 `json:"updated_at" db:"updated_at"`
}

// ChannelState returns the delivery state for channel, creating the
// zero record on first use.
func (inv *Invoice) ChannelState(channel DeliveryChannel) *DeliveryChannelState {
	if inv.Delivery == nil {
		inv.Delivery = make(map[DeliveryChannel]*DeliveryChannelState)
	}
	state, ok := inv.Delivery[channel]
	if !ok {
		state = &DeliveryChannelState{}
		inv.Delivery[channel] = state
	}
	return state
}
