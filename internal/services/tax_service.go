package services

import (
	"fmt"
	"math"
	"strings"

	"pluspoint/internal/common"
	"pluspoint/internal/models"
)

// TaxServiceInterface computes GST breakdowns for invoices. The engine
// is pure: fully deterministic for a given input, no I/O, no hidden
// state.
type TaxServiceInterface interface {
	ComputeInvoiceTax(items []models.OrderItem, businessState, customerState string, customerGSTIN *string, invoiceDiscount float64) *TaxResult
}

// TaxResult is the full computed breakdown for one invoice
type TaxResult struct {
	Items            []models.InvoiceItem
	Totals           models.InvoiceTotals
	EInvoiceRequired bool
}

type taxService struct {
	einvoiceThreshold float64
}

// NewTaxService creates a tax engine with the given e-invoice threshold
// (currency units; B2B invoices at or above it need an e-invoice).
func NewTaxService(einvoiceThreshold float64) TaxServiceInterface {
	return &taxService{einvoiceThreshold: einvoiceThreshold}
}

// ComputeInvoiceTax computes per-line amounts and the aggregate GST
// split. Same-state transactions split the tax evenly into CGST and
// SGST; cross-state transactions charge the full rate as IGST. Exactly
// one of the two is ever nonzero.
func (s *taxService) ComputeInvoiceTax(items []models.OrderItem, businessState, customerState string, customerGSTIN *string, invoiceDiscount float64) *TaxResult {
	result := &TaxResult{}
	intraState := common.SameState(businessState, customerState)

	var subtotal, itemDiscount, taxSum float64
	for _, item := range items {
		gross := item.UnitPrice * float64(item.Quantity)
		discountAmount := gross * item.DiscountPct / 100
		taxableLine := gross - discountAmount
		lineAmount := taxableLine * (1 + item.TaxRate/100)

		subtotal += taxableLine
		itemDiscount += discountAmount
		taxSum += taxableLine * item.TaxRate / 100

		result.Items = append(result.Items, models.InvoiceItem{
			ProductID:   item.ProductID,
			Description: item.ProductName,
			Quantity:    item.Quantity,
			Rate:        item.UnitPrice,
			DiscountPct: item.DiscountPct,
			TaxRate:     item.TaxRate,
			Amount:      lineAmount,
		})
	}

	totals := &result.Totals
	totals.Subtotal = subtotal
	totals.Discount = itemDiscount + invoiceDiscount
	totals.TaxableAmount = subtotal - invoiceDiscount

	if intraState {
		totals.CGST = taxSum / 2
		totals.SGST = taxSum / 2
	} else {
		totals.IGST = taxSum
	}
	totals.TotalTax = totals.CGST + totals.SGST + totals.IGST + totals.Cess

	exact := totals.TaxableAmount + totals.TotalTax
	totals.GrandTotal = roundHalfUp(exact)
	totals.RoundOff = totals.GrandTotal - exact
	totals.AmountInWords = AmountInWords(totals.GrandTotal)

	// E-invoicing applies to B2B transactions (customer holds a GSTIN)
	// at or above the government threshold.
	result.EInvoiceRequired = common.SafeString(customerGSTIN) != "" && totals.GrandTotal >= s.einvoiceThreshold

	return result
}

// roundHalfUp rounds to the nearest whole currency unit, halves away
// from zero.
func roundHalfUp(value float64) float64 {
	return math.Floor(value + 0.5)
}

var onesWords = []string{"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine", "Ten",
	"Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen", "Seventeen", "Eighteen", "Nineteen"}

var tensWords = []string{"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety"}

// AmountInWords renders the whole-rupee part of an amount in the Indian
// numbering system (crore/lakh/thousand). Paise are ignored; invoice
// grand totals are already rounded to whole rupees.
func AmountInWords(amount float64) string {
	rupees := int64(math.Abs(amount))
	if rupees == 0 {
		return "Rupees Zero Only"
	}

	var parts []string
	appendGroup := func(n int64, label string) {
		if n > 0 {
			parts = append(parts, strings.TrimSpace(threeDigitWords(int(n))+" "+label))
		}
	}

	appendGroup(rupees/10000000, "Crore")
	appendGroup((rupees/100000)%100, "Lakh")
	appendGroup((rupees/1000)%100, "Thousand")
	if n := rupees % 1000; n > 0 {
		parts = append(parts, threeDigitWords(int(n)))
	}

	return fmt.Sprintf("Rupees %s Only", strings.Join(parts, " "))
}

func threeDigitWords(n int) string {
	var parts []string
	if n >= 100 {
		parts = append(parts, onesWords[n/100]+" Hundred")
		n %= 100
	}
	if n >= 20 {
		word := tensWords[n/10]
		if n%10 > 0 {
			word += " " + onesWords[n%10]
		}
		parts = append(parts, word)
	} else if n > 0 {
		parts = append(parts, onesWords[n])
	}
	return strings.Join(parts, " ")
}
