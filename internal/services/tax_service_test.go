package services

import (
	"testing"

	"pluspoint/internal/common"
	"pluspoint/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taxItem(price float64, qty int, taxRate, discountPct float64) models.OrderItem {
	return models.OrderItem{
		ProductID:   uuid.New(),
		ProductName: "Test Product",
		Quantity:    qty,
		UnitPrice:   price,
		TaxRate:     taxRate,
		DiscountPct: discountPct,
	}
}

func TestComputeInvoiceTax_IntraStateSplitsCGSTSGST(t *testing.T) {
	svc := NewTaxService(500000)

	items := []models.OrderItem{taxItem(1000, 2, 18, 0)}
	result := svc.ComputeInvoiceTax(items, "Karnataka", "Karnataka", nil, 0)

	assert.InDelta(t, 2000, result.Totals.Subtotal, 0.001)
	assert.InDelta(t, 180, result.Totals.CGST, 0.001)
	assert.InDelta(t, 180, result.Totals.SGST, 0.001)
	assert.Zero(t, result.Totals.IGST)
	assert.InDelta(t, 360, result.Totals.TotalTax, 0.001)
	assert.InDelta(t, 2360, result.Totals.GrandTotal, 0.001)
}

func TestComputeInvoiceTax_CrossStateChargesIGST(t *testing.T) {
	svc := NewTaxService(500000)

	items := []models.OrderItem{taxItem(1000, 2, 18, 0)}
	result := svc.ComputeInvoiceTax(items, "Karnataka", "Maharashtra", nil, 0)

	assert.Zero(t, result.Totals.CGST)
	assert.Zero(t, result.Totals.SGST)
	assert.InDelta(t, 360, result.Totals.IGST, 0.001)
	assert.InDelta(t, 2360, result.Totals.GrandTotal, 0.001)
}

func TestComputeInvoiceTax_StateComparisonIsCaseInsensitive(t *testing.T) {
	svc := NewTaxService(500000)

	items := []models.OrderItem{taxItem(100, 1, 18, 0)}
	result := svc.ComputeInvoiceTax(items, "Karnataka", " karnataka ", nil, 0)

	assert.NotZero(t, result.Totals.CGST)
	assert.Zero(t, result.Totals.IGST)
}

func TestComputeInvoiceTax_ItemDiscountReducesTaxableBase(t *testing.T) {
	svc := NewTaxService(500000)

	// 1000 gross, 10% discount, 18% GST on 900
	items := []models.OrderItem{taxItem(1000, 1, 18, 10)}
	result := svc.ComputeInvoiceTax(items, "Karnataka", "Karnataka", nil, 0)

	assert.InDelta(t, 900, result.Totals.Subtotal, 0.001)
	assert.InDelta(t, 100, result.Totals.Discount, 0.001)
	assert.InDelta(t, 81, result.Totals.CGST, 0.001)
	assert.InDelta(t, 81, result.Totals.SGST, 0.001)

	require.Len(t, result.Items, 1)
	assert.InDelta(t, 1062, result.Items[0].Amount, 0.001)
}

func TestComputeInvoiceTax_RoundHalfUpAndRoundOff(t *testing.T) {
	svc := NewTaxService(500000)

	// 333 * 18% = 59.94 tax, exact total 392.94 rounds up to 393
	items := []models.OrderItem{taxItem(333, 1, 18, 0)}
	result := svc.ComputeInvoiceTax(items, "Karnataka", "Maharashtra", nil, 0)

	assert.InDelta(t, 393, result.Totals.GrandTotal, 0.001)
	assert.InDelta(t, 0.06, result.Totals.RoundOff, 0.001)

	// 100 * 12.2% would leave .20, rounds down
	items = []models.OrderItem{taxItem(100, 1, 12.2, 0)}
	result = svc.ComputeInvoiceTax(items, "Karnataka", "Maharashtra", nil, 0)

	assert.InDelta(t, 112, result.Totals.GrandTotal, 0.001)
	assert.InDelta(t, -0.2, result.Totals.RoundOff, 0.001)
}

func TestComputeInvoiceTax_MultipleItemsWithMixedRates(t *testing.T) {
	svc := NewTaxService(500000)

	items := []models.OrderItem{
		taxItem(500, 2, 5, 0),   // 1000 taxable, 50 tax
		taxItem(2000, 1, 28, 0), // 2000 taxable, 560 tax
	}
	result := svc.ComputeInvoiceTax(items, "Karnataka", "Karnataka", nil, 0)

	assert.InDelta(t, 3000, result.Totals.Subtotal, 0.001)
	assert.InDelta(t, 305, result.Totals.CGST, 0.001)
	assert.InDelta(t, 305, result.Totals.SGST, 0.001)
	assert.InDelta(t, 3610, result.Totals.GrandTotal, 0.001)
	assert.Len(t, result.Items, 2)
}

func TestComputeInvoiceTax_EInvoiceRequiresGSTINAndThreshold(t *testing.T) {
	svc := NewTaxService(500000)
	gstin := common.StringPtr("29ABCDE1234F1Z5")

	// Above threshold with GSTIN
	items := []models.OrderItem{taxItem(500000, 1, 18, 0)}
	result := svc.ComputeInvoiceTax(items, "Karnataka", "Karnataka", gstin, 0)
	assert.True(t, result.EInvoiceRequired)

	// Above threshold without GSTIN
	result = svc.ComputeInvoiceTax(items, "Karnataka", "Karnataka", nil, 0)
	assert.False(t, result.EInvoiceRequired)

	// Below threshold with GSTIN
	items = []models.OrderItem{taxItem(1000, 1, 18, 0)}
	result = svc.ComputeInvoiceTax(items, "Karnataka", "Karnataka", gstin, 0)
	assert.False(t, result.EInvoiceRequired)
}

func TestComputeInvoiceTax_EmptyItems(t *testing.T) {
	svc := NewTaxService(500000)

	result := svc.ComputeInvoiceTax(nil, "Karnataka", "Karnataka", nil, 0)

	assert.Empty(t, result.Items)
	assert.Zero(t, result.Totals.GrandTotal)
	assert.False(t, result.EInvoiceRequired)
}

func TestAmountInWords(t *testing.T) {
	tests := []struct {
		amount   float64
		expected string
	}{
		{0, "Rupees Zero Only"},
		{1, "Rupees One Only"},
		{21, "Rupees Twenty One Only"},
		{105, "Rupees One Hundred Five Only"},
		{1050, "Rupees One Thousand Fifty Only"},
		{2360, "Rupees Two Thousand Three Hundred Sixty Only"},
		{100000, "Rupees One Lakh Only"},
		{2550000, "Rupees Twenty Five Lakh Fifty Thousand Only"},
		{10000000, "Rupees One Crore Only"},
		{590000, "Rupees Five Lakh Ninety Thousand Only"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, AmountInWords(tt.amount), "amount %.0f", tt.amount)
	}
}
