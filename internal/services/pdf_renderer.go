package services

import (
	"bytes"
	"fmt"

	"pluspoint/internal/common"
	"pluspoint/internal/models"

	"github.com/jung-kurt/gofpdf"
)

// renderInvoicePDF creates a printable A4 invoice document
func renderInvoicePDF(invoice *models.Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	marginX := 20.0
	marginY := 20.0
	pdf.SetMargins(marginX, marginY, marginX)
	pdf.SetAutoPageBreak(true, marginY)

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(33, 37, 41)

	pdf.SetXY(marginX, marginY)
	pdf.Cell(0, 10, invoice.Business.Name)
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 5, invoice.Business.Address)
	pdf.Ln(5)
	if gstin := common.SafeString(invoice.Business.GSTIN); gstin != "" {
		pdf.Cell(0, 5, fmt.Sprintf("GSTIN: %s", gstin))
		pdf.Ln(5)
	}
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, documentTitle(invoice.InvoiceType))
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Invoice Number: %s", invoice.InvoiceNumber))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Invoice Date: %s", invoice.IssuedDate.Format("02-Jan-2006")))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Due Date: %s", invoice.DueDate.Format("02-Jan-2006")))
	pdf.Ln(6)
	if irn := common.SafeString(invoice.Compliance.IRN); irn != "" {
		pdf.Cell(0, 6, fmt.Sprintf("IRN: %s", irn))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 8, "BILL TO:")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, invoice.Customer.Name)
	pdf.Ln(6)
	pdf.Cell(0, 6, invoice.Customer.Address)
	pdf.Ln(6)
	if gstin := common.SafeString(invoice.Customer.GSTIN); gstin != "" {
		pdf.Cell(0, 6, fmt.Sprintf("GSTIN: %s", gstin))
		pdf.Ln(6)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(240, 240, 240)

	headers := []string{"Description", "Qty", "Rate", "Tax %", "Amount"}
	colWidths := []float64{70, 20, 30, 20, 30}
	for i, header := range headers {
		pdf.CellFormat(colWidths[i], 8, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	pdf.SetFillColor(255, 255, 255)
	for _, item := range invoice.Items {
		pdf.CellFormat(colWidths[0], 8, item.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colWidths[1], 8, fmt.Sprintf("%d", item.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colWidths[2], 8, fmt.Sprintf("%.2f", item.Rate), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colWidths[3], 8, fmt.Sprintf("%.1f", item.TaxRate), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colWidths[4], 8, fmt.Sprintf("%.2f", item.Amount), "1", 0, "R", false, 0, "")
		pdf.Ln(8)
	}
	pdf.Ln(5)

	totals := invoice.Totals
	pdf.SetFont("Arial", "", 9)
	writeTotalLine(pdf, "Subtotal:", totals.Subtotal)
	if totals.Discount > 0 {
		writeTotalLine(pdf, "Discount:", -totals.Discount)
	}
	if totals.CGST > 0 {
		writeTotalLine(pdf, "CGST:", totals.CGST)
		writeTotalLine(pdf, "SGST:", totals.SGST)
	}
	if totals.IGST > 0 {
		writeTotalLine(pdf, "IGST:", totals.IGST)
	}
	if totals.RoundOff != 0 {
		writeTotalLine(pdf, "Round Off:", totals.RoundOff)
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(140, 8, "GRAND TOTAL:", "", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, fmt.Sprintf("%.2f", totals.GrandTotal), "", 0, "R", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "I", 9)
	pdf.Cell(0, 6, totals.AmountInWords)
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 9)
	pdf.Cell(0, 6, "Terms & Conditions:")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 8)
	terms := []string{
		"1. Payment is due by the date shown above",
		"2. Late payments may incur additional charges",
		"3. This is a computer generated invoice",
	}
	for _, term := range terms {
		pdf.Cell(0, 5, term)
		pdf.Ln(5)
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(128, 128, 128)
	pdf.Cell(0, 5, "Thank you for your business!")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTotalLine(pdf *gofpdf.Fpdf, label string, amount float64) {
	pdf.CellFormat(140, 5, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(30, 5, fmt.Sprintf("%.2f", amount), "", 0, "R", false, 0, "")
	pdf.Ln(5)
}

func documentTitle(invoiceType models.InvoiceType) string {
	switch invoiceType {
	case models.InvoiceTypeProforma:
		return "PROFORMA INVOICE"
	case models.InvoiceTypeCredit:
		return "CREDIT NOTE"
	case models.InvoiceTypeDebit:
		return "DEBIT NOTE"
	default:
		return "TAX INVOICE"
	}
}
