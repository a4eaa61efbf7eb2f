package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	billing "solar-portal/internal/billing/domain"
)

const dateLayout = "2006-01-02"

// BuildInvoicePDF renders a one-page PDF for an invoice.
func BuildInvoicePDF(inv *billing.Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Invoice "+inv.ID)
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Type: %s", inv.Type))
	pdf.Ln(5)
	if inv.ApplicationID != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Application: %s", inv.ApplicationID))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Customer: %s", inv.CustomerID))
	pdf.Ln(5)
	if inv.BillingPeriod != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Billing period: %s", inv.BillingPeriod))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", inv.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Issued: %s", inv.CreatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Due: %s", inv.DueDate.Format(dateLayout)))
	pdf.Ln(5)
	if inv.PaidAt != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Paid: %s", inv.PaidAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(90, 6, "Description", "1", 0, "L", false, 0, "")
	pdf.CellFormat(30, 6, "Quantity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Unit price", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, item := range inv.LineItems {
		pdf.CellFormat(90, 6, item.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, item.Quantity.StringFixed(3), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, item.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, item.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(150, 6, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, 6, inv.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildInvoiceXLSX renders an invoice workbook with a summary and a line item sheet.
func BuildInvoiceXLSX(inv *billing.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	itemsSheet := "items"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	period := ""
	if inv.BillingPeriod != nil {
		period = inv.BillingPeriod.String()
	}
	paidAt := ""
	if inv.PaidAt != nil {
		paidAt = inv.PaidAt.Format(time.RFC3339)
	}
	rows := [][2]any{
		{"Invoice", inv.ID},
		{"Type", string(inv.Type)},
		{"Application", inv.ApplicationID},
		{"Customer", inv.CustomerID},
		{"Billing period", period},
		{"Status", string(inv.Status)},
		{"Due", inv.DueDate.Format(dateLayout)},
		{"Paid", paidAt},
		{"Amount", inv.Amount.InexactFloat64()},
	}
	for i, row := range rows {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}

	_ = f.SetCellValue(itemsSheet, "A1", "Description")
	_ = f.SetCellValue(itemsSheet, "B1", "Quantity")
	_ = f.SetCellValue(itemsSheet, "C1", "Unit price")
	_ = f.SetCellValue(itemsSheet, "D1", "Amount")
	for i, item := range inv.LineItems {
		row := i + 2
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), item.Description)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), item.Quantity.InexactFloat64())
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", row), item.UnitPrice.InexactFloat64())
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("D%d", row), item.Amount.InexactFloat64())
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildMonthlyReportXLSX lists the monthly bills of one period.
func BuildMonthlyReportXLSX(period billing.Period, invoices []billing.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := period.String()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{"Invoice", "Application", "Customer", "Status", "Amount", "Credit", "Due", "Paid"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, inv := range invoices {
		row := i + 2
		credit := 0.0
		for _, item := range inv.LineItems {
			if item.Amount.IsNegative() {
				credit += item.Amount.Neg().InexactFloat64()
			}
		}
		paidAt := ""
		if inv.PaidAt != nil {
			paidAt = inv.PaidAt.Format(dateLayout)
		}
		values := []any{
			inv.ID,
			inv.ApplicationID,
			inv.CustomerID,
			string(inv.Status),
			inv.Amount.InexactFloat64(),
			credit,
			inv.DueDate.Format(dateLayout),
			paidAt,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
