package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"ncm-portal/internal/reconcile"
)

// BuildInventoryPDF renders the enriched device inventory as a minimal PDF.
// Only public device fields appear; the export path never sees secrets.
func BuildInventoryPDF(devices []reconcile.EnrichedDevice) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Device Inventory")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Devices: %d", len(devices)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Name", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Address", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Last Modified", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Last Backup", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, device := range devices {
		backup := ""
		if device.Time != nil {
			backup = *device.Time
		}
		pdf.CellFormat(50, 6, device.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, device.Address, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, device.Type, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, device.Status, "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, device.MTime, "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, backup, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildInventoryXLSX renders the enriched device inventory as a workbook.
// Only public device fields appear; the export path never sees secrets.
func BuildInventoryXLSX(devices []reconcile.EnrichedDevice) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "devices"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Name", "Address", "Type", "Status", "Last Modified", "Last Backup", "Created", "Updated"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}

	for i, device := range devices {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), device.Name)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), device.Address)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), device.Type)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), device.Status)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), device.MTime)
		if device.Time != nil {
			_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), *device.Time)
		}
		_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), device.CreatedAt.Format(time.RFC3339))
		if device.UpdatedAt != nil {
			_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", row), device.UpdatedAt.Format(time.RFC3339))
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
