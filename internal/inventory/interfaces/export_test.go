package interfaces

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"ncm-portal/internal/reconcile"
)

func TestBuildInventoryPDF(t *testing.T) {
	backup := "2026-01-02 03:04:05 UTC"
	devices := []reconcile.EnrichedDevice{
		{Name: "core1", Address: "10.0.0.1", Type: "ios", Status: "success", MTime: "2026-01-02 03:04:05", Time: &backup},
		{Name: "edge1", Address: "10.0.0.2", Type: "junos", Status: reconcile.StatusNotRegistered, MTime: reconcile.MTimeUnknown},
	}

	document, err := BuildInventoryPDF(devices)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !bytes.HasPrefix(document, []byte("%PDF-")) {
		t.Fatalf("expected a PDF header, got %q", document[:8])
	}

	// An empty inventory still renders a valid document.
	document, err = BuildInventoryPDF(nil)
	if err != nil {
		t.Fatalf("build empty: %v", err)
	}
	if !bytes.HasPrefix(document, []byte("%PDF-")) {
		t.Fatalf("expected a PDF header, got %q", document[:8])
	}
}

func TestBuildInventoryXLSX(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	backup := "2026-01-02 03:04:05 UTC"
	devices := []reconcile.EnrichedDevice{
		{Name: "core1", Address: "10.0.0.1", Type: "ios", Status: "success", MTime: "2026-01-02 03:04:05", Time: &backup, CreatedAt: created},
		{Name: "edge1", Address: "10.0.0.2", Type: "junos", Status: reconcile.StatusNotRegistered, MTime: reconcile.MTimeUnknown, CreatedAt: created},
	}

	workbook, err := BuildInventoryXLSX(devices)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(workbook))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("devices")
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Name" || rows[0][1] != "Address" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "core1" || rows[1][3] != "success" || rows[1][5] != backup {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[2][3] != reconcile.StatusNotRegistered || rows[2][4] != reconcile.MTimeUnknown {
		t.Fatalf("unexpected sentinel row %v", rows[2])
	}
}
