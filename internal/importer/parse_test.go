package importer

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"catalog.xlsx", nil, FormatXLSX},
		{"catalog.XLSM", nil, FormatXLSX},
		{"catalog.csv", nil, FormatCSV},
		{"catalog.tsv", nil, FormatCSV},
		{"upload.bin", []byte("PK\x03\x04junk"), FormatXLSX},
		{"upload.bin", []byte("sku,name"), FormatCSV},
	}
	for _, tc := range cases {
		if got := DetectFormat(tc.name, tc.data); got != tc.want {
			t.Fatalf("DetectFormat(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestParseRowsCSV(t *testing.T) {
	data := []byte("sku,name,brand\nA1,Water,Acme\nA2,Cola,\n")
	rows, err := ParseRows("feed.csv", data)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["sku"] != "A1" || rows[0]["brand"] != "Acme" {
		t.Fatalf("row 0 = %v", rows[0])
	}
	// Empty cells are omitted, not stored as "".
	if _, ok := rows[1]["brand"]; ok {
		t.Fatalf("empty cell should be omitted: %v", rows[1])
	}
}

func TestParseRowsSniffsSemicolon(t *testing.T) {
	data := []byte("sku;name;brand\nA1;Water;Acme\n")
	rows, err := ParseRows("feed.txt", data)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "Water" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestParseRowsSniffsTab(t *testing.T) {
	data := []byte("sku\tname\nA1\tWater\n")
	rows, err := ParseRows("feed.tsv", data)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(rows) != 1 || rows[0]["sku"] != "A1" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestParseRowsNormalizesHeaders(t *testing.T) {
	// BOM on the first header, required-marker suffix on another.
	data := []byte("\uFEFFsku,name *\nA1,Water\n")
	rows, err := ParseRows("feed.csv", data)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if rows[0]["sku"] != "A1" {
		t.Fatalf("BOM header not normalized: %v", rows[0])
	}
	if rows[0]["name"] != "Water" {
		t.Fatalf("required-marker suffix not stripped: %v", rows[0])
	}
}

func TestParseRowsSkipsBlankLines(t *testing.T) {
	data := []byte("sku,name\nA1,Water\n,\n")
	rows, err := ParseRows("feed.csv", data)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("blank records should be dropped, got %d rows", len(rows))
	}
}

func TestParseRowsXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	cells := [][]any{
		{"sku", "name", "brand"},
		{"A1", "Water", "Acme"},
		{"A2", "Cola", nil},
	}
	for i, row := range cells {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell addr: %v", err)
		}
		if err := f.SetSheetRow(sheet, addr, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	rows, err := ParseRows("feed.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["sku"] != "A1" || rows[1]["name"] != "Cola" {
		t.Fatalf("rows = %v", rows)
	}
	if _, ok := rows[1]["brand"]; ok {
		t.Fatalf("empty xlsx cell should be omitted: %v", rows[1])
	}
}
