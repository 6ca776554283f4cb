package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// DetectFormat inspects the file name and the leading bytes. The zip-family
// signature "PK" implies a spreadsheet; otherwise the content is treated as
// delimited text.
func DetectFormat(fileName string, data []byte) string {
	name := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(name, ".xlsx"), strings.HasSuffix(name, ".xlsm"):
		return FormatXLSX
	case strings.HasSuffix(name, ".csv"), strings.HasSuffix(name, ".tsv"), strings.HasSuffix(name, ".txt"):
		return FormatCSV
	}
	if len(data) >= 2 && data[0] == 'P' && data[1] == 'K' {
		return FormatXLSX
	}
	return FormatCSV
}

// ParseRows turns file bytes into header-keyed records. Empty cells are
// omitted from the record rather than stored as "".
func ParseRows(fileName string, data []byte) ([]map[string]any, error) {
	switch DetectFormat(fileName, data) {
	case FormatXLSX:
		return parseXLSX(data)
	default:
		return parseDelimited(data)
	}
}

func parseXLSX(data []byte) ([]map[string]any, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	headers := normalizeHeaders(rows[0])
	var out []map[string]any
	for _, row := range rows[1:] {
		rec := recordFromCells(headers, row)
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out, nil
}

func parseDelimited(data []byte) ([]map[string]any, error) {
	delim := sniffDelimiter(data)
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	headerRow, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	headers := normalizeHeaders(headerRow)

	var out []map[string]any
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(out)+2, err)
		}
		rec := recordFromCells(headers, row)
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out, nil
}

// sniffDelimiter counts candidate delimiters on the first line.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, cand := range []byte{';', '\t', '|'} {
		if n := bytes.Count(line, []byte{cand}); n > bestCount {
			best, bestCount = rune(cand), n
		}
	}
	return best
}

func normalizeHeaders(cells []string) []string {
	out := make([]string, len(cells))
	for i, h := range cells {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		out[i] = strings.TrimSuffix(h, " *")
	}
	return out
}

func recordFromCells(headers, cells []string) map[string]any {
	rec := map[string]any{}
	for i, h := range headers {
		if h == "" || i >= len(cells) {
			continue
		}
		val := strings.TrimSpace(cells[i])
		if val == "" {
			continue
		}
		rec[h] = val
	}
	return rec
}
