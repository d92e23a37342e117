// Package ingest turns uploaded spreadsheet files into validated contact records.
//
// Parsing and validation are separate steps: parsers only map the header row
// onto the recognized columns and emit one RawRow per data row, in source
// order. Validate then keeps the rows that carry every required field.
package ingest

import (
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Strob0t/TaskDealer/internal/domain"
	"github.com/Strob0t/TaskDealer/internal/domain/record"
)

// Format is a supported upload file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// Rows is an ordered, finite sequence of parsed rows. A non-nil error ends
// the sequence.
type Rows = iter.Seq2[record.RawRow, error]

// FormatOf returns the format declared by the extension of filename.
// The extension is matched case-insensitively.
func FormatOf(filename string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch f := Format(ext); f {
	case FormatCSV, FormatXLSX, FormatXLS:
		return f, nil
	}
	if ext == "" {
		return "", fmt.Errorf("%q has no extension: %w", filename, domain.ErrUnsupportedFormat)
	}
	return "", fmt.Errorf("extension %q: %w", ext, domain.ErrUnsupportedFormat)
}

// Ext returns the file extension for f, including the leading dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// sliceRows adapts a materialized row slice to Rows.
func sliceRows(rows []record.RawRow) Rows {
	return func(yield func(record.RawRow, error) bool) {
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// tableRows maps a fully loaded sheet (header first) onto RawRows.
func tableRows(table [][]string) []record.RawRow {
	if len(table) == 0 {
		return nil
	}
	schema := headerSchema(table[0])
	rows := make([]record.RawRow, 0, len(table)-1)
	for i, cells := range table[1:] {
		rows = append(rows, schema.Row(i+2, cells))
	}
	return rows
}

// headerSchema maps header onto the recognized columns. A header without
// every column is accepted; its rows are dropped later by Validate.
func headerSchema(header []string) record.Schema {
	schema := record.NewSchema(trimBOM(header))
	if !schema.Complete() {
		slog.Debug("upload header lacks recognized columns", "header", header, "columns", record.Columns)
	}
	return schema
}

// trimBOM strips a UTF-8 byte order mark from the first header cell.
func trimBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header
}
