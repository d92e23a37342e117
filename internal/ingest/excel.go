package ingest

import (
	"fmt"
	"io"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/Strob0t/TaskDealer/internal/domain"
)

const (
	// xlsCharset is the fallback charset for legacy BIFF string records.
	xlsCharset = "utf-8"
	// xlsMaxCols is the BIFF8 column limit.
	xlsMaxCols = 256
)

func parseXLSX(r io.Reader) (Rows, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w: %w", domain.ErrParse, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return sliceRows(nil), nil
	}

	table, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w: %w", sheets[0], domain.ErrParse, err)
	}
	return sliceRows(tableRows(table)), nil
}

func parseXLS(r io.ReadSeeker) (rows Rows, err error) {
	// The BIFF reader panics on some truncated workbooks.
	defer func() {
		if p := recover(); p != nil {
			rows, err = nil, fmt.Errorf("read xls: %w: %v", domain.ErrParse, p)
		}
	}()

	wb, err := xls.OpenReader(r, xlsCharset)
	if err != nil {
		return nil, fmt.Errorf("open xls: %w: %w", domain.ErrParse, err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return sliceRows(nil), nil
	}

	table := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		table = append(table, xlsCells(sheetRow(sheet, i)))
	}
	return sliceRows(tableRows(table)), nil
}

// sheetRow returns row i, or nil when the sheet has no record for it.
// WorkSheet.Row dereferences missing rows.
func sheetRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// xlsCells reads the cells of row up to its last non-empty one. Rows
// without a ROW record report no column bounds, so every column up to the
// BIFF8 limit is read.
func xlsCells(row *xls.Row) []string {
	if row == nil {
		return nil
	}
	width := max(row.LastCol(), xlsMaxCols)
	cells := make([]string, width)
	last := -1
	for c := 0; c < width; c++ {
		if v := row.Col(c); v != "" {
			cells[c] = v
			last = c
		}
	}
	return cells[:last+1]
}
