package ingest

import (
	"fmt"
	"io"

	"github.com/Strob0t/TaskDealer/internal/domain"
)

// Parse returns the rows of r interpreted as format f.
//
// CSV input is streamed: the returned Rows reads r lazily and may be ranged
// over only once, so r must stay open until iteration finishes. Spreadsheet
// formats load the first sheet in full before Parse returns.
func Parse(r io.ReadSeeker, f Format) (Rows, error) {
	switch f {
	case FormatCSV:
		return parseCSV(r)
	case FormatXLSX:
		return parseXLSX(r)
	case FormatXLS:
		return parseXLS(r)
	default:
		return nil, fmt.Errorf("format %q: %w", f, domain.ErrUnsupportedFormat)
	}
}
