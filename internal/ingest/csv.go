package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/Strob0t/TaskDealer/internal/domain"
	"github.com/Strob0t/TaskDealer/internal/domain/record"
)

var errRowsConsumed = errors.New("csv rows already consumed")

func parseCSV(r io.Reader) (Rows, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return sliceRows(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w: %w", domain.ErrParse, err)
	}
	schema := headerSchema(header)

	consumed := false
	return func(yield func(record.RawRow, error) bool) {
		if consumed {
			yield(record.RawRow{}, fmt.Errorf("%w: %w", domain.ErrParse, errRowsConsumed))
			return
		}
		consumed = true

		for {
			cells, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(record.RawRow{}, fmt.Errorf("read csv row: %w: %w", domain.ErrParse, err))
				return
			}
			line, _ := cr.FieldPos(0)
			if !yield(schema.Row(line, cells), nil) {
				return
			}
		}
	}, nil
}
