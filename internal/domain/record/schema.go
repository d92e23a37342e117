package record

// Schema maps source column positions to recognized columns.
// It is built once from the header row; unrecognized headers are ignored and
// the first occurrence of a duplicated header wins.
type Schema map[int]Column

// NewSchema builds a Schema from a header row.
func NewSchema(header []string) Schema {
	s := make(Schema, len(Columns))
	seen := make(map[Column]bool, len(Columns))
	for i, h := range header {
		c, ok := ParseColumn(h)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		s[i] = c
	}
	return s
}

// Row converts the cells of one data row into a RawRow.
// Cells beyond the end of a short row are treated as absent.
func (s Schema) Row(line int, cells []string) RawRow {
	values := make(map[Column]string, len(s))
	for i, c := range s {
		if i < len(cells) {
			values[c] = cells[i]
		}
	}
	return RawRow{Line: line, Values: values}
}

// Complete reports whether the header carried every recognized column.
func (s Schema) Complete() bool {
	return len(s) == len(Columns)
}
