// Package record defines the contact record shapes flowing from an uploaded
// file into a distribution.
package record

// Column is a recognized header name in an uploaded file. Matching is case-sensitive.
type Column string

const (
	ColFirstName Column = "FirstName"
	ColPhone     Column = "Phone"
	ColNotes     Column = "Notes"
)

// Columns lists every recognized column in canonical order.
var Columns = []Column{ColFirstName, ColPhone, ColNotes}

// ParseColumn maps a header cell to a recognized column.
func ParseColumn(header string) (Column, bool) {
	switch c := Column(header); c {
	case ColFirstName, ColPhone, ColNotes:
		return c, true
	}
	return "", false
}

// RawRow is one data row of an uploaded file after header mapping.
// A column missing from Values was absent in the source row.
type RawRow struct {
	Line   int               // 1-based row number in the source, header included
	Values map[Column]string // only recognized columns
}

// Get returns the value of column c and whether it was present.
func (r RawRow) Get(c Column) (string, bool) {
	v, ok := r.Values[c]
	return v, ok
}

// Task is a validated contact record. Identity is positional.
type Task struct {
	FirstName string `json:"firstName"`
	Phone     string `json:"phone"`
	Notes     string `json:"notes"`
}
