package ingest

import "github.com/Strob0t/TaskDealer/internal/domain/record"

// Result holds the records that passed validation and how many rows were dropped.
type Result struct {
	Tasks   []record.Task
	Dropped int
}

// Validate consumes rows and keeps, in order, every row that carries a
// non-empty FirstName, Phone and Notes. Other rows are dropped without error.
// A parse error from rows aborts validation and is returned as is.
func Validate(rows Rows) (Result, error) {
	var res Result
	for row, err := range rows {
		if err != nil {
			return Result{}, err
		}
		task, ok := Accept(row)
		if !ok {
			res.Dropped++
			continue
		}
		res.Tasks = append(res.Tasks, task)
	}
	return res, nil
}

// Accept converts row into a Task when every required field is present and
// non-empty. Whitespace counts as content. Accepted values are copied unchanged.
func Accept(row record.RawRow) (record.Task, bool) {
	var vals [3]string
	for i, c := range record.Columns {
		v, ok := row.Get(c)
		if !ok || v == "" {
			return record.Task{}, false
		}
		vals[i] = v
	}
	return record.Task{FirstName: vals[0], Phone: vals[1], Notes: vals[2]}, true
}
