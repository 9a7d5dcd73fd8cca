package store

import (
	"slices"
	"time"

	"github.com/lox/mobilitydash/internal/models"
)

// Query is one filter request from the dashboard.
type Query struct {
	Localities []string
	Start      time.Time
	End        time.Time
}

// Filter returns the rows whose locality is in localities and whose date
// lies strictly between start and end. Both bounds are exclusive, so a row
// dated exactly start or end is never returned.
//
// Filter never fails: an empty selection, unknown localities or an empty
// window all produce an empty result. The result is a fresh slice in
// table order.
func Filter(t *Table, localities []string, start, end time.Time) []models.Record {
	out := []models.Record{}
	if t == nil || len(localities) == 0 {
		return out
	}
	start, end = models.Day(start), models.Day(end)
	if !start.Before(end) {
		return out
	}

	var rows []int
	seen := make(map[string]bool, len(localities))
	for _, name := range localities {
		if seen[name] {
			continue
		}
		seen[name] = true
		rows = append(rows, t.index[name]...)
	}
	if len(seen) > 1 {
		slices.Sort(rows)
	}

	for _, i := range rows {
		r := t.records[i]
		if start.Before(r.Date) && r.Date.Before(end) {
			out = append(out, r)
		}
	}
	return out
}

// Filter applies q to the table.
func (t *Table) Filter(q Query) []models.Record {
	return Filter(t, q.Localities, q.Start, q.End)
}
