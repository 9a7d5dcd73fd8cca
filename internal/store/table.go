package store

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"github.com/lox/mobilitydash/internal/models"
)

// ErrEmptyTable is returned by NewTable when there are no records.
var ErrEmptyTable = errors.New("table has no records")

// Table is the immutable, sorted mobility dataset. It is safe for
// concurrent reads; nothing mutates it after NewTable returns.
type Table struct {
	records    []models.Record
	localities []string
	index      map[string][]int
	minDate    time.Time
	maxDate    time.Time
}

// NewTable copies records, sorts them by (province, department, date) and
// builds the locality index and date bounds. The sort is stable so equal
// keys keep their input order.
func NewTable(records []models.Record) (*Table, error) {
	if len(records) == 0 {
		return nil, ErrEmptyTable
	}

	sorted := make([]models.Record, len(records))
	copy(sorted, records)
	slices.SortStableFunc(sorted, func(a, b models.Record) int {
		return cmp.Or(
			cmp.Compare(a.Province, b.Province),
			cmp.Compare(a.Department, b.Department),
			a.Date.Compare(b.Date),
		)
	})

	t := &Table{
		records: sorted,
		index:   make(map[string][]int),
		minDate: sorted[0].Date,
		maxDate: sorted[0].Date,
	}
	for i, r := range sorted {
		if _, ok := t.index[r.Locality]; !ok {
			t.localities = append(t.localities, r.Locality)
		}
		t.index[r.Locality] = append(t.index[r.Locality], i)
		if r.Date.Before(t.minDate) {
			t.minDate = r.Date
		}
		if r.Date.After(t.maxDate) {
			t.maxDate = r.Date
		}
	}
	return t, nil
}

func (t *Table) Len() int { return len(t.records) }

func (t *Table) MinDate() time.Time { return t.minDate }

func (t *Table) MaxDate() time.Time { return t.maxDate }

// Localities returns the distinct locality keys in table order.
func (t *Table) Localities() []string {
	return slices.Clone(t.localities)
}

func (t *Table) HasLocality(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Records returns a copy of every row in table order.
func (t *Table) Records() []models.Record {
	return slices.Clone(t.records)
}
