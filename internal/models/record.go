package models

import (
	"database/sql"
	"time"

	"github.com/lox/mobilitydash/internal/catalog"
)

// DateLayout is the only accepted format for the date column.
const DateLayout = "2006-01-02"

// Record is one locality-day of mobility indicators. Category-mobility
// metrics are stored as fractions; the stringency index is unscaled.
type Record struct {
	Locality   string
	Province   string
	Department string
	Date       time.Time
	Metrics    [catalog.NumMetrics]sql.NullFloat64
}

// Value returns the metric and whether it was present in the source.
func (r Record) Value(id catalog.MetricID) (float64, bool) {
	if !id.Valid() {
		return 0, false
	}
	v := r.Metrics[id]
	return v.Float64, v.Valid
}

// Ptr is Value as a nullable pointer, for JSON output.
func (r Record) Ptr(id catalog.MetricID) *float64 {
	v, ok := r.Value(id)
	if !ok {
		return nil
	}
	return &v
}

// Day truncates t to a UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses s using DateLayout.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
