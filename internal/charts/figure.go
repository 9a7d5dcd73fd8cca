// Package charts turns filtered records into per-locality time series and
// renders them for the dashboard.
package charts

import (
	"slices"
	"time"

	"github.com/lox/mobilitydash/internal/catalog"
	"github.com/lox/mobilitydash/internal/models"
)

// Point is one dated value. A nil Value is a gap in the line.
type Point struct {
	Date  time.Time `json:"date"`
	Value *float64  `json:"value"`
}

// Series is the trace for one locality.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Figure is a chart-ready collection of traces for a single metric.
type Figure struct {
	Title      string   `json:"title"`
	Metric     string   `json:"metric"`
	Percentage bool     `json:"percentage"`
	Series     []Series `json:"series"`
}

// Build groups records by locality, in order of first appearance, and
// projects metric for each. Records are expected in table order, so points
// within a series are date ascending.
func Build(records []models.Record, metric catalog.MetricID) Figure {
	fig := Figure{
		Title:      metric.Label(),
		Metric:     metric.Column(),
		Percentage: metric.Percentage(),
		Series:     []Series{},
	}
	pos := make(map[string]int)
	for _, r := range records {
		i, ok := pos[r.Locality]
		if !ok {
			i = len(fig.Series)
			pos[r.Locality] = i
			fig.Series = append(fig.Series, Series{Name: r.Locality})
		}
		fig.Series[i].Points = append(fig.Series[i].Points, Point{Date: r.Date, Value: r.Ptr(metric)})
	}
	return fig
}

// Empty reports whether the figure has no plottable value.
func (f Figure) Empty() bool {
	for _, s := range f.Series {
		for _, p := range s.Points {
			if p.Value != nil {
				return false
			}
		}
	}
	return true
}

// Labels returns the sorted union of dates across series, formatted for
// category axes.
func (f Figure) Labels() []string {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, s := range f.Series {
		for _, p := range s.Points {
			if !seen[p.Date] {
				seen[p.Date] = true
				dates = append(dates, p.Date)
			}
		}
	}
	slices.SortFunc(dates, time.Time.Compare)
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(models.DateLayout)
	}
	return out
}
