package api

import (
	"html/template"
	"net/url"
	"strconv"

	"github.com/lox/mobilitydash/internal/catalog"
	"github.com/lox/mobilitydash/internal/charts"
	"github.com/lox/mobilitydash/internal/models"
)

const pageTitle = "Mobility Reports Dashboard"

// tableRows is how many of the latest filtered rows the page can show.
const tableRows = 5

// RecordView is a record keyed by metric column for JSON and the table.
type RecordView struct {
	Date       string              `json:"date"`
	Locality   string              `json:"locality"`
	Province   string              `json:"province"`
	Department string              `json:"department"`
	Values     map[string]*float64 `json:"values"`
}

func recordViews(rows []models.Record) []RecordView {
	out := make([]RecordView, len(rows))
	for i, r := range rows {
		v := RecordView{
			Date:       r.Date.Format(models.DateLayout),
			Locality:   r.Locality,
			Province:   r.Province,
			Department: r.Department,
			Values:     make(map[string]*float64, catalog.NumMetrics),
		}
		for _, e := range catalog.Entries() {
			v.Values[e.Column] = r.Ptr(e.ID)
		}
		out[i] = v
	}
	return out
}

// ChartJS is the data block for one Chart.js line chart. Datasets are
// aligned to Labels with null for missing days.
type ChartJS struct {
	Title      string           `json:"title"`
	Percentage bool             `json:"percentage"`
	Labels     []string         `json:"labels"`
	Datasets   []ChartJSDataset `json:"datasets"`
}

type ChartJSDataset struct {
	Label       string     `json:"label"`
	Data        []*float64 `json:"data"`
	BorderColor string     `json:"borderColor"`
}

func chartJS(fig charts.Figure) ChartJS {
	labels := fig.Labels()
	pos := make(map[string]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}
	c := ChartJS{
		Title:      fig.Title,
		Percentage: fig.Percentage,
		Labels:     labels,
		Datasets:   make([]ChartJSDataset, 0, len(fig.Series)),
	}
	for i, s := range fig.Series {
		data := make([]*float64, len(labels))
		for _, p := range s.Points {
			data[pos[p.Date.Format(models.DateLayout)]] = p.Value
		}
		c.Datasets = append(c.Datasets, ChartJSDataset{
			Label:       s.Name,
			Data:        data,
			BorderColor: charts.Color(i),
		})
	}
	return c
}

type metricOption struct {
	Column   string
	Label    string
	Selected bool
}

func metricOptions(f catalog.Family, selected catalog.MetricID) []metricOption {
	var out []metricOption
	for _, id := range catalog.IDsOf(f) {
		out = append(out, metricOption{Column: id.Column(), Label: id.Label(), Selected: id == selected})
	}
	return out
}

type localityOption struct {
	Name     string
	Selected bool
}

// tableColumn is one metric column of the tail table.
type tableColumn struct {
	Label string
	ID    catalog.MetricID
}

type tableRow struct {
	Date     string
	Locality string
	Values   []string
}

// IndexData is everything the dashboard page renders.
type IndexData struct {
	Title      string
	Localities []localityOption
	Movement   []metricOption
	Category   []metricOption
	Start      string
	End        string
	MinDate    string
	MaxDate    string
	ShowTable  bool
	Count      int
	Columns    []tableColumn
	Tail       []tableRow
	MRMChart   ChartJS
	GMRChart   ChartJS
	Query      template.URL // pre-encoded, safe in href query position
}

func buildIndexData(all []string, sel Selection, rows []models.Record, minDate, maxDate string) IndexData {
	chosen := make(map[string]bool, len(sel.Localities))
	for _, l := range sel.Localities {
		chosen[l] = true
	}
	locs := make([]localityOption, len(all))
	for i, l := range all {
		locs[i] = localityOption{Name: l, Selected: chosen[l]}
	}

	data := IndexData{
		Title:      pageTitle,
		Localities: locs,
		Movement:   metricOptions(catalog.FamilyMobilityChange, sel.Movement),
		Category:   metricOptions(catalog.FamilyCategoryMobility, sel.Category),
		Start:      sel.Start.Format(models.DateLayout),
		End:        sel.End.Format(models.DateLayout),
		MinDate:    minDate,
		MaxDate:    maxDate,
		ShowTable:  sel.ShowTable,
		Count:      len(rows),
		MRMChart:   chartJS(charts.Build(rows, sel.Movement)),
		GMRChart:   chartJS(charts.Build(rows, sel.Category)),
		Query:      template.URL(selectionQuery(sel)),
	}

	if sel.ShowTable {
		for _, e := range catalog.Entries() {
			data.Columns = append(data.Columns, tableColumn{Label: e.Label, ID: e.ID})
		}
		tail := rows[max(0, len(rows)-tableRows):]
		for _, r := range tail {
			tr := tableRow{Date: r.Date.Format(models.DateLayout), Locality: r.Locality}
			for _, c := range data.Columns {
				if v, ok := r.Value(c.ID); ok {
					tr.Values = append(tr.Values, strconv.FormatFloat(v, 'f', 4, 64))
				} else {
					tr.Values = append(tr.Values, "")
				}
			}
			data.Tail = append(data.Tail, tr)
		}
	}
	return data
}

// selectionQuery re-encodes sel for links to the image and export routes.
func selectionQuery(sel Selection) string {
	q := url.Values{}
	if len(sel.Localities) == 0 {
		q.Set("locality", "")
	}
	for _, l := range sel.Localities {
		q.Add("locality", l)
	}
	q.Set("start", sel.Start.Format(models.DateLayout))
	q.Set("end", sel.End.Format(models.DateLayout))
	q.Set("mrm", sel.Movement.Column())
	q.Set("gmr", sel.Category.Column())
	return q.Encode()
}
