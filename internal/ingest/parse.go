package ingest

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lox/mobilitydash/internal/catalog"
	"github.com/lox/mobilitydash/internal/models"
)

// Published column names. The upstream file carries display labels for the
// metric columns; internal column ids are accepted as well.
const (
	ColDate       = "Fecha"
	ColProvince   = "Provincia"
	ColDepartment = "Partido/Departamento"
	ColLocality   = "marker"
)

type columnMap struct {
	date       int
	province   int
	department int
	locality   int
	metrics    [catalog.NumMetrics]int
}

func mapColumns(source string, header []string) (columnMap, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	var missing []string
	find := func(names ...string) int {
		for _, n := range names {
			if i, ok := pos[n]; ok {
				return i
			}
		}
		missing = append(missing, names[0])
		return -1
	}

	cm := columnMap{
		date:       find(ColDate),
		province:   find(ColProvince),
		department: find(ColDepartment),
		locality:   find(ColLocality),
	}
	for _, e := range catalog.Entries() {
		cm.metrics[e.ID] = find(e.Label, e.Column)
	}

	if len(missing) > 0 {
		return columnMap{}, &LoadError{
			Kind:   KindMissingColumn,
			Source: source,
			Column: strings.Join(missing, ", "),
			Err:    fmt.Errorf("%d expected column(s) not in header", len(missing)),
		}
	}
	return cm, nil
}

// parseStats counts quality flags raised while parsing.
type parseStats struct {
	flags map[string]int
}

// parseRecords converts raw rows into records. Category-mobility values
// are divided by 100 here and nowhere else.
func parseRecords(source string, header []string, rows [][]string) ([]models.Record, parseStats, error) {
	stats := parseStats{flags: make(map[string]int)}
	cm, err := mapColumns(source, header)
	if err != nil {
		return nil, stats, err
	}
	if len(rows) == 0 {
		return nil, stats, loadErr(KindEmpty, source, errors.New("no data rows"))
	}

	// A locality key names exactly one (province, department) region.
	type region struct {
		province, department string
		line                 int
	}
	regions := make(map[string]region)

	records := make([]models.Record, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		cell := func(idx int) string {
			if idx < len(row) {
				return strings.TrimSpace(row[idx])
			}
			return ""
		}

		date, err := models.ParseDay(cell(cm.date))
		if err != nil {
			return nil, stats, &LoadError{Kind: KindParseDate, Source: source, Column: ColDate, Row: line, Err: err}
		}

		r := models.Record{
			Locality:   cell(cm.locality),
			Province:   cell(cm.province),
			Department: cell(cm.department),
			Date:       date,
		}
		if r.Locality == "" {
			return nil, stats, &LoadError{Kind: KindParseValue, Source: source, Column: ColLocality, Row: line, Err: errors.New("empty locality")}
		}
		if prev, ok := regions[r.Locality]; !ok {
			regions[r.Locality] = region{r.Province, r.Department, line}
		} else if prev.province != r.Province || prev.department != r.Department {
			return nil, stats, &LoadError{
				Kind:   KindLocalityConflict,
				Source: source,
				Column: ColLocality,
				Row:    line,
				Err: fmt.Errorf("%q is %s/%s here but %s/%s at row %d",
					r.Locality, r.Province, r.Department, prev.province, prev.department, prev.line),
			}
		}

		for _, e := range catalog.Entries() {
			v, err := parseValue(cell(cm.metrics[e.ID]))
			if err != nil {
				return nil, stats, &LoadError{Kind: KindParseValue, Source: source, Column: header[cm.metrics[e.ID]], Row: line, Err: err}
			}
			if v.Valid && e.ID.Percentage() {
				v.Float64 /= 100
			}
			r.Metrics[e.ID] = v
		}
		for _, f := range ValidateRecord(r) {
			stats.flags[f]++
		}
		records = append(records, r)
	}
	return records, stats, nil
}

// parseValue treats empty and NaN cells as missing.
func parseValue(s string) (sql.NullFloat64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return sql.NullFloat64{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullFloat64{}, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}, nil
	}
	return sql.NullFloat64{Float64: v, Valid: true}, nil
}
