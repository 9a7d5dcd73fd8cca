// Package export writes filtered records as CSV or XLSX. Category-mobility
// values are written as loaded (fractions), so an export is a report, not
// a load source.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/lox/mobilitydash/internal/catalog"
	"github.com/lox/mobilitydash/internal/ingest"
	"github.com/lox/mobilitydash/internal/models"
)

const SheetName = "Mobility"

// Header is the column layout shared by both formats.
func Header() []string {
	h := []string{ingest.ColDate, ingest.ColProvince, ingest.ColDepartment, ingest.ColLocality}
	for _, e := range catalog.Entries() {
		h = append(h, e.Label)
	}
	return h
}

// WriteCSV writes records with a header row. Missing values are empty cells.
func WriteCSV(w io.Writer, records []models.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	row := make([]string, 0, 4+catalog.NumMetrics)
	for _, r := range records {
		row = append(row[:0], r.Date.Format(models.DateLayout), r.Province, r.Department, r.Locality)
		for id := range catalog.NumMetrics {
			v, ok := r.Value(id)
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes records to a single-sheet workbook. Percentage columns
// get a percent number format.
func WriteXLSX(w io.Writer, records []models.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	pct, err := f.NewStyle(&excelize.Style{NumFmt: 10})
	if err != nil {
		return fmt.Errorf("percent style: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}

	header := Header()
	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = excelize.Cell{StyleID: bold, Value: h}
	}
	if err := sw.SetRow("A1", cells); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range records {
		row := []any{r.Date.Format(models.DateLayout), r.Province, r.Department, r.Locality}
		for id := range catalog.NumMetrics {
			v, ok := r.Value(id)
			switch {
			case !ok:
				row = append(row, nil)
			case id.Percentage():
				row = append(row, excelize.Cell{StyleID: pct, Value: v})
			default:
				row = append(row, v)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
