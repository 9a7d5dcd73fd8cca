package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is the container a source is stored in.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatXLSX   Format = "xlsx"
	FormatSQLite Format = "sqlite"
)

// Scheme is where a source's bytes come from.
type Scheme string

const (
	SchemeFile Scheme = "file"
	SchemeHTTP Scheme = "http"
	SchemeFTP  Scheme = "ftp"
)

// SourceRef is a parsed source identifier.
type SourceRef struct {
	Raw    string
	Scheme Scheme
	Format Format
	Path   string
	URL    *url.URL
}

// ParseSource classifies a source string by scheme and file extension.
//
//	data/buenosaires.csv               local CSV
//	data/buenosaires.xlsx              local spreadsheet (first sheet)
//	data/mobility.db, sqlite://x.db    local SQLite snapshot
//	https://host/buenosaires.csv       HTTP(S), CSV or XLSX
//	ftp://host/pub/buenosaires.csv     FTP, CSV or XLSX
func ParseSource(s string) (SourceRef, error) {
	ref := SourceRef{Raw: s}
	if s == "" {
		return ref, errors.New("empty source")
	}

	if rest, ok := strings.CutPrefix(s, "sqlite://"); ok {
		ref.Scheme, ref.Format, ref.Path = SchemeFile, FormatSQLite, rest
		return ref, nil
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ref, fmt.Errorf("parse url: %w", err)
		}
		switch u.Scheme {
		case "http", "https":
			ref.Scheme = SchemeHTTP
		case "ftp":
			ref.Scheme = SchemeFTP
		default:
			return ref, fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		ref.URL = u
		ref.Path = u.Path
		f, err := formatOf(path.Ext(u.Path))
		if err != nil {
			return ref, err
		}
		if f == FormatSQLite {
			return ref, errors.New("sqlite sources must be local files")
		}
		ref.Format = f
		return ref, nil
	}

	ref.Scheme, ref.Path = SchemeFile, s
	f, err := formatOf(filepath.Ext(s))
	if err != nil {
		return ref, err
	}
	ref.Format = f
	return ref, nil
}

func formatOf(ext string) (Format, error) {
	switch strings.ToLower(ext) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	default:
		return "", fmt.Errorf("unsupported file extension %q", ext)
	}
}

// Remote reports whether loading the source crosses the network.
func (r SourceRef) Remote() bool {
	return r.Scheme == SchemeHTTP || r.Scheme == SchemeFTP
}

// Kind labels the source for metrics and logs.
func (r SourceRef) Kind() string {
	return string(r.Scheme) + "/" + string(r.Format)
}

// readCSV returns the header and data rows of a CSV stream. Every row must
// have as many fields as the header.
func readCSV(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false
	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

// readXLSX reads the first sheet of a workbook. Trailing empty cells are
// trimmed by excelize, so short rows are padded to the header width.
func readXLSX(data []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}

	header := rows[0]
	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			row = padded
		}
		data = append(data, row)
	}
	return header, data, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
