package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lox/mobilitydash/internal/api"
	"github.com/lox/mobilitydash/internal/catalog"
	"github.com/lox/mobilitydash/internal/models"
	"github.com/lox/mobilitydash/internal/store"
)

const (
	mercedes = "Mercedes, Buenos Aires"
	caba     = "Distrito Federal, Ciudad de Buenos Aires"
	cordoba  = "Córdoba, Córdoba"
)

func dated(t *testing.T, s string) models.Record {
	t.Helper()
	d, err := models.ParseDay(s)
	require.NoError(t, err)
	return models.Record{Date: d}
}

func rec(t *testing.T, locality, province, department, date string, parks, movement float64) models.Record {
	r := dated(t, date)
	r.Locality, r.Province, r.Department = locality, province, department
	r.Metrics[catalog.Parks] = sql.NullFloat64{Float64: parks, Valid: true}
	r.Metrics[catalog.ChangeInMovement] = sql.NullFloat64{Float64: movement, Valid: true}
	return r
}

func fixtureTable(t *testing.T) *store.Table {
	t.Helper()
	var records []models.Record
	for i, d := range []string{"2020-03-01", "2020-03-02", "2020-03-03", "2020-03-04"} {
		f := float64(i)
		records = append(records,
			rec(t, mercedes, "Buenos Aires", "Mercedes", d, 0.1*f, -0.1*f),
			rec(t, caba, "Ciudad de Buenos Aires", "Distrito Federal", d, -0.2*f, -0.2*f),
			rec(t, cordoba, "Córdoba", "Capital", d, 0.3*f, 0.05*f),
		)
	}
	tbl, err := store.NewTable(records)
	require.NoError(t, err)
	return tbl
}

func newTestServer(t *testing.T, defaults ...string) http.Handler {
	t.Helper()
	tbl := fixtureTable(t)
	cache := store.NewCache(func(ctx context.Context, source string) (*store.Table, error) {
		return tbl, nil
	})
	if defaults == nil {
		defaults = []string{mercedes, caba}
	}
	srv := api.NewServer(cache, slog.New(slog.NewTextHandler(io.Discard, nil)), api.Config{
		Source:            "fixture.csv",
		DefaultLocalities: defaults,
	})
	return srv.Handler()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	w := get(t, newTestServer(t), "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 12, body["rows"])
	assert.Equal(t, "2020-03-01", body["min_date"])
}

func TestHealthEndpoint_LoadFailure(t *testing.T) {
	t.Parallel()
	cache := store.NewCache(func(ctx context.Context, source string) (*store.Table, error) {
		return nil, errors.New("boom")
	})
	srv := api.NewServer(cache, slog.New(slog.NewTextHandler(io.Discard, nil)), api.Config{Source: "x.csv"})

	w := get(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "boom")
}

func TestAPILocalities(t *testing.T) {
	t.Parallel()
	w := get(t, newTestServer(t, mercedes, "Nowhere"), "/api/localities")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Localities []string `json:"localities"`
		Defaults   []string `json:"defaults"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{mercedes, caba, cordoba}, body.Localities)
	assert.Equal(t, []string{mercedes}, body.Defaults, "defaults missing from the table are dropped")
}

func TestAPICatalog(t *testing.T) {
	t.Parallel()
	w := get(t, newTestServer(t), "/api/catalog")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Metrics  []map[string]string `json:"metrics"`
		Families map[string][]string `json:"families"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Metrics, int(catalog.NumMetrics))
	assert.Equal(t, []string{"Change in Movement", "Stay Put"}, body.Families["mobility-change"])
	assert.Empty(t, body.Families["stay-put"])
	assert.Len(t, body.Families["category-mobility"], 6)
}

type recordsBody struct {
	Count   int `json:"count"`
	Records []struct {
		Date     string              `json:"date"`
		Locality string              `json:"locality"`
		Values   map[string]*float64 `json:"values"`
	} `json:"records"`
}

func TestAPIRecords_ExclusiveRange(t *testing.T) {
	t.Parallel()
	q := url.Values{
		"locality": {mercedes},
		"start":    {"2020-03-01"},
		"end":      {"2020-03-04"},
	}
	w := get(t, newTestServer(t), "/api/records?"+q.Encode())
	require.Equal(t, http.StatusOK, w.Code)

	var body recordsBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "2020-03-02", body.Records[0].Date)
	assert.Equal(t, "2020-03-03", body.Records[1].Date)
	assert.InDelta(t, 0.1, *body.Records[0].Values[catalog.Parks.Column()], 1e-9)
	assert.Nil(t, body.Records[0].Values[catalog.Residential.Column()])
}

func TestAPIRecords_Defaults(t *testing.T) {
	t.Parallel()
	w := get(t, newTestServer(t), "/api/records")
	require.Equal(t, http.StatusOK, w.Code)

	var body recordsBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	// Two default localities, min/max bounds excluded: two days each.
	assert.Equal(t, 4, body.Count)
	for _, r := range body.Records {
		assert.Contains(t, []string{mercedes, caba}, r.Locality)
	}
}

func TestAPIRecords_EmptySelections(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	for _, target := range []string{
		"/api/records?locality=",
		"/api/records?locality=Nowhere",
		"/api/records?start=2020-03-04&end=2020-03-01",
		"/api/records?start=2020-03-02&end=2020-03-02",
	} {
		w := get(t, h, target)
		require.Equal(t, http.StatusOK, w.Code, target)
		var body recordsBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Zero(t, body.Count, target)
		assert.NotNil(t, body.Records, target)
	}
}

func TestBadRequests(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	for _, target := range []string{
		"/api/records?start=03/01/2020",
		"/api/records?end=tomorrow",
		"/api/series?metric=not_a_metric",
		"/?mrm=parks_percent_change_from_baseline",
		"/?gmr=all_day_ratio_single_tile_users",
		"/chart.png?w=0",
		"/chart.png?h=abc",
	} {
		w := get(t, h, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestAPISeries(t *testing.T) {
	t.Parallel()
	q := url.Values{
		"locality": {caba, mercedes},
		"metric":   {"Parks change"},
	}
	w := get(t, newTestServer(t), "/api/series?"+q.Encode())
	require.Equal(t, http.StatusOK, w.Code)

	var fig struct {
		Title  string `json:"title"`
		Metric string `json:"metric"`
		Series []struct {
			Name   string `json:"name"`
			Points []struct {
				Value *float64 `json:"value"`
			} `json:"points"`
		} `json:"series"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fig))
	assert.Equal(t, "Parks change", fig.Title)
	assert.Equal(t, catalog.Parks.Column(), fig.Metric)
	require.Len(t, fig.Series, 2)
	// Table order: Buenos Aires sorts before Ciudad de Buenos Aires.
	assert.Equal(t, mercedes, fig.Series[0].Name)
	assert.Equal(t, caba, fig.Series[1].Name)
	assert.Len(t, fig.Series[0].Points, 2)
}

func TestIndexPage(t *testing.T) {
	t.Parallel()
	w := get(t, newTestServer(t), "/?table=1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	body := w.Body.String()
	assert.Contains(t, body, "Mobility Reports Dashboard")
	assert.Contains(t, body, "Últimas fechas")
	assert.Contains(t, body, "chart-mrm")
	assert.Contains(t, body, "chart-gmr")
	assert.Contains(t, body, `<option value="Mercedes, Buenos Aires" selected>`)
	assert.NotContains(t, body, `<option value="Córdoba, Córdoba" selected>`)
	assert.Equal(t, 4+1, strings.Count(body, "<tr>"), "header plus tail rows")
}

func TestIndexPage_ClearedSelectionStaysEmpty(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	w := get(t, h, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<input type="hidden" name="locality" value="">`)

	// A submitted form with nothing chosen carries only the empty field.
	w = get(t, h, "/?locality=&table=1")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.NotContains(t, body, `<option value="Mercedes, Buenos Aires" selected>`)
	assert.Zero(t, strings.Count(body, "<tr>"))
	assert.Contains(t, body, "Sin datos para la selección.")

	q := url.Values{"locality": {"", caba}, "table": {"1"}}
	w = get(t, h, "/?"+q.Encode())
	require.Equal(t, http.StatusOK, w.Code)
	body = w.Body.String()
	assert.Contains(t, body, `<option value="Distrito Federal, Ciudad de Buenos Aires" selected>`)
	assert.NotContains(t, body, `<option value="Mercedes, Buenos Aires" selected>`)
	assert.Equal(t, 2+1, strings.Count(body, "<tr>"))
}

func TestIndexPage_TailLimitedToFive(t *testing.T) {
	t.Parallel()
	q := url.Values{
		"locality": {mercedes, caba, cordoba},
		"start":    {"2020-02-01"},
		"end":      {"2020-04-01"},
		"table":    {"1"},
	}
	w := get(t, newTestServer(t), "/?"+q.Encode())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5+1, strings.Count(w.Body.String(), "<tr>"))
}

func TestChartPNG(t *testing.T) {
	t.Parallel()
	w := get(t, newTestServer(t), "/chart.png?metric=parks_percent_change_from_baseline&w=400&h=300")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestOGImage(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	for range 2 {
		w := get(t, h, "/og-image.png")
		require.Equal(t, http.StatusOK, w.Code)
		_, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
	}
}

func TestExportXLSX(t *testing.T) {
	t.Parallel()
	q := url.Values{"locality": {cordoba}}
	w := get(t, newTestServer(t), "/export.xlsx?"+q.Encode())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "mobility_2020-03-01_2020-03-04.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	assert.Len(t, rows, 1+2)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	get(t, h, "/api/records")
	w := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mobilitydash_filter_requests_total")
}
