package charts

import (
	"bytes"
	"database/sql"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/mobilitydash/internal/catalog"
	"github.com/lox/mobilitydash/internal/models"
)

func rec(locality, date string, parks *float64) models.Record {
	d, err := models.ParseDay(date)
	if err != nil {
		panic(err)
	}
	r := models.Record{Locality: locality, Date: d}
	if parks != nil {
		r.Metrics[catalog.Parks] = sql.NullFloat64{Float64: *parks, Valid: true}
	}
	return r
}

func f(v float64) *float64 { return &v }

func TestBuild_OneSeriesPerLocality(t *testing.T) {
	records := []models.Record{
		rec("Mercedes, Buenos Aires", "2020-03-01", f(0.1)),
		rec("Mercedes, Buenos Aires", "2020-03-02", nil),
		rec("Distrito Federal, Ciudad de Buenos Aires", "2020-03-01", f(-0.2)),
		rec("Mercedes, Buenos Aires", "2020-03-03", f(0.3)),
	}

	fig := Build(records, catalog.Parks)
	assert.Equal(t, "Parks change", fig.Title)
	assert.Equal(t, "parks_percent_change_from_baseline", fig.Metric)
	assert.True(t, fig.Percentage)

	require.Len(t, fig.Series, 2)
	assert.Equal(t, "Mercedes, Buenos Aires", fig.Series[0].Name)
	assert.Equal(t, "Distrito Federal, Ciudad de Buenos Aires", fig.Series[1].Name)

	pts := fig.Series[0].Points
	require.Len(t, pts, 3)
	assert.InDelta(t, 0.1, *pts[0].Value, 1e-12)
	assert.Nil(t, pts[1].Value, "missing values stay as gaps")
	assert.InDelta(t, 0.3, *pts[2].Value, 1e-12)

	assert.Equal(t, []string{"2020-03-01", "2020-03-02", "2020-03-03"}, fig.Labels())
	assert.False(t, fig.Empty())
}

func TestBuild_Empty(t *testing.T) {
	fig := Build(nil, catalog.StringencyIndex)
	assert.NotNil(t, fig.Series)
	assert.Empty(t, fig.Series)
	assert.True(t, fig.Empty())
	assert.False(t, fig.Percentage)

	fig = Build([]models.Record{rec("X", "2020-03-01", nil)}, catalog.Parks)
	assert.Len(t, fig.Series, 1)
	assert.True(t, fig.Empty())
}

func decodeSize(t *testing.T, b []byte) (int, int) {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestRenderPNG(t *testing.T) {
	tests := []struct {
		name    string
		records []models.Record
	}{
		{"two localities", []models.Record{
			rec("A", "2020-03-01", f(0.1)),
			rec("A", "2020-03-02", f(0.2)),
			rec("B", "2020-03-01", f(-0.1)),
			rec("B", "2020-03-02", nil),
			rec("B", "2020-03-03", f(-0.3)),
		}},
		{"single point", []models.Record{rec("A", "2020-03-01", f(0.1))}},
		{"flat line", []models.Record{rec("A", "2020-03-01", f(0)), rec("A", "2020-03-02", f(0))}},
		{"no data", nil},
		{"all missing", []models.Record{rec("A", "2020-03-01", nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, RenderPNG(&buf, Build(tt.records, catalog.Parks), 640, 320))
			w, h := decodeSize(t, buf.Bytes())
			assert.Equal(t, 640, w)
			assert.Equal(t, 320, h)
		})
	}
}

func TestRenderPNG_BadSize(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, RenderPNG(&buf, Figure{}, 0, 100), ErrBadSize)
	assert.ErrorIs(t, RenderPNG(&buf, Figure{}, 100, MaxHeight+1), ErrBadSize)
}

func TestColor(t *testing.T) {
	assert.Equal(t, "#1f77b4", Color(0))
	assert.Equal(t, Color(0), Color(len(palette)))
}
