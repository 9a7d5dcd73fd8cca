package charts

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultWidth  = 1024
	DefaultHeight = 480
	MaxWidth      = 4096
	MaxHeight     = 4096
)

// palette follows the usual plotting default so traces keep the same
// colours in the browser charts and in PNGs.
var palette = []string{
	"1f77b4", "ff7f0e", "2ca02c", "d62728", "9467bd",
	"8c564b", "e377c2", "7f7f7f", "bcbd22", "17becf",
}

// Color returns the hex colour for the i-th trace.
func Color(i int) string {
	return "#" + palette[i%len(palette)]
}

// ErrBadSize is returned for dimensions outside (0, Max].
var ErrBadSize = errors.New("chart size out of range")

// RenderPNG draws fig as a line chart. Gaps are bridged in the raster
// output. A figure with nothing to plot renders a "No data" placeholder
// rather than failing.
func RenderPNG(w io.Writer, fig Figure, width, height int) error {
	if width <= 0 || height <= 0 || width > MaxWidth || height > MaxHeight {
		return fmt.Errorf("%w: %dx%d", ErrBadSize, width, height)
	}
	if fig.Empty() {
		return renderPlaceholder(w, fig.Title, width, height)
	}

	var series []chart.Series
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, s := range fig.Series {
		var xs []time.Time
		var ys []float64
		for _, p := range s.Points {
			if p.Value == nil {
				continue
			}
			xs = append(xs, p.Date)
			ys = append(ys, *p.Value)
			lo, hi = min(lo, *p.Value), max(hi, *p.Value)
		}
		if len(xs) == 0 {
			continue
		}
		// go-chart needs a non-zero x range.
		if len(xs) == 1 {
			xs = append(xs, xs[0].Add(time.Hour))
			ys = append(ys, ys[0])
		}
		col := drawing.ColorFromHex(palette[i%len(palette)])
		series = append(series, chart.TimeSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: col,
				StrokeWidth: 2,
				DotColor:    col,
				DotWidth:    2,
			},
		})
	}

	yAxis := chart.YAxis{Name: fig.Title}
	if fig.Percentage {
		yAxis.ValueFormatter = chart.PercentValueFormatter
	}
	// A flat line has a zero y range, which go-chart rejects.
	if lo == hi {
		pad := math.Max(math.Abs(lo)*0.1, 0.01)
		yAxis.Range = &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
	}

	ch := chart.Chart{
		Title:      fig.Title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{ValueFormatter: chart.TimeDateValueFormatter},
		YAxis:      yAxis,
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render %s: %w", fig.Metric, err)
	}
	return nil
}

func renderPlaceholder(w io.Writer, title string, width, height int) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	face := basicfont.Face7x13
	gray := image.NewUniform(color.RGBA{120, 120, 120, 255})
	lines := []string{title, "No data for this selection"}
	for i, text := range lines {
		if text == "" {
			continue
		}
		d := &font.Drawer{Dst: img, Src: gray, Face: face}
		tw := d.MeasureString(text).Round()
		d.Dot = fixed.Point26_6{
			X: fixed.I((width - tw) / 2),
			Y: fixed.I(height/2 + (i-1)*20),
		}
		d.DrawString(text)
	}
	return png.Encode(w, img)
}
