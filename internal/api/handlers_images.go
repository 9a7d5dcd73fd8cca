package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/lox/mobilitydash/internal/charts"
	"github.com/lox/mobilitydash/internal/imagegen"
	"github.com/lox/mobilitydash/internal/metrics"
)

// handleChartPNG renders one figure with go-chart. ?metric= picks the
// metric; w and h set the size.
func (s *Server) handleChartPNG(w http.ResponseWriter, r *http.Request) {
	_, sel, rows, err := s.filtered(r, "chart")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metric, err := metricParam(r, sel.Movement)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	width, err := sizeParam(r, "w", charts.DefaultWidth)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	height, err := sizeParam(r, "h", charts.DefaultHeight)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := charts.RenderPNG(&buf, charts.Build(rows, metric), width, height); err != nil {
		metrics.ChartRenders.WithLabelValues("png", "error").Inc()
		if errors.Is(err, charts.ErrBadSize) {
			err = &badRequestError{"size", err}
		}
		s.writeError(w, r, err)
		return
	}
	metrics.ChartRenders.WithLabelValues("png", "ok").Inc()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(buf.Bytes())
}

func sizeParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &badRequestError{name, err}
	}
	return n, nil
}

// handleOGImage serves the social preview card for the current selection.
func (s *Server) handleOGImage(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.table(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sel, err := s.parseSelection(r.URL.Query(), tbl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	key := ogKey(sel)
	if data, ok := s.ogCache.Get(key); ok {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Write(data)
		return
	}

	data, err := imagegen.GenerateOGImage(imagegen.OGImageData{
		Title:      pageTitle,
		Localities: len(sel.Localities),
		Start:      sel.Start,
		End:        sel.End,
		Metrics:    []string{sel.Movement.Label(), sel.Category.Label()},
	})
	if err != nil {
		metrics.ChartRenders.WithLabelValues("og", "error").Inc()
		s.writeError(w, r, err)
		return
	}
	metrics.ChartRenders.WithLabelValues("og", "ok").Inc()
	s.ogCache.Set(key, data)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}

func ogKey(sel Selection) string {
	return strconv.Itoa(len(sel.Localities)) + "|" +
		sel.Start.Format("20060102") + "|" + sel.End.Format("20060102") + "|" +
		strings.Join([]string{sel.Movement.Column(), sel.Category.Column()}, ",")
}

