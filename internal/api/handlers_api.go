package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/lox/mobilitydash/internal/catalog"
	"github.com/lox/mobilitydash/internal/charts"
	"github.com/lox/mobilitydash/internal/metrics"
	"github.com/lox/mobilitydash/internal/models"
	"github.com/lox/mobilitydash/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps selection errors to 400 and anything else to 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var bad *badRequestError
	if errors.As(err, &bad) {
		status = http.StatusBadRequest
	} else {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

// filtered loads the table, parses the selection and runs the filter.
func (s *Server) filtered(r *http.Request, endpoint string) (*store.Table, Selection, []models.Record, error) {
	tbl, err := s.table(r)
	if err != nil {
		return nil, Selection{}, nil, err
	}
	sel, err := s.parseSelection(r.URL.Query(), tbl)
	if err != nil {
		return tbl, sel, nil, err
	}
	rows := tbl.Filter(sel.Query())
	metrics.FilterRequests.WithLabelValues(endpoint).Inc()
	metrics.FilterRows.Observe(float64(len(rows)))
	return tbl, sel, rows, nil
}

type healthResponse struct {
	Status     string `json:"status"`
	Source     string `json:"source"`
	Rows       int    `json:"rows,omitempty"`
	Localities int    `json:"localities,omitempty"`
	MinDate    string `json:"min_date,omitempty"`
	MaxDate    string `json:"max_date,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.table(r)
	if err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, healthResponse{Status: "error", Source: s.source, Error: err.Error()})
		return
	}
	render.JSON(w, r, healthResponse{
		Status:     "ok",
		Source:     s.source,
		Rows:       tbl.Len(),
		Localities: len(tbl.Localities()),
		MinDate:    tbl.MinDate().Format(models.DateLayout),
		MaxDate:    tbl.MaxDate().Format(models.DateLayout),
	})
}

type localitiesResponse struct {
	Localities []string `json:"localities"`
	Defaults   []string `json:"defaults"`
	MinDate    string   `json:"min_date"`
	MaxDate    string   `json:"max_date"`
}

func (s *Server) handleAPILocalities(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.table(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, localitiesResponse{
		Localities: tbl.Localities(),
		Defaults:   s.defaultLocalities(tbl),
		MinDate:    tbl.MinDate().Format(models.DateLayout),
		MaxDate:    tbl.MaxDate().Format(models.DateLayout),
	})
}

type catalogResponse struct {
	Metrics  []catalog.Entry             `json:"metrics"`
	Families map[catalog.Family][]string `json:"families"`
}

func (s *Server) handleAPICatalog(w http.ResponseWriter, r *http.Request) {
	families := []catalog.Family{
		catalog.FamilyMobilityChange,
		catalog.FamilyStayPut,
		catalog.FamilyCategoryMobility,
		catalog.FamilyPolicyIndex,
	}
	resp := catalogResponse{
		Metrics:  catalog.Entries(),
		Families: make(map[catalog.Family][]string, len(families)),
	}
	for _, f := range families {
		resp.Families[f] = catalog.MembersOf(f)
	}
	render.JSON(w, r, resp)
}

type recordsResponse struct {
	Count   int          `json:"count"`
	Start   string       `json:"start"`
	End     string       `json:"end"`
	Records []RecordView `json:"records"`
}

func (s *Server) handleAPIRecords(w http.ResponseWriter, r *http.Request) {
	_, sel, rows, err := s.filtered(r, "records")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, recordsResponse{
		Count:   len(rows),
		Start:   sel.Start.Format(models.DateLayout),
		End:     sel.End.Format(models.DateLayout),
		Records: recordViews(rows),
	})
}

// handleAPISeries returns the figure for ?metric=, defaulting to the
// mobility-change selection.
func (s *Server) handleAPISeries(w http.ResponseWriter, r *http.Request) {
	_, sel, rows, err := s.filtered(r, "series")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metric, err := metricParam(r, sel.Movement)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, charts.Build(rows, metric))
}

func metricParam(r *http.Request, def catalog.MetricID) (catalog.MetricID, error) {
	v := r.URL.Query().Get("metric")
	if v == "" {
		return def, nil
	}
	id, err := parseMetric(v)
	if err != nil {
		return 0, &badRequestError{"metric", err}
	}
	return id, nil
}
