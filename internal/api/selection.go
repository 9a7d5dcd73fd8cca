package api

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lox/mobilitydash/internal/catalog"
	"github.com/lox/mobilitydash/internal/models"
	"github.com/lox/mobilitydash/internal/store"
)

// Selection is the user's dashboard state, parsed from the query string.
type Selection struct {
	Localities []string
	Start      time.Time
	End        time.Time
	Movement   catalog.MetricID // mobility-change chart
	Category   catalog.MetricID // category-mobility chart
	ShowTable  bool
}

func (sel Selection) Query() store.Query {
	return store.Query{Localities: sel.Localities, Start: sel.Start, End: sel.End}
}

// badRequestError marks input that is rejected before filtering.
type badRequestError struct {
	param string
	err   error
}

func (e *badRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.param, e.err)
}

func (e *badRequestError) Unwrap() error { return e.err }

// parseSelection reads the selection from q, falling back to defaults:
// the configured localities that exist in the table, the full date span
// of the table and the first metric of each chart family.
//
// An explicitly empty locality parameter ("locality=") selects nothing. The
// dashboard form always sends one so that clearing the multi-select is not
// mistaken for a fresh visit.
// Unknown localities are kept and simply match no rows.
func (s *Server) parseSelection(q url.Values, tbl *store.Table) (Selection, error) {
	sel := Selection{
		Start:     tbl.MinDate(),
		End:       tbl.MaxDate(),
		Movement:  catalog.ChangeInMovement,
		Category:  catalog.RetailRecreation,
		ShowTable: q.Get("table") == "1" || q.Get("table") == "true",
	}

	if vals, ok := q["locality"]; ok {
		sel.Localities = []string{}
		for _, v := range vals {
			for _, name := range strings.Split(v, ";") {
				if name = strings.TrimSpace(name); name != "" {
					sel.Localities = append(sel.Localities, name)
				}
			}
		}
	} else {
		sel.Localities = s.defaultLocalities(tbl)
	}

	var err error
	if v := q.Get("start"); v != "" {
		if sel.Start, err = models.ParseDay(v); err != nil {
			return sel, &badRequestError{"start", err}
		}
	}
	if v := q.Get("end"); v != "" {
		if sel.End, err = models.ParseDay(v); err != nil {
			return sel, &badRequestError{"end", err}
		}
	}

	if v := q.Get("mrm"); v != "" {
		if sel.Movement, err = parseMetricIn(v, catalog.FamilyMobilityChange); err != nil {
			return sel, &badRequestError{"mrm", err}
		}
	}
	if v := q.Get("gmr"); v != "" {
		if sel.Category, err = parseMetricIn(v, catalog.FamilyCategoryMobility); err != nil {
			return sel, &badRequestError{"gmr", err}
		}
	}
	return sel, nil
}

// defaultLocalities keeps the configured defaults present in the table. If
// none are present the first locality is used so the page is never blank.
func (s *Server) defaultLocalities(tbl *store.Table) []string {
	out := []string{}
	for _, name := range s.defaults {
		if tbl.HasLocality(name) {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		if all := tbl.Localities(); len(all) > 0 {
			out = append(out, all[0])
		}
	}
	return out
}

// parseMetric accepts a column id or a display label.
func parseMetric(v string) (catalog.MetricID, error) {
	id, err := catalog.Parse(v)
	if err == nil {
		return id, nil
	}
	for _, e := range catalog.Entries() {
		if e.Label == v {
			return e.ID, nil
		}
	}
	return 0, err
}

func parseMetricIn(v string, family catalog.Family) (catalog.MetricID, error) {
	id, err := parseMetric(v)
	if err != nil {
		return 0, err
	}
	if id.Family() != family {
		return 0, fmt.Errorf("metric %q is not in family %s", v, family)
	}
	return id, nil
}
