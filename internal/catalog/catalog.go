// Package catalog is the fixed registry of mobility metrics shown on the
// dashboard: the Movement Range Maps ratios, the Google Mobility Report
// category changes and the Oxford stringency index.
package catalog

import (
	"errors"
	"fmt"
)

// ErrUnknownMetric is matched by every UnknownMetricError.
var ErrUnknownMetric = errors.New("unknown metric")

// UnknownMetricError reports a lookup of a column id that is not in the registry.
type UnknownMetricError struct {
	ID string
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("unknown metric %q", e.ID)
}

func (e *UnknownMetricError) Is(target error) bool {
	return target == ErrUnknownMetric
}

// Family groups metrics that are charted together.
type Family string

const (
	FamilyMobilityChange   Family = "mobility-change"
	FamilyStayPut          Family = "stay-put"
	FamilyCategoryMobility Family = "category-mobility"
	FamilyPolicyIndex      Family = "policy-index"
)

// MetricID is the closed set of metric columns a record carries.
type MetricID int

const (
	ChangeInMovement MetricID = iota
	StayPut
	RetailRecreation
	GroceryPharmacy
	Parks
	TransitStations
	Workplaces
	Residential
	StringencyIndex

	// NumMetrics sizes per-record metric arrays.
	NumMetrics
)

// Entry is one registry row.
type Entry struct {
	ID     MetricID `json:"-"`
	Column string   `json:"column"`
	Label  string   `json:"label"`
	Family Family   `json:"family"`
}

// Registry order is the order used for selects and MembersOf.
var entries = [NumMetrics]Entry{
	{ChangeInMovement, "all_day_bing_tiles_visited_relative_change", "Change in Movement", FamilyMobilityChange},
	{StayPut, "all_day_ratio_single_tile_users", "Stay Put", FamilyMobilityChange},
	{RetailRecreation, "retail_and_recreation_percent_change_from_baseline", "Retail and recreation change", FamilyCategoryMobility},
	{GroceryPharmacy, "grocery_and_pharmacy_percent_change_from_baseline", "Grocery and pharmacy change", FamilyCategoryMobility},
	{Parks, "parks_percent_change_from_baseline", "Parks change", FamilyCategoryMobility},
	{TransitStations, "transit_stations_percent_change_from_baseline", "Transit stations change", FamilyCategoryMobility},
	{Workplaces, "workplaces_percent_change_from_baseline", "Workplaces change", FamilyCategoryMobility},
	{Residential, "residential_percent_change_from_baseline", "Residential change", FamilyCategoryMobility},
	{StringencyIndex, "strindex", "Oxford Stringency Index", FamilyPolicyIndex},
}

var byColumn = func() map[string]MetricID {
	m := make(map[string]MetricID, NumMetrics)
	for _, e := range entries {
		m[e.Column] = e.ID
	}
	return m
}()

// Entries returns a copy of the registry in order.
func Entries() []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries[:])
	return out
}

// Parse maps a column id to its MetricID.
func Parse(column string) (MetricID, error) {
	id, ok := byColumn[column]
	if !ok {
		return 0, &UnknownMetricError{ID: column}
	}
	return id, nil
}

// Resolve returns the display label for a column id.
func Resolve(column string) (string, error) {
	id, err := Parse(column)
	if err != nil {
		return "", err
	}
	return id.Label(), nil
}

// MembersOf returns the labels of a family in registry order. Families
// without members, and unrecognised families, yield an empty slice.
func MembersOf(f Family) []string {
	labels := []string{}
	for _, e := range entries {
		if e.Family == f {
			labels = append(labels, e.Label)
		}
	}
	return labels
}

// IDsOf is MembersOf returning ids instead of labels.
func IDsOf(f Family) []MetricID {
	ids := []MetricID{}
	for _, e := range entries {
		if e.Family == f {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Valid reports whether id is one of the registered metrics.
func (id MetricID) Valid() bool {
	return id >= 0 && id < NumMetrics
}

func (id MetricID) Entry() Entry {
	if !id.Valid() {
		return Entry{ID: id}
	}
	return entries[id]
}

func (id MetricID) Column() string { return id.Entry().Column }
func (id MetricID) Label() string  { return id.Entry().Label }
func (id MetricID) Family() Family { return id.Entry().Family }

// Percentage reports whether the raw column is published in percentage
// points and must be divided by 100 at load.
func (id MetricID) Percentage() bool {
	return id.Family() == FamilyCategoryMobility
}

func (id MetricID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("MetricID(%d)", int(id))
	}
	return entries[id].Column
}
