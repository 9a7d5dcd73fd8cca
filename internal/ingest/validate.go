package ingest

import (
	"github.com/lox/mobilitydash/internal/catalog"
	"github.com/lox/mobilitydash/internal/models"
)

// Quality flags for values that load but fall outside what the publishers
// document. Flagged rows are kept; the loader only reports counts.
const (
	FlagMovementBelowFloor   = "movement_below_floor"
	FlagStayPutOutOfRange    = "stay_put_out_of_range"
	FlagCategoryOutOfRange   = "category_out_of_range"
	FlagStringencyOutOfRange = "stringency_out_of_range"
)

// ValidateRecord returns the quality flags for a parsed record. Category
// values are checked after scaling, so the bound is a fraction of one.
func ValidateRecord(r models.Record) []string {
	var flags []string

	if v, ok := r.Value(catalog.ChangeInMovement); ok && v < -1 {
		flags = append(flags, FlagMovementBelowFloor)
	}

	if v, ok := r.Value(catalog.StayPut); ok && (v < 0 || v > 1) {
		flags = append(flags, FlagStayPutOutOfRange)
	}

	for _, id := range catalog.IDsOf(catalog.FamilyCategoryMobility) {
		if v, ok := r.Value(id); ok && (v < -1 || v > 1) {
			flags = append(flags, FlagCategoryOutOfRange)
			break
		}
	}

	if v, ok := r.Value(catalog.StringencyIndex); ok && (v < 0 || v > 100) {
		flags = append(flags, FlagStringencyOutOfRange)
	}

	return flags
}
