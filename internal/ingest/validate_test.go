package ingest

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/mobilitydash/internal/catalog"
	"github.com/lox/mobilitydash/internal/models"
)

func withValues(values map[catalog.MetricID]float64) models.Record {
	var r models.Record
	for id, v := range values {
		r.Metrics[id] = sql.NullFloat64{Float64: v, Valid: true}
	}
	return r
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name      string
		rec       models.Record
		wantFlags []string
	}{
		{
			name: "valid record - no flags",
			rec: withValues(map[catalog.MetricID]float64{
				catalog.ChangeInMovement: -0.4,
				catalog.StayPut:          0.3,
				catalog.Parks:            -0.6,
				catalog.Residential:      0.2,
				catalog.StringencyIndex:  87.96,
			}),
		},
		{
			name: "empty record - no flags",
			rec:  models.Record{},
		},
		{
			name:      "movement below -100%",
			rec:       withValues(map[catalog.MetricID]float64{catalog.ChangeInMovement: -1.2}),
			wantFlags: []string{FlagMovementBelowFloor},
		},
		{
			name: "movement at floor - valid",
			rec:  withValues(map[catalog.MetricID]float64{catalog.ChangeInMovement: -1}),
		},
		{
			name:      "stay put above one",
			rec:       withValues(map[catalog.MetricID]float64{catalog.StayPut: 1.01}),
			wantFlags: []string{FlagStayPutOutOfRange},
		},
		{
			name: "parks surge flagged once",
			rec: withValues(map[catalog.MetricID]float64{
				catalog.Parks:           1.5,
				catalog.TransitStations: -1.1,
			}),
			wantFlags: []string{FlagCategoryOutOfRange},
		},
		{
			name:      "stringency above 100",
			rec:       withValues(map[catalog.MetricID]float64{catalog.StringencyIndex: 101}),
			wantFlags: []string{FlagStringencyOutOfRange},
		},
		{
			name: "multiple flags",
			rec: withValues(map[catalog.MetricID]float64{
				catalog.StayPut:         -0.1,
				catalog.StringencyIndex: -5,
			}),
			wantFlags: []string{FlagStayPutOutOfRange, FlagStringencyOutOfRange},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := ValidateRecord(tt.rec)
			if tt.wantFlags == nil {
				assert.Empty(t, flags)
				return
			}
			assert.Equal(t, tt.wantFlags, flags)
		})
	}
}

func TestParseRecords_CountsFlags(t *testing.T) {
	_, stats, err := parseRecords("test.csv", header(), [][]string{
		row("0", "2020-01-01", "Buenos Aires", "Mercedes", mercedes, map[catalog.MetricID]string{catalog.Parks: "150"}),
		row("1", "2020-01-02", "Buenos Aires", "Mercedes", mercedes, map[catalog.MetricID]string{catalog.Parks: "99"}),
		row("2", "2020-01-03", "Buenos Aires", "Mercedes", mercedes, map[catalog.MetricID]string{catalog.Parks: "-101"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.flags[FlagCategoryOutOfRange])
}

func TestParseRecords_LocalityBelongsToOneRegion(t *testing.T) {
	_, _, err := parseRecords("test.csv", header(), [][]string{
		row("0", "2020-01-02", "Buenos Aires", "Mercedes", "X", map[catalog.MetricID]string{catalog.Parks: "10"}),
		row("1", "2020-01-02", "San Luis", "Mercedes", "X", map[catalog.MetricID]string{catalog.Parks: "90"}),
	})
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, KindLocalityConflict, le.Kind)
	assert.Equal(t, 3, le.Row)
	assert.Contains(t, le.Error(), "row 2")

	// Distinct keys in the same region are fine.
	records, _, err := parseRecords("test.csv", header(), [][]string{
		row("0", "2020-01-02", "Buenos Aires", "Mercedes", "X", nil),
		row("1", "2020-01-02", "Buenos Aires", "Mercedes", "Y", nil),
		row("2", "2020-01-03", "Buenos Aires", "Mercedes", "X", nil),
	})
	require.NoError(t, err)
	assert.Len(t, records, 3)
}
