// Package export renders history aggregates as delimited tabular data.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/touchline-tools/touchlined/internal/models"
)

// Header is the stable CSV column contract.
var Header = []string{"date", "zone_id", "zone_name", "min", "max", "average", "sample_count"}

// Source is the read surface the history store exposes to the exporter.
type Source interface {
	ZoneIDs() []string
	ZoneName(zoneID string) string
	Query(zoneID string, from, to time.Time) []models.DailyAggregate
}

// Write renders a date-bounded slice of history as CSV rows: one row per
// (zone, day) with data, zones ascending by index, dates ascending within
// each zone. Days without samples are omitted. An empty zones slice means
// every zone with history.
func Write(w io.Writer, src Source, zones []string, from, to time.Time) error {
	if len(zones) == 0 {
		zones = src.ZoneIDs()
	} else {
		zones = append([]string(nil), zones...)
		sort.Slice(zones, func(i, j int) bool {
			return models.ZoneIndex(zones[i]) < models.ZoneIndex(zones[j])
		})
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, zoneID := range zones {
		name := src.ZoneName(zoneID)
		for _, agg := range src.Query(zoneID, from, to) {
			row := []string{
				agg.Date,
				agg.ZoneID,
				name,
				formatTemp(agg.Min),
				formatTemp(agg.Max),
				formatTemp(agg.Average()),
				strconv.Itoa(agg.Count),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// Temperatures are rendered with fixed one-decimal precision.
func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// Filename builds the default export file name, stamped with the given time.
func Filename(t time.Time) string {
	return fmt.Sprintf("touchline_export_%s.csv", t.Format("20060102_150405"))
}
