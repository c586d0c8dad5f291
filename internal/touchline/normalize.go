package touchline

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/touchline-tools/touchlined/internal/models"
)

// Normalize maps raw register values into typed per-zone readings.
//
// Zones with no recognized registers at all are excluded; this is how
// discovery truncates below the configured maximum when the controller
// exposes fewer zones than requested. A present but non-numeric temperature
// register only blanks that field, never the zone or its siblings.
func Normalize(values map[string]string, zoneCount int, observedAt time.Time, logger *logrus.Logger) (map[string]models.ZoneReading, *models.SystemStatus) {
	readings := make(map[string]models.ZoneReading)

	for i := 0; i < zoneCount; i++ {
		zoneID := models.ZoneID(i)

		rawCurrent, hasCurrent := values[fmt.Sprintf(regCurrentTemp, i)]
		rawTarget, hasTarget := values[fmt.Sprintf(regTargetTemp, i)]
		name, hasName := values[fmt.Sprintf(regZoneName, i)]

		if !hasCurrent && !hasTarget && !hasName {
			continue
		}

		reading := models.ZoneReading{
			ZoneID:     zoneID,
			Name:       zoneID,
			ObservedAt: observedAt,
		}
		if hasName && name != "" {
			reading.Name = name
		}
		if hasCurrent {
			reading.CurrentTemp = parseTemperature(rawCurrent, zoneID, "RaumTemp", logger)
		}
		if hasTarget {
			reading.TargetTemp = parseTemperature(rawTarget, zoneID, "SollTemp", logger)
		}

		readings[zoneID] = reading
	}

	return readings, parseSystemStatus(values, observedAt, logger)
}

// parseTemperature converts a fixed-point hundredths register into degrees
// Celsius, or nil when the raw value is not numeric.
func parseTemperature(raw, zoneID, register string, logger *logrus.Logger) *float64 {
	hundredths, err := strconv.Atoi(raw)
	if err != nil {
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"zone_id":  zoneID,
				"register": register,
				"raw":      raw,
			}).Warn("Non-numeric temperature register")
		}
		return nil
	}
	return models.Float64(float64(hundredths) / 100.0)
}

func parseSystemStatus(values map[string]string, observedAt time.Time, logger *logrus.Logger) *models.SystemStatus {
	raw, ok := values[SystemStatusRegister]
	if !ok {
		return nil
	}

	code, err := strconv.Atoi(raw)
	if err != nil {
		if logger != nil {
			logger.WithField("raw", raw).Warn("Non-numeric system status register")
		}
		return nil
	}

	return &models.SystemStatus{Code: code, ObservedAt: observedAt}
}
