package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ZoneReading is one zone's state as observed by a single poll. Readings are
// immutable; a later poll supersedes them wholesale.
type ZoneReading struct {
	ZoneID      string    `json:"zone_id"`
	Name        string    `json:"name"`
	CurrentTemp *float64  `json:"current_temp_c,omitempty"`
	TargetTemp  *float64  `json:"target_temp_c,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
}

// SystemStatus is the controller's R0.SystemStatus register, one per poll.
type SystemStatus struct {
	Code       int       `json:"raw_code"`
	ObservedAt time.Time `json:"observed_at"`
}

// ZoneSnapshot is the poll coordinator's externally visible state. It is
// replaced atomically after each poll attempt; readers always get a copy.
type ZoneSnapshot struct {
	Readings            map[string]ZoneReading `json:"readings"`
	System              *SystemStatus          `json:"system_status,omitempty"`
	LastSuccess         time.Time              `json:"last_success_at"`
	ConsecutiveFailures int                    `json:"consecutive_failures"`
	Offline             bool                   `json:"offline"`
}

// Clone returns a deep copy safe to hand to readers.
func (s ZoneSnapshot) Clone() ZoneSnapshot {
	out := s
	out.Readings = make(map[string]ZoneReading, len(s.Readings))
	for id, r := range s.Readings {
		out.Readings[id] = r
	}
	if s.System != nil {
		sys := *s.System
		out.System = &sys
	}
	return out
}

// DailyAggregate accumulates a zone's temperature samples for one local
// calendar day. Average is derived from Sum/Count, never stored.
type DailyAggregate struct {
	ZoneID string  `json:"zone_id"`
	Date   string  `json:"date"` // YYYY-MM-DD, local time
	Count  int     `json:"sample_count"`
	Sum    float64 `json:"-"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Average returns the mean of all samples recorded for the day.
func (a DailyAggregate) Average() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// DateOf formats t as the aggregate date key in t's location.
func DateOf(t time.Time) string {
	return t.Format("2006-01-02")
}

// ZoneID builds the canonical id for a zone index ("G0", "G1", ...).
func ZoneID(index int) string {
	return fmt.Sprintf("G%d", index)
}

// ZoneIndex parses the numeric index out of a zone id. Returns -1 for ids
// outside the G<n> scheme so malformed ids sort last.
func ZoneIndex(zoneID string) int {
	num, ok := strings.CutPrefix(zoneID, "G")
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// Float64 returns a pointer to v, for building optional reading fields.
func Float64(v float64) *float64 {
	return &v
}
