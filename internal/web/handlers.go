package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/touchline-tools/touchlined/internal/export"
	"github.com/touchline-tools/touchlined/internal/models"
)

const defaultHistoryDays = 7

// Handler serves the versioned API endpoints.
type Handler struct {
	coordinator Coordinator
	history     export.Source
	pinger      Pinger
	logger      *logrus.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type pollResponse struct {
	Started bool `json:"started"`
}

type dayStats struct {
	Date        string  `json:"date"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Average     float64 `json:"average"`
	SampleCount int     `json:"sample_count"`
}

type historyResponse struct {
	ZoneID   string     `json:"zone_id"`
	ZoneName string     `json:"zone_name"`
	Days     []dayStats `json:"days"`
}

type healthResponse struct {
	Status        string     `json:"status"`
	DeviceOffline bool       `json:"device_offline"`
	LastSuccess   *time.Time `json:"last_success,omitempty"`
}

func (h *Handler) handlePoll(w http.ResponseWriter, r *http.Request) {
	if !h.coordinator.TriggerPoll() {
		writeJSON(w, http.StatusConflict, pollResponse{Started: false})
		return
	}
	writeJSON(w, http.StatusAccepted, pollResponse{Started: true})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coordinator.Snapshot())
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	zoneID := r.PathValue("zone")
	if models.ZoneIndex(zoneID) < 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid zone id %q", zoneID))
		return
	}

	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := historyResponse{
		ZoneID:   zoneID,
		ZoneName: h.history.ZoneName(zoneID),
		Days:     []dayStats{},
	}
	for _, agg := range h.history.Query(zoneID, from, to) {
		resp.Days = append(resp.Days, dayStats{
			Date:        agg.Date,
			Min:         agg.Min,
			Max:         agg.Max,
			Average:     agg.Average(),
			SampleCount: agg.Count,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var zones []string
	if raw := r.URL.Query().Get("zones"); raw != "" {
		for _, z := range strings.Split(raw, ",") {
			z = strings.TrimSpace(z)
			if models.ZoneIndex(z) < 0 {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid zone id %q", z))
				return
			}
			zones = append(zones, z)
		}
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.Filename(time.Now())))
	if err := export.Write(w, h.history, zones, from, to); err != nil {
		h.logger.WithError(err).Error("Failed to write export")
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	snap := h.coordinator.Snapshot()
	resp := healthResponse{Status: "ok", DeviceOffline: snap.Offline}
	if !snap.LastSuccess.IsZero() {
		t := snap.LastSuccess
		resp.LastSuccess = &t
	}

	if err := h.pinger.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("Health probe failed to reach device")
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// dateRange reads start/end query parameters as ISO dates, defaulting to the
// last week ending today.
func dateRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -defaultHistoryDays)
	to := now

	if raw := r.URL.Query().Get("start"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date: %v", err)
		}
		from = d
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date: %v", err)
		}
		to = d
	}
	if models.DateOf(from) > models.DateOf(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("start date %s is after end date %s",
			models.DateOf(from), models.DateOf(to))
	}
	return from, to, nil
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD, got %q", raw)
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
