package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/touchline-tools/touchlined/internal/models"
)

type fakeCoordinator struct {
	triggerResult bool
	triggered     int
	snapshot      models.ZoneSnapshot
	generation    uint64
}

func (f *fakeCoordinator) TriggerPoll() bool {
	f.triggered++
	return f.triggerResult
}

func (f *fakeCoordinator) Snapshot() models.ZoneSnapshot { return f.snapshot }
func (f *fakeCoordinator) Generation() uint64            { return f.generation }

type fakeHistory struct {
	zones map[string][]models.DailyAggregate
	names map[string]string
}

func (f *fakeHistory) ZoneIDs() []string {
	ids := make([]string, 0, len(f.zones))
	for id := range f.zones {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeHistory) ZoneName(zoneID string) string {
	if name, ok := f.names[zoneID]; ok {
		return name
	}
	return zoneID
}

func (f *fakeHistory) Query(zoneID string, from, to time.Time) []models.DailyAggregate {
	fromDate, toDate := models.DateOf(from), models.DateOf(to)
	var out []models.DailyAggregate
	for _, agg := range f.zones[zoneID] {
		if agg.Date >= fromDate && agg.Date <= toDate {
			out = append(out, agg)
		}
	}
	return out
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestServer(t *testing.T, coord *fakeCoordinator, hist *fakeHistory, pinger *fakePinger) http.Handler {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	handler, err := SetupServer(coord, hist, pinger, DefaultServerConfig(), logger, prometheus.NewRegistry())
	require.NoError(t, err)
	return handler
}

func testFixtures() (*fakeCoordinator, *fakeHistory, *fakePinger) {
	coord := &fakeCoordinator{
		triggerResult: true,
		snapshot: models.ZoneSnapshot{
			Readings: map[string]models.ZoneReading{
				"G0": {ZoneID: "G0", Name: "Living Room", CurrentTemp: models.Float64(21.5)},
			},
			LastSuccess: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		},
	}
	hist := &fakeHistory{
		zones: map[string][]models.DailyAggregate{
			"G0": {
				{ZoneID: "G0", Date: "2025-03-09", Count: 4, Sum: 84.0, Min: 20.0, Max: 22.0},
				{ZoneID: "G0", Date: "2025-03-10", Count: 2, Sum: 43.0, Min: 21.0, Max: 22.0},
			},
		},
		names: map[string]string{"G0": "Living Room"},
	}
	return coord, hist, &fakePinger{}
}

func TestPollEndpoint(t *testing.T) {
	coord, hist, pinger := testFixtures()
	server := newTestServer(t, coord, hist, pinger)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/poll", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, coord.triggered)

	var resp pollResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Started)
}

func TestPollEndpointConflictWhenBusy(t *testing.T) {
	coord, hist, pinger := testFixtures()
	coord.triggerResult = false
	server := newTestServer(t, coord, hist, pinger)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/poll", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSnapshotEndpoint(t *testing.T) {
	coord, hist, pinger := testFixtures()
	server := newTestServer(t, coord, hist, pinger)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.ZoneSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Contains(t, snap.Readings, "G0")
	assert.Equal(t, "Living Room", snap.Readings["G0"].Name)
}

func TestHistoryEndpoint(t *testing.T) {
	coord, hist, pinger := testFixtures()
	server := newTestServer(t, coord, hist, pinger)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/zones/G0/history?start=2025-03-09&end=2025-03-10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "G0", resp.ZoneID)
	assert.Equal(t, "Living Room", resp.ZoneName)
	require.Len(t, resp.Days, 2)
	assert.Equal(t, "2025-03-09", resp.Days[0].Date)
	assert.InDelta(t, 21.0, resp.Days[0].Average, 1e-9)
	assert.Equal(t, 4, resp.Days[0].SampleCount)
}

func TestHistoryEndpointEmptyZone(t *testing.T) {
	coord, hist, pinger := testFixtures()
	server := newTestServer(t, coord, hist, pinger)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/zones/G5/history?start=2025-03-09&end=2025-03-10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Days)
}

func TestHistoryEndpointInvalidZone(t *testing.T) {
	coord, hist, pinger := testFixtures()
	server := newTestServer(t, coord, hist, pinger)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/zones/bogus/history", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpointInvalidDates(t *testing.T) {
	coord, hist, pinger := testFixtures()
	server := newTestServer(t, coord, hist, pinger)

	for _, query := range []string{
		"start=not-a-date",
		"end=2025/03/10",
		"start=2025-03-11&end=2025-03-09",
	} {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/api/v1/zones/G0/history?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "query %q", query)
	}
}

func TestExportEndpoint(t *testing.T) {
	coord, hist, pinger := testFixtures()
	server := newTestServer(t, coord, hist, pinger)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/export?start=2025-03-09&end=2025-03-10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "touchline_export_")

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "date,zone_id,zone_name,min,max,average,sample_count", lines[0])
	assert.Equal(t, "2025-03-09,G0,Living Room,20.0,22.0,21.0,4", lines[1])
}

func TestExportEndpointInvalidZone(t *testing.T) {
	coord, hist, pinger := testFixtures()
	server := newTestServer(t, coord, hist, pinger)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/export?zones=G0,nope", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	coord, hist, pinger := testFixtures()
	server := newTestServer(t, coord, hist, pinger)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.DeviceOffline)
	require.NotNil(t, resp.LastSuccess)
}

func TestHealthEndpointDeviceUnreachable(t *testing.T) {
	coord, hist, pinger := testFixtures()
	pinger.err = errors.New("connection refused")
	server := newTestServer(t, coord, hist, pinger)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	coord, hist, pinger := testFixtures()
	server := newTestServer(t, coord, hist, pinger)

	// Drive one API request so the request counter has something to report.
	server.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil))

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "touchlined_http_requests_total")
}

func TestRequestIDPropagated(t *testing.T) {
	coord, hist, pinger := testFixtures()
	server := newTestServer(t, coord, hist, pinger)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
