package poller

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/touchline-tools/touchlined/internal/models"
)

// Metrics exposes the coordinator's view of the controller to prometheus.
type Metrics struct {
	temp        *prometheus.GaugeVec
	setpoint    *prometheus.GaugeVec
	system      prometheus.Gauge
	offline     prometheus.Gauge
	failures    prometheus.Gauge
	lastSuccess prometheus.Gauge
	polls       *prometheus.CounterVec
}

// NewMetrics creates the coordinator's metric set.
func NewMetrics() *Metrics {
	labels := []string{"zone_id", "zone_name"}
	return &Metrics{
		temp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "touchlined_zone_temperature_celsius",
			Help: "Current temperature per zone",
		}, labels),
		setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "touchlined_zone_target_temperature_celsius",
			Help: "Target temperature per zone",
		}, labels),
		system: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "touchlined_system_status_code",
			Help: "Raw controller status code",
		}),
		offline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "touchlined_device_offline_bool",
			Help: "Controller marked offline (1=offline, 0=reachable)",
		}),
		failures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "touchlined_consecutive_failures",
			Help: "Consecutive poll failures since the last success",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "touchlined_last_success_timestamp_seconds",
			Help: "Last successful poll timestamp (epoch seconds)",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "touchlined_polls_total",
			Help: "Poll attempts by result",
		}, []string{"result"}),
	}
}

// Register adds all collectors to the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.temp, m.setpoint, m.system, m.offline, m.failures, m.lastSuccess, m.polls)
}

// ObserveSuccess records a successful poll's snapshot.
func (m *Metrics) ObserveSuccess(snapshot models.ZoneSnapshot) {
	m.temp.Reset()
	m.setpoint.Reset()

	for _, reading := range snapshot.Readings {
		labels := prometheus.Labels{"zone_id": reading.ZoneID, "zone_name": reading.Name}
		if reading.CurrentTemp != nil {
			m.temp.With(labels).Set(*reading.CurrentTemp)
		}
		if reading.TargetTemp != nil {
			m.setpoint.With(labels).Set(*reading.TargetTemp)
		}
	}
	if snapshot.System != nil {
		m.system.Set(float64(snapshot.System.Code))
	}

	m.offline.Set(0)
	m.failures.Set(0)
	m.lastSuccess.Set(float64(snapshot.LastSuccess.Unix()))
	m.polls.WithLabelValues("success").Inc()
}

// ObserveFailure records a failed poll attempt.
func (m *Metrics) ObserveFailure(snapshot models.ZoneSnapshot) {
	m.failures.Set(float64(snapshot.ConsecutiveFailures))
	if snapshot.Offline {
		m.offline.Set(1)
	}
	m.polls.WithLabelValues("failure").Inc()
}
