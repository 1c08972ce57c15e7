package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Match finish reasons.
const (
	ReasonDefeat = "defeat"
	ReasonDrop   = "drop"
)

// Strike moves and outcomes.
const (
	MoveAttack    = "attack"
	MovePowerMove = "powermove"
	OutcomeHit    = "hit"
	OutcomeMiss   = "miss"
)

// Metrics is the arena's Prometheus metric set.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	sessions        prometheus.Gauge
	matchesStarted  prometheus.Counter
	matchesFinished *prometheus.CounterVec
	strikes         *prometheus.CounterVec
	writeErrors     prometheus.Counter
	readErrors      prometheus.Counter
}

// NewMetrics registers the arena metrics with reg.
//
// Precondition: reg must be non-nil and must not already hold arena metrics.
// Postcondition: Returns a Metrics whose collectors are registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ServiceName,
			Name:      "sessions_connected",
			Help:      "Number of connected client sessions",
		}),
		matchesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ServiceName,
			Name:      "matches_started_total",
			Help:      "Total number of matches formed by the matchmaker",
		}),
		matchesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ServiceName,
			Name:      "matches_finished_total",
			Help:      "Total number of matches that ended, by reason",
		}, []string{"reason"}),
		strikes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ServiceName,
			Name:      "strikes_total",
			Help:      "Total number of combat strikes, by move and outcome",
		}, []string{"move", "outcome"}),
		writeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ServiceName,
			Name:      "write_errors_total",
			Help:      "Total number of failed best-effort writes to clients",
		}),
		readErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ServiceName,
			Name:      "read_errors_total",
			Help:      "Total number of sessions dropped after a hard read failure",
		}),
	}
}

// SessionConnected increments the connected-sessions gauge.
func (m *Metrics) SessionConnected() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// SessionDisconnected decrements the connected-sessions gauge.
func (m *Metrics) SessionDisconnected() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

// MatchStarted counts a newly formed match.
func (m *Metrics) MatchStarted() {
	if m == nil {
		return
	}
	m.matchesStarted.Inc()
}

// MatchFinished counts a finished match.
//
// Precondition: reason is ReasonDefeat or ReasonDrop.
func (m *Metrics) MatchFinished(reason string) {
	if m == nil {
		return
	}
	m.matchesFinished.WithLabelValues(reason).Inc()
}

// Strike counts one resolved attack or powermove.
func (m *Metrics) Strike(move, outcome string) {
	if m == nil {
		return
	}
	m.strikes.WithLabelValues(move, outcome).Inc()
}

// WriteFailed counts a failed client write.
func (m *Metrics) WriteFailed() {
	if m == nil {
		return
	}
	m.writeErrors.Inc()
}

// ReadFailed counts a session dropped after a read error.
func (m *Metrics) ReadFailed() {
	if m == nil {
		return
	}
	m.readErrors.Inc()
}
