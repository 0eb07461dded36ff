// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "trading_agent_lab"

// Metrics holds the simulation's Prometheus collectors.
// All Record* methods are no-ops on a nil *Metrics.
type Metrics struct {
	// Tick loop
	TicksProcessed prometheus.Counter
	TickDuration   prometheus.Histogram
	OrdersFilled   prometheus.Counter
	OrdersRejected *prometheus.CounterVec
	TradesClosed   *prometheus.CounterVec

	// Evolution
	EvolutionCycles  prometheus.Counter
	AgentsEliminated prometheus.Counter
	AgentsBorn       prometheus.Counter
	AgentsProtected  prometheus.Gauge
	EliminationGap   prometheus.Counter
	DiversityErrors  *prometheus.CounterVec

	// Population and capital
	PopulationSize prometheus.Gauge
	NicheCount     prometheus.Gauge
	BestFitness    prometheus.Gauge
	PoolBalance    prometheus.Gauge
}

// NewMetrics creates and registers all collectors on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		TicksProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "ticks_processed_total",
			Help:      "Total number of market ticks applied to the population",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent processing one tick",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		OrdersFilled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_filled_total",
			Help:      "Total number of filled orders",
		}),
		OrdersRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_rejected_total",
			Help:      "Total number of rejected decisions by error kind",
		}, []string{"kind"}),
		TradesClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "trades_closed_total",
			Help:      "Total number of closed round trips by ledger and outcome",
		}, []string{"ledger", "outcome"}),

		EvolutionCycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "cycles_total",
			Help:      "Total number of evolution boundaries",
		}),
		AgentsEliminated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "agents_eliminated_total",
			Help:      "Total number of agents removed",
		}),
		AgentsBorn: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "agents_born_total",
			Help:      "Total number of offspring created",
		}),
		AgentsProtected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "agents_protected",
			Help:      "Size of the protected set at the latest boundary",
		}),
		EliminationGap: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "elimination_unfilled_total",
			Help:      "Requested eliminations skipped for lack of unprotected agents",
		}),
		DiversityErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "diversity",
			Name:      "errors_total",
			Help:      "Recoverable diversity computation failures by kind",
		}, []string{"kind"}),

		PopulationSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "population",
			Name:      "size",
			Help:      "Number of living agents",
		}),
		NicheCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "diversity",
			Name:      "niche_count",
			Help:      "Occupied niches at the latest boundary",
		}),
		BestFitness: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "population",
			Name:      "best_fitness",
			Help:      "Highest finite agent fitness",
		}),
		PoolBalance: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "capital",
			Name:      "pool_balance",
			Help:      "Capital pool balance",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint of gatherer.
// A nil gatherer serves the default registry.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordTick records one processed tick.
func (m *Metrics) RecordTick(seconds float64, filled int, population int) {
	if m == nil {
		return
	}
	m.TicksProcessed.Inc()
	m.TickDuration.Observe(seconds)
	m.OrdersFilled.Add(float64(filled))
	m.PopulationSize.Set(float64(population))
}

// RecordRejection counts a rejected decision by error kind.
func (m *Metrics) RecordRejection(kind string) {
	if m == nil {
		return
	}
	m.OrdersRejected.WithLabelValues(kind).Inc()
}

// RecordTradeClosed counts a closed round trip.
func (m *Metrics) RecordTradeClosed(ledger, outcome string) {
	if m == nil {
		return
	}
	m.TradesClosed.WithLabelValues(ledger, outcome).Inc()
}

// RecordEvolution records the outcome of one evolution boundary.
func (m *Metrics) RecordEvolution(eliminated, born, protected, unfilled, niches, population int) {
	if m == nil {
		return
	}
	m.EvolutionCycles.Inc()
	m.AgentsEliminated.Add(float64(eliminated))
	m.AgentsBorn.Add(float64(born))
	m.AgentsProtected.Set(float64(protected))
	m.EliminationGap.Add(float64(unfilled))
	m.NicheCount.Set(float64(niches))
	m.PopulationSize.Set(float64(population))
}

// RecordDiversityError counts a recoverable diversity failure.
func (m *Metrics) RecordDiversityError(kind string) {
	if m == nil {
		return
	}
	m.DiversityErrors.WithLabelValues(kind).Inc()
}

// SetBestFitness updates the best fitness gauge.
func (m *Metrics) SetBestFitness(v float64) {
	if m == nil {
		return
	}
	m.BestFitness.Set(v)
}

// SetPoolBalance updates the capital pool gauge.
func (m *Metrics) SetPoolBalance(v float64) {
	if m == nil {
		return
	}
	m.PoolBalance.Set(v)
}
