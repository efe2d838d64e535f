package indexer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes indexer progress to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	events        *prometheus.CounterVec
	decodeErrors  prometheus.Counter
	deadLetters   prometheus.Counter
	checkpoint    prometheus.Gauge
	head          prometheus.Gauge
}

// NewMetrics creates the indexer collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "escrow_indexer_cycles_total", Help: "Synchronizer cycles by result"},
			[]string{"result"},
		),
		cycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "escrow_indexer_cycle_duration_seconds", Help: "Cycle latency", Buckets: prometheus.DefBuckets},
			[]string{"result"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "escrow_indexer_events_total", Help: "Projected escrow events by outcome"},
			[]string{"event", "outcome"},
		),
		decodeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "escrow_indexer_decode_errors_total", Help: "Known logs that failed to decode"},
		),
		deadLetters: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "escrow_indexer_dead_letters_total", Help: "Journal entries given up after max attempts"},
		),
		checkpoint: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "escrow_indexer_checkpoint_block", Help: "Last fully processed block"},
		),
		head: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "escrow_indexer_chain_head_block", Help: "Latest chain head seen"},
		),
	}
	for _, c := range []prometheus.Collector{
		m.cycles, m.cycleDuration, m.events, m.decodeErrors, m.deadLetters, m.checkpoint, m.head,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeCycle(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) observeEvent(eventName, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventName, outcome).Inc()
}

func (m *Metrics) addDecodeErrors(n int) {
	if m == nil || n == 0 {
		return
	}
	m.decodeErrors.Add(float64(n))
}

func (m *Metrics) deadLetter() {
	if m == nil {
		return
	}
	m.deadLetters.Inc()
}

func (m *Metrics) setCheckpoint(block uint64) {
	if m == nil {
		return
	}
	m.checkpoint.Set(float64(block))
}

func (m *Metrics) setHead(block uint64) {
	if m == nil {
		return
	}
	m.head.Set(float64(block))
}
