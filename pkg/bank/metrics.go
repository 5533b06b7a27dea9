package bank

import (
	"sync"

	"github.com/VividCortex/ewma"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are registered on a per-bank registry so several banks can live
// in one process.
type Metrics struct {
	Registry *prometheus.Registry

	transactions *prometheus.CounterVec
	fees         prometheus.Counter
	burnedFees   prometheus.Counter
	computeUnits prometheus.Counter
	slot         prometheus.Gauge

	mu        sync.Mutex
	cuAverage ewma.MovingAverage
}

func newMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pocbank",
			Name:      "transactions_total",
			Help:      "Transactions handled by the bank, by result.",
		}, []string{"result"}),
		fees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pocbank",
			Name:      "fees_collected_lamports_total",
			Help:      "Transaction fees charged, in lamports.",
		}),
		burnedFees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pocbank",
			Name:      "fees_burned_lamports_total",
			Help:      "Transaction fees burned at slot boundaries, in lamports.",
		}),
		computeUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pocbank",
			Name:      "compute_units_consumed_total",
			Help:      "Compute units consumed by executed transactions.",
		}),
		slot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pocbank",
			Name:      "slot",
			Help:      "Current slot of the bank.",
		}),
		cuAverage: ewma.NewMovingAverage(),
	}

	cuAverageGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pocbank",
		Name:      "compute_units_per_transaction_ewma",
		Help:      "Moving average of compute units consumed per transaction.",
	}, m.AverageComputeUnits)

	m.Registry.MustRegister(m.transactions, m.fees, m.burnedFees, m.computeUnits, m.slot, cuAverageGauge)
	return m
}

func (m *Metrics) observeTransaction(res *TransactionResult) {
	result := "success"
	if res.Err != nil {
		result = "failure"
	}
	m.transactions.WithLabelValues(result).Inc()
	m.fees.Add(float64(res.Fee))
	m.computeUnits.Add(float64(res.ComputeUnitsConsumed))

	m.mu.Lock()
	m.cuAverage.Add(float64(res.ComputeUnitsConsumed))
	m.mu.Unlock()
}

func (m *Metrics) observeRejected() {
	m.transactions.WithLabelValues("rejected").Inc()
}

func (m *Metrics) AverageComputeUnits() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cuAverage.Value()
}
