package crud

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the operational counters of a service. All methods are
// nil-safe so services without metrics wiring pay nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	denied     *prometheus.CounterVec
	notFound   *prometheus.CounterVec
}

// NewMetrics creates and registers the CRUD counters on the given registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crudcore_operations_total",
			Help: "Total CRUD operations started, by collection and operation.",
		}, []string{"collection", "operation"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crudcore_denied_total",
			Help: "Operations rejected by authorization, by collection and operation.",
		}, []string{"collection", "operation"}),
		notFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crudcore_notfound_total",
			Help: "Operations targeting a missing record, by collection and operation.",
		}, []string{"collection", "operation"}),
	}

	for _, collector := range []prometheus.Collector{m.operations, m.denied, m.notFound} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeOperation(collection, operation string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(collection, operation).Inc()
}

func (m *Metrics) observeDenied(collection, operation string) {
	if m == nil {
		return
	}
	m.denied.WithLabelValues(collection, operation).Inc()
}

func (m *Metrics) observeNotFound(collection, operation string) {
	if m == nil {
		return
	}
	m.notFound.WithLabelValues(collection, operation).Inc()
}
