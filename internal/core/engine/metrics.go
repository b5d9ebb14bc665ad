package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hostengine/internal/core/guest"
)

// metricsSet is the engine's ambient instrumentation surface: one Engine,
// one set of collectors, registered on a private registry so that two
// Engines in the same process never collide on the default registry's
// duplicate-collector check (§9's "no process-wide singletons", applied
// to metrics too). Exposing that registry to an embedder's promhttp
// handler is left to the embedder; this package has no opinion on how
// metrics are served, only on what it measures.
type metricsSet struct {
	registry *prometheus.Registry

	dispatchDuration *prometheus.HistogramVec
	guestsPoisoned   prometheus.Counter
	messagesRouted   prometheus.Counter
	queriesRun       prometheus.Counter
}

func newMetricsSet() *metricsSet {
	m := &metricsSet{
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hostengine",
			Subsystem: "engine",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent in a single guest adapter Dispatch call, by stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		guestsPoisoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hostengine",
			Subsystem: "engine",
			Name:      "guests_poisoned_total",
			Help:      "Number of guests that transitioned to the poisoned state.",
		}),
		messagesRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hostengine",
			Subsystem: "engine",
			Name:      "messages_routed_total",
			Help:      "Number of messages delivered to a guest inbox by a propagation pass; host inbox deliveries and messages from Send or NetworkInboxPush are not counted.",
		}),
		queriesRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hostengine",
			Subsystem: "engine",
			Name:      "queries_run_total",
			Help:      "Number of ECS queries executed to build a guest's dispatch turn.",
		}),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(m.dispatchDuration, m.guestsPoisoned, m.messagesRouted, m.queriesRun)

	return m
}

type dispatchTimer struct {
	set   *metricsSet
	start time.Time
}

func (m *metricsSet) startDispatch() *dispatchTimer {
	return &dispatchTimer{set: m, start: time.Now()}
}

// observe records the elapsed time since startDispatch under stage's
// label.
func (t *dispatchTimer) observe(stage guest.Stage) {
	t.set.dispatchDuration.WithLabelValues(stage.String()).Observe(time.Since(t.start).Seconds())
}
