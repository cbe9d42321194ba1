package observability

// Metrics provides counter recording primitives for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, labels map[string]string)
}

// Well-known counter names emitted across the stack.
const (
	MetricOrdersPlaced      = "orderdesk.orders.placed"
	MetricOrdersCanceled    = "orderdesk.orders.canceled"
	MetricOrdersReconciled  = "orderdesk.orders.reconciled"
	MetricRequestRetries    = "orderdesk.rest.retries"
	MetricStreamEvents      = "orderdesk.stream.events"
	MetricStreamReconnects  = "orderdesk.stream.reconnects"
	MetricPersistWrites     = "orderdesk.persist.writes"
	MetricPersistWriteFails = "orderdesk.persist.write_failures"
	MetricPersistDrops      = "orderdesk.persist.dropped_snapshots"
)

var defaultMetrics Metrics = noopMetrics{}

// SetMetrics overrides the global metrics implementation used by the system.
func SetMetrics(metrics Metrics) {
	if metrics == nil {
		defaultMetrics = noopMetrics{}
		return
	}
	defaultMetrics = metrics
}

// Telemetry returns the current global metrics collector.
func Telemetry() Metrics {
	return defaultMetrics
}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, float64, map[string]string) {}
