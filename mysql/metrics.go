package mysql

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of counters/histograms a Connection can be told to
// update (SPEC_FULL §4.8/§6.3). A nil *Metrics disables instrumentation
// entirely; nothing in the hot path is conditioned on anything besides
// a single nil check.
type Metrics struct {
	PacketsRead     prometheus.Counter
	PacketsWritten  prometheus.Counter
	BytesRead       prometheus.Counter
	BytesWritten    prometheus.Counter
	CommandsTotal   *prometheus.CounterVec
	QueryDuration   prometheus.Histogram
}

// NewMetrics constructs a Metrics bound to reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid colliding with any
// process-global registry; reg may be nil, which is equivalent to not
// calling NewMetrics at all.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		PacketsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_read_total",
			Help: "Packet frames read from the server.",
		}),
		PacketsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_written_total",
			Help: "Packet frames written to the server.",
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_read_total",
			Help: "Payload bytes read from the server.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_written_total",
			Help: "Payload bytes written to the server.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_total",
			Help: "Commands issued, by command byte name.",
		}, []string{"command"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "query_duration_seconds",
			Help:    "Wall-clock time from command send to final EOF for query/queryStmt.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.PacketsRead, m.PacketsWritten, m.BytesRead, m.BytesWritten, m.CommandsTotal, m.QueryDuration)
	return m
}

func (m *Metrics) addRead(packets, bytes int) {
	if m == nil {
		return
	}
	m.PacketsRead.Add(float64(packets))
	m.BytesRead.Add(float64(bytes))
}

func (m *Metrics) addWritten(packets, bytes int) {
	if m == nil {
		return
	}
	m.PacketsWritten.Add(float64(packets))
	m.BytesWritten.Add(float64(bytes))
}

func (m *Metrics) observeCommand(name string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(name).Inc()
}

func (m *Metrics) observeQueryDuration(seconds float64) {
	if m == nil {
		return
	}
	m.QueryDuration.Observe(seconds)
}

// AddRead records packets/bytes read from the wire. Exported so the
// client package's packet framer (a different package, to keep
// transport I/O out of the value-codec package) can drive the same
// counters.
func (m *Metrics) AddRead(packets, bytes int) { m.addRead(packets, bytes) }

// AddWritten records packets/bytes written to the wire.
func (m *Metrics) AddWritten(packets, bytes int) { m.addWritten(packets, bytes) }

// ObserveCommand increments the per-command counter.
func (m *Metrics) ObserveCommand(name string) { m.observeCommand(name) }

// ObserveQueryDuration records one query/queryStmt wall-clock duration.
func (m *Metrics) ObserveQueryDuration(seconds float64) { m.observeQueryDuration(seconds) }
