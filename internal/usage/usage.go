// Package usage accounts for the document bytes each table reads and writes.
package usage

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TableUsage is the running total for one table.
type TableUsage struct {
	BytesRead        uint64 `json:"bytes_read" yaml:"bytes_read"`
	BytesWritten     uint64 `json:"bytes_written" yaml:"bytes_written"`
	DocumentsWritten uint64 `json:"documents_written" yaml:"documents_written"`
}

// Snapshot maps table names to their usage at the time it was taken.
type Snapshot map[string]TableUsage

// Tables returns the table names in the snapshot, sorted.
func (s Snapshot) Tables() []string {
	tables := make([]string, 0, len(s))
	for t := range s {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// Tracker records usage both as Prometheus counters and as totals that can
// be read back with Snapshot. It is safe for concurrent use.
type Tracker struct {
	registry *prometheus.Registry

	bytesRead        *prometheus.CounterVec
	bytesWritten     *prometheus.CounterVec
	documentsWritten *prometheus.CounterVec

	mu     sync.Mutex
	totals map[string]*TableUsage
}

// NewTracker creates a Tracker with its own registry.
func NewTracker() *Tracker {
	t := &Tracker{
		registry: prometheus.NewRegistry(),
		bytesRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graveldoc",
				Subsystem: "usage",
				Name:      "bytes_read_total",
				Help:      "Document bytes read, by table.",
			},
			[]string{"table"},
		),
		bytesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graveldoc",
				Subsystem: "usage",
				Name:      "bytes_written_total",
				Help:      "Document bytes written, by table.",
			},
			[]string{"table"},
		),
		documentsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graveldoc",
				Subsystem: "usage",
				Name:      "documents_written_total",
				Help:      "Documents inserted, replaced, patched or deleted, by table.",
			},
			[]string{"table"},
		),
		totals: make(map[string]*TableUsage),
	}

	t.registry.MustRegister(t.bytesRead, t.bytesWritten, t.documentsWritten)
	return t
}

func (t *Tracker) table(name string) *TableUsage {
	u, ok := t.totals[name]
	if !ok {
		u = &TableUsage{}
		t.totals[name] = u
	}
	return u
}

// BytesRead records n document bytes read from table.
func (t *Tracker) BytesRead(table string, n int) {
	t.mu.Lock()
	t.table(table).BytesRead += uint64(n)
	t.mu.Unlock()

	t.bytesRead.WithLabelValues(table).Add(float64(n))
}

// BytesWritten records n document bytes written to table.
func (t *Tracker) BytesWritten(table string, n int) {
	t.mu.Lock()
	t.table(table).BytesWritten += uint64(n)
	t.mu.Unlock()

	t.bytesWritten.WithLabelValues(table).Add(float64(n))
}

// DocumentWritten records one document write to table.
func (t *Tracker) DocumentWritten(table string) {
	t.mu.Lock()
	t.table(table).DocumentsWritten++
	t.mu.Unlock()

	t.documentsWritten.WithLabelValues(table).Inc()
}

// Snapshot returns a copy of the current totals.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := make(Snapshot, len(t.totals))
	for name, u := range t.totals {
		s[name] = *u
	}
	return s
}

// Registry returns the underlying Prometheus registry.
func (t *Tracker) Registry() *prometheus.Registry {
	return t.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (t *Tracker) Handler() http.Handler {
	return promhttp.HandlerFor(
		t.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics:   true,
			MaxRequestsInFlight: 10,
		},
	)
}
