package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CourierMetrics captures delivery-agent counters.
type CourierMetrics interface {
	IncDiscovered(stream string)
	IncUploaded(stream string)
	IncUploadFailed(stream, outcome string)
	IncSkippedUnstable(stream string)
}

// DepotMetrics captures store-side ingest and retention counters.
type DepotMetrics interface {
	IncReceived(stream string)
	AddBytesReceived(stream string, n int64)
	IncEvicted(stream string)
}

// Noop implements both metric sets without emitting anything.
type Noop struct{}

func (Noop) IncDiscovered(string)           {}
func (Noop) IncUploaded(string)             {}
func (Noop) IncUploadFailed(string, string) {}
func (Noop) IncSkippedUnstable(string)      {}
func (Noop) IncReceived(string)             {}
func (Noop) AddBytesReceived(string, int64) {}
func (Noop) IncEvicted(string)              {}

// CourierProm implements CourierMetrics backed by Prometheus counters.
type CourierProm struct {
	discovered      *prometheus.CounterVec
	uploaded        *prometheus.CounterVec
	uploadFailed    *prometheus.CounterVec
	skippedUnstable *prometheus.CounterVec
	once            sync.Once
}

func NewCourierProm(namespace string) *CourierProm {
	p := &CourierProm{
		discovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_discovered_total",
			Help:      "New artifacts recorded by reconciliation per stream",
		}, []string{"stream"}),
		uploaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_uploaded_total",
			Help:      "Artifacts delivered and committed sent per stream",
		}, []string{"stream"}),
		uploadFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_upload_failures_total",
			Help:      "Failed upload attempts per stream and outcome",
		}, []string{"stream", "outcome"}),
		skippedUnstable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_skipped_unstable_total",
			Help:      "Artifacts skipped because their size had not settled",
		}, []string{"stream"}),
	}
	p.register()
	return p
}

func (p *CourierProm) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.discovered, p.uploaded, p.uploadFailed, p.skippedUnstable)
	})
}

func (p *CourierProm) IncDiscovered(stream string) {
	p.discovered.WithLabelValues(stream).Inc()
}

func (p *CourierProm) IncUploaded(stream string) {
	p.uploaded.WithLabelValues(stream).Inc()
}

func (p *CourierProm) IncUploadFailed(stream, outcome string) {
	p.uploadFailed.WithLabelValues(stream, outcome).Inc()
}

func (p *CourierProm) IncSkippedUnstable(stream string) {
	p.skippedUnstable.WithLabelValues(stream).Inc()
}

// DepotProm implements DepotMetrics backed by Prometheus counters.
type DepotProm struct {
	received      *prometheus.CounterVec
	bytesReceived *prometheus.CounterVec
	evicted       *prometheus.CounterVec
	once          sync.Once
}

func NewDepotProm(namespace string) *DepotProm {
	p := &DepotProm{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_received_total",
			Help:      "Backups accepted per stream",
		}, []string{"stream"}),
		bytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_bytes_received_total",
			Help:      "Bytes written to the archive per stream",
		}, []string{"stream"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_evicted_total",
			Help:      "Backups removed by retention enforcement per stream",
		}, []string{"stream"}),
	}
	p.register()
	return p
}

func (p *DepotProm) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.received, p.bytesReceived, p.evicted)
	})
}

func (p *DepotProm) IncReceived(stream string) {
	p.received.WithLabelValues(stream).Inc()
}

func (p *DepotProm) AddBytesReceived(stream string, n int64) {
	p.bytesReceived.WithLabelValues(stream).Add(float64(n))
}

func (p *DepotProm) IncEvicted(stream string) {
	p.evicted.WithLabelValues(stream).Inc()
}

// Handler exposes the default Prometheus registry over HTTP.
func Handler() http.Handler {
	return promhttp.Handler()
}
