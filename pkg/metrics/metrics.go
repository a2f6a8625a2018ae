package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ethlogger"

type DecodeOutcome string

const (
	DecodeOutcome_Decoded DecodeOutcome = "decoded"
	DecodeOutcome_Unknown DecodeOutcome = "unknown"
	DecodeOutcome_Failed  DecodeOutcome = "failed"
)

// Metrics owns its registry so several instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	decodes         *prometheus.CounterVec
	blocksProcessed prometheus.Counter
	lastBlock       prometheus.Gauge
	blockDuration   prometheus.Histogram
	records         *prometheus.CounterVec
	signatures      prometheus.Gauge
	contracts       prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decodes_total",
			Help:      "Decode attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		blocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_processed_total",
			Help:      "Blocks fully processed",
		}),
		lastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_processed_block",
			Help:      "Number of the last processed block",
		}),
		blockDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_processing_duration_seconds",
			Help:      "Time to fetch, decode and emit one block",
			Buckets:   prometheus.DefBuckets,
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Records written by type",
		}, []string{"type"}),
		signatures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "abi_signatures",
			Help:      "Distinct signature hashes loaded into the repository",
		}),
		contracts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "abi_contracts",
			Help:      "Distinct contract fingerprints loaded into the repository",
		}),
	}
	m.registry.MustRegister(
		m.decodes,
		m.blocksProcessed,
		m.lastBlock,
		m.blockDuration,
		m.records,
		m.signatures,
		m.contracts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) RecordDecode(kind abi.Kind, outcome DecodeOutcome) {
	m.decodes.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (m *Metrics) RecordBlock(blockNumber uint64, duration time.Duration) {
	m.blocksProcessed.Inc()
	m.lastBlock.Set(float64(blockNumber))
	m.blockDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordWrite(recordType string) {
	m.records.WithLabelValues(recordType).Inc()
}

func (m *Metrics) SetRepositorySize(signatures int, contracts int) {
	m.signatures.Set(float64(signatures))
	m.contracts.Set(float64(contracts))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// NewServer serves /metrics on the given port.
func (m *Metrics) NewServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
