// Package metrics exposes Prometheus counters for the document pipeline.
//
// A nil *Metrics is a valid no-op receiver, so callers never branch on
// whether metrics are enabled.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters.
type Metrics struct {
	registry *prometheus.Registry

	chunksUploaded  prometheus.Counter
	merges          prometheus.Counter
	passagesIndexed prometheus.Counter
	searches        *prometheus.CounterVec
	chatSessions    prometheus.Counter
}

// New creates the metrics set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	return &Metrics{
		registry: reg,
		chunksUploaded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunks_uploaded_total",
			Help: "Total number of accepted chunk uploads",
		}),
		merges: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "scribe_merges_total",
			Help: "Total number of completed file merges",
		}),
		passagesIndexed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "scribe_passages_indexed_total",
			Help: "Total number of passages written to the search index",
		}),
		searches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_searches_total",
			Help: "Total number of search requests by mode",
		}, []string{"mode"}), // "hybrid" or "lexical"
		chatSessions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "scribe_chat_sessions_total",
			Help: "Total number of accepted chat streams",
		}),
	}
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordChunkUploaded counts one accepted chunk.
func (m *Metrics) RecordChunkUploaded() {
	if m == nil {
		return
	}
	m.chunksUploaded.Inc()
}

// RecordMerge counts one completed merge.
func (m *Metrics) RecordMerge() {
	if m == nil {
		return
	}
	m.merges.Inc()
}

// RecordPassagesIndexed counts passages written to the index.
func (m *Metrics) RecordPassagesIndexed(n int) {
	if m == nil {
		return
	}
	m.passagesIndexed.Add(float64(n))
}

// RecordSearch counts one search request in the given mode.
func (m *Metrics) RecordSearch(mode string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(mode).Inc()
}

// RecordChatSession counts one accepted chat stream.
func (m *Metrics) RecordChatSession() {
	if m == nil {
		return
	}
	m.chatSessions.Inc()
}
