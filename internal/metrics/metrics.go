package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Source kinds used as label values.
const (
	KindFeed    = "feed"
	KindDataset = "dataset"
)

// Metrics holds the counters of one pipeline run. The job exits after a
// single run, so instead of serving /metrics the registry is written to a
// node-exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	itemsFetched     *prometheus.CounterVec
	sourceErrors     *prometheus.CounterVec
	duplicates       prometheus.Counter
	itemsScored      prometheus.Counter
	scoringFallbacks prometheus.Counter
	sectionItems     *prometheus.GaugeVec
	runDuration      prometheus.Gauge
	lastSuccess      prometheus.Gauge
}

var Global = New()

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		itemsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datascout_items_fetched_total",
			Help: "New items kept from sources, by kind.",
		}, []string{"kind"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datascout_source_errors_total",
			Help: "Sources that failed to fetch, by kind.",
		}, []string{"kind"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datascout_duplicates_filtered_total",
			Help: "Entries skipped because their id was already seen.",
		}),
		itemsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datascout_items_scored_total",
			Help: "Items returned by the relevance filter.",
		}),
		scoringFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datascout_scoring_fallbacks_total",
			Help: "Runs where the ranking model failed and neutral scores were used.",
		}),
		sectionItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "datascout_section_items",
			Help: "Items per briefing section in the last page.",
		}, []string{"section"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datascout_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datascout_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
	}

	m.registry.MustRegister(
		m.itemsFetched,
		m.sourceErrors,
		m.duplicates,
		m.itemsScored,
		m.scoringFallbacks,
		m.sectionItems,
		m.runDuration,
		m.lastSuccess,
	)
	return m
}

func (m *Metrics) ItemsFetched(kind string, n int) {
	m.itemsFetched.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) SourceError(kind string) {
	m.sourceErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) DuplicateFiltered() {
	m.duplicates.Inc()
}

func (m *Metrics) ItemsScored(n int) {
	m.itemsScored.Add(float64(n))
}

func (m *Metrics) ScoringFallback() {
	m.scoringFallbacks.Inc()
}

func (m *Metrics) SectionSize(section string, n int) {
	m.sectionItems.WithLabelValues(section).Set(float64(n))
}

func (m *Metrics) RunFinished(duration time.Duration, at time.Time) {
	m.runDuration.Set(duration.Seconds())
	m.lastSuccess.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
