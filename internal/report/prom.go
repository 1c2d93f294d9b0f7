package report

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"rltcp/internal/experiment"
)

const metricsNamespace = "rltcp"

// Metrics is a Prometheus registry of experiment metrics labelled by mode and
// algorithm. One Metrics serves every run of a batch; each run records
// through its own Sink.
type Metrics struct {
	Registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	selected        *prometheus.CounterVec
	napfd           *prometheus.HistogramVec
	lastNAPFD       *prometheus.GaugeVec
	lastDC          *prometheus.GaugeVec
	trainingSeconds *prometheus.HistogramVec
	testingSeconds  *prometheus.HistogramVec
}

var scoreBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

// NewMetrics creates the metric vectors on a fresh registry.
func NewMetrics() *Metrics {
	labels := []string{"mode", "algo"}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_evaluated_total",
			Help:      "Cycles predicted and scored.",
		}, labels),
		selected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "test_cases_selected_total",
			Help:      "Test cases selected for execution.",
		}, labels),
		napfd: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "napfd",
			Help:      "NAPFD of the selected ordering per cycle.",
			Buckets:   scoreBuckets,
		}, labels),
		lastNAPFD: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_napfd",
			Help:      "NAPFD of the most recent cycle.",
		}, labels),
		lastDC: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_defect_coverage",
			Help:      "Defect coverage of the most recent cycle.",
		}, labels),
		trainingSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "training_seconds",
			Help:      "Time spent training on one cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, labels),
		testingSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "testing_seconds",
			Help:      "Time spent ranking one cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, labels),
	}
	m.Registry.MustRegister(m.cycles, m.selected, m.napfd, m.lastNAPFD, m.lastDC, m.trainingSeconds, m.testingSeconds)
	return m
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

// Sink returns a sink recording into m.
func (m *Metrics) Sink() experiment.Sink { return &promSink{m: m} }

type promSink struct {
	m *Metrics

	mu     sync.Mutex
	labels prometheus.Labels
}

func (s *promSink) Begin(_ context.Context, run experiment.RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = prometheus.Labels{"mode": run.Config.Mode, "algo": run.Config.Algo}
	return nil
}

func (s *promSink) Record(_ context.Context, r experiment.CycleResult) error {
	s.mu.Lock()
	l := s.labels
	s.mu.Unlock()
	s.m.cycles.With(l).Inc()
	s.m.selected.With(l).Add(float64(len(r.SelectedIDs)))
	s.m.napfd.With(l).Observe(r.Score.NAPFD)
	s.m.lastNAPFD.With(l).Set(r.Score.NAPFD)
	s.m.lastDC.With(l).Set(r.Score.DefectCoverage)
	s.m.trainingSeconds.With(l).Observe(r.TrainingTime.Seconds())
	s.m.testingSeconds.With(l).Observe(r.TestingTime.Seconds())
	return nil
}

func (s *promSink) Close() error { return nil }
