package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests           *prometheus.CounterVec
	CounterHandleRequestPanic prometheus.Counter
	CounterPredictions        *prometheus.CounterVec
	CounterFeedback           *prometheus.CounterVec
	CounterRecalibrations     *prometheus.CounterVec
	CounterTrainingRuns       *prometheus.CounterVec

	// gauges
	GaugeRequests         prometheus.Gauge
	GaugeLifeSignal       prometheus.Gauge
	GaugeCacheEntries     prometheus.Gauge
	GaugeTrainingProgress prometheus.Gauge

	// histograms
	HistTrainingDuration     prometheus.Histogram
	HistogramRequestDuration *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("gymstats", "test_predictor", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("gymstats", "test_predictor", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})
	counterPredictions := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "predictions",
		Help:      "The total number of served weight predictions",
	}, []string{"source"})
	counterFeedback := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "feedback",
		Help:      "The total number of accepted prediction feedbacks",
	}, []string{"type"})
	counterRecalibrations := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "recalibrations",
		Help:      "The total number of ensemble recalibrations",
	}, []string{"status"})
	counterTrainingRuns := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "training_runs",
		Help:      "The total number of pipeline initializations",
	}, []string{"result"})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})
	gaugeLifeSignal := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "life_signal",
		Help:      "Shows whether the service is alive",
	})
	gaugeCacheEntries := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "prediction_cache_entries",
		Help:      "Number of cached prediction results",
	})
	gaugeTrainingProgress := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "training_progress",
		Help:      "Progress of the running training, from 0 to 100",
	})

	histTrainingDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets: []float64{
				0.01, 0.1, 0.5, 1, 2.5, 5,
				10, 30, 60, 120, 300,
			},
			Name: "training_duration_seconds",
			Help: "Duration of a single ensemble training in seconds",
		},
	)

	histogramRequestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Histogram of response time for requests in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"route", "method", "status_code"})

	return &Manager{
		CounterRequests:           counterRequests,
		CounterHandleRequestPanic: counterHandleRequestPanic,
		CounterPredictions:        counterPredictions,
		CounterFeedback:           counterFeedback,
		CounterRecalibrations:     counterRecalibrations,
		CounterTrainingRuns:       counterTrainingRuns,
		GaugeRequests:             gaugeRequests,
		GaugeLifeSignal:           gaugeLifeSignal,
		GaugeCacheEntries:         gaugeCacheEntries,
		GaugeTrainingProgress:     gaugeTrainingProgress,
		HistTrainingDuration:      histTrainingDuration,
		HistogramRequestDuration:  histogramRequestDuration,
	}
}
