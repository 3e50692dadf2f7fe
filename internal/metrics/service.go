package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ Metrics = (*Service)(nil)

// NewMetricsHandler returns an http.Handler for the given Gatherer.
// If no gatherer is provided, it uses the default one.
func NewMetricsHandler(gatherer ...prometheus.Gatherer) http.Handler {
	gath := prometheus.DefaultGatherer
	if len(gatherer) > 0 {
		gath = gatherer[0]
	}
	return promhttp.HandlerFor(gath, promhttp.HandlerOpts{})
}

// NewService creates and registers the Prometheus metrics.
// If no registerer is provided, it uses the default Prometheus registerer.
func NewService(registerer ...prometheus.Registerer) *Service {
	reg := prometheus.DefaultRegisterer
	if len(registerer) > 0 {
		reg = registerer[0]
	}

	s := &Service{
		QueueJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overqueue_queue_joins_total",
			Help: "The total number of accepted queue join requests.",
		}),
		QueueLeaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overqueue_queue_leaves_total",
			Help: "The total number of players removed from the queue before a match formed.",
		}),
		MatchesFormed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overqueue_matches_formed_total",
			Help: "The total number of matches drafted from the queue.",
		}),
		MatchesSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overqueue_matches_settled_total",
			Help: "The total number of matches settled with rating changes applied.",
		}),
		ReportsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overqueue_reports_rejected_total",
			Help: "The total number of result reports rejected (wrong state, non-participant, duplicate).",
		}),
		CommandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "overqueue_command_duration_seconds",
			Help:    "The duration of individual engine commands.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		NotifSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overqueue_notifications_sent_total",
			Help: "The total number of notifications successfully sent.",
		}),
		NotifFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overqueue_notifications_failed_total",
			Help: "The total number of notifications that failed to send.",
		}),
		StartupSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overqueue_startup_duration_seconds",
			Help: "The duration of the application startup in seconds.",
		}),
	}

	reg.MustRegister(
		s.QueueJoins,
		s.QueueLeaves,
		s.MatchesFormed,
		s.MatchesSettled,
		s.ReportsRejected,
		s.CommandDuration,
		s.NotifSent,
		s.NotifFailed,
		s.StartupSeconds,
	)

	return s
}

func (s *Service) IncQueueJoins() {
	s.QueueJoins.Inc()
}

func (s *Service) IncQueueLeaves() {
	s.QueueLeaves.Inc()
}

func (s *Service) IncMatchesFormed() {
	s.MatchesFormed.Inc()
}

func (s *Service) IncMatchesSettled() {
	s.MatchesSettled.Inc()
}

func (s *Service) IncReportsRejected() {
	s.ReportsRejected.Inc()
}

func (s *Service) ObserveCommandDuration(duration float64) {
	s.CommandDuration.Observe(duration)
}

func (s *Service) IncNotifSent() {
	s.NotifSent.Inc()
}

func (s *Service) IncNotifFailed() {
	s.NotifFailed.Inc()
}

func (s *Service) SetStartupTime(duration float64) {
	s.StartupSeconds.Set(duration)
}
