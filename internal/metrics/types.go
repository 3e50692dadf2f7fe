package metrics

import "github.com/prometheus/client_golang/prometheus"

// Service holds all the Prometheus metrics for the application.
// By defining them all in one place, we ensure consistency in naming and labeling.
type Service struct {
	QueueJoins      prometheus.Counter
	QueueLeaves     prometheus.Counter
	MatchesFormed   prometheus.Counter
	MatchesSettled  prometheus.Counter
	ReportsRejected prometheus.Counter
	CommandDuration prometheus.Histogram
	NotifSent       prometheus.Counter
	NotifFailed     prometheus.Counter
	StartupSeconds  prometheus.Gauge
}
