package http

import (
	"net/http"

	"github.com/scrimlab/overqueue/internal/config"
	"github.com/scrimlab/overqueue/internal/engine"
	"github.com/scrimlab/overqueue/internal/metrics"
	"github.com/scrimlab/overqueue/internal/roster"
)

type Server struct {
	Engine         *engine.Engine
	Store          roster.Store
	Metrics        metrics.Metrics
	MetricsHandler http.Handler
	Cfg            config.Config
	Router         *http.ServeMux
}
