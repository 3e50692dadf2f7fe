package http

import (
	"net/http"

	"github.com/scrimlab/overqueue/internal/config"
	"github.com/scrimlab/overqueue/internal/engine"
	"github.com/scrimlab/overqueue/internal/metrics"
	"github.com/scrimlab/overqueue/internal/roster"
)

func NewServer(eng *engine.Engine, store roster.Store, metricsSvc metrics.Metrics, metricsHandler http.Handler, cfg config.Config) *Server {
	server := &Server{
		Engine:         eng,
		Store:          store,
		Metrics:        metricsSvc,
		MetricsHandler: metricsHandler,
		Cfg:            cfg,
		Router:         http.NewServeMux(),
	}

	server.routes()
	return server
}

func (s *Server) routes() {
	// All handlers are wrapped with middleware using the Chain helper.
	// This makes it easy to add more middlewares in the future, like an authentication middleware.
	// e.g. Chain(s.MyHandler(), paramsMiddleware, authMiddleware)
	s.Router.Handle("/metrics", s.MetricsHandler)
	s.Router.Handle("/health", Chain(s.HealthCheckHandler(), paramsMiddleware))
	s.Router.Handle("/clear", Chain(s.ClearStoreHandler(), paramsMiddleware))
	s.Router.Handle("/queue/join", Chain(s.JoinHandler(), paramsMiddleware))
	s.Router.Handle("/queue/leave", Chain(s.LeaveHandler(), paramsMiddleware))
	s.Router.Handle("/queue/profile", Chain(s.ProfileHandler(), paramsMiddleware))
	s.Router.Handle("/match/ready", Chain(s.ReadyHandler(), paramsMiddleware))
	s.Router.Handle("/match/report", Chain(s.ReportHandler(), paramsMiddleware))
	s.Router.Handle("/snapshot", Chain(s.SnapshotHandler(), paramsMiddleware))
	s.Router.Handle("/admin", Chain(s.AdminHandler(), paramsMiddleware))
	s.Router.Handle("/leaderboard", Chain(s.LeaderboardHandler(), paramsMiddleware))
	s.Router.Handle("/players/stats", Chain(s.PlayerStatsHandler(), paramsMiddleware))
	s.Router.Handle("/matches/recent", Chain(s.RecentMatchesHandler(), paramsMiddleware))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}
