package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/scrimlab/overqueue/internal/engine"
	"github.com/scrimlab/overqueue/internal/lifecycle"
	"github.com/scrimlab/overqueue/internal/queue"
	"github.com/scrimlab/overqueue/internal/roster"
)

func (s *Server) HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Received health check request")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK!")
	}
}

func (s *Server) ClearStoreHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if isDryRunFromContext(r) {
			log.Info("[Dry Run] Would clear store and queue")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "Dry run: nothing cleared.")
			return
		}
		log.Info("Received request to clear entire store")
		if _, err := s.Engine.OnAdminCommand(engine.AdminClearQueue, engine.AdminParams{}); err != nil {
			http.Error(w, "Failed to clear queue", http.StatusInternalServerError)
			return
		}
		s.Store.Clear()
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "Store cleared!")
		log.Info("Store cleared successfully")
	}
}

func (s *Server) JoinHandler() http.HandlerFunc {
	type request struct {
		PlayerID string `json:"player_id"`
		Name     string `json:"name"`
		Role     string `json:"role"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		res, err := s.Engine.OnJoin(req.PlayerID, req.Name, req.Role)
		if err != nil && !errors.Is(err, queue.ErrProfileIncomplete) {
			if errors.Is(err, queue.ErrAlreadyQueued) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			log.Error("Join failed", "playerID", req.PlayerID, "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondJSON(w, res)
	}
}

func (s *Server) LeaveHandler() http.HandlerFunc {
	type request struct {
		PlayerID string `json:"player_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		removed := s.Engine.OnLeave(req.PlayerID)
		respondJSON(w, map[string]bool{"removed": removed})
	}
}

func (s *Server) ProfileHandler() http.HandlerFunc {
	type request struct {
		PlayerID  string `json:"player_id"`
		BattleTag string `json:"battletag"`
		RankTier  string `json:"rank_tier"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if err := s.Engine.OnProfileCaptured(req.PlayerID, req.BattleTag, req.RankTier); err != nil {
			if errors.Is(err, queue.ErrProfileIncomplete) {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
			log.Error("Profile capture failed", "playerID", req.PlayerID, "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

func (s *Server) ReadyHandler() http.HandlerFunc {
	type request struct {
		MatchID  string `json:"match_id"`
		PlayerID string `json:"player_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MatchID == "" || req.PlayerID == "" {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		event, err := s.Engine.OnReady(req.MatchID, req.PlayerID)
		if err != nil {
			if errors.Is(err, lifecycle.ErrNotParticipant) {
				http.Error(w, err.Error(), http.StatusForbidden)
				return
			}
			log.Error("Ready signal failed", "matchID", req.MatchID, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, event)
	}
}

func (s *Server) ReportHandler() http.HandlerFunc {
	type request struct {
		MatchID  string `json:"match_id"`
		Team     string `json:"team"`
		PlayerID string `json:"player_id"`
		Outcome  string `json:"outcome"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MatchID == "" {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		event, err := s.Engine.OnReport(req.MatchID, req.Team, req.PlayerID, req.Outcome)
		if err != nil {
			switch {
			case errors.Is(err, roster.ErrAlreadySettled):
				http.Error(w, err.Error(), http.StatusConflict)
			case errors.Is(err, lifecycle.ErrNotParticipant):
				http.Error(w, err.Error(), http.StatusForbidden)
			default:
				http.Error(w, err.Error(), http.StatusBadRequest)
			}
			return
		}
		respondJSON(w, event)
	}
}

func (s *Server) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, s.Engine.SnapshotForDisplay())
	}
}

func (s *Server) AdminHandler() http.HandlerFunc {
	type request struct {
		Kind   engine.AdminCommandKind `json:"kind"`
		Params engine.AdminParams      `json:"params"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Kind == "" {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		result, err := s.Engine.OnAdminCommand(req.Kind, req.Params)
		if err != nil {
			switch {
			case errors.Is(err, lifecycle.ErrNoActiveMatch):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.Is(err, lifecycle.ErrInvalidOverride):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				log.Error("Admin command failed", "kind", req.Kind, "error", err)
				http.Error(w, err.Error(), http.StatusBadRequest)
			}
			return
		}
		respondJSON(w, map[string]any{"kind": req.Kind, "result": result})
	}
}

func (s *Server) LeaderboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := s.Store.Leaderboard(limitParam(r, 20))
		if err != nil {
			http.Error(w, "Failed to get leaderboard", http.StatusInternalServerError)
			log.Error("Failed to get leaderboard from store", "error", err)
			return
		}
		respondJSON(w, rows)
	}
}

func (s *Server) PlayerStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := r.URL.Query().Get("player_id")
		if playerID == "" {
			http.Error(w, "player_id is required", http.StatusBadRequest)
			return
		}
		stats, err := s.Engine.OnAdminCommand(engine.AdminPlayerStats, engine.AdminParams{
			PlayerID: playerID,
			Limit:    limitParam(r, 5),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		respondJSON(w, stats)
	}
}

func (s *Server) RecentMatchesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matches, err := s.Store.ListRecentMatches(limitParam(r, 5))
		if err != nil {
			http.Error(w, "Failed to get matches", http.StatusInternalServerError)
			log.Error("Failed to get matches from store", "error", err)
			return
		}
		respondJSON(w, matches)
	}
}

func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("Failed to write response", "error", err)
	}
}

func limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
