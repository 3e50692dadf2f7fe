package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/scrimlab/overqueue/internal/formation"
	"github.com/scrimlab/overqueue/internal/lifecycle"
	"github.com/scrimlab/overqueue/internal/queue"
	"github.com/scrimlab/overqueue/internal/voice"
)

const defaultListLimit = 5

// OnAdminCommand executes an admin operation. The result payload depends
// on the kind; unknown kinds are an error.
func (e *Engine) OnAdminCommand(kind AdminCommandKind, p AdminParams) (any, error) {
	var result any
	var opErr error
	if err := e.do(func() { result, opErr = e.admin(kind, p) }); err != nil {
		return nil, err
	}
	return result, opErr
}

func (e *Engine) admin(kind AdminCommandKind, p AdminParams) (any, error) {
	log.Info("Admin command", "kind", kind, "adminID", p.AdminID)
	switch kind {
	case AdminCancel:
		return e.adminCancel(p, p.Requeue)
	case AdminRemake:
		event, err := e.adminCancel(p, true)
		if err != nil {
			return nil, err
		}
		return event, nil
	case AdminForceResult:
		return e.adminForceResult(p)
	case AdminOverride:
		return e.adminOverride(p)
	case AdminRerollMap:
		event, err := e.ctrl.RerollMap(e.resolveMatchID(p.MatchID))
		if err != nil {
			return nil, err
		}
		e.dispatch(event)
		return event, nil
	case AdminRemovePlayer:
		removed := e.queue.Remove(p.PlayerID)
		if removed {
			if err := e.store.RemoveQueueEntries([]string{p.PlayerID}); err != nil {
				log.Error("Failed to remove persisted queue entry", "playerID", p.PlayerID, "error", err)
			}
			e.metrics.IncQueueLeaves()
			e.publishQueueUpdate()
		}
		return removed, nil
	case AdminClearQueue:
		n := e.queue.Clear()
		if err := e.store.ClearQueueEntries(); err != nil {
			log.Error("Failed to clear persisted queue", "error", err)
		}
		e.publishQueueUpdate()
		return n, nil
	case AdminSetRules:
		return nil, e.adminSetRules(p)
	case AdminSetVoice:
		e.adminSetVoice(p)
		return nil, nil
	case AdminForceVCCheck:
		return e.adminForceVCCheck(p)
	case AdminRecentMatches:
		return e.store.ListRecentMatches(limitOrDefault(p.Limit))
	case AdminPlayerStats:
		return e.adminPlayerStats(p)
	case AdminSeedTest:
		return e.adminSeedTest(p)
	case AdminReliability:
		return nil, e.adminReliability(p)
	default:
		return nil, fmt.Errorf("unknown admin command %q", kind)
	}
}

// resolveMatchID defaults to the active match so admins can omit the ID.
func (e *Engine) resolveMatchID(matchID string) string {
	if matchID != "" {
		return matchID
	}
	if active := e.ctrl.Active(); active != nil {
		return active.ID
	}
	return ""
}

func (e *Engine) adminCancel(p AdminParams, requeue bool) (*lifecycle.Event, error) {
	event, err := e.ctrl.Cancel(e.resolveMatchID(p.MatchID))
	if err != nil {
		return nil, err
	}

	requeued := 0
	if requeue {
		requeued = e.requeueMatchPlayers(&event.Match)
	}
	e.dispatch(event)

	matchID := event.Match.ID
	count := requeued
	dryRun := e.cfg.DryRun
	go func() {
		if err := e.notifier.SendMatchCancelled(matchID, count, dryRun); err != nil {
			log.Error("Failed to send cancellation notice", "matchID", matchID, "error", err)
		}
	}()

	e.tryForm()
	e.publishQueueUpdate()
	return event, nil
}

func (e *Engine) adminForceResult(p AdminParams) (*lifecycle.Event, error) {
	event, err := e.ctrl.ForceResult(e.resolveMatchID(p.MatchID), p.AdminID, p.Outcome)
	if err != nil {
		return nil, err
	}
	e.afterSettlement()
	e.dispatch(event)
	return event, nil
}

func (e *Engine) adminOverride(p AdminParams) (any, error) {
	changes, err := e.ctrl.OverrideResult(p.MatchID, p.Outcome)
	if err != nil {
		return nil, err
	}

	matchID := p.MatchID
	dryRun := e.cfg.DryRun
	go func() {
		rec, err := e.store.GetMatch(matchID)
		if err != nil || rec == nil {
			log.Error("Failed to load overridden match for notification", "matchID", matchID, "error", err)
			return
		}
		if err := e.notifier.SendResultSummary(rec, changes, dryRun); err != nil {
			log.Error("Failed to send override summary", "matchID", matchID, "error", err)
		}
	}()
	return changes, nil
}

func (e *Engine) adminSetRules(p AdminParams) error {
	cfg := e.cfg.Formation
	if p.Mode != "" {
		if p.Mode != string(formation.ModeRole) && p.Mode != string(formation.ModeOpen) {
			return fmt.Errorf("unknown mode %q", p.Mode)
		}
		cfg.Mode = formation.Mode(p.Mode)
	}
	if p.PlayersPerMatch > 0 {
		if p.PlayersPerMatch%2 != 0 {
			return fmt.Errorf("players per match must be even, got %d", p.PlayersPerMatch)
		}
		cfg.PlayersPerMatch = p.PlayersPerMatch
	}
	if p.TankPerTeam > 0 {
		cfg.TankPerTeam = p.TankPerTeam
	}
	if p.DPSPerTeam > 0 {
		cfg.DPSPerTeam = p.DPSPerTeam
	}
	if p.SupportPerTeam > 0 {
		cfg.SupportPerTeam = p.SupportPerTeam
	}
	if cfg.Mode == formation.ModeRole {
		slots := 2 * (cfg.TankPerTeam + cfg.DPSPerTeam + cfg.SupportPerTeam)
		if slots != cfg.PlayersPerMatch {
			return fmt.Errorf("role slots (%d) do not add up to players per match (%d)", slots, cfg.PlayersPerMatch)
		}
	}
	if p.ReportPolicy != "" {
		switch lifecycle.ReportPolicy(p.ReportPolicy) {
		case lifecycle.PolicyFirstAccept, lifecycle.PolicyDualConfirm:
			e.ctrl.SetPolicy(lifecycle.ReportPolicy(p.ReportPolicy))
		default:
			return fmt.Errorf("unknown report policy %q", p.ReportPolicy)
		}
	}
	if len(p.MapPool) > 0 {
		e.ctrl.SetMapPool(p.MapPool)
	}

	e.cfg.Formation = cfg
	log.Info("Rules updated", "mode", cfg.Mode, "playersPerMatch", cfg.PlayersPerMatch)
	e.tryForm()
	return nil
}

func (e *Engine) adminSetVoice(p AdminParams) {
	if p.MainChannelID != "" {
		e.cfg.Voice.Main = p.MainChannelID
	}
	if p.TeamAChannelID != "" {
		e.cfg.Voice.TeamA = p.TeamAChannelID
	}
	if p.TeamBChannelID != "" {
		e.cfg.Voice.TeamB = p.TeamBChannelID
	}
	log.Info("Voice bindings updated", "main", e.cfg.Voice.Main, "teamA", e.cfg.Voice.TeamA, "teamB", e.cfg.Voice.TeamB)
}

// adminForceVCCheck samples voice presence for the active roster and then
// forces the match live with synthetic players credited as ready. The
// presence calls are network I/O, so they run off the command loop; the
// observations and the LIVE transition land as a follow-up command. The
// immediate return value is an acknowledgement only.
func (e *Engine) adminForceVCCheck(p AdminParams) (string, error) {
	matchID := e.resolveMatchID(p.MatchID)
	active := e.ctrl.Active()
	if active == nil || active.ID != matchID {
		return "", lifecycle.ErrNoActiveMatch
	}
	if active.State != lifecycle.StateReadyCheck {
		return "", fmt.Errorf("match is %s, not %s", active.State, lifecycle.StateReadyCheck)
	}

	players := append([]lifecycle.MatchPlayer(nil), active.Players...)
	mainChannel := e.cfg.Voice.Main

	go func() {
		statuses := make(map[string]voice.Status, len(players))
		if e.mover != nil && mainChannel != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, player := range players {
				if player.Synthetic {
					continue
				}
				connected, err := e.mover.IsConnected(ctx, player.PlayerID, mainChannel)
				if err != nil {
					log.Error("Voice presence check failed", "playerID", player.PlayerID, "error", err)
					continue
				}
				status := voice.StatusMissing
				if connected {
					status = voice.StatusInVC
				}
				statuses[player.PlayerID] = status
			}
		}
		select {
		case e.commands <- func() {
			for playerID, status := range statuses {
				e.ctrl.SetVCStatus(matchID, playerID, status)
			}
			event, err := e.ctrl.ForceLive(matchID, true)
			if err != nil {
				log.Error("Force live failed after voice check", "matchID", matchID, "error", err)
				return
			}
			e.dispatch(event)
		}:
		case <-e.done:
		}
	}()
	return "voice check started", nil
}

// adminReliability lets an admin charge a no-show or disconnect that the
// automatic voice sampling missed.
func (e *Engine) adminReliability(p AdminParams) error {
	if p.PlayerID == "" {
		return fmt.Errorf("player_id is required")
	}
	if p.NoShows <= 0 && p.Disconnects <= 0 {
		return fmt.Errorf("nothing to record for %q", p.PlayerID)
	}
	if err := e.store.IncrementReliability(p.PlayerID, p.NoShows, p.Disconnects); err != nil {
		return fmt.Errorf("failed to update reliability counters: %w", err)
	}
	log.Info("Reliability counters updated", "playerID", p.PlayerID, "noShows", p.NoShows, "disconnects", p.Disconnects)
	return nil
}

func (e *Engine) adminPlayerStats(p AdminParams) (*PlayerStats, error) {
	player, err := e.store.GetPlayer(p.PlayerID)
	if err != nil {
		return nil, err
	}
	if player == nil {
		return nil, fmt.Errorf("unknown player %q", p.PlayerID)
	}
	history, err := e.store.ListPlayerHistory(p.PlayerID, limitOrDefault(p.Limit))
	if err != nil {
		return nil, err
	}
	return &PlayerStats{Player: *player, History: history}, nil
}

// adminSeedTest enqueues synthetic players so a full lobby can be
// exercised without ten humans. They join as Fill (or Open) and are
// ready-credited by force VC check.
func (e *Engine) adminSeedTest(p AdminParams) (int, error) {
	count := p.Count
	if count <= 0 {
		count = 1
	}

	role := queue.RoleFill
	if e.cfg.Formation.Mode == formation.ModeOpen {
		role = queue.RoleOpen
	}

	seeded := 0
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("test-bot-%d", len(e.synthetic)+1)
		name := fmt.Sprintf("Test Bot %d", len(e.synthetic)+1)
		player, err := e.store.EnsurePlayer(id, name, e.cfg.Rating.DefaultMMR)
		if err != nil {
			return seeded, fmt.Errorf("failed to seed test player: %w", err)
		}
		e.synthetic[id] = true

		entry := queue.Entry{
			PlayerID: id,
			Name:     name,
			Role:     role,
			MMR:      player.MMR,
			State:    queue.StateEligible,
			JoinedAt: time.Now(),
		}
		if err := e.queue.Join(entry); err != nil {
			continue
		}
		if err := e.store.SaveQueueEntry(queueRecord(entry)); err != nil {
			log.Error("Failed to persist seeded queue entry", "playerID", id, "error", err)
		}
		seeded++
	}
	log.Info("Seeded test players", "count", seeded)
	e.tryForm()
	e.publishQueueUpdate()
	return seeded, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
