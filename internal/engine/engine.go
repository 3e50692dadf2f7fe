// Package engine is the orchestrator: one instance per community, one
// goroutine draining a command channel, so every mutation of queue and
// match state happens in arrival order without further locking.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/scrimlab/overqueue/internal/events"
	"github.com/scrimlab/overqueue/internal/formation"
	"github.com/scrimlab/overqueue/internal/lifecycle"
	"github.com/scrimlab/overqueue/internal/metrics"
	"github.com/scrimlab/overqueue/internal/notifier"
	"github.com/scrimlab/overqueue/internal/queue"
	"github.com/scrimlab/overqueue/internal/rating"
	"github.com/scrimlab/overqueue/internal/roster"
	"github.com/scrimlab/overqueue/internal/voice"
)

// ErrStopped is returned for operations submitted after shutdown.
var ErrStopped = errors.New("engine stopped")

// New wires an Engine. Call Run before submitting operations.
func New(cfg Config, store roster.Store, ctrl *lifecycle.Controller, mover voice.Mover, notif notifier.Notifier, bus events.Client, m metrics.Metrics) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     store,
		queue:     queue.NewManager(),
		ctrl:      ctrl,
		mover:     mover,
		notifier:  notif,
		bus:       bus,
		metrics:   m,
		synthetic: make(map[string]bool),
		commands:  make(chan func(), 64),
		done:      make(chan struct{}),
	}
}

// Restore reloads the persisted queue and any in-flight match so a
// restart picks up where the previous process stopped. Call once, before
// Run starts draining commands.
func (e *Engine) Restore() error {
	entries, err := e.store.ListQueueEntries()
	if err != nil {
		return fmt.Errorf("failed to load queue entries: %w", err)
	}
	for _, rec := range entries {
		err := e.queue.Join(queue.Entry{
			PlayerID: rec.PlayerID,
			Name:     rec.Name,
			Role:     queue.Role(rec.Role),
			MMR:      rec.MMR,
			State:    queue.EntryState(rec.State),
			JoinedAt: time.Unix(0, rec.JoinedAt),
		})
		if err != nil {
			log.Error("Failed to restore queue entry", "playerID", rec.PlayerID, "error", err)
		}
	}

	rec, err := e.store.GetActiveMatch()
	if err != nil {
		return fmt.Errorf("failed to load active match: %w", err)
	}
	if rec != nil {
		ready, err := e.store.ListMatchReady(rec.ID)
		if err != nil {
			return fmt.Errorf("failed to load readiness rows: %w", err)
		}
		reports, err := e.store.ListMatchReports(rec.ID)
		if err != nil {
			return fmt.Errorf("failed to load pending reports: %w", err)
		}
		if err := e.ctrl.Restore(rec, ready, reports); err != nil {
			return err
		}
	}

	if len(entries) > 0 || rec != nil {
		matchID := ""
		if rec != nil {
			matchID = rec.ID
		}
		log.Info("Runtime state restored", "queueEntries", len(entries), "matchID", matchID)
	}
	return nil
}

// Run drains the command channel until the context is cancelled. It must
// be called exactly once.
func (e *Engine) Run(ctx context.Context) {
	log.Info("Engine running", "communityID", e.cfg.CommunityID, "mode", e.cfg.Formation.Mode)
	for {
		select {
		case <-ctx.Done():
			close(e.done)
			log.Info("Engine stopped", "communityID", e.cfg.CommunityID)
			return
		case cmd := <-e.commands:
			start := time.Now()
			cmd()
			e.metrics.ObserveCommandDuration(time.Since(start).Seconds())
		}
	}
}

// do runs fn on the engine goroutine and waits for it.
func (e *Engine) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case e.commands <- func() { fn(); close(finished) }:
	case <-e.done:
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-e.done:
		return ErrStopped
	}
}

// OnJoin enqueues a player. A player without a complete profile holds a
// PendingProfile slot and the result says which fields to prompt for;
// the accompanying error is queue.ErrProfileIncomplete.
func (e *Engine) OnJoin(playerID, name, role string) (JoinResult, error) {
	var res JoinResult
	var opErr error
	if err := e.do(func() { res, opErr = e.join(playerID, name, role) }); err != nil {
		return JoinResult{}, err
	}
	return res, opErr
}

func (e *Engine) join(playerID, name, role string) (JoinResult, error) {
	resolved, err := e.resolveRole(role)
	if err != nil {
		return JoinResult{}, err
	}

	player, err := e.store.EnsurePlayer(playerID, name, e.cfg.Rating.DefaultMMR)
	if err != nil {
		return JoinResult{}, fmt.Errorf("failed to load player: %w", err)
	}

	state := queue.StateEligible
	if !player.HasProfile() {
		state = queue.StatePendingProfile
	}
	entry := queue.Entry{
		PlayerID: playerID,
		Name:     player.Name,
		Role:     resolved,
		MMR:      player.MMR,
		State:    state,
		JoinedAt: time.Now(),
	}
	if err := e.queue.Join(entry); err != nil {
		return JoinResult{}, err
	}
	if err := e.store.SaveQueueEntry(queueRecord(entry)); err != nil {
		e.queue.Leave(playerID)
		return JoinResult{}, fmt.Errorf("failed to persist queue entry: %w", err)
	}
	e.metrics.IncQueueJoins()

	res := JoinResult{
		Accepted:       true,
		NeedsBattleTag: player.BattleTag == nil || *player.BattleTag == "",
		NeedsRank:      player.RankTier == nil || *player.RankTier == "",
		Position:       e.queue.Len(),
	}
	log.Info("Player joined queue", "playerID", playerID, "role", resolved, "state", state)

	if state == queue.StatePendingProfile {
		return res, queue.ErrProfileIncomplete
	}
	e.tryForm()
	e.publishQueueUpdate()
	return res, nil
}

func (e *Engine) resolveRole(role string) (queue.Role, error) {
	if e.cfg.Formation.Mode == formation.ModeOpen {
		return queue.RoleOpen, nil
	}
	if role == "" {
		return e.cfg.DefaultRole, nil
	}
	if !queue.ValidRole(role) || queue.Role(role) == queue.RoleOpen {
		return "", fmt.Errorf("unknown role %q", role)
	}
	return queue.Role(role), nil
}

// OnProfileCaptured records the prompted BattleTag/rank and promotes the
// player's pending queue entry. A fresh player's MMR is seeded from the
// declared rank tier.
func (e *Engine) OnProfileCaptured(playerID, battleTag, rankTier string) error {
	var opErr error
	if err := e.do(func() { opErr = e.profileCaptured(playerID, battleTag, rankTier) }); err != nil {
		return err
	}
	return opErr
}

func (e *Engine) profileCaptured(playerID, battleTag, rankTier string) error {
	if rankTier != "" && !rating.ValidTier(rankTier) {
		return fmt.Errorf("unknown rank tier %q", rankTier)
	}

	player, err := e.store.GetPlayer(playerID)
	if err != nil {
		return fmt.Errorf("failed to load player: %w", err)
	}
	if player == nil {
		return fmt.Errorf("unknown player %q", playerID)
	}

	var tagPtr, tierPtr *string
	if battleTag != "" {
		tagPtr = &battleTag
	}
	if rankTier != "" {
		tierPtr = &rankTier
	}
	if err := e.store.SetProfile(playerID, tagPtr, tierPtr); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	mmr := player.MMR
	firstRank := player.RankTier == nil || *player.RankTier == ""
	if rankTier != "" && firstRank && player.CompletedMatches == 0 {
		mmr = e.cfg.Rating.StarterMMR(rating.Tier(rankTier))
		if err := e.store.SetMMR(playerID, mmr); err != nil {
			return fmt.Errorf("failed to seed starter rating: %w", err)
		}
		log.Info("Seeded starter rating", "playerID", playerID, "rank", rankTier, "mmr", mmr)
	}

	updated, err := e.store.GetPlayer(playerID)
	if err != nil {
		return fmt.Errorf("failed to reload player: %w", err)
	}
	if !updated.HasProfile() {
		return queue.ErrProfileIncomplete
	}

	if err := e.queue.Promote(playerID, mmr); err != nil {
		if errors.Is(err, queue.ErrNotQueued) {
			return nil
		}
		return err
	}
	if entry := e.queue.Entry(playerID); entry != nil {
		if err := e.store.SaveQueueEntry(queueRecord(*entry)); err != nil {
			log.Error("Failed to persist promoted queue entry", "playerID", playerID, "error", err)
		}
	}
	log.Info("Queue entry promoted", "playerID", playerID)
	e.tryForm()
	e.publishQueueUpdate()
	return nil
}

// OnLeave removes the player's queue entry. Idempotent.
func (e *Engine) OnLeave(playerID string) bool {
	var removed bool
	if err := e.do(func() { removed = e.leave(playerID) }); err != nil {
		return false
	}
	return removed
}

func (e *Engine) leave(playerID string) bool {
	removed := e.queue.Leave(playerID)
	if removed {
		if err := e.store.RemoveQueueEntries([]string{playerID}); err != nil {
			log.Error("Failed to remove persisted queue entry", "playerID", playerID, "error", err)
		}
		e.metrics.IncQueueLeaves()
		log.Info("Player left queue", "playerID", playerID)
		e.publishQueueUpdate()
	}
	return removed
}

// OnReady records a readiness signal for the active match.
func (e *Engine) OnReady(matchID, playerID string) (*lifecycle.Event, error) {
	var event *lifecycle.Event
	var opErr error
	if err := e.do(func() {
		event, opErr = e.ctrl.MarkReady(matchID, playerID)
		if event != nil {
			e.dispatch(event)
		}
	}); err != nil {
		return nil, err
	}
	return event, opErr
}

// OnReport records an outcome claim for the active match.
func (e *Engine) OnReport(matchID, team, playerID, outcome string) (*lifecycle.Event, error) {
	var event *lifecycle.Event
	var opErr error
	if err := e.do(func() {
		event, opErr = e.ctrl.Report(matchID, team, playerID, outcome)
		if opErr != nil {
			if errors.Is(opErr, roster.ErrAlreadySettled) || errors.Is(opErr, lifecycle.ErrNotParticipant) {
				e.metrics.IncReportsRejected()
			}
			return
		}
		if event != nil {
			if event.Kind == lifecycle.EventSettled {
				e.afterSettlement()
			}
			e.dispatch(event)
		}
	}); err != nil {
		return nil, err
	}
	return event, opErr
}

// SnapshotForDisplay returns the queue and active-match projection.
func (e *Engine) SnapshotForDisplay() Snapshot {
	var snap Snapshot
	if err := e.do(func() {
		snap.Queue = e.queue.Snapshot()
		snap.EligibleCount = e.queue.EligibleCount()
		if active := e.ctrl.Active(); active != nil {
			matchCopy := active.Clone()
			snap.Match = &matchCopy
		}
	}); err != nil {
		return Snapshot{}
	}
	return snap
}

// tryForm attempts a draft against the current eligible entries. Runs on
// the engine goroutine only. Shortage is the normal case and stays quiet.
func (e *Engine) tryForm() {
	if e.ctrl.Active() != nil {
		return
	}
	res, err := formation.Form(e.queue.Eligible(), e.cfg.Formation)
	if err != nil {
		if errors.Is(err, formation.ErrInsufficientPlayers) || errors.Is(err, formation.ErrRoleSlotsUnsatisfiable) {
			log.Debug("Formation not possible yet", "eligible", e.queue.EligibleCount(), "reason", err)
			return
		}
		log.Error("Formation failed", "error", err)
		return
	}

	event, err := e.ctrl.StartMatch(res, string(e.cfg.Formation.Mode), e.synthetic)
	if err != nil {
		log.Error("Failed to start match", "error", err)
		return
	}
	e.queue.Consume(res.PlayerIDs())
	if err := e.store.RemoveQueueEntries(res.PlayerIDs()); err != nil {
		log.Error("Failed to remove drafted queue entries", "error", err)
	}
	e.metrics.IncMatchesFormed()
	e.dispatch(event)
	e.publishQueueUpdate()
}

// afterSettlement runs on the engine goroutine once a match settled.
func (e *Engine) afterSettlement() {
	e.metrics.IncMatchesSettled()
	e.tryForm()
}

// requeueMatchPlayers puts a cancelled match's players back at the end of
// the queue, preserving their relative order. Players who already hold an
// entry are not duplicated.
func (e *Engine) requeueMatchPlayers(match *lifecycle.Match) int {
	players := make([]lifecycle.MatchPlayer, len(match.Players))
	copy(players, match.Players)
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})

	requeued := 0
	for _, p := range players {
		entry := queue.Entry{
			PlayerID: p.PlayerID,
			Name:     p.Name,
			Role:     p.PreferredRole,
			MMR:      p.MMRSnapshot,
			State:    queue.StateEligible,
			JoinedAt: time.Now(),
		}
		if err := e.queue.Join(entry); err != nil {
			continue
		}
		if err := e.store.SaveQueueEntry(queueRecord(entry)); err != nil {
			log.Error("Failed to persist requeued entry", "playerID", p.PlayerID, "error", err)
		}
		requeued++
	}
	return requeued
}

// dispatch fires side effects for a committed transition. Called on the
// engine goroutine; only launching the worker happens on the critical
// path. The event carries a detached match copy and the config values are
// captured up front, so the worker shares no state with the loop.
func (e *Engine) dispatch(event *lifecycle.Event) {
	vc := e.cfg.Voice
	dryRun := e.cfg.DryRun
	go func() {
		switch event.Kind {
		case lifecycle.EventReadyCheck:
			e.publishMatchEvent(events.EventMatchFormed, &event.Match)
		case lifecycle.EventLive:
			e.moveTeamsToVoice(&event.Match, vc)
			e.publishMatchEvent(events.EventMatchLive, &event.Match)
		case lifecycle.EventSettled:
			e.notifySettled(event, dryRun)
			e.publishMatchEvent(events.EventMatchSettled, &event.Match)
		case lifecycle.EventDisputed:
			if err := e.notifier.SendEscalation(event.Match.ID, "conflicting result reports", dryRun); err != nil {
				log.Error("Failed to send escalation", "matchID", event.Match.ID, "error", err)
			}
		case lifecycle.EventCancelled:
			e.publishMatchEvent(events.EventMatchCancelled, &event.Match)
		}
	}()
}

func (e *Engine) notifySettled(event *lifecycle.Event, dryRun bool) {
	rec, err := e.store.GetMatch(event.Match.ID)
	if err != nil || rec == nil {
		log.Error("Failed to load settled match for notification", "matchID", event.Match.ID, "error", err)
		return
	}
	if err := e.notifier.SendResultSummary(rec, event.Changes, dryRun); err != nil {
		log.Error("Failed to send result summary", "matchID", event.Match.ID, "error", err)
	}
}

// moveTeamsToVoice relocates players who are sitting in the main lobby
// channel to their team channel. Best effort: observations are reported
// back to the engine loop, failures only logged.
func (e *Engine) moveTeamsToVoice(match *lifecycle.Match, vc VoiceChannels) {
	if e.mover == nil || vc.Main == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	statuses := make(map[string]voice.Status, len(match.Players))
	for _, p := range match.Players {
		if p.Synthetic {
			continue
		}
		connected, err := e.mover.IsConnected(ctx, p.PlayerID, vc.Main)
		if err != nil {
			log.Error("Voice presence check failed", "playerID", p.PlayerID, "error", err)
			continue
		}
		if !connected {
			statuses[p.PlayerID] = voice.StatusMissing
			continue
		}
		target := vc.TeamA
		if p.Team == roster.ResultTeamB {
			target = vc.TeamB
		}
		if err := e.mover.Move(ctx, p.PlayerID, target); err != nil {
			log.Error("Voice move failed", "playerID", p.PlayerID, "error", err)
		}
		statuses[p.PlayerID] = voice.StatusInVC
	}

	matchID := match.ID
	select {
	case e.commands <- func() {
		for playerID, status := range statuses {
			e.ctrl.SetVCStatus(matchID, playerID, status)
		}
	}:
	case <-e.done:
	}
}

func queueRecord(entry queue.Entry) roster.QueueEntryRecord {
	return roster.QueueEntryRecord{
		PlayerID: entry.PlayerID,
		Name:     entry.Name,
		Role:     string(entry.Role),
		MMR:      entry.MMR,
		State:    string(entry.State),
		JoinedAt: entry.JoinedAt.UnixNano(),
	}
}

func (e *Engine) publishQueueUpdate() {
	entries := e.queue.Snapshot()
	update := events.QueueUpdate{
		CommunityID: e.cfg.CommunityID,
		Size:        len(entries),
		Eligible:    e.queue.EligibleCount(),
	}
	for _, entry := range entries {
		update.PlayerIDs = append(update.PlayerIDs, entry.PlayerID)
	}
	go func() {
		if err := e.bus.SendMessage(events.EventQueueUpdated, update); err != nil {
			log.Error("Failed to publish queue update", "error", err)
		}
	}()
}

func (e *Engine) publishMatchEvent(topic events.EventType, match *lifecycle.Match) {
	payload := events.MatchEvent{
		CommunityID: e.cfg.CommunityID,
		MatchID:     match.ID,
		State:       string(match.State),
		Result:      match.Result,
		MapName:     match.MapName,
	}
	for _, p := range match.Players {
		payload.PlayerIDs = append(payload.PlayerIDs, p.PlayerID)
	}
	if err := e.bus.SendMessage(topic, payload); err != nil {
		log.Error("Failed to publish match event", "topic", topic, "error", err)
	}
}
