package lifecycle

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/scrimlab/overqueue/internal/formation"
	"github.com/scrimlab/overqueue/internal/queue"
	"github.com/scrimlab/overqueue/internal/rating"
	"github.com/scrimlab/overqueue/internal/roster"
	"github.com/scrimlab/overqueue/internal/voice"
)

var (
	// ErrMatchAlreadyActive is returned when formation races an unfinished match.
	ErrMatchAlreadyActive = errors.New("a match is already active")
	// ErrNoActiveMatch is returned when an operation targets a match that is not active.
	ErrNoActiveMatch = errors.New("no active match")
	// ErrNotParticipant is returned when the caller is not part of the match.
	ErrNotParticipant = errors.New("player is not a participant of this match")
	// ErrInvalidOverride is returned when an admin override cannot be applied.
	ErrInvalidOverride = errors.New("invalid result override")
)

// Controller owns the single active-match slot and drives every state
// transition. It is not safe for concurrent use: the engine serializes
// all calls through its command loop.
type Controller struct {
	store       roster.Store
	params      rating.Params
	policy      ReportPolicy
	mapPool     []string
	communityID string
	active      *Match

	// randFn picks an index in [0,n); swapped out in tests.
	randFn func(n int) int
	nowFn  func() time.Time
}

// New creates a Controller with the default randomness and clock.
func New(store roster.Store, params rating.Params, policy ReportPolicy, mapPool []string, communityID string) *Controller {
	return &Controller{
		store:       store,
		params:      params,
		policy:      policy,
		mapPool:     mapPool,
		communityID: communityID,
		randFn:      rand.Intn,
		nowFn:       time.Now,
	}
}

// Active returns the current non-terminal match, or nil.
func (c *Controller) Active() *Match {
	return c.active
}

// SetPolicy swaps the report-resolution policy. Applies to the next report.
func (c *Controller) SetPolicy(policy ReportPolicy) {
	c.policy = policy
}

// SetMapPool replaces the map pool used for future draws.
func (c *Controller) SetMapPool(pool []string) {
	c.mapPool = pool
}

// StartMatch claims the active slot for a freshly drafted match, persists
// it, and moves it straight to READY_CHECK. Snapshots in the draft result
// are carried over untouched.
func (c *Controller) StartMatch(res *formation.Result, mode string, synthetic map[string]bool) (*Event, error) {
	if c.active != nil {
		return nil, ErrMatchAlreadyActive
	}

	now := c.nowFn()
	match := &Match{
		ID:        uuid.NewString(),
		Mode:      mode,
		State:     StateForming,
		CreatedAt: now,
	}
	for _, p := range res.TeamA {
		match.Players = append(match.Players, newMatchPlayer(p, roster.ResultTeamA, synthetic))
	}
	for _, p := range res.TeamB {
		match.Players = append(match.Players, newMatchPlayer(p, roster.ResultTeamB, synthetic))
	}

	rec := c.toRecord(match)
	if err := c.store.SaveMatch(rec); err != nil {
		return nil, fmt.Errorf("failed to persist match: %w", err)
	}
	match.Seq = rec.Seq

	match.State = StateReadyCheck
	if err := c.store.UpdateMatchState(match.ID, string(StateReadyCheck), ""); err != nil {
		return nil, fmt.Errorf("failed to persist state: %w", err)
	}

	c.active = match
	log.Info("Match formed", "matchID", match.ID, "seq", match.Seq, "mode", match.Mode, "players", len(match.Players))
	return &Event{Kind: EventReadyCheck, Match: match.Clone()}, nil
}

func newMatchPlayer(p formation.Assigned, team string, synthetic map[string]bool) MatchPlayer {
	return MatchPlayer{
		PlayerID:      p.PlayerID,
		Name:          p.Name,
		Team:          team,
		MMRSnapshot:   p.MMR,
		PreferredRole: p.PreferredRole,
		AssignedRole:  p.AssignedRole,
		JoinedAt:      time.Unix(0, p.JoinedAt),
		VC:            voice.StatusMissing,
		Synthetic:     synthetic[p.PlayerID],
	}
}

// Restore reinstalls a persisted non-terminal match as the active one
// after a restart. Readiness signals and pending reports recorded before
// the restart are replayed from their rows; voice observations are not
// persisted and start over as missing.
func (c *Controller) Restore(rec *roster.MatchRecord, ready []string, reports []roster.ReportRecord) error {
	if c.active != nil {
		return ErrMatchAlreadyActive
	}

	state := State(rec.State)
	if state == StateForming {
		state = StateReadyCheck
	}
	readySet := make(map[string]bool, len(ready))
	for _, id := range ready {
		readySet[id] = true
	}

	match := &Match{
		ID:        rec.ID,
		Seq:       rec.Seq,
		Mode:      rec.Mode,
		State:     state,
		MapName:   rec.MapName,
		Escalated: rec.Escalated,
		CreatedAt: time.Unix(rec.CreatedAt, 0),
	}
	for _, team := range rec.Teams {
		for _, p := range team.Players {
			match.Players = append(match.Players, MatchPlayer{
				PlayerID:      p.PlayerID,
				Name:          p.Name,
				Team:          team.Name,
				MMRSnapshot:   p.MMRSnapshot,
				PreferredRole: queue.Role(p.PreferredRole),
				AssignedRole:  queue.Role(p.AssignedRole),
				JoinedAt:      match.CreatedAt,
				Ready:         readySet[p.PlayerID],
				VC:            voice.StatusMissing,
			})
		}
	}
	for _, r := range reports {
		match.Reports = append(match.Reports, ResultReport{
			Team:       r.Team,
			ReporterID: r.ReporterID,
			Outcome:    r.Outcome,
			At:         time.Unix(r.CreatedAt, 0),
		})
	}

	c.active = match
	log.Info("Active match restored", "matchID", match.ID, "state", match.State, "players", len(match.Players))
	return nil
}

// MarkReady records a readiness signal. Signals for a stale match ID are
// discarded. When the last participant readies up the match goes LIVE,
// draws a map, and immediately accepts reports.
func (c *Controller) MarkReady(matchID, playerID string) (*Event, error) {
	if c.active == nil || c.active.ID != matchID {
		return nil, nil
	}
	if c.active.State != StateReadyCheck {
		return nil, nil
	}
	player := c.active.Player(playerID)
	if player == nil {
		return nil, ErrNotParticipant
	}
	if !player.Ready {
		if err := c.store.MarkMatchReady(matchID, playerID); err != nil {
			return nil, fmt.Errorf("failed to persist readiness: %w", err)
		}
		player.Ready = true
	}

	if !c.active.AllReady() {
		return nil, nil
	}
	return c.goLive()
}

// ForceLive moves READY_CHECK to LIVE regardless of outstanding readiness.
// With creditSynthetic, test participants are marked ready first so they
// do not show up as no-shows.
func (c *Controller) ForceLive(matchID string, creditSynthetic bool) (*Event, error) {
	if c.active == nil || c.active.ID != matchID {
		return nil, ErrNoActiveMatch
	}
	if c.active.State != StateReadyCheck {
		return nil, fmt.Errorf("match is %s, not %s", c.active.State, StateReadyCheck)
	}
	if creditSynthetic {
		for i := range c.active.Players {
			if c.active.Players[i].Synthetic {
				c.active.Players[i].Ready = true
			}
		}
	}
	return c.goLive()
}

func (c *Controller) goLive() (*Event, error) {
	c.active.State = StateLive
	c.active.MapName = c.drawMap("")

	// Reporting opens as soon as the match is live.
	c.active.State = StateReporting
	if err := c.store.UpdateMatchState(c.active.ID, string(StateReporting), c.active.MapName); err != nil {
		c.active.State = StateReadyCheck
		c.active.MapName = ""
		return nil, fmt.Errorf("failed to persist state: %w", err)
	}
	log.Info("Match live", "matchID", c.active.ID, "map", c.active.MapName)
	return &Event{Kind: EventLive, Match: c.active.Clone()}, nil
}

func (c *Controller) drawMap(exclude string) string {
	if len(c.mapPool) == 0 {
		return ""
	}
	name := c.mapPool[c.randFn(len(c.mapPool))]
	if name == exclude && len(c.mapPool) > 1 {
		for _, candidate := range c.mapPool {
			if candidate != exclude {
				name = candidate
				break
			}
		}
	}
	return name
}

// RerollMap draws a replacement map while the match is still in play.
func (c *Controller) RerollMap(matchID string) (*Event, error) {
	if c.active == nil || c.active.ID != matchID {
		return nil, ErrNoActiveMatch
	}
	if c.active.State != StateReporting {
		return nil, fmt.Errorf("match is %s, map can only be rerolled in play", c.active.State)
	}
	c.active.MapName = c.drawMap(c.active.MapName)
	if err := c.store.UpdateMatchState(c.active.ID, string(c.active.State), c.active.MapName); err != nil {
		return nil, fmt.Errorf("failed to persist map: %w", err)
	}
	return &Event{Kind: EventMapReroll, Match: c.active.Clone()}, nil
}

// SetVCStatus records a voice-presence observation. Never blocks a
// transition; stale match IDs are no-ops.
func (c *Controller) SetVCStatus(matchID, playerID string, status voice.Status) {
	if c.active == nil || c.active.ID != matchID {
		return
	}
	if player := c.active.Player(playerID); player != nil {
		player.VC = status
	}
}

// Report handles an outcome claim from a participant. Resolution depends
// on the configured policy. A report against an already-settled match ID
// fails with roster.ErrAlreadySettled; a report against an unknown or
// cancelled match ID is a no-op.
func (c *Controller) Report(matchID, team, reporterID, outcome string) (*Event, error) {
	if c.active == nil || c.active.ID != matchID {
		rec, err := c.store.GetMatch(matchID)
		if err == nil && rec != nil && rec.State == string(StateComplete) {
			return nil, roster.ErrAlreadySettled
		}
		return nil, nil
	}
	if c.active.State == StateDisputed {
		return nil, fmt.Errorf("match %s is disputed, waiting on an admin", matchID)
	}
	if c.active.State != StateReporting {
		return nil, fmt.Errorf("match is %s, not accepting reports", c.active.State)
	}
	if !ValidOutcome(outcome) {
		return nil, fmt.Errorf("unknown outcome %q", outcome)
	}
	reporter := c.active.Player(reporterID)
	if reporter == nil || reporter.Team != team {
		return nil, ErrNotParticipant
	}

	if c.policy == PolicyFirstAccept {
		return c.settle(outcome, reporterID)
	}

	// Dual confirmation: only the first report per team counts.
	for _, existing := range c.active.Reports {
		if existing.Team == team {
			return nil, nil
		}
	}
	report := ResultReport{Team: team, ReporterID: reporterID, Outcome: outcome, At: c.nowFn()}
	if err := c.store.SaveMatchReport(roster.ReportRecord{
		MatchID:    c.active.ID,
		Team:       report.Team,
		ReporterID: report.ReporterID,
		Outcome:    report.Outcome,
		CreatedAt:  report.At.Unix(),
	}); err != nil {
		return nil, fmt.Errorf("failed to persist report: %w", err)
	}
	c.active.Reports = append(c.active.Reports, report)
	if len(c.active.Reports) < 2 {
		return nil, nil
	}

	first := c.active.Reports[0]
	if first.Outcome == outcome {
		return c.settle(outcome, first.ReporterID)
	}

	c.active.State = StateDisputed
	c.active.Escalated = true
	if err := c.store.SetMatchEscalated(c.active.ID, true); err != nil {
		log.Error("Failed to persist escalation flag", "matchID", c.active.ID, "error", err)
	}
	if err := c.store.UpdateMatchState(c.active.ID, string(StateDisputed), c.active.MapName); err != nil {
		log.Error("Failed to persist state", "matchID", c.active.ID, "error", err)
	}
	log.Warn("Conflicting reports", "matchID", c.active.ID, "first", first.Outcome, "second", outcome)
	return &Event{Kind: EventDisputed, Match: c.active.Clone()}, nil
}

// ForceResult settles the active match with an admin-declared outcome,
// from any state that still accepts one.
func (c *Controller) ForceResult(matchID, adminID, outcome string) (*Event, error) {
	if c.active == nil || c.active.ID != matchID {
		return nil, ErrNoActiveMatch
	}
	if !ValidOutcome(outcome) {
		return nil, fmt.Errorf("%w: unknown outcome %q", ErrInvalidOverride, outcome)
	}
	return c.settle(outcome, adminID)
}

// settle computes rating deltas from the formation snapshots, applies
// them atomically through the store, and releases the active slot.
func (c *Controller) settle(outcome, reporterID string) (*Event, error) {
	match := c.active

	ids := make([]string, 0, len(match.Players))
	for _, p := range match.Players {
		ids = append(ids, p.PlayerID)
	}
	players, err := c.store.GetPlayers(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load players for settlement: %w", err)
	}
	completed := make(map[string]int, len(players))
	for _, p := range players {
		completed[p.ID] = p.CompletedMatches
	}

	avgA := teamSnapshotAverage(match.Team(roster.ResultTeamA))
	avgB := teamSnapshotAverage(match.Team(roster.ResultTeamB))

	now := c.nowFn().Unix()
	changes := make([]roster.RatingChange, 0, len(match.Players))
	for _, p := range match.Players {
		oppAvg := avgB
		if p.Team == roster.ResultTeamB {
			oppAvg = avgA
		}
		calibration := c.params.InCalibration(completed[p.PlayerID])
		delta := c.params.ComputeDelta(p.MMRSnapshot, oppAvg, scoreFor(p.Team, outcome), calibration)
		after := c.params.Clamp(p.MMRSnapshot + delta)
		changes = append(changes, roster.RatingChange{
			MatchID:     match.ID,
			MatchSeq:    match.Seq,
			PlayerID:    p.PlayerID,
			PlayerName:  p.Name,
			Team:        p.Team,
			MMRBefore:   p.MMRSnapshot,
			Delta:       after - p.MMRSnapshot,
			MMRAfter:    after,
			Calibration: calibration,
			CreatedAt:   now,
		})
	}

	if err := c.store.ApplySettlement(match.ID, outcome, reporterID, changes); err != nil {
		return nil, err
	}

	for _, p := range match.Players {
		if p.Synthetic {
			continue
		}
		noShows, disconnects := 0, 0
		switch p.VC {
		case voice.StatusMissing:
			noShows = 1
		case voice.StatusDisconnected:
			disconnects = 1
		default:
			continue
		}
		if err := c.store.IncrementReliability(p.PlayerID, noShows, disconnects); err != nil {
			log.Error("Failed to update reliability counters", "playerID", p.PlayerID, "error", err)
		}
	}

	if err := c.store.ClearMatchRuntime(match.ID); err != nil {
		log.Error("Failed to clear match runtime rows", "matchID", match.ID, "error", err)
	}

	match.State = StateComplete
	match.Result = outcome
	c.active = nil
	log.Info("Match settled", "matchID", match.ID, "result", outcome, "reporter", reporterID)
	return &Event{Kind: EventSettled, Match: match.Clone(), Changes: changes}, nil
}

// Cancel aborts the active match and releases the slot. The returned
// match carries the roster so the caller can decide about requeueing.
func (c *Controller) Cancel(matchID string) (*Event, error) {
	if c.active == nil || c.active.ID != matchID {
		return nil, ErrNoActiveMatch
	}
	match := c.active
	if err := c.store.UpdateMatchState(match.ID, string(StateCancelled), match.MapName); err != nil {
		return nil, fmt.Errorf("failed to persist state: %w", err)
	}
	if err := c.store.ClearMatchRuntime(match.ID); err != nil {
		log.Error("Failed to clear match runtime rows", "matchID", match.ID, "error", err)
	}
	match.State = StateCancelled
	c.active = nil
	log.Info("Match cancelled", "matchID", match.ID)
	return &Event{Kind: EventCancelled, Match: match.Clone()}, nil
}

// OverrideResult rewrites a completed match's outcome. Original deltas are
// recomputed against the corrected result using the recorded snapshots and
// calibration flags, and the difference is applied to each player's current
// MMR. Completion counters are left alone: the match already counted.
func (c *Controller) OverrideResult(matchID, outcome string) ([]roster.RatingChange, error) {
	if !ValidOutcome(outcome) {
		return nil, fmt.Errorf("%w: unknown outcome %q", ErrInvalidOverride, outcome)
	}
	rec, err := c.store.GetMatch(matchID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: match %s not found", ErrInvalidOverride, matchID)
	}
	if rec.State != string(StateComplete) {
		return nil, fmt.Errorf("%w: match is %s, only completed matches can be overridden", ErrInvalidOverride, rec.State)
	}
	if rec.Result == outcome {
		return nil, fmt.Errorf("%w: match already resolved as %s", ErrInvalidOverride, outcome)
	}

	changes, err := c.store.GetRatingChanges(matchID)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: no rating history for match %s", ErrInvalidOverride, matchID)
	}

	var snapsA, snapsB []int
	for _, change := range changes {
		if change.Team == roster.ResultTeamA {
			snapsA = append(snapsA, change.MMRBefore)
		} else {
			snapsB = append(snapsB, change.MMRBefore)
		}
	}
	avgA := c.params.TeamAverage(snapsA)
	avgB := c.params.TeamAverage(snapsB)

	ids := make([]string, 0, len(changes))
	for _, change := range changes {
		ids = append(ids, change.PlayerID)
	}
	players, err := c.store.GetPlayers(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load players for override: %w", err)
	}
	currentMMR := make(map[string]int, len(players))
	for _, p := range players {
		currentMMR[p.ID] = p.MMR
	}

	overrides := make([]roster.Override, 0, len(changes))
	rewritten := make([]roster.RatingChange, 0, len(changes))
	for _, change := range changes {
		oppAvg := avgB
		if change.Team == roster.ResultTeamB {
			oppAvg = avgA
		}
		delta := c.params.ComputeDelta(change.MMRBefore, oppAvg, scoreFor(change.Team, outcome), change.Calibration)
		after := c.params.Clamp(change.MMRBefore + delta)
		correction := after - change.MMRAfter

		updated := change
		updated.Delta = after - change.MMRBefore
		updated.MMRAfter = after
		overrides = append(overrides, roster.Override{
			Change:    updated,
			PlayerMMR: c.params.Clamp(currentMMR[change.PlayerID] + correction),
		})
		rewritten = append(rewritten, updated)
	}

	if err := c.store.ApplyOverride(matchID, rec.Result, outcome, overrides); err != nil {
		return nil, err
	}
	log.Info("Match result overridden", "matchID", matchID, "from", rec.Result, "to", outcome)
	return rewritten, nil
}

func (c *Controller) toRecord(match *Match) *roster.MatchRecord {
	teams := []roster.TeamRecord{
		{Name: roster.ResultTeamA},
		{Name: roster.ResultTeamB},
	}
	for _, p := range match.Players {
		tp := roster.TeamPlayer{
			PlayerID:      p.PlayerID,
			Name:          p.Name,
			MMRSnapshot:   p.MMRSnapshot,
			PreferredRole: string(p.PreferredRole),
			AssignedRole:  string(p.AssignedRole),
		}
		if p.Team == roster.ResultTeamA {
			teams[0].Players = append(teams[0].Players, tp)
		} else {
			teams[1].Players = append(teams[1].Players, tp)
		}
	}
	return &roster.MatchRecord{
		ID:          match.ID,
		CommunityID: c.communityID,
		Mode:        match.Mode,
		State:       string(match.State),
		Teams:       teams,
		CreatedAt:   match.CreatedAt.Unix(),
	}
}

func teamSnapshotAverage(team []MatchPlayer) int {
	if len(team) == 0 {
		return 0
	}
	sum := 0
	for _, p := range team {
		sum += p.MMRSnapshot
	}
	return int(math.Round(float64(sum) / float64(len(team))))
}

func scoreFor(team, outcome string) float64 {
	switch {
	case outcome == roster.ResultDraw:
		return rating.ScoreDraw
	case outcome == team:
		return rating.ScoreWin
	default:
		return rating.ScoreLoss
	}
}
