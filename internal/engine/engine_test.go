package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/scrimlab/overqueue/internal/database"
	"github.com/scrimlab/overqueue/internal/events"
	"github.com/scrimlab/overqueue/internal/formation"
	"github.com/scrimlab/overqueue/internal/lifecycle"
	"github.com/scrimlab/overqueue/internal/metrics"
	"github.com/scrimlab/overqueue/internal/notifier"
	"github.com/scrimlab/overqueue/internal/queue"
	"github.com/scrimlab/overqueue/internal/rating"
	"github.com/scrimlab/overqueue/internal/roster"
	"github.com/scrimlab/overqueue/internal/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEngine struct {
	engine   *Engine
	store    roster.Store
	notifier *notifier.Mock
	metrics  *metrics.Mock
	bus      *events.MockClient
	mover    *voice.MockMover
	stop     func()
}

func newTestEngine(t *testing.T, fcfg formation.Config, policy lifecycle.ReportPolicy) *testEngine {
	t.Helper()
	db, teardown, err := database.InitDB(":memory:", "", "", "../../migrations")
	require.NoError(t, err)
	t.Cleanup(teardown)
	return startEngine(t, db, fcfg, policy)
}

// startEngine builds an engine over an existing database so restart
// scenarios can hand the same file to a second instance.
func startEngine(t *testing.T, db *sql.DB, fcfg formation.Config, policy lifecycle.ReportPolicy) *testEngine {
	t.Helper()
	store := roster.New(db)
	params := rating.DefaultParams()
	ctrl := lifecycle.New(store, params, policy, []string{"Ilios", "Oasis", "Busan"}, "test-community")

	notif := notifier.NewMock()
	m := metrics.NewMock()
	bus := events.NewMock()
	mover := voice.NewMock()

	eng := New(Config{
		CommunityID: "test-community",
		Formation:   fcfg,
		DefaultRole: queue.RoleFill,
		Rating:      params,
		Voice:       VoiceChannels{Main: "vc-main", TeamA: "vc-a", TeamB: "vc-b"},
	}, store, ctrl, mover, notif, bus, m)
	require.NoError(t, eng.Restore())

	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)
	t.Cleanup(cancel)

	return &testEngine{engine: eng, store: store, notifier: notif, metrics: m, bus: bus, mover: mover, stop: cancel}
}

func openConfig(playersPerMatch int) formation.Config {
	return formation.Config{Mode: formation.ModeOpen, PlayersPerMatch: playersPerMatch}
}

func roleConfig() formation.Config {
	return formation.Config{
		Mode:            formation.ModeRole,
		PlayersPerMatch: 10,
		TankPerTeam:     1,
		DPSPerTeam:      2,
		SupportPerTeam:  2,
	}
}

// seedProfile creates a player whose BattleTag and rank are already on
// file, so a join is immediately eligible.
func (te *testEngine) seedProfile(t *testing.T, id, name string) {
	t.Helper()
	_, err := te.store.EnsurePlayer(id, name, 2500)
	require.NoError(t, err)
	tag := name + "#1234"
	tier := "diamond"
	require.NoError(t, te.store.SetProfile(id, &tag, &tier))
}

func (te *testEngine) joinAll(t *testing.T, role string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		te.seedProfile(t, id, "Player "+id)
		res, err := te.engine.OnJoin(id, "Player "+id, role)
		require.NoError(t, err)
		require.True(t, res.Accepted)
	}
}

func TestEndToEndOpenMode(t *testing.T) {
	te := newTestEngine(t, openConfig(10), lifecycle.PolicyFirstAccept)

	ids := make([]string, 0, 10)
	for i := 1; i <= 10; i++ {
		ids = append(ids, fmt.Sprintf("p%d", i))
	}
	te.joinAll(t, "", ids...)

	snap := te.engine.SnapshotForDisplay()
	require.NotNil(t, snap.Match, "ten eligible players must form a match")
	assert.Equal(t, lifecycle.StateReadyCheck, snap.Match.State)
	assert.Empty(t, snap.Queue, "formed players leave the queue")
	assert.Len(t, snap.Match.Players, 10)
	assert.Equal(t, 1, te.metrics.MatchesFormed())

	matchID := snap.Match.ID
	for _, id := range ids {
		_, err := te.engine.OnReady(matchID, id)
		require.NoError(t, err)
	}

	snap = te.engine.SnapshotForDisplay()
	require.NotNil(t, snap.Match)
	assert.Equal(t, lifecycle.StateReporting, snap.Match.State)
	assert.Contains(t, []string{"Ilios", "Oasis", "Busan"}, snap.Match.MapName)

	var reporter string
	for _, p := range snap.Match.Players {
		if p.Team == roster.ResultTeamA {
			reporter = p.PlayerID
			break
		}
	}
	event, err := te.engine.OnReport(matchID, roster.ResultTeamA, reporter, roster.ResultTeamA)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, lifecycle.EventSettled, event.Kind)

	snap = te.engine.SnapshotForDisplay()
	assert.Nil(t, snap.Match, "queue re-evaluated and stays empty")
	assert.Empty(t, snap.Queue)
	assert.Equal(t, 1, te.metrics.MatchesSettled())

	changes, err := te.store.GetRatingChanges(matchID)
	require.NoError(t, err)
	require.Len(t, changes, 10)
	for _, change := range changes {
		if change.Team == roster.ResultTeamA {
			assert.Positive(t, change.Delta, "winner %s", change.PlayerID)
		} else {
			assert.Negative(t, change.Delta, "loser %s", change.PlayerID)
		}
	}

	assert.Eventually(t, func() bool {
		return len(te.notifier.SendResultSummaryCalls) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestEndToEndRoleMode(t *testing.T) {
	te := newTestEngine(t, roleConfig(), lifecycle.PolicyFirstAccept)

	te.joinAll(t, "tank", "t1", "t2")
	te.joinAll(t, "dps", "d1", "d2", "d3")
	te.joinAll(t, "support", "s1", "s2", "s3")
	te.joinAll(t, "fill", "f1")

	snap := te.engine.SnapshotForDisplay()
	assert.Nil(t, snap.Match, "one fill short of a full lobby")

	te.joinAll(t, "fill", "f2")

	snap = te.engine.SnapshotForDisplay()
	require.NotNil(t, snap.Match)
	assert.Empty(t, snap.Queue)

	for _, team := range []string{roster.ResultTeamA, roster.ResultTeamB} {
		counts := map[queue.Role]int{}
		for _, p := range snap.Match.Team(team) {
			counts[p.AssignedRole]++
		}
		assert.Equal(t, 1, counts[queue.RoleTank], "team %s tanks", team)
		assert.Equal(t, 2, counts[queue.RoleDPS], "team %s dps", team)
		assert.Equal(t, 2, counts[queue.RoleSupport], "team %s supports", team)
	}

	// The two fills took the short DPS and support slots.
	fillRoles := map[queue.Role]int{}
	for _, id := range []string{"f1", "f2"} {
		player := snap.Match.Player(id)
		require.NotNil(t, player)
		assert.Equal(t, queue.RoleFill, player.PreferredRole)
		fillRoles[player.AssignedRole]++
	}
	assert.Equal(t, 1, fillRoles[queue.RoleDPS])
	assert.Equal(t, 1, fillRoles[queue.RoleSupport])
}

func TestCancelWithRequeue(t *testing.T) {
	te := newTestEngine(t, openConfig(4), lifecycle.PolicyFirstAccept)

	te.joinAll(t, "", "p1", "p2", "p3", "p4")
	snap := te.engine.SnapshotForDisplay()
	require.NotNil(t, snap.Match)
	matchID := snap.Match.ID

	// One participant re-enters the queue while the match runs; the later
	// requeue must not duplicate that entry.
	res, err := te.engine.OnJoin("p3", "Player p3", "")
	require.NoError(t, err)
	require.True(t, res.Accepted)

	// Raise the lobby size so the cancelled players stay visible in the
	// queue instead of instantly re-forming.
	_, err = te.engine.OnAdminCommand(AdminSetRules, AdminParams{PlayersPerMatch: 12})
	require.NoError(t, err)

	_, err = te.engine.OnAdminCommand(AdminCancel, AdminParams{AdminID: "admin-1", MatchID: matchID, Requeue: true})
	require.NoError(t, err)

	snap = te.engine.SnapshotForDisplay()
	assert.Nil(t, snap.Match)
	order := make([]string, 0, len(snap.Queue))
	for _, entry := range snap.Queue {
		order = append(order, entry.PlayerID)
	}
	assert.Equal(t, []string{"p3", "p1", "p2", "p4"}, order)

	assert.Eventually(t, func() bool {
		return len(te.notifier.SendMatchCancelledCalls) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPendingProfileFlow(t *testing.T) {
	te := newTestEngine(t, openConfig(10), lifecycle.PolicyFirstAccept)

	res, err := te.engine.OnJoin("raw-1", "Fresh Player", "")
	assert.ErrorIs(t, err, queue.ErrProfileIncomplete)
	assert.True(t, res.Accepted, "a pending entry still holds a queue slot")
	assert.True(t, res.NeedsBattleTag)
	assert.True(t, res.NeedsRank)

	snap := te.engine.SnapshotForDisplay()
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, queue.StatePendingProfile, snap.Queue[0].State)
	assert.Equal(t, 0, snap.EligibleCount)

	// Rejoining while pending does not create a second entry.
	_, err = te.engine.OnJoin("raw-1", "Fresh Player", "")
	assert.ErrorIs(t, err, queue.ErrAlreadyQueued)

	require.NoError(t, te.engine.OnProfileCaptured("raw-1", "Fresh#5678", "platinum"))

	snap = te.engine.SnapshotForDisplay()
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, queue.StateEligible, snap.Queue[0].State)
	assert.Equal(t, 2600, snap.Queue[0].MMR, "starter rating comes from the declared tier")

	player, err := te.store.GetPlayer("raw-1")
	require.NoError(t, err)
	assert.Equal(t, 2600, player.MMR)
}

func TestSeedTestPlayersAndForceVCCheck(t *testing.T) {
	te := newTestEngine(t, openConfig(4), lifecycle.PolicyFirstAccept)

	seeded, err := te.engine.OnAdminCommand(AdminSeedTest, AdminParams{AdminID: "admin-1", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, seeded)

	te.joinAll(t, "", "human-1")

	snap := te.engine.SnapshotForDisplay()
	require.NotNil(t, snap.Match)
	matchID := snap.Match.ID

	_, err = te.engine.OnAdminCommand(AdminForceVCCheck, AdminParams{AdminID: "admin-1", MatchID: matchID})
	require.NoError(t, err)

	// Presence sampling runs off the command loop; the LIVE transition
	// lands as a follow-up command.
	require.Eventually(t, func() bool {
		s := te.engine.SnapshotForDisplay()
		return s.Match != nil && s.Match.State == lifecycle.StateReporting
	}, time.Second, 10*time.Millisecond)

	snap = te.engine.SnapshotForDisplay()
	require.NotNil(t, snap.Match)
	assert.Equal(t, lifecycle.StateReporting, snap.Match.State)
	for _, p := range snap.Match.Players {
		if p.Synthetic {
			assert.True(t, p.Ready, "synthetic %s credited as ready", p.PlayerID)
		}
	}

	_, err = te.engine.OnAdminCommand(AdminForceResult, AdminParams{AdminID: "admin-1", MatchID: matchID, Outcome: roster.ResultTeamB})
	require.NoError(t, err)

	snap = te.engine.SnapshotForDisplay()
	assert.Nil(t, snap.Match)

	rec, err := te.store.GetMatch(matchID)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StateComplete), rec.State)
	assert.Equal(t, roster.ResultTeamB, rec.Result)
}

func TestLeaveIsIdempotent(t *testing.T) {
	te := newTestEngine(t, openConfig(10), lifecycle.PolicyFirstAccept)

	te.joinAll(t, "", "p1")
	assert.True(t, te.engine.OnLeave("p1"))
	assert.False(t, te.engine.OnLeave("p1"))
	assert.Equal(t, 0, len(te.engine.SnapshotForDisplay().Queue))
}

func TestDisputeOverrideEndToEnd(t *testing.T) {
	te := newTestEngine(t, openConfig(2), lifecycle.PolicyDualConfirm)

	te.joinAll(t, "", "p1", "p2")
	snap := te.engine.SnapshotForDisplay()
	require.NotNil(t, snap.Match)
	matchID := snap.Match.ID
	teamOf := map[string]string{}
	for _, p := range snap.Match.Players {
		teamOf[p.PlayerID] = p.Team
	}

	for _, id := range []string{"p1", "p2"} {
		_, err := te.engine.OnReady(matchID, id)
		require.NoError(t, err)
	}

	// Both teams claim the win: the match escalates instead of settling.
	_, err := te.engine.OnReport(matchID, teamOf["p1"], "p1", teamOf["p1"])
	require.NoError(t, err)
	event, err := te.engine.OnReport(matchID, teamOf["p2"], "p2", teamOf["p2"])
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, lifecycle.EventDisputed, event.Kind)

	assert.Eventually(t, func() bool {
		return len(te.notifier.SendEscalationCalls) == 1
	}, time.Second, 10*time.Millisecond)

	winner := teamOf["p1"]
	_, err = te.engine.OnAdminCommand(AdminForceResult, AdminParams{AdminID: "admin-1", MatchID: matchID, Outcome: winner})
	require.NoError(t, err)

	// The admin later flips the call; history and current ratings follow.
	loser := roster.ResultTeamB
	if winner == roster.ResultTeamB {
		loser = roster.ResultTeamA
	}
	_, err = te.engine.OnAdminCommand(AdminOverride, AdminParams{AdminID: "admin-1", MatchID: matchID, Outcome: loser})
	require.NoError(t, err)

	rec, err := te.store.GetMatch(matchID)
	require.NoError(t, err)
	assert.Equal(t, loser, rec.Result)

	changes, err := te.store.GetRatingChanges(matchID)
	require.NoError(t, err)
	for _, change := range changes {
		if change.Team == loser {
			assert.Positive(t, change.Delta)
		} else {
			assert.Negative(t, change.Delta)
		}
	}
}

func TestConcurrentJoinsSerialize(t *testing.T) {
	te := newTestEngine(t, openConfig(10), lifecycle.PolicyFirstAccept)

	ids := make([]string, 0, 10)
	for i := 1; i <= 10; i++ {
		id := fmt.Sprintf("p%d", i)
		ids = append(ids, id)
		te.seedProfile(t, id, "Player "+id)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := te.engine.OnJoin(id, "Player "+id, "")
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	snap := te.engine.SnapshotForDisplay()
	require.NotNil(t, snap.Match, "ten concurrent joins must still form exactly one match")
	assert.Len(t, snap.Match.Players, 10)
	assert.Empty(t, snap.Queue)
	assert.Equal(t, 1, te.metrics.MatchesFormed())

	seen := make(map[string]bool, 10)
	for _, p := range snap.Match.Players {
		assert.False(t, seen[p.PlayerID], "player %s drafted twice", p.PlayerID)
		seen[p.PlayerID] = true
	}
}

func TestAdminReliabilityIncrement(t *testing.T) {
	te := newTestEngine(t, openConfig(10), lifecycle.PolicyFirstAccept)
	te.seedProfile(t, "p1", "Player p1")

	_, err := te.engine.OnAdminCommand(AdminReliability, AdminParams{AdminID: "admin-1", PlayerID: "p1", NoShows: 1})
	require.NoError(t, err)
	_, err = te.engine.OnAdminCommand(AdminReliability, AdminParams{AdminID: "admin-1", PlayerID: "p1", Disconnects: 2})
	require.NoError(t, err)

	player, err := te.store.GetPlayer("p1")
	require.NoError(t, err)
	assert.Equal(t, 1, player.NoShowCount)
	assert.Equal(t, 2, player.DisconnectCount)

	_, err = te.engine.OnAdminCommand(AdminReliability, AdminParams{AdminID: "admin-1", PlayerID: "p1"})
	assert.Error(t, err, "an empty increment is rejected")
}

func TestSnapshotDetachedFromLiveMatch(t *testing.T) {
	te := newTestEngine(t, openConfig(2), lifecycle.PolicyFirstAccept)

	te.joinAll(t, "", "p1", "p2")
	before := te.engine.SnapshotForDisplay()
	require.NotNil(t, before.Match)
	require.False(t, before.Match.Player("p1").Ready)

	_, err := te.engine.OnReady(before.Match.ID, "p1")
	require.NoError(t, err)

	// The earlier snapshot is a detached copy and never sees later
	// mutations of the live roster.
	assert.False(t, before.Match.Player("p1").Ready)

	after := te.engine.SnapshotForDisplay()
	require.NotNil(t, after.Match)
	assert.True(t, after.Match.Player("p1").Ready)
}

func TestRestartRestoresQueueAndMatch(t *testing.T) {
	db, teardown, err := database.InitDB(":memory:", "", "", "../../migrations")
	require.NoError(t, err)
	t.Cleanup(teardown)

	first := startEngine(t, db, openConfig(4), lifecycle.PolicyDualConfirm)
	first.joinAll(t, "", "p1", "p2", "p3", "p4")

	snap := first.engine.SnapshotForDisplay()
	require.NotNil(t, snap.Match)
	matchID := snap.Match.ID

	// A fifth player waits in the queue while the match runs.
	first.joinAll(t, "", "p5")

	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		_, err := first.engine.OnReady(matchID, id)
		require.NoError(t, err)
	}
	snap = first.engine.SnapshotForDisplay()
	require.Equal(t, lifecycle.StateReporting, snap.Match.State)

	var teamA string
	for _, p := range snap.Match.Players {
		if p.Team == roster.ResultTeamA {
			teamA = p.PlayerID
			break
		}
	}
	event, err := first.engine.OnReport(matchID, roster.ResultTeamA, teamA, roster.ResultTeamA)
	require.NoError(t, err)
	require.Nil(t, event, "a lone report under dual confirmation stays pending")

	first.stop()

	second := startEngine(t, db, openConfig(4), lifecycle.PolicyDualConfirm)
	snap = second.engine.SnapshotForDisplay()
	require.NotNil(t, snap.Match, "the in-flight match survives a restart")
	assert.Equal(t, matchID, snap.Match.ID)
	assert.Equal(t, lifecycle.StateReporting, snap.Match.State)
	assert.Len(t, snap.Match.Players, 4)
	require.Len(t, snap.Match.Reports, 1)
	assert.Equal(t, roster.ResultTeamA, snap.Match.Reports[0].Outcome)
	require.Len(t, snap.Queue, 1, "the waiting player survives a restart")
	assert.Equal(t, "p5", snap.Queue[0].PlayerID)

	var teamB string
	for _, p := range snap.Match.Players {
		if p.Team == roster.ResultTeamB {
			teamB = p.PlayerID
			break
		}
	}
	event, err = second.engine.OnReport(matchID, roster.ResultTeamB, teamB, roster.ResultTeamA)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, lifecycle.EventSettled, event.Kind)

	rec, err := second.store.GetMatch(matchID)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StateComplete), rec.State)
	assert.Equal(t, roster.ResultTeamA, rec.Result)
}

func TestRestartAfterSettlementStartsClean(t *testing.T) {
	db, teardown, err := database.InitDB(":memory:", "", "", "../../migrations")
	require.NoError(t, err)
	t.Cleanup(teardown)

	first := startEngine(t, db, openConfig(2), lifecycle.PolicyFirstAccept)
	first.joinAll(t, "", "p1", "p2")
	snap := first.engine.SnapshotForDisplay()
	require.NotNil(t, snap.Match)
	matchID := snap.Match.ID

	for _, id := range []string{"p1", "p2"} {
		_, err := first.engine.OnReady(matchID, id)
		require.NoError(t, err)
	}
	reporter := snap.Match.Team(roster.ResultTeamA)[0].PlayerID
	_, err = first.engine.OnReport(matchID, roster.ResultTeamA, reporter, roster.ResultTeamA)
	require.NoError(t, err)
	first.stop()

	second := startEngine(t, db, openConfig(2), lifecycle.PolicyFirstAccept)
	snap = second.engine.SnapshotForDisplay()
	assert.Nil(t, snap.Match, "a settled match is not resurrected")
	assert.Empty(t, snap.Queue)
}

func TestForceVCCheckDoesNotBlockCommands(t *testing.T) {
	te := newTestEngine(t, openConfig(4), lifecycle.PolicyFirstAccept)

	te.joinAll(t, "", "p1", "p2", "p3", "p4")
	snap := te.engine.SnapshotForDisplay()
	require.NotNil(t, snap.Match)
	matchID := snap.Match.ID

	release := make(chan struct{})
	te.mover.IsConnectedFunc = func(ctx context.Context, playerID, channelID string) (bool, error) {
		<-release
		return true, nil
	}

	_, err := te.engine.OnAdminCommand(AdminForceVCCheck, AdminParams{AdminID: "admin-1", MatchID: matchID})
	require.NoError(t, err)

	// The command loop keeps serving while presence sampling is stuck.
	joined := make(chan struct{})
	go func() {
		te.engine.OnJoin("p5", "Player p5", "")
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("join stalled behind voice presence sampling")
	}
	close(release)

	require.Eventually(t, func() bool {
		s := te.engine.SnapshotForDisplay()
		return s.Match != nil && s.Match.State == lifecycle.StateReporting
	}, 2*time.Second, 10*time.Millisecond)
}
