package lifecycle

import (
	"testing"
	"time"

	"github.com/scrimlab/overqueue/internal/formation"
	"github.com/scrimlab/overqueue/internal/queue"
	"github.com/scrimlab/overqueue/internal/rating"
	"github.com/scrimlab/overqueue/internal/roster"
	"github.com/scrimlab/overqueue/internal/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(policy ReportPolicy) (*Controller, *roster.MockStore) {
	store := roster.NewMock()
	c := New(store, rating.DefaultParams(), policy, []string{"Ilios", "Oasis"}, "community-1")
	c.randFn = func(n int) int { return 0 }
	c.nowFn = func() time.Time { return time.Unix(1700000000, 0) }

	// Players are past calibration unless a test overrides this.
	store.GetPlayersFunc = func(playerIDs []string) ([]roster.PlayerInfo, error) {
		out := make([]roster.PlayerInfo, 0, len(playerIDs))
		for _, id := range playerIDs {
			out = append(out, roster.PlayerInfo{ID: id, CompletedMatches: 10, MMR: 2500})
		}
		return out, nil
	}
	return c, store
}

func twoPlayerDraft() *formation.Result {
	return &formation.Result{
		TeamA: []formation.Assigned{{PlayerID: "p1", Name: "One", MMR: 2500, PreferredRole: queue.RoleOpen, AssignedRole: queue.RoleOpen}},
		TeamB: []formation.Assigned{{PlayerID: "p2", Name: "Two", MMR: 2500, PreferredRole: queue.RoleOpen, AssignedRole: queue.RoleOpen}},
	}
}

func startedMatch(t *testing.T, c *Controller) *Match {
	t.Helper()
	event, err := c.StartMatch(twoPlayerDraft(), "open", nil)
	require.NoError(t, err)
	require.NotNil(t, event)
	return c.Active()
}

func TestStartMatch(t *testing.T) {
	t.Run("claims the active slot and enters ready check", func(t *testing.T) {
		c, store := newTestController(PolicyFirstAccept)

		event, err := c.StartMatch(twoPlayerDraft(), "open", nil)
		require.NoError(t, err)
		assert.Equal(t, EventReadyCheck, event.Kind)
		assert.Equal(t, StateReadyCheck, c.Active().State)
		assert.Equal(t, int64(1), c.Active().Seq)

		require.Len(t, store.SaveMatchCalls, 1)
		rec := store.SaveMatchCalls[0]
		assert.Equal(t, "community-1", rec.CommunityID)
		require.Len(t, rec.Teams, 2)
		assert.Equal(t, "p1", rec.Teams[0].Players[0].PlayerID)
		assert.Equal(t, "p2", rec.Teams[1].Players[0].PlayerID)
	})

	t.Run("rejects a second match while one is active", func(t *testing.T) {
		c, _ := newTestController(PolicyFirstAccept)
		startedMatch(t, c)

		_, err := c.StartMatch(twoPlayerDraft(), "open", nil)
		assert.ErrorIs(t, err, ErrMatchAlreadyActive)
	})
}

func TestMarkReady(t *testing.T) {
	t.Run("goes live once everyone is ready", func(t *testing.T) {
		c, store := newTestController(PolicyFirstAccept)
		match := startedMatch(t, c)

		event, err := c.MarkReady(match.ID, "p1")
		require.NoError(t, err)
		assert.Nil(t, event)

		event, err = c.MarkReady(match.ID, "p2")
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, EventLive, event.Kind)
		assert.Equal(t, StateReporting, c.Active().State)
		assert.Equal(t, "Ilios", c.Active().MapName)

		last := store.UpdateMatchStateCalls[len(store.UpdateMatchStateCalls)-1]
		assert.Equal(t, string(StateReporting), last.State)
		assert.Equal(t, "Ilios", last.MapName)
	})

	t.Run("ignores signals for a stale match id", func(t *testing.T) {
		c, _ := newTestController(PolicyFirstAccept)
		startedMatch(t, c)

		event, err := c.MarkReady("some-old-match", "p1")
		assert.NoError(t, err)
		assert.Nil(t, event)
	})

	t.Run("rejects non-participants", func(t *testing.T) {
		c, _ := newTestController(PolicyFirstAccept)
		match := startedMatch(t, c)

		_, err := c.MarkReady(match.ID, "stranger")
		assert.ErrorIs(t, err, ErrNotParticipant)
	})
}

func TestForceLive(t *testing.T) {
	c, _ := newTestController(PolicyFirstAccept)
	_, err := c.StartMatch(twoPlayerDraft(), "open", map[string]bool{"p2": true})
	require.NoError(t, err)
	match := c.Active()

	event, err := c.ForceLive(match.ID, true)
	require.NoError(t, err)
	assert.Equal(t, EventLive, event.Kind)
	assert.Equal(t, StateReporting, c.Active().State)
	assert.False(t, c.Active().Player("p1").Ready)
	assert.True(t, c.Active().Player("p2").Ready)
}

func goLiveBoth(t *testing.T, c *Controller, match *Match) {
	t.Helper()
	_, err := c.MarkReady(match.ID, "p1")
	require.NoError(t, err)
	_, err = c.MarkReady(match.ID, "p2")
	require.NoError(t, err)
}

func TestReportFirstAccept(t *testing.T) {
	t.Run("first valid report settles immediately", func(t *testing.T) {
		c, store := newTestController(PolicyFirstAccept)
		match := startedMatch(t, c)
		goLiveBoth(t, c, match)

		event, err := c.Report(match.ID, roster.ResultTeamA, "p1", roster.ResultTeamA)
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, EventSettled, event.Kind)
		assert.Nil(t, c.Active())

		require.Len(t, store.ApplySettlementCalls, 1)
		call := store.ApplySettlementCalls[0]
		assert.Equal(t, roster.ResultTeamA, call.Result)
		assert.Equal(t, "p1", call.ReporterID)
		require.Len(t, call.Changes, 2)

		// Equal 2500 snapshots: expected score 0.5, K=24.
		assert.Equal(t, 12, call.Changes[0].Delta)
		assert.Equal(t, 2512, call.Changes[0].MMRAfter)
		assert.Equal(t, -12, call.Changes[1].Delta)
		assert.Equal(t, 2488, call.Changes[1].MMRAfter)
	})

	t.Run("report against a completed match fails with AlreadySettled", func(t *testing.T) {
		c, store := newTestController(PolicyFirstAccept)
		store.GetMatchFunc = func(matchID string) (*roster.MatchRecord, error) {
			return &roster.MatchRecord{ID: matchID, State: string(StateComplete)}, nil
		}

		_, err := c.Report("finished-match", roster.ResultTeamA, "p1", roster.ResultTeamA)
		assert.ErrorIs(t, err, roster.ErrAlreadySettled)
	})

	t.Run("report against an unknown match is a no-op", func(t *testing.T) {
		c, _ := newTestController(PolicyFirstAccept)

		event, err := c.Report("never-existed", roster.ResultTeamA, "p1", roster.ResultTeamA)
		assert.NoError(t, err)
		assert.Nil(t, event)
	})

	t.Run("rejects a reporter claiming the wrong team", func(t *testing.T) {
		c, _ := newTestController(PolicyFirstAccept)
		match := startedMatch(t, c)
		goLiveBoth(t, c, match)

		_, err := c.Report(match.ID, roster.ResultTeamA, "p2", roster.ResultTeamA)
		assert.ErrorIs(t, err, ErrNotParticipant)
	})
}

func TestReportDualConfirm(t *testing.T) {
	t.Run("agreeing reports settle with the first reporter credited", func(t *testing.T) {
		c, store := newTestController(PolicyDualConfirm)
		match := startedMatch(t, c)
		goLiveBoth(t, c, match)

		event, err := c.Report(match.ID, roster.ResultTeamA, "p1", roster.ResultTeamB)
		require.NoError(t, err)
		assert.Nil(t, event)

		event, err = c.Report(match.ID, roster.ResultTeamB, "p2", roster.ResultTeamB)
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, EventSettled, event.Kind)
		assert.Equal(t, "p1", store.ApplySettlementCalls[0].ReporterID)
	})

	t.Run("second report from the same team is ignored", func(t *testing.T) {
		c, store := newTestController(PolicyDualConfirm)
		match := startedMatch(t, c)
		goLiveBoth(t, c, match)

		_, err := c.Report(match.ID, roster.ResultTeamA, "p1", roster.ResultTeamA)
		require.NoError(t, err)
		event, err := c.Report(match.ID, roster.ResultTeamA, "p1", roster.ResultTeamB)
		require.NoError(t, err)
		assert.Nil(t, event)
		assert.Empty(t, store.ApplySettlementCalls)
	})

	t.Run("disagreeing reports escalate and block ordinary reports", func(t *testing.T) {
		c, store := newTestController(PolicyDualConfirm)
		match := startedMatch(t, c)
		goLiveBoth(t, c, match)

		_, err := c.Report(match.ID, roster.ResultTeamA, "p1", roster.ResultTeamA)
		require.NoError(t, err)
		event, err := c.Report(match.ID, roster.ResultTeamB, "p2", roster.ResultTeamB)
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, EventDisputed, event.Kind)
		assert.Equal(t, StateDisputed, c.Active().State)
		require.Len(t, store.SetMatchEscalatedCalls, 1)
		assert.True(t, store.SetMatchEscalatedCalls[0].Escalated)

		_, err = c.Report(match.ID, roster.ResultTeamA, "p1", roster.ResultTeamA)
		assert.Error(t, err)
		assert.Empty(t, store.ApplySettlementCalls)
	})

	t.Run("admin force-result resolves a dispute", func(t *testing.T) {
		c, store := newTestController(PolicyDualConfirm)
		match := startedMatch(t, c)
		goLiveBoth(t, c, match)

		_, err := c.Report(match.ID, roster.ResultTeamA, "p1", roster.ResultTeamA)
		require.NoError(t, err)
		_, err = c.Report(match.ID, roster.ResultTeamB, "p2", roster.ResultTeamB)
		require.NoError(t, err)

		event, err := c.ForceResult(match.ID, "admin-1", roster.ResultTeamB)
		require.NoError(t, err)
		assert.Equal(t, EventSettled, event.Kind)
		assert.Nil(t, c.Active())
		assert.Equal(t, "admin-1", store.ApplySettlementCalls[0].ReporterID)
	})
}

func TestSettleCalibration(t *testing.T) {
	c, store := newTestController(PolicyFirstAccept)
	store.GetPlayersFunc = func(playerIDs []string) ([]roster.PlayerInfo, error) {
		out := make([]roster.PlayerInfo, 0, len(playerIDs))
		for _, id := range playerIDs {
			completed := 10
			if id == "p1" {
				completed = 0
			}
			out = append(out, roster.PlayerInfo{ID: id, CompletedMatches: completed, MMR: 2500})
		}
		return out, nil
	}
	match := startedMatch(t, c)
	goLiveBoth(t, c, match)

	_, err := c.Report(match.ID, roster.ResultTeamA, "p1", roster.ResultTeamA)
	require.NoError(t, err)

	changes := store.ApplySettlementCalls[0].Changes
	require.Len(t, changes, 2)
	assert.True(t, changes[0].Calibration)
	assert.Equal(t, 24, changes[0].Delta)
	assert.False(t, changes[1].Calibration)
	assert.Equal(t, -12, changes[1].Delta)
}

func TestCancel(t *testing.T) {
	c, store := newTestController(PolicyFirstAccept)
	match := startedMatch(t, c)

	event, err := c.Cancel(match.ID)
	require.NoError(t, err)
	assert.Equal(t, EventCancelled, event.Kind)
	assert.Equal(t, StateCancelled, event.Match.State)
	assert.Nil(t, c.Active())

	last := store.UpdateMatchStateCalls[len(store.UpdateMatchStateCalls)-1]
	assert.Equal(t, string(StateCancelled), last.State)

	_, err = c.Cancel(match.ID)
	assert.ErrorIs(t, err, ErrNoActiveMatch)
}

func TestRerollMap(t *testing.T) {
	c, _ := newTestController(PolicyFirstAccept)
	match := startedMatch(t, c)
	goLiveBoth(t, c, match)
	require.Equal(t, "Ilios", c.Active().MapName)

	event, err := c.RerollMap(match.ID)
	require.NoError(t, err)
	assert.Equal(t, EventMapReroll, event.Kind)
	assert.Equal(t, "Oasis", c.Active().MapName)
}

func TestSetVCStatus(t *testing.T) {
	c, _ := newTestController(PolicyFirstAccept)
	match := startedMatch(t, c)

	c.SetVCStatus(match.ID, "p1", voice.StatusInVC)
	assert.Equal(t, voice.StatusInVC, c.Active().Player("p1").VC)

	// Stale match id must never touch state.
	c.SetVCStatus("old-match", "p1", voice.StatusDisconnected)
	assert.Equal(t, voice.StatusInVC, c.Active().Player("p1").VC)
}

func TestSettleReliabilityCounters(t *testing.T) {
	c, store := newTestController(PolicyFirstAccept)
	match := startedMatch(t, c)
	goLiveBoth(t, c, match)

	c.SetVCStatus(match.ID, "p1", voice.StatusInVC)
	c.SetVCStatus(match.ID, "p2", voice.StatusDisconnected)

	_, err := c.Report(match.ID, roster.ResultTeamA, "p1", roster.ResultTeamA)
	require.NoError(t, err)

	require.Len(t, store.IncrementReliabilityCalls, 1)
	call := store.IncrementReliabilityCalls[0]
	assert.Equal(t, "p2", call.PlayerID)
	assert.Equal(t, 0, call.NoShows)
	assert.Equal(t, 1, call.Disconnects)
}

func TestOverrideResult(t *testing.T) {
	setup := func(store *roster.MockStore) {
		store.GetMatchFunc = func(matchID string) (*roster.MatchRecord, error) {
			return &roster.MatchRecord{ID: matchID, State: string(StateComplete), Result: roster.ResultTeamA}, nil
		}
		store.GetRatingChangesFunc = func(matchID string) ([]roster.RatingChange, error) {
			return []roster.RatingChange{
				{MatchID: matchID, PlayerID: "p1", Team: roster.ResultTeamA, MMRBefore: 2500, Delta: 12, MMRAfter: 2512},
				{MatchID: matchID, PlayerID: "p2", Team: roster.ResultTeamB, MMRBefore: 2500, Delta: -12, MMRAfter: 2488},
			}, nil
		}
		store.GetPlayersFunc = func(playerIDs []string) ([]roster.PlayerInfo, error) {
			return []roster.PlayerInfo{
				{ID: "p1", MMR: 2512},
				{ID: "p2", MMR: 2488},
			}, nil
		}
	}

	t.Run("flipping the winner corrects history and current ratings", func(t *testing.T) {
		c, store := newTestController(PolicyFirstAccept)
		setup(store)

		rewritten, err := c.OverrideResult("m1", roster.ResultTeamB)
		require.NoError(t, err)
		require.Len(t, rewritten, 2)
		assert.Equal(t, -12, rewritten[0].Delta)
		assert.Equal(t, 2488, rewritten[0].MMRAfter)
		assert.Equal(t, 12, rewritten[1].Delta)
		assert.Equal(t, 2512, rewritten[1].MMRAfter)

		require.Len(t, store.ApplyOverrideCalls, 1)
		call := store.ApplyOverrideCalls[0]
		assert.Equal(t, roster.ResultTeamA, call.PrevResult)
		assert.Equal(t, roster.ResultTeamB, call.Result)
		assert.Equal(t, 2488, call.Overrides[0].PlayerMMR)
		assert.Equal(t, 2512, call.Overrides[1].PlayerMMR)
	})

	t.Run("same result is rejected", func(t *testing.T) {
		c, store := newTestController(PolicyFirstAccept)
		setup(store)

		_, err := c.OverrideResult("m1", roster.ResultTeamA)
		assert.ErrorIs(t, err, ErrInvalidOverride)
	})

	t.Run("only completed matches can be overridden", func(t *testing.T) {
		c, store := newTestController(PolicyFirstAccept)
		setup(store)
		store.GetMatchFunc = func(matchID string) (*roster.MatchRecord, error) {
			return &roster.MatchRecord{ID: matchID, State: string(StateReporting)}, nil
		}

		_, err := c.OverrideResult("m1", roster.ResultTeamB)
		assert.ErrorIs(t, err, ErrInvalidOverride)
	})
}

func TestEventCarriesDetachedRoster(t *testing.T) {
	c, _ := newTestController(PolicyFirstAccept)
	event, err := c.StartMatch(twoPlayerDraft(), "open", nil)
	require.NoError(t, err)

	_, err = c.MarkReady(event.Match.ID, "p1")
	require.NoError(t, err)

	// The emitted event holds its own roster copy; later transitions on
	// the live match never bleed into it.
	assert.False(t, event.Match.Player("p1").Ready)
	assert.True(t, c.Active().Player("p1").Ready)
}

func TestReadinessAndReportsPersisted(t *testing.T) {
	c, store := newTestController(PolicyDualConfirm)
	match := startedMatch(t, c)

	_, err := c.MarkReady(match.ID, "p1")
	require.NoError(t, err)
	_, err = c.MarkReady(match.ID, "p1")
	require.NoError(t, err)
	require.Len(t, store.MarkMatchReadyCalls, 1, "a repeated signal is not re-written")
	assert.Equal(t, match.ID, store.MarkMatchReadyCalls[0].MatchID)
	assert.Equal(t, "p1", store.MarkMatchReadyCalls[0].PlayerID)

	_, err = c.MarkReady(match.ID, "p2")
	require.NoError(t, err)

	_, err = c.Report(match.ID, roster.ResultTeamA, "p1", roster.ResultTeamA)
	require.NoError(t, err)
	require.Len(t, store.SaveMatchReportCalls, 1)
	rec := store.SaveMatchReportCalls[0]
	assert.Equal(t, match.ID, rec.MatchID)
	assert.Equal(t, roster.ResultTeamA, rec.Team)
	assert.Equal(t, "p1", rec.ReporterID)
	assert.Equal(t, roster.ResultTeamA, rec.Outcome)

	_, err = c.Report(match.ID, roster.ResultTeamB, "p2", roster.ResultTeamA)
	require.NoError(t, err)
	require.Len(t, store.ClearMatchRuntimeCalls, 1, "settlement drops the runtime rows")
	assert.Equal(t, match.ID, store.ClearMatchRuntimeCalls[0])
}

func TestCancelClearsRuntimeRows(t *testing.T) {
	c, store := newTestController(PolicyFirstAccept)
	match := startedMatch(t, c)

	_, err := c.Cancel(match.ID)
	require.NoError(t, err)
	require.Len(t, store.ClearMatchRuntimeCalls, 1)
	assert.Equal(t, match.ID, store.ClearMatchRuntimeCalls[0])
}

func TestRestore(t *testing.T) {
	rec := &roster.MatchRecord{
		ID:      "m1",
		Seq:     7,
		Mode:    "open",
		State:   string(StateReporting),
		MapName: "Oasis",
		Teams: []roster.TeamRecord{
			{Name: roster.ResultTeamA, Players: []roster.TeamPlayer{{PlayerID: "p1", Name: "One", MMRSnapshot: 2500, PreferredRole: "open", AssignedRole: "open"}}},
			{Name: roster.ResultTeamB, Players: []roster.TeamPlayer{{PlayerID: "p2", Name: "Two", MMRSnapshot: 2600, PreferredRole: "open", AssignedRole: "open"}}},
		},
		CreatedAt: 1700000000,
	}

	t.Run("rebuilds the active match from its rows", func(t *testing.T) {
		c, store := newTestController(PolicyDualConfirm)
		reports := []roster.ReportRecord{{MatchID: "m1", Team: roster.ResultTeamA, ReporterID: "p1", Outcome: roster.ResultTeamA, CreatedAt: 1700000100}}
		require.NoError(t, c.Restore(rec, []string{"p1"}, reports))

		active := c.Active()
		require.NotNil(t, active)
		assert.Equal(t, int64(7), active.Seq)
		assert.Equal(t, StateReporting, active.State)
		assert.Equal(t, "Oasis", active.MapName)
		require.Len(t, active.Players, 2)
		assert.True(t, active.Player("p1").Ready)
		assert.False(t, active.Player("p2").Ready)
		assert.Equal(t, 2600, active.Player("p2").MMRSnapshot)
		require.Len(t, active.Reports, 1)

		assert.ErrorIs(t, c.Restore(rec, nil, nil), ErrMatchAlreadyActive)

		// The replayed claim still counts toward dual confirmation.
		event, err := c.Report("m1", roster.ResultTeamB, "p2", roster.ResultTeamA)
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, EventSettled, event.Kind)
		assert.Equal(t, "p1", store.ApplySettlementCalls[0].ReporterID)
	})

	t.Run("a match caught mid-forming resumes in ready check", func(t *testing.T) {
		c, _ := newTestController(PolicyFirstAccept)
		forming := *rec
		forming.State = string(StateForming)
		forming.MapName = ""
		require.NoError(t, c.Restore(&forming, nil, nil))
		assert.Equal(t, StateReadyCheck, c.Active().State)
	})
}

func TestForceResultRejectsUnknownOutcome(t *testing.T) {
	c, store := newTestController(PolicyFirstAccept)
	match := startedMatch(t, c)
	goLiveBoth(t, c, match)

	_, err := c.ForceResult(match.ID, "admin-1", "team_c")
	assert.ErrorIs(t, err, ErrInvalidOverride)
	assert.Empty(t, store.ApplySettlementCalls)
}

func TestTeamSnapshotAverageRounds(t *testing.T) {
	team := []MatchPlayer{{MMRSnapshot: 2500}, {MMRSnapshot: 2501}, {MMRSnapshot: 2501}}
	assert.Equal(t, 2501, teamSnapshotAverage(team))

	// Settlement and override recomputation must agree on the average.
	snaps := []int{2500, 2501, 2501}
	assert.Equal(t, rating.DefaultParams().TeamAverage(snaps), teamSnapshotAverage(team))

	assert.Equal(t, 0, teamSnapshotAverage(nil))
}
