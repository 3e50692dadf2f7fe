package roster

import (
	"sync"
)

// MockStore is a mock implementation of the Store interface for testing.
// It is safe for concurrent use.
type MockStore struct {
	mu sync.Mutex

	// Spies for method calls
	EnsurePlayerFunc          func(playerID, name string, seedMMR int) (PlayerInfo, error)
	GetPlayerFunc             func(playerID string) (*PlayerInfo, error)
	GetPlayersFunc            func(playerIDs []string) ([]PlayerInfo, error)
	SetProfileFunc            func(playerID string, battleTag, rankTier *string) error
	SetMMRFunc                func(playerID string, mmr int) error
	IncrementReliabilityFunc  func(playerID string, noShows, disconnects int) error
	SaveMatchFunc             func(rec *MatchRecord) error
	UpdateMatchStateFunc      func(matchID, state, mapName string) error
	SetMatchEscalatedFunc     func(matchID string, escalated bool) error
	GetMatchFunc              func(matchID string) (*MatchRecord, error)
	GetActiveMatchFunc        func() (*MatchRecord, error)
	ListRecentMatchesFunc     func(limit int) ([]MatchRecord, error)
	SaveQueueEntryFunc        func(rec QueueEntryRecord) error
	RemoveQueueEntriesFunc    func(playerIDs []string) error
	ClearQueueEntriesFunc     func() error
	ListQueueEntriesFunc      func() ([]QueueEntryRecord, error)
	MarkMatchReadyFunc        func(matchID, playerID string) error
	ListMatchReadyFunc        func(matchID string) ([]string, error)
	SaveMatchReportFunc       func(rec ReportRecord) error
	ListMatchReportsFunc      func(matchID string) ([]ReportRecord, error)
	ClearMatchRuntimeFunc     func(matchID string) error
	ApplySettlementFunc       func(matchID, result, reporterID string, changes []RatingChange) error
	ApplyOverrideFunc         func(matchID, prevResult, result string, overrides []Override) error
	GetRatingChangesFunc      func(matchID string) ([]RatingChange, error)
	ListPlayerHistoryFunc     func(playerID string, limit int) ([]PlayerMatchEntry, error)
	LeaderboardFunc           func(limit int) ([]LeaderboardRow, error)

	// Call records
	EnsurePlayerCalls []struct {
		PlayerID string
		Name     string
		SeedMMR  int
	}
	SetProfileCalls []struct {
		PlayerID  string
		BattleTag *string
		RankTier  *string
	}
	SetMMRCalls []struct {
		PlayerID string
		MMR      int
	}
	SaveMatchCalls        []*MatchRecord
	UpdateMatchStateCalls []struct {
		MatchID string
		State   string
		MapName string
	}
	SetMatchEscalatedCalls []struct {
		MatchID   string
		Escalated bool
	}
	ApplySettlementCalls []struct {
		MatchID    string
		Result     string
		ReporterID string
		Changes    []RatingChange
	}
	ApplyOverrideCalls []struct {
		MatchID    string
		PrevResult string
		Result     string
		Overrides  []Override
	}
	IncrementReliabilityCalls []struct {
		PlayerID    string
		NoShows     int
		Disconnects int
	}
	SaveQueueEntryCalls     []QueueEntryRecord
	RemoveQueueEntriesCalls [][]string
	ClearQueueEntriesCalls  int
	MarkMatchReadyCalls     []struct {
		MatchID  string
		PlayerID string
	}
	SaveMatchReportCalls   []ReportRecord
	ClearMatchRuntimeCalls []string
	ClearCalls             int
}

// NewMock creates a new mock instance.
func NewMock() *MockStore {
	return &MockStore{}
}

// Reset clears all call records.
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnsurePlayerCalls = nil
	m.SetProfileCalls = nil
	m.SetMMRCalls = nil
	m.SaveMatchCalls = nil
	m.UpdateMatchStateCalls = nil
	m.SetMatchEscalatedCalls = nil
	m.ApplySettlementCalls = nil
	m.ApplyOverrideCalls = nil
	m.IncrementReliabilityCalls = nil
	m.SaveQueueEntryCalls = nil
	m.RemoveQueueEntriesCalls = nil
	m.ClearQueueEntriesCalls = 0
	m.MarkMatchReadyCalls = nil
	m.SaveMatchReportCalls = nil
	m.ClearMatchRuntimeCalls = nil
	m.ClearCalls = 0
}

func (m *MockStore) EnsurePlayer(playerID, name string, seedMMR int) (PlayerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnsurePlayerCalls = append(m.EnsurePlayerCalls, struct {
		PlayerID string
		Name     string
		SeedMMR  int
	}{playerID, name, seedMMR})
	if m.EnsurePlayerFunc != nil {
		return m.EnsurePlayerFunc(playerID, name, seedMMR)
	}
	return PlayerInfo{ID: playerID, Name: name, MMR: seedMMR}, nil
}

func (m *MockStore) GetPlayer(playerID string) (*PlayerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetPlayerFunc != nil {
		return m.GetPlayerFunc(playerID)
	}
	return nil, nil
}

func (m *MockStore) GetPlayers(playerIDs []string) ([]PlayerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetPlayersFunc != nil {
		return m.GetPlayersFunc(playerIDs)
	}
	return nil, nil
}

func (m *MockStore) SetProfile(playerID string, battleTag, rankTier *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetProfileCalls = append(m.SetProfileCalls, struct {
		PlayerID  string
		BattleTag *string
		RankTier  *string
	}{playerID, battleTag, rankTier})
	if m.SetProfileFunc != nil {
		return m.SetProfileFunc(playerID, battleTag, rankTier)
	}
	return nil
}

func (m *MockStore) SetMMR(playerID string, mmr int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetMMRCalls = append(m.SetMMRCalls, struct {
		PlayerID string
		MMR      int
	}{playerID, mmr})
	if m.SetMMRFunc != nil {
		return m.SetMMRFunc(playerID, mmr)
	}
	return nil
}

func (m *MockStore) IncrementReliability(playerID string, noShows, disconnects int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IncrementReliabilityCalls = append(m.IncrementReliabilityCalls, struct {
		PlayerID    string
		NoShows     int
		Disconnects int
	}{playerID, noShows, disconnects})
	if m.IncrementReliabilityFunc != nil {
		return m.IncrementReliabilityFunc(playerID, noShows, disconnects)
	}
	return nil
}

func (m *MockStore) SaveMatch(rec *MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveMatchCalls = append(m.SaveMatchCalls, rec)
	if m.SaveMatchFunc != nil {
		return m.SaveMatchFunc(rec)
	}
	rec.Seq = int64(len(m.SaveMatchCalls))
	return nil
}

func (m *MockStore) UpdateMatchState(matchID, state, mapName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateMatchStateCalls = append(m.UpdateMatchStateCalls, struct {
		MatchID string
		State   string
		MapName string
	}{matchID, state, mapName})
	if m.UpdateMatchStateFunc != nil {
		return m.UpdateMatchStateFunc(matchID, state, mapName)
	}
	return nil
}

func (m *MockStore) SetMatchEscalated(matchID string, escalated bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetMatchEscalatedCalls = append(m.SetMatchEscalatedCalls, struct {
		MatchID   string
		Escalated bool
	}{matchID, escalated})
	if m.SetMatchEscalatedFunc != nil {
		return m.SetMatchEscalatedFunc(matchID, escalated)
	}
	return nil
}

func (m *MockStore) GetMatch(matchID string) (*MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetMatchFunc != nil {
		return m.GetMatchFunc(matchID)
	}
	return nil, nil
}

func (m *MockStore) GetActiveMatch() (*MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetActiveMatchFunc != nil {
		return m.GetActiveMatchFunc()
	}
	return nil, nil
}

func (m *MockStore) SaveQueueEntry(rec QueueEntryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveQueueEntryCalls = append(m.SaveQueueEntryCalls, rec)
	if m.SaveQueueEntryFunc != nil {
		return m.SaveQueueEntryFunc(rec)
	}
	return nil
}

func (m *MockStore) RemoveQueueEntries(playerIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveQueueEntriesCalls = append(m.RemoveQueueEntriesCalls, playerIDs)
	if m.RemoveQueueEntriesFunc != nil {
		return m.RemoveQueueEntriesFunc(playerIDs)
	}
	return nil
}

func (m *MockStore) ClearQueueEntries() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearQueueEntriesCalls++
	if m.ClearQueueEntriesFunc != nil {
		return m.ClearQueueEntriesFunc()
	}
	return nil
}

func (m *MockStore) ListQueueEntries() ([]QueueEntryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListQueueEntriesFunc != nil {
		return m.ListQueueEntriesFunc()
	}
	return nil, nil
}

func (m *MockStore) MarkMatchReady(matchID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkMatchReadyCalls = append(m.MarkMatchReadyCalls, struct {
		MatchID  string
		PlayerID string
	}{matchID, playerID})
	if m.MarkMatchReadyFunc != nil {
		return m.MarkMatchReadyFunc(matchID, playerID)
	}
	return nil
}

func (m *MockStore) ListMatchReady(matchID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListMatchReadyFunc != nil {
		return m.ListMatchReadyFunc(matchID)
	}
	return nil, nil
}

func (m *MockStore) SaveMatchReport(rec ReportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveMatchReportCalls = append(m.SaveMatchReportCalls, rec)
	if m.SaveMatchReportFunc != nil {
		return m.SaveMatchReportFunc(rec)
	}
	return nil
}

func (m *MockStore) ListMatchReports(matchID string) ([]ReportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListMatchReportsFunc != nil {
		return m.ListMatchReportsFunc(matchID)
	}
	return nil, nil
}

func (m *MockStore) ClearMatchRuntime(matchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearMatchRuntimeCalls = append(m.ClearMatchRuntimeCalls, matchID)
	if m.ClearMatchRuntimeFunc != nil {
		return m.ClearMatchRuntimeFunc(matchID)
	}
	return nil
}

func (m *MockStore) ListRecentMatches(limit int) ([]MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListRecentMatchesFunc != nil {
		return m.ListRecentMatchesFunc(limit)
	}
	return nil, nil
}

func (m *MockStore) ApplySettlement(matchID, result, reporterID string, changes []RatingChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplySettlementCalls = append(m.ApplySettlementCalls, struct {
		MatchID    string
		Result     string
		ReporterID string
		Changes    []RatingChange
	}{matchID, result, reporterID, changes})
	if m.ApplySettlementFunc != nil {
		return m.ApplySettlementFunc(matchID, result, reporterID, changes)
	}
	return nil
}

func (m *MockStore) ApplyOverride(matchID, prevResult, result string, overrides []Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplyOverrideCalls = append(m.ApplyOverrideCalls, struct {
		MatchID    string
		PrevResult string
		Result     string
		Overrides  []Override
	}{matchID, prevResult, result, overrides})
	if m.ApplyOverrideFunc != nil {
		return m.ApplyOverrideFunc(matchID, prevResult, result, overrides)
	}
	return nil
}

func (m *MockStore) GetRatingChanges(matchID string) ([]RatingChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetRatingChangesFunc != nil {
		return m.GetRatingChangesFunc(matchID)
	}
	return nil, nil
}

func (m *MockStore) ListPlayerHistory(playerID string, limit int) ([]PlayerMatchEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListPlayerHistoryFunc != nil {
		return m.ListPlayerHistoryFunc(playerID, limit)
	}
	return nil, nil
}

func (m *MockStore) Leaderboard(limit int) ([]LeaderboardRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LeaderboardFunc != nil {
		return m.LeaderboardFunc(limit)
	}
	return nil, nil
}

func (m *MockStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearCalls++
}
