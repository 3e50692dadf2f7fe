package roster

// Store defines the interface for interacting with player and match data.
// All mutating calls commit atomically: a failure leaves no partial state.
type Store interface {
	EnsurePlayer(playerID, name string, seedMMR int) (PlayerInfo, error)
	GetPlayer(playerID string) (*PlayerInfo, error)
	GetPlayers(playerIDs []string) ([]PlayerInfo, error)
	SetProfile(playerID string, battleTag, rankTier *string) error
	SetMMR(playerID string, mmr int) error
	IncrementReliability(playerID string, noShows, disconnects int) error

	SaveMatch(rec *MatchRecord) error
	UpdateMatchState(matchID, state, mapName string) error
	SetMatchEscalated(matchID string, escalated bool) error
	GetMatch(matchID string) (*MatchRecord, error)
	GetActiveMatch() (*MatchRecord, error)
	ListRecentMatches(limit int) ([]MatchRecord, error)

	SaveQueueEntry(rec QueueEntryRecord) error
	RemoveQueueEntries(playerIDs []string) error
	ClearQueueEntries() error
	ListQueueEntries() ([]QueueEntryRecord, error)

	MarkMatchReady(matchID, playerID string) error
	ListMatchReady(matchID string) ([]string, error)
	SaveMatchReport(rec ReportRecord) error
	ListMatchReports(matchID string) ([]ReportRecord, error)
	ClearMatchRuntime(matchID string) error

	ApplySettlement(matchID, result, reporterID string, changes []RatingChange) error
	ApplyOverride(matchID, prevResult, result string, overrides []Override) error
	GetRatingChanges(matchID string) ([]RatingChange, error)

	ListPlayerHistory(playerID string, limit int) ([]PlayerMatchEntry, error)
	Leaderboard(limit int) ([]LeaderboardRow, error)
	Clear()
}
