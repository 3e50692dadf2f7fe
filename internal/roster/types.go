package roster

import (
	"database/sql"
	"sync"
)

// store handles all database operations for the roster.
type store struct {
	db *sql.DB
	mu sync.RWMutex
}

// PlayerInfo represents a player profile in the store.
type PlayerInfo struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	BattleTag        *string `json:"battletag,omitempty"`
	RankTier         *string `json:"rank_tier,omitempty"`
	MMR              int     `json:"mmr"`
	CompletedMatches int     `json:"completed_matches"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	Draws            int     `json:"draws"`
	ResultsReported  int     `json:"results_reported"`
	NoShowCount      int     `json:"no_show_count"`
	DisconnectCount  int     `json:"disconnect_count"`
	UpdatedAt        int64   `json:"updated_at"`
}

// HasProfile reports whether both BattleTag and rank were captured.
func (p PlayerInfo) HasProfile() bool {
	return p.BattleTag != nil && *p.BattleTag != "" && p.RankTier != nil && *p.RankTier != ""
}

// TeamPlayer is one roster slot inside a persisted match record.
type TeamPlayer struct {
	PlayerID      string `json:"player_id"`
	Name          string `json:"name"`
	MMRSnapshot   int    `json:"mmr_snapshot"`
	PreferredRole string `json:"preferred_role"`
	AssignedRole  string `json:"assigned_role"`
}

// TeamRecord is one side of a persisted match.
type TeamRecord struct {
	Name    string       `json:"name"`
	Players []TeamPlayer `json:"players"`
}

// MatchRecord is the persisted form of a match. Seq is a monotonic counter
// assigned at save time and used to order rating history across matches.
type MatchRecord struct {
	ID          string       `json:"id"`
	Seq         int64        `json:"seq"`
	CommunityID string       `json:"community_id"`
	Mode        string       `json:"mode"`
	State       string       `json:"state"`
	MapName     string       `json:"map_name,omitempty"`
	Result      string       `json:"result,omitempty"`
	Escalated   bool         `json:"escalated"`
	Teams       []TeamRecord `json:"teams"`
	CreatedAt   int64        `json:"created_at"`
}

// QueueEntryRecord is the persisted form of a queue entry, so the queue
// survives a restart. JoinedAt is unix nanoseconds to preserve ordering.
type QueueEntryRecord struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	MMR      int    `json:"mmr"`
	State    string `json:"state"`
	JoinedAt int64  `json:"joined_at"`
}

// ReportRecord is the persisted form of a pending result report on an
// in-flight match.
type ReportRecord struct {
	MatchID    string `json:"match_id"`
	Team       string `json:"team"`
	ReporterID string `json:"reporter_id"`
	Outcome    string `json:"outcome"`
	CreatedAt  int64  `json:"created_at"`
}

// RatingChange is one append-only rating history row.
type RatingChange struct {
	MatchID     string `json:"match_id"`
	MatchSeq    int64  `json:"match_seq"`
	PlayerID    string `json:"player_id"`
	PlayerName  string `json:"player_name"`
	Team        string `json:"team"`
	MMRBefore   int    `json:"mmr_before"`
	Delta       int    `json:"delta"`
	MMRAfter    int    `json:"mmr_after"`
	Calibration bool   `json:"calibration"`
	CreatedAt   int64  `json:"created_at"`
}

// PlayerMatchEntry is one row of a player's recent-match history.
type PlayerMatchEntry struct {
	MatchID      string `json:"match_id"`
	CreatedAt    int64  `json:"created_at"`
	Mode         string `json:"mode"`
	Team         string `json:"team"`
	AssignedRole string `json:"assigned_role"`
	MMRBefore    int    `json:"mmr_before"`
	Delta        int    `json:"delta"`
	MMRAfter     int    `json:"mmr_after"`
	Result       string `json:"result"` // win | loss | draw
}

// LeaderboardRow is one row of the leaderboard projection. Rendering is
// the presentation layer's concern; this is values only.
type LeaderboardRow struct {
	PlayerID         string `json:"player_id"`
	Name             string `json:"name"`
	MMR              int    `json:"mmr"`
	CompletedMatches int    `json:"completed_matches"`
	Wins             int    `json:"wins"`
	Losses           int    `json:"losses"`
	Draws            int    `json:"draws"`
}
