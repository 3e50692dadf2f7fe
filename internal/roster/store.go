package roster

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// ErrAlreadySettled is returned when a settlement is applied to a match
// that already has rating history rows. Result changes after settlement
// must go through ApplyOverride.
var ErrAlreadySettled = errors.New("match already settled")

// Result values persisted on a match row.
const (
	ResultTeamA = "team_a"
	ResultTeamB = "team_b"
	ResultDraw  = "draw"
)

// New creates a new Store.
func New(db *sql.DB) Store {
	return &store{
		db: db,
	}
}

// EnsurePlayer creates the player row on first contact and returns the
// current profile either way. seedMMR is only used for the initial insert.
func (s *store) EnsurePlayer(playerID, name string, seedMMR int) (PlayerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO players (id, name, mmr, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at
	`, playerID, name, seedMMR, now)
	if err != nil {
		return PlayerInfo{}, fmt.Errorf("failed to ensure player %s: %w", playerID, err)
	}

	player, err := s.getPlayer(playerID)
	if err != nil {
		return PlayerInfo{}, err
	}
	return *player, nil
}

// GetPlayer retrieves a single player, or nil when unknown.
func (s *store) GetPlayer(playerID string) (*PlayerInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, err := s.getPlayer(playerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return player, nil
}

func (s *store) getPlayer(playerID string) (*PlayerInfo, error) {
	row := s.db.QueryRow(`
		SELECT id, name, battletag, rank_tier, mmr, completed_matches, wins, losses, draws,
		       results_reported, no_show_count, disconnect_count, updated_at
		FROM players
		WHERE id = ?
	`, playerID)
	return scanPlayer(row)
}

// GetPlayers retrieves the given players in one query. Unknown IDs are
// silently absent from the result.
func (s *store) GetPlayers(playerIDs []string) ([]PlayerInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(playerIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(playerIDs)), ",")
	args := make([]any, len(playerIDs))
	for i, id := range playerIDs {
		args[i] = id
	}

	rows, err := s.db.Query(`
		SELECT id, name, battletag, rank_tier, mmr, completed_matches, wins, losses, draws,
		       results_reported, no_show_count, disconnect_count, updated_at
		FROM players
		WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	var players []PlayerInfo
	for rows.Next() {
		player, err := scanPlayer(rows)
		if err != nil {
			log.Error("Failed to scan player row", "error", err)
			continue
		}
		players = append(players, *player)
	}
	return players, rows.Err()
}

// SetProfile captures BattleTag and/or rank tier. Nil fields keep their
// stored value.
func (s *store) SetProfile(playerID string, battleTag, rankTier *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE players
		SET battletag = COALESCE(?, battletag),
		    rank_tier = COALESCE(?, rank_tier),
		    updated_at = ?
		WHERE id = ?
	`, battleTag, rankTier, time.Now().Unix(), playerID)
	return err
}

// SetMMR replaces a player's current rating. Used for starter-MMR
// assignment when a rank tier is first declared.
func (s *store) SetMMR(playerID string, mmr int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE players
		SET mmr = ?,
		    updated_at = ?
		WHERE id = ?
	`, mmr, time.Now().Unix(), playerID)
	return err
}

// IncrementReliability bumps the no-show and disconnect counters.
func (s *store) IncrementReliability(playerID string, noShows, disconnects int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE players
		SET no_show_count = no_show_count + ?,
		    disconnect_count = disconnect_count + ?,
		    updated_at = ?
		WHERE id = ?
	`, noShows, disconnects, time.Now().Unix(), playerID)
	return err
}

// SaveMatch persists a freshly formed match and assigns its sequence
// number. The sequence orders rating history across matches.
func (s *store) SaveMatch(rec *MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	teamsJSON, err := json.Marshal(rec.Teams)
	if err != nil {
		return err
	}

	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM matches`).Scan(&rec.Seq); err != nil {
		return fmt.Errorf("failed to assign match seq: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO matches (id, seq, community_id, mode, state, map_name, result, escalated, teams_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Seq, rec.CommunityID, rec.Mode, rec.State, rec.MapName, rec.Result, boolToInt(rec.Escalated), string(teamsJSON), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert match %s: %w", rec.ID, err)
	}
	return tx.Commit()
}

// UpdateMatchState transitions a persisted match to a new state. An empty
// mapName keeps the stored value.
func (s *store) UpdateMatchState(matchID, state, mapName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE matches
		SET state = ?, map_name = CASE WHEN ? = '' THEN map_name ELSE ? END
		WHERE id = ?
	`, state, mapName, mapName, matchID)
	return err
}

// SetMatchEscalated flags a match for manual admin resolution.
func (s *store) SetMatchEscalated(matchID string, escalated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE matches SET escalated = ? WHERE id = ?`, boolToInt(escalated), matchID)
	return err
}

// GetMatch retrieves a single match record, or nil when unknown.
func (s *store) GetMatch(matchID string) (*MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, seq, community_id, mode, state, map_name, result, escalated, teams_json, created_at
		FROM matches
		WHERE id = ?
	`, matchID)
	rec, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// GetActiveMatch returns the most recent non-terminal match row, or nil
// when nothing is in flight. Used to resume after a restart.
func (s *store) GetActiveMatch() (*MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, seq, community_id, mode, state, map_name, result, escalated, teams_json, created_at
		FROM matches
		WHERE state NOT IN ('COMPLETE', 'CANCELLED')
		ORDER BY seq DESC
		LIMIT 1
	`)
	rec, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ListRecentMatches returns the newest matches first.
func (s *store) ListRecentMatches(limit int) ([]MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, seq, community_id, mode, state, map_name, result, escalated, teams_json, created_at
		FROM matches
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent matches: %w", err)
	}
	defer rows.Close()

	var records []MatchRecord
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			log.Error("Failed to scan match row", "error", err)
			continue
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// SaveQueueEntry upserts one persisted queue entry.
func (s *store) SaveQueueEntry(rec QueueEntryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO queue_entries (player_id, name, role, mmr, state, joined_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			mmr = excluded.mmr,
			state = excluded.state,
			joined_at = excluded.joined_at
	`, rec.PlayerID, rec.Name, rec.Role, rec.MMR, rec.State, rec.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to save queue entry %s: %w", rec.PlayerID, err)
	}
	return nil
}

// RemoveQueueEntries deletes the given players' persisted queue entries.
func (s *store) RemoveQueueEntries(playerIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(playerIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(playerIDs)), ",")
	args := make([]any, len(playerIDs))
	for i, id := range playerIDs {
		args[i] = id
	}
	_, err := s.db.Exec(`DELETE FROM queue_entries WHERE player_id IN (`+placeholders+`)`, args...)
	return err
}

// ClearQueueEntries empties the persisted queue.
func (s *store) ClearQueueEntries() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM queue_entries`)
	return err
}

// ListQueueEntries returns the persisted queue in join order.
func (s *store) ListQueueEntries() ([]QueueEntryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT player_id, name, role, mmr, state, joined_at
		FROM queue_entries
		ORDER BY joined_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue entries: %w", err)
	}
	defer rows.Close()

	var entries []QueueEntryRecord
	for rows.Next() {
		var rec QueueEntryRecord
		if err := rows.Scan(&rec.PlayerID, &rec.Name, &rec.Role, &rec.MMR, &rec.State, &rec.JoinedAt); err != nil {
			return nil, err
		}
		entries = append(entries, rec)
	}
	return entries, rows.Err()
}

// MarkMatchReady records a readiness signal for restart recovery.
func (s *store) MarkMatchReady(matchID, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO match_ready (match_id, player_id)
		VALUES (?, ?)
		ON CONFLICT(match_id, player_id) DO NOTHING
	`, matchID, playerID)
	return err
}

// ListMatchReady returns the players who signalled readiness for a match.
func (s *store) ListMatchReady(matchID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT player_id FROM match_ready WHERE match_id = ?`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query match readiness: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveMatchReport persists one pending result report. A team's later
// reports do not replace its first.
func (s *store) SaveMatchReport(rec ReportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO match_reports (match_id, team, reporter_id, outcome, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(match_id, team) DO NOTHING
	`, rec.MatchID, rec.Team, rec.ReporterID, rec.Outcome, rec.CreatedAt)
	return err
}

// ListMatchReports returns the pending reports of a match in arrival order.
func (s *store) ListMatchReports(matchID string) ([]ReportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT match_id, team, reporter_id, outcome, created_at
		FROM match_reports
		WHERE match_id = ?
		ORDER BY created_at ASC, team ASC
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query match reports: %w", err)
	}
	defer rows.Close()

	var reports []ReportRecord
	for rows.Next() {
		var rec ReportRecord
		if err := rows.Scan(&rec.MatchID, &rec.Team, &rec.ReporterID, &rec.Outcome, &rec.CreatedAt); err != nil {
			return nil, err
		}
		reports = append(reports, rec)
	}
	return reports, rows.Err()
}

// ClearMatchRuntime drops a finished match's readiness and report rows.
func (s *store) ClearMatchRuntime(matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM match_ready WHERE match_id = ?`, matchID); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM match_reports WHERE match_id = ?`, matchID)
	return err
}

// ApplySettlement finalizes a match in one transaction: rating history is
// appended, player MMR and counters move, and the match row records the
// result. A second settlement of the same match fails with ErrAlreadySettled
// and mutates nothing.
func (s *store) ApplySettlement(matchID, result, reporterID string, changes []RatingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM rating_history WHERE match_id = ?`, matchID).Scan(&existing); err != nil {
		return err
	}
	if existing > 0 {
		return ErrAlreadySettled
	}

	now := time.Now().Unix()
	for _, change := range changes {
		winInc, lossInc, drawInc := outcomeCounters(change.Team, result)
		_, err := tx.Exec(`
			UPDATE players
			SET mmr = ?,
			    completed_matches = completed_matches + 1,
			    wins = wins + ?,
			    losses = losses + ?,
			    draws = draws + ?,
			    updated_at = ?
			WHERE id = ?
		`, change.MMRAfter, winInc, lossInc, drawInc, now, change.PlayerID)
		if err != nil {
			return fmt.Errorf("failed to update player %s: %w", change.PlayerID, err)
		}

		_, err = tx.Exec(`
			INSERT INTO rating_history (match_id, match_seq, player_id, player_name, team, mmr_before, delta, mmr_after, calibration, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, change.MatchID, change.MatchSeq, change.PlayerID, change.PlayerName, change.Team,
			change.MMRBefore, change.Delta, change.MMRAfter, boolToInt(change.Calibration), now)
		if err != nil {
			return fmt.Errorf("failed to append rating history for %s: %w", change.PlayerID, err)
		}
	}

	if reporterID != "" {
		if _, err := tx.Exec(`
			UPDATE players SET results_reported = results_reported + 1, updated_at = ? WHERE id = ?
		`, now, reporterID); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`UPDATE matches SET state = 'COMPLETE', result = ? WHERE id = ?`, result, matchID); err != nil {
		return err
	}
	return tx.Commit()
}

// Override carries the corrected history row plus the player's new current
// MMR after the correction is folded in.
type Override struct {
	Change    RatingChange
	PlayerMMR int
}

// ApplyOverride rewrites a settled match's result in one transaction:
// history rows take their corrected deltas, player MMR moves by the
// correction, and win/loss/draw counters shift from the previous result to
// the new one. Completed-match counters are untouched; the match still
// counts once toward calibration.
func (s *store) ApplyOverride(matchID, prevResult, result string, overrides []Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, ov := range overrides {
		change := ov.Change
		prevWin, prevLoss, prevDraw := outcomeCounters(change.Team, prevResult)
		newWin, newLoss, newDraw := outcomeCounters(change.Team, result)

		_, err := tx.Exec(`
			UPDATE rating_history
			SET delta = ?, mmr_after = ?
			WHERE match_id = ? AND player_id = ?
		`, change.Delta, change.MMRAfter, matchID, change.PlayerID)
		if err != nil {
			return fmt.Errorf("failed to rewrite history for %s: %w", change.PlayerID, err)
		}

		_, err = tx.Exec(`
			UPDATE players
			SET mmr = ?,
			    wins = wins + ?,
			    losses = losses + ?,
			    draws = draws + ?,
			    updated_at = ?
			WHERE id = ?
		`, ov.PlayerMMR, newWin-prevWin, newLoss-prevLoss, newDraw-prevDraw, now, change.PlayerID)
		if err != nil {
			return fmt.Errorf("failed to correct player %s: %w", change.PlayerID, err)
		}
	}

	if _, err := tx.Exec(`UPDATE matches SET result = ? WHERE id = ?`, result, matchID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetRatingChanges returns the history rows of one match.
func (s *store) GetRatingChanges(matchID string) ([]RatingChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT match_id, match_seq, player_id, player_name, team, mmr_before, delta, mmr_after, calibration, created_at
		FROM rating_history
		WHERE match_id = ?
		ORDER BY team ASC, mmr_before DESC, player_id ASC
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rating changes: %w", err)
	}
	defer rows.Close()

	var changes []RatingChange
	for rows.Next() {
		var change RatingChange
		var calibration int
		if err := rows.Scan(&change.MatchID, &change.MatchSeq, &change.PlayerID, &change.PlayerName,
			&change.Team, &change.MMRBefore, &change.Delta, &change.MMRAfter, &calibration, &change.CreatedAt); err != nil {
			return nil, err
		}
		change.Calibration = calibration != 0
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

// ListPlayerHistory returns a player's most recent settled matches, newest
// first, with the role they were assigned and the outcome from their side.
func (s *store) ListPlayerHistory(playerID string, limit int) ([]PlayerMatchEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT h.match_id, h.team, h.mmr_before, h.delta, h.mmr_after,
		       m.mode, m.result, m.created_at, m.teams_json
		FROM rating_history h
		JOIN matches m ON m.id = h.match_id
		WHERE h.player_id = ?
		ORDER BY h.match_seq DESC
		LIMIT ?
	`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query player history: %w", err)
	}
	defer rows.Close()

	var entries []PlayerMatchEntry
	for rows.Next() {
		var entry PlayerMatchEntry
		var result sql.NullString
		var teamsJSON string
		if err := rows.Scan(&entry.MatchID, &entry.Team, &entry.MMRBefore, &entry.Delta, &entry.MMRAfter,
			&entry.Mode, &result, &entry.CreatedAt, &teamsJSON); err != nil {
			return nil, err
		}
		entry.Result = resultForTeam(entry.Team, result.String)
		entry.AssignedRole = assignedRoleFromTeams(teamsJSON, playerID)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Leaderboard returns the top players by MMR.
func (s *store) Leaderboard(limit int) ([]LeaderboardRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, name, mmr, completed_matches, wins, losses, draws
		FROM players
		WHERE completed_matches > 0
		ORDER BY mmr DESC, completed_matches DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var board []LeaderboardRow
	for rows.Next() {
		var row LeaderboardRow
		if err := rows.Scan(&row.PlayerID, &row.Name, &row.MMR, &row.CompletedMatches, &row.Wins, &row.Losses, &row.Draws); err != nil {
			return nil, err
		}
		board = append(board, row)
	}
	return board, rows.Err()
}

// Clear wipes the store. Used by tests and the admin reset endpoint.
func (s *store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"match_reports", "match_ready", "queue_entries", "rating_history", "matches", "players"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			log.Error("Failed to clear table", "table", table, "error", err)
		}
	}
}

func scanPlayer(scanner interface{ Scan(...any) error }) (*PlayerInfo, error) {
	var player PlayerInfo
	var battleTag, rankTier sql.NullString
	err := scanner.Scan(
		&player.ID, &player.Name, &battleTag, &rankTier, &player.MMR,
		&player.CompletedMatches, &player.Wins, &player.Losses, &player.Draws,
		&player.ResultsReported, &player.NoShowCount, &player.DisconnectCount, &player.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if battleTag.Valid {
		player.BattleTag = &battleTag.String
	}
	if rankTier.Valid {
		player.RankTier = &rankTier.String
	}
	return &player, nil
}

func scanMatch(scanner interface{ Scan(...any) error }) (*MatchRecord, error) {
	var rec MatchRecord
	var mapName, result sql.NullString
	var escalated int
	var teamsJSON string
	err := scanner.Scan(&rec.ID, &rec.Seq, &rec.CommunityID, &rec.Mode, &rec.State,
		&mapName, &result, &escalated, &teamsJSON, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.MapName = mapName.String
	rec.Result = result.String
	rec.Escalated = escalated != 0
	if teamsJSON != "" {
		if err := json.Unmarshal([]byte(teamsJSON), &rec.Teams); err != nil {
			log.Error("Failed to unmarshal teams_json", "error", err, "matchID", rec.ID)
		}
	}
	return &rec, nil
}

// outcomeCounters returns the (win, loss, draw) increments for a player on
// the given team under the given match result.
func outcomeCounters(team, result string) (int, int, int) {
	switch result {
	case ResultDraw:
		return 0, 0, 1
	case team:
		return 1, 0, 0
	default:
		return 0, 1, 0
	}
}

func resultForTeam(team, result string) string {
	switch result {
	case "":
		return "unknown"
	case ResultDraw:
		return "draw"
	case team:
		return "win"
	default:
		return "loss"
	}
}

func assignedRoleFromTeams(teamsJSON, playerID string) string {
	var teams []TeamRecord
	if err := json.Unmarshal([]byte(teamsJSON), &teams); err != nil {
		return ""
	}
	for _, team := range teams {
		for _, player := range team.Players {
			if player.PlayerID == playerID {
				return player.AssignedRole
			}
		}
	}
	return ""
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
