package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/scrimlab/overqueue/internal/roster"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Simplified config loading for the script
func loadConfig() map[string]string {
	err := godotenv.Load()
	if err != nil {
		log.Warn("No .env file found, reading from environment variables")
	}

	config := make(map[string]string)
	for _, key := range []string{"TURSO_PRIMARY_URL", "TURSO_AUTH_TOKEN", "DB_NAME"} {
		if value, ok := os.LookupEnv(key); ok {
			config[key] = value
		}
	}
	if config["TURSO_PRIMARY_URL"] == "" && config["DB_NAME"] == "" {
		log.Fatalf("Error: Set TURSO_PRIMARY_URL/TURSO_AUTH_TOKEN or DB_NAME.")
	}
	return config
}

func openDB(cfg map[string]string) (*sql.DB, error) {
	if cfg["TURSO_PRIMARY_URL"] != "" {
		dbURL := fmt.Sprintf("%s?authToken=%s", cfg["TURSO_PRIMARY_URL"], cfg["TURSO_AUTH_TOKEN"])
		return sql.Open("libsql", dbURL)
	}
	return sql.Open("sqlite3", cfg["DB_NAME"])
}

type seedPlayer struct {
	ID   string
	Name string
	Tier string
	MMR  int
}

func main() {
	log.Info("Starting database seeder...")
	cfg := loadConfig()

	db, err := openDB(cfg)
	if err != nil {
		log.Fatalf("Failed to open database: %s", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %s", err)
	}

	log.Info("Successfully connected to the database.")

	tiers := []string{"bronze", "silver", "gold", "platinum", "diamond", "master"}
	dummyPlayers := make([]seedPlayer, 0, 10)
	for i := 1; i <= 10; i++ {
		tier := tiers[rand.Intn(len(tiers))]
		dummyPlayers = append(dummyPlayers, seedPlayer{
			ID:   fmt.Sprintf("seed-player-%d", i),
			Name: fmt.Sprintf("Seeder Player %c", 'A'+i-1),
			Tier: tier,
			MMR:  2000 + rand.Intn(1200),
		})
	}

	now := time.Now().Unix()
	for _, p := range dummyPlayers {
		_, err := db.Exec(`
			INSERT OR IGNORE INTO players (id, name, battletag, rank_tier, mmr, completed_matches, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.Name, p.Name+"#1234", p.Tier, p.MMR, 5+rand.Intn(50), now)
		if err != nil {
			log.Fatalf("Failed to insert dummy player %s: %s", p.Name, err)
		}
	}
	log.Info("Ensured dummy players exist.")

	var seqBase int64
	if err := db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM matches`).Scan(&seqBase); err != nil {
		log.Fatalf("Failed to read match sequence: %s", err)
	}

	const batchSize = 100
	const numMatches = 2000
	maps := []string{"Ilios", "Oasis", "Busan", "Lijiang Tower", "Nepal"}
	results := []string{roster.ResultTeamA, roster.ResultTeamB, roster.ResultDraw}

	log.Info("Preparing to insert dummy matches...", "total", numMatches, "batch_size", batchSize)
	startTime := time.Now()

	tx, err := db.Begin()
	if err != nil {
		log.Fatalf("Failed to begin transaction: %s", err)
	}

	matchValues := make([]string, 0, batchSize)
	matchArgs := make([]interface{}, 0, batchSize*10)
	historyValues := make([]string, 0, batchSize*10)
	historyArgs := make([]interface{}, 0, batchSize*10*10)

	for i := 0; i < numMatches; i++ {
		matchID := uuid.NewString()
		seq := seqBase + int64(i) + 1
		matchTime := time.Now().Add(-time.Duration(rand.Intn(365*24)) * time.Hour)
		result := results[rand.Intn(len(results))]

		perm := rand.Perm(len(dummyPlayers))
		teams := []roster.TeamRecord{
			{Name: roster.ResultTeamA, Players: make([]roster.TeamPlayer, 0, 5)},
			{Name: roster.ResultTeamB, Players: make([]roster.TeamPlayer, 0, 5)},
		}
		for slot, idx := range perm {
			p := dummyPlayers[idx]
			teams[slot%2].Players = append(teams[slot%2].Players, roster.TeamPlayer{
				PlayerID:      p.ID,
				Name:          p.Name,
				MMRSnapshot:   p.MMR,
				PreferredRole: "fill",
				AssignedRole:  []string{"tank", "dps", "dps", "support", "support"}[slot/2],
			})

			team := roster.ResultTeamA
			if slot%2 == 1 {
				team = roster.ResultTeamB
			}
			delta := seededDelta(team, result)
			historyValues = append(historyValues, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			historyArgs = append(historyArgs,
				matchID, seq, p.ID, p.Name, team,
				p.MMR, delta, p.MMR+delta, 0, matchTime.Unix(),
			)
		}

		teamsJSON, _ := json.Marshal(teams)

		matchValues = append(matchValues, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		matchArgs = append(matchArgs,
			matchID,
			seq,
			"seed-community",
			"role",
			"COMPLETE",
			maps[rand.Intn(len(maps))],
			result,
			0,
			string(teamsJSON),
			matchTime.Unix(),
		)

		if (i+1)%batchSize == 0 || (i+1) == numMatches {
			matchStmt := fmt.Sprintf(`
				INSERT INTO matches (id, seq, community_id, mode, state, map_name, result, escalated, teams_json, created_at)
				VALUES %s;`, strings.Join(matchValues, ","))
			if _, err := tx.Exec(matchStmt, matchArgs...); err != nil {
				tx.Rollback()
				log.Fatalf("Failed to execute match batch insert: %s", err)
			}

			historyStmt := fmt.Sprintf(`
				INSERT INTO rating_history (match_id, match_seq, player_id, player_name, team,
					mmr_before, delta, mmr_after, calibration, created_at)
				VALUES %s;`, strings.Join(historyValues, ","))
			if _, err := tx.Exec(historyStmt, historyArgs...); err != nil {
				tx.Rollback()
				log.Fatalf("Failed to execute history batch insert: %s", err)
			}

			matchValues = make([]string, 0, batchSize)
			matchArgs = make([]interface{}, 0, batchSize*10)
			historyValues = make([]string, 0, batchSize*10)
			historyArgs = make([]interface{}, 0, batchSize*10*10)
			log.Info("Inserted batch", "completed", i+1, "total", numMatches)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("Failed to commit transaction: %s", err)
	}

	duration := time.Since(startTime)
	log.Info("Successfully inserted all dummy matches.", "duration", duration)
}

func seededDelta(team, result string) int {
	switch result {
	case roster.ResultDraw:
		return 0
	case team:
		return 5 + rand.Intn(20)
	default:
		return -(5 + rand.Intn(20))
	}
}
