package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

// defaultMapPool is used when MAP_POOL is not configured.
var defaultMapPool = []string{
	"Busan", "Ilios", "Lijiang Tower", "Oasis", "Nepal",
	"King's Row", "Midtown", "Numbani", "Dorado", "Junkertown",
	"Colosseo", "Esperanca", "New Queen Street",
}

// Load reads configuration from environment variables and .env file.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Info("No .env file found, reading from environment variables")
	}

	// A helper function to get a required env var. It will fail if the env var is not set.
	getEnv := func(key string) string {
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		log.Fatalf("Error: Required environment variable %s is not set.", key)
		return "" // This line is never reached
	}

	getEnvDefault := func(key, fallback string) string {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return value
		}
		return fallback
	}

	getEnvInt := func(key string, fallback int) int {
		raw := getEnvDefault(key, "")
		if raw == "" {
			return fallback
		}
		value, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			log.Fatalf("Error: Environment variable %s must be an integer, got %q.", key, raw)
		}
		return value
	}

	cfg := Config{
		DBName:        getEnv("DB_NAME"),
		MigrationsDir: "./migrations",
		Port:          getEnv("PORT"),
		CommunityID:   getEnvDefault("COMMUNITY_ID", "default"),
		Slack: SlackConfig{
			Token:     getEnv("SLACK_BOT_TOKEN"),
			ChannelID: getEnv("SLACK_CHANNEL_ID"),
		},
		Turso: TursoConfig{
			PrimaryURL: getEnvDefault("TURSO_PRIMARY_URL", ""),
			AuthToken:  getEnvDefault("TURSO_AUTH_TOKEN", ""),
		},
		ProjectID: getEnv("GCP_PROJECT"),
		Queue: QueueConfig{
			Mode:            getEnvDefault("QUEUE_MODE", "role"),
			PlayersPerMatch: getEnvInt("PLAYERS_PER_MATCH", 10),
			TankPerTeam:     getEnvInt("TANK_PER_TEAM", 1),
			DPSPerTeam:      getEnvInt("DPS_PER_TEAM", 2),
			SupportPerTeam:  getEnvInt("SUPPORT_PER_TEAM", 2),
			DefaultRole:     getEnvDefault("DEFAULT_ROLE", "fill"),
			ReportPolicy:    getEnvDefault("REPORT_POLICY", "first_accept"),
		},
		Rating: RatingConfig{
			DefaultMMR:         getEnvInt("DEFAULT_MMR", 2500),
			Floor:              getEnvInt("MMR_FLOOR", 0),
			Ceiling:            getEnvInt("MMR_CEILING", 5000),
			KFactor:            getEnvInt("K_FACTOR", 24),
			CalibrationKFactor: getEnvInt("CALIBRATION_K_FACTOR", 48),
			CalibrationMatches: getEnvInt("CALIBRATION_MATCHES", 5),
		},
		Voice: VoiceConfig{
			MainChannelID:  getEnvDefault("MAIN_VOICE_CHANNEL_ID", ""),
			TeamAChannelID: getEnvDefault("TEAM_A_VOICE_CHANNEL_ID", ""),
			TeamBChannelID: getEnvDefault("TEAM_B_VOICE_CHANNEL_ID", ""),
		},
		MapPool: defaultMapPool,
	}

	if raw := getEnvDefault("MAP_POOL", ""); raw != "" {
		var pool []string
		for _, name := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				pool = append(pool, trimmed)
			}
		}
		if len(pool) > 0 {
			cfg.MapPool = pool
		}
	}

	validate(cfg)
	return cfg
}

func validate(cfg Config) {
	q := cfg.Queue
	if q.PlayersPerMatch < 2 || q.PlayersPerMatch%2 != 0 {
		log.Fatalf("Error: PLAYERS_PER_MATCH must be an even number >= 2, got %d.", q.PlayersPerMatch)
	}
	if q.Mode != "role" && q.Mode != "open" {
		log.Fatalf("Error: QUEUE_MODE must be \"role\" or \"open\", got %q.", q.Mode)
	}
	if q.ReportPolicy != "first_accept" && q.ReportPolicy != "dual_confirmation" {
		log.Fatalf("Error: REPORT_POLICY must be \"first_accept\" or \"dual_confirmation\", got %q.", q.ReportPolicy)
	}
	if q.TankPerTeam < 0 || q.DPSPerTeam < 0 || q.SupportPerTeam < 0 {
		log.Fatal("Error: Role slots per team cannot be negative.")
	}
	if q.Mode == "role" {
		slots := q.TankPerTeam + q.DPSPerTeam + q.SupportPerTeam
		if slots*2 != q.PlayersPerMatch {
			log.Fatalf("Error: Role slots (%d per team) must account for all of PLAYERS_PER_MATCH (%d).", slots, q.PlayersPerMatch)
		}
	}
	r := cfg.Rating
	if r.Floor >= r.Ceiling {
		log.Fatalf("Error: MMR_FLOOR (%d) must be below MMR_CEILING (%d).", r.Floor, r.Ceiling)
	}
	if r.DefaultMMR < r.Floor || r.DefaultMMR > r.Ceiling {
		log.Fatalf("Error: DEFAULT_MMR (%d) must be within the valid MMR range.", r.DefaultMMR)
	}
}
