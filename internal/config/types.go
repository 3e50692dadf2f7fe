package config

// Config holds all configuration for the application.
type Config struct {
	DBName        string
	MigrationsDir string
	Port          string
	CommunityID   string
	Slack         SlackConfig
	Turso         TursoConfig
	ProjectID     string
	Queue         QueueConfig
	Rating        RatingConfig
	Voice         VoiceConfig
	MapPool       []string
}

type SlackConfig struct {
	Token     string
	ChannelID string
}

type TursoConfig struct {
	PrimaryURL string
	AuthToken  string
}

// QueueConfig holds the queue mode and team composition rules.
type QueueConfig struct {
	Mode            string // "role" or "open"
	PlayersPerMatch int
	TankPerTeam     int
	DPSPerTeam      int
	SupportPerTeam  int
	DefaultRole     string
	ReportPolicy    string // "first_accept" or "dual_confirmation"
}

// RatingConfig holds the Elo parameters.
type RatingConfig struct {
	DefaultMMR         int
	Floor              int
	Ceiling            int
	KFactor            int
	CalibrationKFactor int
	CalibrationMatches int
}

// VoiceConfig holds the voice channel bindings consumed by the voice mover.
type VoiceConfig struct {
	MainChannelID  string
	TeamAChannelID string
	TeamBChannelID string
}
