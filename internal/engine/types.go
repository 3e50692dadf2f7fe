package engine

import (
	"github.com/scrimlab/overqueue/internal/events"
	"github.com/scrimlab/overqueue/internal/formation"
	"github.com/scrimlab/overqueue/internal/lifecycle"
	"github.com/scrimlab/overqueue/internal/metrics"
	"github.com/scrimlab/overqueue/internal/notifier"
	"github.com/scrimlab/overqueue/internal/queue"
	"github.com/scrimlab/overqueue/internal/rating"
	"github.com/scrimlab/overqueue/internal/roster"
	"github.com/scrimlab/overqueue/internal/voice"
)

// Config is the per-community behavior of one Engine instance.
type Config struct {
	CommunityID string
	Formation   formation.Config
	DefaultRole queue.Role
	Rating      rating.Params
	Voice       VoiceChannels
	DryRun      bool
}

// VoiceChannels are the channel bindings used for post-transition moves.
type VoiceChannels struct {
	Main  string
	TeamA string
	TeamB string
}

// Engine serializes every mutating operation for one community through a
// single command loop. Public methods enqueue a closure and wait for it;
// the loop goroutine is the only writer of queue, controller, and config
// state. Side effects run after commit and never hold the loop.
type Engine struct {
	cfg       Config
	store     roster.Store
	queue     *queue.Manager
	ctrl      *lifecycle.Controller
	mover     voice.Mover
	notifier  notifier.Notifier
	bus       events.Client
	metrics   metrics.Metrics
	synthetic map[string]bool

	commands chan func()
	done     chan struct{}
}

// JoinResult tells the caller whether the join stuck and which profile
// fields still need to be prompted for.
type JoinResult struct {
	Accepted       bool `json:"accepted"`
	NeedsBattleTag bool `json:"needs_battletag"`
	NeedsRank      bool `json:"needs_rank"`
	Position       int  `json:"position"`
}

// Snapshot is the read-only projection consumed by every panel redraw.
type Snapshot struct {
	Queue         []queue.Entry    `json:"queue"`
	EligibleCount int              `json:"eligible_count"`
	Match         *lifecycle.Match `json:"match,omitempty"`
}

// AdminCommandKind names an admin operation.
type AdminCommandKind string

const (
	AdminCancel        AdminCommandKind = "cancel"
	AdminRemake        AdminCommandKind = "remake"
	AdminForceResult   AdminCommandKind = "force-result"
	AdminOverride      AdminCommandKind = "override-result"
	AdminRerollMap     AdminCommandKind = "reroll-map"
	AdminRemovePlayer  AdminCommandKind = "remove-player"
	AdminClearQueue    AdminCommandKind = "clear-queue"
	AdminSetRules      AdminCommandKind = "set-rules"
	AdminSetVoice      AdminCommandKind = "set-voice"
	AdminForceVCCheck  AdminCommandKind = "force-vc-check"
	AdminRecentMatches AdminCommandKind = "recent-matches"
	AdminPlayerStats   AdminCommandKind = "player-stats"
	AdminSeedTest      AdminCommandKind = "seed-test"
	AdminReliability   AdminCommandKind = "reliability"
)

// AdminParams carries the arguments for an admin command; only the fields
// relevant to the kind are read.
type AdminParams struct {
	AdminID  string `json:"admin_id,omitempty"`
	MatchID  string `json:"match_id,omitempty"`
	PlayerID string `json:"player_id,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Requeue  bool   `json:"requeue,omitempty"`
	Count    int    `json:"count,omitempty"`
	Limit    int    `json:"limit,omitempty"`

	NoShows     int `json:"no_shows,omitempty"`
	Disconnects int `json:"disconnects,omitempty"`

	Mode            string   `json:"mode,omitempty"`
	PlayersPerMatch int      `json:"players_per_match,omitempty"`
	TankPerTeam     int      `json:"tank_per_team,omitempty"`
	DPSPerTeam      int      `json:"dps_per_team,omitempty"`
	SupportPerTeam  int      `json:"support_per_team,omitempty"`
	ReportPolicy    string   `json:"report_policy,omitempty"`
	MapPool         []string `json:"map_pool,omitempty"`

	MainChannelID  string `json:"main_channel_id,omitempty"`
	TeamAChannelID string `json:"team_a_channel_id,omitempty"`
	TeamBChannelID string `json:"team_b_channel_id,omitempty"`
}

// PlayerStats bundles a player's profile with their recent history.
type PlayerStats struct {
	Player  roster.PlayerInfo         `json:"player"`
	History []roster.PlayerMatchEntry `json:"history"`
}
