package lifecycle

import (
	"time"

	"github.com/scrimlab/overqueue/internal/queue"
	"github.com/scrimlab/overqueue/internal/roster"
	"github.com/scrimlab/overqueue/internal/voice"
)

// State is the lifecycle state of a match.
type State string

const (
	StateForming    State = "FORMING"
	StateReadyCheck State = "READY_CHECK"
	StateLive       State = "LIVE"
	StateReporting  State = "REPORTING"
	StateDisputed   State = "DISPUTED"
	StateComplete   State = "COMPLETE"
	StateCancelled  State = "CANCELLED"
)

// Terminal reports whether the state retains the match for history only.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateCancelled
}

// ReportPolicy selects how result reports finalize a match.
type ReportPolicy string

const (
	PolicyFirstAccept ReportPolicy = "first_accept"
	PolicyDualConfirm ReportPolicy = "dual_confirmation"
)

// ValidOutcome reports whether raw is a recognized match result.
func ValidOutcome(raw string) bool {
	switch raw {
	case roster.ResultTeamA, roster.ResultTeamB, roster.ResultDraw:
		return true
	}
	return false
}

// MatchPlayer is one participant of an in-flight match. MMRSnapshot is
// frozen at formation and is the only rating input to settlement.
type MatchPlayer struct {
	PlayerID      string       `json:"player_id"`
	Name          string       `json:"name"`
	Team          string       `json:"team"`
	MMRSnapshot   int          `json:"mmr_snapshot"`
	PreferredRole queue.Role   `json:"preferred_role"`
	AssignedRole  queue.Role   `json:"assigned_role"`
	JoinedAt      time.Time    `json:"joined_at"`
	Ready         bool         `json:"ready"`
	VC            voice.Status `json:"vc_status"`
	Synthetic     bool         `json:"synthetic"`
}

// ResultReport is one outcome claim from a participant.
type ResultReport struct {
	Team       string    `json:"team"`
	ReporterID string    `json:"reporter_id"`
	Outcome    string    `json:"outcome"`
	At         time.Time `json:"at"`
}

// Match is the in-memory view of the single active match.
type Match struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	Mode      string         `json:"mode"`
	State     State          `json:"state"`
	MapName   string         `json:"map_name,omitempty"`
	Result    string         `json:"result,omitempty"`
	Escalated bool           `json:"escalated"`
	Players   []MatchPlayer  `json:"players"`
	Reports   []ResultReport `json:"reports,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Clone returns a copy that shares nothing with the live match, so
// consumers outside the engine goroutine never observe its mutations.
func (m *Match) Clone() Match {
	dup := *m
	dup.Players = append([]MatchPlayer(nil), m.Players...)
	dup.Reports = append([]ResultReport(nil), m.Reports...)
	return dup
}

// Player returns the participant with the given ID, or nil.
func (m *Match) Player(playerID string) *MatchPlayer {
	for i := range m.Players {
		if m.Players[i].PlayerID == playerID {
			return &m.Players[i]
		}
	}
	return nil
}

// Team returns the participants on the given side, in draft order.
func (m *Match) Team(team string) []MatchPlayer {
	var out []MatchPlayer
	for _, p := range m.Players {
		if p.Team == team {
			out = append(out, p)
		}
	}
	return out
}

// AllReady reports whether every participant signalled readiness.
func (m *Match) AllReady() bool {
	for _, p := range m.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// EventKind categorizes a lifecycle transition for downstream fan-out.
type EventKind string

const (
	EventReadyCheck EventKind = "ready_check"
	EventLive       EventKind = "live"
	EventSettled    EventKind = "settled"
	EventDisputed   EventKind = "disputed"
	EventCancelled  EventKind = "cancelled"
	EventMapReroll  EventKind = "map_reroll"
)

// Event describes a committed transition. Side effects (voice moves,
// fan-out, notifications) are driven from these after the fact.
type Event struct {
	Kind    EventKind
	Match   Match
	Changes []roster.RatingChange
}
