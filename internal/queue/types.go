package queue

import "time"

// Role is a queue preference. Fill is a wildcard resolved at formation
// time; Open is the single marker used when the queue runs in open mode.
type Role string

const (
	RoleTank    Role = "tank"
	RoleDPS     Role = "dps"
	RoleSupport Role = "support"
	RoleFill    Role = "fill"
	RoleOpen    Role = "open"
)

// ValidRole reports whether the given string names a queueable role.
func ValidRole(raw string) bool {
	switch Role(raw) {
	case RoleTank, RoleDPS, RoleSupport, RoleFill, RoleOpen:
		return true
	}
	return false
}

// EntryState tracks whether an entry counts toward formation.
// PendingProfile entries hold a queue slot while the player is prompted
// for missing BattleTag/rank, but are excluded from eligible counts.
type EntryState string

const (
	StatePendingProfile EntryState = "pending_profile"
	StateEligible       EntryState = "eligible"
)

// Entry is one queued player.
type Entry struct {
	PlayerID string     `json:"player_id"`
	Name     string     `json:"name"`
	Role     Role       `json:"role"`
	MMR      int        `json:"mmr"`
	State    EntryState `json:"state"`
	JoinedAt time.Time  `json:"joined_at"`
}

// Manager holds the waiting set in insertion order. It has no locking of
// its own: all access is serialized by the engine's event loop.
type Manager struct {
	entries []Entry
}
