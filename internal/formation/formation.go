// Package formation selects players from the eligible queue and splits
// them into two balanced teams. In role mode every required
// Tank/DPS/Support slot is covered before a match is proposed; Fill
// players only ever take slots left open by first-preference players.
package formation

import (
	"errors"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/scrimlab/overqueue/internal/queue"
)

var (
	// ErrInsufficientPlayers is returned when fewer eligible players are
	// queued than a match needs.
	ErrInsufficientPlayers = errors.New("not enough eligible players")
	// ErrRoleSlotsUnsatisfiable is returned in role mode when enough
	// players are queued but the required role slots cannot all be covered,
	// even using the Fill pool.
	ErrRoleSlotsUnsatisfiable = errors.New("role slots unsatisfiable")
)

// Mode selects between role-slotted and open team composition.
type Mode string

const (
	ModeRole Mode = "role"
	ModeOpen Mode = "open"
)

// Config is the composition rule set for one community.
type Config struct {
	Mode            Mode
	PlayersPerMatch int
	TankPerTeam     int
	DPSPerTeam      int
	SupportPerTeam  int
}

// Assigned is one selected player with the role they will actually play.
// AssignedRole differs from PreferredRole when the player queued as Fill.
type Assigned struct {
	PlayerID      string
	Name          string
	MMR           int
	PreferredRole queue.Role
	AssignedRole  queue.Role
	JoinedAt      int64
}

// Result is a proposed match: two teams of equal size.
type Result struct {
	TeamA         []Assigned
	TeamB         []Assigned
	RolesEnforced bool
}

// PlayerIDs returns every selected player, Team A first.
func (r *Result) PlayerIDs() []string {
	ids := make([]string, 0, len(r.TeamA)+len(r.TeamB))
	for _, p := range r.TeamA {
		ids = append(ids, p.PlayerID)
	}
	for _, p := range r.TeamB {
		ids = append(ids, p.PlayerID)
	}
	return ids
}

// Form selects players from the eligible entries and produces balanced
// teams, or reports why no match can form yet. Entries must be in join
// order; selection respects it throughout.
func Form(eligible []queue.Entry, cfg Config) (*Result, error) {
	if len(eligible) < cfg.PlayersPerMatch {
		return nil, ErrInsufficientPlayers
	}

	var selected []Assigned
	switch cfg.Mode {
	case ModeOpen:
		for _, entry := range eligible[:cfg.PlayersPerMatch] {
			selected = append(selected, Assigned{
				PlayerID:      entry.PlayerID,
				Name:          entry.Name,
				MMR:           entry.MMR,
				PreferredRole: entry.Role,
				AssignedRole:  queue.RoleOpen,
				JoinedAt:      entry.JoinedAt.UnixNano(),
			})
		}
	case ModeRole:
		var err error
		selected, err = selectByRole(eligible, cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrRoleSlotsUnsatisfiable
	}

	teamA, teamB := split(selected, cfg.Mode)
	log.Debug("Formed teams", "team_a_mmr", teamMMR(teamA), "team_b_mmr", teamMMR(teamB))
	return &Result{TeamA: teamA, TeamB: teamB, RolesEnforced: cfg.Mode == ModeRole}, nil
}

// selectByRole fills every required slot from first-preference players in
// join order, then backfills the remaining shortage from the Fill pool,
// also in join order. No partial matches: any uncovered slot aborts.
func selectByRole(eligible []queue.Entry, cfg Config) ([]Assigned, error) {
	caps := map[queue.Role]int{
		queue.RoleTank:    cfg.TankPerTeam * 2,
		queue.RoleDPS:     cfg.DPSPerTeam * 2,
		queue.RoleSupport: cfg.SupportPerTeam * 2,
	}

	var selected []Assigned
	taken := map[queue.Role]int{}
	var fillPool []queue.Entry

	for _, entry := range eligible {
		if entry.Role == queue.RoleFill {
			fillPool = append(fillPool, entry)
			continue
		}
		if taken[entry.Role] >= caps[entry.Role] {
			continue // role already covered; the entry stays queued
		}
		taken[entry.Role]++
		selected = append(selected, Assigned{
			PlayerID:      entry.PlayerID,
			Name:          entry.Name,
			MMR:           entry.MMR,
			PreferredRole: entry.Role,
			AssignedRole:  entry.Role,
			JoinedAt:      entry.JoinedAt.UnixNano(),
		})
	}

	// Backfill shortages from the Fill pool in join order.
	for _, role := range []queue.Role{queue.RoleTank, queue.RoleDPS, queue.RoleSupport} {
		for taken[role] < caps[role] {
			if len(fillPool) == 0 {
				return nil, ErrRoleSlotsUnsatisfiable
			}
			entry := fillPool[0]
			fillPool = fillPool[1:]
			taken[role]++
			selected = append(selected, Assigned{
				PlayerID:      entry.PlayerID,
				Name:          entry.Name,
				MMR:           entry.MMR,
				PreferredRole: queue.RoleFill,
				AssignedRole:  role,
				JoinedAt:      entry.JoinedAt.UnixNano(),
			})
		}
	}
	return selected, nil
}

// split runs the snake draft. In role mode each role bucket is drafted
// independently so both teams end up with their exact role quotas; in open
// mode the whole selection is one bucket. Sorting is MMR descending with
// join time then player ID as deterministic tie-breaks.
func split(selected []Assigned, mode Mode) ([]Assigned, []Assigned) {
	buckets := map[queue.Role][]Assigned{}
	var order []queue.Role
	if mode == ModeRole {
		order = []queue.Role{queue.RoleTank, queue.RoleDPS, queue.RoleSupport}
		for _, player := range selected {
			buckets[player.AssignedRole] = append(buckets[player.AssignedRole], player)
		}
	} else {
		order = []queue.Role{queue.RoleOpen}
		buckets[queue.RoleOpen] = selected
	}

	var teamA, teamB []Assigned
	for _, role := range order {
		bucket := buckets[role]
		sort.SliceStable(bucket, func(i, j int) bool {
			if bucket[i].MMR != bucket[j].MMR {
				return bucket[i].MMR > bucket[j].MMR
			}
			if bucket[i].JoinedAt != bucket[j].JoinedAt {
				return bucket[i].JoinedAt < bucket[j].JoinedAt
			}
			return bucket[i].PlayerID < bucket[j].PlayerID
		})
		for i, player := range bucket {
			if snakeToA(i) {
				teamA = append(teamA, player)
			} else {
				teamB = append(teamB, player)
			}
		}
	}
	return teamA, teamB
}

// snakeToA reports whether draft position i (0-based) goes to Team A
// under the 1-A, 2-B, 3-B, 4-A repeating pattern.
func snakeToA(i int) bool {
	return i%4 == 0 || i%4 == 3
}

func teamMMR(team []Assigned) int {
	sum := 0
	for _, player := range team {
		sum += player.MMR
	}
	return sum
}
