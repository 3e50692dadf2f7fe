// Package rating implements the Elo-style skill rating used for team
// balancing and post-match adjustments. Everything here is pure: callers
// supply the pre-match snapshots and persist the results themselves.
package rating

import "math"

// Score values for match outcomes.
const (
	ScoreWin  = 1.0
	ScoreDraw = 0.5
	ScoreLoss = 0.0
)

// Params holds the tunable rating constants.
type Params struct {
	KFactor            int
	CalibrationKFactor int
	CalibrationMatches int
	DefaultMMR         int
	Floor              int
	Ceiling            int
}

// DefaultParams mirrors the production configuration defaults.
func DefaultParams() Params {
	return Params{
		KFactor:            24,
		CalibrationKFactor: 48,
		CalibrationMatches: 5,
		DefaultMMR:         2500,
		Floor:              0,
		Ceiling:            5000,
	}
}

// ExpectedScore returns the logistic win expectancy of a player with the
// given rating against an opponent pool with the given average rating.
func ExpectedScore(playerMMR, opponentAvg int) float64 {
	return 1.0 / (1.0 + math.Pow(10.0, float64(opponentAvg-playerMMR)/400.0))
}

// ComputeDelta returns the signed MMR adjustment for a single player.
// calibration selects the elevated K factor applied to a player's first
// CalibrationMatches completed matches.
func (p Params) ComputeDelta(playerMMR, opponentAvg int, score float64, calibration bool) int {
	k := p.KFactor
	if calibration {
		k = p.CalibrationKFactor
	}
	expected := ExpectedScore(playerMMR, opponentAvg)
	return int(math.Round(float64(k) * (score - expected)))
}

// Clamp bounds an MMR value to the configured valid range.
func (p Params) Clamp(mmr int) int {
	if mmr < p.Floor {
		return p.Floor
	}
	if mmr > p.Ceiling {
		return p.Ceiling
	}
	return mmr
}

// InCalibration reports whether a player with the given completed-match
// count still receives the calibration K factor.
func (p Params) InCalibration(completedMatches int) bool {
	return completedMatches < p.CalibrationMatches
}

// TeamAverage returns the rounded mean of a team's MMR snapshots.
// An empty team yields the configured default.
func (p Params) TeamAverage(mmrs []int) int {
	if len(mmrs) == 0 {
		return p.DefaultMMR
	}
	sum := 0
	for _, mmr := range mmrs {
		sum += mmr
	}
	return int(math.Round(float64(sum) / float64(len(mmrs))))
}
