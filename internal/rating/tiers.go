package rating

// Tier is a declared rank tier captured from the player on first join.
type Tier string

const (
	TierBronze      Tier = "bronze"
	TierSilver      Tier = "silver"
	TierGold        Tier = "gold"
	TierPlatinum    Tier = "platinum"
	TierDiamond     Tier = "diamond"
	TierMaster      Tier = "master"
	TierGrandmaster Tier = "grandmaster"
	TierChampion    Tier = "champion"
)

// Tiers lists the eight tiers in ascending order.
var Tiers = []Tier{
	TierBronze, TierSilver, TierGold, TierPlatinum,
	TierDiamond, TierMaster, TierGrandmaster, TierChampion,
}

var starterMMR = map[Tier]int{
	TierBronze:      1500,
	TierSilver:      2000,
	TierGold:        2300,
	TierPlatinum:    2600,
	TierDiamond:     2900,
	TierMaster:      3200,
	TierGrandmaster: 3600,
	TierChampion:    4000,
}

// ValidTier reports whether the given string names a known tier.
func ValidTier(raw string) bool {
	_, ok := starterMMR[Tier(raw)]
	return ok
}

// StarterMMR returns the seed rating for a declared tier. Unknown tiers
// fall back to the configured default.
func (p Params) StarterMMR(tier Tier) int {
	if mmr, ok := starterMMR[tier]; ok {
		return p.Clamp(mmr)
	}
	return p.DefaultMMR
}
