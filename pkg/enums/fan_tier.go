package enums

import "fmt"

// FanTier is a discrete rank derived from a user's aggregate holding value.
type FanTier int

const (
	FanTierContender FanTier = 1
	FanTierBronze    FanTier = 2
	FanTierSilver    FanTier = 3
	FanTierChampion  FanTier = 4
)

// Minimum aggregate holding value, in minor currency units, for each tier.
// Bands are ascending and non-overlapping.
const (
	fanTierBronzeMinCents   = 50_000
	fanTierSilverMinCents   = 250_000
	fanTierChampionMinCents = 1_000_000
)

// String implements fmt.Stringer.
func (f FanTier) String() string {
	return fmt.Sprintf("%d", int(f))
}

// IsValid reports whether the value is a known FanTier.
func (f FanTier) IsValid() bool {
	return f >= FanTierContender && f <= FanTierChampion
}

// DeriveFanTier maps an aggregate holding value to its tier.
func DeriveFanTier(fanValueCents int64) FanTier {
	switch {
	case fanValueCents >= fanTierChampionMinCents:
		return FanTierChampion
	case fanValueCents >= fanTierSilverMinCents:
		return FanTierSilver
	case fanValueCents >= fanTierBronzeMinCents:
		return FanTierBronze
	default:
		return FanTierContender
	}
}
