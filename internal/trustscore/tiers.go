package trustscore

import (
	"github.com/shopspring/decimal"

	"vantage/internal/config"
	"vantage/internal/models"
)

// Credits charged per calculation. Fixed per tier.
var tierCosts = map[models.Tier]decimal.Decimal{
	models.TierBasic:      decimal.NewFromInt(1),
	models.TierPro:        decimal.RequireFromString("0.5"),
	models.TierEnterprise: decimal.RequireFromString("0.1"),
}

// Cost returns the credits charged for one calculation at tier
func Cost(tier models.Tier) decimal.Decimal {
	return tierCosts[tier]
}

// NextCalculationCost is Cost as reported to API callers
func NextCalculationCost(tier models.Tier) float64 {
	f, _ := Cost(tier).Float64()
	return f
}

// Policy is the quota policy of one tier
type Policy struct {
	Allowance         decimal.Decimal
	RequestsPerWindow int
}

// Policies maps each tier to its quota policy
type Policies map[models.Tier]Policy

// PoliciesFromConfig builds tier policies from configuration
func PoliciesFromConfig(cfg config.TrustScoreConfig) Policies {
	policies := make(Policies, len(models.Tiers))
	for _, tier := range models.Tiers {
		tc := cfg.Tiers[string(tier)]
		policies[tier] = Policy{
			Allowance:         decimal.NewFromFloat(tc.Allowance),
			RequestsPerWindow: tc.RequestsPerWindow,
		}
	}
	return policies
}
