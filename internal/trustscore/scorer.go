package trustscore

import (
	"math"
	"time"

	"vantage/internal/models"
)

// Factor names
const (
	FactorIdentity   = "identity"
	FactorActivity   = "activity"
	FactorTenure     = "tenure"
	FactorCompliance = "compliance"
	FactorFeedback   = "feedback"
)

const (
	minScore = 60
	maxScore = 100

	// trust cost scale: each factor contributes up to this many points
	trustCostPerFactor = 200

	activitySaturation = 20
	tenureSaturation   = 365 * 24 * time.Hour
	neutralFactor      = 0.5
)

var defaultWeights = map[string]float64{
	FactorIdentity:   0.25,
	FactorActivity:   0.20,
	FactorTenure:     0.20,
	FactorCompliance: 0.20,
	FactorFeedback:   0.15,
}

// Result is the outcome of scoring one user
type Result struct {
	Score     int
	TrustCost float64
	Factors   models.Factors
}

// Scorer turns trust signals into a score, a trust cost and a factor breakdown
type Scorer struct {
	weights map[string]float64
	now     func() time.Time
}

// NewScorer creates a scorer with the default factor weights
func NewScorer() *Scorer {
	return &Scorer{weights: defaultWeights, now: time.Now}
}

// Score computes the result for sig. score = clamp(60 + round(40 * weighted), 60, 100);
// trust cost = round(sum(factor) * 200) on a 0-1000 scale.
func (s *Scorer) Score(sig *models.TrustSignals) Result {
	factors := s.factors(sig)

	weighted, sum := 0.0, 0.0
	for name, value := range factors {
		weighted += s.weights[name] * value
		sum += value
	}

	score := minScore + int(math.Round(float64(maxScore-minScore)*weighted))
	if score < minScore {
		score = minScore
	}
	if score > maxScore {
		score = maxScore
	}

	return Result{
		Score:     score,
		TrustCost: math.Round(sum * trustCostPerFactor),
		Factors:   factors,
	}
}

func (s *Scorer) factors(sig *models.TrustSignals) models.Factors {
	identity := 0.0
	if sig.IdentityVerified {
		identity = 1
	}

	activity := ratio(float64(sig.ItemsListed+sig.Purchases), activitySaturation)

	tenure := 0.0
	if !sig.MemberSince.IsZero() {
		tenure = ratio(float64(s.now().Sub(sig.MemberSince)), float64(tenureSaturation))
	}

	compliance := neutralFactor
	if sig.ComplianceChecks > 0 {
		compliance = ratio(float64(sig.CompliancePassed), float64(sig.ComplianceChecks))
	}

	feedback := neutralFactor
	if sig.Reviews > 0 {
		feedback = ratio(sig.AverageRating, 5)
	}

	return models.Factors{
		FactorIdentity:   round2(identity),
		FactorActivity:   round2(activity),
		FactorTenure:     round2(tenure),
		FactorCompliance: round2(compliance),
		FactorFeedback:   round2(feedback),
	}
}

// ratio returns n/d clamped to [0,1]
func ratio(n, d float64) float64 {
	if d <= 0 || n <= 0 {
		return 0
	}
	return math.Min(1, n/d)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
