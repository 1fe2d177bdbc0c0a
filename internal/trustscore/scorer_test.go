package trustscore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"vantage/internal/models"
)

func TestScorer_Score(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	scorer := NewScorer()
	scorer.now = func() time.Time { return now }

	tests := []struct {
		name      string
		signals   models.TrustSignals
		score     int
		trustCost float64
		factors   models.Factors
	}{
		{
			name:      "new user only earns the neutral factors",
			signals:   models.TrustSignals{},
			score:     67,
			trustCost: 200,
			factors: models.Factors{
				FactorIdentity: 0, FactorActivity: 0, FactorTenure: 0,
				FactorCompliance: 0.5, FactorFeedback: 0.5,
			},
		},
		{
			name: "established user saturates every factor",
			signals: models.TrustSignals{
				IdentityVerified: true,
				MemberSince:      now.AddDate(-2, 0, 0),
				ItemsListed:      30,
				ComplianceChecks: 2,
				CompliancePassed: 2,
				Reviews:          4,
				AverageRating:    5,
			},
			score:     100,
			trustCost: 1000,
			factors: models.Factors{
				FactorIdentity: 1, FactorActivity: 1, FactorTenure: 1,
				FactorCompliance: 1, FactorFeedback: 1,
			},
		},
		{
			name: "partial signals",
			signals: models.TrustSignals{
				IdentityVerified: true,
				MemberSince:      now.Add(-tenureSaturation / 2),
				ItemsListed:      5,
				Purchases:        5,
				ComplianceChecks: 4,
				CompliancePassed: 1,
				Reviews:          2,
				AverageRating:    4,
			},
			// 0.25 + 0.2*0.5 + 0.2*0.5 + 0.2*0.25 + 0.15*0.8 = 0.62
			score:     85,
			trustCost: 610,
			factors: models.Factors{
				FactorIdentity: 1, FactorActivity: 0.5, FactorTenure: 0.5,
				FactorCompliance: 0.25, FactorFeedback: 0.8,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := tt.signals
			result := scorer.Score(&sig)

			assert.Equal(t, tt.score, result.Score)
			assert.Equal(t, tt.trustCost, result.TrustCost)
			assert.Equal(t, tt.factors, result.Factors)
			assert.GreaterOrEqual(t, result.Score, minScore)
			assert.LessOrEqual(t, result.Score, maxScore)
		})
	}
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 0.0, ratio(5, 0))
	assert.Equal(t, 0.0, ratio(-1, 10))
	assert.Equal(t, 0.5, ratio(5, 10))
	assert.Equal(t, 1.0, ratio(50, 10))
}
