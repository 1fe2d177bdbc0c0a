package trustscore

import (
	"context"

	"github.com/shopspring/decimal"

	"vantage/internal/models"
)

// Store persists trust scores, history, quota ledgers and calculation requests.
// Lookups return nil without error when the row does not exist. SaveResult reports
// false when the request was already resolved.
type Store interface {
	GetScore(ctx context.Context, userID string, tier models.Tier) (*models.TrustScore, error)
	SaveResult(ctx context.Context, score *models.TrustScore, history *models.TrustScoreHistory, requestID string) (bool, error)
	ListHistory(ctx context.Context, userID string, limit, offset int) ([]models.TrustScoreHistory, int64, error)

	GetLedger(ctx context.Context, userID string, tier models.Tier) (*models.QuotaLedger, error)
	CreateLedger(ctx context.Context, ledger *models.QuotaLedger) (bool, error)
	SubmitCalculation(ctx context.Context, req *models.CalculationRequest, cost decimal.Decimal) (bool, error)
	RefillLedgers(ctx context.Context, tier models.Tier, allowance decimal.Decimal) (int64, error)

	GetCalculation(ctx context.Context, id string) (*models.CalculationRequest, error)
	FailCalculation(ctx context.Context, id, reason string) error
	ListProcessing(ctx context.Context, limit int) ([]models.CalculationRequest, error)
}

// SignalSource supplies the raw inputs for scoring a user
type SignalSource interface {
	Signals(ctx context.Context, userID string) (*models.TrustSignals, error)
}
