package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vantage/internal/database"
	"vantage/internal/models"
)

// TrustScoreRepository persists scores, history, quota ledgers and calculation requests
type TrustScoreRepository struct {
	db     *database.Database
	logger *zap.Logger
}

// NewTrustScoreRepository creates a new trust score repository
func NewTrustScoreRepository(db *database.Database, logger *zap.Logger) *TrustScoreRepository {
	return &TrustScoreRepository{
		db:     db,
		logger: logger.Named("trust_score_repository"),
	}
}

// GetScore returns the stored score, or nil when the user has none at tier
func (r *TrustScoreRepository) GetScore(ctx context.Context, userID string, tier models.Tier) (*models.TrustScore, error) {
	var score models.TrustScore
	err := r.db.Gorm(ctx).
		Where("user_id = ? AND tier = ?", userID, tier).
		Take(&score).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get trust score")
	}
	return &score, nil
}

// SaveResult completes the request, upserts the score and appends history in one transaction.
// It reports false, without writing anything, when the request is no longer processing.
func (r *TrustScoreRepository) SaveResult(ctx context.Context, score *models.TrustScore, history *models.TrustScoreHistory, requestID string) (bool, error) {
	applied := false
	err := r.db.Gorm(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.CalculationRequest{}).
			Where("id = ? AND status = ?", requestID, models.CalculationProcessing).
			Updates(map[string]interface{}{
				"status":       models.CalculationCompleted,
				"completed_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return errors.Wrap(result.Error, "failed to complete calculation request")
		}
		if result.RowsAffected == 0 {
			return nil
		}

		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "tier"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "trust_cost", "factors", "calculated_at", "expires_at", "updated_at"}),
		}).Create(score).Error
		if err != nil {
			return errors.Wrap(err, "failed to upsert trust score")
		}

		if err := tx.Create(history).Error; err != nil {
			return errors.Wrap(err, "failed to insert trust score history")
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ListHistory returns a page of the user's history, newest first, with the total count
func (r *TrustScoreRepository) ListHistory(ctx context.Context, userID string, limit, offset int) ([]models.TrustScoreHistory, int64, error) {
	var total int64
	err := r.db.Gorm(ctx).Model(&models.TrustScoreHistory{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to count trust score history")
	}

	history := []models.TrustScoreHistory{}
	if total == 0 {
		return history, 0, nil
	}

	err = r.db.Gorm(ctx).
		Where("user_id = ?", userID).
		Order("calculated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&history).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list trust score history")
	}
	return history, total, nil
}

// GetLedger returns the quota ledger, or nil when the user has none at tier
func (r *TrustScoreRepository) GetLedger(ctx context.Context, userID string, tier models.Tier) (*models.QuotaLedger, error) {
	var ledger models.QuotaLedger
	err := r.db.Gorm(ctx).
		Where("user_id = ? AND tier = ?", userID, tier).
		Take(&ledger).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get quota ledger")
	}
	return &ledger, nil
}

// CreateLedger inserts the ledger unless one exists and reports whether it was created
func (r *TrustScoreRepository) CreateLedger(ctx context.Context, ledger *models.QuotaLedger) (bool, error) {
	result := r.db.Gorm(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ledger)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to create quota ledger")
	}
	return result.RowsAffected == 1, nil
}

// SubmitCalculation debits cost from the ledger and records the request atomically.
// It reports false, without writing anything, when the remaining credits do not cover cost.
func (r *TrustScoreRepository) SubmitCalculation(ctx context.Context, req *models.CalculationRequest, cost decimal.Decimal) (bool, error) {
	debited := false
	err := r.db.Gorm(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.QuotaLedger{}).
			Where("user_id = ? AND tier = ? AND credits_remaining >= ?", req.UserID, req.Tier, cost).
			Updates(map[string]interface{}{
				"credits_remaining": gorm.Expr("credits_remaining - ?", cost),
				"credits_used":      gorm.Expr("credits_used + ?", cost),
				"updated_at":        time.Now().UTC(),
			})
		if result.Error != nil {
			return errors.Wrap(result.Error, "failed to debit quota ledger")
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if err := tx.Create(req).Error; err != nil {
			return errors.Wrap(err, "failed to create calculation request")
		}
		debited = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return debited, nil
}

// RefillLedgers resets every ledger at tier to allowance and returns the number touched
func (r *TrustScoreRepository) RefillLedgers(ctx context.Context, tier models.Tier, allowance decimal.Decimal) (int64, error) {
	now := time.Now().UTC()
	result := r.db.Gorm(ctx).Model(&models.QuotaLedger{}).
		Where("tier = ?", tier).
		Updates(map[string]interface{}{
			"credits_remaining": allowance,
			"allowance":         allowance,
			"credits_used":      decimal.Zero,
			"last_refilled_at":  now,
			"updated_at":        now,
		})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to refill quota ledgers")
	}
	return result.RowsAffected, nil
}

// GetCalculation returns a calculation request, or nil when unknown
func (r *TrustScoreRepository) GetCalculation(ctx context.Context, id string) (*models.CalculationRequest, error) {
	var req models.CalculationRequest
	err := r.db.Gorm(ctx).Where("id = ?", id).Take(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get calculation request")
	}
	return &req, nil
}

// FailCalculation marks a processing request failed with reason. Resolved requests are left alone.
func (r *TrustScoreRepository) FailCalculation(ctx context.Context, id, reason string) error {
	err := r.db.Gorm(ctx).Model(&models.CalculationRequest{}).
		Where("id = ? AND status = ?", id, models.CalculationProcessing).
		Updates(map[string]interface{}{
			"status":       models.CalculationFailed,
			"completed_at": time.Now().UTC(),
			"error":        reason,
		}).Error
	if err != nil {
		return errors.Wrap(err, "failed to mark calculation request failed")
	}
	return nil
}

// ListProcessing returns requests that have not been resolved yet, oldest first
func (r *TrustScoreRepository) ListProcessing(ctx context.Context, limit int) ([]models.CalculationRequest, error) {
	reqs := []models.CalculationRequest{}
	err := r.db.Gorm(ctx).
		Where("status = ?", models.CalculationProcessing).
		Order("started_at ASC").
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list processing calculation requests")
	}
	return reqs, nil
}
