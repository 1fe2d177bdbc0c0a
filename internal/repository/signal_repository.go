package repository

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vantage/internal/database"
	"vantage/internal/models"
)

// SignalRepository derives trust signals from user and marketplace activity
type SignalRepository struct {
	*database.Repository
}

// NewSignalRepository creates a new signal repository
func NewSignalRepository(db *database.Database, logger *zap.Logger) *SignalRepository {
	return &SignalRepository{
		Repository: database.NewRepository(db, logger),
	}
}

// Signals returns the user's trust signals. Users without a profile yield zero values.
func (r *SignalRepository) Signals(ctx context.Context, userID string) (*models.TrustSignals, error) {
	query := `
		SELECT
			EXISTS (SELECT 1 FROM users WHERE id = $1) AS identity_verified,
			COALESCE((SELECT created_at FROM users WHERE id = $1), NOW()) AS member_since,
			(SELECT COUNT(*) FROM marketplace_items WHERE creator_id = $1) AS items_listed,
			(SELECT COUNT(*) FROM marketplace_purchases WHERE buyer_id = $1) AS purchases,
			(SELECT COUNT(*) FROM compliance_checks c
				JOIN marketplace_items i ON i.id = c.item_id
				WHERE i.creator_id = $1) AS compliance_checks,
			(SELECT COUNT(*) FROM compliance_checks c
				JOIN marketplace_items i ON i.id = c.item_id
				WHERE i.creator_id = $1 AND c.status = 'passed') AS compliance_passed,
			(SELECT COUNT(*) FROM marketplace_reviews rv
				JOIN marketplace_items i ON i.id = rv.item_id
				WHERE i.creator_id = $1) AS reviews,
			(SELECT COALESCE(AVG(rv.rating), 0)::float8 FROM marketplace_reviews rv
				JOIN marketplace_items i ON i.id = rv.item_id
				WHERE i.creator_id = $1) AS average_rating`

	var signals models.TrustSignals
	if err := r.DB().GetContext(ctx, &signals, query, userID); err != nil {
		return nil, errors.Wrap(err, "failed to load trust signals")
	}
	return &signals, nil
}
