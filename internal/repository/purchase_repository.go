package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vantage/internal/database"
	"vantage/internal/models"
)

// PurchaseRepository handles purchase database operations
type PurchaseRepository struct {
	*database.Repository
}

// NewPurchaseRepository creates a new purchase repository
func NewPurchaseRepository(db *database.Database, logger *zap.Logger) *PurchaseRepository {
	return &PurchaseRepository{
		Repository: database.NewRepository(db, logger),
	}
}

// CreateTx inserts a purchase inside tx
func (r *PurchaseRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, p *models.MarketplacePurchase) error {
	query := `
		INSERT INTO marketplace_purchases (
			id, item_id, buyer_id, amount, currency, status, purchased_at, license_key, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.ExecContext(ctx, query,
		p.ID, p.ItemID, p.BuyerID, p.Amount, p.Currency, p.Status, p.PurchasedAt, p.LicenseKey, p.ExpiresAt)
	if err != nil {
		return errors.Wrap(err, "failed to create purchase")
	}
	return nil
}

// ListByBuyer returns a buyer's purchases, newest first, and their total count
func (r *PurchaseRepository) ListByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]models.MarketplacePurchase, int64, error) {
	purchases := []models.MarketplacePurchase{}
	query := `
		SELECT id, item_id, buyer_id, amount, currency, status, purchased_at, license_key, expires_at
		FROM marketplace_purchases
		WHERE buyer_id = $1
		ORDER BY purchased_at DESC
		LIMIT $2 OFFSET $3`

	if err := r.DB().SelectContext(ctx, &purchases, query, buyerID, limit, offset); err != nil {
		return nil, 0, errors.Wrap(err, "failed to get purchases")
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM marketplace_purchases WHERE buyer_id = $1`
	if err := r.DB().GetContext(ctx, &total, countQuery, buyerID); err != nil {
		return nil, 0, errors.Wrap(err, "failed to get purchases count")
	}

	return purchases, total, nil
}

// SalesTotals holds revenue and sale counts over completed purchases
type SalesTotals struct {
	TotalRevenue float64 `db:"total_revenue"`
	TotalSales   int64   `db:"total_sales"`
}

// Totals sums completed purchases
func (r *PurchaseRepository) Totals(ctx context.Context) (*SalesTotals, error) {
	var totals SalesTotals
	query := `
		SELECT COALESCE(SUM(amount), 0)::float8 AS total_revenue, COUNT(*) AS total_sales
		FROM marketplace_purchases
		WHERE status = 'completed'`

	if err := r.DB().GetContext(ctx, &totals, query); err != nil {
		return nil, errors.Wrap(err, "failed to get sales totals")
	}
	return &totals, nil
}

// Recent returns the latest purchases joined with item titles
func (r *PurchaseRepository) Recent(ctx context.Context, limit int) ([]models.RecentSale, error) {
	sales := []models.RecentSale{}
	query := `
		SELECT p.id AS purchase_id, p.item_id, i.title AS item_title, p.buyer_id,
			p.amount, p.currency, p.purchased_at
		FROM marketplace_purchases p
		JOIN marketplace_items i ON i.id = p.item_id
		ORDER BY p.purchased_at DESC
		LIMIT $1`

	if err := r.DB().SelectContext(ctx, &sales, query, limit); err != nil {
		return nil, errors.Wrap(err, "failed to get recent sales")
	}
	return sales, nil
}
