package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vantage/internal/apperrors"
	"vantage/internal/database"
	"vantage/internal/models"
)

const itemColumns = `
		i.id, i.creator_id, i.title, i.description, i.type, i.price, i.currency, i.status,
		i.license_type, i.revenue_share_percentage, i.download_url, i.preview_url, i.tags,
		i.created_at, i.updated_at, i.sales_count,
		COALESCE(r.average_rating, 0) AS average_rating,
		COALESCE(r.review_count, 0) AS review_count,
		u.username AS creator_username`

const itemJoins = `
	FROM marketplace_items i
	LEFT JOIN (
		SELECT item_id, AVG(rating)::float8 AS average_rating, COUNT(*) AS review_count
		FROM marketplace_reviews
		GROUP BY item_id
	) r ON r.item_id = i.id
	LEFT JOIN users u ON u.id = i.creator_id`

// ItemRepository handles marketplace item database operations
type ItemRepository struct {
	*database.Repository
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.Database, logger *zap.Logger) *ItemRepository {
	return &ItemRepository{
		Repository: database.NewRepository(db, logger),
	}
}

func itemWhere(filter *models.ItemFilter) *whereBuilder {
	w := &whereBuilder{}
	if filter == nil {
		return w
	}
	if filter.CreatorID != nil {
		w.add("i.creator_id = $%d", *filter.CreatorID)
	}
	if filter.Type != nil {
		w.add("i.type = $%d", string(*filter.Type))
	}
	if filter.Status != nil {
		w.add("i.status = $%d", string(*filter.Status))
	}
	if len(filter.Tags) > 0 {
		w.add("i.tags && $%d", pq.StringArray(filter.Tags))
	}
	if filter.MinPrice != nil {
		w.add("i.price >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		w.add("i.price <= $%d", *filter.MaxPrice)
	}
	return w
}

// List returns a page of items and the total under the same predicates
func (r *ItemRepository) List(ctx context.Context, filter *models.ItemFilter) ([]models.MarketplaceItem, int64, error) {
	w := itemWhere(filter)
	where := w.clause()

	limit, offset := database.DefaultPageLimit, 0
	if filter != nil {
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		offset = filter.Offset
	}

	dataQuery := fmt.Sprintf(`SELECT %s %s%s
	ORDER BY i.created_at DESC
	LIMIT $%d OFFSET $%d`, itemColumns, itemJoins, where, len(w.args)+1, len(w.args)+2)

	args := append(append([]interface{}{}, w.args...), limit, offset)

	items := []models.MarketplaceItem{}
	if err := r.DB().SelectContext(ctx, &items, dataQuery, args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to get marketplace items")
	}

	countQuery := "SELECT COUNT(*) FROM marketplace_items i" + where
	var total int64
	if err := r.DB().GetContext(ctx, &total, countQuery, w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "failed to get marketplace items count")
	}

	return items, total, nil
}

// GetByID retrieves an item with its read-model aggregates
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*models.MarketplaceItem, error) {
	var item models.MarketplaceItem
	query := fmt.Sprintf("SELECT %s %s\n\tWHERE i.id = $1", itemColumns, itemJoins)

	err := r.DB().GetContext(ctx, &item, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrItemNotFound
		}
		return nil, errors.Wrap(err, "failed to get marketplace item")
	}

	return &item, nil
}

// CreateTx inserts an item inside tx
func (r *ItemRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, item *models.MarketplaceItem) error {
	query := `
		INSERT INTO marketplace_items (
			id, creator_id, title, description, type, price, currency, status, license_type,
			revenue_share_percentage, download_url, preview_url, tags, sales_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := tx.ExecContext(ctx, query,
		item.ID, item.CreatorID, item.Title, item.Description, item.Type, item.Price, item.Currency,
		item.Status, item.LicenseType, item.RevenueSharePercentage, item.DownloadURL, item.PreviewURL,
		item.Tags, item.SalesCount, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create marketplace item")
	}
	return nil
}

// GetActiveTx fetches an item only if it is currently purchasable. It returns
// nil when the item is missing or not active.
func (r *ItemRepository) GetActiveTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.MarketplaceItem, error) {
	var item models.MarketplaceItem
	query := `
		SELECT id, creator_id, title, description, type, price, currency, status, license_type,
			revenue_share_percentage, download_url, preview_url, tags, sales_count, created_at, updated_at
		FROM marketplace_items
		WHERE id = $1 AND status = $2`

	err := tx.GetContext(ctx, &item, query, id, models.ItemStatusActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get purchasable item")
	}
	return &item, nil
}

// IncrementSalesTx bumps the item's sales counter inside tx
func (r *ItemRepository) IncrementSalesTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	query := `UPDATE marketplace_items SET sales_count = sales_count + 1, updated_at = NOW() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return errors.Wrap(err, "failed to increment sales count")
	}
	return nil
}

// Update applies a partial update and returns the refreshed item
func (r *ItemRepository) Update(ctx context.Context, id string, req *models.UpdateItemRequest) (*models.MarketplaceItem, error) {
	s := &setBuilder{}
	if req.Title != nil {
		s.set("title", *req.Title)
	}
	if req.Description != nil {
		s.set("description", *req.Description)
	}
	if req.Price != nil {
		s.set("price", *req.Price)
	}
	if req.Currency != nil {
		s.set("currency", *req.Currency)
	}
	if req.Status != nil {
		s.set("status", string(*req.Status))
	}
	if req.LicenseType != nil {
		s.set("license_type", string(*req.LicenseType))
	}
	if req.RevenueSharePercentage != nil {
		s.set("revenue_share_percentage", *req.RevenueSharePercentage)
	}
	if req.DownloadURL != nil {
		s.set("download_url", *req.DownloadURL)
	}
	if req.PreviewURL != nil {
		s.set("preview_url", *req.PreviewURL)
	}
	if req.Tags != nil {
		s.set("tags", pq.StringArray(*req.Tags))
	}
	s.raw("updated_at = NOW()")

	args := append(s.args, id)
	query := fmt.Sprintf("UPDATE marketplace_items SET %s WHERE id = $%d", s.clause(), len(args))

	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update marketplace item")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get affected rows")
	}
	if rows == 0 {
		return nil, apperrors.ErrItemNotFound
	}

	return r.GetByID(ctx, id)
}

// CreateReview stores a review for an existing item
func (r *ItemRepository) CreateReview(ctx context.Context, review *models.Review) error {
	query := `
		INSERT INTO marketplace_reviews (id, item_id, reviewer_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.DB().ExecContext(ctx, query,
		review.ID, review.ItemID, review.ReviewerID, review.Rating, review.Comment, review.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create review")
	}
	return nil
}

// ItemCounts holds listing totals
type ItemCounts struct {
	TotalItems  int64 `db:"total_items"`
	ActiveItems int64 `db:"active_items"`
}

// CountItems returns total and active listing counts
func (r *ItemRepository) CountItems(ctx context.Context) (*ItemCounts, error) {
	var counts ItemCounts
	query := `
		SELECT COUNT(*) AS total_items,
			COUNT(*) FILTER (WHERE status = 'active') AS active_items
		FROM marketplace_items`

	if err := r.DB().GetContext(ctx, &counts, query); err != nil {
		return nil, errors.Wrap(err, "failed to count marketplace items")
	}
	return &counts, nil
}

// AverageRating returns the mean rating across all reviews, 0 when there are none
func (r *ItemRepository) AverageRating(ctx context.Context) (float64, error) {
	var avg float64
	query := `SELECT COALESCE(AVG(rating), 0)::float8 FROM marketplace_reviews`
	if err := r.DB().GetContext(ctx, &avg, query); err != nil {
		return 0, errors.Wrap(err, "failed to get average rating")
	}
	return avg, nil
}

// TopCategories returns item types ordered by sales
func (r *ItemRepository) TopCategories(ctx context.Context, limit int) ([]models.CategoryStat, error) {
	stats := []models.CategoryStat{}
	query := `
		SELECT type, COUNT(*) AS item_count, COALESCE(SUM(sales_count), 0) AS sales
		FROM marketplace_items
		GROUP BY type
		ORDER BY sales DESC, item_count DESC
		LIMIT $1`

	if err := r.DB().SelectContext(ctx, &stats, query, limit); err != nil {
		return nil, errors.Wrap(err, "failed to get top categories")
	}
	return stats, nil
}
