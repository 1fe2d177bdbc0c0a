package marketplace

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"vantage/internal/apperrors"
	"vantage/internal/config"
	"vantage/internal/events"
	"vantage/internal/metrics"
	"vantage/internal/models"
	"vantage/internal/repository"
)

const systemChecker = "system"

// MinCreatorTrustCost is the pro-tier trust cost a creator needs before listing items
const MinCreatorTrustCost = 600.0

// TrustGate supplies the trust signal a creator must clear before listing
type TrustGate interface {
	CreatorTrustCost(ctx context.Context, creatorID string) (float64, error)
}

// Service implements listing, purchasing and compliance operations
type Service struct {
	items      *repository.ItemRepository
	purchases  *repository.PurchaseRepository
	compliance *repository.ComplianceRepository
	gate       TrustGate
	publisher  events.Publisher
	metrics    *metrics.Collector
	cfg        config.MarketplaceConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a marketplace service
func NewService(
	items *repository.ItemRepository,
	purchases *repository.PurchaseRepository,
	compliance *repository.ComplianceRepository,
	gate TrustGate,
	publisher events.Publisher,
	collector *metrics.Collector,
	cfg config.MarketplaceConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		items:      items,
		purchases:  purchases,
		compliance: compliance,
		gate:       gate,
		publisher:  publisher,
		metrics:    collector,
		cfg:        cfg,
		logger:     logger.Named("marketplace"),
		now:        time.Now,
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ListItems returns a filtered page of listings and the total under the same filter
func (s *Service) ListItems(ctx context.Context, filter *models.ItemFilter) (*models.ItemList, error) {
	if filter != nil {
		if err := models.Validate(filter); err != nil {
			return nil, err
		}
	}

	items, total, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &models.ItemList{Items: items, Total: total}, nil
}

// GetItem returns a listing with its aggregates
func (s *Service) GetItem(ctx context.Context, id string) (*models.MarketplaceItem, error) {
	if !validID(id) {
		return nil, apperrors.ErrItemNotFound
	}
	return s.items.GetByID(ctx, id)
}

// CreateItem lists a new item for a creator whose trust cost clears the configured minimum.
// The gate runs inside the transaction so a rejection rolls it back before anything is written.
func (s *Service) CreateItem(ctx context.Context, req *models.CreateItemRequest) (*models.MarketplaceItem, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	item := &models.MarketplaceItem{
		ID:                     uuid.New().String(),
		CreatorID:              req.CreatorID,
		Title:                  req.Title,
		Description:            req.Description,
		Type:                   req.Type,
		Price:                  req.Price,
		Currency:               req.Currency,
		Status:                 req.Status,
		LicenseType:            req.LicenseType,
		RevenueSharePercentage: req.RevenueSharePercentage,
		DownloadURL:            req.DownloadURL,
		PreviewURL:             req.PreviewURL,
		Tags:                   pq.StringArray(req.Tags),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if item.Currency == "" {
		item.Currency = "USD"
	}
	if item.Status == "" {
		item.Status = models.ItemStatusPending
	}
	if item.Tags == nil {
		item.Tags = pq.StringArray{}
	}

	err := s.items.WithTx(ctx, func(tx *sqlx.Tx) error {
		trustCost, err := s.gate.CreatorTrustCost(ctx, req.CreatorID)
		if err != nil {
			return err
		}
		if trustCost < MinCreatorTrustCost {
			s.logger.Info("Listing rejected by trust gate",
				zap.String("creator_id", req.CreatorID),
				zap.Float64("trust_cost", trustCost))
			return apperrors.ErrTrustScoreTooLow
		}

		if err := s.items.CreateTx(ctx, tx, item); err != nil {
			return err
		}

		for _, checkType := range s.cfg.DefaultComplianceChecks {
			check := &models.ComplianceCheck{
				ID:        uuid.New().String(),
				ItemID:    item.ID,
				CheckType: checkType,
				Status:    models.CompliancePending,
				Issues:    pq.StringArray{},
				CheckedBy: systemChecker,
				CheckedAt: now,
			}
			if err := s.compliance.CreateTx(ctx, tx, check); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordItemCreated(outcome(err))
		return nil, err
	}

	s.metrics.RecordItemCreated("created")
	s.publish(events.TypeItemCreated, s.publisher.ItemCreated(ctx, item))

	s.logger.Info("Marketplace item created",
		zap.String("item_id", item.ID),
		zap.String("creator_id", item.CreatorID))
	return item, nil
}

// UpdateItem applies a partial update to a listing
func (s *Service) UpdateItem(ctx context.Context, id string, req *models.UpdateItemRequest) (*models.MarketplaceItem, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, apperrors.ErrItemNotFound
	}
	return s.items.Update(ctx, id, req)
}

// Purchase buys an active item. Reading the item, recording the purchase and bumping
// the sales counter happen in one transaction.
func (s *Service) Purchase(ctx context.Context, itemID string, req *models.PurchaseRequest) (*models.MarketplacePurchase, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	var purchase *models.MarketplacePurchase
	err := s.items.WithTx(ctx, func(tx *sqlx.Tx) error {
		if !validID(itemID) {
			return apperrors.ErrItemNotAvailable
		}

		item, err := s.items.GetActiveTx(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return apperrors.ErrItemNotAvailable
		}

		now := s.now().UTC()
		key, err := newLicenseKey(now)
		if err != nil {
			return err
		}

		p := &models.MarketplacePurchase{
			ID:          uuid.New().String(),
			ItemID:      item.ID,
			BuyerID:     req.BuyerID,
			Amount:      item.Price,
			Currency:    item.Currency,
			Status:      models.PurchaseCompleted,
			PurchasedAt: now,
			LicenseKey:  key,
			ExpiresAt:   licenseExpiry(s.cfg.LicenseValidity, item.LicenseType, now),
		}
		if err := s.purchases.CreateTx(ctx, tx, p); err != nil {
			return err
		}
		if err := s.items.IncrementSalesTx(ctx, tx, item.ID); err != nil {
			return err
		}

		purchase = p
		return nil
	})
	if err != nil {
		s.metrics.RecordPurchase(outcome(err))
		return nil, err
	}

	s.metrics.RecordPurchase("completed")
	s.publish(events.TypePurchaseCompleted, s.publisher.PurchaseCompleted(ctx, purchase))

	s.logger.Info("Marketplace purchase completed",
		zap.String("purchase_id", purchase.ID),
		zap.String("item_id", purchase.ItemID),
		zap.String("buyer_id", purchase.BuyerID))
	return purchase, nil
}

// ListPurchases returns a buyer's purchases and their total
func (s *Service) ListPurchases(ctx context.Context, buyerID string, limit, offset int) ([]models.MarketplacePurchase, int64, error) {
	if buyerID == "" {
		return nil, 0, apperrors.Validation("buyerId is required", nil)
	}
	return s.purchases.ListByBuyer(ctx, buyerID, limit, offset)
}

// CreateReview records a rating for an existing listing
func (s *Service) CreateReview(ctx context.Context, itemID string, req *models.CreateReviewRequest) (*models.Review, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, err
	}

	review := &models.Review{
		ID:         uuid.New().String(),
		ItemID:     itemID,
		ReviewerID: req.ReviewerID,
		Rating:     req.Rating,
		Comment:    req.Comment,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.items.CreateReview(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

// ListComplianceChecks returns checks matching the optional item and status filters
func (s *Service) ListComplianceChecks(ctx context.Context, filter *models.ComplianceFilter) ([]models.ComplianceCheck, error) {
	if filter != nil {
		if err := models.Validate(filter); err != nil {
			return nil, err
		}
		if filter.ItemID != nil && !validID(*filter.ItemID) {
			return []models.ComplianceCheck{}, nil
		}
	}
	return s.compliance.List(ctx, filter)
}

// UpdateComplianceCheck applies a partial update to a compliance check
func (s *Service) UpdateComplianceCheck(ctx context.Context, id string, req *models.UpdateComplianceRequest) (*models.ComplianceCheck, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, apperrors.ErrComplianceNotFound
	}
	return s.compliance.Update(ctx, id, req)
}

func (s *Service) publish(eventType string, err error) {
	s.metrics.RecordEvent(eventType, err)
	if err != nil {
		s.logger.Warn("Failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}

// outcome labels a failed operation for metrics
func outcome(err error) string {
	if appErr, ok := apperrors.As(err); ok && appErr.Code != apperrors.CodeInternal {
		return string(appErr.Code)
	}
	return "error"
}
