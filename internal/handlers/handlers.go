package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"vantage/internal/apperrors"
	"vantage/internal/models"
)

// TrustScoreService is the trust score engine as seen by the HTTP layer
type TrustScoreService interface {
	GetTrustScore(ctx context.Context, userID string, tier models.Tier) (*models.TrustScoreRecord, error)
	CalculateTrustScore(ctx context.Context, userID string, tier models.Tier) (*models.CalculationRequest, error)
	GetCalculationRequest(ctx context.Context, id string) (*models.CalculationRequest, error)
	CheckCalculationQuota(ctx context.Context, userID string, tier models.Tier) (*models.QuotaCheck, error)
	ProvisionQuota(ctx context.Context, userID string, tier models.Tier) (*models.QuotaStatus, error)
	GetTrustScoreHistory(ctx context.Context, userID string, tier models.Tier, limit, offset int) (*models.TrustScoreHistoryPage, error)
}

// MarketplaceService is the marketplace as seen by the HTTP layer
type MarketplaceService interface {
	ListItems(ctx context.Context, filter *models.ItemFilter) (*models.ItemList, error)
	GetItem(ctx context.Context, id string) (*models.MarketplaceItem, error)
	CreateItem(ctx context.Context, req *models.CreateItemRequest) (*models.MarketplaceItem, error)
	UpdateItem(ctx context.Context, id string, req *models.UpdateItemRequest) (*models.MarketplaceItem, error)
	Purchase(ctx context.Context, itemID string, req *models.PurchaseRequest) (*models.MarketplacePurchase, error)
	ListPurchases(ctx context.Context, buyerID string, limit, offset int) ([]models.MarketplacePurchase, int64, error)
	CreateReview(ctx context.Context, itemID string, req *models.CreateReviewRequest) (*models.Review, error)
	ListComplianceChecks(ctx context.Context, filter *models.ComplianceFilter) ([]models.ComplianceCheck, error)
	UpdateComplianceCheck(ctx context.Context, id string, req *models.UpdateComplianceRequest) (*models.ComplianceCheck, error)
	Stats(ctx context.Context) (*models.MarketplaceStats, error)
}

// bindJSON decodes the body into dst and attaches a validation error on failure
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(apperrors.Validation("Invalid request payload", err))
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		_ = c.Error(apperrors.Validation(name+" must be an integer", err))
		return 0, false
	}
	return n, true
}

// queryFloat parses an optional float query parameter
func queryFloat(c *gin.Context, name string) (*float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		_ = c.Error(apperrors.Validation(name+" must be a number", err))
		return nil, false
	}
	return &f, true
}

func optionalString(c *gin.Context, name string) *string {
	if v := c.Query(name); v != "" {
		return &v
	}
	return nil
}
