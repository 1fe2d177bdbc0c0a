package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vantage/internal/apperrors"
	"vantage/internal/database"
	"vantage/internal/models"
)

// MarketplaceHandler handles HTTP requests for listings, purchases and compliance checks
type MarketplaceHandler struct {
	service MarketplaceService
	logger  *zap.Logger
}

// NewMarketplaceHandler creates a new marketplace handler
func NewMarketplaceHandler(service MarketplaceService, logger *zap.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{
		service: service,
		logger:  logger.Named("marketplace_handler"),
	}
}

// page reads page and limit from the query string
func page(c *gin.Context) (database.Page, bool) {
	p, ok := queryInt(c, "page", 1)
	if !ok {
		return database.Page{}, false
	}
	l, ok := queryInt(c, "limit", database.DefaultPageLimit)
	if !ok {
		return database.Page{}, false
	}
	return database.NewPage(p, l), true
}

// ListItems returns a filtered, paginated list of listings
func (h *MarketplaceHandler) ListItems(c *gin.Context) {
	pg, ok := page(c)
	if !ok {
		return
	}
	minPrice, ok := queryFloat(c, "minPrice")
	if !ok {
		return
	}
	maxPrice, ok := queryFloat(c, "maxPrice")
	if !ok {
		return
	}

	filter := &models.ItemFilter{
		CreatorID: optionalString(c, "creatorId"),
		MinPrice:  minPrice,
		MaxPrice:  maxPrice,
		Limit:     pg.Limit,
		Offset:    pg.Offset(),
	}
	if v := c.Query("type"); v != "" {
		t := models.ItemType(v)
		filter.Type = &t
	}
	if v := c.Query("status"); v != "" {
		s := models.ItemStatus(v)
		filter.Status = &s
	}
	if v := c.Query("tags"); v != "" {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}

	list, err := h.service.ListItems(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, database.NewPaginatedResult(list.Items, list.Total, pg))
}

// GetItem returns a single listing
func (h *MarketplaceHandler) GetItem(c *gin.Context) {
	item, err := h.service.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// CreateItem lists a new item
func (h *MarketplaceHandler) CreateItem(c *gin.Context) {
	var req models.CreateItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.service.CreateItem(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// UpdateItem applies a partial update to a listing
func (h *MarketplaceHandler) UpdateItem(c *gin.Context) {
	var req models.UpdateItemRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Empty() {
		_ = c.Error(apperrors.Validation("at least one field must be provided", nil))
		return
	}

	item, err := h.service.UpdateItem(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// PurchaseItem buys an active listing
func (h *MarketplaceHandler) PurchaseItem(c *gin.Context) {
	var req models.PurchaseRequest
	if !bindJSON(c, &req) {
		return
	}

	purchase, err := h.service.Purchase(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, purchase)
}

// CreateReview rates a listing
func (h *MarketplaceHandler) CreateReview(c *gin.Context) {
	var req models.CreateReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	review, err := h.service.CreateReview(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

// ListPurchases returns a buyer's purchases, paginated
func (h *MarketplaceHandler) ListPurchases(c *gin.Context) {
	pg, ok := page(c)
	if !ok {
		return
	}

	purchases, total, err := h.service.ListPurchases(c.Request.Context(), c.Query("buyerId"), pg.Limit, pg.Offset())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, database.NewPaginatedResult(purchases, total, pg))
}

// ListComplianceChecks returns compliance checks by optional item and status
func (h *MarketplaceHandler) ListComplianceChecks(c *gin.Context) {
	filter := &models.ComplianceFilter{ItemID: optionalString(c, "itemId")}
	if v := c.Query("status"); v != "" {
		s := models.ComplianceStatus(v)
		filter.Status = &s
	}

	checks, err := h.service.ListComplianceChecks(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, checks)
}

// UpdateComplianceCheck applies a partial update to a compliance check
func (h *MarketplaceHandler) UpdateComplianceCheck(c *gin.Context) {
	var req models.UpdateComplianceRequest
	if !bindJSON(c, &req) {
		return
	}

	check, err := h.service.UpdateComplianceCheck(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, check)
}

// Stats returns marketplace totals
func (h *MarketplaceHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
