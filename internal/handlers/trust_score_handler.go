package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vantage/internal/apperrors"
	"vantage/internal/models"
)

// TrustScoreHandler handles HTTP requests for trust scores and quotas
type TrustScoreHandler struct {
	engine TrustScoreService
	logger *zap.Logger
}

// NewTrustScoreHandler creates a new trust score handler
func NewTrustScoreHandler(engine TrustScoreService, logger *zap.Logger) *TrustScoreHandler {
	return &TrustScoreHandler{
		engine: engine,
		logger: logger.Named("trust_score_handler"),
	}
}

// queryRequest reads userId and tier from the query string
func queryRequest(c *gin.Context) models.TrustScoreRequest {
	return models.TrustScoreRequest{
		UserID: c.Query("userId"),
		Tier:   models.Tier(c.Query("tier")),
	}
}

// GetTrustScore returns the stored score with a quota snapshot
func (h *TrustScoreHandler) GetTrustScore(c *gin.Context) {
	var req models.TrustScoreRequest
	if !bindJSON(c, &req) {
		return
	}

	record, err := h.engine.GetTrustScore(c.Request.Context(), req.UserID, req.Tier)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if record == nil {
		_ = c.Error(apperrors.ErrTrustScoreNotFound)
		return
	}

	c.JSON(http.StatusOK, record)
}

// CalculateTrustScore charges the tier cost and accepts a recalculation
func (h *TrustScoreHandler) CalculateTrustScore(c *gin.Context) {
	var req models.TrustScoreRequest
	if !bindJSON(c, &req) {
		return
	}

	calc, err := h.engine.CalculateTrustScore(c.Request.Context(), req.UserID, req.Tier)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, calc)
}

// GetCalculation returns the status of a calculation request
func (h *TrustScoreHandler) GetCalculation(c *gin.Context) {
	calc, err := h.engine.GetCalculationRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, calc)
}

// CheckQuota reports whether the user may request a calculation
func (h *TrustScoreHandler) CheckQuota(c *gin.Context) {
	req := queryRequest(c)
	check, err := h.engine.CheckCalculationQuota(c.Request.Context(), req.UserID, req.Tier)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, check)
}

// ProvisionQuota creates the user's ledger if it does not exist
func (h *TrustScoreHandler) ProvisionQuota(c *gin.Context) {
	var req models.TrustScoreRequest
	if !bindJSON(c, &req) {
		return
	}

	status, err := h.engine.ProvisionQuota(c.Request.Context(), req.UserID, req.Tier)
	if err != nil {
		_ = c.Error(err)
		return
	}

	code := http.StatusOK
	if status.Created {
		code = http.StatusCreated
	}
	c.JSON(code, status)
}

// GetHistory returns a page of the user's score history
func (h *TrustScoreHandler) GetHistory(c *gin.Context) {
	req := queryRequest(c)
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	page, err := h.engine.GetTrustScoreHistory(c.Request.Context(), req.UserID, req.Tier, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, page)
}
