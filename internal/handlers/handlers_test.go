package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vantage/internal/apperrors"
	"vantage/internal/database"
	"vantage/internal/middleware"
	"vantage/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockEngine struct{ mock.Mock }

func (m *mockEngine) GetTrustScore(ctx context.Context, userID string, tier models.Tier) (*models.TrustScoreRecord, error) {
	args := m.Called(ctx, userID, tier)
	record, _ := args.Get(0).(*models.TrustScoreRecord)
	return record, args.Error(1)
}

func (m *mockEngine) CalculateTrustScore(ctx context.Context, userID string, tier models.Tier) (*models.CalculationRequest, error) {
	args := m.Called(ctx, userID, tier)
	req, _ := args.Get(0).(*models.CalculationRequest)
	return req, args.Error(1)
}

func (m *mockEngine) GetCalculationRequest(ctx context.Context, id string) (*models.CalculationRequest, error) {
	args := m.Called(ctx, id)
	req, _ := args.Get(0).(*models.CalculationRequest)
	return req, args.Error(1)
}

func (m *mockEngine) CheckCalculationQuota(ctx context.Context, userID string, tier models.Tier) (*models.QuotaCheck, error) {
	args := m.Called(ctx, userID, tier)
	check, _ := args.Get(0).(*models.QuotaCheck)
	return check, args.Error(1)
}

func (m *mockEngine) ProvisionQuota(ctx context.Context, userID string, tier models.Tier) (*models.QuotaStatus, error) {
	args := m.Called(ctx, userID, tier)
	status, _ := args.Get(0).(*models.QuotaStatus)
	return status, args.Error(1)
}

func (m *mockEngine) GetTrustScoreHistory(ctx context.Context, userID string, tier models.Tier, limit, offset int) (*models.TrustScoreHistoryPage, error) {
	args := m.Called(ctx, userID, tier, limit, offset)
	page, _ := args.Get(0).(*models.TrustScoreHistoryPage)
	return page, args.Error(1)
}

type mockMarketplace struct{ mock.Mock }

func (m *mockMarketplace) ListItems(ctx context.Context, filter *models.ItemFilter) (*models.ItemList, error) {
	args := m.Called(ctx, filter)
	list, _ := args.Get(0).(*models.ItemList)
	return list, args.Error(1)
}

func (m *mockMarketplace) GetItem(ctx context.Context, id string) (*models.MarketplaceItem, error) {
	args := m.Called(ctx, id)
	item, _ := args.Get(0).(*models.MarketplaceItem)
	return item, args.Error(1)
}

func (m *mockMarketplace) CreateItem(ctx context.Context, req *models.CreateItemRequest) (*models.MarketplaceItem, error) {
	args := m.Called(ctx, req)
	item, _ := args.Get(0).(*models.MarketplaceItem)
	return item, args.Error(1)
}

func (m *mockMarketplace) UpdateItem(ctx context.Context, id string, req *models.UpdateItemRequest) (*models.MarketplaceItem, error) {
	args := m.Called(ctx, id, req)
	item, _ := args.Get(0).(*models.MarketplaceItem)
	return item, args.Error(1)
}

func (m *mockMarketplace) Purchase(ctx context.Context, itemID string, req *models.PurchaseRequest) (*models.MarketplacePurchase, error) {
	args := m.Called(ctx, itemID, req)
	p, _ := args.Get(0).(*models.MarketplacePurchase)
	return p, args.Error(1)
}

func (m *mockMarketplace) ListPurchases(ctx context.Context, buyerID string, limit, offset int) ([]models.MarketplacePurchase, int64, error) {
	args := m.Called(ctx, buyerID, limit, offset)
	purchases, _ := args.Get(0).([]models.MarketplacePurchase)
	return purchases, args.Get(1).(int64), args.Error(2)
}

func (m *mockMarketplace) CreateReview(ctx context.Context, itemID string, req *models.CreateReviewRequest) (*models.Review, error) {
	args := m.Called(ctx, itemID, req)
	review, _ := args.Get(0).(*models.Review)
	return review, args.Error(1)
}

func (m *mockMarketplace) ListComplianceChecks(ctx context.Context, filter *models.ComplianceFilter) ([]models.ComplianceCheck, error) {
	args := m.Called(ctx, filter)
	checks, _ := args.Get(0).([]models.ComplianceCheck)
	return checks, args.Error(1)
}

func (m *mockMarketplace) UpdateComplianceCheck(ctx context.Context, id string, req *models.UpdateComplianceRequest) (*models.ComplianceCheck, error) {
	args := m.Called(ctx, id, req)
	check, _ := args.Get(0).(*models.ComplianceCheck)
	return check, args.Error(1)
}

func (m *mockMarketplace) Stats(ctx context.Context) (*models.MarketplaceStats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*models.MarketplaceStats)
	return stats, args.Error(1)
}

func newTestRouter(engine *mockEngine, market *mockMarketplace) *gin.Engine {
	logger := zap.NewNop()
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(logger), middleware.ErrorHandler(logger))

	th := NewTrustScoreHandler(engine, logger)
	mh := NewMarketplaceHandler(market, logger)

	v1 := r.Group("/api/v1")
	v1.POST("/trust-score", th.GetTrustScore)
	v1.POST("/trust-score/calculate", th.CalculateTrustScore)
	v1.GET("/trust-score/calculations/:id", th.GetCalculation)
	v1.GET("/trust-score/quota", th.CheckQuota)
	v1.POST("/trust-score/quota", th.ProvisionQuota)
	v1.GET("/trust-score/history", th.GetHistory)

	v1.GET("/marketplace/items", mh.ListItems)
	v1.POST("/marketplace/items", mh.CreateItem)
	v1.GET("/marketplace/items/:id", mh.GetItem)
	v1.PATCH("/marketplace/items/:id", mh.UpdateItem)
	v1.POST("/marketplace/items/:id/purchase", mh.PurchaseItem)
	v1.GET("/marketplace/purchases", mh.ListPurchases)
	v1.PATCH("/marketplace/compliance-checks/:id", mh.UpdateComplianceCheck)
	v1.GET("/marketplace/stats", mh.Stats)
	return r
}

func do(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorBody {
	t.Helper()
	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Regexp(t, `^[A-Z_]+$`, string(resp.Error.Code))
	assert.Regexp(t, `^req_[a-z0-9]+$`, resp.Error.RequestID)
	return resp.Error
}

func TestTrustScoreHandler_GetTrustScore(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		engine := &mockEngine{}
		engine.On("GetTrustScore", mock.Anything, "user_001", models.TierBasic).
			Return(&models.TrustScoreRecord{UserID: "user_001", Tier: models.TierBasic, Score: 82, NextCalculationCost: 1}, nil)

		w := do(newTestRouter(engine, nil), http.MethodPost, "/api/v1/trust-score",
			gin.H{"userId": "user_001", "tier": "basic"})

		assert.Equal(t, http.StatusOK, w.Code)
		var record models.TrustScoreRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
		assert.Equal(t, 82, record.Score)
		assert.Equal(t, 1.0, record.NextCalculationCost)
		engine.AssertExpectations(t)
	})

	t.Run("unknown user is 404", func(t *testing.T) {
		engine := &mockEngine{}
		engine.On("GetTrustScore", mock.Anything, "ghost", models.TierPro).Return(nil, nil)

		w := do(newTestRouter(engine, nil), http.MethodPost, "/api/v1/trust-score",
			gin.H{"userId": "ghost", "tier": "pro"})

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, apperrors.CodeNotFound, errorBody(t, w).Code)
	})

	t.Run("invalid tier is 400", func(t *testing.T) {
		engine := &mockEngine{}
		engine.On("GetTrustScore", mock.Anything, "user_001", models.Tier("gold")).
			Return(nil, apperrors.Validation("tier must be one of: basic pro enterprise", nil))

		w := do(newTestRouter(engine, nil), http.MethodPost, "/api/v1/trust-score",
			gin.H{"userId": "user_001", "tier": "gold"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apperrors.CodeValidation, errorBody(t, w).Code)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		r := newTestRouter(&mockEngine{}, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/trust-score", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apperrors.CodeValidation, errorBody(t, w).Code)
	})
}

func TestTrustScoreHandler_Calculate(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		engine := &mockEngine{}
		engine.On("CalculateTrustScore", mock.Anything, "user_001", models.TierBasic).
			Return(&models.CalculationRequest{ID: "calc_1_abc", Status: models.CalculationProcessing, Cost: 1}, nil)

		w := do(newTestRouter(engine, nil), http.MethodPost, "/api/v1/trust-score/calculate",
			gin.H{"userId": "user_001", "tier": "basic"})

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Contains(t, w.Body.String(), `"calc_1_abc"`)
	})

	t.Run("quota exceeded", func(t *testing.T) {
		engine := &mockEngine{}
		engine.On("CalculateTrustScore", mock.Anything, "user_001", models.TierBasic).
			Return(nil, apperrors.QuotaExceeded(apperrors.MsgInsufficientCredits))

		w := do(newTestRouter(engine, nil), http.MethodPost, "/api/v1/trust-score/calculate",
			gin.H{"userId": "user_001", "tier": "basic"})

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		body := errorBody(t, w)
		assert.Equal(t, apperrors.CodeQuotaExceeded, body.Code)
		assert.Equal(t, apperrors.MsgInsufficientCredits, body.Message)
	})
}

func TestTrustScoreHandler_QueryEndpoints(t *testing.T) {
	engine := &mockEngine{}
	engine.On("CheckCalculationQuota", mock.Anything, "user_001", models.TierPro).
		Return(&models.QuotaCheck{Allowed: false, Message: apperrors.MsgQuotaNotFound}, nil)
	engine.On("GetTrustScoreHistory", mock.Anything, "user_001", models.TierPro, 25, 5).
		Return(&models.TrustScoreHistoryPage{Scores: []models.TrustScoreHistory{}}, nil)
	engine.On("ProvisionQuota", mock.Anything, "user_001", models.TierPro).
		Return(&models.QuotaStatus{UserID: "user_001", Created: true}, nil)
	r := newTestRouter(engine, nil)

	w := do(r, http.MethodGet, "/api/v1/trust-score/quota?userId=user_001&tier=pro", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"allowed":false,"message":"User quota not found"}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/trust-score/history?userId=user_001&tier=pro&limit=25&offset=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/v1/trust-score/history?userId=user_001&tier=pro&limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/trust-score/quota", gin.H{"userId": "user_001", "tier": "pro"})
	assert.Equal(t, http.StatusCreated, w.Code)

	engine.AssertExpectations(t)
}

func TestMarketplaceHandler_ListItems(t *testing.T) {
	market := &mockMarketplace{}
	market.On("ListItems", mock.Anything, mock.MatchedBy(func(f *models.ItemFilter) bool {
		return f.Limit == 10 && f.Offset == 10 &&
			f.Type != nil && *f.Type == models.ItemTypeWidget &&
			f.MinPrice != nil && *f.MinPrice == 5 &&
			f.MaxPrice == nil && f.CreatorID == nil &&
			assert.ObjectsAreEqual([]string{"trust", "kyc"}, f.Tags)
	})).Return(&models.ItemList{Items: []models.MarketplaceItem{{ID: "a"}}, Total: 25}, nil)

	w := do(newTestRouter(nil, market), http.MethodGet,
		"/api/v1/marketplace/items?page=2&limit=10&type=widget&minPrice=5&tags=trust,%20kyc", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data       []models.MarketplaceItem `json:"data"`
		Pagination database.Pagination      `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, database.Pagination{Page: 2, Limit: 10, Total: 25, TotalPages: 3, HasNext: true, HasPrev: true}, resp.Pagination)
	market.AssertExpectations(t)
}

func TestMarketplaceHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(m *mockMarketplace)
		method string
		path   string
		body   interface{}
		status int
		code   apperrors.Code
		msg    string
	}{
		{
			name: "trust gate",
			setup: func(m *mockMarketplace) {
				m.On("CreateItem", mock.Anything, mock.Anything).Return(nil, apperrors.ErrTrustScoreTooLow)
			},
			method: http.MethodPost, path: "/api/v1/marketplace/items",
			body:   gin.H{"creatorId": "c1", "title": "t", "type": "badge", "price": 1, "licenseType": "standard"},
			status: http.StatusForbidden, code: apperrors.CodeTrustScoreTooLow, msg: apperrors.MsgTrustScoreTooLow,
		},
		{
			name: "unavailable item",
			setup: func(m *mockMarketplace) {
				m.On("Purchase", mock.Anything, "item-1", &models.PurchaseRequest{BuyerID: "buyer_1"}).
					Return(nil, apperrors.ErrItemNotAvailable)
			},
			method: http.MethodPost, path: "/api/v1/marketplace/items/item-1/purchase",
			body:   gin.H{"buyerId": "buyer_1"},
			status: http.StatusConflict, code: apperrors.CodeItemNotAvailable, msg: apperrors.MsgItemNotAvailable,
		},
		{
			name: "unknown item on update",
			setup: func(m *mockMarketplace) {
				m.On("UpdateItem", mock.Anything, "item-1", mock.Anything).Return(nil, apperrors.ErrItemNotFound)
			},
			method: http.MethodPatch, path: "/api/v1/marketplace/items/item-1",
			body:   gin.H{"title": "new"},
			status: http.StatusNotFound, code: apperrors.CodeNotFound, msg: apperrors.MsgItemNotFound,
		},
		{
			name:   "empty patch",
			setup:  func(m *mockMarketplace) {},
			method: http.MethodPatch, path: "/api/v1/marketplace/items/item-1",
			body:   gin.H{},
			status: http.StatusBadRequest, code: apperrors.CodeValidation,
		},
		{
			name: "unknown compliance check",
			setup: func(m *mockMarketplace) {
				m.On("UpdateComplianceCheck", mock.Anything, "c-1", mock.Anything).Return(nil, apperrors.ErrComplianceNotFound)
			},
			method: http.MethodPatch, path: "/api/v1/marketplace/compliance-checks/c-1",
			body:   gin.H{"status": "passed"},
			status: http.StatusNotFound, code: apperrors.CodeNotFound, msg: apperrors.MsgComplianceNotFound,
		},
		{
			name: "database failure",
			setup: func(m *mockMarketplace) {
				m.On("Stats", mock.Anything).Return(nil, errors.New("pq: connection refused"))
			},
			method: http.MethodGet, path: "/api/v1/marketplace/stats",
			status: http.StatusInternalServerError, code: apperrors.CodeInternal, msg: apperrors.MsgInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			market := &mockMarketplace{}
			tt.setup(market)

			w := do(newTestRouter(nil, market), tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			body := errorBody(t, w)
			assert.Equal(t, tt.code, body.Code)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, body.Message)
			}
			market.AssertExpectations(t)
		})
	}
}

func TestMarketplaceHandler_Purchase(t *testing.T) {
	market := &mockMarketplace{}
	market.On("Purchase", mock.Anything, "item-1", &models.PurchaseRequest{BuyerID: "buyer_1"}).
		Return(&models.MarketplacePurchase{ID: "p1", Amount: 29.99, Currency: "USD", Status: models.PurchaseCompleted, LicenseKey: "VNT-1-ABCD1234"}, nil)

	w := do(newTestRouter(nil, market), http.MethodPost, "/api/v1/marketplace/items/item-1/purchase", gin.H{"buyerId": "buyer_1"})
	assert.Equal(t, http.StatusCreated, w.Code)

	var p models.MarketplacePurchase
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 29.99, p.Amount)
	assert.Equal(t, models.PurchaseCompleted, p.Status)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		redis  error
		status int
	}{
		{"all dependencies up", nil, http.StatusOK},
		{"redis down", errors.New("dial tcp: refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(map[string]HealthCheck{
				"postgres": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return tt.redis },
			}, "test", zap.NewNop())

			r := gin.New()
			r.GET("/health", h.Health)
			w := do(r, http.MethodGet, "/health", nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
