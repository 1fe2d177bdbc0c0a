package trustscore

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"vantage/internal/models"
)

// memStore is an in-memory Store for engine and resolver tests
type memStore struct {
	mu           sync.Mutex
	scores       map[string]*models.TrustScore
	history      []models.TrustScoreHistory
	ledgers      map[string]*models.QuotaLedger
	calculations map[string]*models.CalculationRequest
	err          error
}

func newMemStore() *memStore {
	return &memStore{
		scores:       map[string]*models.TrustScore{},
		ledgers:      map[string]*models.QuotaLedger{},
		calculations: map[string]*models.CalculationRequest{},
	}
}

func storeKey(userID string, tier models.Tier) string {
	return userID + "|" + string(tier)
}

func (s *memStore) putLedger(userID string, tier models.Tier, credits string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := decimal.RequireFromString(credits)
	s.ledgers[storeKey(userID, tier)] = &models.QuotaLedger{
		UserID: userID, Tier: tier, CreditsRemaining: c, Allowance: c, CreditsUsed: decimal.Zero,
	}
}

func (s *memStore) ledger(userID string, tier models.Tier) *models.QuotaLedger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledgers[storeKey(userID, tier)]
}

func (s *memStore) putScore(score *models.TrustScore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[storeKey(score.UserID, score.Tier)] = score
}

func (s *memStore) calculation(id string) *models.CalculationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calculations[id]
}

func (s *memStore) GetScore(_ context.Context, userID string, tier models.Tier) (*models.TrustScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	score, ok := s.scores[storeKey(userID, tier)]
	if !ok {
		return nil, nil
	}
	cp := *score
	return &cp, nil
}

func (s *memStore) SaveResult(_ context.Context, score *models.TrustScore, history *models.TrustScoreHistory, requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	req, ok := s.calculations[requestID]
	if !ok || req.Status != models.CalculationProcessing {
		return false, nil
	}
	req.Status = models.CalculationCompleted
	s.scores[storeKey(score.UserID, score.Tier)] = score
	s.history = append(s.history, *history)
	return true, nil
}

func (s *memStore) ListHistory(_ context.Context, userID string, limit, offset int) ([]models.TrustScoreHistory, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mine []models.TrustScoreHistory
	for _, h := range s.history {
		if h.UserID == userID {
			mine = append(mine, h)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CalculatedAt.After(mine[j].CalculatedAt) })

	total := int64(len(mine))
	if offset >= len(mine) {
		return []models.TrustScoreHistory{}, total, nil
	}
	end := offset + limit
	if end > len(mine) {
		end = len(mine)
	}
	return mine[offset:end], total, nil
}

func (s *memStore) GetLedger(_ context.Context, userID string, tier models.Tier) (*models.QuotaLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	l, ok := s.ledgers[storeKey(userID, tier)]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (s *memStore) CreateLedger(_ context.Context, ledger *models.QuotaLedger) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey(ledger.UserID, ledger.Tier)
	if _, ok := s.ledgers[key]; ok {
		return false, nil
	}
	cp := *ledger
	s.ledgers[key] = &cp
	return true, nil
}

func (s *memStore) SubmitCalculation(_ context.Context, req *models.CalculationRequest, cost decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	l, ok := s.ledgers[storeKey(req.UserID, req.Tier)]
	if !ok || l.CreditsRemaining.LessThan(cost) {
		return false, nil
	}
	l.CreditsRemaining = l.CreditsRemaining.Sub(cost)
	l.CreditsUsed = l.CreditsUsed.Add(cost)
	cp := *req
	s.calculations[req.ID] = &cp
	return true, nil
}

func (s *memStore) RefillLedgers(_ context.Context, tier models.Tier, allowance decimal.Decimal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range s.ledgers {
		if l.Tier == tier {
			l.CreditsRemaining = allowance
			l.Allowance = allowance
			l.CreditsUsed = decimal.Zero
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetCalculation(_ context.Context, id string) (*models.CalculationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.calculations[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (s *memStore) FailCalculation(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req, ok := s.calculations[id]; ok && req.Status == models.CalculationProcessing {
		req.Status = models.CalculationFailed
		req.Error = &reason
	}
	return nil
}

func (s *memStore) ListProcessing(_ context.Context, limit int) ([]models.CalculationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CalculationRequest
	for _, req := range s.calculations {
		if req.Status == models.CalculationProcessing && len(out) < limit {
			out = append(out, *req)
		}
	}
	return out, nil
}
