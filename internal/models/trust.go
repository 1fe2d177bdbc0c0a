package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tier is the subscription level that prices trust score operations
type Tier string

const (
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Tiers lists every supported tier
var Tiers = []Tier{TierBasic, TierPro, TierEnterprise}

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierPro, TierEnterprise:
		return true
	}
	return false
}

// CalculationStatus tracks an asynchronous score calculation
type CalculationStatus string

const (
	CalculationProcessing CalculationStatus = "processing"
	CalculationCompleted  CalculationStatus = "completed"
	CalculationFailed     CalculationStatus = "failed"
)

// Factors is the per-factor breakdown behind a score, each value in [0,1]
type Factors map[string]float64

// GormDataType stores factors as jsonb
func (Factors) GormDataType() string {
	return "jsonb"
}

func (f Factors) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (f *Factors) Scan(value interface{}) error {
	if value == nil {
		*f = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("cannot scan %T into Factors", value)
	}
}

// TrustScore is the cached score for a user at a tier
type TrustScore struct {
	UserID       string    `gorm:"primaryKey;column:user_id"`
	Tier         Tier      `gorm:"primaryKey;column:tier"`
	Score        int       `gorm:"column:score;not null"`
	TrustCost    float64   `gorm:"column:trust_cost;not null"`
	Factors      Factors   `gorm:"column:factors"`
	CalculatedAt time.Time `gorm:"column:calculated_at;not null"`
	ExpiresAt    time.Time `gorm:"column:expires_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (TrustScore) TableName() string { return "trust_scores" }

// TrustScoreHistory is an append-only record of every resolved calculation
type TrustScoreHistory struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id"`
	UserID       string    `json:"userId" gorm:"column:user_id;index"`
	Tier         Tier      `json:"tier" gorm:"column:tier"`
	Score        int       `json:"score" gorm:"column:score"`
	TrustCost    float64   `json:"trustCost" gorm:"column:trust_cost"`
	Factors      Factors   `json:"factors" gorm:"column:factors"`
	CalculatedAt time.Time `json:"calculatedAt" gorm:"column:calculated_at"`
}

func (TrustScoreHistory) TableName() string { return "trust_score_history" }

// QuotaLedger holds the remaining calculation credits for a user at a tier
type QuotaLedger struct {
	UserID           string          `gorm:"primaryKey;column:user_id"`
	Tier             Tier            `gorm:"primaryKey;column:tier"`
	CreditsRemaining decimal.Decimal `gorm:"column:credits_remaining;type:numeric(14,4);not null"`
	Allowance        decimal.Decimal `gorm:"column:allowance;type:numeric(14,4);not null"`
	CreditsUsed      decimal.Decimal `gorm:"column:credits_used;type:numeric(14,4);not null"`
	LastRefilledAt   time.Time       `gorm:"column:last_refilled_at"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
}

func (QuotaLedger) TableName() string { return "trust_quota_ledgers" }

// CalculationRequest is the descriptor returned when a recalculation is accepted
type CalculationRequest struct {
	ID            string            `json:"id" gorm:"primaryKey;column:id"`
	UserID        string            `json:"userId" gorm:"column:user_id"`
	Tier          Tier              `json:"tier" gorm:"column:tier"`
	Status        CalculationStatus `json:"status" gorm:"column:status"`
	Cost          float64           `json:"cost" gorm:"column:cost"`
	StartedAt     time.Time         `json:"startedAt" gorm:"column:started_at"`
	EstimatedTime int               `json:"estimatedTime" gorm:"column:estimated_time"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty" gorm:"column:completed_at"`
	Error         *string           `json:"error,omitempty" gorm:"column:error"`
}

func (CalculationRequest) TableName() string { return "trust_calculation_requests" }

// TrustScoreRecord is the read model returned to callers: the cached score plus a
// quota snapshot computed at read time
type TrustScoreRecord struct {
	UserID              string    `json:"userId"`
	Tier                Tier      `json:"tier"`
	Score               int       `json:"score"`
	TrustCost           float64   `json:"trustCost"`
	Factors             Factors   `json:"factors"`
	CalculatedAt        time.Time `json:"calculatedAt"`
	ExpiresAt           time.Time `json:"expiresAt"`
	CreditsRemaining    float64   `json:"creditsRemaining"`
	NextCalculationCost float64   `json:"nextCalculationCost"`
	RateLimitRemaining  int       `json:"rateLimitRemaining"`
}

// QuotaCheck is the outcome of a quota check. A denial is a normal result.
type QuotaCheck struct {
	Allowed            bool     `json:"allowed"`
	CreditsRemaining   *float64 `json:"creditsRemaining,omitempty"`
	RateLimitRemaining *int     `json:"rateLimitRemaining,omitempty"`
	Message            string   `json:"message,omitempty"`
}

// QuotaStatus describes a provisioned quota ledger
type QuotaStatus struct {
	UserID              string  `json:"userId"`
	Tier                Tier    `json:"tier"`
	Allowance           float64 `json:"allowance"`
	CreditsRemaining    float64 `json:"creditsRemaining"`
	CreditsUsed         float64 `json:"creditsUsed"`
	NextCalculationCost float64 `json:"nextCalculationCost"`
	RateLimitRemaining  int     `json:"rateLimitRemaining"`
	Created             bool    `json:"created"`
}

// TrustSignals are the raw inputs the scorer turns into factors
type TrustSignals struct {
	IdentityVerified bool      `db:"identity_verified"`
	MemberSince      time.Time `db:"member_since"`
	ItemsListed      int       `db:"items_listed"`
	Purchases        int       `db:"purchases"`
	ComplianceChecks int       `db:"compliance_checks"`
	CompliancePassed int       `db:"compliance_passed"`
	Reviews          int       `db:"reviews"`
	AverageRating    float64   `db:"average_rating"`
}

// TrustScoreHistoryPage is one page of a user's score history
type TrustScoreHistoryPage struct {
	Scores      []TrustScoreHistory `json:"scores"`
	Total       int64               `json:"total"`
	HasMore     bool                `json:"hasMore"`
	CreditsUsed float64             `json:"creditsUsed"`
}

// TrustScoreRequest is the body accepted by the trust score endpoints
type TrustScoreRequest struct {
	UserID string `json:"userId" validate:"required,max=255"`
	Tier   Tier   `json:"tier" validate:"required,oneof=basic pro enterprise"`
}
