package models

import (
	"time"

	"github.com/lib/pq"
)

// ItemType categorises a marketplace listing
type ItemType string

const (
	ItemTypeWidget      ItemType = "widget"
	ItemTypeBadge       ItemType = "badge"
	ItemTypeIntegration ItemType = "integration"
	ItemTypeTemplate    ItemType = "template"
)

// ItemStatus is the listing lifecycle state
type ItemStatus string

const (
	ItemStatusPending  ItemStatus = "pending"
	ItemStatusApproved ItemStatus = "approved"
	ItemStatusRejected ItemStatus = "rejected"
	ItemStatusActive   ItemStatus = "active"
	ItemStatusInactive ItemStatus = "inactive"
)

// LicenseType determines license validity for purchases
type LicenseType string

const (
	LicenseStandard  LicenseType = "standard"
	LicensePremium   LicenseType = "premium"
	LicenseExclusive LicenseType = "exclusive"
)

// PurchaseStatus is the state of a purchase record
type PurchaseStatus string

const (
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseRefunded  PurchaseStatus = "refunded"
)

// ComplianceStatus is the outcome of a compliance check
type ComplianceStatus string

const (
	CompliancePending ComplianceStatus = "pending"
	CompliancePassed  ComplianceStatus = "passed"
	ComplianceFailed  ComplianceStatus = "failed"
	ComplianceWaived  ComplianceStatus = "waived"
)

// MarketplaceItem represents a listing, including read-model aggregates
type MarketplaceItem struct {
	ID                     string         `json:"id" db:"id"`
	CreatorID              string         `json:"creatorId" db:"creator_id"`
	Title                  string         `json:"title" db:"title"`
	Description            string         `json:"description" db:"description"`
	Type                   ItemType       `json:"type" db:"type"`
	Price                  float64        `json:"price" db:"price"`
	Currency               string         `json:"currency" db:"currency"`
	Status                 ItemStatus     `json:"status" db:"status"`
	LicenseType            LicenseType    `json:"licenseType" db:"license_type"`
	RevenueSharePercentage float64        `json:"revenueSharePercentage" db:"revenue_share_percentage"`
	DownloadURL            *string        `json:"downloadUrl,omitempty" db:"download_url"`
	PreviewURL             *string        `json:"previewUrl,omitempty" db:"preview_url"`
	Tags                   pq.StringArray `json:"tags" db:"tags"`
	CreatedAt              time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt              time.Time      `json:"updatedAt" db:"updated_at"`

	SalesCount      int     `json:"salesCount" db:"sales_count"`
	AverageRating   float64 `json:"averageRating" db:"average_rating"`
	ReviewCount     int     `json:"reviewCount" db:"review_count"`
	CreatorUsername *string `json:"creatorUsername,omitempty" db:"creator_username"`
}

// MarketplacePurchase is a completed purchase with its issued license
type MarketplacePurchase struct {
	ID          string         `json:"id" db:"id"`
	ItemID      string         `json:"itemId" db:"item_id"`
	BuyerID     string         `json:"buyerId" db:"buyer_id"`
	Amount      float64        `json:"amount" db:"amount"`
	Currency    string         `json:"currency" db:"currency"`
	Status      PurchaseStatus `json:"status" db:"status"`
	PurchasedAt time.Time      `json:"purchasedAt" db:"purchased_at"`
	LicenseKey  string         `json:"licenseKey" db:"license_key"`
	ExpiresAt   *time.Time     `json:"expiresAt" db:"expires_at"`
}

// ComplianceCheck is an auditable check attached to a listing
type ComplianceCheck struct {
	ID        string           `json:"id" db:"id"`
	ItemID    string           `json:"itemId" db:"item_id"`
	CheckType string           `json:"checkType" db:"check_type"`
	Status    ComplianceStatus `json:"status" db:"status"`
	Details   *string          `json:"details" db:"details"`
	Issues    pq.StringArray   `json:"issues" db:"issues"`
	CheckedBy string           `json:"checkedBy" db:"checked_by"`
	CheckedAt time.Time        `json:"checkedAt" db:"checked_at"`
}

// Review is a buyer rating for a listing
type Review struct {
	ID         string    `json:"id" db:"id"`
	ItemID     string    `json:"itemId" db:"item_id"`
	ReviewerID string    `json:"reviewerId" db:"reviewer_id"`
	Rating     int       `json:"rating" db:"rating"`
	Comment    *string   `json:"comment,omitempty" db:"comment"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// ItemFilter selects listings. Nil fields are not applied.
type ItemFilter struct {
	CreatorID *string     `json:"creatorId,omitempty"`
	Type      *ItemType   `json:"type,omitempty" validate:"omitempty,oneof=widget badge integration template"`
	Status    *ItemStatus `json:"status,omitempty" validate:"omitempty,oneof=pending approved rejected active inactive"`
	Tags      []string    `json:"tags,omitempty"`
	MinPrice  *float64    `json:"minPrice,omitempty" validate:"omitempty,gte=0"`
	MaxPrice  *float64    `json:"maxPrice,omitempty" validate:"omitempty,gte=0"`
	Limit     int         `json:"limit" validate:"gte=0,lte=100"`
	Offset    int         `json:"offset" validate:"gte=0"`
}

// ItemList is a page of listings plus the total under the same filter
type ItemList struct {
	Items []MarketplaceItem `json:"items"`
	Total int64             `json:"total"`
}

// CreateItemRequest is the input for a new listing
type CreateItemRequest struct {
	CreatorID              string      `json:"creatorId" validate:"required,max=255"`
	Title                  string      `json:"title" validate:"required,max=255"`
	Description            string      `json:"description" validate:"max=10000"`
	Type                   ItemType    `json:"type" validate:"required,oneof=widget badge integration template"`
	Price                  float64     `json:"price" validate:"gt=0"`
	Currency               string      `json:"currency" validate:"omitempty,len=3,uppercase"`
	Status                 ItemStatus  `json:"status" validate:"omitempty,oneof=pending approved rejected active inactive"`
	LicenseType            LicenseType `json:"licenseType" validate:"required,oneof=standard premium exclusive"`
	RevenueSharePercentage float64     `json:"revenueSharePercentage" validate:"gte=0,lte=100"`
	DownloadURL            *string     `json:"downloadUrl,omitempty" validate:"omitempty,url"`
	PreviewURL             *string     `json:"previewUrl,omitempty" validate:"omitempty,url"`
	Tags                   []string    `json:"tags" validate:"max=20,dive,required,max=50"`
}

// UpdateItemRequest is a partial update. Nil fields are left unchanged.
type UpdateItemRequest struct {
	Title                  *string      `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Description            *string      `json:"description,omitempty" validate:"omitempty,max=10000"`
	Price                  *float64     `json:"price,omitempty" validate:"omitempty,gt=0"`
	Currency               *string      `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
	Status                 *ItemStatus  `json:"status,omitempty" validate:"omitempty,oneof=pending approved rejected active inactive"`
	LicenseType            *LicenseType `json:"licenseType,omitempty" validate:"omitempty,oneof=standard premium exclusive"`
	RevenueSharePercentage *float64     `json:"revenueSharePercentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	DownloadURL            *string      `json:"downloadUrl,omitempty" validate:"omitempty,url"`
	PreviewURL             *string      `json:"previewUrl,omitempty" validate:"omitempty,url"`
	Tags                   *[]string    `json:"tags,omitempty" validate:"omitempty,max=20,dive,required,max=50"`
}

// Empty reports whether the patch changes nothing
func (r *UpdateItemRequest) Empty() bool {
	return r.Title == nil && r.Description == nil && r.Price == nil && r.Currency == nil &&
		r.Status == nil && r.LicenseType == nil && r.RevenueSharePercentage == nil &&
		r.DownloadURL == nil && r.PreviewURL == nil && r.Tags == nil
}

// ComplianceFilter selects compliance checks. Nil fields are not applied.
type ComplianceFilter struct {
	ItemID *string           `json:"itemId,omitempty"`
	Status *ComplianceStatus `json:"status,omitempty" validate:"omitempty,oneof=pending passed failed waived"`
}

// UpdateComplianceRequest is a partial update of a compliance check
type UpdateComplianceRequest struct {
	Status    *ComplianceStatus `json:"status,omitempty" validate:"omitempty,oneof=pending passed failed waived"`
	Details   *string           `json:"details,omitempty"`
	Issues    *[]string         `json:"issues,omitempty"`
	CheckedBy *string           `json:"checkedBy,omitempty" validate:"omitempty,max=255"`
}

// PurchaseRequest is the body of a purchase call
type PurchaseRequest struct {
	BuyerID string `json:"buyerId" validate:"required,max=255"`
}

// CreateReviewRequest is the body of a review submission
type CreateReviewRequest struct {
	ReviewerID string  `json:"reviewerId" validate:"required,max=255"`
	Rating     int     `json:"rating" validate:"required,min=1,max=5"`
	Comment    *string `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

// CategoryStat aggregates listings and sales for one item type
type CategoryStat struct {
	Type      ItemType `json:"type" db:"type"`
	ItemCount int64    `json:"itemCount" db:"item_count"`
	Sales     int64    `json:"sales" db:"sales"`
}

// RecentSale is a purchase joined with its listing title
type RecentSale struct {
	PurchaseID  string    `json:"purchaseId" db:"purchase_id"`
	ItemID      string    `json:"itemId" db:"item_id"`
	ItemTitle   string    `json:"itemTitle" db:"item_title"`
	BuyerID     string    `json:"buyerId" db:"buyer_id"`
	Amount      float64   `json:"amount" db:"amount"`
	Currency    string    `json:"currency" db:"currency"`
	PurchasedAt time.Time `json:"purchasedAt" db:"purchased_at"`
}

// MarketplaceStats summarises the marketplace
type MarketplaceStats struct {
	TotalItems    int64          `json:"totalItems"`
	ActiveItems   int64          `json:"activeItems"`
	TotalRevenue  float64        `json:"totalRevenue"`
	TotalSales    int64          `json:"totalSales"`
	AverageRating float64        `json:"averageRating"`
	TopCategories []CategoryStat `json:"topCategories"`
	RecentSales   []RecentSale   `json:"recentSales"`
}
