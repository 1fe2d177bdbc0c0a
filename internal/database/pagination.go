package database

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page is a 1-based page request
type Page struct {
	Page  int
	Limit int
}

// NewPage normalises page and limit, applying defaults for out-of-range values
func NewPage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Page: page, Limit: limit}
}

// Offset returns the row offset of the page
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pagination describes the position of a page within a result set
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// PaginatedResult represents a paginated list response
type PaginatedResult struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// NewPagination computes totalPages = ceil(total/limit), hasNext = page < totalPages
// and hasPrev = page > 1
func NewPagination(page Page, total int64) Pagination {
	totalPages := 0
	if page.Limit > 0 {
		totalPages = int((total + int64(page.Limit) - 1) / int64(page.Limit))
	}
	return Pagination{
		Page:       page.Page,
		Limit:      page.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page.Page < totalPages,
		HasPrev:    page.Page > 1,
	}
}

// NewPaginatedResult creates a new paginated result
func NewPaginatedResult(data interface{}, total int64, page Page) *PaginatedResult {
	return &PaginatedResult{
		Data:       data,
		Pagination: NewPagination(page, total),
	}
}
