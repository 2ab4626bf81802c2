package models

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PaginationResult holds pagination metadata
type PaginationResult struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

// NewPaginationResult creates a pagination result for an already-normalized page
func NewPaginationResult(page, pageSize int, totalItems int64) PaginationResult {
	page, pageSize = NormalizePage(page, pageSize)

	totalPages := int(totalItems / int64(pageSize))
	if totalItems%int64(pageSize) > 0 {
		totalPages++
	}

	return PaginationResult{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}

// NormalizePage clamps page parameters: page >= 1, 1 <= pageSize <= 100 (default 20)
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// Offset calculates the SQL offset for a normalized page
func Offset(page, pageSize int) int {
	page, pageSize = NormalizePage(page, pageSize)
	return (page - 1) * pageSize
}
