package shared

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata. Non-positive page or perPage
// fall back to 1 and 20.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	if total < 0 {
		total = 0
	}
	totalPages := (total + perPage - 1) / perPage
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset is the number of rows before the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Exhausted reports whether the current page starts past the last row.
func (p Pagination) Exhausted() bool {
	return p.Offset() >= p.Total
}
