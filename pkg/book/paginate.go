package book

// Page is one window of a larger result set.
type Page[T any] struct {
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	PerPage int  `json:"perPage"`
	HasNext bool `json:"hasNext"`
	Records []T  `json:"records"`
}

// Paginate slices items to the 1-indexed page of size perPage, clamped to the
// sequence bounds. Pages past the end yield an empty slice, not an error.
func Paginate[T any](items []T, page, perPage int) Page[T] {
	if page < 1 {
		page = 1
	}
	out := Page[T]{
		Total:   len(items),
		Page:    page,
		PerPage: perPage,
		Records: []T{},
	}
	if perPage <= 0 {
		return out
	}

	lo := (page - 1) * perPage
	if lo >= len(items) {
		return out
	}
	hi := lo + perPage
	if hi > len(items) {
		hi = len(items)
	}
	out.Records = items[lo:hi]
	out.HasNext = hi < len(items)
	return out
}
