package handler

import (
	"net/http"
	"strconv"
)

// Page sizes for conversation and call-log listings. Chat clients page
// backwards through history one screenful at a time, so the default stays
// small.
const (
	DefaultLimit = 30
	MaxLimit     = 100
)

type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset from the query string. Missing or
// unusable values fall back to the defaults; an oversized limit is capped
// rather than rejected.
func ParsePagination(r *http.Request) PaginationParams {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	if offset < 0 {
		offset = 0
	}

	return PaginationParams{Limit: limit, Offset: offset}
}
