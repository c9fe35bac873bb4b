package api

import (
	"net/url"
	"strconv"
)

const (
	defaultPage    = 1
	defaultPerPage = 25
	maxPerPage     = 100
)

// PaginationParams is a validated page request for incident listings.
type PaginationParams struct {
	Page    int
	PerPage int
}

// PaginationMeta contains pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedResponse wraps a list response with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// ParsePagination reads page and per_page from q. Missing or non-positive
// values fall back to page 1 of 25; per_page is capped at 100.
func ParsePagination(q url.Values) PaginationParams {
	return PaginationParams{
		Page:    positiveInt(q.Get("page"), defaultPage),
		PerPage: min(positiveInt(q.Get("per_page"), defaultPerPage), maxPerPage),
	}
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// Offset returns the number of rows skipped before this page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages returns how many pages total rows span.
func (p PaginationParams) TotalPages(total int64) int {
	if p.PerPage <= 0 || total <= 0 {
		return 0
	}
	per := int64(p.PerPage)
	return int((total + per - 1) / per)
}

// Meta builds the pagination block for a listing of total rows.
func (p PaginationParams) Meta(total int64) PaginationMeta {
	return PaginationMeta{
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      total,
		TotalPages: p.TotalPages(total),
	}
}

// NewPaginatedResponse wraps one page of data.
func NewPaginatedResponse(data interface{}, p PaginationParams, total int64) PaginatedResponse {
	return PaginatedResponse{Data: data, Pagination: p.Meta(total)}
}
