package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the access-token payload. InstitutionID is empty for the
// built-in admin account.
type JWTClaims struct {
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	Role          Role   `json:"role"`
	InstitutionID string `json:"institution_id,omitempty"`
	jwt.RegisteredClaims
}

// UserInfo is the public view of an account returned by auth endpoints.
type UserInfo struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Role          Role    `json:"role"`
	InstitutionID string  `json:"institution_id,omitempty"`
	ClassID       *string `json:"class_id,omitempty"`
}

// Pagination describes the page window of a list response.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewPagination computes the derived fields for a page window.
func NewPagination(page, pageSize int, total int64) *Pagination {
	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &Pagination{Page: page, PageSize: pageSize, TotalItems: total, TotalPages: pages}
}
