package utils

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// ParsePagination reads page and limit from the query string, clamping both
// to sane values.
func ParsePagination(c *fiber.Ctx) (page, limit int) {
	page = c.QueryInt("page", defaultPage)
	limit = c.QueryInt("limit", defaultLimit)

	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func ApplyPagination(db *gorm.DB, page, limit int) *gorm.DB {
	return db.Offset((page - 1) * limit).Limit(limit)
}
