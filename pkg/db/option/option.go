// Package option provides composable query options for gorm statements.
package option

import (
	"fmt"
	"strings"
	"time"

	"github.com/subtrackhq/subtrack/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

// Condition applies a single comparison against a column.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		op := cond.Operator
		if op == "" {
			op = EQ
		}
		return db.Where(fmt.Sprintf("%s %s ?", cond.Field, op), cond.Value)
	})
}

// ApplyPagination decodes the cursor token and fetches limit+1 rows so the
// caller can detect whether another page exists.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		limit := p.PageSize
		if limit <= 0 {
			limit = 10
		}
		db = db.Limit(limit + 1)

		if p.PageToken != "" {
			cursor, err := pagination.DecodeCursor(p.PageToken)
			if err == nil && cursor != nil && cursor.CreatedAt != "" {
				// Bind as time.Time so the driver serializes both sides
				// of the comparison the same way.
				if ts, parseErr := time.Parse(time.RFC3339Nano, cursor.CreatedAt); parseErr == nil {
					db = db.Where("created_at < ?", ts)
				}
			}
		}
		return db
	})
}

func WithSortBy(clause string) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if clause == "" {
			return db
		}
		return db.Order(clause)
	})
}

// WithQuerySortBy builds an ORDER BY clause from user input, restricted to an
// allow-list of sortable columns.
func WithQuerySortBy(field, direction string, allowed map[string]bool) string {
	field = strings.TrimSpace(field)
	if field == "" || !allowed[field] {
		return ""
	}
	direction = strings.ToLower(strings.TrimSpace(direction))
	if direction != "desc" {
		direction = "asc"
	}
	return fmt.Sprintf("%s %s", field, direction)
}
