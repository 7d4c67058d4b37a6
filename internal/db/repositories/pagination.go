package repositories

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Pagination defaults shared by list endpoints
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePagination coerces page and limit into usable values. A page or limit
// below 1 falls back to the defaults; a limit above maxLimit is clamped to maxLimit.
// page is capped so that its offset still fits in an int.
func NormalizePagination(page, limit, defaultLimit, maxLimit int) (int, int) {
	if defaultLimit < 1 {
		defaultLimit = DefaultPageSize
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return page, limit
}

// Offset returns the row offset of a 1-based page, saturating at math.MaxInt
func Offset(page, limit int) int {
	if page <= 1 || limit <= 0 {
		return 0
	}
	if page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (page - 1) * limit
}

// TotalPages returns ceil(total/limit), or 0 when there is nothing to page
func TotalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

const dateOnlyLayout = "2006-01-02"

// ParseFilterDate parses a date filter in YYYY-MM-DD or RFC3339 form. A date-only
// value is interpreted in local time: start of day when endOfDay is false, and
// 23:59:59.999 when it is true so the whole day is included. ok is false for
// empty or unparseable input, in which case the filter should be ignored.
func ParseFilterDate(s string, endOfDay bool) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if d, err := time.ParseInLocation(dateOnlyLayout, s, time.Local); err == nil {
		if endOfDay {
			d = time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, int(999*time.Millisecond), time.Local)
		}
		return d, true
	}
	if d, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return d, true
	}
	return time.Time{}, false
}

// predicate accumulates AND-ed SQL conditions with positional arguments. The same
// predicate feeds both the COUNT and the page query of a list call.
type predicate struct {
	clauses []string
	args    []interface{}
}

// add appends a condition; expr must contain exactly one %d for the placeholder index.
func (p *predicate) add(expr string, arg interface{}) {
	p.args = append(p.args, arg)
	p.clauses = append(p.clauses, fmt.Sprintf(expr, len(p.args)))
}

// where renders the WHERE clause, or an empty string when there are no conditions
func (p *predicate) where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.clauses, " AND ")
}

// next returns the index of the next positional placeholder
func (p *predicate) next() int {
	return len(p.args) + 1
}
