// Package parse rewrites SELECT statements for row range retrieval on
// dialects without a LIMIT/OFFSET clause.
package parse

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedSelect is returned when a statement does not start with a
// SELECT keyword that the rewriter can recognise.
var ErrMalformedSelect = errors.New("malformed select statement")

// Names of the generated row number column and derived tables. Callers are
// not expected to use the __dc_ prefix for their own identifiers.
const (
	rowNumColumn = "__dc_rownum"
	innerAlias   = "__dc_inner"
	pagedAlias   = "__dc_paged"
)

// selectHead matches the leading keywords of a statement: SELECT, an optional
// set quantifier and an optional TOP clause. TOP only counts as a clause when
// a row count follows it, so a column named TOP is left alone. Anything after
// that is opaque.
var selectHead = regexp.MustCompile(`(?is)^\s*(SELECT)\b(\s+(?:DISTINCT|ALL)\b)?(\s+TOP(?:\s*\(|\s+\d))?`)

// PageSelect wraps stmt so that it returns rows skip+1 to skip+take of the
// original result, numbering rows with ROW_NUMBER over a constant ordering.
// Row order is whatever stmt yields; without an ORDER BY (which T-SQL only
// allows in a derived table together with TOP) pages may differ between
// calls.
//
// If stmt has no TOP clause one of skip+take rows is added so the inner
// window is bounded. A negative take, or a negative skip+take, means no
// upper bound. A negative skip is treated as zero.
func PageSelect(stmt string, skip, take int) (string, error) {
	stmt = strings.TrimRight(stmt, " \t\r\n;")
	m := selectHead.FindStringSubmatchIndex(stmt)
	if m == nil {
		return "", fmt.Errorf("cannot page statement %q: %w", abbreviate(stmt), ErrMalformedSelect)
	}
	if skip < 0 {
		skip = 0
	}
	end := int64(skip) + int64(take)
	if take < 0 || end < 0 || end > math.MaxInt32 {
		end = math.MaxInt32
	}

	inner := stmt
	if m[6] < 0 {
		// No TOP: insert it after SELECT or after the set quantifier.
		at := m[3]
		if m[4] >= 0 {
			at = m[5]
		}
		inner = stmt[:at] + " TOP (" + strconv.FormatInt(end, 10) + ")" + stmt[at:]
	}
	inner = strings.TrimSpace(inner)

	var sb strings.Builder
	sb.WriteString("SELECT * FROM (SELECT *, ROW_NUMBER() OVER (ORDER BY (SELECT 0)) AS [")
	sb.WriteString(rowNumColumn)
	sb.WriteString("] FROM (")
	sb.WriteString(inner)
	sb.WriteString(") AS [")
	sb.WriteString(innerAlias)
	sb.WriteString("]) AS [")
	sb.WriteString(pagedAlias)
	sb.WriteString("] WHERE [")
	sb.WriteString(rowNumColumn)
	sb.WriteString("] BETWEEN ")
	sb.WriteString(strconv.Itoa(skip + 1))
	sb.WriteString(" AND ")
	sb.WriteString(strconv.FormatInt(end, 10))
	return sb.String(), nil
}

func abbreviate(s string) string {
	const max = 40
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
