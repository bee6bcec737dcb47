package dialect

import (
	"strings"

	"github.com/samber/lo"

	"github.com/canonical/dataclient/internal/parse"
)

var tsql = builder{
	quote:  quoteWith("[", "]"),
	marker: atMarker,
}

// TSQL2005 generates Transact-SQL for SQL Server 2005 and later. Identifiers
// are bracket quoted and parameters are referenced as @name.
type TSQL2005 struct{}

func (TSQL2005) Name() string { return "tsql2005" }

func (TSQL2005) BuildSelect(table string, columns []string, condition []Pair) string {
	return tsql.selectSQL(table, columns, condition)
}

// DecoratePageSelect numbers the rows of sql with ROW_NUMBER and keeps the
// requested range. See parse.PageSelect.
func (TSQL2005) DecoratePageSelect(sql string, skip, take int) (string, error) {
	return parse.PageSelect(sql, skip, take)
}

func (TSQL2005) BuildInsert(table string, columns []Pair) string {
	return tsql.insertSQL(table, columns)
}

func (TSQL2005) BuildUpdate(table string, columns, condition []Pair) string {
	return tsql.updateSQL(table, columns, condition)
}

func (TSQL2005) BuildDelete(table string, condition []Pair) string {
	return tsql.deleteSQL(table, condition)
}

// BuildUpsert returns a single batch that branches on the existence of a
// matching row.
func (TSQL2005) BuildUpsert(table string, columns, condition []Pair) []string {
	var sb strings.Builder
	sb.WriteString("IF EXISTS(SELECT 1 FROM ")
	sb.WriteString(tsql.quote(table))
	sb.WriteString(tsql.where(condition))
	sb.WriteString(") BEGIN ")
	sb.WriteString(tsql.updateSQL(table, columns, condition))
	sb.WriteString(" END ELSE BEGIN ")
	sb.WriteString(tsql.insertSQL(table, columns))
	sb.WriteString(" END")
	return []string{sb.String()}
}

func (TSQL2005) BuildCall(proc string, params []string) string {
	if len(params) == 0 {
		return "EXEC " + tsql.quote(proc)
	}
	return "EXEC " + tsql.quote(proc) + " " + strings.Join(lo.Map(params, func(p string, _ int) string {
		return tsql.marker(p) + "=" + tsql.marker(p)
	}), ",")
}
