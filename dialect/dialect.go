// Package dialect generates SQL text for the statements the data client
// issues on behalf of its callers.
//
// Every dialect shares the same clause assembly. They differ only in how
// identifiers are quoted, how parameters are referenced and how an
// "insert or update" is emulated. Values never appear in generated SQL;
// statements reference named parameters that the caller binds separately.
//
// # Supported Dialects
//
//   - TSQL2005: Microsoft SQL Server 2005 and later
//   - SQLite3: SQLite 3
//
// Dialects are looked up by name with Get or by database/sql driver name
// with ForDriver.
//
// # Upserts
//
// Neither upsert strategy is atomic. Two concurrent writers may both insert,
// or one update may be lost. Use a unique constraint or a transaction with
// a suitable isolation level where that matters.
package dialect

import (
	"strings"

	"github.com/samber/lo"
)

// Pair maps a column to the name of the parameter holding its value.
type Pair struct {
	Column string
	Param  string
}

// Dialect generates SQL for one database product. Implementations are
// immutable and safe for concurrent use.
type Dialect interface {
	// Name identifies the dialect in the registry.
	Name() string

	// BuildSelect reads columns from table. Rows must match every condition
	// pair by equality; an empty condition selects all rows.
	BuildSelect(table string, columns []string, condition []Pair) string

	// DecoratePageSelect restricts a SELECT to rows skip+1 to skip+take in
	// whatever order the statement yields.
	DecoratePageSelect(sql string, skip, take int) (string, error)

	BuildInsert(table string, columns []Pair) string

	// BuildUpdate sets columns on the rows matching condition. An empty
	// condition updates every row.
	BuildUpdate(table string, columns, condition []Pair) string

	// BuildDelete removes the rows matching condition. An empty condition
	// removes every row.
	BuildDelete(table string, condition []Pair) string

	// BuildUpsert updates the rows matching condition, or inserts columns
	// when there are none. The statements must run in order on one
	// connection; their affected row counts add up to the upsert's.
	BuildUpsert(table string, columns, condition []Pair) []string
}

// ProcedureCaller is implemented by dialects that can invoke stored
// procedures.
type ProcedureCaller interface {
	// BuildCall invokes proc binding each parameter to the argument of the
	// same name.
	BuildCall(proc string, params []string) string
}

// builder assembles statements. The dialects supply the identifier quoting
// and the parameter marker.
type builder struct {
	quote  func(ident string) string
	marker func(param string) string
}

func (b builder) columnList(columns []string) string {
	return strings.Join(lo.Map(columns, func(c string, _ int) string {
		return b.quote(c)
	}), ",")
}

// assignments renders "col = @param" terms joined by sep.
func (b builder) assignments(pairs []Pair, sep string) string {
	return strings.Join(lo.Map(pairs, func(p Pair, _ int) string {
		return b.quote(p.Column) + " = " + b.marker(p.Param)
	}), sep)
}

func (b builder) where(condition []Pair) string {
	if len(condition) == 0 {
		return ""
	}
	return " WHERE " + b.assignments(condition, " AND ")
}

func (b builder) selectSQL(table string, columns []string, condition []Pair) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(b.columnList(columns))
	sb.WriteString(" FROM ")
	sb.WriteString(b.quote(table))
	sb.WriteString(b.where(condition))
	return sb.String()
}

func (b builder) insertSQL(table string, columns []Pair) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.quote(table))
	sb.WriteString(" (")
	sb.WriteString(b.columnList(columnsOf(columns)))
	sb.WriteString(") VALUES (")
	sb.WriteString(b.markerList(columns))
	sb.WriteString(")")
	return sb.String()
}

func (b builder) updateSQL(table string, columns, condition []Pair) string {
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.quote(table))
	sb.WriteString(" SET ")
	sb.WriteString(b.assignments(columns, ","))
	sb.WriteString(b.where(condition))
	return sb.String()
}

func (b builder) deleteSQL(table string, condition []Pair) string {
	return "DELETE FROM " + b.quote(table) + b.where(condition)
}

func (b builder) markerList(pairs []Pair) string {
	return strings.Join(lo.Map(pairs, func(p Pair, _ int) string {
		return b.marker(p.Param)
	}), ",")
}

func columnsOf(pairs []Pair) []string {
	return lo.Map(pairs, func(p Pair, _ int) string { return p.Column })
}

// atMarker references a named parameter as @name.
func atMarker(param string) string {
	return "@" + param
}

// quoteWith wraps ident in left and right, doubling any right characters
// inside it.
func quoteWith(left, right string) func(string) string {
	return func(ident string) string {
		return left + strings.ReplaceAll(ident, right, right+right) + right
	}
}
