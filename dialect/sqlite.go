package dialect

import (
	"strconv"
	"strings"
)

var sqlite = builder{
	quote:  quoteWith(`"`, `"`),
	marker: atMarker,
}

// SQLite3 generates SQL for SQLite 3. Identifiers are double quoted and
// parameters are referenced as @name, which the sqlite3 driver binds from
// sql.Named arguments.
type SQLite3 struct{}

func (SQLite3) Name() string { return "sqlite3" }

func (SQLite3) BuildSelect(table string, columns []string, condition []Pair) string {
	return sqlite.selectSQL(table, columns, condition)
}

// DecoratePageSelect wraps sql in a derived table and limits that, so a
// statement with its own LIMIT or ORDER BY clause is paged as written. A
// negative take means no limit and a negative skip is treated as zero.
func (SQLite3) DecoratePageSelect(sql string, skip, take int) (string, error) {
	if skip < 0 {
		skip = 0
	}
	if take < 0 {
		take = -1
	}
	sql = strings.TrimRight(sql, " \t\r\n;")
	return "SELECT * FROM (" + sql + ") LIMIT " + strconv.Itoa(take) + " OFFSET " + strconv.Itoa(skip), nil
}

func (SQLite3) BuildInsert(table string, columns []Pair) string {
	return sqlite.insertSQL(table, columns)
}

func (SQLite3) BuildUpdate(table string, columns, condition []Pair) string {
	return sqlite.updateSQL(table, columns, condition)
}

func (SQLite3) BuildDelete(table string, condition []Pair) string {
	return sqlite.deleteSQL(table, condition)
}

// BuildUpsert returns an UPDATE followed by an INSERT that only adds a row
// when the UPDATE changed none. changes() reports the previous statement on
// the same connection.
func (SQLite3) BuildUpsert(table string, columns, condition []Pair) []string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(sqlite.quote(table))
	sb.WriteString(" (")
	sb.WriteString(sqlite.columnList(columnsOf(columns)))
	sb.WriteString(") SELECT ")
	sb.WriteString(sqlite.markerList(columns))
	sb.WriteString(" WHERE (SELECT changes() = 0)")
	return []string{
		sqlite.updateSQL(table, columns, condition),
		sb.String(),
	}
}
