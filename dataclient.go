// Package dataclient maps query results onto Go values and generates the SQL
// for common reads and writes of struct models.
//
// Struct fields map to columns of the same name. A "db" struct tag renames
// the column (`db:"full_name"`), omits the field (`db:"-"`) or marks it as
// read only (`db:",readonly"`) so that it is filled from results but never
// written.
package dataclient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/canonical/dataclient/dialect"
	"github.com/canonical/dataclient/internal/expr"
	"github.com/canonical/dataclient/internal/typeinfo"
)

// M is a map of column names to values. It can be used wherever a query
// argument or a condition is expected.
type M map[string]any

// ErrNoProcedures is returned when a stored procedure call is requested from
// a client whose dialect cannot express one.
var ErrNoProcedures = errors.New("dialect does not support stored procedures")

// TypeMappingError is returned when a model field or argument has a type
// that cannot be sent as a parameter.
type TypeMappingError = expr.TypeMappingError

// Conn is a single database session. *sql.Conn implements it.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

// ConnFactory returns a new session. The client closes every session it
// obtains before the call that obtained it returns.
type ConnFactory func(ctx context.Context) (Conn, error)

// FromDB returns a ConnFactory that takes sessions from db's pool.
func FromDB(db *sql.DB) ConnFactory {
	return func(ctx context.Context) (Conn, error) {
		return db.Conn(ctx)
	}
}

// TypeCache holds the reflected column layout of the types a client maps.
// It is safe for concurrent use.
type TypeCache = typeinfo.Cache

// NewTypeCache returns an empty TypeCache.
func NewTypeCache() *TypeCache {
	return typeinfo.NewCache()
}

// Client runs statements against sessions from a ConnFactory. A Client is
// safe for concurrent use.
type Client struct {
	connect ConnFactory
	dialect dialect.Dialect
	cache   *typeinfo.Cache
	logger  *zap.Logger
	closer  io.Closer
}

// Option configures a Client.
type Option func(*Client)

// WithDialect sets the dialect used to generate SQL. The default is
// dialect.TSQL2005.
func WithDialect(d dialect.Dialect) Option {
	return func(c *Client) {
		c.dialect = d
	}
}

// WithLogger sets the logger statements are reported to. By default nothing
// is logged.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTypeCache makes the client use cache instead of the process wide one.
func WithTypeCache(cache *TypeCache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// New returns a client taking sessions from connect.
func New(connect ConnFactory, opts ...Option) *Client {
	c := &Client{
		connect: connect,
		dialect: dialect.TSQL2005{},
		cache:   typeinfo.Shared(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the dialect c generates SQL in.
func (c *Client) Dialect() dialect.Dialect {
	return c.dialect
}

// Close releases the database opened by Open. It does nothing for clients
// created with New.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// CommandKind says how the text of a Query is interpreted.
type CommandKind int

const (
	// Text is a SQL statement.
	Text CommandKind = iota
	// StoredProcedure is the name of a procedure. Each argument is passed
	// to the procedure parameter of the same name.
	StoredProcedure
)

// Query describes a statement and its arguments.
type Query struct {
	// SQL is the statement text, or the procedure name when Kind is
	// StoredProcedure. ExecuteModels generates a SELECT when it is empty.
	SQL string

	// Args is a struct, a pointer to one or a map with string keys. Each
	// member is bound to the parameter of the same name. For a generated
	// SELECT the members are also the equality conditions.
	Args any

	// Table overrides the table a generated SELECT reads.
	Table string

	// Skip and Take restrict ExecuteModels to a range of rows. The range is
	// unbounded when Take is zero or negative; no range applies when both
	// are zero. Ranges over a statement without an ORDER BY are not stable
	// between calls.
	Skip int
	Take int

	Kind CommandKind
}

func (q Query) paged() bool {
	return q.Skip != 0 || q.Take != 0
}

// command renders the text to send for q and the parameters to bind.
func (c *Client) command(q Query) (string, []expr.Param, error) {
	params, err := expr.BuildParams(c.cache, q.Args, "")
	if err != nil {
		return "", nil, err
	}
	if q.Kind != StoredProcedure {
		return q.SQL, params, nil
	}
	pc, ok := c.dialect.(dialect.ProcedureCaller)
	if !ok {
		return "", nil, fmt.Errorf("cannot call procedure %q with dialect %s: %w", q.SQL, c.dialect.Name(), ErrNoProcedures)
	}
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return pc.BuildCall(q.SQL, names), params, nil
}

// exec runs stmts in order on one session and returns the total number of
// rows they affected.
func (c *Client) exec(ctx context.Context, stmts []string, params []expr.Param) (affected int64, err error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := conn.Close(); err == nil {
			err = cerr
		}
	}()

	args := expr.Args(params)
	for _, stmt := range stmts {
		start := time.Now()
		res, err := conn.ExecContext(ctx, stmt, args...)
		if err == nil {
			var n int64
			if n, err = res.RowsAffected(); err == nil {
				affected += n
			}
		}
		c.log(stmt, params, start, err)
		if err != nil {
			return 0, err
		}
	}
	return affected, nil
}

// query runs stmt on one session and hands the rows to read. The rows and
// the session are closed once read returns.
func (c *Client) query(ctx context.Context, stmt string, params []expr.Param, read func(*sql.Rows) error) (err error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); err == nil {
			err = cerr
		}
	}()

	start := time.Now()
	rows, err := conn.QueryContext(ctx, stmt, expr.Args(params)...)
	if err != nil {
		c.log(stmt, params, start, err)
		return err
	}
	err = read(rows)
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	c.log(stmt, params, start, err)
	return err
}

func (c *Client) log(stmt string, params []expr.Param, start time.Time, err error) {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	fields := []zap.Field{
		zap.String("sql", stmt),
		zap.Strings("params", names),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		c.logger.Warn("statement failed", append(fields, zap.Error(err))...)
		return
	}
	c.logger.Debug("statement executed", fields...)
}

// ExecuteNone runs a statement that returns no rows and reports the number
// of rows it affected.
func (c *Client) ExecuteNone(ctx context.Context, q Query) (int64, error) {
	stmt, params, err := c.command(q)
	if err != nil {
		return 0, err
	}
	return c.exec(ctx, []string{stmt}, params)
}

// DataTable is a result set held in memory as driver values.
type DataTable struct {
	Columns []string
	Rows    [][]any
}

// Column returns the ordinal of the named column or -1.
func (t *DataTable) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ExecuteTable runs a query and returns its first result set.
func (c *Client) ExecuteTable(ctx context.Context, q Query) (*DataTable, error) {
	stmt, params, err := c.command(q)
	if err != nil {
		return nil, err
	}
	table := &DataTable{}
	err = c.query(ctx, stmt, params, func(rows *sql.Rows) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		table.Columns = cols
		for rows.Next() {
			row := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range row {
				ptrs[i] = &row[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			for i, v := range row {
				if b, ok := v.([]byte); ok {
					row[i] = append([]byte(nil), b...)
				}
			}
			table.Rows = append(table.Rows, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// ExecuteModels runs q and maps each row onto a T. Struct fields are filled
// from the columns of the same name; fields without a column keep their
// zero value. Any other T is read from the first column.
//
// When q.SQL is empty a SELECT of T's columns is generated. The table is
// q.Table, the result of a TableName method on T or T's type name, in that
// order, and every member of q.Args must equal its column.
func ExecuteModels[T any](ctx context.Context, c *Client, q Query) ([]T, error) {
	stmt, params, err := c.selectFor(reflect.TypeOf((*T)(nil)).Elem(), q)
	if err != nil {
		return nil, err
	}
	out := []T{}
	err = c.query(ctx, stmt, params, func(rows *sql.Rows) error {
		r, err := expr.MapRows[T](c.cache, rows)
		if err != nil {
			return err
		}
		for r.Next() {
			out = append(out, r.Value())
		}
		return r.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExecuteModel returns the first T ExecuteModels would return. The boolean
// is false when there is no row. A generated SELECT is restricted to one
// row; for caller supplied SQL the remaining rows are not read.
func ExecuteModel[T any](ctx context.Context, c *Client, q Query) (T, bool, error) {
	var zero T
	if q.SQL == "" {
		q.Skip, q.Take = 0, 1
	}
	stmt, params, err := c.selectFor(reflect.TypeOf((*T)(nil)).Elem(), q)
	if err != nil {
		return zero, false, err
	}
	var (
		out   T
		found bool
	)
	err = c.query(ctx, stmt, params, func(rows *sql.Rows) error {
		r, err := expr.MapRows[T](c.cache, rows)
		if err != nil {
			return err
		}
		if r.Next() {
			out, found = r.Value(), true
		}
		return r.Err()
	})
	if err != nil {
		return zero, false, err
	}
	return out, found, nil
}

// ExecuteObject returns the first column of the first row of q's result.
// No row and NULL both give T's zero value.
func ExecuteObject[T any](ctx context.Context, c *Client, q Query) (T, error) {
	var zero T
	stmt, params, err := c.command(q)
	if err != nil {
		return zero, err
	}
	var out T
	err = c.query(ctx, stmt, params, func(rows *sql.Rows) error {
		r, err := expr.MapRows[T](c.cache, rows)
		if err != nil {
			return err
		}
		if r.Next() {
			out = r.Value()
		}
		return r.Err()
	})
	if err != nil {
		return zero, err
	}
	return out, nil
}

// selectFor renders the statement ExecuteModels runs for q.
func (c *Client) selectFor(t reflect.Type, q Query) (string, []expr.Param, error) {
	if q.SQL == "" {
		if q.Kind == StoredProcedure {
			return "", nil, fmt.Errorf("cannot call a stored procedure without a name")
		}
		st := t
		for st.Kind() == reflect.Pointer {
			st = st.Elem()
		}
		if st.Kind() != reflect.Struct {
			return "", nil, fmt.Errorf("cannot generate select for %s: not a struct", t)
		}
		table := q.Table
		if table == "" {
			var err error
			if table, err = tableName(st, nil); err != nil {
				return "", nil, err
			}
		}
		fields, err := c.cache.Fields(st)
		if err != nil {
			return "", nil, fmt.Errorf("cannot generate select: %w", err)
		}
		cols := make([]string, 0, len(fields))
		for _, f := range fields {
			if f.Writable {
				cols = append(cols, f.Column)
			}
		}
		if len(cols) == 0 {
			return "", nil, fmt.Errorf("cannot generate select for %s: no columns", st)
		}
		condition, err := expr.Pairs(c.cache, q.Args, "")
		if err != nil {
			return "", nil, fmt.Errorf("cannot generate select: %w", err)
		}
		q.SQL = c.dialect.BuildSelect(table, cols, condition)
	}

	stmt, params, err := c.command(q)
	if err != nil {
		return "", nil, err
	}
	if q.paged() {
		if q.Kind == StoredProcedure {
			return "", nil, fmt.Errorf("cannot restrict the rows of procedure %q", q.SQL)
		}
		take := q.Take
		if take <= 0 {
			take = -1
		}
		if stmt, err = c.dialect.DecoratePageSelect(stmt, q.Skip, take); err != nil {
			return "", nil, err
		}
	}
	return stmt, params, nil
}
