package dataclient

import (
	"context"
	"fmt"
	"reflect"

	"github.com/canonical/dataclient/dialect"
	"github.com/canonical/dataclient/internal/expr"
)

// Parameter name prefixes of model values and conditions. They keep a
// column that is both written and matched on bound to two parameters.
const (
	columnPrefix    = "c_"
	conditionPrefix = "w_"
)

// TableNamer is implemented by models whose table is not named after their
// type.
type TableNamer interface {
	TableName() string
}

// ModelOption adjusts how a model is written.
type ModelOption func(*modelOptions)

type modelOptions struct {
	table   string
	columns map[string]string
}

// Table writes to the named table.
func Table(name string) ModelOption {
	return func(o *modelOptions) {
		o.table = name
	}
}

// Columns writes the given struct fields, keyed by Go field name, to the
// given columns instead of their usual ones.
func Columns(fieldToColumn map[string]string) ModelOption {
	return func(o *modelOptions) {
		o.columns = fieldToColumn
	}
}

// tableName returns the table a model of struct type t is stored in.
func tableName(t reflect.Type, model any) (string, error) {
	if n, ok := model.(TableNamer); ok {
		return n.TableName(), nil
	}
	if n, ok := reflect.New(t).Interface().(TableNamer); ok {
		return n.TableName(), nil
	}
	if t.Name() == "" {
		return "", fmt.Errorf("cannot derive table name of unnamed type %s", t)
	}
	return t.Name(), nil
}

// modelPairs returns the table of model and the column to parameter pairs of
// its readable fields.
func (c *Client) modelPairs(model any, opts []ModelOption) (string, []dialect.Pair, error) {
	var o modelOptions
	for _, opt := range opts {
		opt(&o)
	}

	t := reflect.TypeOf(model)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return "", nil, fmt.Errorf("cannot use %T as a model: need a struct", model)
	}

	table := o.table
	if table == "" {
		var err error
		if table, err = tableName(t, model); err != nil {
			return "", nil, err
		}
	}

	fields, err := c.cache.Fields(t)
	if err != nil {
		return "", nil, err
	}
	known := make(map[string]bool, len(fields))
	var pairs []dialect.Pair
	for _, f := range fields {
		known[f.Name] = true
		if !f.Readable {
			continue
		}
		col := f.Column
		if remap, ok := o.columns[f.Name]; ok {
			col = remap
		}
		pairs = append(pairs, dialect.Pair{Column: col, Param: columnPrefix + f.Column})
	}
	for name := range o.columns {
		if !known[name] {
			return "", nil, fmt.Errorf("cannot remap column of %s: no field %q", t.Name(), name)
		}
	}
	if len(pairs) == 0 {
		return "", nil, fmt.Errorf("cannot write %s: no writable columns", t)
	}
	return table, pairs, nil
}

// modelCommand gathers what a write of model matching condition needs.
func (c *Client) modelCommand(model, condition any, opts []ModelOption) (table string, columns, where []dialect.Pair, params []expr.Param, err error) {
	table, columns, err = c.modelPairs(model, opts)
	if err != nil {
		return "", nil, nil, nil, err
	}
	if params, err = expr.BuildParams(c.cache, model, columnPrefix); err != nil {
		return "", nil, nil, nil, err
	}
	if condition == nil {
		return table, columns, nil, params, nil
	}
	if where, err = expr.Pairs(c.cache, condition, conditionPrefix); err != nil {
		return "", nil, nil, nil, err
	}
	cparams, err := expr.BuildParams(c.cache, condition, conditionPrefix)
	if err != nil {
		return "", nil, nil, nil, err
	}
	return table, columns, where, append(params, cparams...), nil
}

// InsertModel inserts model, a struct or pointer to one, as a new row and
// returns the number of rows affected. Fields tagged readonly are left to
// the database.
func (c *Client) InsertModel(ctx context.Context, model any, opts ...ModelOption) (int64, error) {
	table, columns, _, params, err := c.modelCommand(model, nil, opts)
	if err != nil {
		return 0, fmt.Errorf("cannot insert model: %w", err)
	}
	return c.exec(ctx, []string{c.dialect.BuildInsert(table, columns)}, params)
}

// UpdateModel writes model to the rows whose columns equal the members of
// condition. A nil condition updates every row of the table.
func (c *Client) UpdateModel(ctx context.Context, model, condition any, opts ...ModelOption) (int64, error) {
	table, columns, where, params, err := c.modelCommand(model, condition, opts)
	if err != nil {
		return 0, fmt.Errorf("cannot update model: %w", err)
	}
	return c.exec(ctx, []string{c.dialect.BuildUpdate(table, columns, where)}, params)
}

// InsertOrUpdateModel updates the rows matching condition with model, or
// inserts model if there are none. It is not atomic: concurrent callers can
// both insert.
func (c *Client) InsertOrUpdateModel(ctx context.Context, model, condition any, opts ...ModelOption) (int64, error) {
	table, columns, where, params, err := c.modelCommand(model, condition, opts)
	if err != nil {
		return 0, fmt.Errorf("cannot upsert model: %w", err)
	}
	return c.exec(ctx, c.dialect.BuildUpsert(table, columns, where), params)
}

// DeleteModel deletes the rows of table whose columns equal the members of
// condition. A nil condition deletes every row.
func (c *Client) DeleteModel(ctx context.Context, table string, condition any) (int64, error) {
	if table == "" {
		return 0, fmt.Errorf("cannot delete model: no table")
	}
	where, err := expr.Pairs(c.cache, condition, conditionPrefix)
	if err != nil {
		return 0, fmt.Errorf("cannot delete model: %w", err)
	}
	params, err := expr.BuildParams(c.cache, condition, conditionPrefix)
	if err != nil {
		return 0, fmt.Errorf("cannot delete model: %w", err)
	}
	return c.exec(ctx, []string{c.dialect.BuildDelete(table, where)}, params)
}
