package expr

import (
	"fmt"
	"reflect"

	"github.com/canonical/dataclient/internal/typeinfo"
)

// Cursor is a forward only result reader. *sql.Rows implements it.
type Cursor interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	NextResultSet() bool
}

// slot binds a writable field to the ordinal of its column.
type slot struct {
	field   typeinfo.Field
	ordinal int
}

// Rows lazily maps the rows of a Cursor onto values of type T. It reads one
// cursor row per call to Next and cannot be restarted. Rows does not close
// the cursor.
type Rows[T any] struct {
	cache  *typeinfo.Cache
	cur    Cursor
	typ    reflect.Type
	scalar bool
	// ptr is set when T is a pointer to the struct type typ.
	ptr bool

	// slots is the row buffer of the current result set.
	slots  []slot
	values []any
	ptrs   []any

	value T
	err   error
	done  bool
}

// MapRows returns a Rows reading cur. Struct types are mapped field by
// column name; any other T is read from the first column.
func MapRows[T any](cache *typeinfo.Cache, cur Cursor) (*Rows[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	r := &Rows[T]{
		cache:  cache,
		cur:    cur,
		typ:    typ,
		scalar: !isStructType(typ),
	}
	if typ.Kind() == reflect.Pointer && isStructType(typ.Elem()) {
		r.typ, r.scalar, r.ptr = typ.Elem(), false, true
	}
	if err := r.resolve(); err != nil {
		return nil, err
	}
	return r, nil
}

func isStructType(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	// Types that scan themselves, such as time.Time or uuid.NullUUID, are
	// single values rather than records.
	return !isScanner(t) && !isKnownValue(t)
}

// resolve builds the row buffer for the cursor's current result set.
// Fields without a matching column are left out; that is not an error since
// hand written SQL may omit or rename columns.
func (r *Rows[T]) resolve() error {
	cols, err := r.cur.Columns()
	if err != nil {
		return fmt.Errorf("cannot read result columns: %w", err)
	}
	r.values = make([]any, len(cols))
	r.ptrs = make([]any, len(cols))
	for i := range r.values {
		r.ptrs[i] = &r.values[i]
	}
	r.slots = r.slots[:0]

	if r.scalar {
		return nil
	}

	info, err := r.cache.Get(r.typ)
	if err != nil {
		return err
	}
	// A column repeated in the result fills its field from the first
	// occurrence.
	seen := make(map[string]bool, len(cols))
	for i, c := range cols {
		f, ok := info.Field(c)
		if !ok || !f.Writable || seen[c] {
			continue
		}
		seen[c] = true
		r.slots = append(r.slots, slot{field: f, ordinal: i})
	}
	return nil
}

// Next advances to the next row, reporting false when the result set is
// exhausted or an error occurred.
func (r *Rows[T]) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	if !r.cur.Next() {
		r.done = true
		if err := r.cur.Err(); err != nil {
			r.err = err
		}
		return false
	}

	if err := r.cur.Scan(r.ptrs...); err != nil {
		if !r.redrift() {
			r.err = err
			return false
		}
		if err := r.cur.Scan(r.ptrs...); err != nil {
			r.err = err
			return false
		}
	}

	out := reflect.New(r.typ).Elem()
	if r.scalar {
		if len(r.values) > 0 {
			if err := assign(out, r.values[0]); err != nil {
				r.err = fmt.Errorf("cannot map column 0 onto %s: %w", r.typ, err)
				return false
			}
		}
		r.value = out.Interface().(T)
		return true
	}

	for _, s := range r.slots {
		if err := assign(fieldByIndexAlloc(out, s.field.Index), r.values[s.ordinal]); err != nil {
			r.err = fmt.Errorf("cannot map column %q onto field %s.%s: %w", s.field.Column, r.typ.Name(), s.field.Name, err)
			return false
		}
	}
	if r.ptr {
		r.value = out.Addr().Interface().(T)
	} else {
		r.value = out.Interface().(T)
	}
	return true
}

// redrift re-reads the cursor's columns after a failed scan. If the column
// set changed, the buffer is resized and fields whose column can no longer
// be read at its ordinal are dropped for the remaining rows. It reports
// whether a retry is worthwhile.
func (r *Rows[T]) redrift() bool {
	cols, err := r.cur.Columns()
	if err != nil || len(cols) == len(r.values) {
		return false
	}
	r.values = make([]any, len(cols))
	r.ptrs = make([]any, len(cols))
	for i := range r.values {
		r.ptrs[i] = &r.values[i]
	}
	kept := r.slots[:0]
	for _, s := range r.slots {
		if s.ordinal < len(cols) && cols[s.ordinal] == s.field.Column {
			kept = append(kept, s)
		}
	}
	r.slots = kept
	return true
}

// Value returns the value mapped by the last successful call to Next.
func (r *Rows[T]) Value() T {
	return r.value
}

// Err returns the error, if any, that stopped iteration.
func (r *Rows[T]) Err() error {
	return r.err
}

// NextResultSet moves to the cursor's next result set and rebuilds the row
// buffer for its columns.
func (r *Rows[T]) NextResultSet() bool {
	if r.err != nil || !r.cur.NextResultSet() {
		return false
	}
	if err := r.resolve(); err != nil {
		r.err = err
		return false
	}
	r.done = false
	return true
}

// All drains the current result set.
func (r *Rows[T]) All() ([]T, error) {
	var out []T
	for r.Next() {
		out = append(out, r.Value())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// fieldByIndexAlloc walks index, allocating nil embedded pointers so the
// final field is settable.
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}
