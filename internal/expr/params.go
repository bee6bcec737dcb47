package expr

import (
	"database/sql"
	"fmt"
	"reflect"
	"sort"

	"github.com/canonical/dataclient/dialect"
	"github.com/canonical/dataclient/internal/typeinfo"
)

// Param is a named query parameter.
type Param struct {
	Name  string
	Type  TypeTag
	Value any
}

func (p Param) String() string {
	return fmt.Sprintf("Param[%s %s]", p.Name, p.Type)
}

// Arg returns the parameter in the form database/sql binds by name.
func (p Param) Arg() any {
	return sql.Named(p.Name, p.Value)
}

// Args converts params to database/sql arguments.
func Args(params []Param) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p.Arg()
	}
	return args
}

// getKeys returns the keys of a string keyed map in a deterministic order.
func getKeys(v reflect.Value) []string {
	keys := make([]string, 0, v.Len())
	for _, k := range v.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys
}

// argValue dereferences pointers, returning false if arg holds nothing.
func argValue(arg any) (reflect.Value, bool) {
	if arg == nil {
		return reflect.Value{}, false
	}
	v := reflect.ValueOf(arg)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, true
}

// Columns returns the names the readable members of arg bind to: the
// columns of a struct's readable fields or the sorted keys of a map.
func Columns(cache *typeinfo.Cache, arg any) ([]string, error) {
	v, ok := argValue(arg)
	if !ok {
		return nil, nil
	}
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map type %s must have key type string", v.Type())
		}
		return getKeys(v), nil
	case reflect.Struct:
		return typeColumns(cache, v.Type())
	default:
		return nil, fmt.Errorf("cannot use %s as an argument: need a struct or a map", v.Type())
	}
}

// typeColumns returns the columns of the readable fields of struct type t.
func typeColumns(cache *typeinfo.Cache, t reflect.Type) ([]string, error) {
	fields, err := cache.Fields(t)
	if err != nil {
		return nil, err
	}
	var cols []string
	for _, f := range fields {
		if f.Readable {
			cols = append(cols, f.Column)
		}
	}
	return cols, nil
}

// Pairs pairs each column of arg with the parameter BuildParams names for
// it.
func Pairs(cache *typeinfo.Cache, arg any, prefix string) ([]dialect.Pair, error) {
	cols, err := Columns(cache, arg)
	if err != nil {
		return nil, err
	}
	return pairsOf(cols, prefix), nil
}

func pairsOf(cols []string, prefix string) []dialect.Pair {
	if len(cols) == 0 {
		return nil
	}
	pairs := make([]dialect.Pair, len(cols))
	for i, c := range cols {
		pairs[i] = dialect.Pair{Column: c, Param: prefix + c}
	}
	return pairs
}

// BuildParams extracts one parameter per readable member of arg, named
// prefix followed by the member's column name. The runtime type of arg
// governs which members exist, so anonymous structs and maps both work.
// A nil arg yields no parameters.
func BuildParams(cache *typeinfo.Cache, arg any, prefix string) (params []Param, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot build parameters: %w", err)
		}
	}()

	v, ok := argValue(arg)
	if !ok {
		return nil, nil
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map type %s must have key type string", v.Type())
		}
		for _, k := range getKeys(v) {
			mv := v.MapIndex(reflect.ValueOf(k).Convert(v.Type().Key()))
			p, err := newParam(prefix+k, mv)
			if err != nil {
				return nil, err
			}
			params = append(params, p)
		}
		return params, nil
	case reflect.Struct:
		fields, err := cache.Fields(v.Type())
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if !f.Readable {
				continue
			}
			tag, err := NormalizeType(f.Type)
			if err != nil {
				return nil, err
			}
			fv, ok := fieldByIndex(v, f.Index)
			var val any
			if ok {
				val = paramValue(fv)
			}
			params = append(params, Param{Name: prefix + f.Column, Type: tag, Value: val})
		}
		return params, nil
	default:
		return nil, fmt.Errorf("cannot use %s as an argument: need a struct or a map", v.Type())
	}
}

// newParam types a map value by its dynamic type.
func newParam(name string, v reflect.Value) (Param, error) {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return Param{Name: name, Type: TypeObject}, nil
		}
		v = v.Elem()
	}
	tag, err := NormalizeType(v.Type())
	if err != nil {
		return Param{}, err
	}
	return Param{Name: name, Type: tag, Value: paramValue(v)}, nil
}

// paramValue returns the value to bind for v. Nil pointers and interfaces
// become the untyped nil that drivers send as NULL.
func paramValue(v reflect.Value) any {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}

// fieldByIndex walks index without allocating; a nil embedded pointer on
// the way means the field has no value.
func fieldByIndex(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}
