package expr

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
)

// isScanner reports whether a *t can read a column value itself.
func isScanner(t reflect.Type) bool {
	return reflect.PointerTo(t).Implements(scannerType)
}

// isKnownValue reports whether t is a struct that is mapped as one value.
func isKnownValue(t reflect.Type) bool {
	_, ok := knownTypes[t]
	return ok
}

// assign stores the driver value src in dst. A NULL stores the zero value,
// pointers are allocated as needed and types implementing sql.Scanner read
// src themselves. Other values are converted when the conversion cannot
// lose information: integer text must be plain base 10, floats must be
// integral to fill integer kinds and only 0 and 1 fill a bool.
func assign(dst reflect.Value, src any) error {
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return assign(dst.Elem(), src)
	}
	if dst.CanAddr() && isScanner(dst.Type()) {
		return dst.Addr().Interface().(sql.Scanner).Scan(src)
	}

	sv := reflect.ValueOf(src)
	dt := dst.Type()
	if sv.Type().AssignableTo(dt) {
		if b, ok := src.([]byte); ok {
			// Drivers may reuse the buffer once the next row is read.
			src = append([]byte(nil), b...)
			sv = reflect.ValueOf(src)
		}
		dst.Set(sv)
		return nil
	}
	// Driver text columns often arrive as []byte.
	if b, ok := src.([]byte); ok && dt.Kind() != reflect.Slice {
		src = string(b)
		sv = reflect.ValueOf(src)
	}

	switch dt.Kind() {
	case reflect.String:
		s, err := cast.ToStringE(src)
		if err != nil {
			return err
		}
		dst.SetString(s)
		return nil
	case reflect.Bool:
		b, err := toBool(sv)
		if err != nil {
			return err
		}
		dst.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if dt == reflect.TypeOf(time.Duration(0)) {
			d, err := cast.ToDurationE(src)
			if err != nil {
				return err
			}
			dst.SetInt(int64(d))
			return nil
		}
		n, err := toInt64(sv)
		if err != nil {
			return fmt.Errorf("cannot convert %T %v to %s: %w", src, src, dt, err)
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, dt)
		}
		dst.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toUint64(sv)
		if err != nil {
			return fmt.Errorf("cannot convert %T %v to %s: %w", src, src, dt, err)
		}
		if dst.OverflowUint(n) {
			return fmt.Errorf("value %d overflows %s", n, dt)
		}
		dst.SetUint(n)
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(src)
		if err != nil {
			return err
		}
		if dst.OverflowFloat(f) {
			return fmt.Errorf("value %g overflows %s", f, dt)
		}
		dst.SetFloat(f)
		return nil
	case reflect.Slice:
		if dt.Elem().Kind() == reflect.Uint8 {
			switch v := src.(type) {
			case string:
				dst.SetBytes([]byte(v))
				return nil
			case []byte:
				dst.Set(reflect.ValueOf(append([]byte(nil), v...)).Convert(dt))
				return nil
			}
		}
	case reflect.Struct:
		if dt == timeType {
			t, err := cast.ToTimeE(src)
			if err != nil {
				return err
			}
			dst.Set(reflect.ValueOf(t))
			return nil
		}
	case reflect.Interface:
		if sv.Type().Implements(dt) {
			dst.Set(sv)
			return nil
		}
	}
	if sv.Type().ConvertibleTo(dt) && sv.Kind() == dt.Kind() {
		dst.Set(sv.Convert(dt))
		return nil
	}
	return fmt.Errorf("cannot convert %T to %s", src, dt)
}

var (
	errNotIntegral = errors.New("value is not integral")
	errNegative    = errors.New("value is negative")
	errRange       = errors.New("value out of range")
)

// toInt64 reads integers, integral floats and base 10 integer text.
func toInt64(v reflect.Value) (int64, error) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if v.Uint() > math.MaxInt64 {
			return 0, errRange
		}
		return int64(v.Uint()), nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if f != math.Trunc(f) {
			return 0, errNotIntegral
		}
		// 2^63 itself is not representable.
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, errRange
		}
		return int64(f), nil
	case reflect.String:
		return strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
	}
	return cast.ToInt64E(v.Interface())
}

// toUint64 is toInt64 for unsigned kinds. Negative values are rejected.
func toUint64(v reflect.Value) (uint64, error) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.Int() < 0 {
			return 0, errNegative
		}
		return uint64(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint(), nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if f != math.Trunc(f) {
			return 0, errNotIntegral
		}
		if f < 0 {
			return 0, errNegative
		}
		if f >= math.MaxUint64 {
			return 0, errRange
		}
		return uint64(f), nil
	case reflect.String:
		return strconv.ParseUint(strings.TrimSpace(v.String()), 10, 64)
	}
	return cast.ToUint64E(v.Interface())
}

// toBool accepts bools, the numbers 0 and 1 and the text strconv.ParseBool
// understands.
func toBool(v reflect.Value) (bool, error) {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		b, err := strconv.ParseBool(strings.TrimSpace(v.String()))
		if err != nil {
			return false, fmt.Errorf("cannot convert %q to bool", v.String())
		}
		return b, nil
	}
	n, err := toInt64(v)
	if err != nil || n < 0 || n > 1 {
		return false, fmt.Errorf("cannot convert %s %v to bool", v.Type(), v.Interface())
	}
	return n == 1, nil
}
