package expr

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TypeTag is the normalized parameter type of a Go value. It is advisory
// metadata for drivers that want explicit typing and never changes the
// value that is sent.
type TypeTag int

const (
	TypeObject TypeTag = iota
	TypeByte
	TypeSByte
	TypeInt16
	TypeUInt16
	TypeInt32
	TypeUInt32
	TypeInt64
	TypeUInt64
	TypeSingle
	TypeDouble
	TypeDecimal
	TypeBoolean
	TypeString
	TypeGUID
	TypeDateTime
	TypeTime
	TypeBinary
)

var tagNames = [...]string{
	TypeObject:   "Object",
	TypeByte:     "Byte",
	TypeSByte:    "SByte",
	TypeInt16:    "Int16",
	TypeUInt16:   "UInt16",
	TypeInt32:    "Int32",
	TypeUInt32:   "UInt32",
	TypeInt64:    "Int64",
	TypeUInt64:   "UInt64",
	TypeSingle:   "Single",
	TypeDouble:   "Double",
	TypeDecimal:  "Decimal",
	TypeBoolean:  "Boolean",
	TypeString:   "String",
	TypeGUID:     "Guid",
	TypeDateTime: "DateTime",
	TypeTime:     "Time",
	TypeBinary:   "Binary",
}

func (t TypeTag) String() string {
	if t < 0 || int(t) >= len(tagNames) {
		return fmt.Sprintf("TypeTag(%d)", int(t))
	}
	return tagNames[t]
}

// TypeMappingError is returned when a Go type has no parameter type tag.
type TypeMappingError struct {
	Type reflect.Type
}

func (e *TypeMappingError) Error() string {
	return fmt.Sprintf("no parameter type mapping for type %s", e.Type)
}

// Types with a fixed tag. Nullable wrappers map to the tag of the value they
// wrap.
var knownTypes = map[reflect.Type]TypeTag{
	reflect.TypeOf(time.Time{}):           TypeDateTime,
	reflect.TypeOf(time.Duration(0)):      TypeTime,
	reflect.TypeOf(uuid.UUID{}):           TypeGUID,
	reflect.TypeOf(decimal.Decimal{}):     TypeDecimal,
	reflect.TypeOf(sql.NullString{}):      TypeString,
	reflect.TypeOf(sql.NullInt64{}):       TypeInt64,
	reflect.TypeOf(sql.NullInt32{}):       TypeInt32,
	reflect.TypeOf(sql.NullInt16{}):       TypeInt16,
	reflect.TypeOf(sql.NullByte{}):        TypeByte,
	reflect.TypeOf(sql.NullFloat64{}):     TypeDouble,
	reflect.TypeOf(sql.NullBool{}):        TypeBoolean,
	reflect.TypeOf(sql.NullTime{}):        TypeDateTime,
	reflect.TypeOf(uuid.NullUUID{}):       TypeGUID,
	reflect.TypeOf(decimal.NullDecimal{}): TypeDecimal,
}

var kindTags = map[reflect.Kind]TypeTag{
	reflect.Bool:    TypeBoolean,
	reflect.Int8:    TypeSByte,
	reflect.Int16:   TypeInt16,
	reflect.Int32:   TypeInt32,
	reflect.Int:     TypeInt64,
	reflect.Int64:   TypeInt64,
	reflect.Uint8:   TypeByte,
	reflect.Uint16:  TypeUInt16,
	reflect.Uint32:  TypeUInt32,
	reflect.Uint:    TypeUInt64,
	reflect.Uint64:  TypeUInt64,
	reflect.Float32: TypeSingle,
	reflect.Float64: TypeDouble,
	reflect.String:  TypeString,
}

// NormalizeType returns the parameter type tag for t. Named types, the Go
// rendition of enumerations, map by their underlying kind. Pointers and the
// sql.Null* wrappers map to the tag of the type they wrap.
func NormalizeType(t reflect.Type) (TypeTag, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if tag, ok := knownTypes[t]; ok {
		return tag, nil
	}
	if tag, ok := kindTags[t.Kind()]; ok {
		return tag, nil
	}
	switch t.Kind() {
	case reflect.Struct:
		// sql.Null[T].
		if t.PkgPath() == "database/sql" && strings.HasPrefix(t.Name(), "Null[") {
			if v, ok := t.FieldByName("V"); ok {
				return NormalizeType(v.Type)
			}
		}
	case reflect.Interface:
		return TypeObject, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return TypeBinary, nil
		}
	case reflect.Array:
		// Fixed size 16 byte arrays are GUIDs in all but name.
		if t.Elem().Kind() == reflect.Uint8 && t.Len() == 16 {
			return TypeGUID, nil
		}
	}
	return 0, &TypeMappingError{Type: t}
}
