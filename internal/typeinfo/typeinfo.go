// Package typeinfo holds reflection information about the Go types that are
// mapped to and from table rows.
package typeinfo

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// Field represents reflection information about a mappable field of some
// struct type.
type Field struct {
	// Name is the name of the Go struct field.
	Name string

	// Column is the column (and parameter) name the field maps to. It is the
	// field name unless a "db" tag says otherwise.
	Column string

	Type reflect.Type

	// Index for reflect.Value.FieldByIndex.
	Index []int

	// Readable is false for fields tagged "readonly"; they are filled from
	// result rows but never sent to the database as parameters.
	Readable bool

	// Writable fields are assigned from result rows.
	Writable bool
}

// Info represents reflected information about a struct type.
type Info struct {
	Type reflect.Type

	// Fields in declaration order, with embedded struct fields promoted
	// into the position of the embedding field.
	Fields []Field

	columnToField map[string]int
}

// Field returns the field that maps to column, if any.
func (i *Info) Field(column string) (Field, bool) {
	n, ok := i.columnToField[column]
	if !ok {
		return Field{}, false
	}
	return i.Fields[n], true
}

// Cache memoizes Info values per type. It is safe for concurrent use and
// never evicts.
type Cache struct {
	mu    sync.RWMutex
	infos map[reflect.Type]*Info
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{infos: make(map[reflect.Type]*Info)}
}

var (
	shared     *Cache
	sharedOnce sync.Once
)

// Shared returns the process wide cache, creating it on first use.
func Shared() *Cache {
	sharedOnce.Do(func() { shared = NewCache() })
	return shared
}

// Get returns the Info of t, generating and caching it as required. Pointer
// types are dereferenced first. Generation errors are not cached.
func (c *Cache) Get(t reflect.Type) (*Info, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot reflect nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	c.mu.RLock()
	info, found := c.infos[t]
	c.mu.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another caller may have stored the type in the meantime; keep theirs
	// so every caller observes the same Info.
	if prev, ok := c.infos[t]; ok {
		return prev, nil
	}
	c.infos[t] = info
	return info, nil
}

// Fields is shorthand for Get(t).Fields.
func (c *Cache) Fields(t reflect.Type) ([]Field, error) {
	info, err := c.Get(t)
	if err != nil {
		return nil, err
	}
	return info.Fields, nil
}

// fieldIsStruct checks if the field is an embedded struct (or pointer to one)
// whose fields should be promoted. Structs that implement sql.Scanner, such
// as time.Time wrappers, are mapped as single values.
func fieldIsStruct(field reflect.StructField) bool {
	if !field.Anonymous {
		return false
	}
	ft := field.Type
	k := ft.Kind()
	return (k == reflect.Struct && !reflect.PointerTo(ft).Implements(scannerInterface)) ||
		(k == reflect.Pointer && ft.Elem().Kind() == reflect.Struct && !ft.Implements(scannerInterface))
}

// structFields returns the mappable fields of structType, including the
// promoted fields of embedded structs.
func structFields(structType reflect.Type) ([]Field, error) {
	var fields []Field
	for i := 0; i < structType.NumField(); i++ {
		sf := structType.Field(i)
		tag := sf.Tag.Get("db")
		if tag == "-" {
			continue
		}
		if fieldIsStruct(sf) && tag == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			nested, err := structFields(ft)
			if err != nil {
				return nil, err
			}
			for _, f := range nested {
				f.Index = append([]int{i}, f.Index...)
				fields = append(fields, f)
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}
		column, readonly, err := parseTag(tag)
		if err != nil {
			return nil, fmt.Errorf("cannot parse tag for field %s.%s: %s", structType.Name(), sf.Name, err)
		}
		if column == "" {
			column = sf.Name
		}
		fields = append(fields, Field{
			Name:     sf.Name,
			Column:   column,
			Type:     sf.Type,
			Index:    []int{i},
			Readable: !readonly,
			Writable: true,
		})
	}
	return fields, nil
}

func generate(t reflect.Type) (*Info, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot obtain type information for %s: not a struct", t)
	}
	fields, err := structFields(t)
	if err != nil {
		return nil, err
	}
	info := &Info{
		Type:          t,
		Fields:        fields,
		columnToField: make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if dup, ok := info.columnToField[f.Column]; ok {
			return nil, fmt.Errorf("column %q appears in both field %q and field %q of struct %s",
				f.Column, fields[dup].Name, f.Name, t.Name())
		}
		info.columnToField[f.Column] = i
	}
	return info, nil
}

// parseTag parses a "db" tag and returns its column name and whether it
// carries the "readonly" option.
func parseTag(tag string) (string, bool, error) {
	if tag == "" {
		return "", false, nil
	}
	options := strings.Split(tag, ",")
	var readonly bool
	for _, flag := range options[1:] {
		if flag == "readonly" {
			readonly = true
		} else {
			return "", false, fmt.Errorf("unsupported flag %q in tag %q", flag, tag)
		}
	}
	name := strings.TrimSpace(options[0])
	if strings.ContainsAny(name, " \t\n") {
		return "", false, fmt.Errorf("invalid column name in 'db' tag: %q", name)
	}
	return name, readonly, nil
}
