package typeinfo_test

import (
	"reflect"
	"sync"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/canonical/dataclient/internal/typeinfo"
)

// Hook up gocheck into the "go test" runner.
func TestTypeInfo(t *testing.T) { TestingT(t) }

type TypeInfoSuite struct{}

var _ = Suite(&TypeInfoSuite{})

type Audit struct {
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}

type Person struct {
	ID       int64  `db:"id,readonly"`
	Fullname string `db:"name"`
	Postcode string
	Secret   string `db:"-"`
	hidden   string
	Audit
	*Extra
}

type Extra struct {
	Note string `db:"note"`
}

type fieldSummary struct {
	name, column string
	index        []int
	readable     bool
}

func summarise(fields []typeinfo.Field) []fieldSummary {
	out := make([]fieldSummary, len(fields))
	for i, f := range fields {
		out[i] = fieldSummary{f.Name, f.Column, f.Index, f.Readable}
	}
	return out
}

func (s *TypeInfoSuite) TestFields(c *C) {
	cache := typeinfo.NewCache()
	info, err := cache.Get(reflect.TypeOf(Person{}))
	c.Assert(err, IsNil)
	c.Check(summarise(info.Fields), DeepEquals, []fieldSummary{
		{"ID", "id", []int{0}, false},
		{"Fullname", "name", []int{1}, true},
		{"Postcode", "Postcode", []int{2}, true},
		{"CreatedBy", "created_by", []int{5, 0}, true},
		{"CreatedAt", "created_at", []int{5, 1}, true},
		{"Note", "note", []int{6, 0}, true},
	})
	for _, f := range info.Fields {
		c.Check(f.Writable, Equals, true, Commentf("field %s", f.Name))
	}

	f, ok := info.Field("created_at")
	c.Assert(ok, Equals, true)
	c.Check(f.Type, Equals, reflect.TypeOf(time.Time{}))
	_, ok = info.Field("Secret")
	c.Check(ok, Equals, false)
	_, ok = info.Field("hidden")
	c.Check(ok, Equals, false)
}

func (s *TypeInfoSuite) TestPointersShareInfo(c *C) {
	cache := typeinfo.NewCache()
	a, err := cache.Get(reflect.TypeOf(Person{}))
	c.Assert(err, IsNil)
	b, err := cache.Get(reflect.TypeOf(&Person{}))
	c.Assert(err, IsNil)
	c.Check(a, Equals, b)
}

func (s *TypeInfoSuite) TestErrors(c *C) {
	type dupColumn struct {
		A string `db:"x"`
		B string `db:"x"`
	}
	type badFlag struct {
		A string `db:"a,omitempty"`
	}
	type badName struct {
		A string `db:"a b"`
	}
	var tests = []struct {
		summary string
		typ     reflect.Type
		err     string
	}{{
		summary: "not a struct",
		typ:     reflect.TypeOf(0),
		err:     "cannot obtain type information for int: not a struct",
	}, {
		summary: "duplicate column",
		typ:     reflect.TypeOf(dupColumn{}),
		err:     `column "x" appears in both field "A" and field "B" of struct dupColumn`,
	}, {
		summary: "unsupported flag",
		typ:     reflect.TypeOf(badFlag{}),
		err:     `cannot parse tag for field badFlag.A: unsupported flag "omitempty" in tag "a,omitempty"`,
	}, {
		summary: "invalid column name",
		typ:     reflect.TypeOf(badName{}),
		err:     `cannot parse tag for field badName.A: invalid column name in 'db' tag: "a b"`,
	}}

	cache := typeinfo.NewCache()
	for i, t := range tests {
		_, err := cache.Get(t.typ)
		c.Check(err, ErrorMatches, t.err, Commentf("test %d failed (%s)", i, t.summary))
	}
	_, err := cache.Get(nil)
	c.Check(err, ErrorMatches, "cannot reflect nil type")

	// Failures are not remembered.
	for i, t := range tests {
		_, err := cache.Get(t.typ)
		c.Check(err, ErrorMatches, t.err, Commentf("test %d failed on retry (%s)", i, t.summary))
	}
}

func (s *TypeInfoSuite) TestConcurrentGet(c *C) {
	cache := typeinfo.NewCache()
	const n = 16
	infos := make([]*typeinfo.Info, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := cache.Get(reflect.TypeOf(Person{}))
			if err == nil {
				infos[i] = info
			}
		}(i)
	}
	wg.Wait()
	for i := range infos {
		c.Check(infos[i], Equals, infos[0])
	}
	c.Check(infos[0], NotNil)
	info, err := cache.Get(reflect.TypeOf(&Person{}))
	c.Assert(err, IsNil)
	c.Check(info, Equals, infos[0])
}

func (s *TypeInfoSuite) TestShared(c *C) {
	c.Check(typeinfo.Shared(), Equals, typeinfo.Shared())
	c.Check(typeinfo.Shared(), Not(Equals), typeinfo.NewCache())
}
