package dataclient

import (
	"database/sql"
	"fmt"

	"github.com/canonical/dataclient/config"
)

// Open connects to the database ds describes and returns a client speaking
// its dialect. Options given here are applied after the dialect, so
// WithDialect still takes precedence. Close the client to release the
// database.
func Open(ds config.DataSource, opts ...Option) (*Client, error) {
	d, err := ds.Resolve()
	if err != nil {
		return nil, fmt.Errorf("cannot open data source: %w", err)
	}
	db, err := sql.Open(ds.Driver, ds.DSN)
	if err != nil {
		return nil, fmt.Errorf("cannot open data source: %w", err)
	}
	if ds.MaxOpenConns > 0 {
		db.SetMaxOpenConns(ds.MaxOpenConns)
	}
	c := New(FromDB(db), append([]Option{WithDialect(d)}, opts...)...)
	c.closer = db
	return c, nil
}
