package dialect

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownDialect is returned when no dialect is registered under a name.
var ErrUnknownDialect = errors.New("unknown dialect")

var (
	registryMu sync.RWMutex
	registry   = map[string]Dialect{
		"tsql2005": TSQL2005{},
		"sqlite3":  SQLite3{},
	}
)

// drivers maps database/sql driver names to the dialect they speak.
var drivers = map[string]string{
	"sqlite3":   "sqlite3",
	"sqlite":    "sqlite3",
	"sqlserver": "tsql2005",
	"mssql":     "tsql2005",
	"azuresql":  "tsql2005",
}

// Register makes d available under name. Names are case insensitive. It
// panics if name is empty or d is nil, and replaces an existing entry.
func Register(name string, d Dialect) {
	if name == "" {
		panic("dialect: Register called with empty name")
	}
	if d == nil {
		panic("dialect: Register dialect is nil")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = d
}

// Get returns the dialect registered under name.
func Get(name string) (Dialect, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("cannot get dialect %q: %w", name, ErrUnknownDialect)
	}
	return d, nil
}

// ForDriver returns the dialect spoken by the database/sql driver
// registered as driverName. A dialect registered under the driver's own
// name takes precedence.
func ForDriver(driverName string) (Dialect, error) {
	name := strings.ToLower(driverName)
	if d, err := Get(name); err == nil {
		return d, nil
	}
	if alias, ok := drivers[name]; ok {
		return Get(alias)
	}
	return nil, fmt.Errorf("cannot get dialect for driver %q: %w", driverName, ErrUnknownDialect)
}

// Names returns the registered dialect names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
