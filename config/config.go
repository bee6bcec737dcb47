// Package config reads named data source definitions.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/canonical/dataclient/dialect"
)

// EnvPrefix prefixes the environment variables that override settings, as
// in DATACLIENT_DATASOURCES_MAIN_DSN for datasources.main.dsn.
const EnvPrefix = "DATACLIENT"

// Config represents the data client configuration.
type Config struct {
	// Default names the data source used when none is asked for.
	Default     string                `mapstructure:"default"`
	DataSources map[string]DataSource `mapstructure:"datasources"`
}

// DataSource describes how to reach one database.
type DataSource struct {
	// Driver is the database/sql driver name. The driver must be linked
	// into the program.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	// Dialect names the SQL dialect. It defaults to the one the driver
	// speaks.
	Dialect string `mapstructure:"dialect"`

	MaxOpenConns int `mapstructure:"max_open_conns"`
}

// Resolve returns the dialect of ds.
func (ds DataSource) Resolve() (dialect.Dialect, error) {
	if ds.Dialect != "" {
		return dialect.Get(ds.Dialect)
	}
	return dialect.ForDriver(ds.Driver)
}

// ErrNoDataSource is returned when a data source is not configured.
var ErrNoDataSource = errors.New("data source not configured")

// Load reads the YAML configuration at path. Settings present in the file
// can be overridden from the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("default", "")
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Source returns the named data source. An empty name selects the default,
// or the only data source if there is just one. Names are case
// insensitive.
func (c *Config) Source(name string) (DataSource, error) {
	if name == "" {
		name = c.Default
	}
	if name == "" && len(c.DataSources) == 1 {
		for _, ds := range c.DataSources {
			return ds, nil
		}
	}
	ds, ok := c.DataSources[strings.ToLower(name)]
	if !ok {
		return DataSource{}, fmt.Errorf("cannot use data source %q: %w", name, ErrNoDataSource)
	}
	return ds, nil
}

// Names returns the configured data source names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.DataSources))
	for name := range c.DataSources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validateConfig(cfg *Config) error {
	for name, ds := range cfg.DataSources {
		if ds.Driver == "" {
			return fmt.Errorf("datasources.%s.driver must be set", name)
		}
		if _, err := ds.Resolve(); err != nil {
			return fmt.Errorf("datasources.%s: %w", name, err)
		}
		if ds.MaxOpenConns < 0 {
			return fmt.Errorf("datasources.%s.max_open_conns must not be negative, got: %d", name, ds.MaxOpenConns)
		}
	}
	if cfg.Default != "" {
		if _, ok := cfg.DataSources[strings.ToLower(cfg.Default)]; !ok {
			return fmt.Errorf("default data source %q is not configured", cfg.Default)
		}
	}
	return nil
}
