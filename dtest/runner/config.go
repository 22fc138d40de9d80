package runner

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/dtest-go/dtest"
	"github.com/dshills/dtest-go/dtest/store"
)

// Config is the YAML-loadable run configuration.
//
// Example:
//
//	max_concurrent: 4
//	json_log: true
//	skip:
//	  - slow
//	  - platform=windows
type Config struct {
	// MaxConcurrent bounds parallel node execution; values below 1 mean
	// serial execution.
	MaxConcurrent int `yaml:"max_concurrent"`

	// NoSkip ignores skip requests made at declaration time, forcing
	// those nodes to run.
	NoSkip bool `yaml:"no_skip"`

	// Skip lists attribute selectors for nodes to skip, each either a
	// bare attribute name ("slow") or a name=value pair
	// ("platform=windows").
	Skip []string `yaml:"skip"`

	// JSONLog switches log events to JSONL output.
	JSONLog bool `yaml:"json_log"`

	// SQLitePath archives runs to a SQLite file when set.
	SQLitePath string `yaml:"sqlite_path"`

	// MySQLDSN archives runs to a MySQL database when set. It takes
	// precedence over SQLitePath.
	MySQLDSN string `yaml:"mysql_dsn"`
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SkipRule builds the skip predicate the configuration describes: nodes
// that requested a skip (unless NoSkip) plus nodes matching any attribute
// selector.
func (c Config) SkipRule() func(*dtest.Node) bool {
	type selector struct {
		key      string
		value    string
		hasValue bool
	}
	selectors := make([]selector, 0, len(c.Skip))
	for _, raw := range c.Skip {
		key, value, found := strings.Cut(raw, "=")
		selectors = append(selectors, selector{key: key, value: value, hasValue: found})
	}

	return func(n *dtest.Node) bool {
		if !c.NoSkip && n.SkipRequested() {
			return true
		}
		for _, sel := range selectors {
			v, ok := n.Attr(sel.key)
			if !ok {
				continue
			}
			if !sel.hasValue || fmt.Sprintf("%v", v) == sel.value {
				return true
			}
		}
		return false
	}
}

// OpenStore opens the archive the configuration names, or (nil, nil)
// when none is configured. The caller owns closing the store.
func (c Config) OpenStore() (store.Store, error) {
	switch {
	case c.MySQLDSN != "":
		return store.NewMySQLStore(c.MySQLDSN)
	case c.SQLitePath != "":
		return store.NewSQLiteStore(c.SQLitePath)
	}
	return nil, nil
}

// Options converts the configuration into runner options. The archive
// store is opened separately via OpenStore, since it can fail.
func (c Config) Options() []Option {
	return []Option{
		WithMaxConcurrent(c.MaxConcurrent),
		WithSkipRule(c.SkipRule()),
	}
}
