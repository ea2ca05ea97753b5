// Package config loads server configuration from a TOML file, with
// sensible defaults when no file is given. Command-line flags in
// cmd/server override individual values.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `toml:"listen"`

	// DBPath is the SQLite database path. ":memory:" for ephemeral.
	DBPath string `toml:"db_path"`

	// LowBalanceThreshold drives the low_balance hint in operation
	// responses: true when 0 < balance <= threshold. Callers use it to
	// trigger "running low" notifications; the server sends none itself.
	LowBalanceThreshold int64 `toml:"low_balance_threshold"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:              ":8080",
		DBPath:              "credits.db",
		LowBalanceThreshold: 30,
	}
}

// Load reads the TOML file at path over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}
