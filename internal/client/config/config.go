package config

import "time"

// Config holds runtime settings for the AuthKeeper CLI.
//
// Fields:
//   - ServerURL: base URL of the auth API, including the /api/auth prefix.
//   - TokenDBPath: SQLite file the session tokens are kept in between runs.
//   - RequestTimeout: upper bound for a single HTTP round trip.
type Config struct {
	ServerURL      string
	TokenDBPath    string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:5000/api/auth"
	c.TokenDBPath = "authkeeper.db"
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
