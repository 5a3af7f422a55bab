package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	TokenDBPath    string         `json:"token_db"`
	RequestTimeout timex.Duration `json:"request_timeout"`
}

// parseJson overlays Config with the fields present in the file named by
// -c / -config. It panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	path := flagx.ConfigFile()
	if path == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.TokenDBPath != "" {
		cfg.TokenDBPath = jc.TokenDBPath
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
	}
}
