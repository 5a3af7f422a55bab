package config

import (
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

var envOptions = env.Options{
	FuncMap: map[reflect.Type]env.ParserFunc{
		reflect.TypeOf(time.Duration(0)): func(v string) (interface{}, error) {
			return timex.ParseDuration(v)
		},
	},
}

// parseEnv overlays variables that are set. Unset variables leave the
// current value untouched. Malformed values panic, as with JSON and flags.
func parseEnv(config *Config) {
	if err := env.ParseWithOptions(config, envOptions); err != nil {
		panic(err)
	}
}
