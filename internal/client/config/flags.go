package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

var knownFlags = flagx.NewFilter([]string{"-a", "-db", "-timeout"})

// parseFlags populates Config fields from command-line flags. Only flags in
// knownFlags are looked at; -c/-config belong to parseJson.
func parseFlags(cfg *Config) {
	args := knownFlags.Apply(os.Args[1:])

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the auth API")
	fs.StringVar(&cfg.TokenDBPath, "db", cfg.TokenDBPath, "path of the local token database")
	timeout := fs.Int("timeout", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "timeout" {
			cfg.RequestTimeout = time.Duration(*timeout) * time.Second
		}
	})
}
