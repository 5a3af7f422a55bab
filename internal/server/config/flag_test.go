package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", "127.0.0.1:8080", "-g", ":6000", "-store", "memory", "-d", "db",
			"-challenge-store", "redis", "-redis", "redis:6379", "-s", "secret",
			"-t", "1", "-r", "3", "-o", "2", "-hash", "argon2id", "-cost", "12",
			"-revoke-on-reuse", "-m", "smtp",
		}, expected: &Config{
			EndpointAddrHTTP:             "127.0.0.1:8080",
			EndpointAddrGRPC:             ":6000",
			StoreKind:                    "memory",
			DatabaseDSN:                  "db",
			ChallengeStore:               "redis",
			RedisAddr:                    "redis:6379",
			SecretKey:                    "secret",
			AccessTokenValidityDuration:  1 * time.Minute,
			RefreshTokenValidityDuration: 3 * time.Minute,
			OTPValidityDuration:          2 * time.Minute,
			PasswordHashAlgorithm:        "argon2id",
			BcryptCost:                   12,
			RevokeOnReuse:                true,
			Mailer:                       "smtp",
		}},
		{name: "unknown flags are filtered", args: []string{"cmd", "-c", "conf.json", "-x", "1", "-s", "k"},
			expected: &Config{SecretKey: "k"}},
		{name: "bad int", args: []string{"cmd", "-t", "soon"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}

func TestParseFlags_KeepsFinerDurations(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"cmd", "-s", "k"}

	config := &Config{AccessTokenValidityDuration: 90 * time.Second}
	parseFlags(config)
	assert.Equal(t, 90*time.Second, config.AccessTokenValidityDuration)
}
