package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

var knownFlags = flagx.NewFilter([]string{
	"-a", "-g", "-store", "-d", "-challenge-store", "-redis", "-s",
	"-t", "-r", "-o", "-hash", "-cost", "-m",
}, "-revoke-on-reuse")

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string               HTTP bind address (e.g. ":5000")
//	-g string               gRPC health bind address
//	-store string           postgres | memory
//	-d string               PostgreSQL DSN
//	-challenge-store string sql | redis
//	-redis string           Redis address
//	-s string               JWT HMAC secret key
//	-t int                  access token validity, minutes
//	-r int                  refresh token validity, minutes
//	-o int                  OTP validity, minutes
//	-hash string            bcrypt | argon2id
//	-cost int               bcrypt cost
//	-revoke-on-reuse        revoke all sessions of a user on refresh token reuse
//	-m string               log | smtp
//
// os.Args is filtered through knownFlags first so that -c/-config and
// flags of other components do not collide.
func parseFlags(config *Config) {
	args := knownFlags.Apply(os.Args[1:])

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC health address and port")
	fs.StringVar(&config.StoreKind, "store", config.StoreKind, "store kind (postgres|memory)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.ChallengeStore, "challenge-store", config.ChallengeStore, "OTP challenge store (sql|redis)")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")
	otpValidityDuration := fs.Int("o", int(config.OTPValidityDuration.Minutes()), "otp_validity_duration (in minutes)")

	fs.StringVar(&config.PasswordHashAlgorithm, "hash", config.PasswordHashAlgorithm, "password hash algorithm (bcrypt|argon2id)")
	fs.IntVar(&config.BcryptCost, "cost", config.BcryptCost, "bcrypt cost")
	fs.BoolVar(&config.RevokeOnReuse, "revoke-on-reuse", config.RevokeOnReuse, "revoke all sessions when a rotated refresh token is reused")
	fs.StringVar(&config.Mailer, "m", config.Mailer, "mailer (log|smtp)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// durations from earlier sources may be finer than a minute
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
		case "o":
			config.OTPValidityDuration = time.Duration(*otpValidityDuration) * time.Minute
		}
	})
}
