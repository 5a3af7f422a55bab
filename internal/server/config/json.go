package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "15m"/"7d" strings and integer nanoseconds work.
// Pointer fields distinguish "absent" from "false"/"0".
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`

	StoreKind      string `json:"store"`
	DatabaseDSN    string `json:"database_dsn"`
	ChallengeStore string `json:"challenge_store"`
	RedisAddr      string `json:"redis_addr"`
	RedisPassword  string `json:"redis_password"`

	SecretKey                    string         `json:"secret_key"`
	TokenIssuer                  string         `json:"token_issuer"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	OTPValidityDuration          timex.Duration `json:"otp_validity_duration"`
	PasswordHashAlgorithm        string         `json:"password_hash_algorithm"`
	BcryptCost                   int            `json:"bcrypt_cost"`
	RevokeOnReuse                *bool          `json:"revoke_on_reuse"`
	CleanupInterval              timex.Duration `json:"cleanup_interval"`

	Mailer       string `json:"mailer"`
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUser     string `json:"smtp_user"`
	SMTPPassword string `json:"smtp_password"`
	MailFrom     string `json:"mail_from"`
	MailArchive  *bool  `json:"mail_archive"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// parseJson loads the file named by -c / -config, if any, and copies every
// field present in it into config. It panics if the file cannot be read or
// parsed.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.StoreKind, c.StoreKind)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.ChallengeStore, c.ChallengeStore)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.TokenIssuer, c.TokenIssuer)
	setString(&config.PasswordHashAlgorithm, c.PasswordHashAlgorithm)
	setString(&config.Mailer, c.Mailer)
	setString(&config.SMTPHost, c.SMTPHost)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)

	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.OTPValidityDuration.Duration != 0 {
		config.OTPValidityDuration = c.OTPValidityDuration.Duration
	}
	if c.CleanupInterval.Duration != 0 {
		config.CleanupInterval = c.CleanupInterval.Duration
	}

	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.SMTPPort != 0 {
		config.SMTPPort = c.SMTPPort
	}
	if c.RevokeOnReuse != nil {
		config.RevokeOnReuse = *c.RevokeOnReuse
	}
	if c.MailArchive != nil {
		config.MailArchive = *c.MailArchive
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
