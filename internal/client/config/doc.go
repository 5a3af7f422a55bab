// Package config loads runtime configuration for the AuthKeeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string    base URL of the auth API
//	-db string   path of the local token database
//	-timeout int request timeout (seconds)
//
// # JSON schema
//
//	{
//	  "server_url": "http://127.0.0.1:5000/api/auth",
//	  "token_db": "authkeeper.db",
//	  "request_timeout": "10s"
//	}
package config
