// Package config loads runtime configuration for the RegiFarm sync engine.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with --config (yaml, json or toml).
//  3. Environment variables prefixed with REGIFARM_, nested keys joined by
//     underscores (REGIFARM_ARCHIVE_S3_BUCKET).
//  4. Command-line flags explicitly set by the user.
//
// Supported flags
//
//	--config string          config file
//	--server string          base URL of the remote service
//	--db string              local database path
//	--interval duration      background sync interval
//	--tenant int             explicit tenant (azienda) id
//	--log-level string       debug, info, warn, error
//	--log-format string      json or text
//	--log-file string        rotated log file
//	--archive string         none, file, s3 or http
//	--request-timeout duration
//
// # File schema
//
//	server_url: https://regifarm.example.com/api/v1
//	database_path: /var/lib/regifarm/regifarm.db
//	sync_interval: 5m
//	outbox_retention: 168h
//	consistency_threshold: 0.3
//	log:
//	  level: info
//	  file: /var/log/regifarm/sync.log
//	archive:
//	  type: s3
//	  s3_bucket: regifarm-backups
//	  s3_endpoint: http://127.0.0.1:9000
//
// Primary API
//
//   - type Config: all runtime settings
//   - func RegisterFlags(*FlagSet): declares the flags on a cobra/pflag set
//   - func Load(*FlagSet) (*Config, error): merges every source and validates
//   - func (*Config) LoadDefaults(): sets the defaults
package config
