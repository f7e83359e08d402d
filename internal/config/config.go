package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds runtime settings for the sync engine and its host.
//
// Units: every interval is a time.Duration; in files and environment
// variables they are written as Go duration strings ("30s", "168h").
type Config struct {
	ServerURL            string        `mapstructure:"server_url"`
	DatabasePath         string        `mapstructure:"database_path"`
	SyncInterval         time.Duration `mapstructure:"sync_interval"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	DrainTimeout         time.Duration `mapstructure:"drain_timeout"`
	OutboxRetention      time.Duration `mapstructure:"outbox_retention"`
	ConsistencyThreshold float64       `mapstructure:"consistency_threshold"`
	ConsistencyMinSample int           `mapstructure:"consistency_min_sample"`
	TenantID             int64         `mapstructure:"tenant_id"`
	AuthToken            string        `mapstructure:"auth_token"`

	Log     LogConfig     `mapstructure:"log"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

// LogConfig selects level, encoding and optional rotated log file.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// ArchiveConfig controls the snapshot taken before a destructive schema
// rebuild. Type is one of "none", "file", "s3" or "http".
type ArchiveConfig struct {
	Type        string `mapstructure:"type"`
	Dir         string `mapstructure:"dir"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Prefix    string `mapstructure:"s3_prefix"`
	// UploadURL is the PUT target of the http type; "{name}" is replaced by
	// the snapshot file name.
	UploadURL string `mapstructure:"upload_url"`
}

// EnvPrefix is the prefix of environment overrides, e.g. REGIFARM_SERVER_URL
// or REGIFARM_ARCHIVE_TYPE.
const EnvPrefix = "REGIFARM"

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8000/api/v1"
	c.DatabasePath = "regifarm.db"
	c.SyncInterval = 5 * time.Minute
	c.RequestTimeout = 30 * time.Second
	c.DrainTimeout = 10 * time.Second
	c.OutboxRetention = 7 * 24 * time.Hour
	c.ConsistencyThreshold = 0.3
	c.ConsistencyMinSample = 20
	c.Log = LogConfig{Level: "info", Format: "json", MaxSizeMB: 10, MaxBackups: 3}
	c.Archive = ArchiveConfig{Type: "none", Dir: "backups", S3Region: "us-east-1", S3Prefix: "regifarm/"}
}

// Validate reports settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerURL == "" {
		errs = append(errs, errors.New("server_url is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.SyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync_interval must be positive, got %s", c.SyncInterval))
	}
	if c.ConsistencyThreshold <= 0 || c.ConsistencyThreshold > 1 {
		errs = append(errs, fmt.Errorf("consistency_threshold must be in (0, 1], got %v", c.ConsistencyThreshold))
	}
	switch c.Archive.Type {
	case "", "none", "file":
	case "s3":
		if c.Archive.S3Bucket == "" {
			errs = append(errs, errors.New("archive.s3_bucket is required for s3 archive"))
		}
	case "http":
		if c.Archive.UploadURL == "" {
			errs = append(errs, errors.New("archive.upload_url is required for http archive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown archive.type %q", c.Archive.Type))
	}
	return errors.Join(errs...)
}

// setDefaults registers every key with viper so that AutomaticEnv can see it.
func setDefaults(v *viper.Viper) {
	var d Config
	d.LoadDefaults()

	v.SetDefault("server_url", d.ServerURL)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("sync_interval", d.SyncInterval)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("drain_timeout", d.DrainTimeout)
	v.SetDefault("outbox_retention", d.OutboxRetention)
	v.SetDefault("consistency_threshold", d.ConsistencyThreshold)
	v.SetDefault("consistency_min_sample", d.ConsistencyMinSample)
	v.SetDefault("tenant_id", d.TenantID)
	v.SetDefault("auth_token", d.AuthToken)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)

	v.SetDefault("archive.type", d.Archive.Type)
	v.SetDefault("archive.dir", d.Archive.Dir)
	v.SetDefault("archive.s3_bucket", d.Archive.S3Bucket)
	v.SetDefault("archive.s3_region", d.Archive.S3Region)
	v.SetDefault("archive.s3_endpoint", d.Archive.S3Endpoint)
	v.SetDefault("archive.s3_access_key", d.Archive.S3AccessKey)
	v.SetDefault("archive.s3_secret_key", d.Archive.S3SecretKey)
	v.SetDefault("archive.s3_prefix", d.Archive.S3Prefix)
	v.SetDefault("archive.upload_url", d.Archive.UploadURL)
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"server":          "server_url",
	"db":              "database_path",
	"interval":        "sync_interval",
	"tenant":          "tenant_id",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"log-file":        "log.file",
	"archive":         "archive.type",
	"request-timeout": "request_timeout",
}

// RegisterFlags declares the flags understood by Load on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.String("config", "", "path to a config file (yaml, json or toml)")
	fs.String("server", d.ServerURL, "base URL of the remote service")
	fs.String("db", d.DatabasePath, "path to the local database file")
	fs.Duration("interval", d.SyncInterval, "background sync interval")
	fs.Int64("tenant", 0, "explicit tenant (azienda) id")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	fs.String("log-format", d.Log.Format, "log format: json or text")
	fs.String("log-file", "", "optional rotated log file")
	fs.String("archive", d.Archive.Type, "pre-rebuild snapshot target: none, file, s3 or http")
	fs.Duration("request-timeout", d.RequestTimeout, "timeout of a single remote request")
}

// Load builds a Config by applying, in order of increasing precedence:
// defaults, the config file named by --config (if any), REGIFARM_* environment
// variables, and flags explicitly set on fs. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
