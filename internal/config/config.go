// Package config loads client settings from flags, the environment and an
// optional .env file using Viper.
package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jwulff/transcribe/internal/api"
	"github.com/jwulff/transcribe/internal/audio"
	"github.com/jwulff/transcribe/internal/db"
	"github.com/jwulff/transcribe/internal/job"
)

// Config holds the client configuration.
type Config struct {
	// APIURL is the backend root (e.g. http://localhost:5070).
	APIURL string `mapstructure:"TRANSCRIBE_API_URL"`
	// PollInterval is the wait between job status checks.
	PollInterval time.Duration `mapstructure:"TRANSCRIBE_POLL_INTERVAL"`
	// PollRetries is how many consecutive failed status checks are tolerated.
	PollRetries int `mapstructure:"TRANSCRIBE_POLL_RETRIES"`
	// HTTPTimeout bounds each backend request.
	HTTPTimeout time.Duration `mapstructure:"TRANSCRIBE_HTTP_TIMEOUT"`
	// DBPath is the SQLite file holding the saved session.
	DBPath string `mapstructure:"TRANSCRIBE_DB_PATH"`
	// ExportDir is where saved transcriptions are written.
	ExportDir string `mapstructure:"TRANSCRIBE_EXPORT_DIR"`
	// LogFile receives logs; the terminal belongs to the UI.
	LogFile string `mapstructure:"TRANSCRIBE_LOG_FILE"`
	// LogLevel is a logrus level name.
	LogLevel string `mapstructure:"TRANSCRIBE_LOG_LEVEL"`
	// LogoutOnInvalid clears a restored session the backend rejects with 401.
	LogoutOnInvalid bool `mapstructure:"TRANSCRIBE_LOGOUT_ON_INVALID"`
	// ServerLogout also notifies the backend on logout.
	ServerLogout bool `mapstructure:"TRANSCRIBE_SERVER_LOGOUT"`
	// RecordCommand captures WAV audio to stdout.
	RecordCommand string `mapstructure:"TRANSCRIBE_RECORD_COMMAND"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"api-url":       "TRANSCRIBE_API_URL",
	"poll-interval": "TRANSCRIBE_POLL_INTERVAL",
	"poll-retries":  "TRANSCRIBE_POLL_RETRIES",
	"db":            "TRANSCRIBE_DB_PATH",
	"export-dir":    "TRANSCRIBE_EXPORT_DIR",
	"log-file":      "TRANSCRIBE_LOG_FILE",
	"log-level":     "TRANSCRIBE_LOG_LEVEL",
}

// RegisterFlags adds the flags that override configuration keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("api-url", "", "backend URL")
	fs.Duration("poll-interval", 0, "wait between status checks")
	fs.Int("poll-retries", 0, "failed status checks tolerated before giving up")
	fs.String("db", "", "session database path")
	fs.String("export-dir", "", "directory for saved transcriptions")
	fs.String("log-file", "", "log file path")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
}

// DefaultLogFile returns the log path next to the session database.
func DefaultLogFile() string {
	return filepath.Join(filepath.Dir(db.DefaultDBPath()), "transcribe.log")
}

// Load reads .env (if present), the environment and any flags set in fs,
// in increasing precedence, and validates the result. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("TRANSCRIBE_API_URL", api.DefaultBaseURL)
	v.SetDefault("TRANSCRIBE_POLL_INTERVAL", job.DefaultInterval)
	v.SetDefault("TRANSCRIBE_POLL_RETRIES", 0)
	v.SetDefault("TRANSCRIBE_HTTP_TIMEOUT", 30*time.Second)
	v.SetDefault("TRANSCRIBE_DB_PATH", db.DefaultDBPath())
	v.SetDefault("TRANSCRIBE_EXPORT_DIR", ".")
	v.SetDefault("TRANSCRIBE_LOG_FILE", DefaultLogFile())
	v.SetDefault("TRANSCRIBE_LOG_LEVEL", "info")
	v.SetDefault("TRANSCRIBE_LOGOUT_ON_INVALID", false)
	v.SetDefault("TRANSCRIBE_SERVER_LOGOUT", false)
	v.SetDefault("TRANSCRIBE_RECORD_COMMAND", audio.DefaultRecordCommand)

	if fs != nil {
		for name, key := range flagKeys {
			// only flags the user actually set override lower layers
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	u, err := url.Parse(cfg.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New("config: TRANSCRIBE_API_URL must be an http(s) URL")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("config: TRANSCRIBE_POLL_INTERVAL must be positive")
	}
	if cfg.PollRetries < 0 {
		return nil, errors.New("config: TRANSCRIBE_POLL_RETRIES must not be negative")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, errors.New("config: TRANSCRIBE_LOG_LEVEL must be a log level")
	}
	if cfg.DBPath == "" {
		return nil, errors.New("config: TRANSCRIBE_DB_PATH must be set")
	}

	return &cfg, nil
}

// Level returns the parsed log level, info if invalid.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// OpenLog points logger at the configured file. The returned file must be
// closed by the caller.
func (c *Config) OpenLog(logger *logrus.Logger) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(c.LogFile), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(f)
	logger.SetLevel(c.Level())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	return f, nil
}
