// Package config assembles the bot configuration from two sources: required
// secrets from the environment (fatal when absent) and optional tunables from
// a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	// Required, environment-sourced.
	BotToken string
	APIID    int
	APIHash  string
	AdminID  int64

	// Tunables (file-sourced, defaulted).
	SessionsDir   string
	PollTimeout   time.Duration
	MTProtoDriver string

	Report  ReportConfig
	Logging LoggingConfig
	Storage StorageConfig
	Janitor JanitorConfig
}

type ReportConfig struct {
	SendInterval time.Duration
	FloodMargin  time.Duration
	Message      string
}

type LoggingConfig struct {
	Level    string
	Console  bool
	FilePath string // empty disables the file sink
}

type StorageConfig struct {
	Driver      string // "", "none", "file", "sqlite"
	Path        string
	BusyTimeout time.Duration
}

type JanitorConfig struct {
	Enabled  bool
	Schedule string // cron spec
}

// File is the YAML tunables document. All durations are Go duration strings
// (e.g. "500ms", "2s", "1m").
type File struct {
	SessionsDir   string `yaml:"sessions_dir"`
	PollTimeout   string `yaml:"poll_timeout"`
	MTProtoDriver string `yaml:"mtproto_driver"`

	Report struct {
		SendInterval string `yaml:"send_interval"`
		FloodMargin  string `yaml:"flood_margin"`
		Message      string `yaml:"message"`
	} `yaml:"report"`

	Logging struct {
		Level   string `yaml:"level"`
		Console *bool  `yaml:"console"`
		File    string `yaml:"file"`
	} `yaml:"logging"`

	Storage struct {
		Driver      string `yaml:"driver"`
		Path        string `yaml:"path"`
		BusyTimeout string `yaml:"busy_timeout"`
	} `yaml:"storage"`

	Janitor struct {
		Enabled  *bool  `yaml:"enabled"`
		Schedule string `yaml:"schedule"`
	} `yaml:"janitor"`
}

const (
	envBotToken = "BOT_TOKEN"
	envAPIID    = "API_ID"
	envAPIHash  = "API_HASH"
	envAdminID  = "ADMIN_ID"
)

// Load resolves the configuration. filePath may be empty (defaults only); a
// named file that does not exist is an error, so typos don't silently run the
// bot with defaults.
func Load(filePath string) (Config, error) {
	cfg := defaults()

	if filePath != "" {
		if err := applyFile(&cfg, filePath); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		SessionsDir:   "./sessions",
		PollTimeout:   10 * time.Second,
		MTProtoDriver: "sim",
		Report: ReportConfig{
			SendInterval: 2 * time.Second,
			FloodMargin:  5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Console: true},
		Janitor: JanitorConfig{Enabled: true, Schedule: "0 * * * *"},
	}
}

func applyEnv(cfg *Config) error {
	var missing []string

	cfg.BotToken = strings.TrimSpace(os.Getenv(envBotToken))
	if cfg.BotToken == "" {
		missing = append(missing, envBotToken)
	}

	cfg.APIHash = strings.TrimSpace(os.Getenv(envAPIHash))
	if cfg.APIHash == "" {
		missing = append(missing, envAPIHash)
	}

	if raw := strings.TrimSpace(os.Getenv(envAPIID)); raw == "" {
		missing = append(missing, envAPIID)
	} else {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return fmt.Errorf("%s: expected positive integer, got %q", envAPIID, raw)
		}
		cfg.APIID = v
	}

	if raw := strings.TrimSpace(os.Getenv(envAdminID)); raw == "" {
		missing = append(missing, envAdminID)
	} else {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v == 0 {
			return fmt.Errorf("%s: expected integer user id, got %q", envAdminID, raw)
		}
		cfg.AdminID = v
	}

	if len(missing) > 0 {
		return errors.New("missing required environment: " + strings.Join(missing, ", "))
	}
	return nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var f File
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if f.SessionsDir != "" {
		cfg.SessionsDir = f.SessionsDir
	}
	if f.MTProtoDriver != "" {
		cfg.MTProtoDriver = f.MTProtoDriver
	}
	if cfg.PollTimeout, err = parseDuration("poll_timeout", f.PollTimeout, cfg.PollTimeout); err != nil {
		return err
	}

	if cfg.Report.SendInterval, err = parseDuration("report.send_interval", f.Report.SendInterval, cfg.Report.SendInterval); err != nil {
		return err
	}
	if cfg.Report.FloodMargin, err = parseDuration("report.flood_margin", f.Report.FloodMargin, cfg.Report.FloodMargin); err != nil {
		return err
	}
	if f.Report.Message != "" {
		cfg.Report.Message = f.Report.Message
	}

	if f.Logging.Level != "" {
		cfg.Logging.Level = f.Logging.Level
	}
	if f.Logging.Console != nil {
		cfg.Logging.Console = *f.Logging.Console
	}
	if f.Logging.File != "" {
		cfg.Logging.FilePath = f.Logging.File
	}

	cfg.Storage.Driver = f.Storage.Driver
	cfg.Storage.Path = f.Storage.Path
	if cfg.Storage.BusyTimeout, err = parseDuration("storage.busy_timeout", f.Storage.BusyTimeout, 0); err != nil {
		return err
	}

	if f.Janitor.Enabled != nil {
		cfg.Janitor.Enabled = *f.Janitor.Enabled
	}
	if f.Janitor.Schedule != "" {
		cfg.Janitor.Schedule = f.Janitor.Schedule
	}
	return nil
}

func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
