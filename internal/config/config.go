package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read into the config.
// A double underscore separates nested keys: KNOLSTUDY_SESSION__IDLE_TIMEOUT.
const EnvPrefix = "KNOLSTUDY_"

type Config struct {
	DB      DB      `koanf:"db"`
	HTTP    HTTP    `koanf:"http"`
	Sources Sources `koanf:"sources"`
	Session Session `koanf:"session"`
	Log     Log     `koanf:"log"`
}

type DB struct {
	Path string `koanf:"path" validate:"required"`
}

type HTTP struct {
	Listen       string        `koanf:"listen" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
}

type Sources struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

type Session struct {
	IdleTimeout    time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	SweepInterval  time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	Retention      time.Duration `koanf:"retention" validate:"gte=0"`
	ReviewAttempts int           `koanf:"review_attempts" validate:"min=1,max=10"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		DB: DB{Path: "knolstudy.db"},
		HTTP: HTTP{
			Listen:       "localhost:8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Sources: Sources{ReposDir: "repos"},
		Session: Session{
			IdleTimeout:    30 * time.Minute,
			SweepInterval:  time.Minute,
			Retention:      24 * time.Hour,
			ReviewAttempts: 3,
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// FlagKeys maps command-line flag names to config keys. Flags not listed
// here are not read into the config.
var FlagKeys = map[string]string{
	"db":           "db.path",
	"listen":       "http.listen",
	"repos-dir":    "sources.repos_dir",
	"idle-timeout": "session.idle_timeout",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

// Load builds the configuration from the defaults, then the YAML file at
// path (if path is non-empty), then the environment, then any flags in fs
// that were set explicitly. Later sources win.
func Load(fs *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envKey := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if fs != nil {
		flagKey := func(f *pflag.Flag) (string, interface{}) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		}
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagKey), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// NewLogger builds the process logger described by the log section.
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
