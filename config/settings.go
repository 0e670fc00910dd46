package wampConfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DEFAULT_LOG_DIR      = "./logs"
	DEFAULT_SERIALIZER   = "json"
	DEFAULT_JOIN_TIMEOUT = 10 * time.Second
	DEFAULT_LEAVE_GRACE  = 3 * time.Second
	DEFAULT_LISTEN       = "127.0.0.1:8787"
)

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var e error
	d.Duration, e = time.ParseDuration(string(text))
	return e
}

type Settings struct {
	LogDir      string   `toml:"log_dir"`
	RealmsFile  string   `toml:"realms_file"`
	Serializer  string   `toml:"serializer"`
	JoinTimeout Duration `toml:"join_timeout"`
	LeaveGrace  Duration `toml:"leave_grace"`
	Listen      string   `toml:"listen"`
	Debug       bool     `toml:"debug"`
}

func DefaultSettings() *Settings {
	return &Settings{
		LogDir:      DEFAULT_LOG_DIR,
		Serializer:  DEFAULT_SERIALIZER,
		JoinTimeout: Duration{DEFAULT_JOIN_TIMEOUT},
		LeaveGrace:  Duration{DEFAULT_LEAVE_GRACE},
		Listen:      DEFAULT_LISTEN,
	}
}

// DefaultSettingsPath is config.toml under the user configuration directory
func DefaultSettingsPath() (string, error) {
	configDir, e := os.UserConfigDir()
	if e != nil {
		return "", fmt.Errorf("getting user config directory: %w", e)
	}
	return filepath.Join(configDir, "wampytester", "config.toml"), nil
}

// LoadSettings reads path, a missing file yields the defaults
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()
	data, e := os.ReadFile(path)
	if os.IsNotExist(e) {
		return settings, nil
	}
	if e != nil {
		return nil, fmt.Errorf("reading settings: %w", e)
	}
	e = toml.Unmarshal(data, settings)
	if e != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", e)
	}
	e = settings.Validate()
	if e != nil {
		return nil, e
	}
	return settings, nil
}

func (settings *Settings) Validate() error {
	if len(settings.LogDir) == 0 {
		settings.LogDir = DEFAULT_LOG_DIR
	}
	if len(settings.Serializer) == 0 {
		settings.Serializer = DEFAULT_SERIALIZER
	}
	if settings.Serializer != "json" && settings.Serializer != "msgpack" {
		return fmt.Errorf("unsupported serializer %q", settings.Serializer)
	}
	if settings.JoinTimeout.Duration <= 0 {
		settings.JoinTimeout = Duration{DEFAULT_JOIN_TIMEOUT}
	}
	if settings.LeaveGrace.Duration <= 0 {
		settings.LeaveGrace = Duration{DEFAULT_LEAVE_GRACE}
	}
	if len(settings.Listen) == 0 {
		settings.Listen = DEFAULT_LISTEN
	}
	return nil
}

func (settings *Settings) Save(path string) error {
	e := os.MkdirAll(filepath.Dir(path), 0o755)
	if e != nil {
		return fmt.Errorf("creating config directory: %w", e)
	}
	data, e := toml.Marshal(settings)
	if e != nil {
		return fmt.Errorf("marshaling settings: %w", e)
	}
	return os.WriteFile(path, data, 0o644)
}

// LogLevel maps the debug switch onto a slog level
func (settings *Settings) LogLevel() slog.Level {
	if settings.Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
