// Package config provides configuration management for stepflow.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xvierd/stepflow/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. STEPFLOW_AI_API_KEY.
const EnvPrefix = "STEPFLOW"

const defaultDataDir = "~/.stepflow"

// ErrUnknownKey is returned by Set for keys that are not part of the config.
var ErrUnknownKey = errors.New("unknown config key")

// Config holds all configuration for stepflow.
type Config struct {
	Focus         FocusConfig        `mapstructure:"focus"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	AI            AIConfig           `mapstructure:"ai"`
	Server        ServerConfig       `mapstructure:"server"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Log           LogConfig          `mapstructure:"log"`
	Theme         ThemeConfig        `mapstructure:"theme"`
}

// FocusConfig holds session and break settings.
type FocusConfig struct {
	SessionDuration    Duration `mapstructure:"session_duration"`
	BreakDuration      Duration `mapstructure:"break_duration"`
	LongBreakDuration  Duration `mapstructure:"long_break_duration"`
	AutoStartBreaks    bool     `mapstructure:"auto_start_breaks"`
	SessionsBeforeLong int      `mapstructure:"sessions_before_long"`
}

// NotificationConfig holds notification settings.
type NotificationConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Sound   bool `mapstructure:"sound"`
}

// AIConfig holds the step breakdown endpoint. An empty APIKey disables it.
type AIConfig struct {
	Endpoint string   `mapstructure:"endpoint"`
	Model    string   `mapstructure:"model"`
	APIKey   string   `mapstructure:"api_key"`
	Timeout  Duration `mapstructure:"timeout"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr      string   `mapstructure:"addr"`
	JWTSecret string   `mapstructure:"jwt_secret"`
	TokenTTL  Duration `mapstructure:"token_ttl"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LogConfig holds logging settings. An empty File logs to stderr only.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// ThemeConfig holds the terminal colors.
type ThemeConfig struct {
	ColorWork   string `mapstructure:"color_work"`
	ColorBreak  string `mapstructure:"color_break"`
	ColorPaused string `mapstructure:"color_paused"`
	ColorHelp   string `mapstructure:"color_help"`
}

// Duration is a wrapper around time.Duration for TOML parsing.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// String returns the string representation of the duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Focus: FocusConfig{
			SessionDuration:    Duration(25 * time.Minute),
			BreakDuration:      Duration(5 * time.Minute),
			LongBreakDuration:  Duration(15 * time.Minute),
			SessionsBeforeLong: 4,
		},
		Notifications: NotificationConfig{
			Enabled: true,
			Sound:   true,
		},
		AI: AIConfig{
			Endpoint: "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
			Timeout:  Duration(20 * time.Second),
		},
		Server: ServerConfig{
			Addr:     "127.0.0.1:7420",
			TokenTTL: Duration(30 * 24 * time.Hour),
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir,
		},
		Log: LogConfig{
			Level: "info",
		},
		Theme: ThemeConfig{
			ColorWork:   "#7C6FE0",
			ColorBreak:  "#4ECDC4",
			ColorPaused: "#6B7280",
			ColorHelp:   "#95A5A6",
		},
	}
}

// Load loads the configuration from the default config file, creating it
// with defaults on first run. A .env file in the working directory is read
// first so STEPFLOW_* variables can hold secrets.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return LoadFrom(configPath)
}

// LoadFrom loads the configuration from configPath.
func LoadFrom(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		if err := SaveTo(configPath, DefaultConfig()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return decode(v)
}

// Save saves the configuration to the default config file.
func Save(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return SaveTo(configPath, cfg)
}

// SaveTo writes cfg to configPath.
func SaveTo(configPath string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	for key, value := range flatten(cfg) {
		v.Set(key, value)
	}
	return v.WriteConfigAs(configPath)
}

// Set changes one key in the config file at configPath and returns the
// resulting configuration. The value is validated by decoding it.
func Set(configPath, key, value string) (*Config, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if _, ok := flatten(DefaultConfig())[key]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	cfg, err := LoadFrom(configPath)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	for k, val := range flatten(cfg) {
		v.Set(k, val)
	}
	v.Set(key, value)

	updated, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := SaveTo(configPath, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Keys returns every settable key in sorted order.
func Keys() []string {
	flat := flatten(DefaultConfig())
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the configuration as sorted key/value pairs. Secrets are
// masked.
func (c *Config) Values() [][2]string {
	flat := flatten(c)
	out := make([][2]string, 0, len(flat))
	for _, k := range Keys() {
		val := fmt.Sprint(flat[k])
		if isSecret(k) && val != "" {
			val = "********"
		}
		out = append(out, [2]string{k, val})
	}
	return out
}

// GetConfigPath returns the path to the config file.
func GetConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".stepflow", "config.toml"), nil
}

// GetDBPath returns the path to the database file.
func GetDBPath(cfg *Config) string {
	return filepath.Join(cfg.Storage.DataDir, "stepflow.db")
}

// ToSettings converts the config to the settings read by the focus flow.
func (c *Config) ToSettings() domain.Settings {
	return domain.Settings{
		DefaultSessionDuration:  time.Duration(c.Focus.SessionDuration),
		BreakDuration:           time.Duration(c.Focus.BreakDuration),
		LongBreakDuration:       time.Duration(c.Focus.LongBreakDuration),
		SessionsBeforeLongBreak: c.Focus.SessionsBeforeLong,
		AutoStartBreaks:         c.Focus.AutoStartBreaks,
		NotificationsEnabled:    c.Notifications.Enabled,
	}
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Expand ~ in data directory
	if cfg.Storage.DataDir == defaultDataDir || cfg.Storage.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.Storage.DataDir = filepath.Join(homeDir, ".stepflow")
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Focus.SessionDuration < Duration(time.Minute) {
		return fmt.Errorf("focus.session_duration must be at least 1m, got %s", c.Focus.SessionDuration)
	}
	if c.Focus.BreakDuration <= 0 || c.Focus.LongBreakDuration <= 0 {
		return errors.New("break durations must be positive")
	}
	if c.Focus.SessionsBeforeLong < 0 {
		return errors.New("focus.sessions_before_long cannot be negative")
	}
	return nil
}

// setDefaults sets default values for viper.
func setDefaults(v *viper.Viper) {
	for key, value := range flatten(DefaultConfig()) {
		v.SetDefault(key, value)
	}
}

// flatten maps every config key to its file representation.
func flatten(c *Config) map[string]any {
	return map[string]any{
		"focus.session_duration":     c.Focus.SessionDuration.String(),
		"focus.break_duration":       c.Focus.BreakDuration.String(),
		"focus.long_break_duration":  c.Focus.LongBreakDuration.String(),
		"focus.auto_start_breaks":    c.Focus.AutoStartBreaks,
		"focus.sessions_before_long": c.Focus.SessionsBeforeLong,
		"notifications.enabled":      c.Notifications.Enabled,
		"notifications.sound":        c.Notifications.Sound,
		"ai.endpoint":                c.AI.Endpoint,
		"ai.model":                   c.AI.Model,
		"ai.api_key":                 c.AI.APIKey,
		"ai.timeout":                 c.AI.Timeout.String(),
		"server.addr":                c.Server.Addr,
		"server.jwt_secret":          c.Server.JWTSecret,
		"server.token_ttl":           c.Server.TokenTTL.String(),
		"storage.data_dir":           c.Storage.DataDir,
		"log.level":                  c.Log.Level,
		"log.file":                   c.Log.File,
		"theme.color_work":           c.Theme.ColorWork,
		"theme.color_break":          c.Theme.ColorBreak,
		"theme.color_paused":         c.Theme.ColorPaused,
		"theme.color_help":           c.Theme.ColorHelp,
	}
}

func isSecret(key string) bool {
	return key == "ai.api_key" || key == "server.jwt_secret"
}
