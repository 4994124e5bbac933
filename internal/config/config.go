// Package config loads artscan settings from an optional YAML file and the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Identify  IdentifyConfig  `yaml:"identify"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Camera    CameraConfig    `yaml:"camera"`
	Narration NarrationConfig `yaml:"narration"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	I18n      I18nConfig      `yaml:"i18n"`
}

// AppConfig holds process-level settings
type AppConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port           int    `yaml:"port"`
	StaticDir      string `yaml:"static_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	SecureCookies  bool   `yaml:"secure_cookies"`
}

// Address returns the listen address
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.MaxUploadBytes, validation.Required, validation.Min(int64(1024))),
	)
}

// IdentifyConfig selects the vision model
type IdentifyConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

func (c *IdentifyConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In("gemini", "openai", "ollama")),
		validation.Field(&c.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.Timeout, validation.Required),
	)
}

// CatalogConfig points at an artwork catalog; empty uses the built-in one
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// CameraConfig configures the live capture source
type CameraConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Command        string        `yaml:"command"`
	InputFormat    string        `yaml:"input_format"`
	Device         string        `yaml:"device"`
	FrameRate      int           `yaml:"frame_rate"`
	StartupTimeout time.Duration `yaml:"startup_timeout"`
}

func (c *CameraConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Command, validation.Required),
		validation.Field(&c.Device, validation.Required),
		validation.Field(&c.FrameRate, validation.Min(1), validation.Max(60)),
	)
}

// NarrationConfig configures text-to-speech
type NarrationConfig struct {
	// Command is the TTS program; "silent" disables audio
	Command string `yaml:"command"`
}

// SQLiteConfig holds the database location
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AnalyticsConfig selects event sinks
type AnalyticsConfig struct {
	Log    bool       `yaml:"log"`
	Store  bool       `yaml:"store"`
	Buffer int        `yaml:"buffer"`
	MQTT   MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig is optional; an empty broker disables the MQTT sink
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func (c *MQTTConfig) Validate() error {
	if c.Broker == "" {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.Topic, validation.Required),
	)
}

// I18nConfig locates the string tables
type I18nConfig struct {
	Dir     string   `yaml:"dir"`
	Locales []string `yaml:"locales"`
	Watch   bool     `yaml:"watch"`
}

// Validate validates the whole configuration
func (c *Config) Validate() error {
	validators := []validation.Validatable{
		&c.App.HTTP, &c.Identify, &c.Camera, &c.SQLite, &c.Analytics.MQTT,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultConfig returns the settings used when nothing is configured
func NewDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:           8888,
				StaticDir:      "static",
				MaxUploadBytes: 10 << 20, // 10MB
			},
		},
		Identify: IdentifyConfig{
			Provider:    "gemini",
			Temperature: 0.1,
			Timeout:     60 * time.Second,
		},
		Camera: CameraConfig{
			Enabled:        true,
			Command:        "ffmpeg",
			InputFormat:    "v4l2",
			Device:         "/dev/video0",
			FrameRate:      5,
			StartupTimeout: 10 * time.Second,
		},
		Narration: NarrationConfig{
			Command: "espeak-ng",
		},
		SQLite: SQLiteConfig{
			Path: "artscan.db",
		},
		Analytics: AnalyticsConfig{
			Log:    true,
			Store:  true,
			Buffer: 1024,
			MQTT: MQTTConfig{
				ClientID: "artscan",
				Topic:    "artscan/events",
			},
		},
		I18n: I18nConfig{
			Dir:     "locales",
			Locales: []string{"en", "es"},
		},
	}
}

// Load reads filename (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(filename string) (*Config, error) {
	cfg := NewDefaultConfig()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("IDENTIFY_PROVIDER"); v != "" {
		c.Identify.Provider = v
	}
	if v := os.Getenv("IDENTIFY_MODEL"); v != "" {
		c.Identify.Model = v
	}
	if v := os.Getenv("IDENTIFY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid IDENTIFY_TIMEOUT: %w", err)
		}
		c.Identify.Timeout = d
	}
	if v := os.Getenv("ARTSCAN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ARTSCAN_PORT: %w", err)
		}
		c.App.HTTP.Port = port
	}
	if v := os.Getenv("ARTSCAN_CATALOG"); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("ARTSCAN_DB"); v != "" {
		c.SQLite.Path = v
	}
	if v := os.Getenv("CAMERA_DEVICE"); v != "" {
		c.Camera.Device = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.Analytics.MQTT.Broker = v
	}
	return nil
}
