package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the web surface.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" env:"USERNAME"`
	Password string `yaml:"password" json:"password" env:"PASSWORD"`
}

// CalendarConfig is the metadata written into exported calendars.
type CalendarConfig struct {
	Name        string `yaml:"name" json:"name" env:"NAME" validate:"required"`
	Description string `yaml:"description" json:"description" env:"DESCRIPTION"`
	ProductID   string `yaml:"product_id" json:"product_id" env:"PRODUCT_ID" validate:"required"`
	UIDDomain   string `yaml:"uid_domain" json:"uid_domain" env:"UID_DOMAIN" validate:"required,hostname"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for `signalcal serve`.
	Listen string `yaml:"listen" json:"listen" env:"LISTEN" validate:"required,hostname_port"`

	// Timezone is the IANA zone used for "today" and decoded anchor dates.
	// Empty means the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone" env:"TIMEZONE"`

	// Weeks is how many weeks a schedule covers.
	Weeks int `yaml:"weeks" json:"weeks" env:"WEEKS" validate:"min=1,max=520"`

	// WordsFile replaces the embedded word list when set. Every family
	// member must use the same list to get the same words.
	WordsFile string `yaml:"words_file" json:"words_file" env:"WORDS_FILE"`

	// Rotation is a standard 5-field cron expression for when the signal
	// word changes. The default is Monday 00:00.
	Rotation string `yaml:"rotation" json:"rotation" env:"ROTATION" validate:"required"`

	// AllowWeakEntropy lets `new` fall back to a non-cryptographic source
	// (loudly) when the system source fails.
	AllowWeakEntropy bool `yaml:"allow_weak_entropy" json:"allow_weak_entropy" env:"ALLOW_WEAK_ENTROPY"`

	// PDFTimeout bounds headless Chromium when printing to PDF.
	PDFTimeout time.Duration `yaml:"pdf_timeout" json:"pdf_timeout" env:"PDF_TIMEOUT" validate:"gte=0"`

	LogLevel string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`

	Calendar CalendarConfig `yaml:"calendar" json:"calendar" envPrefix:"CALENDAR_"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty" env:",init" envPrefix:"BASIC_AUTH_"`
}

// EnvPrefix is prepended to every environment override, e.g.
// SIGNALCAL_WEEKS=104.
const EnvPrefix = "SIGNALCAL_"

const (
	defaultListen   = "127.0.0.1:8080"
	defaultWeeks    = 52
	defaultRotation = "0 0 * * 1"
	defaultLogLevel = "info"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:     defaultListen,
		Weeks:      defaultWeeks,
		Rotation:   defaultRotation,
		PDFTimeout: 30 * time.Second,
		LogLevel:   defaultLogLevel,
		Calendar: CalendarConfig{
			Name:        "Family Signal Words",
			Description: "Weekly rotating security words to protect against AI voice scams",
			ProductID:   "-//Family Signal Words//EN",
			UIDDomain:   "family-security.app",
		},
	}
}

// Normalize fills in missing/zero values so partially-filled configs
// still behave.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Weeks == 0 {
		c.Weeks = d.Weeks
	}
	if c.Rotation == "" {
		c.Rotation = d.Rotation
	}
	if c.PDFTimeout == 0 {
		c.PDFTimeout = d.PDFTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Calendar.Name == "" {
		c.Calendar.Name = d.Calendar.Name
	}
	if c.Calendar.Description == "" {
		c.Calendar.Description = d.Calendar.Description
	}
	if c.Calendar.ProductID == "" {
		c.Calendar.ProductID = d.Calendar.ProductID
	}
	if c.Calendar.UIDDomain == "" {
		c.Calendar.UIDDomain = d.Calendar.UIDDomain
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Validate checks field constraints plus the timezone and cron syntax.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Timezone, err)
	}
	if _, err := c.RotationSchedule(); err != nil {
		return fmt.Errorf("invalid config: rotation %q: %w", c.Rotation, err)
	}
	return nil
}

// Location resolves Timezone; empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// RotationSchedule parses Rotation as a standard cron expression.
func (c *Config) RotationSchedule() (cron.Schedule, error) {
	return cron.ParseStandard(c.Rotation)
}

// Load loads configuration from the given YAML path, then applies
// SIGNALCAL_* environment overrides and validates the result.
//
// Behavior:
//   - If path is empty, defaults are used without touching disk.
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is read and normalized.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return nil, fmt.Errorf("write default config: %w", err)
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".signalcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
