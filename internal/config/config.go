package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mediasync/pkg/models"
)

// Remote holds the credentials for whichever remote backend is selected.
type Remote struct {
	Backend string `yaml:"backend"` // "dropbox" or "s3"

	// Dropbox-style backend.
	APIBase      string `yaml:"api_base"`
	ContentBase  string `yaml:"content_base"`
	AppKey       string `yaml:"app_key"`
	AppSecret    string `yaml:"app_secret"`
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`

	// S3-compatible backend.
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Log configures the process log sink.
type Log struct {
	Level      string `yaml:"level"`       // debug|info|warn|error
	File       string `yaml:"file"`        // empty = stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"` // rotation threshold
	MaxBackups int    `yaml:"max_backups"`
}

// Config is the full mediasync configuration, loaded from YAML with
// MEDIASYNC_* environment overrides.
type Config struct {
	DBPath      string `yaml:"db_path"`
	ContentRoot string `yaml:"content_root"`
	StagingDir  string `yaml:"staging_dir"`

	RootPath          string                `yaml:"root_path"` // remote root, e.g. /mediasync
	ConflictPolicy    models.ConflictPolicy `yaml:"conflict_policy"`
	AllowedExtensions []string              `yaml:"allowed_extensions"`
	SyncFrequency     time.Duration         `yaml:"sync_frequency"`
	Workers           int                   `yaml:"workers"` // upload parallelism

	ActivityLogCap int    `yaml:"activity_log_cap"`
	WebhookAddr    string `yaml:"webhook_addr"`

	Remote Remote `yaml:"remote"`
	Log    Log    `yaml:"log"`
}

// Load reads the config file at path, applies environment overrides and
// defaults, and validates the result. A .env file next to the working
// directory is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		DBPath:            "mediasync.db",
		StagingDir:        os.TempDir(),
		RootPath:          "/mediasync",
		ConflictPolicy:    models.PolicyNewerWins,
		AllowedExtensions: []string{"jpg", "jpeg", "png", "gif", "webp", "mp4", "pdf"},
		SyncFrequency:     15 * time.Minute,
		Workers:           4,
		ActivityLogCap:    500,
		WebhookAddr:       ":8477",
		Log: Log{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MEDIASYNC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MEDIASYNC_CONTENT_ROOT"); v != "" {
		cfg.ContentRoot = v
	}
	if v := os.Getenv("MEDIASYNC_ROOT_PATH"); v != "" {
		cfg.RootPath = v
	}
	if v := os.Getenv("MEDIASYNC_CONFLICT_POLICY"); v != "" {
		cfg.ConflictPolicy = models.ConflictPolicy(v)
	}
	if v := os.Getenv("MEDIASYNC_ACCESS_TOKEN"); v != "" {
		cfg.Remote.AccessToken = v
	}
	if v := os.Getenv("MEDIASYNC_REFRESH_TOKEN"); v != "" {
		cfg.Remote.RefreshToken = v
	}
	if v := os.Getenv("MEDIASYNC_S3_ACCESS_KEY"); v != "" {
		cfg.Remote.AccessKey = v
	}
	if v := os.Getenv("MEDIASYNC_S3_SECRET_KEY"); v != "" {
		cfg.Remote.SecretKey = v
	}
}

// Validate checks structural invariants before any component starts.
func (c *Config) Validate() error {
	if !c.ConflictPolicy.Valid() {
		return fmt.Errorf("unknown conflict policy %q", c.ConflictPolicy)
	}
	if !strings.HasPrefix(c.RootPath, "/") {
		return fmt.Errorf("root_path must start with /: %q", c.RootPath)
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DBPath, validation.Required),
		validation.Field(&c.ContentRoot, validation.Required),
		validation.Field(&c.AllowedExtensions, validation.Required),
		validation.Field(&c.ActivityLogCap, validation.Min(1)),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.Remote,
		validation.Field(&c.Remote.Backend, validation.Required, validation.In("dropbox", "s3")),
	)
}

// NormalizedExtensions returns the allow-list lower-cased without leading dots.
func (c *Config) NormalizedExtensions() map[string]bool {
	out := make(map[string]bool, len(c.AllowedExtensions))
	for _, ext := range c.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			out[ext] = true
		}
	}
	return out
}
