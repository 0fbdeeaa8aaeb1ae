// Package config loads server settings.
//
// Sources are layered, later ones winning:
//
//  1. Built-in defaults (Default)
//  2. A YAML file: CONFIG_FILE, or ./config.yaml when present
//  3. A .env file, loaded into the process environment by godotenv
//  4. Environment variables
//
// godotenv never overwrites variables that are already set, so a real
// environment variable beats the same key in .env.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultJWTSecret is used when no secret is configured. The server logs a
// warning at startup when it falls back to it.
const DefaultJWTSecret = "shareplate_secret_key"

const defaultConfigFile = "config.yaml"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	GitHub   GitHubConfig   `yaml:"github"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// ClientURL is the browser origin allowed to open websocket connections
	// and the redirect target after GitHub login. Empty allows any origin.
	ClientURL string `yaml:"client_url"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	// JWTExpire accepts Go durations ("720h") and whole days ("30d").
	JWTExpire string `yaml:"jwt_expire"`

	// SecretDefaulted is set by Load when JWTSecret fell back to
	// DefaultJWTSecret.
	SecretDefaulted bool `yaml:"-"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"` // "local" or "s3"
	UploadDir   string `yaml:"upload_dir"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3PublicURL string `yaml:"s3_public_url"`
}

// RedisConfig enables cross-instance notification fan-out. An empty URL
// keeps delivery in-process.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

type GitHubConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

// Enabled reports whether GitHub login should be offered.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 5000},
		Database: DatabaseConfig{Path: "data/shareplate.db"},
		Auth:     AuthConfig{JWTExpire: "30d"},
		Storage:  StorageConfig{Backend: "local", UploadDir: "uploads"},
		Redis:    RedisConfig{Channel: "shareplate:notifications"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from all sources and validates it. envFile is the
// dotenv path; a missing file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	cfg := Default()

	path, explicit := os.LookupEnv("CONFIG_FILE")
	if !explicit {
		path = defaultConfigFile
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = DefaultJWTSecret
		cfg.Auth.SecretDefaulted = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"CLIENT_URL", &c.Server.ClientURL},
		{"DB_PATH", &c.Database.Path},
		{"JWT_SECRET", &c.Auth.JWTSecret},
		{"JWT_EXPIRE", &c.Auth.JWTExpire},
		{"STORAGE_BACKEND", &c.Storage.Backend},
		{"UPLOAD_DIR", &c.Storage.UploadDir},
		{"S3_BUCKET", &c.Storage.S3Bucket},
		{"S3_REGION", &c.Storage.S3Region},
		{"S3_PUBLIC_URL", &c.Storage.S3PublicURL},
		{"REDIS_URL", &c.Redis.URL},
		{"REDIS_CHANNEL", &c.Redis.Channel},
		{"GITHUB_CLIENT_ID", &c.GitHub.ClientID},
		{"GITHUB_CLIENT_SECRET", &c.GitHub.ClientSecret},
		{"GITHUB_CALLBACK_URL", &c.GitHub.CallbackURL},
		{"LOG_LEVEL", &c.Log.Level},
		{"LOG_FORMAT", &c.Log.Format},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(s.key); ok {
			*s.dst = v
		}
	}

	if c.GitHub.CallbackURL == "" {
		c.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/api/auth/github/callback", c.Server.Port)
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("config: database path is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("config: jwt secret must be at least 16 characters")
	}
	if _, err := c.Auth.TokenTTL(); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.UploadDir == "" {
			return errors.New("config: upload_dir is required for local storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" || c.Storage.S3Region == "" {
			return errors.New("config: s3 storage needs s3_bucket and s3_region")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	if (c.GitHub.ClientID == "") != (c.GitHub.ClientSecret == "") {
		return errors.New("config: github client id and secret must be set together")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// TokenTTL parses JWTExpire.
func (a AuthConfig) TokenTTL() (time.Duration, error) {
	s := strings.TrimSpace(a.JWTExpire)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("config: invalid jwt_expire %q", a.JWTExpire)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: invalid jwt_expire %q", a.JWTExpire)
	}
	return d, nil
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown log level %q", l.Level)
}
