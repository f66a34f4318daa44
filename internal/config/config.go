package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. PHOTORANK_DATABASE_HOST.
const EnvPrefix = "PHOTORANK"

var validate = validator.New()

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	JWT       JWTConfig       `yaml:"jwt" envconfig:"JWT"`
	Log       LogConfig       `yaml:"log" envconfig:"LOG"`
	OAuth     OAuthConfig     `yaml:"oauth" envconfig:"OAUTH"`
	Moderator ModeratorConfig `yaml:"moderator" envconfig:"MODERATOR"`
	Voting    VotingConfig    `yaml:"voting" envconfig:"VOTING"`
	Uploads   UploadsConfig   `yaml:"uploads" envconfig:"UPLOADS"`
	Throttle  ThrottleConfig  `yaml:"throttle" envconfig:"THROTTLE"`
	Jobs      JobsConfig      `yaml:"jobs" envconfig:"JOBS"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string   `yaml:"host" envconfig:"HOST"`
	Port           int      `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	Env            string   `yaml:"env" envconfig:"ENV" validate:"oneof=development production test"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// Production reports whether the server runs in production mode.
func (c ServerConfig) Production() bool { return c.Env == "production" }

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host" envconfig:"HOST" validate:"required"`
	Port     int    `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	User     string `yaml:"user" envconfig:"USER" validate:"required"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DBName   string `yaml:"dbname" envconfig:"DBNAME" validate:"required"`
	SSLMode  string `yaml:"sslmode" envconfig:"SSLMODE" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns int32  `yaml:"max_conns" envconfig:"MAX_CONNS" validate:"min=1"`
	MinConns int32  `yaml:"min_conns" envconfig:"MIN_CONNS" validate:"min=0,ltefield=MaxConns"`
}

// StorageConfig holds S3-compatible object storage configuration (AWS S3 or Cloudflare R2)
type StorageConfig struct {
	Region        string        `yaml:"region" envconfig:"REGION" validate:"required"`
	Bucket        string        `yaml:"bucket" envconfig:"BUCKET" validate:"required"`
	AccessKey     string        `yaml:"access_key" envconfig:"ACCESS_KEY"`
	SecretKey     string        `yaml:"secret_key" envconfig:"SECRET_KEY"`
	Endpoint      string        `yaml:"endpoint" envconfig:"ENDPOINT" validate:"omitempty,url"`
	PresignExpiry time.Duration `yaml:"presign_expiry" envconfig:"PRESIGN_EXPIRY" validate:"min=1s"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string        `yaml:"secret" envconfig:"SECRET" validate:"required,min=16"`
	TTL    time.Duration `yaml:"ttl" envconfig:"TTL" validate:"min=1m"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=console json"`
}

// OAuthConfig holds identity provider settings
type OAuthConfig struct {
	// RedirectBase is the public base URL the providers redirect back to.
	RedirectBase string         `yaml:"redirect_base" envconfig:"REDIRECT_BASE" validate:"omitempty,url"`
	FrontendURL  string         `yaml:"frontend_url" envconfig:"FRONTEND_URL" validate:"omitempty,url"`
	Google       ProviderConfig `yaml:"google" envconfig:"GOOGLE"`
	GitHub       ProviderConfig `yaml:"github" envconfig:"GITHUB"`
}

// ProviderConfig holds one OAuth client
type ProviderConfig struct {
	ClientID     string `yaml:"client_id" envconfig:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" envconfig:"CLIENT_SECRET" validate:"required_with=ClientID"`
}

// Enabled reports whether the provider is configured.
func (p ProviderConfig) Enabled() bool { return p.ClientID != "" }

// ModeratorConfig identifies the site moderator account
type ModeratorConfig struct {
	Provider   string `yaml:"provider" envconfig:"PROVIDER" validate:"omitempty,oneof=google github"`
	ProviderID string `yaml:"provider_id" envconfig:"PROVIDER_ID" validate:"required_with=Provider"`
}

// VotingConfig holds guest voting settings
type VotingConfig struct {
	GuestLimit  int           `yaml:"guest_limit" envconfig:"GUEST_LIMIT" validate:"min=1"`
	GuestWindow time.Duration `yaml:"guest_window" envconfig:"GUEST_WINDOW" validate:"min=1m"`
	// FingerprintKey keys the blake2b hashes of guest IPs and user agents.
	FingerprintKey string `yaml:"fingerprint_key" envconfig:"FINGERPRINT_KEY" validate:"max=64"`
	SecureCookies  bool   `yaml:"secure_cookies" envconfig:"SECURE_COOKIES"`
}

// UploadsConfig holds upload limits
type UploadsConfig struct {
	DailyLimit int `yaml:"daily_limit" envconfig:"DAILY_LIMIT" validate:"min=1"`
	MaxBatch   int `yaml:"max_batch" envconfig:"MAX_BATCH" validate:"min=1,max=100"`
}

// ThrottleConfig holds the per-IP request throttle
type ThrottleConfig struct {
	RPS   float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// JobsConfig holds background job schedules
type JobsConfig struct {
	PurgeSchedule string `yaml:"purge_schedule" envconfig:"PURGE_SCHEDULE" validate:"required"`
}

// Default returns the configuration used when neither the file nor the environment set a value
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Env:  "development",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "photorank",
			DBName:   "photorank",
			SSLMode:  "disable",
			MaxConns: 20,
			MinConns: 2,
		},
		Storage: StorageConfig{
			Region:        "auto",
			Bucket:        "photorank",
			PresignExpiry: 5 * time.Minute,
		},
		JWT: JWTConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Voting: VotingConfig{
			GuestLimit:  10,
			GuestWindow: 24 * time.Hour,
		},
		Uploads: UploadsConfig{
			DailyLimit: 50,
			MaxBatch:   10,
		},
		Throttle: ThrottleConfig{
			RPS:   10,
			Burst: 20,
		},
		Jobs: JobsConfig{
			PurgeSchedule: "@every 1h",
		},
	}
}

// Load reads configuration from a YAML file, then applies PHOTORANK_* environment
// overrides and validates the result. A missing file is not an error.
// Outside production a .env file in the working directory is loaded first.
func Load(path string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Msg("Failed to load .env file")
		}
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("path", path).Msg("Config file not found, using defaults and environment")
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
