package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	ImageBackendLocal = "local"
	ImageBackendS3    = "s3"
)

type Config struct {
	App      AppConfig
	Storage  StorageConfig
	Postgres PostgresConfig
	Images   ImagesConfig
	S3       S3Config
}

type AppConfig struct {
	Port     string `env:"APP_PORT" envDefault:"8888"`
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

type StorageConfig struct {
	Driver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
}

type PostgresConfig struct {
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD"`
	DBName          string        `env:"DB_NAME" envDefault:"userdb"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	MigrationsPath  string        `env:"DB_MIGRATIONS_PATH" envDefault:"migrations"`
}

// ImagesConfig controls where uploaded profile images end up.
type ImagesConfig struct {
	Backend     string `env:"IMAGES_BACKEND" envDefault:"local"`
	Dir         string `env:"IMAGES_DIR" envDefault:"images"`
	URLPrefix   string `env:"IMAGES_URL_PREFIX" envDefault:"/images"`
	MaxUploadMB int64  `env:"UPLOAD_MAX_MB" envDefault:"10"`
}

type S3Config struct {
	Endpoint        string `env:"S3_ENDPOINT"`
	Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket          string `env:"S3_BUCKET" envDefault:"user-images"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	UseSSL          bool   `env:"S3_USE_SSL"`
	PublicURL       string `env:"S3_PUBLIC_URL"`
}

// MaxUploadBytes is the multipart body limit for image uploads.
func (c ImagesConfig) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// NewConfig reads an optional .env file from the working directory and then the environment.
func NewConfig() (*Config, error) {
	return Load(".env")
}

func Load(path string) (*Config, error) {
	if path != "" {
		err := godotenv.Load(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	switch c.Images.Backend {
	case ImageBackendLocal:
	case ImageBackendS3:
		if c.S3.Endpoint == "" || c.S3.AccessKeyID == "" || c.S3.SecretAccessKey == "" {
			return errors.New("S3_ENDPOINT, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required for the s3 images backend")
		}
	default:
		return fmt.Errorf("unknown IMAGES_BACKEND %q", c.Images.Backend)
	}

	if c.Images.MaxUploadMB <= 0 {
		return fmt.Errorf("UPLOAD_MAX_MB must be positive, got %d", c.Images.MaxUploadMB)
	}

	return nil
}
