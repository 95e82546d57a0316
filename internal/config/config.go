package config

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Python                 string        `env:"AUTOFLIP_PYTHON"                   envDefault:"python3"`
	WorkerScript           string        `env:"AUTOFLIP_WORKER_SCRIPT"            envDefault:"python/worker.py"`
	WorkerTimeout          time.Duration `env:"AUTOFLIP_WORKER_TIMEOUT"           envDefault:"60s"`
	MinDetectionConfidence float64       `env:"AUTOFLIP_MIN_DETECTION_CONFIDENCE" envDefault:"0.5"`

	FFmpeg  string `env:"AUTOFLIP_FFMPEG"  envDefault:"ffmpeg"`
	FFprobe string `env:"AUTOFLIP_FFPROBE" envDefault:"ffprobe"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	PostgresHost     string `env:"POSTGRES_HOST"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB"       envDefault:"autoflip"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.MinDetectionConfidence < 0 || cfg.MinDetectionConfidence > 1 {
		return nil, fmt.Errorf("AUTOFLIP_MIN_DETECTION_CONFIDENCE must be between 0.0 and 1.0, got %v", cfg.MinDetectionConfidence)
	}
	return cfg, nil
}

// DatabaseURL builds a connection string from the POSTGRES_* variables.
// It returns "" when POSTGRES_HOST is not set.
func (c *Config) DatabaseURL() string {
	if c.PostgresHost == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDB,
	}
	if c.PostgresUser != "" {
		u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
	}
	return u.String()
}
