package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		PublicURL      string   `yaml:"public_url"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Presentation struct {
		TTL string `yaml:"ttl"`
	} `yaml:"presentation"`
	Session struct {
		IdleTimeout     string  `yaml:"idle_timeout"`
		OutboxSize      int     `yaml:"outbox_size"`
		LeaderboardSize int     `yaml:"leaderboard_size"`
		MaxCodeAttempts int     `yaml:"max_code_attempts"`
		ReactionRate    float64 `yaml:"reaction_rate"`
		ReactionBurst   int     `yaml:"reaction_burst"`
	} `yaml:"session"`
	Heartbeat struct {
		Interval    string `yaml:"interval"`
		PongTimeout string `yaml:"pong_timeout"`
	} `yaml:"heartbeat"`
	Archive struct {
		Bucket string `yaml:"bucket"`
		Region string `yaml:"region"`
		Prefix string `yaml:"prefix"`
	} `yaml:"archive"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// LoadEnv copies missing variables from the given dotenv files (.env by default)
// into the process environment. Files that do not exist are skipped.
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load reads YAML config from path. Values from .env or the process environment win over the file.
func Load(path string) (Config, error) {
	LoadEnv()

	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.PublicURL, "PUBLIC_URL")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitTrim(v, ",")
	}
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	if v, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.Redis.DB = v
	}
	setString(&cfg.Postgres.URL, "DATABASE_URL")
	setString(&cfg.Archive.Bucket, "ARCHIVE_BUCKET")
	setString(&cfg.Archive.Region, "AWS_REGION")
	setString(&cfg.Log.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
