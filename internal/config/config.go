package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	Auth struct {
		JWTSecret       string `yaml:"jwt_secret"`
		TokenTTL        string `yaml:"token_ttl"`
		FederatedSecret string `yaml:"federated_secret"`
		BillingSecret   string `yaml:"billing_secret"`
	} `yaml:"auth"`
	Storage struct {
		BlobDir       string `yaml:"blob_dir"`
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"storage"`
	Quiz struct {
		TTL              string `yaml:"ttl"`
		SessionTimeLimit string `yaml:"session_time_limit"`
		FreeQuizLimit    int    `yaml:"free_quiz_limit"`
	} `yaml:"quiz"`
	Sync struct {
		Interval string `yaml:"interval"`
	} `yaml:"sync"`
}

// Load reads YAML config from path. Secrets may also come from the environment
// (JWT_SECRET, FEDERATED_SECRET, BILLING_SECRET), which wins over the file.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	overrideFromEnv(&cfg.Auth.JWTSecret, "JWT_SECRET")
	overrideFromEnv(&cfg.Auth.FederatedSecret, "FEDERATED_SECRET")
	overrideFromEnv(&cfg.Auth.BillingSecret, "BILLING_SECRET")
	overrideFromEnv(&cfg.Postgres.URL, "DATABASE_URL")
	overrideFromEnv(&cfg.Mongo.URI, "MONGO_URI")
	overrideFromEnv(&cfg.Redis.Addr, "REDIS_ADDR")
	return cfg, nil
}

func overrideFromEnv(field *string, key string) {
	if v := os.Getenv(key); v != "" {
		*field = v
	}
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
