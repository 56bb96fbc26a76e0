package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string `yaml:"database_url"`
	APIPort     string `yaml:"api_port"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// VKTokens is the pool of access tokens rotated by the VK client.
	VKTokens  []string `yaml:"vk_tokens"`
	VKVersion string   `yaml:"vk_version"`
	// VKRateRPS is the per-token request budget (VK allows 3 req/s).
	VKRateRPS float64 `yaml:"vk_rate_rps"`

	QueueName         string `yaml:"queue_name"`
	PriorityQueue     string `yaml:"priority_queue"`
	WorkerConcurrency int    `yaml:"worker_concurrency"`

	MonitorIntervalSec int `yaml:"monitor_interval_sec"`

	JWTSecret     string `yaml:"jwt_secret"`
	WebhookSecret string `yaml:"webhook_secret"`

	// Mode selects which parts of the process run: "all", "api" or "worker".
	Mode string `yaml:"mode"`
}

// Load reads the optional YAML config file and overlays environment
// variables on top. A missing file is not an error; env-only deployments
// are the common case.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (DB_URL)")
	}
	if len(cfg.VKTokens) == 0 {
		return nil, fmt.Errorf("at least one VK access token is required (VK_TOKENS)")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		APIPort:            "8080",
		RedisAddr:          "localhost:6379",
		VKVersion:          "5.199",
		VKRateRPS:          3,
		QueueName:          "default",
		PriorityQueue:      "priority",
		WorkerConcurrency:  10,
		MonitorIntervalSec: 60,
		Mode:               "all",
	}
}

func (c *Config) applyEnv() {
	setStr(&c.DatabaseURL, "DB_URL")
	setStr(&c.APIPort, "PORT")
	setStr(&c.RedisAddr, "REDIS_ADDR")
	setStr(&c.RedisPassword, "REDIS_PASSWORD")
	setInt(&c.RedisDB, "REDIS_DB")
	if v := strings.TrimSpace(os.Getenv("VK_TOKENS")); v != "" {
		c.VKTokens = splitTokens(v)
	}
	setStr(&c.VKVersion, "VK_API_VERSION")
	setFloat(&c.VKRateRPS, "VK_RATE_RPS")
	setStr(&c.QueueName, "QUEUE_NAME")
	setStr(&c.PriorityQueue, "PRIORITY_QUEUE")
	setInt(&c.WorkerConcurrency, "WORKER_CONCURRENCY")
	setInt(&c.MonitorIntervalSec, "MONITOR_INTERVAL_SEC")
	setStr(&c.JWTSecret, "JWT_SECRET")
	setStr(&c.WebhookSecret, "WEBHOOK_SECRET")
	setStr(&c.Mode, "RUN_MODE")
}

func splitTokens(raw string) []string {
	parts := strings.Split(raw, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}
