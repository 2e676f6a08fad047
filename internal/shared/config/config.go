package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sink names accepted by webhook.sink.
const (
	SinkRabbitMQ = "rabbitmq"
	SinkPostgres = "postgres"
	SinkKafka    = "kafka"
	SinkLog      = "log"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"database"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type WebhookConfig struct {
	// Secret, when set, must match the X-Webhook-Secret header. Empty disables auth.
	Secret       string   `yaml:"secret"`
	Providers    []string `yaml:"providers"`
	Sink         string   `yaml:"sink"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
}

type MonitorConfig struct {
	HealthURL    string        `yaml:"health_url"`
	Secret       string        `yaml:"secret"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	BaseDelay    time.Duration `yaml:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	ErrorHistory int           `yaml:"error_history"`
}

// LoadFromFile loads config from a YAML file, applies defaults and environment
// overrides, and validates the result. A missing file leaves every value at
// its default.
func LoadFromFile(path string) (*Config, error) {
	var cfg Config

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := parseYAML(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseYAML decodes the document strictly: unknown keys are rejected.
func parseYAML(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Kafka
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "webhook.orders"
	}

	// Webhook
	if len(cfg.Webhook.Providers) == 0 {
		cfg.Webhook.Providers = []string{"deliverect"}
	}
	if cfg.Webhook.Sink == "" {
		cfg.Webhook.Sink = SinkRabbitMQ
	}
	if cfg.Webhook.MaxBodyBytes == 0 {
		cfg.Webhook.MaxBodyBytes = 1 << 20
	}

	// Monitor
	if cfg.Monitor.HealthURL == "" {
		cfg.Monitor.HealthURL = "http://localhost:3000/webhook/deliverect"
	}
	if cfg.Monitor.Interval == 0 {
		cfg.Monitor.Interval = 30 * time.Second
	}
	if cfg.Monitor.Timeout == 0 {
		cfg.Monitor.Timeout = 10 * time.Second
	}
	if cfg.Monitor.MaxRetries == 0 {
		cfg.Monitor.MaxRetries = 3
	}
	if cfg.Monitor.BaseDelay == 0 {
		cfg.Monitor.BaseDelay = time.Second
	}
	if cfg.Monitor.MaxDelay == 0 {
		cfg.Monitor.MaxDelay = 30 * time.Second
	}
	if cfg.Monitor.ErrorHistory == 0 {
		cfg.Monitor.ErrorHistory = 20
	}
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *Config) error {
	var problems []string

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s must be an integer", key))
				return
			}
			*dst = n
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = splitList(v)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s must be a duration such as 30s", key))
				return
			}
			*dst = d
		}
	}

	str("DB_HOST", &cfg.Database.Host)
	num("DB_PORT", &cfg.Database.Port)
	str("DB_USER", &cfg.Database.User)
	str("DB_PASSWORD", &cfg.Database.Password)
	str("DB_NAME", &cfg.Database.Name)

	str("RABBITMQ_HOST", &cfg.RabbitMQ.Host)
	num("RABBITMQ_PORT", &cfg.RabbitMQ.Port)
	str("RABBITMQ_USER", &cfg.RabbitMQ.User)
	str("RABBITMQ_PASSWORD", &cfg.RabbitMQ.Password)

	list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	str("KAFKA_TOPIC", &cfg.Kafka.Topic)

	str("WEBHOOK_SECRET", &cfg.Webhook.Secret)
	str("WEBHOOK_SINK", &cfg.Webhook.Sink)
	list("WEBHOOK_PROVIDERS", &cfg.Webhook.Providers)

	str("MONITOR_HEALTH_URL", &cfg.Monitor.HealthURL)
	dur("MONITOR_INTERVAL", &cfg.Monitor.Interval)
	num("MONITOR_MAX_RETRIES", &cfg.Monitor.MaxRetries)

	// the monitor probes the same endpoint, so it shares the secret unless told otherwise
	if cfg.Monitor.Secret == "" {
		cfg.Monitor.Secret = cfg.Webhook.Secret
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validate checks ranges that apply to every mode.
func (c *Config) validate() error {
	var problems []string

	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}

	switch c.Webhook.Sink {
	case SinkRabbitMQ, SinkPostgres, SinkKafka, SinkLog:
	default:
		problems = append(problems, fmt.Sprintf("webhook.sink must be one of rabbitmq, postgres, kafka, log (got %q)", c.Webhook.Sink))
	}
	if len(c.Webhook.Providers) == 0 {
		problems = append(problems, "webhook.providers must not be empty")
	}
	if c.Webhook.MaxBodyBytes < 0 {
		problems = append(problems, "webhook.max_body_bytes must be > 0")
	}

	if u, err := url.Parse(c.Monitor.HealthURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, "monitor.health_url must be an absolute URL")
	}
	if c.Monitor.Interval < 0 {
		problems = append(problems, "monitor.interval must be > 0")
	}
	if c.Monitor.Timeout < 0 {
		problems = append(problems, "monitor.timeout must be > 0")
	}
	if c.Monitor.MaxRetries < 0 {
		problems = append(problems, "monitor.max_retries must be >= 0")
	}
	if c.Monitor.BaseDelay < 0 || c.Monitor.MaxDelay < c.Monitor.BaseDelay {
		problems = append(problems, "monitor.base_delay must be > 0 and not above monitor.max_delay")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// RequireDatabase reports missing database credentials.
func (c *Config) RequireDatabase() error {
	var problems []string
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.database (name) is required")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// RequireRabbitMQ reports missing broker credentials.
func (c *Config) RequireRabbitMQ() error {
	var problems []string
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// RequireKafka reports a missing broker list.
func (c *Config) RequireKafka() error {
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	return nil
}

// ProviderAllowed reports whether name is a configured webhook provider.
func (c *Config) ProviderAllowed(name string) bool {
	for _, p := range c.Webhook.Providers {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}
