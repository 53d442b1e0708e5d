package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Logger   LoggerConfig   `yaml:"logger"`
	Auth     AuthConfig     `yaml:"auth"`
	Triage   TriageConfig   `yaml:"triage"`
	Mailer   MailerConfig   `yaml:"mailer"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Events   EventsConfig   `yaml:"events"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `yaml:"name"`
	Env                   string `yaml:"env"`
	Host                  string `yaml:"host"`
	Port                  string `yaml:"port"`
	Version               string `yaml:"version"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConns       int32  `yaml:"max_conns"`
	MinConns       int32  `yaml:"min_conns"`
	RunMigrations  bool   `yaml:"run_migrations"`
	ConnMaxIdleSec int32  `yaml:"conn_max_idle_seconds"`
	ConnMaxLifeSec int32  `yaml:"conn_max_life_seconds"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string `yaml:"jwt_secret"`
	AccessTokenTTLMinutes int    `yaml:"access_token_ttl_minutes"`
	BcryptCost            int    `yaml:"bcrypt_cost"`
	AdminEmail            string `yaml:"admin_email"`
}

// TriageConfig selects and configures the language model used for triage.
type TriageConfig struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// MailerConfig holds SMTP settings. An empty Host selects the log mailer.
type MailerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	StartTLS bool   `yaml:"starttls"`
}

// WorkflowConfig tunes the ticket workflow and its event-layer retries.
type WorkflowConfig struct {
	NotifyTimeoutSeconds int `yaml:"notify_timeout_seconds"`
	MaxAttempts          int `yaml:"max_attempts"`
	RetryBackoffMillis   int `yaml:"retry_backoff_millis"`
}

// EventsConfig selects the event bus backend.
type EventsConfig struct {
	Backend      string   `yaml:"backend"`
	Workers      int      `yaml:"workers"`
	RedisQueue   string   `yaml:"redis_queue"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	KafkaGroupID string   `yaml:"kafka_group_id"`
}

// Load builds configuration from defaults, an optional YAML file and then
// environment variables (a .env file is loaded first when present).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			Name:                  "helper-tickets",
			Env:                   "development",
			Host:                  "0.0.0.0",
			Port:                  "8080",
			Version:               "dev",
			RequestTimeoutSeconds: 30,
		},
		Postgres: PostgresConfig{
			MaxConns:       10,
			MinConns:       2,
			RunMigrations:  true,
			ConnMaxIdleSec: 30,
			ConnMaxLifeSec: 300,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			JWTSecret:             "dev-secret",
			AccessTokenTTLMinutes: 60 * 24,
			BcryptCost:            10,
			AdminEmail:            "admin@helper.com",
		},
		Triage: TriageConfig{
			Provider:       "none",
			Model:          "gemini-1.5-flash-8b",
			TimeoutSeconds: 30,
		},
		Mailer: MailerConfig{
			Port: 587,
			From: "noreply@helper.com",
		},
		Workflow: WorkflowConfig{
			NotifyTimeoutSeconds: 15,
			MaxAttempts:          3,
			RetryBackoffMillis:   1000,
		},
		Events: EventsConfig{
			Backend:      "memory",
			Workers:      4,
			RedisQueue:   "helper:events",
			KafkaBrokers: []string{"localhost:9092"},
			KafkaTopic:   "helper-events",
			KafkaGroupID: "helper-tickets",
		},
	}
}

func applyEnv(cfg *Config) error {
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", strconv.Itoa(cfg.Redis.DB)))
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnv("APP_PORT", cfg.App.Port)
	cfg.App.Version = getEnv("APP_VERSION", cfg.App.Version)
	cfg.App.RequestTimeoutSeconds = getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", cfg.App.RequestTimeoutSeconds)

	cfg.Postgres.DSN = getEnv("POSTGRES_DSN", cfg.Postgres.DSN)
	cfg.Postgres.MaxConns = int32(getEnvAsInt("POSTGRES_MAX_CONNS", int(cfg.Postgres.MaxConns)))
	cfg.Postgres.MinConns = int32(getEnvAsInt("POSTGRES_MIN_CONNS", int(cfg.Postgres.MinConns)))
	cfg.Postgres.RunMigrations = getEnvAsBool("POSTGRES_RUN_MIGRATIONS", cfg.Postgres.RunMigrations)
	cfg.Postgres.ConnMaxIdleSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", int(cfg.Postgres.ConnMaxIdleSec)))
	cfg.Postgres.ConnMaxLifeSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", int(cfg.Postgres.ConnMaxLifeSec)))

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = redisDB

	cfg.Logger.Level = getEnv("LOG_LEVEL", cfg.Logger.Level)

	cfg.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AccessTokenTTLMinutes = getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", cfg.Auth.AccessTokenTTLMinutes)
	cfg.Auth.BcryptCost = getEnvAsInt("AUTH_BCRYPT_COST", cfg.Auth.BcryptCost)
	cfg.Auth.AdminEmail = getEnv("AUTH_ADMIN_EMAIL", cfg.Auth.AdminEmail)

	cfg.Triage.Provider = strings.ToLower(getEnv("TRIAGE_PROVIDER", cfg.Triage.Provider))
	cfg.Triage.BaseURL = getEnv("TRIAGE_BASE_URL", cfg.Triage.BaseURL)
	cfg.Triage.APIKey = getEnv("TRIAGE_API_KEY", cfg.Triage.APIKey)
	cfg.Triage.Model = getEnv("TRIAGE_MODEL", cfg.Triage.Model)
	cfg.Triage.TimeoutSeconds = getEnvAsInt("TRIAGE_TIMEOUT_SECONDS", cfg.Triage.TimeoutSeconds)

	cfg.Mailer.Host = getEnv("SMTP_HOST", cfg.Mailer.Host)
	cfg.Mailer.Port = getEnvAsInt("SMTP_PORT", cfg.Mailer.Port)
	cfg.Mailer.Username = getEnv("SMTP_USERNAME", cfg.Mailer.Username)
	cfg.Mailer.Password = getEnv("SMTP_PASSWORD", cfg.Mailer.Password)
	cfg.Mailer.From = getEnv("SMTP_FROM", cfg.Mailer.From)
	cfg.Mailer.StartTLS = getEnvAsBool("SMTP_STARTTLS", cfg.Mailer.StartTLS)

	cfg.Workflow.NotifyTimeoutSeconds = getEnvAsInt("WORKFLOW_NOTIFY_TIMEOUT_SECONDS", cfg.Workflow.NotifyTimeoutSeconds)
	cfg.Workflow.MaxAttempts = getEnvAsInt("WORKFLOW_MAX_ATTEMPTS", cfg.Workflow.MaxAttempts)
	cfg.Workflow.RetryBackoffMillis = getEnvAsInt("WORKFLOW_RETRY_BACKOFF_MILLIS", cfg.Workflow.RetryBackoffMillis)

	cfg.Events.Backend = strings.ToLower(getEnv("EVENTS_BACKEND", cfg.Events.Backend))
	cfg.Events.Workers = getEnvAsInt("EVENTS_WORKERS", cfg.Events.Workers)
	cfg.Events.RedisQueue = getEnv("EVENTS_REDIS_QUEUE", cfg.Events.RedisQueue)
	cfg.Events.KafkaBrokers = getEnvAsList("KAFKA_BROKERS", cfg.Events.KafkaBrokers)
	cfg.Events.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Events.KafkaTopic)
	cfg.Events.KafkaGroupID = getEnv("KAFKA_GROUP_ID", cfg.Events.KafkaGroupID)

	switch cfg.Events.Backend {
	case "memory", "redis", "kafka":
	default:
		return fmt.Errorf("invalid EVENTS_BACKEND %q", cfg.Events.Backend)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// Timeout bounds a single model call.
func (t TriageConfig) Timeout() time.Duration {
	return seconds(t.TimeoutSeconds)
}

// NotifyTimeout bounds a single notification attempt.
func (w WorkflowConfig) NotifyTimeout() time.Duration {
	return seconds(w.NotifyTimeoutSeconds)
}

// RetryBackoff is the base delay between workflow attempts.
func (w WorkflowConfig) RetryBackoff() time.Duration {
	if w.RetryBackoffMillis <= 0 {
		return 0
	}
	return time.Duration(w.RetryBackoffMillis) * time.Millisecond
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
