package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Port         string `yaml:"port" env:"PORT" env-default:"5000"`
	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	StoreBackend string `yaml:"store_backend" env:"STORE_BACKEND" env-default:"mysql"`

	DatabaseDSN   string `yaml:"database_dsn" env:"DATABASE_DSN" env-default:"zlot:zlot@tcp(localhost:3306)/zlot?parseTime=true&loc=UTC&multiStatements=true"`
	RunMigrations bool   `yaml:"run_migrations" env:"RUN_MIGRATIONS" env-default:"true"`

	TemporalAddress   string `yaml:"temporal_address" env:"TEMPORAL_ADDRESS"`
	TemporalNamespace string `yaml:"temporal_namespace" env:"TEMPORAL_NAMESPACE" env-default:"default"`
	TemporalTaskQueue string `yaml:"temporal_task_queue" env:"TEMPORAL_TASK_QUEUE" env-default:"gate-task-queue"`

	DefaultDeviceID      string        `yaml:"default_device_id" env:"DEFAULT_DEVICE_ID" env-default:"GATE_001"`
	SessionDurationMS    int64         `yaml:"session_duration_ms" env:"SESSION_DURATION_MS" env-default:"30000"`
	DeviceOnlineWindowMS int64         `yaml:"device_online_window_ms" env:"DEVICE_ONLINE_WINDOW_MS" env-default:"180000"`
	SweepInterval        time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"5s"`
	DeviceRateLimit      float64       `yaml:"device_rate_limit" env:"DEVICE_RATE_LIMIT" env-default:"5"`
	DeviceRateBurst      int           `yaml:"device_rate_burst" env:"DEVICE_RATE_BURST" env-default:"10"`
	FrontendOrigin       string        `yaml:"frontend_origin" env:"FRONTEND_ORIGIN"`
	JWTSecret            string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	KafkaBrokers         []string      `yaml:"kafka_brokers" env:"KAFKA_BROKERS" env-separator:","`
	KafkaTopic           string        `yaml:"kafka_topic" env:"KAFKA_TOPIC" env-default:"zlot.parking.events"`
	OTLPEndpoint         string        `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`

	Owner OwnerConfig `yaml:"owner"`
}

// OwnerConfig holds the media bucket and mail provider settings used by
// owner space submissions.
type OwnerConfig struct {
	MediaBucket    string `yaml:"media_bucket" env:"OWNER_MEDIA_BUCKET" env-default:"owner-submissions"`
	MinioEndpoint  string `yaml:"minio_endpoint" env:"MINIO_ENDPOINT"`
	MinioAccessKey string `yaml:"minio_access_key" env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `yaml:"minio_secret_key" env:"MINIO_SECRET_KEY"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl" env:"MINIO_USE_SSL" env-default:"false"`
	MinioPublicURL string `yaml:"minio_public_url" env:"MINIO_PUBLIC_URL"`
	ResendAPIKey   string `yaml:"resend_api_key" env:"RESEND_API_KEY"`
	ResendFrom     string `yaml:"resend_from" env:"RESEND_FROM_EMAIL" env-default:"ZLOT Team <onboarding@resend.dev>"`
	Recipient      string `yaml:"recipient" env:"OWNER_SUBMISSION_EMAIL" env-default:"zlotparking@gmail.com"`
}

var defaultOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}

// Database users that never carry write access to the booking tables.
var unprivilegedUsers = []string{"", "anon", "anonymous", "public", "readonly"}

// Load reads .env (when present), an optional YAML file named by
// ZLOT_CONFIG_PATH and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path := os.Getenv("ZLOT_CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &cfg, nil
}

// Validate refuses configurations the service must not run with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.SessionDurationMS <= 0 {
		return errors.New("SESSION_DURATION_MS must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	if strings.TrimSpace(c.DefaultDeviceID) == "" {
		return errors.New("DEFAULT_DEVICE_ID must not be empty")
	}

	switch c.StoreBackend {
	case "memory":
		return nil
	case "mysql":
		return checkPrivilegedDSN(c.DatabaseDSN)
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
}

func checkPrivilegedDSN(dsn string) error {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_DSN: %w", err)
	}
	if slices.Contains(unprivilegedUsers, strings.ToLower(parsed.User)) {
		return fmt.Errorf("DATABASE_DSN uses unprivileged user %q; booking and command writes need a service account", parsed.User)
	}
	return nil
}

func (c *Config) SessionDuration() time.Duration {
	return time.Duration(c.SessionDurationMS) * time.Millisecond
}

func (c *Config) DeviceOnlineWindow() time.Duration {
	return time.Duration(c.DeviceOnlineWindowMS) * time.Millisecond
}

// CORSPolicy is the browser origin allow-list, fixed at startup.
type CORSPolicy struct {
	origins []string
}

var privateNet172 = regexp.MustCompile(`^172\.(1[6-9]|2\d|3[0-1])\.`)

func (c *Config) CORSPolicy() CORSPolicy {
	var origins []string
	for _, o := range strings.Split(c.FrontendOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = slices.Clone(defaultOrigins)
	}
	return CORSPolicy{origins: origins}
}

func (p CORSPolicy) Origins() []string {
	return slices.Clone(p.origins)
}

// Allows reports whether a request from origin may proceed. An empty origin
// (non-browser client) is always allowed.
func (p CORSPolicy) Allows(origin string) bool {
	if origin == "" || slices.Contains(p.origins, origin) {
		return true
	}
	return isLocalNetworkFrontend(origin)
}

func isLocalNetworkFrontend(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "http" || u.Port() != "3000" {
		return false
	}

	host := u.Hostname()
	switch {
	case host == "localhost" || host == "127.0.0.1":
		return true
	case strings.HasPrefix(host, "192.168.") || strings.HasPrefix(host, "10."):
		return true
	}
	return privateNet172.MatchString(host)
}
