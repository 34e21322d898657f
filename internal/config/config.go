package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bookingsvc/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
)

// Event buses.
const (
	BusEventBridge = "eventbridge"
	BusRabbitMQ    = "rabbitmq"
	BusLocal       = "local"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Store      StoreConfig      `yaml:"store"`
	AWS        AWSConfig        `yaml:"aws"`
	Redis      RedisConfig      `yaml:"redis"`
	Events     EventsConfig     `yaml:"events"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Booking    BookingConfig    `yaml:"booking"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP                   APIHTTPConfig      `yaml:"http"`
	RateLimit              APIRateLimitConfig `yaml:"rate_limit"`
	ShutdownTimeoutSeconds int                `yaml:"shutdown_timeout_seconds"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type StoreConfig struct {
	Backend              string `yaml:"backend"`
	TableName            string `yaml:"table_name"`
	UserIndex            string `yaml:"user_index"`
	SQLitePath           string `yaml:"sqlite_path"`
	SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
	SweepBatchSize       int    `yaml:"sweep_batch_size"`
}

// SweepInterval is the expiry sweep period for stores without native TTL.
func (s StoreConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

type AWSConfig struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type EventsConfig struct {
	Bus          string `yaml:"bus"`
	Source       string `yaml:"source"`
	DetailType   string `yaml:"detail_type"`
	EventBusName string `yaml:"event_bus_name"`
	// PartialBatchResponse reports failed stream records individually instead of failing the batch.
	PartialBatchResponse bool `yaml:"partial_batch_response"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

type BookingConfig struct {
	DefaultReminderLeadSeconds int64 `yaml:"default_reminder_lead_seconds"`
	MinReminderLeadSeconds     int64 `yaml:"min_reminder_lead_seconds"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DaemonAddr  string `yaml:"daemon_addr"`
	ServiceName string `yaml:"service_name"`
}

// Load reads an optional .env file, then the YAML file at configPath (skipped when empty),
// then environment overrides. Defaults fill whatever is still unset.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var config Config
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expandedData := []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(expandedData, &config); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendDynamoDB:
		if c.Store.TableName == "" {
			return errors.New("store.table_name is required for dynamodb")
		}
	case BackendRedis:
		if c.Redis.Address == "" {
			return errors.New("redis.address is required for redis backend")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Events.Bus {
	case BusEventBridge, BusLocal:
	case BusRabbitMQ:
		if c.RabbitMQ.URL == "" {
			return errors.New("rabbitmq.url is required for rabbitmq bus")
		}
	default:
		return fmt.Errorf("unknown event bus %q", c.Events.Bus)
	}

	if c.Booking.MinReminderLeadSeconds <= 0 {
		return errors.New("booking.min_reminder_lead_seconds must be positive")
	}
	if c.Booking.DefaultReminderLeadSeconds < c.Booking.MinReminderLeadSeconds {
		return fmt.Errorf("booking.default_reminder_lead_seconds must be at least %d", c.Booking.MinReminderLeadSeconds)
	}

	return nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"TABLE_NAME", &c.Store.TableName},
		{"USER_INDEX_NAME", &c.Store.UserIndex},
		{"STORE_BACKEND", &c.Store.Backend},
		{"SQLITE_PATH", &c.Store.SQLitePath},
		{"EVENT_BUS", &c.Events.Bus},
		{"EVENT_BUS_NAME", &c.Events.EventBusName},
		{"AWS_ENDPOINT_URL", &c.AWS.Endpoint},
		{"AWS_REGION", &c.AWS.Region},
		{"REDIS_ADDRESS", &c.Redis.Address},
		{"RABBITMQ_URL", &c.RabbitMQ.URL},
		{"LOG_LEVEL", &c.Logging.Level},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.target = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "booking-api"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.ShutdownTimeoutSeconds == 0 {
		c.API.ShutdownTimeoutSeconds = 10
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	// Store defaults
	if c.Store.Backend == "" {
		c.Store.Backend = BackendDynamoDB
	}
	if c.Store.TableName == "" {
		c.Store.TableName = "bookings"
	}
	if c.Store.UserIndex == "" {
		c.Store.UserIndex = "user_id_index"
	}
	if c.Store.Backend == BackendSQLite && c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "data/bookings.db"
	}
	if c.Store.SweepIntervalSeconds == 0 {
		c.Store.SweepIntervalSeconds = 5
	}
	if c.Store.SweepBatchSize == 0 {
		c.Store.SweepBatchSize = 100
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}

	// Event defaults
	if c.Events.Bus == "" {
		c.Events.Bus = BusEventBridge
	}
	if c.Events.Source == "" {
		c.Events.Source = models.ReminderSource
	}
	if c.Events.DetailType == "" {
		c.Events.DetailType = models.ReminderDetailType
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "booking.events"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "booking.reminder.due"
	}

	if c.Booking.DefaultReminderLeadSeconds == 0 {
		c.Booking.DefaultReminderLeadSeconds = models.DefaultReminderLeadSeconds
	}
	if c.Booking.MinReminderLeadSeconds == 0 {
		c.Booking.MinReminderLeadSeconds = models.MinReminderLeadSeconds
	}

	if c.Tracing.Enabled && c.Tracing.DaemonAddr == "" {
		c.Tracing.DaemonAddr = "127.0.0.1:2000"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.App.Name
	}
}
