// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	// StoreDriver is postgres or memory.
	StoreDriver string `mapstructure:"STORE_DRIVER"`

	DB       DatabaseConfig
	Kafka    KafkaConfig
	RabbitMQ RabbitMQConfig
	Temporal TemporalConfig
	Stripe   StripeConfig
	Courier  CourierConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Jobs     JobsConfig
}

type DatabaseConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type RabbitMQConfig struct {
	User        string
	Password    string
	Host        string
	Port        string
	NotifyQueue string
}

type TemporalConfig struct {
	HostPort  string
	Namespace string
	TaskQueue string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

type CourierConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// PreallocateWaybills fetches a waybill before creating the shipment.
	PreallocateWaybills bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

type JobsConfig struct {
	RelayInterval     time.Duration
	ReconcileInterval time.Duration
	SweepInterval     time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "fulfillment")
	v.SetDefault("KAFKA_TOPIC", "fulfillment.events")
	v.SetDefault("KAFKA_GROUP_ID", "fulfillment-notify")
	v.SetDefault("RABBITMQ_HOST", "localhost")
	v.SetDefault("RABBITMQ_PORT", "5672")
	v.SetDefault("NOTIFY_QUEUE", "balance_notifications")
	v.SetDefault("TEMPORAL_NAMESPACE", "default")
	v.SetDefault("TEMPORAL_TASK_QUEUE", "FULFILLMENT_TASK_QUEUE")
	v.SetDefault("COURIER_TIMEOUT", "15s")
	v.SetDefault("RATE_CACHE_TTL", "10m")
	v.SetDefault("JWT_ISSUER", "logisynapse-fulfillment")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("RELAY_INTERVAL", "5s")
	v.SetDefault("RECONCILE_INTERVAL", "1m")
	v.SetDefault("SWEEP_INTERVAL", "2m")
}

// Load reads .env when present, then the environment. Environment
// variables win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	cfg.DB = DatabaseConfig{
		User:     v.GetString("DB_USER"),
		Password: v.GetString("DB_PASSWORD"),
		Host:     v.GetString("DB_HOST"),
		Port:     v.GetString("DB_PORT"),
		Name:     v.GetString("DB_NAME"),
	}
	cfg.Kafka = KafkaConfig{
		Brokers: splitList(v.GetString("KAFKA_BROKER")),
		Topic:   v.GetString("KAFKA_TOPIC"),
		GroupID: v.GetString("KAFKA_GROUP_ID"),
	}
	cfg.RabbitMQ = RabbitMQConfig{
		User:        v.GetString("RABBITMQ_USER"),
		Password:    v.GetString("RABBITMQ_PASSWORD"),
		Host:        v.GetString("RABBITMQ_HOST"),
		Port:        v.GetString("RABBITMQ_PORT"),
		NotifyQueue: v.GetString("NOTIFY_QUEUE"),
	}
	cfg.Temporal = TemporalConfig{
		HostPort:  v.GetString("TEMPORAL_HOST_PORT"),
		Namespace: v.GetString("TEMPORAL_NAMESPACE"),
		TaskQueue: v.GetString("TEMPORAL_TASK_QUEUE"),
	}
	cfg.Stripe = StripeConfig{
		SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		SuccessURL:    v.GetString("TOPUP_SUCCESS_URL"),
		CancelURL:     v.GetString("TOPUP_CANCEL_URL"),
	}
	cfg.Courier = CourierConfig{
		BaseURL:             v.GetString("COURIER_BASE_URL"),
		Token:               v.GetString("COURIER_TOKEN"),
		Timeout:             v.GetDuration("COURIER_TIMEOUT"),
		PreallocateWaybills: v.GetBool("COURIER_PREALLOCATE_WAYBILLS"),
	}
	cfg.Redis = RedisConfig{
		Addr:     v.GetString("REDIS_ADDR"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		TTL:      v.GetDuration("RATE_CACHE_TTL"),
	}
	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
		TTL:    v.GetDuration("JWT_TTL"),
	}
	cfg.Jobs = JobsConfig{
		RelayInterval:     v.GetDuration("RELAY_INTERVAL"),
		ReconcileInterval: v.GetDuration("RECONCILE_INTERVAL"),
		SweepInterval:     v.GetDuration("SWEEP_INTERVAL"),
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.StoreDriver)
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Courier.BaseURL == "" {
		return errors.New("COURIER_BASE_URL is required")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// GetDBURL formats the config into a PostgreSQL connection string.
func (c *Config) GetDBURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

// GetRabbitMQURL returns "" when no RabbitMQ user is configured.
func (c *Config) GetRabbitMQURL() string {
	if c.RabbitMQ.User == "" {
		return ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
