package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	InstanceID string          `yaml:"instance_id"`
	Web        WebConfig       `yaml:"web"`
	Database   DatabaseConfig  `yaml:"database"`
	Redis      RedisConfig     `yaml:"redis"`
	Auth       AuthConfig      `yaml:"auth"`
	Messaging  MessagingConfig `yaml:"messaging"`
	Storage    StorageConfig   `yaml:"storage"`
	Inventory  InventoryConfig `yaml:"inventory"`
	Dashboard  DashboardConfig `yaml:"dashboard"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	SecureCookies bool   `yaml:"secure_cookies"`

	// SSEKeepAlive is how often idle event streams send a comment line.
	SSEKeepAlive time.Duration `yaml:"sse_keepalive"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // "sqlite" or "postgres"
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns a libpq-style connection string usable by both pgx stdlib and pgxpool.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.Database, p.User, p.Password, p.SSLMode)
}

type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	StatsTTL time.Duration `yaml:"stats_ttl"`
}

type AuthConfig struct {
	Provider string           `yaml:"provider"` // "local" or "hosted"
	Hosted   HostedAuthConfig `yaml:"hosted"`
	Local    LocalAuthConfig  `yaml:"local"`

	// RevalidateInterval is how long a web session trusts its last check
	// with the provider before asking again.
	RevalidateInterval time.Duration `yaml:"revalidate_interval"`
}

type HostedAuthConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type LocalAuthConfig struct {
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
}

type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // "kafka", "mqtt" or "none"
	Kafka               KafkaConfig   `yaml:"kafka"`
	MQTT                MQTTConfig    `yaml:"mqtt"`
	EventsTopic         string        `yaml:"events_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	PublicURL string `yaml:"public_url"`
}

type InventoryConfig struct {
	LowStockThreshold int `yaml:"low_stock_threshold"`
}

type DashboardConfig struct {
	RecentDays  int `yaml:"recent_days"`
	RecentLimit int `yaml:"recent_limit"`
}

func Defaults() *Config {
	return &Config{
		InstanceID: "storedesk",
		Web: WebConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			SSEKeepAlive: 25 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "storedesk.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "postgres",
				User:     "postgres",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			StatsTTL: 30 * time.Second,
		},
		Auth: AuthConfig{
			Provider:           "local",
			Hosted:             HostedAuthConfig{Timeout: 10 * time.Second},
			Local:              LocalAuthConfig{AdminEmail: "admin@example.com"},
			RevalidateInterval: time.Minute,
		},
		Messaging: MessagingConfig{
			Backend:             "none",
			MQTT:                MQTTConfig{ClientID: "storedesk", QoS: 1},
			EventsTopic:         "storedesk.events",
			OutboxDrainInterval: 5 * time.Second,
		},
		Storage: StorageConfig{Bucket: "avatars"},
		Inventory: InventoryConfig{
			LowStockThreshold: 10,
		},
		Dashboard: DashboardConfig{
			RecentDays:  7,
			RecentLimit: 5,
		},
	}
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config back to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	switch c.Auth.Provider {
	case "local":
	case "hosted":
		if c.Auth.Hosted.BaseURL == "" {
			return errors.New("config: auth.hosted.base_url is required for the hosted provider")
		}
	default:
		return fmt.Errorf("config: unsupported auth provider %q", c.Auth.Provider)
	}
	switch c.Messaging.Backend {
	case "kafka", "mqtt", "none":
	default:
		return fmt.Errorf("config: unsupported messaging backend %q", c.Messaging.Backend)
	}
	if c.Inventory.LowStockThreshold < 0 {
		return errors.New("config: inventory.low_stock_threshold must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := Defaults()
	if c.Web.Port == 0 {
		c.Web.Port = d.Web.Port
	}
	if c.Web.SSEKeepAlive == 0 {
		c.Web.SSEKeepAlive = d.Web.SSEKeepAlive
	}
	if c.Database.Driver == "" {
		c.Database.Driver = d.Database.Driver
	}
	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = d.Database.SQLite.Path
	}
	if c.Redis.StatsTTL == 0 {
		c.Redis.StatsTTL = d.Redis.StatsTTL
	}
	if c.Auth.Provider == "" {
		c.Auth.Provider = d.Auth.Provider
	}
	if c.Auth.Hosted.Timeout == 0 {
		c.Auth.Hosted.Timeout = d.Auth.Hosted.Timeout
	}
	if c.Auth.RevalidateInterval == 0 {
		c.Auth.RevalidateInterval = d.Auth.RevalidateInterval
	}
	if c.Messaging.Backend == "" {
		c.Messaging.Backend = d.Messaging.Backend
	}
	if c.Messaging.EventsTopic == "" {
		c.Messaging.EventsTopic = d.Messaging.EventsTopic
	}
	if c.Messaging.OutboxDrainInterval == 0 {
		c.Messaging.OutboxDrainInterval = d.Messaging.OutboxDrainInterval
	}
	if c.Messaging.MQTT.ClientID == "" {
		c.Messaging.MQTT.ClientID = d.Messaging.MQTT.ClientID
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = d.Storage.Bucket
	}
	if c.Dashboard.RecentDays <= 0 {
		c.Dashboard.RecentDays = d.Dashboard.RecentDays
	}
	if c.Dashboard.RecentLimit <= 0 {
		c.Dashboard.RecentLimit = d.Dashboard.RecentLimit
	}
}
