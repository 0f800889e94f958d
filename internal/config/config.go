package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Screenshot ScreenshotConfig `yaml:"screenshot"`
	Worker     WorkerConfig     `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// DeadLetterConfig holds the dead-letter exchange/queue configuration.
// Messages nacked without requeue are routed here for manual inspection.
type DeadLetterConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Exchange   string `yaml:"exchange"`
	Queue      string `yaml:"queue"`
	RoutingKey string `yaml:"routing_key"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// DispatcherConfig holds hostname routing and dispatch namespace configuration
type DispatcherConfig struct {
	// PlatformDomain is the apex domain served by the platform, e.g.
	// "libra.sh". Subdomains of it address deployed workers.
	PlatformDomain string `yaml:"platform_domain"`
	// NamespaceName is the logical name of the dispatch namespace, reported
	// by the namespace info endpoint.
	NamespaceName string `yaml:"namespace_name"`
	// NamespaceBaseDomain is the domain under which worker deployments are
	// reachable. A worker named "myapp" resolves to
	// <scheme>://myapp.<namespace_base_domain>.
	NamespaceBaseDomain string `yaml:"namespace_base_domain"`
	// NamespaceScheme is the scheme used to reach worker deployments.
	NamespaceScheme string `yaml:"namespace_scheme"`
	// ReservedSubdomains overrides the built-in reserved subdomain list
	// when non-empty.
	ReservedSubdomains []string `yaml:"reserved_subdomains"`
	// UpstreamTimeout bounds a single proxied request to a worker or a
	// custom-domain deployment.
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	// ProbeTimeout enables the namespace existence probe when positive, so
	// an undeployed worker is reported as not found instead of a dispatch
	// failure.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// ScreenshotConfig holds the screenshot pipeline's external endpoints
type ScreenshotConfig struct {
	// BrowserEndpoint is the managed browser-rendering API screenshot URL
	BrowserEndpoint string `yaml:"browser_endpoint"`
	// BrowserToken authenticates calls to the browser-rendering API
	BrowserToken string `yaml:"browser_token"`
	// CDNEndpoint is the base URL of the CDN storage API
	CDNEndpoint string `yaml:"cdn_endpoint"`
	// CDNBucket is the storage bucket screenshots are uploaded to
	CDNBucket string `yaml:"cdn_bucket"`
	// CDNToken authenticates CDN uploads
	CDNToken string `yaml:"cdn_token"`
	// CaptureTimeout bounds a single browser-rendering call
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	// ViewportWidth and ViewportHeight set the default capture viewport
	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`
	// Quality is the default image quality for captures (1-100)
	Quality int `yaml:"quality"`
	// MaxRetries is how many queue redeliveries a message gets before it is
	// left to the dead-letter queue
	MaxRetries int `yaml:"max_retries"`
}

// WorkerConfig holds screenshot worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// validateCommon checks the fields both services rely on
func (c *Config) validateCommon() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.RabbitMQ.DeadLetter.Enabled {
		if c.RabbitMQ.DeadLetter.Exchange == "" {
			return fmt.Errorf("rabbitmq dead-letter exchange is required when dead-lettering is enabled")
		}
		if c.RabbitMQ.DeadLetter.Queue == "" {
			return fmt.Errorf("rabbitmq dead-letter queue is required when dead-lettering is enabled")
		}
	}

	return nil
}

// ValidateDispatcherConfig checks the configuration for the dispatcher service
func (c *Config) ValidateDispatcherConfig() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Dispatcher.PlatformDomain == "" {
		return fmt.Errorf("dispatcher platform_domain is required")
	}

	if strings.Contains(c.Dispatcher.PlatformDomain, "/") {
		return fmt.Errorf("dispatcher platform_domain must be a bare hostname: %q", c.Dispatcher.PlatformDomain)
	}

	if c.Dispatcher.NamespaceBaseDomain == "" {
		return fmt.Errorf("dispatcher namespace_base_domain is required")
	}

	switch c.Dispatcher.NamespaceScheme {
	case "", "http", "https":
	default:
		return fmt.Errorf("invalid dispatcher namespace_scheme: %q", c.Dispatcher.NamespaceScheme)
	}

	return nil
}

// ValidateScreenshotConfig checks the configuration for the screenshot service
func (c *Config) ValidateScreenshotConfig() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Screenshot.BrowserEndpoint == "" {
		return fmt.Errorf("screenshot browser_endpoint is required")
	}

	if _, err := url.ParseRequestURI(c.Screenshot.BrowserEndpoint); err != nil {
		return fmt.Errorf("invalid screenshot browser_endpoint: %w", err)
	}

	if c.Screenshot.CDNEndpoint == "" {
		return fmt.Errorf("screenshot cdn_endpoint is required")
	}

	if _, err := url.ParseRequestURI(c.Screenshot.CDNEndpoint); err != nil {
		return fmt.Errorf("invalid screenshot cdn_endpoint: %w", err)
	}

	if c.Screenshot.MaxRetries < 0 {
		return fmt.Errorf("screenshot max_retries must not be negative")
	}

	return nil
}
