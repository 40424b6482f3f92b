package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "LESSONCHAT_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database     *DatabaseConfig  `json:"database"`
	HTTP         *HTTPConfig      `json:"http"`
	WebSocket    *WebSocketConfig `json:"websocket"`
	Hub          *HubConfig       `json:"hub"`
	Logging      *LoggingConfig   `json:"logging"`
	SeedDemoData bool             `json:"seed_demo_data"`
}

// FUNCTIONAL DISCOVERY: Database configuration supports SQLite optimizations
type DatabaseConfig struct {
	Path           string        `json:"path"`
	MaxConnections int           `json:"max_connections"`
	BusyRetryDelay time.Duration `json:"busy_retry_delay"`
	WriteTimeout   time.Duration `json:"write_timeout"`
}

// HTTPConfig covers the REST listener, CORS and per-IP rate limiting
type HTTPConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins"`
	// RateLimitRequests per RateLimitWindow per client IP; zero disables limiting
	RateLimitRequests int           `json:"rate_limit_requests"`
	RateLimitWindow   time.Duration `json:"rate_limit_window"`
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	BufferSize     int           `json:"buffer_size"`
	MaxMessageSize int64         `json:"max_message_size"`
	EventRate      float64       `json:"event_rate"`
	EventBurst     int           `json:"event_burst"`
}

// HubConfig sizes the per-session lanes
type HubConfig struct {
	QueueSize   int           `json:"queue_size"`
	IdleTimeout time.Duration `json:"idle_timeout"`
}

// LoggingConfig selects level, encoding and destination of log records
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Sink   string `json:"sink"`
}

// FUNCTIONAL DISCOVERY: Production-ready defaults based on classroom requirements.
// Port 5000 and the localhost:8080 client origin match the web client's dev setup.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:           "./data/lessonchat.db",
			MaxConnections: 10,
			BusyRetryDelay: time.Second,
			WriteTimeout:   30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Host:              "0.0.0.0",
			Port:              5000,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			AllowedOrigins:    []string{"http://localhost:8080"},
			RateLimitRequests: 100,
			RateLimitWindow:   15 * time.Minute,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     100,
			MaxMessageSize: 16 * 1024,
			EventRate:      10,
			EventBurst:     20,
		},
		Hub: &HubConfig{
			QueueSize:   256,
			IdleTimeout: 30 * time.Second,
		},
		Logging: &LoggingConfig{
			Level:  "info",
			Format: "text",
			Sink:   "stdout",
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}
	if c.Database.BusyRetryDelay < 0 {
		return fmt.Errorf("database busy retry delay cannot be negative")
	}
	if c.Database.WriteTimeout <= 0 {
		return fmt.Errorf("database write timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	// port 0 binds an ephemeral port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP read and write timeouts must be positive")
	}
	if c.HTTP.RateLimitRequests < 0 {
		return fmt.Errorf("HTTP rate limit requests cannot be negative")
	}
	if c.HTTP.RateLimitRequests > 0 && c.HTTP.RateLimitWindow <= 0 {
		return fmt.Errorf("HTTP rate limit window must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.EventRate <= 0 || c.WebSocket.EventBurst <= 0 {
		return fmt.Errorf("WebSocket event rate and burst must be positive")
	}

	if c.Hub == nil {
		return fmt.Errorf("hub configuration is required")
	}
	if c.Hub.QueueSize <= 0 {
		return fmt.Errorf("hub queue size must be positive")
	}
	if c.Hub.IdleTimeout <= 0 {
		return fmt.Errorf("hub idle timeout must be positive")
	}

	if c.Logging == nil {
		return fmt.Errorf("logging configuration is required")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log format must be text or json")
	}

	return nil
}

// Address returns the listen address
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitRPS converts the request window into a steady per-second rate
func (c *HTTPConfig) RateLimitRPS() float64 {
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return 0
	}
	return float64(c.RateLimitRequests) / c.RateLimitWindow.Seconds()
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility.
// PORT and CLIENT_URL are honored for hosts that set them, prefixed names win.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	envInt("PORT", &config.HTTP.Port)
	if origin := os.Getenv("CLIENT_URL"); origin != "" {
		config.HTTP.AllowedOrigins = splitList(origin)
	}

	envString(EnvPrefix+"DATABASE_PATH", &config.Database.Path)
	envInt(EnvPrefix+"DATABASE_MAX_CONNECTIONS", &config.Database.MaxConnections)
	envDuration(EnvPrefix+"DATABASE_BUSY_RETRY_DELAY", &config.Database.BusyRetryDelay)
	envDuration(EnvPrefix+"DATABASE_WRITE_TIMEOUT", &config.Database.WriteTimeout)

	envString(EnvPrefix+"HTTP_HOST", &config.HTTP.Host)
	envInt(EnvPrefix+"HTTP_PORT", &config.HTTP.Port)
	envDuration(EnvPrefix+"HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration(EnvPrefix+"HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	envDuration(EnvPrefix+"HTTP_IDLE_TIMEOUT", &config.HTTP.IdleTimeout)
	envDuration(EnvPrefix+"HTTP_SHUTDOWN_TIMEOUT", &config.HTTP.ShutdownTimeout)
	if origins := os.Getenv(EnvPrefix + "HTTP_ALLOWED_ORIGINS"); origins != "" {
		config.HTTP.AllowedOrigins = splitList(origins)
	}
	envInt(EnvPrefix+"HTTP_RATE_LIMIT_REQUESTS", &config.HTTP.RateLimitRequests)
	envDuration(EnvPrefix+"HTTP_RATE_LIMIT_WINDOW", &config.HTTP.RateLimitWindow)

	envDuration(EnvPrefix+"WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration(EnvPrefix+"WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration(EnvPrefix+"WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt(EnvPrefix+"WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)
	if size := os.Getenv(EnvPrefix + "WEBSOCKET_MAX_MESSAGE_SIZE"); size != "" {
		if n, err := strconv.ParseInt(size, 10, 64); err == nil {
			config.WebSocket.MaxMessageSize = n
		}
	}
	if r := os.Getenv(EnvPrefix + "WEBSOCKET_EVENT_RATE"); r != "" {
		if f, err := strconv.ParseFloat(r, 64); err == nil {
			config.WebSocket.EventRate = f
		}
	}
	envInt(EnvPrefix+"WEBSOCKET_EVENT_BURST", &config.WebSocket.EventBurst)

	envInt(EnvPrefix+"HUB_QUEUE_SIZE", &config.Hub.QueueSize)
	envDuration(EnvPrefix+"HUB_IDLE_TIMEOUT", &config.Hub.IdleTimeout)

	envString(EnvPrefix+"LOG_LEVEL", &config.Logging.Level)
	envString(EnvPrefix+"LOG_FORMAT", &config.Logging.Format)
	envString(EnvPrefix+"LOG_SINK", &config.Logging.Sink)

	if seed := os.Getenv(EnvPrefix + "SEED_DEMO_DATA"); seed != "" {
		if b, err := strconv.ParseBool(seed); err == nil {
			config.SeedDemoData = b
		}
	}
}

// FUNCTIONAL DISCOVERY: Unparseable values keep the previous setting
func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ConfigFile represents the on-disk structure
// FUNCTIONAL DISCOVERY: Separate struct for parsing to handle duration strings.
// YAML is a superset of JSON so both formats load through the same decoder.
type ConfigFile struct {
	Database     *DatabaseConfigFile  `yaml:"database"`
	HTTP         *HTTPConfigFile      `yaml:"http"`
	WebSocket    *WebSocketConfigFile `yaml:"websocket"`
	Hub          *HubConfigFile       `yaml:"hub"`
	Logging      *LoggingConfig       `yaml:"logging"`
	SeedDemoData *bool                `yaml:"seed_demo_data"`
}

type DatabaseConfigFile struct {
	Path           string `yaml:"path"`
	MaxConnections int    `yaml:"max_connections"`
	BusyRetryDelay string `yaml:"busy_retry_delay"`
	WriteTimeout   string `yaml:"write_timeout"`
}

type HTTPConfigFile struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	ReadTimeout       string   `yaml:"read_timeout"`
	WriteTimeout      string   `yaml:"write_timeout"`
	IdleTimeout       string   `yaml:"idle_timeout"`
	ShutdownTimeout   string   `yaml:"shutdown_timeout"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	RateLimitRequests *int     `yaml:"rate_limit_requests"`
	RateLimitWindow   string   `yaml:"rate_limit_window"`
}

type WebSocketConfigFile struct {
	PingInterval   string  `yaml:"ping_interval"`
	ReadTimeout    string  `yaml:"read_timeout"`
	WriteTimeout   string  `yaml:"write_timeout"`
	BufferSize     int     `yaml:"buffer_size"`
	MaxMessageSize int64   `yaml:"max_message_size"`
	EventRate      float64 `yaml:"event_rate"`
	EventBurst     int     `yaml:"event_burst"`
}

type HubConfigFile struct {
	QueueSize   int    `yaml:"queue_size"`
	IdleTimeout string `yaml:"idle_timeout"`
}

// LoadFromFile reads a YAML or JSON file over the defaults and validates the result
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	var errs []string
	duration := func(field, value string, dst *time.Duration) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", field, err))
			return
		}
		*dst = d
	}

	if f := file.Database; f != nil {
		if f.Path != "" {
			config.Database.Path = f.Path
		}
		if f.MaxConnections > 0 {
			config.Database.MaxConnections = f.MaxConnections
		}
		duration("database.busy_retry_delay", f.BusyRetryDelay, &config.Database.BusyRetryDelay)
		duration("database.write_timeout", f.WriteTimeout, &config.Database.WriteTimeout)
	}

	if f := file.HTTP; f != nil {
		if f.Host != "" {
			config.HTTP.Host = f.Host
		}
		if f.Port > 0 {
			config.HTTP.Port = f.Port
		}
		duration("http.read_timeout", f.ReadTimeout, &config.HTTP.ReadTimeout)
		duration("http.write_timeout", f.WriteTimeout, &config.HTTP.WriteTimeout)
		duration("http.idle_timeout", f.IdleTimeout, &config.HTTP.IdleTimeout)
		duration("http.shutdown_timeout", f.ShutdownTimeout, &config.HTTP.ShutdownTimeout)
		if f.AllowedOrigins != nil {
			config.HTTP.AllowedOrigins = f.AllowedOrigins
		}
		if f.RateLimitRequests != nil {
			config.HTTP.RateLimitRequests = *f.RateLimitRequests
		}
		duration("http.rate_limit_window", f.RateLimitWindow, &config.HTTP.RateLimitWindow)
	}

	if f := file.WebSocket; f != nil {
		duration("websocket.ping_interval", f.PingInterval, &config.WebSocket.PingInterval)
		duration("websocket.read_timeout", f.ReadTimeout, &config.WebSocket.ReadTimeout)
		duration("websocket.write_timeout", f.WriteTimeout, &config.WebSocket.WriteTimeout)
		if f.BufferSize > 0 {
			config.WebSocket.BufferSize = f.BufferSize
		}
		if f.MaxMessageSize > 0 {
			config.WebSocket.MaxMessageSize = f.MaxMessageSize
		}
		if f.EventRate > 0 {
			config.WebSocket.EventRate = f.EventRate
		}
		if f.EventBurst > 0 {
			config.WebSocket.EventBurst = f.EventBurst
		}
	}

	if f := file.Hub; f != nil {
		if f.QueueSize > 0 {
			config.Hub.QueueSize = f.QueueSize
		}
		duration("hub.idle_timeout", f.IdleTimeout, &config.Hub.IdleTimeout)
	}

	if f := file.Logging; f != nil {
		if f.Level != "" {
			config.Logging.Level = f.Level
		}
		if f.Format != "" {
			config.Logging.Format = f.Format
		}
		if f.Sink != "" {
			config.Logging.Sink = f.Sink
		}
	}

	if file.SeedDemoData != nil {
		config.SeedDemoData = *file.SeedDemoData
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid durations in %s: %s", filepath, strings.Join(errs, "; "))
	}
	return nil
}

// LoadConfigWithPrecedence layers file over environment over defaults.
// FUNCTIONAL DISCOVERY: A missing or broken file is reported but does not
// stop startup; environment and defaults still apply.
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	config := LoadFromEnv()

	var fileErr error
	if filepath != "" {
		if err := applyFile(config, filepath); err != nil {
			fileErr = err
			config = LoadFromEnv()
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, fileErr
}
