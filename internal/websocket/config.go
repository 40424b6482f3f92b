package websocket

import "time"

// Config holds transport settings for /ws connections
type Config struct {
	// PingInterval is how often the server pings an idle client
	PingInterval time.Duration
	// ReadTimeout is the read deadline, extended by every pong
	ReadTimeout time.Duration
	// WriteTimeout bounds a single frame write
	WriteTimeout time.Duration
	// SendBufferSize is the per-connection outbound queue length
	SendBufferSize int
	// MaxMessageSize caps an inbound frame in bytes
	MaxMessageSize int64
	// AllowedOrigins lists accepted Origin headers. Empty or "*" accepts all.
	AllowedOrigins []string
	// EventRate and EventBurst limit inbound events per connection
	EventRate  float64
	EventBurst int
}

// DefaultConfig returns settings tuned for classroom networks
// FUNCTIONAL DISCOVERY: 30s ping with a 60s read deadline tolerates one lost pong
func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBufferSize: 100,
		MaxMessageSize: 16 * 1024,
		AllowedOrigins: []string{"*"},
		EventRate:      10,
		EventBurst:     20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = d.SendBufferSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.EventRate <= 0 {
		c.EventRate = d.EventRate
	}
	if c.EventBurst <= 0 {
		c.EventBurst = d.EventBurst
	}
	return c
}
