package transport

import (
	"errors"
	"time"
)

// Config holds the TCP pub/sub endpoints and timing parameters for the
// inbound subscriber and outbound publisher (§6).
type Config struct {
	// InboundAddr is dialed to subscribe to sensoren_rijbaan,
	// sensoren_speciaal, sensoren_bruggen, voorrangsvoertuig, tijd.
	InboundAddr string `yaml:"inbound_addr"`
	// OutboundListen is the address the outbound publisher listens on;
	// subscribers (the simulator) connect in to receive stoplichten frames.
	OutboundListen string `yaml:"outbound_listen"`

	// DialTimeout bounds the inbound connection attempt.
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// ReconnectDelay is the wait before retrying a dropped inbound connection.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	// WriteTimeout bounds each outbound frame write to a subscriber.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

const (
	defaultDialTimeout    = 5 * time.Second
	defaultReconnectDelay = 2 * time.Second
	defaultWriteTimeout   = 2 * time.Second
)

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	if c.InboundAddr == "" {
		return errors.New("transport: config: InboundAddr is required")
	}
	if c.OutboundListen == "" {
		return errors.New("transport: config: OutboundListen is required")
	}
	if c.DialTimeout <= 0 {
		return errors.New("transport: config: DialTimeout must be positive")
	}
	if c.ReconnectDelay <= 0 {
		return errors.New("transport: config: ReconnectDelay must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("transport: config: WriteTimeout must be positive")
	}
	return nil
}
