package api

import "time"

// Config configures the HTTP server.
type Config struct {
	// Host is the interface to bind. Default: 0.0.0.0.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP port. Default: 8080.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// PublicURL is the externally reachable base URL, used in WOPI editor
	// links. Default: http://localhost:<port>.
	PublicURL string `mapstructure:"public_url" yaml:"public_url"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s. WOPI contents uploads stream whole bodies, so keep
	// this generous in production.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response
	// writes. Default: 30s.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit. Default: 60s.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// Debug mounts the destructive /api/debug routes. Never enable in
	// production.
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}
