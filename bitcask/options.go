package bitcask

import (
	"time"

	"github.com/omriShneor/rustdex/internal"
)

// Option configures Connect.
type Option func(*internal.Config)

func WithHost(host string) Option {
	return func(c *internal.Config) {
		c.Host = host
	}
}

func WithPort(port int) Option {
	return func(c *internal.Config) {
		c.Port = port
	}
}

// WithDialTimeout bounds how long Connect waits for the server.
func WithDialTimeout(d time.Duration) Option {
	return func(c *internal.Config) {
		c.DialTimeout = d
	}
}
