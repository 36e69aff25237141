package daybreak

import (
	"time"

	"github.com/0xRadioAc7iv/go-daybreak/internal"
)

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

// WithTimeout bounds dialing and each request. Zero disables the deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(c *internal.Config) {
		c.Timeout = timeout
	}
}
