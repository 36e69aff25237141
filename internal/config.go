package internal

import "time"

type Config struct {
	Host    string
	Port    int
	Timeout time.Duration
}

const DEFAULT_HOST = "127.0.0.1"
const DEFAULT_PORT = 9999
const DEFAULT_TIMEOUT = 5 * time.Second

func DefaultConfig() *Config {
	return &Config{
		Host:    DEFAULT_HOST,
		Port:    DEFAULT_PORT,
		Timeout: DEFAULT_TIMEOUT,
	}
}
