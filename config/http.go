package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://clips.example.com").
	// Used when generating absolute download links.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// StreamKeepAlive is the interval between keep-alive comments on event streams.
	StreamKeepAlive time.Duration `env:"HTTP_STREAM_KEEP_ALIVE" envDefault:"15s"`
}
