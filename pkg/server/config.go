package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config configures the server.
type Config struct {
	// Address is the listen address (e.g., ":8080").
	Address string

	// ShutdownTimeout bounds graceful shutdown. Default: 5s.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout bounds reading request headers. Default: 10s.
	ReadHeaderTimeout time.Duration

	// WriteWait bounds each WebSocket write. Default: 10s.
	WriteWait time.Duration

	// PongWait is how long a live-feed client may stay silent. Pings are
	// sent at 9/10 of it. Default: 60s.
	PongWait time.Duration

	// MaxMessageSize limits inbound WebSocket messages. Default: 4KB.
	MaxMessageSize int64

	// SendBuffer is the per-client frame queue. A client whose queue is
	// full is disconnected. Default: 64.
	SendBuffer int

	// MaxBodyBytes limits API request bodies. Default: 1MB.
	MaxBodyBytes int64

	// CheckOrigin validates WebSocket origins. Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns a Config with defaults.
func DefaultConfig() Config {
	return Config{
		Address:           ":8080",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteWait:         10 * time.Second,
		PongWait:          60 * time.Second,
		MaxMessageSize:    4 * 1024,
		SendBuffer:        64,
		MaxBodyBytes:      1 << 20,
		CheckOrigin:       SameOriginCheck,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = d.CheckOrigin
	}
}

func (c *Config) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

// SameOriginCheck accepts requests without an Origin header and requests
// whose Origin host matches the request host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}
	return originURL.Host == host
}

// AllowOrigins returns an origin check that accepts same-origin requests
// and the listed origins (scheme://host[:port]).
func AllowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		if SameOriginCheck(r) {
			return true
		}
		return allowed[strings.ToLower(r.Header.Get("Origin"))]
	}
}
