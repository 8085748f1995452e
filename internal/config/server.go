package config

import (
	"os"
	"strings"
	"time"
)

// Default server values
const (
	DefaultAddr             = ":8080"
	DefaultMatchDelay       = time.Second
	DefaultRematchDelay     = 500 * time.Millisecond
	DefaultMetricsNamespace = "rendezvous"
)

// Server holds the rendezvous server configuration
type Server struct {
	// Addr is the listen address, e.g. ":8080"
	Addr string

	// Pairing delays
	MatchDelay   time.Duration
	RematchDelay time.Duration

	// AllowedOrigins restricts websocket upgrades. Empty allows all.
	AllowedOrigins []string

	MetricsNamespace string
}

// ServerOptions carries CLI flag overrides
type ServerOptions struct {
	Addr         string
	MatchDelay   time.Duration
	RematchDelay time.Duration
}

// LoadServer resolves the server configuration.
func LoadServer(opts ServerOptions) (*Server, error) {
	loadDotEnv()

	// Addr: flag > ADDR > PORT > default
	addr := pick(opts.Addr, "", "ADDR")
	if addr == "" {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			addr = ":" + strings.TrimPrefix(port, ":")
		}
	}
	if addr == "" {
		addr = DefaultAddr
	}

	matchDelay, err := duration(opts.MatchDelay, "MATCH_DELAY", DefaultMatchDelay)
	if err != nil {
		return nil, err
	}
	rematchDelay, err := duration(opts.RematchDelay, "REMATCH_DELAY", DefaultRematchDelay)
	if err != nil {
		return nil, err
	}

	return &Server{
		Addr:             addr,
		MatchDelay:       matchDelay,
		RematchDelay:     rematchDelay,
		AllowedOrigins:   splitList(os.Getenv("ALLOWED_ORIGINS")),
		MetricsNamespace: pick("", DefaultMetricsNamespace, "METRICS_NAMESPACE"),
	}, nil
}
