package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Default client values (production)
const (
	DefaultServer   = "http://localhost:8080"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "" // Optional, empty by default
	DefaultTURNUser = ""
	DefaultTURNPass = ""
)

// Client holds the chat client configuration
type Client struct {
	// ServerURL is the base http(s) URL of the rendezvous server
	ServerURL string

	// WebSocketURL and StatsURL are derived from ServerURL
	WebSocketURL string
	StatsURL     string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN relay candidates
	ForceRelay bool
}

// ClientOptions carries CLI flag overrides
type ClientOptions struct {
	Server     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// LoadClient resolves the chat client configuration.
func LoadClient(opts ClientOptions) (*Client, error) {
	loadDotEnv()

	server := pick(opts.Server, DefaultServer, "RENDEZVOUS_SERVER")
	wsURL, statsURL, err := endpoints(server)
	if err != nil {
		return nil, err
	}

	return &Client{
		ServerURL:    strings.TrimRight(server, "/"),
		WebSocketURL: wsURL,
		StatsURL:     statsURL,
		STUNServer:   pick(opts.STUNServer, DefaultSTUN, "STUN_SERVER"),
		TURNServer:   pick(opts.TURNServer, DefaultTURN, "TURN_SERVER"),
		TURNUser:     pick(opts.TURNUser, DefaultTURNUser, "TURN_USERNAME"),
		TURNPass:     pick(opts.TURNPass, DefaultTURNPass, "TURN_PASSWORD"),
		ForceRelay:   opts.ForceRelay,
	}, nil
}

// endpoints maps a base server URL to its websocket and stats endpoints.
// A bare host is treated as https.
func endpoints(server string) (string, string, error) {
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidServer, server)
	}

	httpScheme, wsScheme := u.Scheme, ""
	switch u.Scheme {
	case "http", "ws":
		httpScheme, wsScheme = "http", "ws"
	case "https", "wss":
		httpScheme, wsScheme = "https", "wss"
	default:
		return "", "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidServer, u.Scheme)
	}

	base := u.Host + u.Path
	return wsScheme + "://" + base + "/ws", httpScheme + "://" + base + "/stats", nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Client) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Client) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Client) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
