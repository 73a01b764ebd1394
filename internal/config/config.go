package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Server holds the server process configuration, read from the environment
// with an optional .env file for development.
type Server struct {
	Addr    string `envconfig:"ADDR" default:":5000"`
	DataDir string `envconfig:"DATA_DIR" default:"./data"`
}

// LoadServer reads the server configuration.
func LoadServer() (*Server, error) {
	// Missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	var cfg Server
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	return &cfg, nil
}

// Default client configuration values.
const (
	DefaultServerURL = "http://localhost:5000"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// Client holds the session client configuration.
type Client struct {
	// ServerURL is the HTTP base URL of the session server.
	ServerURL string

	// WebSocketURL is derived from ServerURL.
	WebSocketURL string

	// ICE servers for call negotiation.
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Options for loading client config with CLI flag overrides.
type Options struct {
	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// LoadClient reads client configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Defaults - lowest priority
func LoadClient(opts Options) (*Client, error) {
	serverURL := firstOf(opts.ServerURL, os.Getenv("SESSION_SERVER"), DefaultServerURL)
	stun := firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)
	turn := firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"), "")
	turnUser := firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME"), "")
	turnPass := firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD"), "")

	wsURL, err := WebSocketURL(serverURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		ServerURL:    serverURL,
		WebSocketURL: wsURL,
		STUNServer:   stun,
		TURNServer:   turn,
		TURNUser:     turnUser,
		TURNPass:     turnPass,
	}, nil
}

// WebSocketURL converts an http(s) base URL into the ws(s) endpoint.
func WebSocketURL(serverURL string) (string, error) {
	switch {
	case len(serverURL) >= 8 && serverURL[:8] == "https://":
		return "wss://" + serverURL[8:] + "/ws", nil
	case len(serverURL) >= 7 && serverURL[:7] == "http://":
		return "ws://" + serverURL[7:] + "/ws", nil
	default:
		return "", fmt.Errorf("server URL must be http or https: %s", serverURL)
	}
}

// GetSTUNServers returns STUN server URLs as strings.
func (c *Client) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured.
func (c *Client) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{c.TURNServer}
}

// GetTURNCredentials returns TURN username and password.
func (c *Client) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
