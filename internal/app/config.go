package app

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr   string `env:"EVENTCHAT_ADDR" envDefault:":8080"`
	WSPath string `env:"EVENTCHAT_WS_PATH" envDefault:"/ws"`
	DBPath string `env:"EVENTCHAT_DB_PATH"`
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL   string `env:"EVENTCHAT_SERVER" envDefault:"ws://127.0.0.1:8080/ws"`
	SessionPath string `env:"EVENTCHAT_SESSION_PATH"`
	EventID     string `env:"EVENTCHAT_EVENT"`
}

// LoadServerConfig reads the server settings from the environment. Flags layer
// on top of the result in main.
func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// LoadClientConfig reads the client settings from the environment.
func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if envPath := os.Getenv("EVENTCHAT_DATA_DIR"); envPath != "" {
		return filepath.Join(envPath, "eventchat.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "eventchat", "eventchat.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "EventChat", "eventchat.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "EventChat", "eventchat.db")
		}
		return filepath.Join(home, ".local", "share", "eventchat", "eventchat.db")
	}
	return filepath.Join(".", ".eventchat", "eventchat.db")
}

// NormalizeWSPath guarantees the websocket path starts with '/' and falls back
// to /ws when empty.
func NormalizeWSPath(path string) string {
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
