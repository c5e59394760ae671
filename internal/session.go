package internal

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Session is the locally persisted identity written at login and deleted at
// logout. It is loaded once at startup and handed explicitly to whatever needs
// it; nothing reads it from a global.
type Session struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the session carries a usable, unexpired identity.
func (s *Session) Valid() bool {
	if s == nil || s.Token == "" || s.UserID == 0 || s.Username == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || time.Now().Before(s.ExpiresAt)
}

// LoadSession reads the session file. A missing file is not an error: it means
// the user is logged out, and the caller gets (nil, nil).
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	if !session.Valid() {
		return nil, errors.New("session file incomplete")
	}
	return &session, nil
}

// SaveSession writes the session atomically with user-only permissions.
func SaveSession(path string, session Session) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// DeleteSession removes the session file; a missing file is fine.
func DeleteSession(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DefaultSessionPath returns a per-user location for the session file.
func DefaultSessionPath() string {
	if env := os.Getenv("EVENTCHAT_SESSION_PATH"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "eventchat", "session.json")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Eventchat", "session.json")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Eventchat", "session.json")
		}
		return filepath.Join(home, ".local", "state", "eventchat", "session.json")
	}
	return filepath.Join(".", ".eventchat", "session.json")
}
