package app

import (
	"errors"
	"log"

	intrnl "eventchat/internal"
)

// RunClient resolves the persisted session and launches the Bubble Tea TUI.
// A missing or expired session is not an error; the client starts logged out.
func RunClient(cfg ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("server URL is required")
	}
	sessionPath := cfg.SessionPath
	if sessionPath == "" {
		sessionPath = intrnl.DefaultSessionPath()
	}
	session, err := intrnl.LoadSession(sessionPath)
	if err != nil {
		log.Printf("ignoring unreadable session file: %v", err)
		session = nil
	}
	if session != nil && !session.Valid() {
		_ = intrnl.DeleteSession(sessionPath)
		session = nil
	}
	return intrnl.RunClient(cfg.ServerURL, session, sessionPath, cfg.EventID)
}
