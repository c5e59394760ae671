package main

import (
	"flag"
	"fmt"
	"os"

	"eventchat/internal/app"
)

func main() {
	cfg, err := app.LoadClientConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	serverURL := flag.String("server", cfg.ServerURL, "WebSocket channel URL (e.g., ws://localhost:8080/ws)")
	sessionPath := flag.String("session", cfg.SessionPath, "path to the persisted session file")
	flag.Parse()

	cfg.ServerURL = *serverURL
	cfg.SessionPath = *sessionPath
	if args := flag.Args(); len(args) > 0 {
		cfg.EventID = args[0]
	}

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
