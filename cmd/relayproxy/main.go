package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/stiffinWanjohi/relayproxy/internal/app"
	"github.com/stiffinWanjohi/relayproxy/internal/config"
	"github.com/stiffinWanjohi/relayproxy/internal/logging"
)

const (
	defaultRelayURL = "http://localhost:4444/"
	defaultAdminURL = "http://localhost:9090"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd := "serve"
	var args []string
	if len(os.Args) > 1 {
		cmd = os.Args[1]
		args = os.Args[2:]
	}

	client := &Client{
		relayURL: getEnv("RELAY_URL", defaultRelayURL),
		adminURL: getEnv("RELAY_ADMIN_URL", defaultAdminURL),
		http:     &http.Client{Timeout: 30 * time.Second},
		out:      os.Stdout,
	}

	var err error
	switch cmd {
	case "serve", "start":
		err = runServe()
	case "send":
		err = cmdSend(client, args)
	case "stats":
		err = cmdStats(client)
	case "health":
		err = cmdHealth(client)
	case "logs":
		err = cmdLogs(client, args)
	case "version", "-v", "--version":
		fmt.Printf("relayproxy version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", fail("Error:"), err)
		os.Exit(1)
	}
}

func runServe() error {
	logging.Init(logging.OptionsFromEnv())
	log := logging.Component("main")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	svc, err := app.Init(ctx, cfg, version)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			log.Warn("failed to close services", "error", err)
		}
	}()

	log.Info("starting relayproxy", "version", version)
	return app.Run(ctx, svc)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func printUsage() {
	fmt.Print(`relayproxy - store-and-forward HTTP relay

Usage:
  relayproxy [command] [arguments]

Commands:
  serve     Run the relay (default)
  send      Submit one payload to a running relay
  stats     Show channel and forwarder statistics
  health    Check relay health
  logs      Stream delivery attempts as they happen
  version   Show version information
  help      Show this help message

Environment Variables:
  DESTINATION_URL   Where payloads are forwarded (required for serve)
  LISTEN_ADDR       Ingest listen address (default: :4444)
  ADMIN_ADDR        Admin listen address (default: :9090, empty disables)
  RETRY_DELAY       Wait after a failed delivery (default: 1s)
  QUEUE_CAPACITY    Channel capacity, 0 for unbounded (default: 0)
  CONFIG_FILE       Optional YAML configuration file
  RELAY_URL         Ingest URL used by send (default: http://localhost:4444/)
  RELAY_ADMIN_URL   Admin URL used by stats and health (default: http://localhost:9090)

Examples:
  # Run the relay
  DESTINATION_URL=https://example.com/hook relayproxy serve

  # Submit a payload
  relayproxy send --data '{"order_id": 123}'
  relayproxy send --file ./event.bin

  # Check progress
  relayproxy stats
  relayproxy logs --status failed
`)
}
