package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/stiffinWanjohi/relayproxy/internal/api"
)

// Client talks to a running relay.
type Client struct {
	relayURL string
	adminURL string
	http     *http.Client
	out      io.Writer
}

// get fetches an admin path and returns the status code with the body.
func (c *Client) get(path string) (int, []byte, error) {
	resp, err := c.http.Get(strings.TrimRight(c.adminURL, "/") + path)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func cmdSend(c *Client, args []string) error {
	var data, file string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--data", "-d":
			if i+1 >= len(args) {
				return fmt.Errorf("--data requires a value")
			}
			i++
			data = args[i]
		case "--file", "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("--file requires a value")
			}
			i++
			file = args[i]
		default:
			if data == "" && !strings.HasPrefix(args[i], "-") {
				data = args[i]
			}
		}
	}

	var body []byte
	switch {
	case file != "" && data != "":
		return fmt.Errorf("use either --file or --data, not both")
	case file == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		body = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		body = b
	case data != "":
		body = []byte(data)
	default:
		return fmt.Errorf("--data or --file is required")
	}

	resp, err := c.http.Post(c.relayURL, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		fmt.Fprintf(c.out, "%s %d bytes queued for delivery\n", success("Accepted:"), len(body))
		return nil
	case http.StatusServiceUnavailable:
		return fmt.Errorf("relay overloaded, try again later (HTTP %d)", resp.StatusCode)
	case http.StatusBadRequest:
		return fmt.Errorf("relay rejected the payload (HTTP %d)", resp.StatusCode)
	default:
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
}

func cmdStats(c *Client) error {
	status, body, err := c.get("/stats")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
	}

	var stats api.StatsResponse
	if err := json.Unmarshal(body, &stats); err != nil {
		return err
	}

	fmt.Fprintln(c.out, bold("Relay Statistics:"))
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  version:\t%s\n", stats.Version)
	fmt.Fprintf(w, "  destination:\t%s\n", cyan(stats.Destination))
	fmt.Fprintf(w, "  uptime:\t%ds\n", stats.UptimeSeconds)
	fmt.Fprintf(w, "  pending:\t%d\n", stats.Channel.Pending)
	if stats.Channel.Capacity > 0 {
		fmt.Fprintf(w, "  capacity:\t%d\n", stats.Channel.Capacity)
	} else {
		fmt.Fprintf(w, "  capacity:\t%s\n", dim("unbounded"))
	}
	fmt.Fprintf(w, "  accepted:\t%d\n", stats.Channel.Enqueued)
	fmt.Fprintf(w, "  rejected:\t%d\n", stats.Channel.Rejected)
	fmt.Fprintf(w, "  delivered:\t%d\n", stats.Forwarder.Delivered)
	fmt.Fprintf(w, "  failed attempts:\t%d\n", stats.Forwarder.FailedAttempts)
	fmt.Fprintf(w, "  requeued:\t%d\n", stats.Forwarder.Requeued)
	if stats.Forwarder.LastDeliveredAt != nil {
		fmt.Fprintf(w, "  last delivery:\t%s\n", stats.Forwarder.LastDeliveredAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func cmdHealth(c *Client) error {
	_, body, err := c.get("/health")
	if err != nil {
		return err
	}

	var health api.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return err
	}

	if health.Status == "ok" {
		fmt.Fprintln(c.out, success("✓ Relay is healthy"))
		return nil
	}

	fmt.Fprintf(c.out, "%s (forwarder %s)\n", fail("✗ Relay is unhealthy"), yellow(health.Forwarder))
	return fmt.Errorf("service unhealthy")
}
