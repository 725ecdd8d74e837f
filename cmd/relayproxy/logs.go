package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/stiffinWanjohi/relayproxy/internal/logstream"
)

func cmdLogs(c *Client, args []string) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	fs.SetOutput(c.out)
	status := fs.String("status", "", "Filter by status (comma-separated: delivered,failed,stopped)")
	level := fs.String("level", "", "Minimum level (debug, info, warn, error)")
	jsonOutput := fs.Bool("json", false, "Output raw JSON entries")
	if err := fs.Parse(args); err != nil {
		return err
	}

	params := url.Values{}
	if *status != "" {
		params.Set("status", *status)
	}
	if *level != "" {
		params.Set("level", *level)
	}

	streamURL := strings.TrimRight(c.adminURL, "/") + "/deliveries/stream"
	if len(params) > 0 {
		streamURL += "?" + params.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, streamURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// No timeout: the stream stays open until the relay stops.
	client := &http.Client{Transport: c.http.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if !*jsonOutput {
		fmt.Fprintln(c.out, bold("  Relay Deliveries")+dim(" - press Ctrl+C to stop"))
	}

	scanner := bufio.NewScanner(resp.Body)
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "data: ") {
			data.WriteString(strings.TrimPrefix(line, "data: "))
			continue
		}
		if line != "" || data.Len() == 0 {
			continue
		}

		raw := data.String()
		data.Reset()

		var entry logstream.Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if *jsonOutput {
			fmt.Fprintln(c.out, raw)
		} else {
			fmt.Fprintln(c.out, formatEntry(&entry))
		}
	}

	return scanner.Err()
}

func formatEntry(entry *logstream.Entry) string {
	ts := entry.Timestamp.Local().Format("15:04:05")

	var levelStr string
	switch entry.Level {
	case "debug":
		levelStr = dim("DBG")
	case "info":
		levelStr = cyan("INF")
	case "warn":
		levelStr = yellow("WRN")
	case "error":
		levelStr = fail("ERR")
	default:
		levelStr = entry.Level
	}

	var statusStr string
	switch entry.Status {
	case logstream.StatusDelivered:
		statusStr = success(entry.Status)
	case logstream.StatusFailed:
		statusStr = yellow(entry.Status)
	case logstream.StatusStopped:
		statusStr = bold(entry.Status)
	default:
		statusStr = entry.Status
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  %s %s %s", dim(ts), levelStr, statusStr)

	if id := entry.PayloadID; id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(&b, " %s", dim(id))
	}
	if entry.StatusCode > 0 {
		code := fmt.Sprintf("%d", entry.StatusCode)
		if entry.StatusCode == http.StatusOK {
			code = success(code)
		} else {
			code = fail(code)
		}
		fmt.Fprintf(&b, " %s", code)
	}
	if entry.DurationMs > 0 {
		fmt.Fprintf(&b, " %s", dim(fmt.Sprintf("%dms", entry.DurationMs)))
	}
	if entry.Attempt > 0 {
		fmt.Fprintf(&b, " %s", dim(fmt.Sprintf("attempt %d", entry.Attempt)))
	}
	if entry.RetryInMs > 0 {
		fmt.Fprintf(&b, " %s", dim(fmt.Sprintf("retry in %dms", entry.RetryInMs)))
	}
	if entry.Status == logstream.StatusStopped {
		fmt.Fprintf(&b, " lost=%d", entry.Lost)
	}
	if entry.Error != "" {
		fmt.Fprintf(&b, "\n         %s %s", fail("↳"), dim(entry.Error))
	}
	return b.String()
}
