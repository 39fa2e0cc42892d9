package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	natspkg "github.com/brojonat/neardonate/service/nats"
	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v2"
)

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Stream confirmed donations via SSE (HTTP)",
		ArgsUsage: "[account_id]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "count",
				Usage: "Exit after this many donations (0 streams until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			accountID := c.Args().First()
			jsonOutput := wantJSON(c)

			// Build SSE endpoint URL
			endpoint := serverURL + "/api/v1/stream/donations"
			if accountID != "" {
				endpoint += "/" + url.PathEscape(accountID)
			}

			// Create context that cancels on interrupt
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			// No timeout for streaming
			resp, err := (&http.Client{}).Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			limit := c.Int("count")
			received := 0

			// Read SSE events
			scanner := bufio.NewScanner(resp.Body)
			var currentEvent, currentData string

			for scanner.Scan() {
				line := scanner.Text()

				// Fields accumulate until an empty line ends the event
				if line != "" {
					if strings.HasPrefix(line, "event:") {
						currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
					} else if strings.HasPrefix(line, "data:") {
						currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
					}
					continue
				}

				event, data := currentEvent, currentData
				currentEvent, currentData = "", ""
				if event == "" || data == "" {
					continue
				}

				delivered, err := handleSSEEvent(c, event, data, received+1, jsonOutput)
				if err != nil {
					return err
				}
				if delivered {
					received++
					if limit > 0 && received >= limit {
						return nil
					}
				}
			}

			if err := scanner.Err(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("error reading SSE stream: %w", err)
			}
			if !jsonOutput {
				fmt.Fprintf(stderr(c), "\nDisconnected\n")
			}
			return nil
		},
	}
}

// handleSSEEvent prints one event and reports whether it was a donation.
func handleSSEEvent(c *cli.Context, eventType, data string, n int, jsonOutput bool) (bool, error) {
	switch eventType {
	case "connected":
		if !jsonOutput {
			var info map[string]string
			if err := json.Unmarshal([]byte(data), &info); err != nil {
				return false, err
			}
			fmt.Fprintf(stderr(c), "✓ Subscribed to %s\n\n", info["donor"])
		}
		return false, nil

	case "donation":
		var event natspkg.DonationEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return false, fmt.Errorf("invalid donation event: %w", err)
		}
		if jsonOutput {
			fmt.Fprintln(stdout(c), data)
		} else {
			printDonationEvent(c, n, &event)
		}
		return true, nil

	case "error":
		var errInfo map[string]string
		if err := json.Unmarshal([]byte(data), &errInfo); err != nil {
			return false, err
		}
		return false, fmt.Errorf("server error: %s", errInfo["error"])

	default:
		// Unknown event type, ignore
		return false, nil
	}
}
