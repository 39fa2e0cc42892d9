package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	natspkg "github.com/brojonat/neardonate/service/nats"
	json "github.com/goccy/go-json"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// newSubscriber connects to NATS for subscribe. Tests replace it with an
// in-memory publisher.
var newSubscriber = func(c *cli.Context) (natspkg.Subscriber, func(), error) {
	natsURL := c.String("nats-url")
	if natsURL == "" {
		return nil, nil, fmt.Errorf("nats-url is required (set NATS_URL env var or use --nats-url)")
	}

	publisher, err := natspkg.NewPublisher(natsURL, nil, cliLogger(c))
	if err != nil {
		return nil, nil, err
	}
	return publisher, func() { publisher.Close() }, nil
}

// subscribeCommand streams donation events for one donor or all of them.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to donation events",
		ArgsUsage: "[account_id]",
		Description: `Subscribe to real-time donation events published to NATS JetStream.

Events are published to the subject donations.{account_id}. Without an account
every donation is shown. Only events published after the subscription starts
are delivered.

Example:
  neardonate nats subscribe alice.testnet --count 1 --json
  neardonate nats subscribe --filter '.total_yocto | length > 24'`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "count",
				Usage: "Exit after this many events (0 streams until interrupted)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Exit after this long (0 streams until interrupted)",
			},
			&cli.StringSliceFlag{
				Name:  "filter",
				Usage: "jq expression an event must satisfy (repeatable, all must match)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("accepts at most one argument: account id")
			}
			accountID := c.Args().First()

			filters := make([]*gojq.Code, 0, len(c.StringSlice("filter")))
			for _, f := range c.StringSlice("filter") {
				code, err := compileJQ(f)
				if err != nil {
					return err
				}
				filters = append(filters, code)
			}

			subscriber, closer, err := newSubscriber(c)
			if err != nil {
				return err
			}
			defer closer()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if timeout := c.Duration("timeout"); timeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			if !wantJSON(c) {
				fmt.Fprintf(stderr(c), "📡 Subscribing to: %s\n", natspkg.Subject(accountID))
				fmt.Fprintf(stderr(c), "\nWaiting for donations... (Ctrl-C to exit)\n\n")
			}

			limit := c.Int("count")
			var (
				mu       sync.Mutex
				received int
			)
			handler := func(event *natspkg.DonationEvent) {
				for _, code := range filters {
					if !matchesJQ(code, event) {
						return
					}
				}

				mu.Lock()
				defer mu.Unlock()
				if limit > 0 && received >= limit {
					return
				}
				received++

				if wantJSON(c) {
					data, _ := json.Marshal(event)
					fmt.Fprintln(stdout(c), string(data))
				} else {
					printDonationEvent(c, received, event)
				}

				if limit > 0 && received >= limit {
					cancel()
				}
			}

			if err := subscriber.Subscribe(ctx, accountID, handler); err != nil {
				return fmt.Errorf("subscription failed: %w", err)
			}

			mu.Lock()
			defer mu.Unlock()
			if !wantJSON(c) {
				fmt.Fprintf(stderr(c), "\n✅ Received %d donations\n", received)
			}
			if limit > 0 && received < limit {
				return fmt.Errorf("received %d of %d donations before stopping", received, limit)
			}
			return nil
		},
	}
}

func printDonationEvent(c *cli.Context, n int, event *natspkg.DonationEvent) {
	w := stdout(c)
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Donation #%d\n", n)
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Transaction:  %s\n", event.TxHash)
	fmt.Fprintf(w, "Donor:        %s\n", event.AccountID)
	fmt.Fprintf(w, "Contract:     %s\n", event.ContractID)
	fmt.Fprintf(w, "Total:        %s Ⓝ\n", event.Total)
	fmt.Fprintf(w, "Published:    %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "\n")
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the DONATIONS JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Stream configuration

Example:
  neardonate nats inspect-stream`,
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")

			// Connect to NATS
			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, info)
			}

			w := stdout(c)
			fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(w, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(w, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(w, "Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
