package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newApp builds the CLI. Output goes to the app's Writer so tests can
// capture it.
func newApp() *cli.App {
	return &cli.App{
		Name:  "neardonate",
		Usage: "NEAR donation contract CLI",
		Description: `A command-line tool for the neardonate service and the donation contract behind it.

Use this CLI to query and donate to the contract directly over NEAR RPC, talk to a
running server, inspect stored receipts, follow donation events, and drive
confirmation workflows.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Direct contract access over NEAR RPC
			contractCommands(),
			// Client commands (HTTP API)
			clientCommands(),
			// Receipt store commands
			{
				Name:  "db",
				Usage: "Receipt store commands",
				Subcommands: []*cli.Command{
					listReceiptsCommand(),
					getReceiptCommand(),
					migrateCommand(),
				},
			},
			// Temporal confirmation commands
			{
				Name:  "temporal",
				Usage: "Donation confirmation workflow commands",
				Subcommands: []*cli.Command{
					startConfirmationCommand(),
					getConfirmationCommand(),
					listWorkflowsCommand(),
				},
			},
			// NATS donation streaming commands
			{
				Name:  "nats",
				Usage: "NATS donation streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "contract",
				Aliases: []string{"c"},
				Usage:   "Donation contract account id",
				EnvVars: []string{"CONTRACT_NAME"},
			},
			&cli.StringFlag{
				Name:    "network",
				Usage:   "NEAR network (testnet or mainnet)",
				EnvVars: []string{"NEAR_NETWORK"},
				Value:   "testnet",
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "NEAR RPC endpoint (defaults to the network's public endpoint)",
				EnvVars: []string{"NEAR_RPC_URL"},
			},
			&cli.StringFlag{
				Name:    "account-id",
				Usage:   "Signing account for donations",
				EnvVars: []string{"NEAR_ACCOUNT_ID"},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Signing key in ed25519:<base58> form",
				EnvVars: []string{"NEAR_PRIVATE_KEY"},
			},
			&cli.DurationFlag{
				Name:    "rpc-timeout",
				Usage:   "Timeout for NEAR RPC requests",
				EnvVars: []string{"RPC_TIMEOUT"},
				Value:   defaultRPCTimeout,
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Temporal task queue for confirmations",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "neardonate-confirmations",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "neardonate server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to JSON output (implies --json)",
			},
		},
	}
}
