package main

import (
	"context"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/brojonat/neardonate/client"
	"github.com/brojonat/neardonate/service/donation"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the neardonate service",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "Request timeout",
				Value:   30 * time.Second,
			},
		},
		Subcommands: []*cli.Command{
			clientBeneficiaryCommand(),
			clientLatestCommand(),
			clientDonorCommand(),
			clientDonateCommand(),
			clientTransactionCommand(),
			clientReceiptsCommand(),
			clientReceiptCommand(),
			clientConfirmationCommand(),
			streamCommand(),
		},
	}
}

// newServiceClient creates an API client for --server-url.
func newServiceClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
	}
	timeout := c.Duration("timeout")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return client.NewClient(serverURL, &http.Client{Timeout: timeout}, cliLogger(c)), nil
}

func clientBeneficiaryCommand() *cli.Command {
	return &cli.Command{
		Name:  "beneficiary",
		Usage: "Show the account that receives donations",
		Action: func(c *cli.Context) error {
			cl, err := newServiceClient(c)
			if err != nil {
				return err
			}

			beneficiary, err := cl.Beneficiary(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get beneficiary: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, map[string]string{"beneficiary": beneficiary})
			}
			fmt.Fprintln(stdout(c), beneficiary)
			return nil
		},
	}
}

func clientLatestCommand() *cli.Command {
	return &cli.Command{
		Name:    "latest",
		Usage:   "List the most recent donors",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			cl, err := newServiceClient(c)
			if err != nil {
				return err
			}

			latest, err := cl.LatestDonations(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get latest donations: %w", err)
			}

			donations := make([]donation.Donation, len(latest))
			for i, d := range latest {
				donations[i] = donation.Donation{AccountID: d.AccountID, TotalAmount: d.TotalAmount}
			}
			return printDonations(c, donations)
		},
	}
}

func clientDonorCommand() *cli.Command {
	return &cli.Command{
		Name:      "donor",
		Usage:     "Show one donor's total",
		ArgsUsage: "<account_id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account id")
			}

			cl, err := newServiceClient(c)
			if err != nil {
				return err
			}

			d, err := cl.DonationForAccount(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get donation: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, d)
			}
			fmt.Fprintf(stdout(c), "%s: %s Ⓝ\n", d.AccountID, d.TotalAmount)
			return nil
		},
	}
}

func clientDonateCommand() *cli.Command {
	return &cli.Command{
		Name:      "donate",
		Usage:     "Donate through the server's signing account",
		ArgsUsage: "<amount>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Wait for the confirmation workflow to finish",
			},
			&cli.DurationFlag{
				Name:  "wait-timeout",
				Usage: "How long to wait for confirmation",
				Value: 2 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: amount in NEAR")
			}

			cl, err := newServiceClient(c)
			if err != nil {
				return err
			}

			result, err := cl.Donate(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("donation failed: %w", err)
			}

			if !c.Bool("wait") {
				if wantJSON(c) {
					return outputJSON(c, result)
				}
				printDonateResult(c, result)
				return nil
			}

			if result.ConfirmationWorkflowID == "" {
				return fmt.Errorf("server did not start a confirmation for %s", result.TransactionHash)
			}
			if !wantJSON(c) {
				printDonateResult(c, result)
				fmt.Fprintf(stderr(c), "\nWaiting for confirmation %s...\n", result.ConfirmationWorkflowID)
			}

			conf, err := waitForConfirmation(cl, result.TransactionHash, c.Duration("wait-timeout"))
			if err != nil {
				return err
			}
			if wantJSON(c) {
				return outputJSON(c, map[string]interface{}{
					"donation":     result,
					"confirmation": conf,
				})
			}
			printConfirmation(c, conf)
			return nil
		},
	}
}

func clientTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "tx",
		Usage:     "Show the donor total a donate transaction returned",
		ArgsUsage: "<tx_hash>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction hash")
			}
			txHash := c.Args().First()

			cl, err := newServiceClient(c)
			if err != nil {
				return err
			}

			amount, err := cl.DonationFromTransaction(context.Background(), txHash)
			if err != nil {
				return fmt.Errorf("failed to read transaction: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, map[string]string{
					"transaction_hash": txHash,
					"amount":           amount,
				})
			}
			fmt.Fprintf(stdout(c), "%s Ⓝ\n", amount)
			return nil
		},
	}
}

func clientReceiptsCommand() *cli.Command {
	return &cli.Command{
		Name:  "receipts",
		Usage: "List the server's stored donation receipts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "account",
				Aliases: []string{"a"},
				Usage:   "Filter by donor account",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of receipts",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			cl, err := newServiceClient(c)
			if err != nil {
				return err
			}

			receipts, err := cl.Receipts(context.Background(), client.ReceiptsQuery{
				AccountID: c.String("account"),
				Limit:     c.Int("limit"),
			})
			if err != nil {
				return fmt.Errorf("failed to list receipts: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, receipts)
			}

			w := tabwriter.NewWriter(stdout(c), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TX HASH\tACCOUNT\tDEPOSIT (Ⓝ)\tTOTAL (Ⓝ)\tSTATUS\tCREATED")
			for _, r := range receipts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.TxHash,
					r.AccountID,
					orDash(r.Deposit),
					orDash(r.Total),
					r.Status,
					r.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(stderr(c), "\nTotal: %d receipts\n", len(receipts))
			return nil
		},
	}
}

func clientReceiptCommand() *cli.Command {
	return &cli.Command{
		Name:      "receipt",
		Usage:     "Show the server's stored receipt for a transaction",
		ArgsUsage: "<tx_hash>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction hash")
			}

			cl, err := newServiceClient(c)
			if err != nil {
				return err
			}

			r, err := cl.Receipt(context.Background(), c.Args().First())
			if client.IsNotFound(err) {
				return fmt.Errorf("no receipt for %s", c.Args().First())
			}
			if err != nil {
				return fmt.Errorf("failed to get receipt: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, r)
			}

			w := stdout(c)
			fmt.Fprintf(w, "Transaction: %s\n", r.TxHash)
			fmt.Fprintf(w, "Account:     %s\n", r.AccountID)
			fmt.Fprintf(w, "Deposit:     %s\n", orDash(r.Deposit))
			fmt.Fprintf(w, "Total:       %s\n", orDash(r.Total))
			fmt.Fprintf(w, "Status:      %s\n", r.Status)
			return nil
		},
	}
}

func clientConfirmationCommand() *cli.Command {
	return &cli.Command{
		Name:      "confirmation",
		Usage:     "Show a donation's confirmation workflow",
		ArgsUsage: "<tx_hash>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Poll until the workflow finishes",
			},
			&cli.DurationFlag{
				Name:  "wait-timeout",
				Usage: "How long to wait",
				Value: 2 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction hash")
			}
			txHash := c.Args().First()

			cl, err := newServiceClient(c)
			if err != nil {
				return err
			}

			var conf *client.Confirmation
			if c.Bool("wait") {
				conf, err = waitForConfirmation(cl, txHash, c.Duration("wait-timeout"))
			} else {
				conf, err = cl.Confirmation(context.Background(), txHash)
			}
			if err != nil {
				return fmt.Errorf("failed to get confirmation: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, conf)
			}
			printConfirmation(c, conf)
			return nil
		},
	}
}

// confirmationPollInterval is how often --wait polls the server.
var confirmationPollInterval = 2 * time.Second

func waitForConfirmation(cl *client.Client, txHash string, timeout time.Duration) (*client.Confirmation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conf, err := cl.WaitForConfirmation(ctx, txHash, confirmationPollInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for confirmation: %w", err)
	}
	return conf, nil
}

func printDonateResult(c *cli.Context, result *client.DonateResult) {
	w := stdout(c)
	fmt.Fprintf(w, "✓ Donated %s Ⓝ to %s\n", result.Amount, result.ReceiverID)
	fmt.Fprintf(w, "  Transaction:  %s\n", result.TransactionHash)
	fmt.Fprintf(w, "  Signer:       %s\n", result.SignerID)
	if result.Total != "" {
		fmt.Fprintf(w, "  Total:        %s Ⓝ\n", result.Total)
	}
	if result.ConfirmationWorkflowID != "" {
		fmt.Fprintf(w, "  Confirmation: %s\n", result.ConfirmationWorkflowID)
	}
}

func printConfirmation(c *cli.Context, conf *client.Confirmation) {
	w := stdout(c)
	fmt.Fprintf(w, "Workflow ID: %s\n", conf.WorkflowID)
	fmt.Fprintf(w, "Status:      %s\n", conf.Status)
	if conf.Result != nil {
		fmt.Fprintf(w, "Receipt:     %s\n", conf.Result.Status)
		if conf.Result.Total != "" {
			fmt.Fprintf(w, "Total:       %s Ⓝ\n", conf.Result.Total)
		}
	}
	if conf.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", conf.Error)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
