package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/neardonate/service/db"
	"github.com/brojonat/neardonate/service/near"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

// receiptOutput is a stored receipt with amounts formatted in NEAR.
type receiptOutput struct {
	TxHash       string     `json:"tx_hash"`
	ContractID   string     `json:"contract_id"`
	AccountID    string     `json:"account_id"`
	DepositYocto *string    `json:"deposit_yocto,omitempty"`
	Deposit      string     `json:"deposit,omitempty"`
	TotalYocto   *string    `json:"total_yocto,omitempty"`
	Total        string     `json:"total,omitempty"`
	Status       string     `json:"status"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
}

func newReceiptOutput(r *db.Receipt) receiptOutput {
	out := receiptOutput{
		TxHash:       r.TxHash,
		ContractID:   r.ContractID,
		AccountID:    r.AccountID,
		DepositYocto: r.DepositYocto,
		TotalYocto:   r.TotalYocto,
		Status:       r.Status,
		Error:        r.Error,
		CreatedAt:    r.CreatedAt,
		ConfirmedAt:  r.ConfirmedAt,
	}
	out.Deposit = formatOptionalYocto(r.DepositYocto)
	out.Total = formatOptionalYocto(r.TotalYocto)
	return out
}

func listReceiptsCommand() *cli.Command {
	return &cli.Command{
		Name:    "receipts",
		Usage:   "List stored donation receipts, newest first",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "account",
				Aliases: []string{"a"},
				Usage:   "Filter by donor account",
			},
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by status (pending, confirmed, failed)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of receipts",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Skip this many receipts",
			},
		},
		Action: func(c *cli.Context) error {
			contractID := c.String("contract")
			if contractID == "" {
				return fmt.Errorf("contract is required (set CONTRACT_NAME env var or use --contract)")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			receipts, err := store.ListReceipts(context.Background(), db.ListReceiptsParams{
				ContractID: contractID,
				AccountID:  c.String("account"),
				Limit:      int32(c.Int("limit")),
				Offset:     int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list receipts: %w", err)
			}

			// Filter by status if specified
			outputs := make([]receiptOutput, 0, len(receipts))
			statusFilter := c.String("status")
			for _, r := range receipts {
				if statusFilter != "" && r.Status != statusFilter {
					continue
				}
				outputs = append(outputs, newReceiptOutput(r))
			}

			if wantJSON(c) {
				return outputJSON(c, outputs)
			}

			// Pretty table output
			w := tabwriter.NewWriter(stdout(c), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TX HASH\tACCOUNT\tDEPOSIT (Ⓝ)\tTOTAL (Ⓝ)\tSTATUS\tCREATED")
			for _, r := range outputs {
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

			fmt.Fprintf(stderr(c), "\nTotal: %d receipts\n", len(outputs))
			return nil
		},
	}
}

func getReceiptCommand() *cli.Command {
	return &cli.Command{
		Name:      "receipt",
		Usage:     "Get receipt details",
		Aliases:   []string{"get"},
		ArgsUsage: "<tx_hash>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction hash")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			receipt, err := store.GetReceipt(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get receipt: %w", err)
			}

			out := newReceiptOutput(receipt)
			if wantJSON(c) {
				return outputJSON(c, out)
			}

			// Pretty output
			w := stdout(c)
			fmt.Fprintf(w, "Transaction: %s\n", out.TxHash)
			fmt.Fprintf(w, "Contract:    %s\n", out.ContractID)
			fmt.Fprintf(w, "Account:     %s\n", out.AccountID)
			fmt.Fprintf(w, "Deposit:     %s\n", orDash(out.Deposit))
			fmt.Fprintf(w, "Total:       %s\n", orDash(out.Total))
			fmt.Fprintf(w, "Status:      %s\n", out.Status)
			if out.Error != nil {
				fmt.Fprintf(w, "Error:       %s\n", *out.Error)
			}
			fmt.Fprintf(w, "Created:     %s\n", out.CreatedAt.Format(time.RFC3339))
			if out.ConfirmedAt != nil {
				fmt.Fprintf(w, "Confirmed:   %s\n", out.ConfirmedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the receipt schema migrations",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			fmt.Fprintln(stderr(c), "✓ Migrations applied")
			return nil
		},
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		// Try environment variable directly if flag not found
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// formatOptionalYocto formats a yoctoNEAR amount, or returns "" when absent
// or malformed.
func formatOptionalYocto(yocto *string) string {
	if yocto == nil || *yocto == "" {
		return ""
	}
	formatted, err := near.FormatNearAmount(*yocto)
	if err != nil {
		return ""
	}
	return formatted
}
