package main

import (
	"context"
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/brojonat/neardonate/service/config"
	"github.com/brojonat/neardonate/service/donation"
	"github.com/brojonat/neardonate/service/near"
	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v2"
)

// newContract builds the contract adapter from the global flags. Tests
// replace it with one backed by an in-memory wallet.
var newContract = func(c *cli.Context) (*donation.Contract, error) {
	contractID := c.String("contract")
	if contractID == "" {
		return nil, fmt.Errorf("contract is required (set CONTRACT_NAME env var or use --contract)")
	}

	network := c.String("network")
	rpcURL := c.String("rpc-url")
	if rpcURL == "" {
		defaultURL, ok := config.DefaultRPCURL(network)
		if !ok {
			return nil, fmt.Errorf("unknown network %q: use --rpc-url", network)
		}
		rpcURL = defaultURL
	}

	timeout := c.Duration("rpc-timeout")
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}

	logger := cliLogger(c)
	rpc := near.NewRPCClient(rpcURL, network, &http.Client{Timeout: timeout}, nil, logger)

	walletCfg := near.WalletConfig{
		AccountID:    c.String("account-id"),
		LookupSender: contractID,
	}
	if secret := c.String("private-key"); secret != "" {
		if walletCfg.AccountID == "" {
			return nil, fmt.Errorf("account-id is required with private-key")
		}
		key, err := near.ParseKeyPair(secret)
		if err != nil {
			return nil, err
		}
		walletCfg.Key = key
	}

	return donation.NewContract(contractID, near.NewWallet(rpc, walletCfg, logger), nil, logger), nil
}

func contractCommands() *cli.Command {
	return &cli.Command{
		Name:  "contract",
		Usage: "Query and donate to the contract directly over NEAR RPC",
		Subcommands: []*cli.Command{
			contractBeneficiaryCommand(),
			contractLatestCommand(),
			contractDonorCommand(),
			contractDonateCommand(),
			contractTransactionCommand(),
		},
	}
}

func contractBeneficiaryCommand() *cli.Command {
	return &cli.Command{
		Name:  "beneficiary",
		Usage: "Show the account that receives donations",
		Action: func(c *cli.Context) error {
			contract, err := newContract(c)
			if err != nil {
				return err
			}

			beneficiary, err := contract.GetBeneficiary(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get beneficiary: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, map[string]string{
					"contract_id": contract.ContractID(),
					"beneficiary": beneficiary,
				})
			}

			fmt.Fprintln(stdout(c), beneficiary)
			return nil
		},
	}
}

func contractLatestCommand() *cli.Command {
	return &cli.Command{
		Name:    "latest",
		Usage:   "List the most recent donors and their totals",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			contract, err := newContract(c)
			if err != nil {
				return err
			}

			donations, err := contract.LatestDonations(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get latest donations: %w", err)
			}

			return printDonations(c, donations)
		},
	}
}

func contractDonorCommand() *cli.Command {
	return &cli.Command{
		Name:      "donor",
		Usage:     "Show one donor's total",
		ArgsUsage: "<account_id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account id")
			}

			contract, err := newContract(c)
			if err != nil {
				return err
			}

			d, err := contract.GetDonationForAccount(context.Background(), c.Args().First())
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

// contractDonateResult is the JSON output of contract donate.
type contractDonateResult struct {
	TransactionHash string `json:"transaction_hash"`
	SignerID        string `json:"signer_id"`
	ReceiverID      string `json:"receiver_id"`
	Amount          string `json:"amount"`
	Total           string `json:"total,omitempty"`
}

func contractDonateCommand() *cli.Command {
	return &cli.Command{
		Name:      "donate",
		Usage:     "Donate NEAR from the signing account",
		ArgsUsage: "<amount>",
		Description: `Signs and submits a donate call attaching <amount> NEAR, then prints the
transaction hash and the donor's new total.

Example:
  neardonate --account-id alice.testnet --private-key ed25519:... contract donate 1.5`,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: amount in NEAR")
			}
			amount := c.Args().First()

			contract, err := newContract(c)
			if err != nil {
				return err
			}

			result, err := contract.Donate(context.Background(), amount)
			if err != nil {
				return fmt.Errorf("donation failed: %w", err)
			}

			out := contractDonateResult{
				TransactionHash: result.TransactionHash,
				SignerID:        result.SignerID,
				ReceiverID:      result.ReceiverID,
				Amount:          amount,
			}
			var totalYocto string
			if err := json.Unmarshal(result.Value, &totalYocto); err == nil {
				if total, err := near.FormatNearAmount(totalYocto); err == nil {
					out.Total = total
				}
			}

			if wantJSON(c) {
				return outputJSON(c, out)
			}

			w := stdout(c)
			fmt.Fprintf(w, "✓ Donated %s Ⓝ to %s\n", amount, out.ReceiverID)
			fmt.Fprintf(w, "  Transaction: %s\n", out.TransactionHash)
			fmt.Fprintf(w, "  Signer:      %s\n", out.SignerID)
			if out.Total != "" {
				fmt.Fprintf(w, "  Total:       %s Ⓝ\n", out.Total)
			}
			return nil
		},
	}
}

func contractTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "tx",
		Usage:     "Show the donor total a donate transaction returned",
		ArgsUsage: "<tx_hash>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction hash")
			}
			txHash := c.Args().First()

			contract, err := newContract(c)
			if err != nil {
				return err
			}

			amount, err := contract.GetDonationFromTransaction(context.Background(), txHash)
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

// printDonations prints a donor table, or JSON.
func printDonations(c *cli.Context, donations []donation.Donation) error {
	if wantJSON(c) {
		return outputJSON(c, donations)
	}

	w := tabwriter.NewWriter(stdout(c), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tTOTAL (Ⓝ)")
	for _, d := range donations {
		fmt.Fprintf(w, "%s\t%s\n", d.AccountID, d.TotalAmount)
	}
	w.Flush()

	fmt.Fprintf(stderr(c), "\nTotal: %d donors\n", len(donations))
	return nil
}
