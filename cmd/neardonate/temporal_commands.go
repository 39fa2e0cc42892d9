package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/brojonat/neardonate/service/temporal"
	"github.com/urfave/cli/v2"
	workflowpb "go.temporal.io/api/workflowservice/v1"
)

// newConfirmer connects to Temporal for the confirmation commands. Tests
// replace it with a mock.
var newConfirmer = func(c *cli.Context) (temporal.Confirmer, func(), error) {
	temporalClient, err := getTemporalClient(c)
	if err != nil {
		return nil, nil, err
	}
	return temporalClient, temporalClient.Close, nil
}

func startConfirmationCommand() *cli.Command {
	return &cli.Command{
		Name:      "confirm",
		Usage:     "Start a confirmation workflow for a donate transaction",
		ArgsUsage: "<tx_hash>",
		Description: `Starts ConfirmDonationWorkflow for a transaction submitted outside the server,
for example from a browser wallet. The workflow waits for the transaction,
records the receipt and publishes the donation event.

Example:
  neardonate temporal confirm 6zgh2u9DqHHiXzdy9ouTP7oGky2T4nugqzqt9wJZwNFm --account alice.testnet`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "account",
				Aliases:  []string{"a"},
				Usage:    "Donor account that signed the transaction",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long the workflow waits for the transaction",
				Value: temporal.DefaultConfirmTimeout,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction hash")
			}
			contractID := c.String("contract")
			if contractID == "" {
				return fmt.Errorf("contract is required (set CONTRACT_NAME env var or use --contract)")
			}

			confirmer, closer, err := newConfirmer(c)
			if err != nil {
				return err
			}
			defer closer()

			input := temporal.ConfirmDonationInput{
				TxHash:     c.Args().First(),
				AccountID:  c.String("account"),
				ContractID: contractID,
				Timeout:    c.Duration("timeout"),
			}
			workflowID, err := confirmer.StartConfirmation(context.Background(), input)
			if err != nil {
				return fmt.Errorf("failed to start confirmation: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, map[string]string{
					"tx_hash":     input.TxHash,
					"workflow_id": workflowID,
				})
			}

			fmt.Fprintf(stdout(c), "✓ Confirmation started: %s\n", workflowID)
			return nil
		},
	}
}

func getConfirmationCommand() *cli.Command {
	return &cli.Command{
		Name:      "confirmation",
		Usage:     "Show the state of a transaction's confirmation workflow",
		Aliases:   []string{"status"},
		ArgsUsage: "<tx_hash>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction hash")
			}
			txHash := c.Args().First()

			confirmer, closer, err := newConfirmer(c)
			if err != nil {
				return err
			}
			defer closer()

			conf, err := confirmer.GetConfirmation(context.Background(), txHash)
			if errors.Is(err, temporal.ErrConfirmationNotFound) {
				return fmt.Errorf("no confirmation workflow for %s", txHash)
			}
			if err != nil {
				return fmt.Errorf("failed to get confirmation: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, conf)
			}

			w := stdout(c)
			fmt.Fprintf(w, "Workflow ID: %s\n", conf.WorkflowID)
			if conf.RunID != "" {
				fmt.Fprintf(w, "Run ID:      %s\n", conf.RunID)
			}
			fmt.Fprintf(w, "Status:      %s\n", conf.Status)
			if conf.Result != nil {
				fmt.Fprintf(w, "Donor:       %s\n", conf.Result.AccountID)
				fmt.Fprintf(w, "Receipt:     %s\n", conf.Result.Status)
				if conf.Result.Total != "" {
					fmt.Fprintf(w, "Total:       %s Ⓝ\n", conf.Result.Total)
				}
			}
			if conf.Error != "" {
				fmt.Fprintf(w, "Error:       %s\n", conf.Error)
			}
			return nil
		},
	}
}

func listWorkflowsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-workflows",
		Usage:   "List recent confirmation workflow executions",
		Aliases: []string{"wf"},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of executions",
				Value:   20,
			},
		},
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			resp, err := temporalClient.SDKClient().ListWorkflow(ctx, &workflowpb.ListWorkflowExecutionsRequest{
				Namespace: c.String("temporal-namespace"),
				PageSize:  int32(c.Int("limit")),
				Query:     "WorkflowType = 'ConfirmDonationWorkflow'",
			})
			if err != nil {
				return fmt.Errorf("failed to list workflows: %w", err)
			}

			executions := resp.GetExecutions()
			if wantJSON(c) {
				rows := make([]map[string]interface{}, 0, len(executions))
				for _, exec := range executions {
					rows = append(rows, map[string]interface{}{
						"workflow_id": exec.GetExecution().GetWorkflowId(),
						"run_id":      exec.GetExecution().GetRunId(),
						"status":      exec.GetStatus().String(),
						"start_time":  exec.GetStartTime().AsTime(),
					})
				}
				return outputJSON(c, rows)
			}

			// Pretty table output
			w := tabwriter.NewWriter(stdout(c), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WORKFLOW ID\tSTATUS\tSTARTED")
			for _, exec := range executions {
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					exec.GetExecution().GetWorkflowId(),
					exec.GetStatus().String(),
					exec.GetStartTime().AsTime().Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(stderr(c), "\nTotal: %d workflows\n", len(executions))
			return nil
		},
	}
}

// Helper function to connect to Temporal
func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	host := c.String("temporal-host")
	if host == "" {
		host = "localhost:7233"
	}
	namespace := c.String("temporal-namespace")
	if namespace == "" {
		namespace = "default"
	}
	taskQueue := c.String("task-queue")
	if taskQueue == "" {
		taskQueue = "neardonate-confirmations"
	}

	temporalClient, err := temporal.NewClient(host, namespace, taskQueue, cliLogger(c))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}
	return temporalClient, nil
}
