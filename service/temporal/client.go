package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	enums "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// Client is the production Confirmer that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartConfirmation starts the ConfirmDonationWorkflow for a transaction.
// The workflow ID is derived from the transaction hash, so starting a
// confirmation that is already running returns the existing run.
func (c *Client) StartConfirmation(ctx context.Context, input ConfirmDonationInput) (string, error) {
	id := ConfirmationWorkflowID(input.TxHash)

	timeout := input.Timeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	c.logger.Debug("starting donation confirmation",
		"tx_hash", input.TxHash,
		"account_id", input.AccountID,
		"workflow_id", id,
		"timeout", timeout,
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
		// Leave room for the receipt and publish steps after the resolve budget
		WorkflowExecutionTimeout: timeout + 5*time.Minute,
		Memo: map[string]interface{}{
			"tx_hash":     input.TxHash,
			"account_id":  input.AccountID,
			"contract_id": input.ContractID,
			"created_by":  "neardonate",
		},
	}, ConfirmDonationWorkflow, input)
	if err != nil {
		c.logger.Error("failed to start confirmation",
			"tx_hash", input.TxHash,
			"workflow_id", id,
			"error", err,
		)
		return "", fmt.Errorf("failed to start confirmation %q: %w", id, err)
	}

	c.logger.Info("donation confirmation started",
		"tx_hash", input.TxHash,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)

	return run.GetID(), nil
}

// GetConfirmation describes a transaction's confirmation workflow and, once
// it has closed, includes its result or failure.
func (c *Client) GetConfirmation(ctx context.Context, txHash string) (*Confirmation, error) {
	id := ConfirmationWorkflowID(txHash)

	desc, err := c.client.DescribeWorkflowExecution(ctx, id, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrConfirmationNotFound, txHash)
		}
		return nil, fmt.Errorf("failed to describe confirmation %q: %w", id, err)
	}

	info := desc.GetWorkflowExecutionInfo()
	conf := &Confirmation{
		WorkflowID: id,
		RunID:      info.GetExecution().GetRunId(),
		Status:     workflowStatusName(info.GetStatus()),
	}

	switch info.GetStatus() {
	case enums.WORKFLOW_EXECUTION_STATUS_RUNNING, enums.WORKFLOW_EXECUTION_STATUS_UNSPECIFIED:
		return conf, nil
	}

	var result ConfirmDonationResult
	if err := c.client.GetWorkflow(ctx, id, conf.RunID).Get(ctx, &result); err != nil {
		conf.Error = err.Error()
		return conf, nil
	}
	conf.Result = &result
	return conf, nil
}

// workflowStatusName maps Temporal execution statuses to API status strings.
func workflowStatusName(status enums.WorkflowExecutionStatus) string {
	switch status {
	case enums.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return "running"
	case enums.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return "completed"
	case enums.WORKFLOW_EXECUTION_STATUS_FAILED:
		return "failed"
	case enums.WORKFLOW_EXECUTION_STATUS_CANCELED:
		return "canceled"
	case enums.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return "terminated"
	case enums.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return "timed_out"
	case enums.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return "continued_as_new"
	default:
		return "unknown"
	}
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
