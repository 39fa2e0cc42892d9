package temporal

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// Confirmation outcomes.
const (
	ConfirmStatusConfirmed = "confirmed"
	ConfirmStatusFailed    = "failed"
)

// DefaultConfirmTimeout bounds how long a confirmation waits for the
// transaction to become visible when the input sets no timeout.
const DefaultConfirmTimeout = 2 * time.Minute

// ConfirmDonationWorkflow waits for a submitted donate transaction and
// records what it returned.
//
// The workflow performs these steps:
// 1. Resolve the amount the transaction returned (ResolveDonation), retrying
//    while the transaction is not found until the timeout elapses
// 2. Mark the receipt confirmed (RecordReceipt)
// 3. Publish a donation event to NATS (PublishDonation)
//
// If step 1 fails the receipt is marked failed and the workflow fails.
// Failures in steps 2 and 3 are logged and reflected in the result.
func ConfirmDonationWorkflow(ctx workflow.Context, input ConfirmDonationInput) (*ConfirmDonationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ConfirmDonationWorkflow started", "tx_hash", input.TxHash)

	startedAt := workflow.GetInfo(ctx).WorkflowStartTime
	result := &ConfirmDonationResult{
		TxHash:     input.TxHash,
		AccountID:  input.AccountID,
		ContractID: input.ContractID,
	}

	timeout := input.Timeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	// Step 1: resolve, retried until the transaction shows up or time runs out
	resolveCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		ScheduleToCloseTimeout: timeout,
		StartToCloseTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        20 * time.Second,
			NonRetryableErrorTypes: []string{ErrTypeAmbiguousResult, ErrTypeInvalidInput},
		},
	})

	var resolved *ResolveDonationResult
	err := workflow.ExecuteActivity(resolveCtx, a.ResolveDonation, ResolveDonationInput{TxHash: input.TxHash}).Get(ctx, &resolved)
	if err != nil {
		logger.Error("failed to resolve donation", "tx_hash", input.TxHash, "error", err)
		errMsg := fmt.Sprintf("failed to resolve donation: %v", err)
		result.Error = &errMsg
		result.Status = ConfirmStatusFailed

		failCtx := workflow.WithActivityOptions(ctx, defaultActivityOptions())
		markErr := workflow.ExecuteActivity(failCtx, a.MarkReceiptFailed, MarkReceiptFailedInput{
			TxHash:     input.TxHash,
			AccountID:  input.AccountID,
			ContractID: input.ContractID,
			Reason:     errMsg,
			StartedAt:  startedAt,
		}).Get(ctx, nil)
		if markErr != nil {
			logger.Warn("failed to mark receipt failed", "tx_hash", input.TxHash, "error", markErr)
		}

		// Keep the failure type so callers can tell ambiguous results apart
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && isNonRetryableType(appErr.Type()) {
			return result, temporal.NewNonRetryableApplicationError(errMsg, appErr.Type(), err)
		}
		return result, fmt.Errorf("failed to resolve donation: %w", err)
	}

	result.Total = resolved.Total
	result.TotalYocto = resolved.TotalYocto
	result.Status = ConfirmStatusConfirmed
	result.ConfirmedAt = workflow.Now(ctx)

	logger.Info("donation resolved", "tx_hash", input.TxHash, "total", resolved.Total)

	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	// Step 2: record the receipt
	var recordResult *RecordReceiptResult
	err = workflow.ExecuteActivity(ctx, a.RecordReceipt, RecordReceiptInput{
		TxHash:     input.TxHash,
		AccountID:  input.AccountID,
		ContractID: input.ContractID,
		TotalYocto: resolved.TotalYocto,
	}).Get(ctx, &recordResult)
	if err != nil {
		logger.Warn("failed to record receipt", "tx_hash", input.TxHash, "error", err)
	} else {
		result.Recorded = recordResult.Recorded
	}

	// Step 3: publish the donation event
	var publishResult *PublishDonationResult
	err = workflow.ExecuteActivity(ctx, a.PublishDonation, PublishDonationInput{
		TxHash:     input.TxHash,
		AccountID:  input.AccountID,
		ContractID: input.ContractID,
		TotalYocto: resolved.TotalYocto,
		StartedAt:  startedAt,
	}).Get(ctx, &publishResult)
	if err != nil {
		logger.Warn("failed to publish donation", "tx_hash", input.TxHash, "error", err)
	} else {
		result.Published = publishResult.Published
	}

	logger.Info("ConfirmDonationWorkflow completed",
		"tx_hash", input.TxHash,
		"recorded", result.Recorded,
		"published", result.Published,
	)

	return result, nil
}

func isNonRetryableType(errType string) bool {
	return errType == ErrTypeAmbiguousResult || errType == ErrTypeInvalidInput
}

func defaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeInvalidInput},
		},
	}
}
