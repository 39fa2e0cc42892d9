package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/neardonate/service/db"
	"github.com/brojonat/neardonate/service/donation"
	"github.com/brojonat/neardonate/service/metrics"
	natspkg "github.com/brojonat/neardonate/service/nats"
	"github.com/brojonat/neardonate/service/near"
	"go.temporal.io/sdk/temporal"
)

// Application error types returned by activities. Workflows list the
// non-retryable ones in their retry policies.
const (
	ErrTypeAmbiguousResult = "AmbiguousResult"
	ErrTypeInvalidInput    = "InvalidInput"
)

// ConfirmDonationInput contains the input parameters for confirming a donation.
type ConfirmDonationInput struct {
	TxHash     string        `json:"tx_hash"`
	AccountID  string        `json:"account_id"`
	ContractID string        `json:"contract_id"`
	Timeout    time.Duration `json:"timeout"` // how long to wait for the transaction to be found
}

// ConfirmDonationResult contains the result of a confirmation workflow.
type ConfirmDonationResult struct {
	TxHash      string    `json:"tx_hash"`
	AccountID   string    `json:"account_id"`
	ContractID  string    `json:"contract_id"`
	Total       string    `json:"total,omitempty"`
	TotalYocto  string    `json:"total_yocto,omitempty"`
	Status      string    `json:"status"` // "confirmed" or "failed"
	Recorded    bool      `json:"recorded"`
	Published   bool      `json:"published"`
	ConfirmedAt time.Time `json:"confirmed_at,omitempty"`
	Error       *string   `json:"error,omitempty"`
}

// ResolveDonationInput contains parameters for the ResolveDonation activity.
type ResolveDonationInput struct {
	TxHash string `json:"tx_hash"`
}

// ResolveDonationResult contains the amount a donate transaction returned.
type ResolveDonationResult struct {
	TotalYocto string `json:"total_yocto"`
	Total      string `json:"total"`
}

// RecordReceiptInput contains parameters for the RecordReceipt activity.
type RecordReceiptInput struct {
	TxHash     string `json:"tx_hash"`
	AccountID  string `json:"account_id"`
	ContractID string `json:"contract_id"`
	TotalYocto string `json:"total_yocto"`
}

// RecordReceiptResult contains the result of recording a receipt.
type RecordReceiptResult struct {
	Recorded bool `json:"recorded"` // false when no store is configured
}

// MarkReceiptFailedInput contains parameters for the MarkReceiptFailed activity.
type MarkReceiptFailedInput struct {
	TxHash     string    `json:"tx_hash"`
	AccountID  string    `json:"account_id"`
	ContractID string    `json:"contract_id"`
	Reason     string    `json:"reason"`
	StartedAt  time.Time `json:"started_at"`
}

// PublishDonationInput contains parameters for the PublishDonation activity.
type PublishDonationInput struct {
	TxHash     string    `json:"tx_hash"`
	AccountID  string    `json:"account_id"`
	ContractID string    `json:"contract_id"`
	TotalYocto string    `json:"total_yocto"`
	StartedAt  time.Time `json:"started_at"`
}

// PublishDonationResult contains the result of publishing a donation event.
type PublishDonationResult struct {
	Published bool `json:"published"` // false when no publisher is configured
}

// ResolverInterface resolves the amount a transaction returned.
// This allows for easy mocking in tests.
type ResolverInterface interface {
	GetTransactionResult(ctx context.Context, txHash string) (string, error)
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	ConfirmReceipt(context.Context, db.ConfirmReceiptParams) (*db.Receipt, error)
	FailReceipt(context.Context, db.FailReceiptParams) (*db.Receipt, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
// This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishDonation(ctx context.Context, event *natspkg.DonationEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// Store and publisher are optional; their activities become no-ops when nil.
type Activities struct {
	resolver  ResolverInterface
	store     StoreInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	resolver ResolverInterface,
	store StoreInterface,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		resolver:  resolver,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

func (a *Activities) recordActivity(name string, start time.Time, err error) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(name, time.Since(start).Seconds(), err)
	}
}

// ResolveDonation looks up the amount a donate transaction returned.
// A transaction that is not found yet, or a failed lookup, is returned as a
// plain error so Temporal retries it. An ambiguous result will never change
// and is returned as a non-retryable application error.
func (a *Activities) ResolveDonation(ctx context.Context, input ResolveDonationInput) (result *ResolveDonationResult, err error) {
	defer func(start time.Time) { a.recordActivity("ResolveDonation", start, err) }(time.Now())

	if input.TxHash == "" {
		return nil, temporal.NewNonRetryableApplicationError("transaction hash is required", ErrTypeInvalidInput, nil)
	}

	totalYocto, err := a.resolver.GetTransactionResult(ctx, input.TxHash)
	if err != nil {
		switch {
		case errors.Is(err, donation.ErrAmbiguousResult):
			a.logger.WarnContext(ctx, "donation result is ambiguous",
				"tx_hash", input.TxHash,
				"error", err,
			)
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeAmbiguousResult, err)
		case errors.Is(err, donation.ErrTransactionNotFound):
			a.logger.DebugContext(ctx, "transaction not found yet", "tx_hash", input.TxHash)
		default:
			a.logger.ErrorContext(ctx, "failed to resolve donation",
				"tx_hash", input.TxHash,
				"error", err,
			)
		}
		return nil, fmt.Errorf("failed to resolve donation: %w", err)
	}

	total, err := near.FormatNearAmount(totalYocto)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeAmbiguousResult, err)
	}

	a.logger.InfoContext(ctx, "resolved donation",
		"tx_hash", input.TxHash,
		"total", total,
	)

	return &ResolveDonationResult{TotalYocto: totalYocto, Total: total}, nil
}

// RecordReceipt marks the donation's receipt confirmed.
func (a *Activities) RecordReceipt(ctx context.Context, input RecordReceiptInput) (result *RecordReceiptResult, err error) {
	defer func(start time.Time) { a.recordActivity("RecordReceipt", start, err) }(time.Now())

	if a.store == nil {
		a.logger.DebugContext(ctx, "no store configured, skipping receipt", "tx_hash", input.TxHash)
		return &RecordReceiptResult{Recorded: false}, nil
	}

	_, err = a.store.ConfirmReceipt(ctx, db.ConfirmReceiptParams{
		TxHash:     input.TxHash,
		ContractID: input.ContractID,
		AccountID:  input.AccountID,
		TotalYocto: input.TotalYocto,
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to confirm receipt",
			"tx_hash", input.TxHash,
			"error", err,
		)
		return nil, fmt.Errorf("failed to confirm receipt: %w", err)
	}

	a.logger.InfoContext(ctx, "receipt confirmed", "tx_hash", input.TxHash)
	return &RecordReceiptResult{Recorded: true}, nil
}

// MarkReceiptFailed records why a donation could not be confirmed.
func (a *Activities) MarkReceiptFailed(ctx context.Context, input MarkReceiptFailedInput) (err error) {
	defer func(start time.Time) {
		a.recordActivity("MarkReceiptFailed", start, err)
		if err == nil && a.metrics != nil && !input.StartedAt.IsZero() {
			a.metrics.RecordWorkflowDuration("failed", time.Since(input.StartedAt).Seconds())
		}
	}(time.Now())

	if a.store == nil {
		return nil
	}

	_, err = a.store.FailReceipt(ctx, db.FailReceiptParams{
		TxHash:     input.TxHash,
		ContractID: input.ContractID,
		AccountID:  input.AccountID,
		Reason:     input.Reason,
	})
	if err != nil {
		return fmt.Errorf("failed to mark receipt failed: %w", err)
	}

	a.logger.InfoContext(ctx, "receipt marked failed",
		"tx_hash", input.TxHash,
		"reason", input.Reason,
	)
	return nil
}

// PublishDonation publishes the confirmed donation to NATS.
func (a *Activities) PublishDonation(ctx context.Context, input PublishDonationInput) (result *PublishDonationResult, err error) {
	defer func(start time.Time) {
		a.recordActivity("PublishDonation", start, err)
		if err == nil && a.metrics != nil && !input.StartedAt.IsZero() {
			a.metrics.RecordWorkflowDuration("confirmed", time.Since(input.StartedAt).Seconds())
		}
	}(time.Now())

	if a.publisher == nil {
		a.logger.DebugContext(ctx, "no publisher configured, skipping event", "tx_hash", input.TxHash)
		return &PublishDonationResult{Published: false}, nil
	}

	event, err := natspkg.NewDonationEvent(input.TxHash, input.ContractID, input.AccountID, input.TotalYocto)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	}

	if err := a.publisher.PublishDonation(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish donation",
			"tx_hash", input.TxHash,
			"error", err,
		)
		return nil, fmt.Errorf("failed to publish donation: %w", err)
	}

	a.logger.InfoContext(ctx, "donation published",
		"tx_hash", input.TxHash,
		"account_id", input.AccountID,
		"total", event.Total,
	)
	return &PublishDonationResult{Published: true}, nil
}
