package temporal

import (
	"context"
	"errors"
)

// ErrConfirmationNotFound is returned when no confirmation exists for a transaction.
var ErrConfirmationNotFound = errors.New("confirmation not found")

// Confirmer starts and inspects donation confirmations.
// Each transaction gets at most one ConfirmDonationWorkflow.
type Confirmer interface {
	// StartConfirmation starts the ConfirmDonationWorkflow for a transaction
	// and returns its workflow ID. Starting an already running confirmation
	// returns the existing one.
	StartConfirmation(ctx context.Context, input ConfirmDonationInput) (string, error)

	// GetConfirmation reports the state of a transaction's confirmation.
	GetConfirmation(ctx context.Context, txHash string) (*Confirmation, error)
}

// Confirmation is the observable state of a confirmation workflow.
type Confirmation struct {
	WorkflowID string                 `json:"workflow_id"`
	RunID      string                 `json:"run_id,omitempty"`
	Status     string                 `json:"status"` // running, completed, failed, canceled, terminated, timed_out
	Result     *ConfirmDonationResult `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// ConfirmationWorkflowID returns the workflow ID for a transaction's confirmation.
func ConfirmationWorkflowID(txHash string) string {
	return "confirm-donation-" + txHash
}

var (
	_ Confirmer = (*Client)(nil)
	_ Confirmer = (*MockConfirmer)(nil)
)
