package temporal

import (
	"context"
	"fmt"
	"sync"
)

// MockConfirmer is a mock implementation of Confirmer for testing.
type MockConfirmer struct {
	mu            sync.Mutex
	confirmations map[string]*Confirmation // map[workflowID]confirmation
	inputs        map[string]ConfirmDonationInput
	startErr      error
	getErr        error
}

// NewMockConfirmer creates a new MockConfirmer.
func NewMockConfirmer() *MockConfirmer {
	return &MockConfirmer{
		confirmations: make(map[string]*Confirmation),
		inputs:        make(map[string]ConfirmDonationInput),
	}
}

// StartConfirmation records a running confirmation.
func (m *MockConfirmer) StartConfirmation(ctx context.Context, input ConfirmDonationInput) (string, error) {
	if m.startErr != nil {
		return "", m.startErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := ConfirmationWorkflowID(input.TxHash)
	if _, ok := m.confirmations[id]; !ok {
		m.confirmations[id] = &Confirmation{
			WorkflowID: id,
			RunID:      fmt.Sprintf("run-%d", len(m.confirmations)+1),
			Status:     "running",
		}
		m.inputs[id] = input
	}
	return id, nil
}

// GetConfirmation returns the recorded confirmation.
func (m *MockConfirmer) GetConfirmation(ctx context.Context, txHash string) (*Confirmation, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.confirmations[ConfirmationWorkflowID(txHash)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConfirmationNotFound, txHash)
	}
	copied := *c
	return &copied, nil
}

// Complete marks a confirmation completed with result.
func (m *MockConfirmer) Complete(txHash string, result *ConfirmDonationResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := ConfirmationWorkflowID(txHash)
	c, ok := m.confirmations[id]
	if !ok {
		c = &Confirmation{WorkflowID: id}
		m.confirmations[id] = c
	}
	c.Status = "completed"
	c.Result = result
}

// Started reports whether a confirmation was started for txHash and with what input.
func (m *MockConfirmer) Started(txHash string) (ConfirmDonationInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	input, ok := m.inputs[ConfirmationWorkflowID(txHash)]
	return input, ok
}

// Count returns the number of confirmations started.
func (m *MockConfirmer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.confirmations)
}

// SetStartError sets an error to be returned by StartConfirmation.
func (m *MockConfirmer) SetStartError(err error) {
	m.startErr = err
}

// SetGetError sets an error to be returned by GetConfirmation.
func (m *MockConfirmer) SetGetError(err error) {
	m.getErr = err
}
