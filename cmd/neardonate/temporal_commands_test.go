package main

import (
	"errors"
	"testing"
	"time"

	"github.com/brojonat/neardonate/service/temporal"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// useMockConfirmer points the confirmation commands at a mock.
func useMockConfirmer(t *testing.T) *temporal.MockConfirmer {
	t.Helper()

	confirmer := temporal.NewMockConfirmer()
	orig := newConfirmer
	newConfirmer = func(*cli.Context) (temporal.Confirmer, func(), error) {
		return confirmer, func() {}, nil
	}
	t.Cleanup(func() { newConfirmer = orig })
	return confirmer
}

func TestStartConfirmationCommand(t *testing.T) {
	confirmer := useMockConfirmer(t)

	out, err := runApp(t, "--contract", "donation.testnet", "temporal", "confirm",
		"--account", "alice.testnet", "--timeout", "90s", "HashOne")
	require.NoError(t, err)
	assert.Contains(t, out, "Confirmation started: confirm-donation-HashOne")

	input, started := confirmer.Started("HashOne")
	require.True(t, started)
	assert.Equal(t, temporal.ConfirmDonationInput{
		TxHash:     "HashOne",
		AccountID:  "alice.testnet",
		ContractID: "donation.testnet",
		Timeout:    90 * time.Second,
	}, input)
}

func TestStartConfirmationCommand_Errors(t *testing.T) {
	confirmer := useMockConfirmer(t)
	t.Setenv("CONTRACT_NAME", "")

	tests := []struct {
		name    string
		args    []string
		setup   func()
		wantErr string
	}{
		{
			name:    "missing account",
			args:    []string{"--contract", "donation.testnet", "temporal", "confirm", "HashOne"},
			wantErr: "account",
		},
		{
			name:    "missing contract",
			args:    []string{"temporal", "confirm", "--account", "alice.testnet", "HashOne"},
			wantErr: "contract is required",
		},
		{
			name:    "start failure",
			args:    []string{"--contract", "donation.testnet", "temporal", "confirm", "--account", "alice.testnet", "HashTwo"},
			setup:   func() { confirmer.SetStartError(errors.New("temporal unavailable")) },
			wantErr: "temporal unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			_, err := runApp(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetConfirmationCommand(t *testing.T) {
	confirmer := useMockConfirmer(t)

	_, err := runApp(t, "--contract", "donation.testnet", "temporal", "confirm", "--account", "alice.testnet", "HashOne")
	require.NoError(t, err)

	out, err := runApp(t, "temporal", "confirmation", "HashOne")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:      running")

	confirmer.Complete("HashOne", &temporal.ConfirmDonationResult{
		TxHash:    "HashOne",
		AccountID: "alice.testnet",
		Total:     "4.2",
		Status:    "confirmed",
	})

	out, err = runApp(t, "temporal", "confirmation", "HashOne")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:      completed")
	assert.Contains(t, out, "Donor:       alice.testnet")
	assert.Contains(t, out, "Total:       4.2 Ⓝ")

	out, err = runApp(t, "--json", "temporal", "status", "HashOne")
	require.NoError(t, err)
	var conf temporal.Confirmation
	require.NoError(t, json.Unmarshal([]byte(out), &conf))
	assert.Equal(t, "confirm-donation-HashOne", conf.WorkflowID)
	require.NotNil(t, conf.Result)
	assert.Equal(t, "confirmed", conf.Result.Status)
}

func TestGetConfirmationCommand_NotFound(t *testing.T) {
	useMockConfirmer(t)

	_, err := runApp(t, "temporal", "confirmation", "Unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no confirmation workflow for Unknown")
}

func TestGetConfirmationCommand_Failure(t *testing.T) {
	confirmer := useMockConfirmer(t)
	confirmer.SetGetError(errors.New("temporal unavailable"))

	_, err := runApp(t, "temporal", "confirmation", "HashOne")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get confirmation: temporal unavailable")
}
