package main

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brojonat/neardonate/client"
	"github.com/brojonat/neardonate/service/config"
	"github.com/brojonat/neardonate/service/donation"
	"github.com/brojonat/neardonate/service/server"
	"github.com/brojonat/neardonate/service/temporal"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer serves the real HTTP API over an in-memory contract.
func startTestServer(t *testing.T) (*httptest.Server, *donation.MockWallet, *temporal.MockConfirmer) {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	wallet := donation.NewMockWallet("donation.testnet", "charity.testnet", "donor.testnet")
	contract := donation.NewContract("donation.testnet", wallet, nil, logger)
	confirmer := temporal.NewMockConfirmer()

	srv := server.New(":0", &config.Config{ConfirmTimeout: time.Minute}, contract, nil, confirmer, nil, nil, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return ts, wallet, confirmer
}

func TestClientCommands(t *testing.T) {
	ts, wallet, _ := startTestServer(t)
	require.NoError(t, wallet.SeedDonation("alice.testnet", "3000000000000000000000000"))

	tests := []struct {
		name     string
		args     []string
		contains []string
	}{
		{
			name:     "beneficiary",
			args:     []string{"--server-url", ts.URL, "client", "beneficiary"},
			contains: []string{"charity.testnet"},
		},
		{
			name:     "latest",
			args:     []string{"--server-url", ts.URL, "client", "latest"},
			contains: []string{"ACCOUNT", "alice.testnet", "3"},
		},
		{
			name:     "donor",
			args:     []string{"--server-url", ts.URL, "client", "donor", "alice.testnet"},
			contains: []string{"alice.testnet: 3 Ⓝ"},
		},
		{
			name:     "donate",
			args:     []string{"--server-url", ts.URL, "client", "donate", "0.25"},
			contains: []string{"Donated 0.25 Ⓝ to donation.testnet", "Signer:       donor.testnet", "Confirmation: confirm-donation-"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runApp(t, tt.args...)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestClientDonate_JSONAndTransaction(t *testing.T) {
	ts, _, confirmer := startTestServer(t)

	out, err := runApp(t, "--server-url", ts.URL, "--json", "client", "donate", "1.5")
	require.NoError(t, err)

	var result client.DonateResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "1.5", result.Total)
	assert.Equal(t, "1500000000000000000000000", result.DepositYocto)

	input, started := confirmer.Started(result.TransactionHash)
	require.True(t, started)
	assert.Equal(t, "donor.testnet", input.AccountID)

	out, err = runApp(t, "--server-url", ts.URL, "client", "tx", result.TransactionHash)
	require.NoError(t, err)
	assert.Equal(t, "1.5 Ⓝ\n", out)

	out, err = runApp(t, "--server-url", ts.URL, "--jq", ".status", "client", "confirmation", result.TransactionHash)
	require.NoError(t, err)
	assert.Equal(t, "running\n", out)
}

func TestClientConfirmation_Wait(t *testing.T) {
	ts, _, confirmer := startTestServer(t)

	orig := confirmationPollInterval
	confirmationPollInterval = 10 * time.Millisecond
	t.Cleanup(func() { confirmationPollInterval = orig })

	out, err := runApp(t, "--server-url", ts.URL, "--json", "client", "donate", "2")
	require.NoError(t, err)
	var result client.DonateResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	// Finish the workflow while the command is polling
	timer := time.AfterFunc(50*time.Millisecond, func() {
		confirmer.Complete(result.TransactionHash, &temporal.ConfirmDonationResult{
			TxHash:    result.TransactionHash,
			AccountID: result.SignerID,
			Total:     "2",
			Status:    "confirmed",
		})
	})
	defer timer.Stop()

	out, err = runApp(t, "--server-url", ts.URL, "client", "confirmation", "--wait", "--wait-timeout", "5s", result.TransactionHash)
	require.NoError(t, err)
	assert.Contains(t, out, "Status:      completed")
	assert.Contains(t, out, "Total:       2 Ⓝ")
}

func TestClientCommands_Errors(t *testing.T) {
	ts, _, _ := startTestServer(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"invalid amount", []string{"client", "donate", "abc"}, "invalid amount"},
		{"unknown transaction", []string{"client", "tx", "11111111111111111111111111111111"}, "transaction not found"},
		{"receipts disabled", []string{"client", "receipts"}, "failed to list receipts"},
		{"receipt disabled", []string{"client", "receipt", "HashOne"}, "no receipt for HashOne"},
		{"missing argument", []string{"client", "donor"}, "requires exactly one argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, append([]string{"--server-url", ts.URL}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
