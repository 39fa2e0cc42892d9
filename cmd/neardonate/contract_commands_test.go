package main

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/brojonat/neardonate/service/donation"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runApp runs the CLI with args and returns what it wrote to stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard

	err := app.Run(append([]string{"neardonate"}, args...))
	return out.String(), err
}

// useMockContract points the contract commands at an in-memory contract.
func useMockContract(t *testing.T) (*donation.Contract, *donation.MockWallet) {
	t.Helper()

	wallet := donation.NewMockWallet("donation.testnet", "charity.testnet", "donor.testnet")
	contract := donation.NewContract("donation.testnet", wallet, nil, nil)

	orig := newContract
	newContract = func(*cli.Context) (*donation.Contract, error) { return contract, nil }
	t.Cleanup(func() { newContract = orig })

	return contract, wallet
}

func TestContractBeneficiary(t *testing.T) {
	useMockContract(t)

	out, err := runApp(t, "contract", "beneficiary")
	require.NoError(t, err)
	assert.Equal(t, "charity.testnet\n", out)

	out, err = runApp(t, "--json", "contract", "beneficiary")
	require.NoError(t, err)
	var resp map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "donation.testnet", resp["contract_id"])
	assert.Equal(t, "charity.testnet", resp["beneficiary"])
}

func TestContractLatest(t *testing.T) {
	_, wallet := useMockContract(t)
	require.NoError(t, wallet.SeedDonation("alice.testnet", "1500000000000000000000000"))
	require.NoError(t, wallet.SeedDonation("bob.testnet", "20000000000000000000000000"))

	out, err := runApp(t, "contract", "latest")
	require.NoError(t, err)
	assert.Contains(t, out, "ACCOUNT")
	assert.Contains(t, out, "alice.testnet")
	assert.Contains(t, out, "1.5")
	assert.Contains(t, out, "bob.testnet")
	assert.Contains(t, out, "20")

	out, err = runApp(t, "--json", "contract", "latest")
	require.NoError(t, err)
	var donations []donation.Donation
	require.NoError(t, json.Unmarshal([]byte(out), &donations))
	assert.Equal(t, []donation.Donation{
		{AccountID: "alice.testnet", TotalAmount: "1.5"},
		{AccountID: "bob.testnet", TotalAmount: "20"},
	}, donations)
}

func TestContractLatest_JQ(t *testing.T) {
	_, wallet := useMockContract(t)
	require.NoError(t, wallet.SeedDonation("alice.testnet", "1500000000000000000000000"))
	require.NoError(t, wallet.SeedDonation("bob.testnet", "20000000000000000000000000"))

	out, err := runApp(t, "--jq", ".[].account_id", "contract", "latest")
	require.NoError(t, err)
	assert.Equal(t, "alice.testnet\nbob.testnet\n", out)

	out, err = runApp(t, "--jq", "length", "contract", "latest")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestContractDonor(t *testing.T) {
	_, wallet := useMockContract(t)
	require.NoError(t, wallet.SeedDonation("alice.testnet", "2000000000000000000000000"))

	tests := []struct {
		name     string
		args     []string
		expected string
		wantErr  string
	}{
		{name: "existing donor", args: []string{"contract", "donor", "alice.testnet"}, expected: "alice.testnet: 2 Ⓝ\n"},
		{name: "never donated", args: []string{"contract", "donor", "carol.testnet"}, expected: "carol.testnet: 0 Ⓝ\n"},
		{name: "missing argument", args: []string{"contract", "donor"}, wantErr: "requires exactly one argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runApp(t, tt.args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestContractDonateAndTransaction(t *testing.T) {
	useMockContract(t)

	out, err := runApp(t, "--json", "contract", "donate", "1.5")
	require.NoError(t, err)

	var result contractDonateResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.NotEmpty(t, result.TransactionHash)
	assert.Equal(t, "donor.testnet", result.SignerID)
	assert.Equal(t, "donation.testnet", result.ReceiverID)
	assert.Equal(t, "1.5", result.Amount)
	assert.Equal(t, "1.5", result.Total)

	out, err = runApp(t, "contract", "donate", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Donated 2 Ⓝ to donation.testnet")
	assert.Contains(t, out, "Total:       3.5 Ⓝ")

	out, err = runApp(t, "contract", "tx", result.TransactionHash)
	require.NoError(t, err)
	assert.Equal(t, "1.5 Ⓝ\n", out)
}

func TestContractDonate_SecondDonor(t *testing.T) {
	_, wallet := useMockContract(t)

	_, err := runApp(t, "contract", "donate", "1")
	require.NoError(t, err)

	wallet.SetSigner("alice.testnet")
	out, err := runApp(t, "--jq", ".signer_id", "contract", "donate", "4")
	require.NoError(t, err)
	assert.Equal(t, "alice.testnet\n", out)

	out, err = runApp(t, "--jq", "map(.account_id)", "--json", "contract", "latest")
	require.NoError(t, err)
	var accounts []string
	require.NoError(t, json.Unmarshal([]byte(out), &accounts))
	assert.Equal(t, []string{"donor.testnet", "alice.testnet"}, accounts)
}

func TestContractDonate_Errors(t *testing.T) {
	_, wallet := useMockContract(t)

	_, err := runApp(t, "contract", "donate", "lots")
	require.Error(t, err)
	assert.ErrorIs(t, err, donation.ErrAmountParse)

	wallet.SetCallError(errors.New("node unavailable"))
	_, err = runApp(t, "contract", "donate", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, donation.ErrRemoteCall)
}

func TestContractTransaction_NotFound(t *testing.T) {
	useMockContract(t)

	_, err := runApp(t, "contract", "tx", "11111111111111111111111111111111")
	require.Error(t, err)
	assert.ErrorIs(t, err, donation.ErrTransactionNotFound)
}

func TestNewContract_RequiresContract(t *testing.T) {
	t.Setenv("CONTRACT_NAME", "")

	_, err := runApp(t, "contract", "beneficiary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contract is required")
}

func TestNewContract_UnknownNetwork(t *testing.T) {
	t.Setenv("NEAR_RPC_URL", "")

	_, err := runApp(t, "--contract", "donation.testnet", "--network", "localnet", "contract", "beneficiary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown network")
}
