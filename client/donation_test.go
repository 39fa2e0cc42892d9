package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brojonat/neardonate/service/config"
	"github.com/brojonat/neardonate/service/donation"
	"github.com/brojonat/neardonate/service/server"
	"github.com/brojonat/neardonate/service/temporal"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeneficiary_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/beneficiary", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"contract_id": "donation.testnet",
			"beneficiary": "charity.testnet",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, nil)
	beneficiary, err := client.Beneficiary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "charity.testnet", beneficiary)
}

func TestDonate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/donations", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2.5", body["amount"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transaction_hash": "HashOne",
			"signer_id":        "donor.testnet",
			"receiver_id":      "donation.testnet",
			"amount":           "2.5",
			"deposit_yocto":    "2500000000000000000000000",
			"total":            "2.5",
			"receipt_recorded": true,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, nil)
	result, err := client.Donate(context.Background(), "2.5")
	require.NoError(t, err)
	assert.Equal(t, "HashOne", result.TransactionHash)
	assert.Equal(t, "2500000000000000000000000", result.DepositYocto)
	assert.True(t, result.ReceiptRecorded)
	assert.Empty(t, result.ConfirmationWorkflowID)
}

func TestDonate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "invalid amount: empty amount",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, nil)
	_, err := client.Donate(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid amount")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.False(t, IsNotFound(err))
}

func TestParseErrorResponse_NonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, nil)
	_, err := client.LatestDonations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502: upstream down")
}

func TestReceipts_QueryParameters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/receipts", r.URL.Path)
		assert.Equal(t, "alice.testnet", r.URL.Query().Get("account_id"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "10", r.URL.Query().Get("offset"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"receipts": []map[string]interface{}{
				{"tx_hash": "HashOne", "account_id": "alice.testnet", "status": "confirmed", "total": "3"},
			},
			"count": 1,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, nil)
	receipts, err := client.Receipts(context.Background(), ReceiptsQuery{AccountID: "alice.testnet", Limit: 5, Offset: 10})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, "confirmed", receipts[0].Status)
	assert.Equal(t, "3", receipts[0].Total)
}

func TestWaitForConfirmation(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/confirmations/HashOne", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")

		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "confirmation not found"})
		case 2:
			json.NewEncoder(w).Encode(map[string]interface{}{"workflow_id": "confirm-donation-HashOne", "status": "running"})
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"workflow_id": "confirm-donation-HashOne",
				"status":      "completed",
				"result":      map[string]interface{}{"tx_hash": "HashOne", "status": "confirmed", "total": "4"},
			})
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, nil)
	conf, err := client.WaitForConfirmation(context.Background(), "HashOne", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "completed", conf.Status)
	require.NotNil(t, conf.Result)
	assert.Equal(t, "4", conf.Result.Total)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitForConfirmation_ContextDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"workflow_id": "w", "status": "running"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(srv.URL, nil, nil)
	_, err := client.WaitForConfirmation(ctx, "HashOne", 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestClientAgainstServer drives every client call through the real HTTP
// handlers backed by an in-memory contract.
func TestClientAgainstServer(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	wallet := donation.NewMockWallet("donation.testnet", "charity.testnet", "donor.testnet")
	contract := donation.NewContract("donation.testnet", wallet, nil, logger)
	confirmer := temporal.NewMockConfirmer()

	srv := server.New(":0", &config.Config{ConfirmTimeout: time.Minute}, contract, nil, confirmer, nil, nil, logger)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := NewClient(ts.URL, ts.Client(), nil)
	ctx := context.Background()

	require.NoError(t, client.Health(ctx))

	beneficiary, err := client.Beneficiary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "charity.testnet", beneficiary)

	latest, err := client.LatestDonations(ctx)
	require.NoError(t, err)
	assert.Empty(t, latest)

	result, err := client.Donate(ctx, "1.25")
	require.NoError(t, err)
	assert.Equal(t, "donor.testnet", result.SignerID)
	assert.Equal(t, "1.25", result.Total)
	assert.False(t, result.ReceiptRecorded)
	assert.Equal(t, temporal.ConfirmationWorkflowID(result.TransactionHash), result.ConfirmationWorkflowID)

	latest, err = client.LatestDonations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Donation{{AccountID: "donor.testnet", TotalAmount: "1.25"}}, latest)

	mine, err := client.DonationForAccount(ctx, "donor.testnet")
	require.NoError(t, err)
	assert.Equal(t, "1.25", mine.TotalAmount)

	amount, err := client.DonationFromTransaction(ctx, result.TransactionHash)
	require.NoError(t, err)
	assert.Equal(t, "1.25", amount)

	conf, err := client.Confirmation(ctx, result.TransactionHash)
	require.NoError(t, err)
	assert.Equal(t, "running", conf.Status)

	_, err = client.DonationFromTransaction(ctx, "11111111111111111111111111111111")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	// No store configured
	_, err = client.Receipts(ctx, ReceiptsQuery{})
	assert.True(t, IsNotFound(err))
}
