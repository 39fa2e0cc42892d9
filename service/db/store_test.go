package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/brojonat/neardonate/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateReceipt(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	params := CreateReceiptParams{
		TxHash:       "7QnGXkdxSDQ8LVHvqUdHuP1TJhbKUyUaNwQzRiFfY4mQ",
		ContractID:   "donation.testnet",
		AccountID:    "alice.testnet",
		DepositYocto: "1000000000000000000000000",
	}

	receipt, err := store.CreateReceipt(ctx, params)
	require.NoError(t, err)
	require.NotNil(t, receipt)

	assert.Equal(t, params.TxHash, receipt.TxHash)
	assert.Equal(t, params.ContractID, receipt.ContractID)
	assert.Equal(t, params.AccountID, receipt.AccountID)
	require.NotNil(t, receipt.DepositYocto)
	assert.Equal(t, params.DepositYocto, *receipt.DepositYocto)
	assert.Nil(t, receipt.TotalYocto)
	assert.Equal(t, StatusPending, receipt.Status)
	assert.Nil(t, receipt.Error)
	assert.Nil(t, receipt.ConfirmedAt)
	assert.WithinDuration(t, time.Now(), receipt.CreatedAt, 5*time.Second)

	t.Run("duplicate returns existing", func(t *testing.T) {
		again, err := store.CreateReceipt(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, receipt.CreatedAt, again.CreatedAt)
		assert.Equal(t, StatusPending, again.Status)
	})
}

func TestConfirmReceipt(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	t.Run("confirms pending receipt", func(t *testing.T) {
		_, err := store.CreateReceipt(ctx, CreateReceiptParams{
			TxHash:       "pending-hash",
			ContractID:   "donation.testnet",
			AccountID:    "alice.testnet",
			DepositYocto: "500000000000000000000000",
		})
		require.NoError(t, err)

		receipt, err := store.ConfirmReceipt(ctx, ConfirmReceiptParams{
			TxHash:     "pending-hash",
			ContractID: "donation.testnet",
			AccountID:  "alice.testnet",
			TotalYocto: "1500000000000000000000000",
		})
		require.NoError(t, err)

		assert.Equal(t, StatusConfirmed, receipt.Status)
		require.NotNil(t, receipt.TotalYocto)
		assert.Equal(t, "1500000000000000000000000", *receipt.TotalYocto)
		require.NotNil(t, receipt.DepositYocto, "deposit is kept")
		assert.Equal(t, "500000000000000000000000", *receipt.DepositYocto)
		assert.NotNil(t, receipt.ConfirmedAt)
	})

	t.Run("creates missing receipt", func(t *testing.T) {
		receipt, err := store.ConfirmReceipt(ctx, ConfirmReceiptParams{
			TxHash:     "external-hash",
			ContractID: "donation.testnet",
			AccountID:  "bob.testnet",
			TotalYocto: "2000000000000000000000000",
		})
		require.NoError(t, err)

		assert.Equal(t, StatusConfirmed, receipt.Status)
		assert.Nil(t, receipt.DepositYocto)
		assert.Equal(t, "bob.testnet", receipt.AccountID)
	})

	t.Run("confirmed receipt is not failed afterwards", func(t *testing.T) {
		receipt, err := store.FailReceipt(ctx, FailReceiptParams{
			TxHash:     "external-hash",
			ContractID: "donation.testnet",
			AccountID:  "bob.testnet",
			Reason:     "late failure",
		})
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, receipt.Status)
		assert.Nil(t, receipt.Error)
	})
}

func TestFailReceipt(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	_, err := store.CreateReceipt(ctx, CreateReceiptParams{
		TxHash:       "doomed-hash",
		ContractID:   "donation.testnet",
		AccountID:    "carol.testnet",
		DepositYocto: "1",
	})
	require.NoError(t, err)

	receipt, err := store.FailReceipt(ctx, FailReceiptParams{
		TxHash:     "doomed-hash",
		ContractID: "donation.testnet",
		AccountID:  "carol.testnet",
		Reason:     "transaction returned no value",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, receipt.Status)
	require.NotNil(t, receipt.Error)
	assert.Equal(t, "transaction returned no value", *receipt.Error)
	assert.Nil(t, receipt.ConfirmedAt)
}

func TestGetReceipt(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		receipt, err := store.GetReceipt(ctx, "missing-hash")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrReceiptNotFound)
		assert.Nil(t, receipt)
	})

	t.Run("found", func(t *testing.T) {
		_, err := store.CreateReceipt(ctx, CreateReceiptParams{
			TxHash:       "known-hash",
			ContractID:   "donation.testnet",
			AccountID:    "alice.testnet",
			DepositYocto: "10",
		})
		require.NoError(t, err)

		receipt, err := store.GetReceipt(ctx, "known-hash")
		require.NoError(t, err)
		assert.Equal(t, "known-hash", receipt.TxHash)
		assert.Equal(t, StatusPending, receipt.Status)
	})
}

func TestListReceipts(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	// Insert receipts with distinct creation times, oldest first
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		account := "alice.testnet"
		if i%2 == 1 {
			account = "bob.testnet"
		}
		store.MustExec(t, `
			INSERT INTO donation_receipts (tx_hash, contract_id, account_id, deposit_yocto, status, created_at)
			VALUES ($1, $2, $3, $4, 'pending', $5)`,
			fmt.Sprintf("hash-%d", i), "donation.testnet", account, "1", base.Add(time.Duration(i)*time.Minute),
		)
	}
	store.MustExec(t, `
		INSERT INTO donation_receipts (tx_hash, contract_id, account_id, status)
		VALUES ('other-contract', 'other.testnet', 'alice.testnet', 'pending')`)

	t.Run("newest first with pagination", func(t *testing.T) {
		page, err := store.ListReceipts(ctx, ListReceiptsParams{ContractID: "donation.testnet", Limit: 2})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "hash-4", page[0].TxHash)
		assert.Equal(t, "hash-3", page[1].TxHash)

		page, err = store.ListReceipts(ctx, ListReceiptsParams{ContractID: "donation.testnet", Limit: 2, Offset: 4})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "hash-0", page[0].TxHash)
	})

	t.Run("filter by account", func(t *testing.T) {
		receipts, err := store.ListReceipts(ctx, ListReceiptsParams{
			ContractID: "donation.testnet",
			AccountID:  "bob.testnet",
			Limit:      10,
		})
		require.NoError(t, err)
		require.Len(t, receipts, 2)
		for _, r := range receipts {
			assert.Equal(t, "bob.testnet", r.AccountID)
		}
	})

	t.Run("empty contract", func(t *testing.T) {
		receipts, err := store.ListReceipts(ctx, ListReceiptsParams{ContractID: "nobody.testnet", Limit: 10})
		require.NoError(t, err)
		assert.NotNil(t, receipts)
		assert.Empty(t, receipts)
	})
}

func TestStore_RecordsMetrics(t *testing.T) {
	SkipIfNoTestDB(t)

	base := NewTestStore(t)
	defer base.Close()
	defer base.Cleanup(t)

	registry := prometheus.NewRegistry()
	store := NewStore(base.pool, metrics.NewMetrics(registry))

	_, err := store.GetReceipt(context.Background(), "missing-hash")
	require.Error(t, err)

	count, err := testutil.GatherAndCount(registry, "db_operations_total", "db_query_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
