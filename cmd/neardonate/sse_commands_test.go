package main

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/neardonate/service/config"
	"github.com/brojonat/neardonate/service/donation"
	natspkg "github.com/brojonat/neardonate/service/nats"
	"github.com/brojonat/neardonate/service/server"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startStreamingServer(t *testing.T) (*httptest.Server, *natspkg.MockPublisher) {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	wallet := donation.NewMockWallet("donation.testnet", "charity.testnet", "donor.testnet")
	contract := donation.NewContract("donation.testnet", wallet, nil, logger)
	publisher := natspkg.NewMockPublisher()

	srv := server.New(":0", &config.Config{}, contract, nil, nil, publisher, nil, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return ts, publisher
}

func TestStreamCommand(t *testing.T) {
	ts, publisher := startStreamingServer(t)
	publishWhenSubscribed(t, publisher,
		newTestEvent(t, "BobHash", "bob.testnet", "1000000000000000000000000"),
		newTestEvent(t, "AliceHash", "alice.testnet", "2500000000000000000000000"),
	)

	out, err := runApp(t, "--server-url", ts.URL, "--json", "client", "stream", "--count", "1", "alice.testnet")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var event natspkg.DonationEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &event))
	assert.Equal(t, "AliceHash", event.TxHash)
	assert.Equal(t, "alice.testnet", event.AccountID)
}

func TestStreamCommand_AllDonors(t *testing.T) {
	ts, publisher := startStreamingServer(t)
	publishWhenSubscribed(t, publisher,
		newTestEvent(t, "BobHash", "bob.testnet", "1000000000000000000000000"),
		newTestEvent(t, "AliceHash", "alice.testnet", "2500000000000000000000000"),
	)

	out, err := runApp(t, "--server-url", ts.URL, "client", "stream", "--count", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Donation #1")
	assert.Contains(t, out, "BobHash")
	assert.Contains(t, out, "Donation #2")
	assert.Contains(t, out, "Total:        2.5 Ⓝ")
}

func TestStreamCommand_InvalidAccount(t *testing.T) {
	ts, _ := startStreamingServer(t)

	_, err := runApp(t, "--server-url", ts.URL, "client", "stream", "BAD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestStreamCommand_ConnectionClosed(t *testing.T) {
	ts, publisher := startStreamingServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := runApp(t, "--server-url", ts.URL, "client", "stream")
		done <- err
	}()

	// Drop the connection while the command is streaming
	require.Eventually(t, func() bool { return publisher.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	ts.CloseClientConnections()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("stream command did not return after the connection closed")
	}
}
