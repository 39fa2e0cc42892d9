package main

import (
	"context"
	"strings"
	"testing"
	"time"

	natspkg "github.com/brojonat/neardonate/service/nats"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// useMockSubscriber points the subscribe command at an in-memory publisher.
func useMockSubscriber(t *testing.T) *natspkg.MockPublisher {
	t.Helper()

	publisher := natspkg.NewMockPublisher()
	orig := newSubscriber
	newSubscriber = func(*cli.Context) (natspkg.Subscriber, func(), error) {
		return publisher, func() {}, nil
	}
	t.Cleanup(func() { newSubscriber = orig })
	return publisher
}

// publishWhenSubscribed publishes events once the command has subscribed.
func publishWhenSubscribed(t *testing.T, publisher *natspkg.MockPublisher, events ...*natspkg.DonationEvent) {
	t.Helper()
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for publisher.SubscriberCount() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		for _, event := range events {
			_ = publisher.PublishDonation(context.Background(), event)
		}
	}()
}

func newTestEvent(t *testing.T, txHash, accountID, yocto string) *natspkg.DonationEvent {
	t.Helper()
	event, err := natspkg.NewDonationEvent(txHash, "donation.testnet", accountID, yocto)
	require.NoError(t, err)
	return event
}

func TestSubscribeCommand_Count(t *testing.T) {
	publisher := useMockSubscriber(t)
	publishWhenSubscribed(t, publisher,
		newTestEvent(t, "BobHash", "bob.testnet", "1000000000000000000000000"),
		newTestEvent(t, "AliceHash", "alice.testnet", "2500000000000000000000000"),
	)

	out, err := runApp(t, "--json", "nats", "subscribe", "--count", "1", "--timeout", "5s", "alice.testnet")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var event natspkg.DonationEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &event))
	assert.Equal(t, "AliceHash", event.TxHash)
	assert.Equal(t, "2.5", event.Total)
}

func TestSubscribeCommand_Filter(t *testing.T) {
	publisher := useMockSubscriber(t)
	publishWhenSubscribed(t, publisher,
		newTestEvent(t, "SmallHash", "bob.testnet", "1000000000000000000000000"),
		newTestEvent(t, "LargeHash", "carol.testnet", "50000000000000000000000000"),
	)

	out, err := runApp(t, "nats", "subscribe", "--count", "1", "--timeout", "5s", "--filter", `.total == "50"`)
	require.NoError(t, err)
	assert.Contains(t, out, "Donation #1")
	assert.Contains(t, out, "LargeHash")
	assert.Contains(t, out, "carol.testnet")
	assert.NotContains(t, out, "SmallHash")
}

func TestSubscribeCommand_TimeoutBeforeCount(t *testing.T) {
	useMockSubscriber(t)

	_, err := runApp(t, "nats", "subscribe", "--count", "1", "--timeout", "50ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "received 0 of 1 donations")
}

func TestSubscribeCommand_InvalidFilter(t *testing.T) {
	useMockSubscriber(t)

	_, err := runApp(t, "nats", "subscribe", "--filter", ".[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}
