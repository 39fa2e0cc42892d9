package nats

import (
	"context"
	"fmt"
	"sync"
)

// MockPublisher is an in-memory Publisher and Subscriber for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*DonationEvent
	publishError    error
	subscribers     map[int]mockSubscription
	nextID          int
	closed          bool
}

type mockSubscription struct {
	accountID string
	events    chan *DonationEvent
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*DonationEvent, 0),
		subscribers:     make(map[int]mockSubscription),
	}
}

// PublishDonation records the event, hands it to matching subscribers and
// returns any configured error.
func (m *MockPublisher) PublishDonation(ctx context.Context, event *DonationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	if event.AccountID == "" {
		return fmt.Errorf("%w: %s", ErrMissingAccount, event.TxHash)
	}

	m.publishedEvents = append(m.publishedEvents, event)
	for _, sub := range m.subscribers {
		if matchesAccount(sub.accountID, event) {
			select {
			case sub.events <- event:
			default:
			}
		}
	}
	return nil
}

// Subscribe delivers events published after the call until ctx is done.
func (m *MockPublisher) Subscribe(ctx context.Context, accountID string, handler func(*DonationEvent)) error {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	sub := mockSubscription{accountID: accountID, events: make(chan *DonationEvent, 16)}
	m.subscribers[id] = sub
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}()

	for {
		select {
		case event := <-sub.events:
			handler(event)
		case <-ctx.Done():
			return nil
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (m *MockPublisher) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*DonationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*DonationEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventsForAccount returns events published for a specific donor.
func (m *MockPublisher) GetPublishedEventsForAccount(accountID string) []*DonationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*DonationEvent, 0)
	for _, event := range m.publishedEvents {
		if event.AccountID == accountID {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on PublishDonation.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
